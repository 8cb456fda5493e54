// Package query owns the lifetime of registry searches driven by user input.
//
// A Controller keeps at most one request in flight. Every Search cancels the
// previous request before starting the next, and a finished request may only
// touch state while it is still the current one. Both the cancel and that
// liveness check run under the same mutex, so a superseded request never
// writes results, even when its HTTP call had already returned.
package query

import (
	"context"
	"errors"
	"sync"

	"github.com/pders01/pubsearch/internal/debuglog"
	"github.com/pders01/pubsearch/internal/registry"
)

// Searcher performs one registry search. *registry.Client satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string) ([]registry.Result, error)
}

// State is a snapshot of the search palette. Results keep server order.
type State struct {
	Query     string
	Results   []registry.Result
	IsLoading bool
}

type EventKind int

const (
	// EventChanged signals that State() has moved on. Consecutive changes
	// may be coalesced into one event.
	EventChanged EventKind = iota
	// EventFailed carries one failed search. It is delivered exactly once
	// per failure and never coalesced.
	EventFailed
)

type Event struct {
	Kind  EventKind
	Query string
	Err   error
}

// ErrClosed is returned by Wait once the controller has been closed.
var ErrClosed = errors.New("query controller closed")

type Option func(*Controller)

// WithInitialQuery replaces the empty startup search.
func WithInitialQuery(q string) Option {
	return func(c *Controller) { c.initial = q }
}

// WithEventBuffer sets the event channel capacity.
func WithEventBuffer(n int) Option {
	return func(c *Controller) { c.buffer = n }
}

type Controller struct {
	searcher Searcher
	initial  string
	buffer   int

	mu      sync.Mutex
	state   State
	gen     uint64
	cancel  context.CancelFunc
	closed  bool
	settled chan struct{}
	lastErr error

	events chan Event
	done   chan struct{}
	wg     sync.WaitGroup
}

// New creates a controller and immediately issues the startup search.
func New(searcher Searcher, opts ...Option) *Controller {
	c := &Controller{
		searcher: searcher,
		buffer:   16,
		state:    State{Results: []registry.Result{}, IsLoading: true},
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.buffer < 1 {
		c.buffer = 1
	}
	c.events = make(chan Event, c.buffer)

	c.Search(c.initial)
	return c
}

// Events delivers change notifications and failures. It is never closed;
// select on it alongside your own shutdown signal.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.state
	s.Results = make([]registry.Result, len(c.state.Results))
	copy(s.Results, c.state.Results)
	return s
}

// Search supersedes any outstanding request with a search for text. It
// returns immediately; the outcome arrives through Events.
func (c *Controller) Search(text string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.cancel != nil {
		c.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.gen++
	gen := c.gen
	closeOnce(c.settled)
	c.settled = make(chan struct{})
	c.lastErr = nil
	c.state.Query = text
	c.state.IsLoading = true
	c.wg.Add(1)
	c.mu.Unlock()

	debuglog.WithFields(map[string]any{"q": text, "gen": gen}).Debugf("search issued")
	c.emit(Event{Kind: EventChanged, Query: text})

	go c.run(ctx, gen, text)
}

func (c *Controller) run(ctx context.Context, gen uint64, text string) {
	defer c.wg.Done()
	log := debuglog.WithFields(map[string]any{"q": text, "gen": gen})

	results, err := c.searcher.Search(ctx, text)

	c.mu.Lock()
	if c.closed || gen != c.gen || ctx.Err() != nil {
		c.mu.Unlock()
		log.Debugf("search superseded, outcome dropped")
		return
	}
	c.cancel()
	c.cancel = nil
	c.state.IsLoading = false
	if err == nil {
		if results == nil {
			results = []registry.Result{}
		}
		c.state.Results = results
	} else if !errors.Is(err, context.Canceled) {
		c.lastErr = err
	}
	close(c.settled)
	c.mu.Unlock()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Cancelled by something other than us; nothing to report.
			c.emit(Event{Kind: EventChanged, Query: text})
			return
		}
		log.Errorf("search failed: %v", err)
		c.emit(Event{Kind: EventFailed, Query: text, Err: err})
		return
	}

	log.Debugf("search applied: %d results", len(results))
	c.emit(Event{Kind: EventChanged, Query: text})
}

func (c *Controller) emit(ev Event) {
	if ev.Kind == EventChanged {
		// A pending event already makes the reader fetch State() again.
		select {
		case c.events <- ev:
		default:
		}
		return
	}

	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// Close cancels any outstanding request and waits for search goroutines to
// finish. Later calls to Search are ignored.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	closeOnce(c.settled)
	close(c.done)
	c.mu.Unlock()

	c.wg.Wait()
}

// Wait blocks until the latest search has completed, following any search
// that supersedes it, and returns that search's failure. It is meant for
// headless callers that do not pump Events.
func (c *Controller) Wait(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return ErrClosed
		}
		if !c.state.IsLoading {
			err := c.lastErr
			c.mu.Unlock()
			return err
		}
		settled := c.settled
		c.mu.Unlock()

		select {
		case <-settled:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// closeOnce closes ch unless it is nil or already closed. Callers hold mu.
func closeOnce(ch chan struct{}) {
	if ch == nil {
		return
	}
	select {
	case <-ch:
	default:
		close(ch)
	}
}
