package query

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/pubsearch/internal/config"
	"github.com/pders01/pubsearch/internal/registry"
)

type searchFunc func(ctx context.Context) ([]registry.Result, error)

type fakeSearcher struct {
	mu       sync.Mutex
	handlers map[string]searchFunc
	calls    []string
}

func newFakeSearcher() *fakeSearcher {
	return &fakeSearcher{handlers: map[string]searchFunc{}}
}

func (f *fakeSearcher) on(query string, fn searchFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[query] = fn
}

func (f *fakeSearcher) Search(ctx context.Context, query string) ([]registry.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, query)
	fn, ok := f.handlers[query]
	f.mu.Unlock()

	if !ok {
		return []registry.Result{}, nil
	}
	return fn(ctx)
}

func named(names ...string) []registry.Result {
	results := make([]registry.Result, len(names))
	for i, n := range names {
		results[i] = registry.Result{ID: fmt.Sprintf("id-%d", i), Name: n, URL: "https://pub.dev/api/packages/" + n}
	}
	return results
}

func resultNames(results []registry.Result) []string {
	names := make([]string, len(results))
	for i, r := range results {
		names[i] = r.Name
	}
	return names
}

// waitSettled pumps events until the search for query has finished.
func waitSettled(t *testing.T, c *Controller, query string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		s := c.State()
		if s.Query == query && !s.IsLoading {
			return
		}
		select {
		case <-c.Events():
		case <-deadline:
			t.Fatalf("search %q did not settle, state=%+v", query, c.State())
		}
	}
}

func waitFailure(t *testing.T, c *Controller) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-c.Events():
			if ev.Kind == EventFailed {
				return ev
			}
		case <-deadline:
			t.Fatal("no failure event delivered")
		}
	}
}

func countFailures(c *Controller) int {
	n := 0
	for {
		select {
		case ev := <-c.Events():
			if ev.Kind == EventFailed {
				n++
			}
		default:
			return n
		}
	}
}

func TestController_InitialState(t *testing.T) {
	fake := newFakeSearcher()
	block := make(chan struct{})
	fake.on("", func(ctx context.Context) ([]registry.Result, error) {
		<-block
		return named("http"), nil
	})

	c := New(fake)
	s := c.State()
	assert.True(t, s.IsLoading)
	assert.NotNil(t, s.Results)
	assert.Empty(t, s.Results)

	close(block)
	waitSettled(t, c, "")
	c.Close()
}

func TestController_StartupSearchAgainstRegistry(t *testing.T) {
	var gotQuery atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.RawQuery)
		_, _ = w.Write([]byte(`{"packages":[{"package":"http"},{"package":"dio"}]}`))
	}))
	defer server.Close()

	cfg := config.TestConfig()
	cfg.Registry.BaseURL = server.URL

	c := New(registry.NewClient(cfg))
	defer c.Close()

	waitSettled(t, c, "")

	s := c.State()
	assert.Equal(t, "q=", gotQuery.Load())
	assert.False(t, s.IsLoading)
	require.Len(t, s.Results, 2)
	assert.Equal(t, "http", s.Results[0].Name)
	assert.Equal(t, "dio", s.Results[1].Name)
	assert.Equal(t, server.URL+"/api/packages/http", s.Results[0].URL)
	assert.Equal(t, server.URL+"/api/packages/dio", s.Results[1].URL)
}

func TestController_EmptyResponses(t *testing.T) {
	for _, body := range []string{`{"packages":[]}`, `{}`} {
		t.Run(body, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Query().Get("q") == "" {
					_, _ = w.Write([]byte(`{"packages":[{"package":"http"}]}`))
					return
				}
				_, _ = w.Write([]byte(body))
			}))
			defer server.Close()

			cfg := config.TestConfig()
			cfg.Registry.BaseURL = server.URL

			c := New(registry.NewClient(cfg))
			waitSettled(t, c, "")
			require.Len(t, c.State().Results, 1)

			c.Search("zzz")
			waitSettled(t, c, "zzz")
			c.Close()

			s := c.State()
			assert.NotNil(t, s.Results)
			assert.Empty(t, s.Results)
			assert.Equal(t, 0, countFailures(c))
		})
	}
}

func TestController_HTTPFailureKeepsResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") == "boom" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"packages":[{"package":"http"},{"package":"dio"}]}`))
	}))
	defer server.Close()

	cfg := config.TestConfig()
	cfg.Registry.BaseURL = server.URL

	c := New(registry.NewClient(cfg))
	waitSettled(t, c, "")
	before := c.State().Results

	c.Search("boom")
	ev := waitFailure(t, c)
	c.Close()

	assert.Equal(t, "boom", ev.Query)
	require.Error(t, ev.Err)
	assert.Contains(t, ev.Err.Error(), "Internal Server Error")

	s := c.State()
	assert.False(t, s.IsLoading)
	assert.Equal(t, before, s.Results)
	assert.Equal(t, 0, countFailures(c), "failure must be reported exactly once")
}

func TestController_SupersededResponseIsDropped(t *testing.T) {
	fake := newFakeSearcher()
	fake.on("", func(ctx context.Context) ([]registry.Result, error) {
		return named("initial"), nil
	})

	started := make(chan struct{})
	release := make(chan struct{})
	// "a" ignores cancellation: its network call completes after "ab".
	fake.on("a", func(ctx context.Context) ([]registry.Result, error) {
		close(started)
		<-release
		return named("stale"), nil
	})
	fake.on("ab", func(ctx context.Context) ([]registry.Result, error) {
		return named("fresh"), nil
	})

	c := New(fake)
	waitSettled(t, c, "")

	c.Search("a")
	<-started
	c.Search("ab")
	waitSettled(t, c, "ab")

	close(release)
	// Close waits for the "a" goroutine to finish its continuation.
	c.Close()

	s := c.State()
	assert.Equal(t, []string{"fresh"}, resultNames(s.Results))
	assert.Equal(t, "ab", s.Query)
	assert.False(t, s.IsLoading)
	assert.Equal(t, 0, countFailures(c))
}

func TestController_SupersededFailureIsSilent(t *testing.T) {
	fake := newFakeSearcher()
	started := make(chan struct{})
	release := make(chan struct{})
	fake.on("a", func(ctx context.Context) ([]registry.Result, error) {
		close(started)
		<-release
		return nil, errors.New("connection reset")
	})
	fake.on("ab", func(ctx context.Context) ([]registry.Result, error) {
		return named("fresh"), nil
	})

	c := New(fake)
	waitSettled(t, c, "")

	c.Search("a")
	<-started
	c.Search("ab")
	waitSettled(t, c, "ab")
	close(release)
	c.Close()

	assert.Equal(t, 0, countFailures(c))
	assert.Equal(t, []string{"fresh"}, resultNames(c.State().Results))
}

func TestController_CancelsPreviousRequest(t *testing.T) {
	fake := newFakeSearcher()
	cancelled := make(chan struct{})
	fake.on("slow", func(ctx context.Context) ([]registry.Result, error) {
		<-ctx.Done()
		close(cancelled)
		return nil, ctx.Err()
	})

	c := New(fake)
	waitSettled(t, c, "")

	c.Search("slow")
	c.Search("fast")

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("previous request was not cancelled")
	}

	waitSettled(t, c, "fast")
	c.Close()
	assert.Equal(t, 0, countFailures(c))
}

func TestController_LoadingPreservesResults(t *testing.T) {
	fake := newFakeSearcher()
	fake.on("", func(ctx context.Context) ([]registry.Result, error) {
		return named("http", "dio"), nil
	})
	block := make(chan struct{})
	fake.on("next", func(ctx context.Context) ([]registry.Result, error) {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil, ctx.Err()
	})

	c := New(fake)
	waitSettled(t, c, "")

	c.Search("next")
	s := c.State()
	assert.True(t, s.IsLoading)
	assert.Equal(t, []string{"http", "dio"}, resultNames(s.Results))

	c.Close()
	close(block)
}

func TestController_RapidSearchesLastOneWins(t *testing.T) {
	fake := newFakeSearcher()
	rng := rand.New(rand.NewSource(1))

	queries := make([]string, 30)
	for i := range queries {
		q := fmt.Sprintf("q%d", i)
		queries[i] = q
		delay := time.Duration(rng.Intn(5)) * time.Millisecond
		// Half the handlers ignore cancellation to exercise late completions.
		honourCancel := i%2 == 0
		fake.on(q, func(ctx context.Context) ([]registry.Result, error) {
			if honourCancel {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			} else {
				time.Sleep(delay)
			}
			return named(q), nil
		})
	}

	c := New(fake)
	for _, q := range queries {
		c.Search(q)
	}

	last := queries[len(queries)-1]
	waitSettled(t, c, last)
	c.Close()

	s := c.State()
	assert.Equal(t, []string{last}, resultNames(s.Results))
	assert.Equal(t, 0, countFailures(c))
}

func TestController_CloseCancelsAndIgnoresLaterSearches(t *testing.T) {
	fake := newFakeSearcher()
	cancelled := make(chan struct{})
	fake.on("", func(ctx context.Context) ([]registry.Result, error) {
		<-ctx.Done()
		close(cancelled)
		return nil, ctx.Err()
	})

	c := New(fake)
	c.Close()

	select {
	case <-cancelled:
	default:
		t.Fatal("Close did not cancel the outstanding request")
	}

	c.Search("after-close")
	c.Close()

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.NotContains(t, fake.calls, "after-close")
	assert.Equal(t, "", c.State().Query)
}

func TestController_WithInitialQuery(t *testing.T) {
	fake := newFakeSearcher()
	fake.on("dio", func(ctx context.Context) ([]registry.Result, error) {
		return named("dio"), nil
	})

	c := New(fake, WithInitialQuery("dio"), WithEventBuffer(1))
	waitSettled(t, c, "dio")
	c.Close()

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, []string{"dio"}, fake.calls)
	assert.Equal(t, []string{"dio"}, resultNames(c.State().Results))
}

func TestController_FailureDoesNotBlockClose(t *testing.T) {
	fake := newFakeSearcher()
	fake.on("", func(ctx context.Context) ([]registry.Result, error) {
		return nil, errors.New("dns failure")
	})
	fake.on("x", func(ctx context.Context) ([]registry.Result, error) {
		return nil, errors.New("dns failure")
	})

	// Nobody reads events; the buffer of one fills with the first failure.
	c := New(fake, WithEventBuffer(1))
	c.Search("x")

	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked on an unread failure event")
	}
}

func TestController_Wait(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		fake := newFakeSearcher()
		fake.on("http", func(ctx context.Context) ([]registry.Result, error) {
			return named("http"), nil
		})

		c := New(fake, WithInitialQuery("http"))
		defer c.Close()

		require.NoError(t, c.Wait(context.Background()))
		assert.Equal(t, []string{"http"}, resultNames(c.State().Results))
	})

	t.Run("failure", func(t *testing.T) {
		fake := newFakeSearcher()
		fake.on("http", func(ctx context.Context) ([]registry.Result, error) {
			return nil, &registry.StatusError{StatusCode: 503, Status: "Service Unavailable"}
		})

		c := New(fake, WithInitialQuery("http"))
		defer c.Close()

		err := c.Wait(context.Background())
		require.Error(t, err)
		assert.Equal(t, "Service Unavailable", err.Error())
	})

	t.Run("follows a superseding search", func(t *testing.T) {
		fake := newFakeSearcher()
		release := make(chan struct{})
		fake.on("a", func(ctx context.Context) ([]registry.Result, error) {
			<-release
			return named("stale"), nil
		})
		fake.on("ab", func(ctx context.Context) ([]registry.Result, error) {
			return named("fresh"), nil
		})

		c := New(fake, WithInitialQuery("a"))
		defer c.Close()

		waited := make(chan error, 1)
		go func() { waited <- c.Wait(context.Background()) }()

		c.Search("ab")
		select {
		case err := <-waited:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("Wait did not follow the superseding search")
		}
		close(release)
		assert.Equal(t, []string{"fresh"}, resultNames(c.State().Results))
	})

	t.Run("context expiry", func(t *testing.T) {
		fake := newFakeSearcher()
		fake.on("", func(ctx context.Context) ([]registry.Result, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

		c := New(fake)
		defer c.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, c.Wait(ctx), context.DeadlineExceeded)
	})

	t.Run("closed", func(t *testing.T) {
		c := New(newFakeSearcher())
		c.Close()
		assert.ErrorIs(t, c.Wait(context.Background()), ErrClosed)
	})
}
