// Package render turns search results into display entries with their
// quick actions in preference order.
package render

import (
	"github.com/pders01/pubsearch/internal/config"
	"github.com/pders01/pubsearch/internal/registry"
)

type ActionKind int

const (
	ActionCopy ActionKind = iota
	ActionOpen
)

func (k ActionKind) String() string {
	switch k {
	case ActionCopy:
		return "copy"
	case ActionOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Action is one quick action. For copy actions Payload is the clipboard
// content; for open actions it is the URL to open.
type Action struct {
	Kind    ActionKind
	Title   string
	Payload string
}

type Entry struct {
	ID      string
	Name    string
	URL     string
	Actions []Action
}

// Primary returns the action triggered by enter.
func (e Entry) Primary() Action {
	return e.Actions[0]
}

// Action returns the entry's action of the given kind.
func (e Entry) Action(kind ActionKind) (Action, bool) {
	for _, a := range e.Actions {
		if a.Kind == kind {
			return a, true
		}
	}
	return Action{}, false
}

func InstallCommand(packageManager, name string) string {
	return packageManager + " add " + name
}

// Entries maps results in order. Each entry has exactly two actions and the
// one matching primary comes first.
func Entries(results []registry.Result, primary config.PrimaryAction, packageManager string) []Entry {
	entries := make([]Entry, 0, len(results))
	for _, r := range results {
		cp := Action{
			Kind:    ActionCopy,
			Title:   "Copy install command",
			Payload: InstallCommand(packageManager, r.Name),
		}
		open := Action{
			Kind:    ActionOpen,
			Title:   "Open package page",
			Payload: r.URL,
		}

		actions := []Action{cp, open}
		if primary == config.OpenInBrowser {
			actions = []Action{open, cp}
		}

		entries = append(entries, Entry{
			ID:      r.ID,
			Name:    r.Name,
			URL:     r.URL,
			Actions: actions,
		})
	}
	return entries
}
