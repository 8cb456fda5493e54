package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pders01/pubsearch/internal/config"
	"github.com/pders01/pubsearch/internal/render"
	"github.com/pders01/pubsearch/internal/validation"
)

type KeyHandler struct {
	app         *App
	config      *config.Config
	modifierKey string
}

func NewKeyHandler(app *App, cfg *config.Config) *KeyHandler {
	modifierKey := cfg.Keys.Modifier + "+"
	return &KeyHandler{app: app, config: cfg, modifierKey: modifierKey}
}

func (kh *KeyHandler) HandleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	// Modifier chords never produce text, so they work while typing too.
	if model, cmd, handled := kh.handleCustomKeys(key); handled {
		return model, cmd
	}

	if kh.isInTextInputMode() {
		return kh.handleTextInputMode(msg)
	}

	return kh.delegateToCharm(msg)
}

func (kh *KeyHandler) isInTextInputMode() bool {
	return kh.app.view == ViewSearch && kh.app.focus == focusInput
}

func (kh *KeyHandler) handleCustomKeys(key string) (tea.Model, tea.Cmd, bool) {
	switch key {
	case "ctrl+c":
		return kh.app, tea.Quit, true
	case kh.modifierKey + "y":
		model, cmd := kh.runSelected(render.ActionCopy)
		return model, cmd, true
	case kh.modifierKey + "o":
		model, cmd := kh.runSelected(render.ActionOpen)
		return model, cmd, true
	case kh.modifierKey + "d":
		if kh.app.view != ViewSearch {
			return kh.app, nil, true
		}
		model, cmd := kh.openDetails()
		return model, cmd, true
	}
	return kh.app, nil, false
}

func (kh *KeyHandler) handleTextInputMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return kh.navigateBack()
	case "enter":
		return kh.runPrimary()
	case "tab", "down":
		if len(kh.app.entries) > 0 {
			kh.app.focusResults()
			kh.app.resultList.Select(0)
		}
		return kh.app, nil
	default:
		return kh.delegateToTextInput(msg)
	}
}

// delegateToTextInput edits the query and schedules a debounced search.
// Every keystroke bumps searchSeq, so only the last tick within the window
// fires.
func (kh *KeyHandler) delegateToTextInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	prev := kh.app.searchInput.Value()
	newSearchInput, cmd := kh.app.searchInput.Update(msg)
	kh.app.searchInput = newSearchInput

	if kh.app.searchInput.Value() == prev {
		return kh.app, cmd
	}

	q := validation.SanitizeQuery(kh.app.searchInput.Value(), kh.config.Search.MaxQueryLength)
	if q == kh.app.pendingSearchQuery {
		return kh.app, cmd
	}

	kh.app.pendingSearchQuery = q
	kh.app.searchSeq++
	seq := kh.app.searchSeq

	wait := kh.app.searchDebounce
	if wait <= 0 {
		kh.app.issueSearch(q)
		return kh.app, cmd
	}
	return kh.app, tea.Batch(cmd, tea.Tick(wait, func(time.Time) tea.Msg { return searchDebounceFireMsg{seq: seq} }))
}

// delegateToCharm handles the results list and the details pane.
func (kh *KeyHandler) delegateToCharm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch kh.app.view {
	case ViewSearch:
		switch msg.String() {
		case "tab", "shift+tab", "/", "i":
			kh.app.focusInput()
			return kh.app, nil
		case "up":
			if kh.app.resultList.Index() == 0 {
				kh.app.focusInput()
				return kh.app, nil
			}
		case "enter":
			return kh.runPrimary()
		case "esc":
			return kh.navigateBack()
		case "q":
			return kh.app, tea.Quit
		}
		kh.app.resultList, cmd = kh.app.resultList.Update(msg)
		return kh.app, cmd

	case ViewDetails:
		switch msg.String() {
		case "esc", "q", "backspace":
			return kh.navigateBack()
		case "enter":
			return kh.runPrimary()
		}
		kh.app.viewport, cmd = kh.app.viewport.Update(msg)
		return kh.app, cmd

	default:
		return kh.app, nil
	}
}

// navigateBack leaves the details pane, then the results list, then the app.
func (kh *KeyHandler) navigateBack() (tea.Model, tea.Cmd) {
	switch {
	case kh.app.view == ViewDetails:
		kh.app.closeDetails()
		return kh.app, nil
	case kh.app.focus == focusResults:
		kh.app.focusInput()
		return kh.app, nil
	default:
		return kh.app, tea.Quit
	}
}

func (kh *KeyHandler) runPrimary() (tea.Model, tea.Cmd) {
	entry, ok := kh.app.selectedEntry()
	if !ok {
		kh.app.setStatus(MsgNoSelection, StatusWarn)
		return kh.app, nil
	}
	return kh.app, kh.app.runAction(entry.Primary())
}

func (kh *KeyHandler) runSelected(kind render.ActionKind) (tea.Model, tea.Cmd) {
	entry, ok := kh.app.selectedEntry()
	if !ok {
		kh.app.setStatus(MsgNoSelection, StatusWarn)
		return kh.app, nil
	}
	action, ok := entry.Action(kind)
	if !ok {
		return kh.app, nil
	}
	return kh.app, kh.app.runAction(action)
}

func (kh *KeyHandler) openDetails() (tea.Model, tea.Cmd) {
	entry, ok := kh.app.selectedEntry()
	if !ok {
		kh.app.setStatus(MsgNoSelection, StatusWarn)
		return kh.app, nil
	}
	return kh.app, kh.app.showDetails(entry)
}

// GetHelpForCurrentView lists the key hints for the status bar.
func (kh *KeyHandler) GetHelpForCurrentView() []string {
	primary := "enter: " + kh.primaryTitle()
	actions := []string{kh.modifierKey + "y: copy", kh.modifierKey + "o: open"}

	switch {
	case kh.app.view == ViewDetails:
		return append([]string{primary}, append(actions, "esc: back")...)
	case kh.app.focus == focusResults:
		return append([]string{primary}, append(actions, kh.modifierKey+"d: details", "tab: search", "q: quit")...)
	default:
		return append([]string{primary}, append(actions, kh.modifierKey+"d: details", "tab: results", "esc: quit")...)
	}
}

func (kh *KeyHandler) primaryTitle() string {
	if kh.config.Actions.Primary == config.OpenInBrowser {
		return "open"
	}
	return "copy install"
}
