package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/pders01/pubsearch/internal/actions"
	"github.com/pders01/pubsearch/internal/config"
	"github.com/pders01/pubsearch/internal/query"
	"github.com/pders01/pubsearch/internal/registry"
	"github.com/pders01/pubsearch/internal/render"
)

// SearchController is the part of *query.Controller the palette drives.
type SearchController interface {
	Search(text string)
	State() query.State
	Events() <-chan query.Event
}

type ActionRunner interface {
	Run(action render.Action) (actions.Result, error)
}

type PackageFetcher interface {
	Package(ctx context.Context, name string) (*registry.Package, error)
}

// chromeHeight is everything on the search view that is not the list:
// header, input frame, summary line, spacing and the status bar.
const chromeHeight = 10

type App struct {
	config     *config.Config
	ctrl       SearchController
	runner     ActionRunner
	fetcher    PackageFetcher
	keyHandler *KeyHandler

	resultList  list.Model
	searchInput textinput.Model
	viewport    viewport.Model
	spinner     spinner.Model
	view        View
	focus       focusArea

	entries []render.Entry
	loading bool

	pendingSearchQuery string
	searchSeq          int
	searchDebounce     time.Duration

	details        *render.Entry
	detailsCancel  context.CancelFunc
	loadingDetails bool

	status     string
	statusKind StatusKind
	err        error

	width           int
	height          int
	glamourRenderer *glamour.TermRenderer
	rendererWidth   int

	done      chan struct{}
	closeOnce sync.Once
}

func NewApp(cfg *config.Config, ctrl SearchController, runner ActionRunner, fetcher PackageFetcher) *App {
	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(SecondaryColor).
		BorderLeftForeground(SecondaryColor)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(MutedColor).
		BorderLeftForeground(SecondaryColor)
	delegate.Styles.NormalTitle = delegate.Styles.NormalTitle.Foreground(TextColor)
	delegate.Styles.NormalDesc = delegate.Styles.NormalDesc.Foreground(MutedColor)

	resultList := list.New([]list.Item{}, delegate, 0, 0)
	resultList.Title = "› results"
	resultList.Styles.Title = HeaderStyle
	resultList.SetShowStatusBar(false)
	resultList.SetShowHelp(false)
	// Server order is the ranking; local filtering would fight the query.
	resultList.SetFilteringEnabled(false)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(AccentColor)

	initial := ctrl.State().Query

	si := textinput.New()
	si.Placeholder = "Search pub.dev packages..."
	si.Prompt = "› "
	si.CharLimit = cfg.Search.MaxQueryLength
	si.SetValue(initial)
	si.Focus()

	app := &App{
		config:             cfg,
		ctrl:               ctrl,
		runner:             runner,
		fetcher:            fetcher,
		resultList:         resultList,
		searchInput:        si,
		viewport:           viewport.New(0, 0),
		spinner:            sp,
		view:               ViewSearch,
		focus:              focusInput,
		pendingSearchQuery: initial,
		searchDebounce:     cfg.Search.Debounce,
		done:               make(chan struct{}),
	}
	app.keyHandler = NewKeyHandler(app, cfg)
	app.syncState()

	return app
}

// Close stops the controller event pump and any details request.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		close(a.done)
		if a.detailsCancel != nil {
			a.detailsCancel()
		}
	})
}

func (a *App) getRenderer() (*glamour.TermRenderer, error) {
	wordWrapWidth := (a.width * 9) / 10
	if wordWrapWidth > 100 {
		wordWrapWidth = 100
	}
	if wordWrapWidth < 20 {
		wordWrapWidth = 20
	}

	if a.glamourRenderer == nil || a.rendererWidth != wordWrapWidth {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(wordWrapWidth),
		)
		if err != nil {
			return nil, err
		}
		a.glamourRenderer = r
		a.rendererWidth = wordWrapWidth
	}

	return a.glamourRenderer, nil
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(
		a.waitForEvent(),
		a.spinner.Tick,
		textinput.Blink,
	)
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.resize(msg.Width, msg.Height)
		return a, nil

	case tea.KeyMsg:
		return a.keyHandler.HandleKey(msg)

	case controllerEventMsg:
		a.applyEvent(msg.event)
		return a, a.waitForEvent()

	case searchDebounceFireMsg:
		if msg.seq == a.searchSeq {
			a.issueSearch(a.pendingSearchQuery)
		}
		return a, nil

	case actionDoneMsg:
		if msg.err != nil {
			a.err = msg.err
			return a, nil
		}
		a.err = nil
		switch msg.result.Kind {
		case render.ActionCopy:
			a.setStatus(MsgCopied(msg.result.Payload), StatusSuccess)
		case render.ActionOpen:
			a.setStatus(MsgOpened(msg.result.Payload), StatusSuccess)
		}
		return a, nil

	case detailsLoadedMsg:
		a.applyDetails(msg)
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case errorMsg:
		a.err = msg.err
		return a, nil
	}

	if a.view == ViewDetails {
		var cmd tea.Cmd
		a.viewport, cmd = a.viewport.Update(msg)
		return a, cmd
	}

	var cmd tea.Cmd
	a.searchInput, cmd = a.searchInput.Update(msg)
	return a, cmd
}

func (a *App) resize(width, height int) {
	a.width = width
	a.height = height

	a.resultList.SetSize(width, max(height-chromeHeight, 3))
	a.viewport.Width = width
	a.viewport.Height = max(height-2, 1)
	a.searchInput.Width = max(width-10, 10)
}

func (a *App) applyEvent(ev query.Event) {
	a.syncState()
	if ev.Kind == query.EventFailed {
		a.err = wrapErr(fmt.Sprintf("search %q", ev.Query), ev.Err)
	}
}

// syncState copies the controller snapshot into the list.
func (a *App) syncState() {
	st := a.ctrl.State()
	a.loading = st.IsLoading
	a.entries = render.Entries(st.Results, a.config.Actions.Primary, a.config.Registry.PackageManager)

	items := make([]list.Item, len(a.entries))
	for i, e := range a.entries {
		items[i] = entryItem{entry: e}
	}
	a.resultList.SetItems(items)
	a.resultList.Title = fmt.Sprintf("› results (%d)", len(items))

	if len(items) == 0 && a.focus == focusResults {
		a.focusInput()
	}
}

func (a *App) issueSearch(text string) {
	a.err = nil
	a.status = ""
	a.ctrl.Search(text)
	a.syncState()
}

func (a *App) focusInput() {
	a.focus = focusInput
	a.searchInput.Focus()
}

func (a *App) focusResults() {
	a.focus = focusResults
	a.searchInput.Blur()
}

func (a *App) setStatus(text string, kind StatusKind) {
	a.status = text
	a.statusKind = kind
}

// selectedEntry is the package the action keys apply to.
func (a *App) selectedEntry() (render.Entry, bool) {
	if a.view == ViewDetails && a.details != nil {
		return *a.details, true
	}
	if item, ok := a.resultList.SelectedItem().(entryItem); ok {
		return item.entry, true
	}
	return render.Entry{}, false
}

func (a *App) View() string {
	var content string
	switch a.view {
	case ViewDetails:
		content = a.detailsView()
	default:
		content = a.searchView()
	}

	separator := SeparatorStyle.Render(strings.Repeat("─", max(a.width-1, 0)))
	return lipgloss.JoinVertical(lipgloss.Top, content, separator, a.statusBar())
}

func (a *App) searchView() string {
	header := renderHeader("› "+AppName, a.config.Registry.BaseURL, a.width)
	input := renderInputFrame(a.searchInput.View(), a.focus == focusInput, a.searchInput.Width)

	var summary string
	switch {
	case a.loading:
		summary = a.spinner.View() + " " + renderMuted(MsgSearching)
	default:
		summary = renderMuted(MsgResultsCount(len(a.entries)))
	}

	listHeight := max(a.height-chromeHeight, 3)
	body := a.resultList.View()
	if len(a.entries) == 0 && !a.loading {
		body = renderCentered(a.width, listHeight, GetCompactBanner(MsgNoResults))
	}

	return lipgloss.NewStyle().
		Width(a.width).
		Height(max(a.height-2, 0)).
		MaxHeight(max(a.height-2, 0)).
		Render(lipgloss.JoinVertical(lipgloss.Top, header, "", input, summary, "", body))
}

func (a *App) detailsView() string {
	if a.loadingDetails {
		return renderCentered(a.width, max(a.height-2, 1), a.spinner.View()+" "+renderMuted(MsgLoadingDetails))
	}
	return a.viewport.View()
}

func (a *App) statusBar() string {
	style := lipgloss.NewStyle().Width(a.width).Padding(0, 1)

	if a.err != nil {
		return style.Render(ErrorMessageStyle.Render(fmt.Sprintf("✗ %v", a.err)))
	}
	if a.status != "" {
		return style.Render(renderStatus(a.status, a.statusKind))
	}

	commands := a.keyHandler.GetHelpForCurrentView()
	return style.Render(renderHelp(strings.Join(commands, " • ")))
}

type entryItem struct {
	entry render.Entry
}

func (i entryItem) Title() string { return i.entry.Name }

func (i entryItem) Description() string {
	p := i.entry.Primary()
	return singleLine(p.Title + ": " + truncateMiddle(p.Payload, 60))
}

func (i entryItem) FilterValue() string { return i.entry.Name }

type controllerEventMsg struct {
	event query.Event
}

type searchDebounceFireMsg struct {
	seq int
}

type actionDoneMsg struct {
	result actions.Result
	err    error
}

type detailsLoadedMsg struct {
	name    string
	content string
	err     error
}

type errorMsg struct {
	err error
}
