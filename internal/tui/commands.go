package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pders01/pubsearch/internal/registry"
	"github.com/pders01/pubsearch/internal/render"
)

// waitForEvent blocks on the controller and hands one event to Update, which
// re-arms it. It returns nil once the app is closed.
func (a *App) waitForEvent() tea.Cmd {
	events := a.ctrl.Events()
	done := a.done
	return func() tea.Msg {
		select {
		case ev := <-events:
			return controllerEventMsg{event: ev}
		case <-done:
			return nil
		}
	}
}

func (a *App) runAction(action render.Action) tea.Cmd {
	runner := a.runner
	return func() tea.Msg {
		res, err := runner.Run(action)
		return actionDoneMsg{result: res, err: err}
	}
}

// showDetails switches to the details pane and fetches the package.
func (a *App) showDetails(entry render.Entry) tea.Cmd {
	if a.detailsCancel != nil {
		a.detailsCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.detailsCancel = cancel
	a.details = &entry
	a.view = ViewDetails
	a.loadingDetails = true
	a.err = nil
	a.status = ""
	a.viewport.SetContent("")

	r, err := a.getRenderer()
	if err != nil {
		a.loadingDetails = false
		return func() tea.Msg { return errorMsg{err: wrapErr("initializing renderer", err)} }
	}

	fetcher := a.fetcher
	packageManager := a.config.Registry.PackageManager
	return func() tea.Msg {
		pkg, err := fetcher.Package(ctx, entry.Name)
		if err != nil {
			return detailsLoadedMsg{name: entry.Name, err: wrapErr("loading "+entry.Name, err)}
		}

		rendered, err := r.Render(detailsMarkdown(pkg, entry, packageManager))
		if err != nil {
			return detailsLoadedMsg{name: entry.Name, err: wrapErr("rendering "+entry.Name, err)}
		}
		return detailsLoadedMsg{name: entry.Name, content: rendered}
	}
}

func (a *App) applyDetails(msg detailsLoadedMsg) {
	if a.view != ViewDetails || a.details == nil || a.details.Name != msg.name {
		return
	}
	if errors.Is(msg.err, context.Canceled) {
		return
	}

	a.loadingDetails = false
	if msg.err != nil {
		a.err = msg.err
		a.viewport.SetContent(renderMuted("Package details unavailable."))
		return
	}
	a.viewport.SetContent(msg.content)
	a.viewport.GotoTop()
}

func (a *App) closeDetails() {
	if a.detailsCancel != nil {
		a.detailsCancel()
		a.detailsCancel = nil
	}
	a.view = ViewSearch
	a.details = nil
	a.loadingDetails = false
}

func detailsMarkdown(pkg *registry.Package, entry render.Entry, packageManager string) string {
	var b strings.Builder
	latest := pkg.Latest

	fmt.Fprintf(&b, "# %s\n\n", pkg.Name)

	if latest.Version != "" {
		fmt.Fprintf(&b, "**%s**", latest.Version)
		if published := formatPublished(latest.Published); published != "" {
			fmt.Fprintf(&b, " · published %s", published)
		}
		b.WriteString("\n\n")
	}

	if desc := strings.TrimSpace(latest.Pubspec.Description); desc != "" {
		b.WriteString(desc + "\n\n")
	}

	links := []struct{ label, url string }{
		{"Homepage", latest.Pubspec.Homepage},
		{"Repository", latest.Pubspec.Repository},
		{"Documentation", latest.Pubspec.Documentation},
		{"API", entry.URL},
	}
	for _, l := range links {
		if l.url != "" {
			fmt.Fprintf(&b, "- **%s:** %s\n", l.label, l.url)
		}
	}

	b.WriteString("\n## Install\n\n")
	b.WriteString("```sh\n" + render.InstallCommand(packageManager, pkg.Name) + "\n```\n")

	return b.String()
}

func formatPublished(raw string) string {
	if raw == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return raw
	}
	return t.Format("Jan 2, 2006")
}
