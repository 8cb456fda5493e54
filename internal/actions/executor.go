package actions

import (
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/atotto/clipboard"

	"github.com/pders01/pubsearch/internal/config"
	"github.com/pders01/pubsearch/internal/debuglog"
	"github.com/pders01/pubsearch/internal/render"
)

var ErrClipboardUnavailable = errors.New("clipboard unavailable")

// Result describes what Run did, for the status bar.
type Result struct {
	Kind    render.ActionKind
	Payload string
}

type Executor struct {
	opener    string
	clipboard func(string) error
	command   func(name string, args ...string) *exec.Cmd
}

func NewExecutor(cfg *config.Config) *Executor {
	opener := strings.TrimSpace(cfg.Browser.Opener)
	if opener == "" {
		opener = findCommand(defaultOpeners()...)
	}

	return &Executor{
		opener:    opener,
		clipboard: writeClipboard,
		command:   exec.Command,
	}
}

func writeClipboard(text string) error {
	if clipboard.Unsupported {
		return ErrClipboardUnavailable
	}
	return clipboard.WriteAll(text)
}

func (e *Executor) Opener() string {
	return e.opener
}

func (e *Executor) Run(action render.Action) (Result, error) {
	switch action.Kind {
	case render.ActionCopy:
		if err := e.clipboard(action.Payload); err != nil {
			return Result{}, fmt.Errorf("copying to clipboard: %w", err)
		}
		debuglog.Infof("copied %q to clipboard", action.Payload)
	case render.ActionOpen:
		if err := e.open(action.Payload); err != nil {
			return Result{}, err
		}
		debuglog.Infof("opened %s with %s", action.Payload, e.opener)
	default:
		return Result{}, fmt.Errorf("unknown action %s", action.Kind)
	}
	return Result{Kind: action.Kind, Payload: action.Payload}, nil
}

func (e *Executor) open(target string) error {
	if e.opener == "" {
		return fmt.Errorf("no application found to open URL")
	}

	name, args := openerCommand(e.opener, target)
	cmd := e.command(name, args...)

	// Start GUI applications detached
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", e.opener, err)
	}

	go func() {
		_ = cmd.Wait()
	}()

	return nil
}

// openerCommand splits a configured opener like "firefox --new-tab" into
// argv. "start" is a cmd.exe builtin and needs a shell.
func openerCommand(opener, target string) (string, []string) {
	fields := strings.Fields(opener)
	if len(fields) == 1 && fields[0] == "start" {
		return "cmd", []string{"/c", "start", "", target}
	}
	return fields[0], append(fields[1:], target)
}

func defaultOpeners() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"open"}
	case "windows":
		return []string{"start"}
	default:
		return []string{"xdg-open", "gio", "sensible-browser"}
	}
}

func findCommand(commands ...string) string {
	for _, cmd := range commands {
		if cmd == "start" {
			return cmd
		}
		if _, err := exec.LookPath(cmd); err == nil {
			return cmd
		}
	}
	return ""
}
