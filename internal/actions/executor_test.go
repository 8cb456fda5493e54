package actions

import (
	"errors"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/pubsearch/internal/config"
	"github.com/pders01/pubsearch/internal/render"
)

type recorder struct {
	copied []string
	argv   [][]string
}

func newTestExecutor(t *testing.T, opener string) (*Executor, *recorder) {
	t.Helper()
	cfg := config.TestConfig()
	cfg.Browser.Opener = opener

	rec := &recorder{}
	e := NewExecutor(cfg)
	e.clipboard = func(s string) error {
		rec.copied = append(rec.copied, s)
		return nil
	}
	e.command = func(name string, args ...string) *exec.Cmd {
		rec.argv = append(rec.argv, append([]string{name}, args...))
		return exec.Command("true")
	}
	return e, rec
}

func TestExecutor_Copy(t *testing.T) {
	e, rec := newTestExecutor(t, "xdg-open")

	res, err := e.Run(render.Action{Kind: render.ActionCopy, Payload: "flutter pub add http"})
	require.NoError(t, err)
	assert.Equal(t, render.ActionCopy, res.Kind)
	assert.Equal(t, []string{"flutter pub add http"}, rec.copied)
	assert.Empty(t, rec.argv)
}

func TestExecutor_CopyFailure(t *testing.T) {
	e, _ := newTestExecutor(t, "xdg-open")
	e.clipboard = func(string) error { return ErrClipboardUnavailable }

	_, err := e.Run(render.Action{Kind: render.ActionCopy, Payload: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrClipboardUnavailable))
}

func TestExecutor_Open(t *testing.T) {
	tests := []struct {
		name     string
		opener   string
		wantArgv []string
	}{
		{
			name:     "plain opener",
			opener:   "xdg-open",
			wantArgv: []string{"xdg-open", "https://pub.dev/api/packages/http"},
		},
		{
			name:     "opener with flags",
			opener:   "firefox --new-tab",
			wantArgv: []string{"firefox", "--new-tab", "https://pub.dev/api/packages/http"},
		},
		{
			name:     "windows start builtin",
			opener:   "start",
			wantArgv: []string{"cmd", "/c", "start", "", "https://pub.dev/api/packages/http"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, rec := newTestExecutor(t, tt.opener)

			res, err := e.Run(render.Action{Kind: render.ActionOpen, Payload: "https://pub.dev/api/packages/http"})
			require.NoError(t, err)
			assert.Equal(t, render.ActionOpen, res.Kind)
			require.Len(t, rec.argv, 1)
			assert.Equal(t, tt.wantArgv, rec.argv[0])
			assert.Empty(t, rec.copied)
		})
	}
}

func TestExecutor_OpenStartFailure(t *testing.T) {
	e, _ := newTestExecutor(t, "xdg-open")
	e.command = func(name string, args ...string) *exec.Cmd {
		return exec.Command("/nonexistent/pubsearch-opener")
	}

	_, err := e.Run(render.Action{Kind: render.ActionOpen, Payload: "https://pub.dev"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start xdg-open")
}

func TestExecutor_NoOpener(t *testing.T) {
	e, _ := newTestExecutor(t, "xdg-open")
	e.opener = ""

	_, err := e.Run(render.Action{Kind: render.ActionOpen, Payload: "https://pub.dev"})
	require.Error(t, err)
}

func TestExecutor_UnknownAction(t *testing.T) {
	e, _ := newTestExecutor(t, "xdg-open")

	_, err := e.Run(render.Action{Kind: render.ActionKind(42)})
	require.Error(t, err)
}

func TestFindCommand(t *testing.T) {
	assert.Equal(t, "", findCommand())
	assert.Equal(t, "", findCommand("definitely-not-a-real-command-xyz"))
	assert.Equal(t, "start", findCommand("start"))
}
