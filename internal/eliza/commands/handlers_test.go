package commands_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bdobrica/Eliza/internal/eliza/commands"
	"github.com/bdobrica/Eliza/internal/eliza/script"
	"github.com/bdobrica/Eliza/internal/eliza/session"
	"github.com/bdobrica/Eliza/internal/eliza/store"
)

const testScript = `
initial: Hello.
final: Goodbye.
key: xnone
  decomp: *
    reasmb: Go on.
`

func newFixture(t *testing.T, withStore bool) (*commands.Router, *session.Manager, *store.Store) {
	t.Helper()
	s, err := script.ParseString(testScript, "test")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	sessions := session.New(s, session.Config{})

	h := &commands.Handlers{Sessions: sessions, LibraryName: "test"}
	var st *store.Store
	if withStore {
		st, err = store.New(filepath.Join(t.TempDir(), "eliza.db"))
		if err != nil {
			t.Fatalf("store: %v", err)
		}
		t.Cleanup(func() { st.Close() })
		h.Library = st
	}
	r := commands.NewRouter(commands.DefaultPrefix)
	h.Register(r)
	return r, sessions, st
}

func route(t *testing.T, r *commands.Router, text, key string) string {
	t.Helper()
	out, err := r.Route(context.Background(), text, commands.Request{Key: key, Sender: "alice"})
	if err != nil {
		t.Fatalf("Route(%q): %v", text, err)
	}
	return out
}

func TestHandleHelp(t *testing.T) {
	r, _, _ := newFixture(t, false)
	out := route(t, r, "/eliza help", "k")
	for _, want := range []string{"/eliza reset", "/eliza bye", "/eliza scripts"} {
		if !strings.Contains(out, want) {
			t.Errorf("help should mention %q:\n%s", want, out)
		}
	}
}

func TestHandleResetAndBye(t *testing.T) {
	r, sessions, _ := newFixture(t, false)

	if out := route(t, r, "/eliza reset", "k"); !strings.Contains(out, "no conversation") {
		t.Errorf("reset without session: got %q", out)
	}

	sessions.Turn("k", "hi")
	if out := route(t, r, "/eliza reset", "k"); !strings.Contains(out, "reset") {
		t.Errorf("reset: got %q", out)
	}
	if out := route(t, r, "/eliza bye", "k"); out != "Goodbye." {
		t.Errorf("bye: got %q, want the script's final", out)
	}
	if sessions.Len() != 0 {
		t.Error("bye should end the session")
	}
	if out := route(t, r, "/eliza bye", "k"); !strings.Contains(out, "no conversation") {
		t.Errorf("second bye: got %q", out)
	}
}

func TestHandleScript(t *testing.T) {
	r, _, st := newFixture(t, true)

	out := route(t, r, "/eliza script", "k")
	if !strings.HasPrefix(out, "Script test: 1 keys, 1 patterns, memory 8") {
		t.Errorf("script: got %q", out)
	}
	if strings.Contains(out, "Stored as") {
		t.Errorf("nothing stored yet, got %q", out)
	}

	if _, _, err := st.SaveScript(context.Background(), "test", store.FormatText, testScript, "cli"); err != nil {
		t.Fatalf("SaveScript: %v", err)
	}
	out = route(t, r, "/eliza script", "k")
	if !strings.Contains(out, "Stored as test v1") {
		t.Errorf("script after save: got %q", out)
	}
}

func TestHandleScripts(t *testing.T) {
	r, _, st := newFixture(t, true)
	ctx := context.Background()

	if out := route(t, r, "/eliza scripts", "k"); !strings.Contains(out, "No stored versions") {
		t.Errorf("empty library: got %q", out)
	}

	st.SaveScript(ctx, "test", store.FormatText, "a", "cli")
	st.SaveScript(ctx, "test", store.FormatText, "b", "")
	st.SaveScript(ctx, "other", store.FormatYAML, "c", "")

	out := route(t, r, "/eliza scripts", "k")
	if !strings.Contains(out, "v2") || !strings.Contains(out, "v1") || strings.Index(out, "v2") > strings.Index(out, "v1") {
		t.Errorf("versions newest first: got %q", out)
	}
	out = route(t, r, "/eliza scripts other", "k")
	if !strings.Contains(out, "Versions of other") || !strings.Contains(out, "yaml") {
		t.Errorf("named listing: got %q", out)
	}
}

func TestHandleScripts_NoLibrary(t *testing.T) {
	r, _, _ := newFixture(t, false)
	if out := route(t, r, "/eliza scripts", "k"); !strings.Contains(out, "disabled") {
		t.Errorf("got %q", out)
	}
}
