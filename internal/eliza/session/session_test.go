package session_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/bdobrica/Eliza/internal/eliza/engine"
	"github.com/bdobrica/Eliza/internal/eliza/script"
	"github.com/bdobrica/Eliza/internal/eliza/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testScript = `
initial: Hello.
final: Goodbye.
quit: bye

key: xnone
  decomp: *
    reasmb: Go on.

key: mother
  decomp: * mother *
    reasmb: Tell me about your family.
`

func mustScript(t *testing.T, src, name string) *script.Script {
	t.Helper()
	s, err := script.ParseString(src, name)
	if err != nil {
		t.Fatalf("parse script: %v", err)
	}
	return s
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 2, 24, 10, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type event struct {
	Kind   string
	Key    string
	Detail string
}

type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) SessionStarted(i session.Info) {
	r.add(event{"started", i.Key, i.Script})
}

func (r *recorder) SessionEnded(i session.Info, reason session.EndReason) {
	r.add(event{"ended", i.Key, string(reason)})
}

func (r *recorder) TurnCompleted(i session.Info, o engine.Outcome) {
	r.add(event{"turn", i.Key, string(o)})
}

func (r *recorder) add(e event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) Events() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event(nil), r.events...)
}

func TestManager_TurnStartsSession(t *testing.T) {
	m := session.New(mustScript(t, testScript, "test"), session.Config{})

	first, err := m.Turn("web:1:alice", "my mother is nice")
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if first.Greeting != "Hello." {
		t.Errorf("Greeting: got %q, want %q", first.Greeting, "Hello.")
	}
	if first.Reply.Text != "Tell me about your family." || first.Reply.Outcome != engine.OutcomeRule {
		t.Errorf("Reply: got %+v", first.Reply)
	}
	if first.Session.ID == "" || first.Session.Turns != 1 || first.Session.Script != "test" {
		t.Errorf("Session: got %+v", first.Session)
	}

	second, err := m.Turn("web:1:alice", "hmm")
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if second.Greeting != "" {
		t.Errorf("second turn should not greet, got %q", second.Greeting)
	}
	if second.Session.ID != first.Session.ID {
		t.Errorf("expected same session ID %q, got %q", first.Session.ID, second.Session.ID)
	}
	if second.Session.Turns != 2 {
		t.Errorf("Turns: got %d, want 2", second.Session.Turns)
	}
	if m.Len() != 1 {
		t.Errorf("Len: got %d, want 1", m.Len())
	}
}

func TestManager_QuitEndsSession(t *testing.T) {
	rec := &recorder{}
	m := session.New(mustScript(t, testScript, "test"), session.Config{}, session.WithObserver(rec))

	first, _ := m.Turn("k", "hello there")
	quit, err := m.Turn("k", "Bye!")
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if !quit.Ended || quit.Reply.Text != "Goodbye." || quit.Reply.Outcome != engine.OutcomeQuit {
		t.Errorf("quit turn: got %+v", quit)
	}
	if m.Len() != 0 {
		t.Errorf("Len after quit: got %d, want 0", m.Len())
	}

	again, _ := m.Turn("k", "hello again")
	if again.Greeting == "" {
		t.Error("a new session should greet")
	}
	if again.Session.ID == first.Session.ID {
		t.Error("a new session should get a new ID")
	}

	want := []event{
		{"started", "k", "test"},
		{"turn", "k", "default"},
		{"turn", "k", "quit"},
		{"ended", "k", "quit"},
		{"started", "k", "test"},
		{"turn", "k", "default"},
	}
	if diff := cmp.Diff(want, rec.Events()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestManager_Open(t *testing.T) {
	m := session.New(mustScript(t, testScript, "test"), session.Config{})

	info, greeting, err := m.Open("k")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if greeting != "Hello." {
		t.Errorf("greeting: got %q", greeting)
	}

	again, greeting, err := m.Open("k")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if greeting != "" || again.ID != info.ID {
		t.Errorf("second Open: got %q / %q", greeting, again.ID)
	}

	turn, _ := m.Turn("k", "mother")
	if turn.Greeting != "" {
		t.Error("a turn on an opened session should not greet")
	}
}

func TestManager_MaxSessions(t *testing.T) {
	m := session.New(mustScript(t, testScript, "test"), session.Config{MaxSessions: 1})

	if _, err := m.Turn("a", "hi"); err != nil {
		t.Fatalf("first session: %v", err)
	}
	if _, err := m.Turn("b", "hi"); !errors.Is(err, session.ErrTooManySessions) {
		t.Errorf("second session: got %v, want ErrTooManySessions", err)
	}
	if _, err := m.Turn("a", "still here"); err != nil {
		t.Errorf("existing session should keep working: %v", err)
	}
}

func TestManager_SealExpired(t *testing.T) {
	clk := newClock()
	rec := &recorder{}
	m := session.New(mustScript(t, testScript, "test"),
		session.Config{Cooldown: 15 * time.Minute},
		session.WithClock(clk.Now), session.WithObserver(rec))

	m.Turn("old", "hi")
	clk.Advance(10 * time.Minute)
	m.Turn("new", "hi")
	clk.Advance(6 * time.Minute)

	expired := m.SealExpired(clk.Now())
	if len(expired) != 1 || expired[0].Key != "old" {
		t.Fatalf("SealExpired: got %+v", expired)
	}
	if expired[0].Final != "Goodbye." {
		t.Errorf("Final: got %q", expired[0].Final)
	}
	if _, ok := m.Get("old"); ok {
		t.Error("expired session should be gone")
	}
	if _, ok := m.Get("new"); !ok {
		t.Error("recent session should remain")
	}

	events := rec.Events()
	if last := events[len(events)-1]; last != (event{"ended", "old", "expired"}) {
		t.Errorf("last event: got %+v", last)
	}
}

func TestManager_SetScript(t *testing.T) {
	m := session.New(mustScript(t, testScript, "v1"), session.Config{})
	m.Turn("old", "hi")

	m.SetScript(mustScript(t, "initial: Welcome.\nkey: xnone\n  decomp: *\n    reasmb: Indeed.\n", "v2"))
	if m.Script().Name != "v2" {
		t.Errorf("Script: got %q", m.Script().Name)
	}

	old, _ := m.Turn("old", "hi")
	if old.Session.Script != "v1" || old.Reply.Text != "Go on." {
		t.Errorf("running session should keep v1, got %q / %q", old.Session.Script, old.Reply.Text)
	}
	fresh, _ := m.Turn("new", "hi")
	if fresh.Session.Script != "v2" || fresh.Greeting != "Welcome." || fresh.Reply.Text != "Indeed." {
		t.Errorf("new session should use v2, got %+v", fresh)
	}
}

func TestManager_ResetAndEnd(t *testing.T) {
	m := session.New(mustScript(t, testScript, "test"), session.Config{})

	if m.Reset("missing") {
		t.Error("Reset of unknown key should report false")
	}
	if _, ok := m.End("missing"); ok {
		t.Error("End of unknown key should report false")
	}

	first, _ := m.Turn("k", "hi")
	if !m.Reset("k") {
		t.Error("Reset should report true")
	}
	after, _ := m.Turn("k", "hi")
	if after.Session.ID != first.Session.ID {
		t.Error("Reset must keep the session")
	}

	info, ok := m.End("k")
	if !ok || info.ID != first.Session.ID {
		t.Errorf("End: got %+v, %v", info, ok)
	}
	if m.Len() != 0 {
		t.Errorf("Len after End: got %d", m.Len())
	}
}

func TestManager_Close(t *testing.T) {
	rec := &recorder{}
	m := session.New(mustScript(t, testScript, "test"), session.Config{}, session.WithObserver(rec))
	m.Turn("k", "hi")

	m.Close()
	m.Close()

	if _, err := m.Turn("k", "hi"); !errors.Is(err, session.ErrClosed) {
		t.Errorf("Turn after Close: got %v, want ErrClosed", err)
	}
	if _, _, err := m.Open("k"); !errors.Is(err, session.ErrClosed) {
		t.Errorf("Open after Close: got %v, want ErrClosed", err)
	}
	events := rec.Events()
	if last := events[len(events)-1]; last != (event{"ended", "k", "shutdown"}) {
		t.Errorf("last event: got %+v", last)
	}
}

func TestManager_NilScriptUsesDefaults(t *testing.T) {
	m := session.New(nil, session.Config{})
	turn, err := m.Turn("k", "anything")
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if turn.Greeting != engine.DefaultInitial || turn.Reply.Text != engine.DefaultNoMatch {
		t.Errorf("got %+v", turn)
	}
}

func TestManager_Sessions(t *testing.T) {
	clk := newClock()
	m := session.New(mustScript(t, testScript, "test"), session.Config{}, session.WithClock(clk.Now))
	for _, k := range []string{"c", "a", "b"} {
		m.Turn(k, "hi")
		clk.Advance(time.Second)
	}
	var keys []string
	for _, info := range m.Sessions() {
		keys = append(keys, info.Key)
	}
	if diff := cmp.Diff([]string{"c", "a", "b"}, keys); diff != "" {
		t.Errorf("Sessions order (-want +got):\n%s", diff)
	}
}

func TestManager_ConcurrentTurns(t *testing.T) {
	m := session.New(mustScript(t, testScript, "test"), session.Config{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("user-%d", i)
			for j := 0; j < 20; j++ {
				if _, err := m.Turn(key, "my mother"); err != nil {
					t.Errorf("Turn: %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	for _, info := range m.Sessions() {
		if info.Turns != 20 {
			t.Errorf("%s: got %d turns, want 20", info.Key, info.Turns)
		}
	}
}

func TestManager_Sweep(t *testing.T) {
	clk := newClock()
	m := session.New(mustScript(t, testScript, "test"),
		session.Config{Cooldown: time.Minute}, session.WithClock(clk.Now))
	m.Turn("idle", "hi")
	clk.Advance(2 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	expired := make(chan session.Info, 1)
	done := make(chan error, 1)
	go func() {
		done <- m.Sweep(ctx, 5*time.Millisecond, func(i session.Info) { expired <- i })
	}()

	select {
	case info := <-expired:
		if info.Key != "idle" {
			t.Errorf("expired key: got %q", info.Key)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not expire the idle session")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Sweep returned %v", err)
	}
}
