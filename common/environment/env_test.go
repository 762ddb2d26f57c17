package environment_test

import (
	"testing"
	"time"

	"github.com/bdobrica/Eliza/common/environment"
)

func TestString(t *testing.T) {
	t.Setenv("TEST_GREETING", "hello")
	env := environment.New("TEST_")

	got := "default"
	env.String("GREETING", &got)
	if got != "hello" {
		t.Errorf("expected %q, got %q", "hello", got)
	}

	kept := "default"
	env.String("MISSING", &kept)
	if kept != "default" {
		t.Errorf("unset variable changed the value to %q", kept)
	}
}

func TestEmptyLeavesValue(t *testing.T) {
	t.Setenv("TEST_EMPTY", "  ")
	n := 7
	if err := environment.New("TEST_").Int("EMPTY", &n); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 7 {
		t.Errorf("expected 7, got %d", n)
	}
}

func TestTypedOverlays(t *testing.T) {
	env := environment.FromMap("APP_", map[string]string{
		"APP_PORT":    "8080",
		"APP_DEBUG":   "true",
		"APP_TIMEOUT": "90s",
		"APP_ROOMS":   " !a:x , ,!b:x ",
	})

	var port int
	var debug bool
	var timeout time.Duration
	var rooms []string
	if err := env.Int("PORT", &port); err != nil {
		t.Fatal(err)
	}
	if err := env.Bool("DEBUG", &debug); err != nil {
		t.Fatal(err)
	}
	if err := env.Duration("TIMEOUT", &timeout); err != nil {
		t.Fatal(err)
	}
	env.StringSlice("ROOMS", &rooms)

	if port != 8080 {
		t.Errorf("port: expected 8080, got %d", port)
	}
	if !debug {
		t.Error("debug: expected true")
	}
	if timeout != 90*time.Second {
		t.Errorf("timeout: expected 90s, got %v", timeout)
	}
	if len(rooms) != 2 || rooms[0] != "!a:x" || rooms[1] != "!b:x" {
		t.Errorf("rooms: got %q", rooms)
	}
}

func TestInvalidValues(t *testing.T) {
	env := environment.FromMap("APP_", map[string]string{
		"APP_PORT":    "eighty",
		"APP_DEBUG":   "sometimes",
		"APP_TIMEOUT": "soon",
	})

	port := 1
	if err := env.Int("PORT", &port); err == nil {
		t.Error("expected error for a non-integer")
	}
	if port != 1 {
		t.Errorf("a failed overlay changed the value to %d", port)
	}
	var debug bool
	if err := env.Bool("DEBUG", &debug); err == nil {
		t.Error("expected error for a non-boolean")
	}
	var timeout time.Duration
	if err := env.Duration("TIMEOUT", &timeout); err == nil {
		t.Error("expected error for a non-duration")
	}
}
