package commands_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bdobrica/Eliza/internal/eliza/commands"
)

func TestParseCommand_Basic(t *testing.T) {
	router := commands.NewRouter("/eliza")

	tests := []struct {
		input     string
		wantName  string
		wantSub   string
		wantArgs  []string
		wantFlags map[string]string
		wantErr   bool
	}{
		{
			input:     "/eliza help",
			wantName:  "help",
			wantArgs:  []string{},
			wantFlags: map[string]string{},
		},
		{
			input:     "  /eliza   RESET  ",
			wantName:  "reset",
			wantArgs:  []string{},
			wantFlags: map[string]string{},
		},
		{
			input:     "/eliza scripts doctor",
			wantName:  "scripts",
			wantSub:   "doctor",
			wantArgs:  []string{},
			wantFlags: map[string]string{},
		},
		{
			input:     "/eliza scripts doctor extra --limit 5",
			wantName:  "scripts",
			wantSub:   "doctor",
			wantArgs:  []string{"extra"},
			wantFlags: map[string]string{"limit": "5"},
		},
		{
			input:     "/eliza script --verbose",
			wantName:  "script",
			wantArgs:  []string{},
			wantFlags: map[string]string{"verbose": "true"},
		},
		{
			input:     "/eliza script --format=yaml",
			wantName:  "script",
			wantArgs:  []string{},
			wantFlags: map[string]string{"format": "yaml"},
		},
		{
			input:   "/eliza",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			cmd, err := router.Parse(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", cmd)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if cmd.Name != tt.wantName {
				t.Errorf("Name: got %q, want %q", cmd.Name, tt.wantName)
			}
			if cmd.Subcommand != tt.wantSub {
				t.Errorf("Subcommand: got %q, want %q", cmd.Subcommand, tt.wantSub)
			}
			if diff := cmp.Diff(tt.wantArgs, cmd.Args); diff != "" {
				t.Errorf("Args (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantFlags, cmd.Flags); diff != "" {
				t.Errorf("Flags (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseCommand_NotACommand(t *testing.T) {
	router := commands.NewRouter("")

	for _, text := range []string{"hello", "I am sad", "/elizabeth is my name", ""} {
		if _, err := router.Parse(text); !errors.Is(err, commands.ErrNotACommand) {
			t.Errorf("Parse(%q): got %v, want ErrNotACommand", text, err)
		}
		if router.IsCommand(text) {
			t.Errorf("IsCommand(%q) = true", text)
		}
	}
	if !router.IsCommand("/eliza") {
		t.Error("a bare prefix is a (malformed) command")
	}
}

func TestRoute(t *testing.T) {
	router := commands.NewRouter("/eliza")

	var gotKey string
	router.Register("scripts", func(ctx context.Context, cmd *commands.Command, req commands.Request) (string, error) {
		gotKey = req.Key
		return "list " + cmd.Subcommand, nil
	})
	router.Register("scripts.prune", func(ctx context.Context, cmd *commands.Command, req commands.Request) (string, error) {
		return "prune", nil
	})

	req := commands.Request{Key: "web:1:alice", Sender: "alice"}

	out, err := router.Route(context.Background(), "/eliza scripts doctor", req)
	if err != nil || out != "list doctor" {
		t.Errorf("Route fallback: got %q, %v", out, err)
	}
	if gotKey != "web:1:alice" {
		t.Errorf("request key: got %q", gotKey)
	}

	out, err = router.Route(context.Background(), "/eliza scripts prune", req)
	if err != nil || out != "prune" {
		t.Errorf("Route subcommand: got %q, %v", out, err)
	}

	if _, err := router.Route(context.Background(), "/eliza dance", req); !errors.Is(err, commands.ErrUnknownCommand) {
		t.Errorf("Route unknown: got %v, want ErrUnknownCommand", err)
	}

	if diff := cmp.Diff([]string{"scripts", "scripts.prune"}, router.Commands()); diff != "" {
		t.Errorf("Commands (-want +got):\n%s", diff)
	}
}
