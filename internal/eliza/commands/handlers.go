package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bdobrica/Eliza/internal/eliza/session"
	"github.com/bdobrica/Eliza/internal/eliza/store"
)

// ScriptLibrary is the part of the store the commands read.
type ScriptLibrary interface {
	LatestScript(ctx context.Context, name string) (*store.ScriptVersion, error)
	ListScripts(ctx context.Context, name string) ([]*store.ScriptVersion, error)
}

// Handlers implements the built-in commands.
type Handlers struct {
	Sessions *session.Manager
	// Library may be nil when no database is configured.
	Library ScriptLibrary
	// LibraryName is the name under which the running script is stored.
	LibraryName string
}

// Register installs every built-in command on r.
func (h *Handlers) Register(r *Router) {
	r.Register("help", h.HandleHelp(r))
	r.Register("reset", h.HandleReset)
	r.Register("bye", h.HandleBye)
	r.Register("script", h.HandleScript)
	r.Register("scripts", h.HandleScripts)
}

// HandleHelp lists the commands.
func (h *Handlers) HandleHelp(r *Router) Handler {
	return func(ctx context.Context, cmd *Command, req Request) (string, error) {
		var b strings.Builder
		fmt.Fprintf(&b, "Commands:\n")
		fmt.Fprintf(&b, "  %s help            show this message\n", r.Prefix())
		fmt.Fprintf(&b, "  %s reset           forget this conversation and start over\n", r.Prefix())
		fmt.Fprintf(&b, "  %s bye             end this conversation\n", r.Prefix())
		fmt.Fprintf(&b, "  %s script          show the running script\n", r.Prefix())
		fmt.Fprintf(&b, "  %s scripts [name]  list stored script versions\n", r.Prefix())
		b.WriteString("Anything else is said to Eliza.")
		return b.String(), nil
	}
}

// HandleReset restarts the caller's conversation.
func (h *Handlers) HandleReset(ctx context.Context, cmd *Command, req Request) (string, error) {
	if !h.Sessions.Reset(req.Key) {
		return "There is no conversation to reset.", nil
	}
	return "Conversation reset. Memory cleared.", nil
}

// HandleBye ends the caller's conversation and returns the script's closing
// message.
func (h *Handlers) HandleBye(ctx context.Context, cmd *Command, req Request) (string, error) {
	info, ok := h.Sessions.End(req.Key)
	if !ok {
		return "There is no conversation to end.", nil
	}
	return info.Final, nil
}

// HandleScript describes the script new conversations start with.
func (h *Handlers) HandleScript(ctx context.Context, cmd *Command, req Request) (string, error) {
	s := h.Sessions.Script()
	if s == nil {
		return "No script is loaded; replies come from the built-in defaults.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Script %s: %d keys, %d patterns, memory %d",
		s.Name, len(s.Rules()), s.DecompositionCount(), s.MemorySize())

	if h.Library != nil {
		v, err := h.Library.LatestScript(ctx, h.LibraryName)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return "", fmt.Errorf("look up script version: %w", err)
		default:
			fmt.Fprintf(&b, "\nStored as %s v%d (%s, %s)", v.Name, v.Version, shortHash(v.Hash),
				v.CreatedAt.Format("2006-01-02 15:04 MST"))
		}
	}
	if info, ok := h.Sessions.Get(req.Key); ok && info.Script != s.Name {
		fmt.Fprintf(&b, "\nYour conversation still runs %s; %s reset to switch.", info.Script, DefaultPrefix)
	}
	return b.String(), nil
}

// HandleScripts lists the stored versions of a script, newest first.
func (h *Handlers) HandleScripts(ctx context.Context, cmd *Command, req Request) (string, error) {
	if h.Library == nil {
		return "The script library is disabled.", nil
	}
	name := h.LibraryName
	if cmd.Subcommand != "" {
		name = cmd.Subcommand
	}

	versions, err := h.Library.ListScripts(ctx, name)
	if err != nil {
		return "", fmt.Errorf("list scripts: %w", err)
	}
	if len(versions) == 0 {
		return fmt.Sprintf("No stored versions of %q.", name), nil
	}

	limit := 10
	var b strings.Builder
	fmt.Fprintf(&b, "Versions of %s:", name)
	for i, v := range versions {
		if i == limit {
			fmt.Fprintf(&b, "\n  ... %d older", len(versions)-limit)
			break
		}
		by := v.CreatedBy
		if by == "" {
			by = "-"
		}
		fmt.Fprintf(&b, "\n  v%d  %s  %s  %s  %s", v.Version, shortHash(v.Hash), v.Format,
			v.CreatedAt.Format("2006-01-02 15:04"), by)
	}
	return b.String(), nil
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
