// Package commands parses and routes "/eliza ..." control messages. Anything
// without the prefix is an utterance for the conversation.
package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// DefaultPrefix marks a control message.
const DefaultPrefix = "/eliza"

// Command represents a parsed command
type Command struct {
	Name       string
	Subcommand string
	Args       []string
	Flags      map[string]string
	RawText    string
}

// ErrNotACommand is returned by Parse when the message does not start with the
// command prefix. Callers should use errors.Is to distinguish this expected
// case from real errors.
var ErrNotACommand = errors.New("not a command (missing prefix)")

// ErrUnknownCommand is returned by Route when no handler is registered.
var ErrUnknownCommand = errors.New("unknown command")

// Request identifies who sent a command.
type Request struct {
	// Key is the caller's conversation key.
	Key    string
	Sender string
}

// Handler is a function that handles a command
type Handler func(ctx context.Context, cmd *Command, req Request) (string, error)

// Router routes commands to handlers
type Router struct {
	handlers map[string]Handler
	prefix   string
}

// NewRouter creates a new command router
func NewRouter(prefix string) *Router {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Router{
		handlers: make(map[string]Handler),
		prefix:   prefix,
	}
}

// Prefix returns the command prefix.
func (r *Router) Prefix() string { return r.prefix }

// Register registers a command handler. command is "name" or
// "name.subcommand".
func (r *Router) Register(command string, handler Handler) {
	r.handlers[command] = handler
}

// Commands returns the registered handler keys, sorted.
func (r *Router) Commands() []string {
	keys := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsCommand reports whether text carries the command prefix.
func (r *Router) IsCommand(text string) bool {
	_, err := r.Parse(text)
	return !errors.Is(err, ErrNotACommand)
}

// Parse parses a message into a command
func (r *Router) Parse(text string) (*Command, error) {
	text = strings.TrimSpace(text)

	// The prefix must be a whole word: "/elizabeth" is an utterance.
	rest, ok := strings.CutPrefix(text, r.prefix)
	if !ok || (rest != "" && rest[0] != ' ' && rest[0] != '\t') {
		return nil, ErrNotACommand
	}

	text = strings.TrimSpace(rest)
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	cmd := &Command{
		Name:    strings.ToLower(parts[0]),
		Args:    []string{},
		Flags:   make(map[string]string),
		RawText: text,
	}
	parts = parts[1:]

	if len(parts) > 0 && !strings.HasPrefix(parts[0], "-") {
		cmd.Subcommand = parts[0]
		parts = parts[1:]
	}

	for i := 0; i < len(parts); i++ {
		part := parts[i]
		if !strings.HasPrefix(part, "--") {
			cmd.Args = append(cmd.Args, part)
			continue
		}
		name := strings.TrimPrefix(part, "--")
		if k, v, ok := strings.Cut(name, "="); ok {
			cmd.Flags[k] = v
			continue
		}
		if i+1 < len(parts) && !strings.HasPrefix(parts[i+1], "--") {
			cmd.Flags[name] = parts[i+1]
			i++
		} else {
			cmd.Flags[name] = "true"
		}
	}
	return cmd, nil
}

// Route parses and routes a command to its handler
func (r *Router) Route(ctx context.Context, text string, req Request) (string, error) {
	cmd, err := r.Parse(text)
	if err != nil {
		return "", err
	}

	handlerKey := cmd.FullCommand()
	handler, ok := r.handlers[cmd.Name+"."+cmd.Subcommand]
	if !ok {
		handler, ok = r.handlers[cmd.Name]
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrUnknownCommand, handlerKey)
		}
	}
	return handler(ctx, cmd, req)
}

// GetFlag returns a flag value with a default
func (c *Command) GetFlag(name, defaultValue string) string {
	if val, ok := c.Flags[name]; ok {
		return val
	}
	return defaultValue
}

// HasFlag checks if a flag is present
func (c *Command) HasFlag(name string) bool {
	_, ok := c.Flags[name]
	return ok
}

// GetArg returns an argument by index
func (c *Command) GetArg(index int) (string, bool) {
	if index < 0 || index >= len(c.Args) {
		return "", false
	}
	return c.Args[index], true
}

// FullCommand returns the full command string
func (c *Command) FullCommand() string {
	if c.Subcommand != "" {
		return c.Name + " " + c.Subcommand
	}
	return c.Name
}
