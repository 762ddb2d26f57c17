// Package gateway is the transport-neutral front door: it turns an incoming
// chat message into either a control command or a conversation turn and
// returns the lines to send back.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bdobrica/Eliza/common/trace"
	"github.com/bdobrica/Eliza/internal/eliza/commands"
	"github.com/bdobrica/Eliza/internal/eliza/engine"
	"github.com/bdobrica/Eliza/internal/eliza/metrics"
	"github.com/bdobrica/Eliza/internal/eliza/observability"
	"github.com/bdobrica/Eliza/internal/eliza/ratelimit"
	"github.com/bdobrica/Eliza/internal/eliza/session"
	"github.com/bdobrica/Eliza/internal/eliza/store"
)

// Replies produced by the gateway itself.
const (
	RateLimitedMessage = "You are talking too fast for me. Please wait a moment."
	BusyMessage        = "I am too busy to talk right now. Please try again later."
)

// Outcomes the gateway adds to the engine's.
const (
	OutcomeCommand     engine.Outcome = "command"
	OutcomeRateLimited engine.Outcome = "rate_limited"
	OutcomeBusy        engine.Outcome = "busy"
	OutcomeGreeting    engine.Outcome = "greeting"
)

// Message is one incoming chat message.
type Message struct {
	// Transport names the surface, e.g. "matrix", "web" or "cli".
	Transport string
	// Room is the transport's conversation space: a Matrix room ID, a
	// WebSocket connection ID.
	Room   string
	Sender string
	Text   string
}

// Key identifies the conversation the message belongs to.
func (m Message) Key() string {
	return m.Transport + ":" + m.Room + ":" + m.Sender
}

// Response is what to send back, one chat message per line.
type Response struct {
	Lines   []string
	Outcome engine.Outcome
	// Ended is true when the conversation is over.
	Ended bool
	// TraceID correlates the response with log lines.
	TraceID string
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithRateLimiter limits how fast a sender may talk. Commands are limited
// as well.
func WithRateLimiter(l *ratelimit.Limiter) Option {
	return func(g *Gateway) { g.limiter = l }
}

// WithMetrics records rate limiting and command usage.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// Auditor records control commands. *store.Store implements it.
type Auditor interface {
	WriteAudit(ctx context.Context, e store.AuditEntry) error
}

// WithAuditor records every command in the audit log.
func WithAuditor(a Auditor) Option {
	return func(g *Gateway) { g.auditor = a }
}

// Gateway dispatches messages. It is safe for concurrent use.
type Gateway struct {
	sessions *session.Manager
	router   *commands.Router
	limiter  *ratelimit.Limiter
	metrics  *metrics.Metrics
	auditor  Auditor
	logger   *slog.Logger

	// routes remembers where each open conversation lives, keyed by
	// Message.Key, so expiry notices can be delivered.
	routes sync.Map
}

// New returns a Gateway over sessions. router may be nil to disable control
// commands.
func New(sessions *session.Manager, router *commands.Router, opts ...Option) *Gateway {
	g := &Gateway{sessions: sessions, router: router, logger: slog.Default()}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Sessions returns the session manager.
func (g *Gateway) Sessions() *session.Manager { return g.sessions }

// Open starts the conversation for msg without an utterance and returns the
// greeting. An already open conversation yields no lines.
func (g *Gateway) Open(ctx context.Context, msg Message) (Response, error) {
	ctx, id := trace.Ensure(ctx)
	logger := observability.WithTrace(ctx, g.logger)

	_, greeting, err := g.sessions.Open(msg.Key())
	if errors.Is(err, session.ErrTooManySessions) {
		logger.Warn("session refused", "key", msg.Key(), "err", err)
		return Response{Lines: []string{BusyMessage}, Outcome: OutcomeBusy, Ended: true, TraceID: id}, nil
	}
	if err != nil {
		return Response{TraceID: id}, fmt.Errorf("open session: %w", err)
	}
	g.routes.Store(msg.Key(), route(msg))
	resp := Response{Outcome: OutcomeGreeting, TraceID: id}
	if greeting != "" {
		resp.Lines = []string{greeting}
	}
	return resp, nil
}

// Handle answers one message.
func (g *Gateway) Handle(ctx context.Context, msg Message) (Response, error) {
	ctx, id := trace.Ensure(ctx)
	logger := observability.WithTrace(ctx, g.logger).With("transport", msg.Transport)

	if g.limiter != nil && !g.limiter.Allow(msg.Transport+":"+msg.Sender) {
		logger.Debug("rate limited", "sender", msg.Sender)
		if g.metrics != nil {
			g.metrics.RateLimited.WithLabelValues(msg.Transport).Inc()
		}
		return Response{Lines: []string{RateLimitedMessage}, Outcome: OutcomeRateLimited, TraceID: id}, nil
	}

	if g.router != nil && g.router.IsCommand(msg.Text) {
		return g.command(ctx, logger, msg, id)
	}

	turn, err := g.sessions.Turn(msg.Key(), msg.Text)
	if errors.Is(err, session.ErrTooManySessions) {
		logger.Warn("session refused", "key", msg.Key(), "err", err)
		return Response{Lines: []string{BusyMessage}, Outcome: OutcomeBusy, Ended: true, TraceID: id}, nil
	}
	if err != nil {
		return Response{TraceID: id}, fmt.Errorf("conversation turn: %w", err)
	}

	g.track(msg, turn.Ended)
	resp := Response{Outcome: turn.Reply.Outcome, Ended: turn.Ended, TraceID: id}
	if turn.Greeting != "" {
		resp.Lines = append(resp.Lines, turn.Greeting)
	}
	resp.Lines = append(resp.Lines, turn.Reply.Text)

	logger.Debug("turn answered",
		"session", turn.Session.ID,
		"outcome", turn.Reply.Outcome,
		"keyword", turn.Reply.Keyword,
		"ended", turn.Ended,
	)
	return resp, nil
}

// Close ends the conversation for msg, e.g. when its WebSocket goes away.
// It reports whether there was one.
func (g *Gateway) Close(msg Message) bool {
	g.routes.Delete(msg.Key())
	_, ok := g.sessions.End(msg.Key())
	return ok
}

// Expired returns where the conversation with key lived and forgets it.
// Call it for sessions ended by the session sweeper.
func (g *Gateway) Expired(key string) (Message, bool) {
	v, ok := g.routes.LoadAndDelete(key)
	if !ok {
		return Message{}, false
	}
	return v.(Message), true
}

func (g *Gateway) track(msg Message, ended bool) {
	if ended {
		g.routes.Delete(msg.Key())
		return
	}
	g.routes.Store(msg.Key(), route(msg))
}

// route is msg without its text.
func route(msg Message) Message {
	msg.Text = ""
	return msg
}

func (g *Gateway) command(ctx context.Context, logger *slog.Logger, msg Message, id string) (Response, error) {
	cmd, err := g.router.Parse(msg.Text)
	name := "invalid"
	if err == nil {
		name = cmd.Name
	}
	if g.metrics != nil {
		g.metrics.Commands.WithLabelValues(name).Inc()
	}

	resp := Response{Outcome: OutcomeCommand, TraceID: id}
	out, err := g.router.Route(ctx, msg.Text, commands.Request{Key: msg.Key(), Sender: msg.Sender})
	switch {
	case errors.Is(err, commands.ErrUnknownCommand):
		g.audit(ctx, logger, msg, id, name, store.AuditDenied, err)
		resp.Lines = []string{fmt.Sprintf("%s. Try %s help.", capitalize(err.Error()), g.router.Prefix())}
		return resp, nil
	case err != nil && cmd == nil:
		resp.Lines = []string{fmt.Sprintf("Usage: %s <command>. Try %s help.", g.router.Prefix(), g.router.Prefix())}
		return resp, nil
	case err != nil:
		logger.Error("command failed", "command", cmd.FullCommand(), "err", err)
		g.audit(ctx, logger, msg, id, name, store.AuditError, err)
		resp.Lines = []string{"Error: " + err.Error()}
		return resp, nil
	}
	g.audit(ctx, logger, msg, id, name, store.AuditSuccess, nil)

	logger.Info("command handled", "command", cmd.FullCommand(), "sender", msg.Sender)
	if out != "" {
		resp.Lines = []string{out}
	}
	resp.Ended = cmd.Name == "bye"
	if resp.Ended {
		g.routes.Delete(msg.Key())
	}
	return resp, nil
}

func (g *Gateway) audit(ctx context.Context, logger *slog.Logger, msg Message, id, name, result string, err error) {
	if g.auditor == nil {
		return
	}
	e := store.AuditEntry{
		TraceID: id,
		Actor:   msg.Sender,
		Action:  "command." + name,
		Target:  msg.Key(),
		Result:  result,
	}
	if err != nil {
		e.Error = err.Error()
	}
	if werr := g.auditor.WriteAudit(ctx, e); werr != nil {
		logger.Warn("failed to write audit entry", "action", e.Action, "err", werr)
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
