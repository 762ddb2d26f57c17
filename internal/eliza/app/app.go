// Package app wires the Eliza service together: script loading and hot
// reload, sessions, the gateway and the HTTP and Matrix transports.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bdobrica/Eliza/common/trace"
	"github.com/bdobrica/Eliza/internal/eliza/commands"
	"github.com/bdobrica/Eliza/internal/eliza/config"
	"github.com/bdobrica/Eliza/internal/eliza/gateway"
	"github.com/bdobrica/Eliza/internal/eliza/matrix"
	"github.com/bdobrica/Eliza/internal/eliza/metrics"
	"github.com/bdobrica/Eliza/internal/eliza/ratelimit"
	"github.com/bdobrica/Eliza/internal/eliza/script"
	"github.com/bdobrica/Eliza/internal/eliza/session"
	"github.com/bdobrica/Eliza/internal/eliza/store"
	"github.com/bdobrica/Eliza/internal/eliza/web"
)

// MatrixTransport is the gateway transport name of Matrix conversations.
const MatrixTransport = "matrix"

// App is the running service.
type App struct {
	config   *config.Config
	logger   *slog.Logger
	store    *store.Store // nil without database.path
	metrics  *metrics.Metrics
	sessions *session.Manager
	limiter  *ratelimit.Limiter
	gateway  *gateway.Gateway
	web      *web.Server    // nil without http.addr
	matrix   *matrix.Client // nil without matrix settings
}

// New builds the service from cfg. Nothing is started.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{config: cfg, logger: logger, metrics: metrics.New()}

	if cfg.Database.Path != "" {
		logger.Info("opening database", "path", cfg.Database.Path)
		st, err := store.New(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		a.store = st
	}

	s, err := a.initialScript(context.Background())
	if err != nil {
		a.Close()
		return nil, err
	}

	a.sessions = session.New(s, session.Config{
		Cooldown:       cfg.Session.Cooldown,
		MaxSessions:    cfg.Session.MaxSessions,
		MemoryCapacity: cfg.Memory.Capacity,
		MemoryPolicy:   cfg.MemoryPolicy(),
	}, session.WithLogger(logger), session.WithObserver(a.metrics))

	router := commands.NewRouter(commands.DefaultPrefix)
	handlers := &commands.Handlers{Sessions: a.sessions, LibraryName: cfg.Script.Name}
	if a.store != nil {
		handlers.Library = a.store
	}
	handlers.Register(router)

	gwOpts := []gateway.Option{gateway.WithLogger(logger), gateway.WithMetrics(a.metrics)}
	if a.store != nil {
		gwOpts = append(gwOpts, gateway.WithAuditor(a.store))
	}
	if cfg.RateLimit.PerMinute > 0 {
		a.limiter = ratelimit.New(cfg.RateLimit.PerMinute)
		gwOpts = append(gwOpts, gateway.WithRateLimiter(a.limiter))
	}
	a.gateway = gateway.New(a.sessions, router, gwOpts...)

	if cfg.HTTP.Addr != "" {
		a.web = web.NewServer(cfg.HTTP.Addr, a.gateway, a.metrics, logger)
	}

	if cfg.Matrix.Enabled() {
		mc := matrix.Config{
			Homeserver:  cfg.Matrix.Homeserver,
			UserID:      cfg.Matrix.UserID,
			AccessToken: cfg.Matrix.AccessToken,
			Rooms:       cfg.Matrix.Rooms,
			AutoJoin:    len(cfg.Matrix.Rooms) == 0,
			Logger:      logger,
		}
		if a.store != nil {
			mc.DB = a.store.DB()
		}
		logger.Info("connecting to Matrix", "homeserver", mc.Homeserver, "user", mc.UserID)
		client, err := matrix.New(mc)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize Matrix client: %w", err)
		}
		a.matrix = client
	}
	return a, nil
}

// Gateway returns the message gateway.
func (a *App) Gateway() *gateway.Gateway { return a.gateway }

// Sessions returns the session manager.
func (a *App) Sessions() *session.Manager { return a.sessions }

// Store returns the database, or nil without database.path.
func (a *App) Store() *store.Store { return a.store }

// Metrics returns the service metrics.
func (a *App) Metrics() *metrics.Metrics { return a.metrics }

// Run starts every configured component and blocks until ctx is done or
// one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.sessions.Sweep(ctx, a.config.Session.SweepInterval, a.expired)
	})

	if a.limiter != nil {
		g.Go(func() error {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					a.limiter.Prune(2 * time.Minute)
				}
			}
		})
	}

	if a.config.Script.Watch {
		w := &ScriptWatcher{
			Path:   a.config.Script.Path,
			Logger: a.logger,
			OnChange: func(ctx context.Context) {
				// Errors are logged and counted by Reload.
				_ = a.Reload(ctx)
			},
		}
		g.Go(func() error { return w.Run(ctx) })
	}

	if a.web != nil {
		g.Go(func() error { return a.web.Run(ctx) })
	}

	if a.matrix != nil {
		g.Go(func() error {
			defer a.matrix.Stop()
			a.logger.Info("Matrix bot syncing", "user", a.matrix.UserID())
			return a.matrix.Run(ctx, a.handleMatrix)
		})
	}

	a.logger.Info("Eliza is running", "script", a.sessions.Script().Name)
	err := g.Wait()
	a.sessions.Close()
	return err
}

// Close releases the database.
func (a *App) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("closing database", "err", err)
		}
	}
}

// Reload re-reads the script file. On success new sessions use it and the
// source is recorded in the library; on failure the running script stays.
func (a *App) Reload(ctx context.Context) error {
	path := a.config.Script.Path
	if path == "" {
		return errors.New("no script file configured")
	}
	s, format, source, err := parseFile(path, a.config.Script.Name)
	a.metrics.ScriptReloaded(err)
	a.auditReload(ctx, path, s, err)
	if err != nil {
		var fe *script.FormatError
		if errors.As(err, &fe) {
			a.logger.Error("script reload rejected; keeping the running script",
				"path", path, "line", fe.Line, "err", fe.Msg)
		} else {
			a.logger.Error("script reload failed; keeping the running script", "path", path, "err", err)
		}
		return err
	}
	a.sessions.SetScript(s)
	a.record(ctx, format, source, "watch:"+filepath.Base(path))
	a.logger.Info("script reloaded", "path", path, "rules", len(s.Rules()))
	return nil
}

// initialScript picks the script to start with: the configured file, else
// the newest stored version of script.name, else the built-in DOCTOR.
func (a *App) initialScript(ctx context.Context) (*script.Script, error) {
	name := a.config.Script.Name

	if path := a.config.Script.Path; path != "" {
		s, format, source, err := parseFile(path, name)
		if err != nil {
			return nil, fmt.Errorf("load script: %w", err)
		}
		a.record(ctx, format, source, "file:"+filepath.Base(path))
		a.logger.Info("script loaded", "path", path, "name", name, "rules", len(s.Rules()))
		return s, nil
	}

	if a.store != nil {
		v, err := a.store.LatestScript(ctx, name)
		switch {
		case err == nil:
			s, err := parseStored(v)
			if err != nil {
				return nil, fmt.Errorf("stored script %s v%d: %w", v.Name, v.Version, err)
			}
			a.logger.Info("script loaded from library", "name", v.Name, "version", v.Version)
			return s, nil
		case !errors.Is(err, store.ErrNotFound):
			return nil, err
		}
	}

	a.logger.Info("using built-in script", "name", script.BuiltinName)
	return script.Builtin()
}

func (a *App) record(ctx context.Context, format, source, by string) {
	if a.store == nil {
		return
	}
	v, created, err := a.store.SaveScript(ctx, a.config.Script.Name, format, source, by)
	if err != nil {
		a.logger.Warn("could not record script version", "err", err)
		return
	}
	if created {
		a.logger.Info("script version recorded", "name", v.Name, "version", v.Version, "hash", v.Hash[:12])
	}
}

func (a *App) auditReload(ctx context.Context, path string, s *script.Script, err error) {
	if a.store == nil {
		return
	}
	ctx, id := trace.Ensure(ctx)
	e := store.AuditEntry{
		TraceID: id,
		Actor:   "watch",
		Action:  "script.reload",
		Target:  filepath.Base(path),
		Result:  store.AuditSuccess,
	}
	if err != nil {
		e.Result = store.AuditError
		e.Error = err.Error()
	} else {
		e.Payload = map[string]any{"keys": len(s.Rules()), "patterns": s.DecompositionCount()}
	}
	if werr := a.store.WriteAudit(ctx, e); werr != nil {
		a.logger.Warn("failed to write audit entry", "action", e.Action, "err", werr)
	}
}

func (a *App) handleMatrix(ctx context.Context, msg matrix.Message) {
	resp, err := a.gateway.Handle(ctx, gateway.Message{
		Transport: MatrixTransport,
		Room:      msg.RoomID,
		Sender:    msg.Sender,
		Text:      msg.Text,
	})
	if err != nil {
		a.logger.Error("failed to handle Matrix message", "room", msg.RoomID, "err", err, "trace", resp.TraceID)
		return
	}
	send := a.matrix.SendText
	switch resp.Outcome {
	case gateway.OutcomeCommand, gateway.OutcomeRateLimited, gateway.OutcomeBusy:
		send = a.matrix.SendNotice
	}
	for _, line := range resp.Lines {
		if err := send(ctx, msg.RoomID, line); err != nil {
			a.logger.Error("failed to send response", "room", msg.RoomID, "err", err, "trace", resp.TraceID)
			return
		}
	}
}

// expired tells a Matrix room that its idle conversation was closed.
func (a *App) expired(info session.Info) {
	msg, ok := a.gateway.Expired(info.Key)
	if !ok || msg.Transport != MatrixTransport || a.matrix == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.matrix.SendText(ctx, msg.Room, info.Final); err != nil {
		a.logger.Warn("failed to send closing message", "room", msg.Room, "err", err)
	}
}

// parseFile reads and compiles a script file, returning its format and
// source for the library.
func parseFile(path, name string) (*script.Script, string, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", "", fmt.Errorf("read script: %w", err)
	}
	format := FormatOf(path)
	var s *script.Script
	if format == store.FormatYAML {
		s, err = script.ParseYAML(data, filepath.Base(path))
	} else {
		s, err = script.ParseString(string(data), filepath.Base(path))
	}
	if err != nil {
		return nil, "", "", err
	}
	if name != "" {
		s.Name = name
	}
	return s, format, string(data), nil
}

func parseStored(v *store.ScriptVersion) (*script.Script, error) {
	label := fmt.Sprintf("%s@v%d", v.Name, v.Version)
	var (
		s   *script.Script
		err error
	)
	if v.Format == store.FormatYAML {
		s, err = script.ParseYAML([]byte(v.Source), label)
	} else {
		s, err = script.ParseString(v.Source, label)
	}
	if err != nil {
		return nil, err
	}
	s.Name = v.Name
	return s, nil
}

// FormatOf returns the library format of a script file by extension.
func FormatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return store.FormatYAML
	default:
		return store.FormatText
	}
}
