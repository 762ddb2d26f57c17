// Package config loads the Eliza service configuration: a YAML file
// overlaid by ELIZA_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bdobrica/Eliza/common/environment"
	"github.com/bdobrica/Eliza/internal/eliza/memory"
	"github.com/bdobrica/Eliza/internal/eliza/observability"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "ELIZA_"

// Config is the complete service configuration.
type Config struct {
	Script    ScriptConfig    `yaml:"script"`
	Memory    MemoryConfig    `yaml:"memory"`
	Session   SessionConfig   `yaml:"session"`
	Log       LogConfig       `yaml:"log"`
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Matrix    MatrixConfig    `yaml:"matrix"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
}

// ScriptConfig selects the conversation script.
type ScriptConfig struct {
	// Path is a script file in the text grammar or YAML. Empty means the
	// built-in DOCTOR script.
	Path string `yaml:"path"`
	// Name is the library name under which loaded versions are recorded.
	Name string `yaml:"name"`
	// Watch reloads Path when it changes on disk.
	Watch bool `yaml:"watch"`
}

// MemoryConfig tunes the per-conversation memory queue.
type MemoryConfig struct {
	// Capacity overrides the script's memsize when positive.
	Capacity int `yaml:"capacity"`
	// Policy is "drop-oldest" or "refuse-new".
	Policy string `yaml:"policy"`
}

// SessionConfig bounds conversations held in memory.
type SessionConfig struct {
	// Cooldown ends a conversation after this much inactivity.
	Cooldown time.Duration `yaml:"cooldown"`
	// MaxSessions caps concurrent conversations; 0 means unlimited.
	MaxSessions int `yaml:"maxSessions"`
	// SweepInterval is how often idle conversations are looked for.
	SweepInterval time.Duration `yaml:"sweepInterval"`
}

// LogConfig configures slog output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// HTTPConfig configures the health, metrics and browser chat server.
type HTTPConfig struct {
	// Addr is the listen address, e.g. ":8080". Empty disables the server.
	Addr string `yaml:"addr"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	// Path of the database file. Empty disables the script library and
	// Matrix sync persistence.
	Path string `yaml:"path"`
}

// MatrixConfig configures the optional Matrix bot.
type MatrixConfig struct {
	Homeserver  string   `yaml:"homeserver"`
	UserID      string   `yaml:"userID"`
	AccessToken string   `yaml:"accessToken"`
	Rooms       []string `yaml:"rooms"`
}

// Enabled reports whether any Matrix setting is present.
func (m MatrixConfig) Enabled() bool {
	return m.Homeserver != "" || m.UserID != "" || m.AccessToken != ""
}

// RateLimitConfig bounds how fast one sender may talk.
type RateLimitConfig struct {
	// PerMinute is the number of messages accepted per sender per minute;
	// 0 disables rate limiting.
	PerMinute int `yaml:"perMinute"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Script:    ScriptConfig{Name: "default"},
		Memory:    MemoryConfig{Policy: memory.DropOldest.String()},
		Session:   SessionConfig{Cooldown: 30 * time.Minute, MaxSessions: 1000, SweepInterval: time.Minute},
		Log:       LogConfig{Level: "info", Format: "text"},
		RateLimit: RateLimitConfig{PerMinute: 30},
	}
}

// Load reads the YAML file at path (skipped when path is empty), overlays
// the environment and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.decode(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(environment.New(EnvPrefix)); err != nil {
		return nil, fmt.Errorf("config environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of the defaults and validates the result. The
// environment is not consulted.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(bytes.NewReader(data)); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// ApplyEnv overlays environment variables onto c. Every malformed variable
// is reported.
func (c *Config) ApplyEnv(env environment.Env) error {
	env.String("SCRIPT_PATH", &c.Script.Path)
	env.String("SCRIPT_NAME", &c.Script.Name)
	env.String("MEMORY_POLICY", &c.Memory.Policy)
	env.String("LOG_LEVEL", &c.Log.Level)
	env.String("LOG_FORMAT", &c.Log.Format)
	env.String("HTTP_ADDR", &c.HTTP.Addr)
	env.String("DATABASE_PATH", &c.Database.Path)
	env.String("MATRIX_HOMESERVER", &c.Matrix.Homeserver)
	env.String("MATRIX_USER_ID", &c.Matrix.UserID)
	env.String("MATRIX_ACCESS_TOKEN", &c.Matrix.AccessToken)
	env.StringSlice("MATRIX_ROOMS", &c.Matrix.Rooms)

	return errors.Join(
		env.Bool("SCRIPT_WATCH", &c.Script.Watch),
		env.Int("MEMORY_CAPACITY", &c.Memory.Capacity),
		env.Duration("SESSION_COOLDOWN", &c.Session.Cooldown),
		env.Int("SESSION_MAX_SESSIONS", &c.Session.MaxSessions),
		env.Duration("SESSION_SWEEP_INTERVAL", &c.Session.SweepInterval),
		env.Int("RATELIMIT_PER_MINUTE", &c.RateLimit.PerMinute),
	)
}

// Validate returns the first problem found, naming the offending field.
func (c *Config) Validate() error {
	// ── Script ───────────────────────────────────────────────────────────────
	if c.Script.Watch && c.Script.Path == "" {
		return fmt.Errorf("script.watch requires script.path")
	}
	if strings.TrimSpace(c.Script.Name) == "" {
		return fmt.Errorf("script.name must not be empty")
	}

	// ── Memory ───────────────────────────────────────────────────────────────
	if c.Memory.Capacity < 0 {
		return fmt.Errorf("memory.capacity must be >= 0, got %d", c.Memory.Capacity)
	}
	if _, err := memory.ParsePolicy(c.Memory.Policy); err != nil {
		return fmt.Errorf("memory.policy: %w", err)
	}

	// ── Sessions ─────────────────────────────────────────────────────────────
	if c.Session.Cooldown <= 0 {
		return fmt.Errorf("session.cooldown must be positive, got %v", c.Session.Cooldown)
	}
	if c.Session.MaxSessions < 0 {
		return fmt.Errorf("session.maxSessions must be >= 0, got %d", c.Session.MaxSessions)
	}
	if c.Session.SweepInterval <= 0 {
		return fmt.Errorf("session.sweepInterval must be positive, got %v", c.Session.SweepInterval)
	}

	// ── Logging ──────────────────────────────────────────────────────────────
	if _, err := observability.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be \"text\" or \"json\", got %q", c.Log.Format)
	}

	// ── HTTP ─────────────────────────────────────────────────────────────────
	if c.HTTP.Addr != "" {
		if _, _, err := net.SplitHostPort(c.HTTP.Addr); err != nil {
			return fmt.Errorf("http.addr: %w", err)
		}
	}

	// ── Matrix ───────────────────────────────────────────────────────────────
	if c.Matrix.Enabled() {
		if err := validateMatrix(c.Matrix); err != nil {
			return fmt.Errorf("matrix: %w", err)
		}
	}

	// ── Rate limit ───────────────────────────────────────────────────────────
	if c.RateLimit.PerMinute < 0 {
		return fmt.Errorf("ratelimit.perMinute must be >= 0, got %d", c.RateLimit.PerMinute)
	}
	return nil
}

func validateMatrix(m MatrixConfig) error {
	u, err := url.Parse(m.Homeserver)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("homeserver must be an http(s) URL, got %q", m.Homeserver)
	}
	if !strings.HasPrefix(m.UserID, "@") || !strings.Contains(m.UserID, ":") {
		return fmt.Errorf("userID must look like @user:server, got %q", m.UserID)
	}
	if m.AccessToken == "" {
		return fmt.Errorf("accessToken is required")
	}
	for i, room := range m.Rooms {
		if !strings.HasPrefix(room, "!") && !strings.HasPrefix(room, "#") {
			return fmt.Errorf("rooms[%d]: %q is not a room ID or alias", i, room)
		}
	}
	return nil
}

// Secrets returns the configured values that must never be logged.
func (c *Config) Secrets() []string {
	if c.Matrix.AccessToken == "" {
		return nil
	}
	return []string{c.Matrix.AccessToken}
}

// MemoryPolicy returns the parsed memory policy. Validate has already
// rejected unknown names.
func (c *Config) MemoryPolicy() memory.Policy {
	p, _ := memory.ParsePolicy(c.Memory.Policy)
	return p
}
