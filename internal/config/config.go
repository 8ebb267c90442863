// Package config loads the solver daemon configuration: a YAML file overlaid
// by environment variables, with defaults and validation applied centrally.
package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/R3E-Network/solver_layer/internal/chain"
)

// Config is the full daemon configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Events    EventsConfig    `yaml:"events"`
	Jobs      JobsConfig      `yaml:"jobs"`
	Solver    SolverConfig    `yaml:"solver"`
	Genesis   []Allocation    `yaml:"genesis"`
	Tokens    []TokenConfig   `yaml:"tokens"`
	Targets   []TargetConfig  `yaml:"targets"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	Issuer    string        `yaml:"issuer"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig selects the receipt store. An empty DSN keeps receipts in
// memory.
type DatabaseConfig struct {
	DSN          string `yaml:"dsn"`
	Migrate      bool   `yaml:"migrate"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

type EventsConfig struct {
	BufferSize int `yaml:"buffer_size"`
}

// JobsConfig holds cron schedules. An empty schedule disables the job.
type JobsConfig struct {
	CustodySnapshot string `yaml:"custody_snapshot"`
	LimiterCleanup  string `yaml:"limiter_cleanup"`
}

// SolverConfig describes the solver deployment. DelegateTarget is either the
// name of a scripted target or an address.
type SolverConfig struct {
	Owner          string `yaml:"owner"`
	Orchestrator   string `yaml:"orchestrator"`
	DelegateTarget string `yaml:"delegate_target"`
}

// Allocation credits an account at startup. Asset is "native" (or empty) or
// the symbol of a configured token.
type Allocation struct {
	Account string `yaml:"account"`
	Asset   string `yaml:"asset"`
	Amount  string `yaml:"amount"`
}

type TokenConfig struct {
	Symbol      string `yaml:"symbol"`
	Decimals    int    `yaml:"decimals"`
	Minter      string `yaml:"minter"`
	NonStandard bool   `yaml:"non_standard"`
}

// TargetConfig is a scripted delegate target.
type TargetConfig struct {
	Name       string        `yaml:"name"`
	Script     string        `yaml:"script"`
	ScriptFile string        `yaml:"script_file"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Source returns the script text, reading ScriptFile when Script is empty.
func (t TargetConfig) Source() (string, error) {
	if t.Script != "" {
		return t.Script, nil
	}
	data, err := os.ReadFile(t.ScriptFile)
	if err != nil {
		return "", fmt.Errorf("target %s: read script: %w", t.Name, err)
	}
	return string(data), nil
}

// envOverrides lists the settings that may come from the environment.
type envOverrides struct {
	Addr           string  `env:"SOLVER_HTTP_ADDR"`
	LogLevel       string  `env:"SOLVER_LOG_LEVEL"`
	LogFormat      string  `env:"SOLVER_LOG_FORMAT"`
	JWTSecret      string  `env:"SOLVER_JWT_SECRET"`
	DatabaseDSN    string  `env:"SOLVER_DATABASE_DSN"`
	Owner          string  `env:"SOLVER_OWNER"`
	Orchestrator   string  `env:"SOLVER_ORCHESTRATOR"`
	DelegateTarget string  `env:"SOLVER_DELEGATE_TARGET"`
	RateLimitRPS   float64 `env:"SOLVER_RATE_LIMIT_RPS"`
	RateLimitBurst int     `env:"SOLVER_RATE_LIMIT_BURST"`
	Snapshot       string  `env:"SOLVER_CUSTODY_SNAPSHOT"`
}

// Default returns the configuration used when nothing else is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			Issuer:   "solver-layer",
			TokenTTL: time.Hour,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			Burst:             20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseConfig{
			Migrate:      true,
			MaxOpenConns: 10,
		},
		Events: EventsConfig{BufferSize: 1000},
		Jobs:   JobsConfig{CustodySnapshot: "@every 1m", LimiterCleanup: "@every 10m"},
	}
}

// Load reads path (if non-empty), applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE files into the process environment. Missing
// files are skipped; variables already set win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); stderrors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

func (c *Config) applyEnv() error {
	var env envOverrides
	if err := envdecode.Decode(&env); err != nil {
		if stderrors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
			return nil
		}
		return fmt.Errorf("failed to decode environment: %w", err)
	}

	setString(&c.Server.Addr, env.Addr)
	setString(&c.Log.Level, env.LogLevel)
	setString(&c.Log.Format, env.LogFormat)
	setString(&c.Auth.JWTSecret, env.JWTSecret)
	setString(&c.Database.DSN, env.DatabaseDSN)
	setString(&c.Solver.Owner, env.Owner)
	setString(&c.Solver.Orchestrator, env.Orchestrator)
	setString(&c.Solver.DelegateTarget, env.DelegateTarget)
	setString(&c.Jobs.CustodySnapshot, env.Snapshot)
	if env.RateLimitRPS > 0 {
		c.RateLimit.RequestsPerSecond = env.RateLimitRPS
	}
	if env.RateLimitBurst > 0 {
		c.RateLimit.Burst = env.RateLimitBurst
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("auth.jwt_secret must be at least 16 bytes")
	}
	for name, spec := range map[string]string{
		"jobs.custody_snapshot": c.Jobs.CustodySnapshot,
		"jobs.limiter_cleanup":  c.Jobs.LimiterCleanup,
	} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate_limit: requests_per_second and burst must be positive")
	}
	if c.Events.BufferSize <= 0 {
		return fmt.Errorf("events.buffer_size must be positive")
	}

	if _, err := chain.ParseAddress(c.Solver.Owner); err != nil {
		return fmt.Errorf("solver.owner: %w", err)
	}
	if _, err := chain.ParseAddress(c.Solver.Orchestrator); err != nil {
		return fmt.Errorf("solver.orchestrator: %w", err)
	}

	symbols := make(map[string]bool, len(c.Tokens))
	for i, t := range c.Tokens {
		if t.Symbol == "" {
			return fmt.Errorf("tokens[%d]: symbol is required", i)
		}
		if strings.EqualFold(t.Symbol, "native") || symbols[t.Symbol] {
			return fmt.Errorf("tokens[%d]: duplicate or reserved symbol %q", i, t.Symbol)
		}
		symbols[t.Symbol] = true
		if t.Decimals < 0 || t.Decimals > 18 {
			return fmt.Errorf("token %s: decimals out of range", t.Symbol)
		}
		if t.Minter != "" {
			if _, err := chain.ParseAddress(t.Minter); err != nil {
				return fmt.Errorf("token %s: minter: %w", t.Symbol, err)
			}
		}
	}

	names := make(map[string]bool, len(c.Targets))
	for i, t := range c.Targets {
		if t.Name == "" {
			return fmt.Errorf("targets[%d]: name is required", i)
		}
		if names[t.Name] {
			return fmt.Errorf("targets[%d]: duplicate name %q", i, t.Name)
		}
		names[t.Name] = true
		if t.Script == "" && t.ScriptFile == "" {
			return fmt.Errorf("target %s: script or script_file is required", t.Name)
		}
		if t.Timeout < 0 {
			return fmt.Errorf("target %s: timeout must not be negative", t.Name)
		}
	}

	if dt := c.Solver.DelegateTarget; dt != "" && !names[dt] {
		if _, err := chain.ParseAddress(dt); err != nil {
			return fmt.Errorf("solver.delegate_target %q is neither a target name nor an address", dt)
		}
	}

	for i, a := range c.Genesis {
		if _, err := chain.ParseAddress(a.Account); err != nil {
			return fmt.Errorf("genesis[%d].account: %w", i, err)
		}
		if _, err := chain.ArgAmount([]any{a.Amount}, 0, "amount"); err != nil {
			return fmt.Errorf("genesis[%d]: %w", i, err)
		}
		if !IsNative(a.Asset) && !symbols[a.Asset] {
			return fmt.Errorf("genesis[%d]: unknown asset %q", i, a.Asset)
		}
	}
	return nil
}

// IsNative reports whether asset names the native currency.
func IsNative(asset string) bool {
	return asset == "" || strings.EqualFold(asset, "native")
}
