package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/solver_layer/internal/chain"
)

func address(seed string) string {
	return chain.FormatAddress(chain.ScriptHash([]byte(seed)))
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func validYAML() string {
	return fmt.Sprintf(`
server:
  addr: ":9090"
  read_timeout: 5s
auth:
  jwt_secret: "0123456789abcdef0123"
solver:
  owner: %s
  orchestrator: %s
  delegate_target: router
tokens:
  - symbol: USDX
    decimals: 6
    minter: %s
targets:
  - name: router
    timeout: 250ms
    script: |
      function handle(call) { return call.payload; }
genesis:
  - account: %s
    amount: "1000"
  - account: %s
    asset: USDX
    amount: "50"
`, address("owner"), address("orchestrator"), address("minter"), address("orchestrator"), address("owner"))
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeFile(t, "solver.yaml", validYAML()))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout, "default kept")
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 1000, cfg.Events.BufferSize)
	require.Len(t, cfg.Targets, 1)
	assert.Equal(t, 250*time.Millisecond, cfg.Targets[0].Timeout)
	assert.Len(t, cfg.Genesis, 2)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SOLVER_HTTP_ADDR", ":7000")
	t.Setenv("SOLVER_LOG_LEVEL", "debug")
	t.Setenv("SOLVER_RATE_LIMIT_BURST", "3")
	t.Setenv("SOLVER_DATABASE_DSN", "postgres://solver@localhost/solver?sslmode=disable")

	cfg, err := Load(writeFile(t, "solver.yaml", validYAML()))
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 3, cfg.RateLimit.Burst)
	assert.Equal(t, float64(10), cfg.RateLimit.RequestsPerSecond)
	assert.Contains(t, cfg.Database.DSN, "postgres://")
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("SOLVER_JWT_SECRET", "an-env-provided-secret")
	t.Setenv("SOLVER_OWNER", address("owner"))
	t.Setenv("SOLVER_ORCHESTRATOR", address("orchestrator"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, address("owner"), cfg.Solver.Owner)
	assert.Empty(t, cfg.Solver.DelegateTarget)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.yaml", "server: [unclosed"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(writeFile(t, "solver.yaml", validYAML()))
		require.NoError(t, err)
		return cfg
	}

	cases := map[string]func(c *Config){
		"short secret":         func(c *Config) { c.Auth.JWTSecret = "short" },
		"bad owner":            func(c *Config) { c.Solver.Owner = "nope" },
		"missing orchestrator": func(c *Config) { c.Solver.Orchestrator = "" },
		"unknown target":       func(c *Config) { c.Solver.DelegateTarget = "missing" },
		"duplicate token":      func(c *Config) { c.Tokens = append(c.Tokens, c.Tokens[0]) },
		"reserved symbol":      func(c *Config) { c.Tokens[0].Symbol = "NATIVE"; c.Genesis = nil },
		"target without code":  func(c *Config) { c.Targets[0].Script = "" },
		"duplicate target":     func(c *Config) { c.Targets = append(c.Targets, c.Targets[0]) },
		"unknown asset":        func(c *Config) { c.Genesis[0].Asset = "BTC" },
		"negative amount":      func(c *Config) { c.Genesis[0].Amount = "-5" },
		"zero burst":           func(c *Config) { c.RateLimit.Burst = 0 },
		"bad schedule":         func(c *Config) { c.Jobs.CustodySnapshot = "every minute" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := base()
	cfg.Solver.DelegateTarget = address("some-contract")
	assert.NoError(t, cfg.Validate(), "an address is an acceptable delegate target")

	cfg = base()
	cfg.Jobs.LimiterCleanup = ""
	cfg.Jobs.CustodySnapshot = "*/5 * * * *"
	assert.NoError(t, cfg.Validate())
}

func TestTargetSource(t *testing.T) {
	path := writeFile(t, "router.js", "function handle(call) {}")
	src, err := TargetConfig{Name: "router", ScriptFile: path}.Source()
	require.NoError(t, err)
	assert.Equal(t, "function handle(call) {}", src)

	_, err = TargetConfig{Name: "router", ScriptFile: filepath.Join(t.TempDir(), "nope.js")}.Source()
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	path := writeFile(t, ".env", "SOLVER_DOTENV_PROBE=loaded\n")
	t.Setenv("SOLVER_DOTENV_PROBE", "")
	os.Unsetenv("SOLVER_DOTENV_PROBE")

	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env"), path))
	assert.Equal(t, "loaded", os.Getenv("SOLVER_DOTENV_PROBE"))
}

func TestIsNative(t *testing.T) {
	assert.True(t, IsNative(""))
	assert.True(t, IsNative("Native"))
	assert.False(t, IsNative("USDX"))
}

func TestExampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "solverd.example.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "router", cfg.Solver.DelegateTarget)
	assert.Len(t, cfg.Tokens, 2)
	assert.True(t, cfg.Tokens[1].NonStandard)
	assert.Equal(t, "@every 10m", cfg.Jobs.LimiterCleanup)
}
