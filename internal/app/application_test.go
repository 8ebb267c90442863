package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/solver_layer/internal/chain"
	"github.com/R3E-Network/solver_layer/internal/config"
	"github.com/R3E-Network/solver_layer/internal/logging"
	"github.com/R3E-Network/solver_layer/internal/receipts"
)

const routerScript = `
function handle(call) {
	storage.put("last", call.payload);
	notify("Routed", {payload: call.payload, value: call.value});
	return "0x" + call.payload;
}
`

func addr(seed string) util.Uint160 {
	return chain.ScriptHash([]byte(seed))
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Auth.JWTSecret = "application-test-secret"
	cfg.Solver = config.SolverConfig{
		Owner:          chain.FormatAddress(addr("owner")),
		Orchestrator:   chain.FormatAddress(addr("orchestrator")),
		DelegateTarget: "router",
	}
	cfg.Tokens = []config.TokenConfig{{Symbol: "USDX", Decimals: 6, Minter: chain.FormatAddress(addr("owner"))}}
	cfg.Targets = []config.TargetConfig{{Name: "router", Script: routerScript}}
	cfg.Genesis = []config.Allocation{
		{Account: chain.FormatAddress(addr("orchestrator")), Asset: "native", Amount: "1000"},
		{Account: chain.FormatAddress(addr("owner")), Asset: "USDX", Amount: "50"},
	}
	return cfg
}

func TestNew_DeploysConfiguredContracts(t *testing.T) {
	a, err := New(context.Background(), testConfig(), logging.NewDiscard("app"))
	require.NoError(t, err)
	defer a.Close()

	require.Contains(t, a.Targets, "router")
	require.Contains(t, a.Tokens, "USDX")
	assert.True(t, a.Solver.DelegateTarget().Equals(a.Targets["router"].Hash()))
	assert.Equal(t, int64(1000), a.Host.BalanceOf(chain.NativeAsset, addr("orchestrator")).Int64())
	assert.Equal(t, int64(50), a.Host.BalanceOf(a.Tokens["USDX"].Hash(), addr("owner")).Int64())
	assert.Equal(t, 2, a.Scheduler.Entries())
}

func TestNew_TriggerThroughAPI(t *testing.T) {
	a, err := New(context.Background(), testConfig(), logging.NewDiscard("app"))
	require.NoError(t, err)
	defer a.Close()

	token, err := a.Auth.Issue(addr("orchestrator"), "orchestrator")
	require.NoError(t, err)

	body, _ := json.Marshal(map[string]string{
		"from":    chain.FormatAddress(addr("owner")),
		"payload": "0102",
		"value":   "10",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/solver/trigger", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	target := a.Targets["router"].Hash()
	assert.Equal(t, int64(10), a.Host.BalanceOf(chain.NativeAsset, target).Int64())
	assert.NotNil(t, a.Host.Storage(target, "last"))

	routed := a.Events.RecentByType("Routed", 1)
	require.Len(t, routed, 1)
	assert.Equal(t, "0102", routed[0].Fields["payload"])

	list, err := a.Receipts.List(context.Background(), receipts.Filter{Method: "trigger"})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestNew_DelegateTargetByAddress(t *testing.T) {
	cfg := testConfig()
	cfg.Solver.DelegateTarget = chain.FormatAddress(addr("elsewhere"))
	a, err := New(context.Background(), cfg, logging.NewDiscard("app"))
	require.NoError(t, err)
	defer a.Close()
	assert.True(t, a.Solver.DelegateTarget().Equals(addr("elsewhere")))
}

func TestNew_Errors(t *testing.T) {
	cfg := testConfig()
	cfg.Targets[0].Script = "function notHandle() {}"
	_, err := New(context.Background(), cfg, logging.NewDiscard("app"))
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Solver.Owner = ""
	_, err = New(context.Background(), cfg, logging.NewDiscard("app"))
	assert.Error(t, err)
}

func TestStartStop(t *testing.T) {
	a, err := New(context.Background(), testConfig(), logging.NewDiscard("app"))
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	require.NoError(t, a.Stop(context.Background()))
}

