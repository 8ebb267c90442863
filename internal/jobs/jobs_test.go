package jobs

import (
	"context"
	stderrors "errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/solver_layer/internal/chain"
	"github.com/R3E-Network/solver_layer/internal/logging"
	"github.com/R3E-Network/solver_layer/internal/metrics"
	"github.com/R3E-Network/solver_layer/internal/solver"
)

func addr(seed string) util.Uint160 {
	return chain.ScriptHash([]byte(seed))
}

func TestCustodySnapshot(t *testing.T) {
	ctx := context.Background()
	log := logging.NewDiscard("jobs")
	host := chain.NewHost(log)
	owner, orchestrator := addr("owner"), addr("orchestrator")

	tok := chain.NewToken(chain.TokenConfig{Symbol: "USDX", Decimals: 6, Minter: owner})
	_, err := host.Deploy(ctx, owner, tok)
	require.NoError(t, err)

	client, err := solver.Deploy(ctx, host, owner, solver.Config{Owner: owner, Orchestrator: orchestrator}, log)
	require.NoError(t, err)
	require.NoError(t, host.Credit(chain.NativeAsset, client.Hash(), big.NewInt(70)))
	require.NoError(t, host.Credit(tok.Hash(), client.Hash(), big.NewInt(9)))

	job := NewCustodySnapshot(client, map[string]util.Uint160{"USDX": tok.Hash()}, log)
	holdings := job.Holdings()
	assert.Equal(t, int64(70), holdings["native"].Int64())
	assert.Equal(t, int64(9), holdings["USDX"].Int64())

	s := NewScheduler(log, time.Second)
	require.NoError(t, s.RunNow(job))

	n, err := testutil.GatherAndCount(metrics.Registry, "solver_layer_custody_balance")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 2)
}

func TestCustodySnapshot_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	job := &CustodySnapshot{log: logging.NewDiscard("jobs")}
	assert.ErrorIs(t, job.Run(ctx), context.Canceled)
}

func TestScheduler_RunNowReportsFailure(t *testing.T) {
	s := NewScheduler(logging.NewDiscard("jobs"), time.Second)
	boom := stderrors.New("boom")
	err := s.RunNow(Func{JobName: "failing", Fn: func(context.Context) error { return boom }})
	assert.ErrorIs(t, err, boom)

	err = s.RunNow(Func{JobName: "slow", Fn: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestScheduler_Schedule(t *testing.T) {
	s := NewScheduler(logging.NewDiscard("jobs"), time.Second)
	var runs atomic.Int32
	job := Func{JobName: "tick", Fn: func(context.Context) error {
		runs.Add(1)
		return nil
	}}

	require.NoError(t, s.Add("", job))
	assert.Equal(t, 0, s.Entries())
	assert.Error(t, s.Add("not a schedule", job))

	require.NoError(t, s.Add("@every 1s", job))
	assert.Equal(t, 1, s.Entries())

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return runs.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))
}
