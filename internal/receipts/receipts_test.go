package receipts

import (
	"context"
	"database/sql"
	"database/sql/driver"
	stderrors "errors"
	"io"
	"math/big"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/solver_layer/internal/chain"
	"github.com/R3E-Network/solver_layer/internal/errors"
	"github.com/R3E-Network/solver_layer/internal/logging"
)

var columns = []string{"id", "tx_id", "sender", "contract", "method", "value", "vm_state", "error_code",
	"exception", "result", "notifications", "duration_us", "created_at"}

func newMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(sqlx.NewDb(db, "postgres")), mock
}

func TestFromApplicationLog(t *testing.T) {
	sender := chain.ScriptHash([]byte("sender"))
	contract := chain.ScriptHash([]byte("contract"))
	now := time.Now().UTC()

	r := FromApplicationLog(&chain.ApplicationLog{
		TxID:      "tx-1",
		Sender:    sender,
		Contract:  contract,
		Method:    "trigger",
		Value:     big.NewInt(25),
		VMState:   chain.VMStateFault,
		Exception: "unauthorized: request not from owner",
		Err:       errors.Unauthorized("request not from owner"),
		Result:    nil,
		Timestamp: now,
		Duration:  1500 * time.Microsecond,
	})
	assert.Equal(t, chain.FormatAddress(sender), r.Sender)
	assert.Equal(t, "25", r.Value)
	assert.Equal(t, "UNAUTHORIZED", r.ErrorCode)
	assert.Equal(t, int64(1500), r.DurationUS)
	assert.Empty(t, r.Result)
	assert.NotNil(t, r.Notifications)

	r = FromApplicationLog(&chain.ApplicationLog{
		TxID:          "tx-2",
		Value:         new(big.Int),
		VMState:       chain.VMStateHalt,
		Result:        []byte{0xab},
		Notifications: []chain.Notification{{Contract: contract, Name: "Executed", Fields: map[string]string{"value": "0"}}},
	})
	assert.Equal(t, "ab", r.Result)
	require.Len(t, r.Notifications, 1)
	assert.Equal(t, chain.FormatAddress(contract), r.Notifications[0].Contract)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	first, err := s.Save(ctx, Receipt{TxID: "tx-1", Sender: "alice", VMState: chain.VMStateHalt})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, "0", first.Value)
	_, err = s.Save(ctx, Receipt{TxID: "tx-2", Sender: "bob", VMState: chain.VMStateFault})
	require.NoError(t, err)
	_, err = s.Save(ctx, Receipt{TxID: "tx-3", Sender: "alice", VMState: chain.VMStateFault})
	require.NoError(t, err)

	_, err = s.Save(ctx, Receipt{TxID: "tx-1"})
	assert.True(t, stderrors.Is(err, errors.ErrInvalidArgument))

	got, err := s.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "tx-1", got.TxID)
	got, err = s.GetByTx(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	_, err = s.Get(ctx, "missing")
	assert.True(t, stderrors.Is(err, errors.ErrNotFound))
	_, err = s.GetByTx(ctx, "missing")
	assert.True(t, stderrors.Is(err, errors.ErrNotFound))

	list, err := s.List(ctx, Filter{Sender: "alice"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "tx-3", list[0].TxID, "newest first")

	list, err = s.List(ctx, Filter{VMState: chain.VMStateFault, Limit: 1})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "tx-3", list[0].TxID)
}

func TestFilterLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, Filter{}.limit())
	assert.Equal(t, MaxLimit, Filter{Limit: 10_000}.limit())
	assert.Equal(t, 7, Filter{Limit: 7}.limit())
}

func TestRecord(t *testing.T) {
	ctx := context.Background()
	host := chain.NewHost(logging.NewDiscard("host"))
	store := NewMemoryStore()
	stop := Record(host, store, logging.NewDiscard("receipts"), 0)

	log, err := host.Transfer(ctx, chain.ScriptHash([]byte("a")), chain.ScriptHash([]byte("b")), big.NewInt(0))
	require.NoError(t, err)
	_, err = host.Invoke(ctx, chain.ScriptHash([]byte("a")), chain.Call{To: chain.ScriptHash([]byte("missing"))})
	require.Error(t, err)

	r, err := store.GetByTx(ctx, log.TxID)
	require.NoError(t, err)
	assert.Equal(t, chain.VMStateHalt, r.VMState)

	faults, err := store.List(ctx, Filter{VMState: chain.VMStateFault})
	require.NoError(t, err)
	require.Len(t, faults, 1)
	assert.Equal(t, "NOT_FOUND", faults[0].ErrorCode)

	stop()
	_, _ = host.Transfer(ctx, chain.ScriptHash([]byte("a")), chain.ScriptHash([]byte("b")), big.NewInt(0))
	all, err := store.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestPostgresStore_Save(t *testing.T) {
	store, mock := newMock(t)
	args := make([]driver.Value, len(columns))
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO solver_receipts")).
		WithArgs(args...).
		WillReturnResult(sqlmock.NewResult(0, 1))

	r, err := store.Save(context.Background(), Receipt{TxID: "tx-1", Sender: "alice", VMState: chain.VMStateHalt})
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveError(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec("INSERT INTO solver_receipts").WillReturnError(stderrors.New("connection reset"))

	_, err := store.Save(context.Background(), Receipt{TxID: "tx-1"})
	assert.True(t, stderrors.Is(err, errors.ErrInternal))
	assert.Contains(t, err.Error(), "connection reset")
}

func TestPostgresStore_Get(t *testing.T) {
	store, mock := newMock(t)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM solver_receipts WHERE id = $1")).
		WithArgs("r-1").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			"r-1", "tx-1", "alice", "solver", "trigger", "25", chain.VMStateHalt, "",
			"", "ab", []byte(`[{"contract":"solver","name":"Executed"}]`), int64(12), created,
		))

	r, err := store.Get(context.Background(), "r-1")
	require.NoError(t, err)
	assert.Equal(t, "tx-1", r.TxID)
	assert.Equal(t, "25", r.Value)
	require.Len(t, r.Notifications, 1)
	assert.Equal(t, "Executed", r.Notifications[0].Name)
	assert.Equal(t, created, r.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetMissing(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM solver_receipts WHERE tx_id = $1")).
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetByTx(context.Background(), "nope")
	assert.True(t, stderrors.Is(err, errors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_List(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE sender = $1 AND vm_state = $2 ORDER BY created_at DESC LIMIT $3")).
		WithArgs("alice", chain.VMStateFault, 10).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("r-2", "tx-2", "alice", "solver", "trigger", "0", chain.VMStateFault, "UNAUTHORIZED",
				"unauthorized: caller is not the orchestrator", "", []byte(`[]`), int64(3), time.Now()).
			AddRow("r-1", "tx-1", "alice", "solver", "withdrawNative", "0", chain.VMStateFault, "TRANSFER_FAILED",
				"transfer failed", "", nil, int64(4), time.Now()))

	list, err := store.List(context.Background(), Filter{Sender: "alice", VMState: chain.VMStateFault, Limit: 10})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "UNAUTHORIZED", list[0].ErrorCode)
	assert.Nil(t, list[1].Notifications)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListUnfiltered(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM solver_receipts ORDER BY created_at DESC LIMIT $1")).
		WithArgs(DefaultLimit).
		WillReturnRows(sqlmock.NewRows(columns))

	list, err := store.List(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmbeddedMigrations(t *testing.T) {
	src, err := iofs.New(migrationFS, "migrations")
	require.NoError(t, err)
	defer src.Close()

	version, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	up, _, err := src.ReadUp(version)
	require.NoError(t, err)
	defer up.Close()
	body, err := io.ReadAll(up)
	require.NoError(t, err)
	assert.Contains(t, string(body), "CREATE TABLE IF NOT EXISTS solver_receipts")

	down, _, err := src.ReadDown(version)
	require.NoError(t, err)
	down.Close()
}

func TestPostgresIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}
	ctx := context.Background()
	db, err := Open(ctx, dsn, 2)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, Migrate(db.DB))

	store := NewPostgresStore(db)
	saved, err := store.Save(ctx, Receipt{TxID: "it-" + time.Now().Format(time.RFC3339Nano), Sender: "alice", Contract: "solver", VMState: chain.VMStateHalt})
	require.NoError(t, err)
	got, err := store.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved.TxID, got.TxID)
}
