package receipts

import (
	"context"
	"database/sql"
	"embed"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver

	"github.com/R3E-Network/solver_layer/internal/errors"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const receiptColumns = `id, tx_id, sender, contract, method, value, vm_state, error_code,
	exception, result, notifications, duration_us, created_at`

// PostgresStore stores receipts in PostgreSQL.
type PostgresStore struct {
	db *sqlx.DB
}

var _ Store = (*PostgresStore)(nil)

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string, maxOpenConns int) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	return db, nil
}

// Migrate applies the embedded schema migrations.
func Migrate(db *sql.DB) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	if err := m.Up(); err != nil && !stderrors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// NewPostgresStore creates a store using the provided database handle.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, r Receipt) (Receipt, error) {
	r = prepare(r)
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO solver_receipts (`+receiptColumns+`)
		VALUES (:id, :tx_id, :sender, :contract, :method, :value, :vm_state, :error_code,
			:exception, :result, :notifications, :duration_us, :created_at)
	`, r)
	if err != nil {
		return Receipt{}, errors.Internal("save receipt", err)
	}
	return r, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Receipt, error) {
	return s.getBy(ctx, "id", id)
}

func (s *PostgresStore) GetByTx(ctx context.Context, txID string) (Receipt, error) {
	return s.getBy(ctx, "tx_id", txID)
}

func (s *PostgresStore) getBy(ctx context.Context, column, value string) (Receipt, error) {
	var r Receipt
	err := s.db.GetContext(ctx, &r, `SELECT `+receiptColumns+` FROM solver_receipts WHERE `+column+` = $1`, value)
	if stderrors.Is(err, sql.ErrNoRows) {
		return Receipt{}, errors.NotFound("receipt", value)
	}
	if err != nil {
		return Receipt{}, errors.Internal("load receipt", err)
	}
	return r, nil
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]Receipt, error) {
	var (
		where []string
		args  []any
	)
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("sender", f.Sender)
	add("contract", f.Contract)
	add("method", f.Method)
	add("vm_state", f.VMState)

	query := `SELECT ` + receiptColumns + ` FROM solver_receipts`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.limit())
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))

	out := []Receipt{}
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, errors.Internal("list receipts", err)
	}
	return out, nil
}
