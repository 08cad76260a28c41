package txtrack

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// MigrationSource returns the embedded schema migrations.
func MigrationSource() (source.Driver, error) {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	return src, nil
}

// Migrate applies every pending schema migration.
func Migrate(db *sql.DB) error {
	src, err := MigrationSource()
	if err != nil {
		return err
	}
	driver, err := migratepg.WithInstance(db, &migratepg.Config{MigrationsTable: "vault_portal_migrations"})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Connect opens a Postgres connection pool.
func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return db, nil
}

// PostgresStore is a Store backed by PostgreSQL.
type PostgresStore struct {
	db *sqlx.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a store using db.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const recordColumns = `id, account, kind, contract, calldata, value, chain_id, status, tx_hash, error, block_number, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, rec Record) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO tx_records (`+recordColumns+`)
		VALUES (:id, :account, :kind, :contract, :calldata, :value, :chain_id, :status, :tx_hash, :error, :block_number, :created_at, :updated_at)
	`, rec)
	if err != nil {
		return fmt.Errorf("insert tx record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Record, error) {
	var rec Record
	err := s.db.GetContext(ctx, &rec, `SELECT `+recordColumns+` FROM tx_records WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get tx record: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) Update(ctx context.Context, rec Record) error {
	result, err := s.db.NamedExecContext(ctx, `
		UPDATE tx_records
		SET status = :status, tx_hash = :tx_hash, error = :error, block_number = :block_number, updated_at = :updated_at
		WHERE id = :id
	`, rec)
	if err != nil {
		return fmt.Errorf("update tx record: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Transition(ctx context.Context, rec Record, from Status) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tx_records
		SET status = $1, tx_hash = $2, error = $3, block_number = $4, updated_at = $5
		WHERE id = $6 AND status = $7
	`, rec.Status, rec.TxHash, rec.Error, rec.BlockNumber, rec.UpdatedAt, rec.ID, from)
	if err != nil {
		return fmt.Errorf("transition tx record: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition tx record: %w", err)
	}
	if rows == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (s *PostgresStore) ListByAccount(ctx context.Context, account string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []Record
	err := s.db.SelectContext(ctx, &out, `
		SELECT `+recordColumns+`
		FROM tx_records
		WHERE account = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, account, limit)
	if err != nil {
		return nil, fmt.Errorf("list tx records: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status Status) ([]Record, error) {
	var out []Record
	err := s.db.SelectContext(ctx, &out, `
		SELECT `+recordColumns+`
		FROM tx_records
		WHERE status = $1
		ORDER BY created_at
	`, status)
	if err != nil {
		return nil, fmt.Errorf("list tx records: %w", err)
	}
	return out, nil
}
