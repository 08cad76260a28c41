package txtrack

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var recordRowColumns = []string{
	"id", "account", "kind", "contract", "calldata", "value", "chain_id",
	"status", "tx_hash", "error", "block_number", "created_at", "updated_at",
}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(sqlx.NewDb(db, "postgres")), mock
}

func sampleRecord() Record {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return Record{
		ID:        "tx-1",
		Account:   "0x00000000000000000000000000000000000000aa",
		Kind:      KindDeposit,
		Contract:  "0x00000000000000000000000000000000000000a1",
		Calldata:  "0x01",
		Value:     "0",
		ChainID:   1,
		Status:    StatusPendingSignature,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func recordRow(rec Record) *sqlmock.Rows {
	return sqlmock.NewRows(recordRowColumns).AddRow(
		rec.ID, rec.Account, string(rec.Kind), rec.Contract, rec.Calldata, rec.Value, rec.ChainID,
		string(rec.Status), rec.TxHash, rec.Error, rec.BlockNumber, rec.CreatedAt, rec.UpdatedAt,
	)
}

func TestPostgresStore_Create(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO tx_records").WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Create(context.Background(), sampleRecord()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get(t *testing.T) {
	store, mock := newMockStore(t)
	rec := sampleRecord()
	mock.ExpectQuery("SELECT (.+) FROM tx_records WHERE id = \\$1").
		WithArgs("tx-1").
		WillReturnRows(recordRow(rec))

	got, err := store.Get(context.Background(), "tx-1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetMissing(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM tx_records").WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStore_Update(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE tx_records").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE tx_records").WillReturnResult(sqlmock.NewResult(0, 0))

	rec := sampleRecord()
	rec.Status = StatusConfirmed
	require.NoError(t, store.Update(context.Background(), rec))
	assert.ErrorIs(t, store.Update(context.Background(), rec), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Transition(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE tx_records").
		WithArgs(string(StatusPendingConfirmation), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "tx-1", string(StatusPendingSignature)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE tx_records").WillReturnResult(sqlmock.NewResult(0, 0))

	rec := sampleRecord()
	rec.Status = StatusPendingConfirmation
	require.NoError(t, store.Transition(context.Background(), rec, StatusPendingSignature))
	assert.ErrorIs(t, store.Transition(context.Background(), rec, StatusPendingSignature), ErrStatusConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryStore_Transition(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	rec := sampleRecord()
	require.NoError(t, store.Create(ctx, rec))

	failed := rec
	failed.Status = StatusFailed
	require.NoError(t, store.Transition(ctx, failed, StatusPendingSignature))

	confirmed := rec
	confirmed.Status = StatusConfirmed
	assert.ErrorIs(t, store.Transition(ctx, confirmed, StatusPendingSignature), ErrStatusConflict)

	got, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)

	missing := rec
	missing.ID = "missing"
	assert.ErrorIs(t, store.Transition(ctx, missing, StatusPendingSignature), ErrNotFound)
}

func TestPostgresStore_ListByAccount(t *testing.T) {
	store, mock := newMockStore(t)
	rec := sampleRecord()
	mock.ExpectQuery("FROM tx_records\\s+WHERE account = \\$1").
		WithArgs(rec.Account, 100).
		WillReturnRows(recordRow(rec))

	recs, err := store.ListByAccount(context.Background(), rec.Account, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, rec.ID, recs[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrationSource(t *testing.T) {
	src, err := MigrationSource()
	require.NoError(t, err)
	defer src.Close()

	version, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
}

func TestPostgresStore_Integration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	db, err := Connect(ctx, dsn)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, Migrate(db.DB))

	store := NewPostgresStore(db)
	rec := sampleRecord()
	rec.ID = "it-" + time.Now().Format("150405.000000")
	require.NoError(t, store.Create(ctx, rec))

	rec.Status = StatusPendingConfirmation
	rec.TxHash = "0xabc"
	require.NoError(t, store.Update(ctx, rec))

	pending, err := store.ListByStatus(ctx, StatusPendingConfirmation)
	require.NoError(t, err)
	var found bool
	for _, p := range pending {
		found = found || p.ID == rec.ID
	}
	assert.True(t, found)
}
