package postgres

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.platform.alem.school/amibragim/order-events/internal/domain/orders"
	"git.platform.alem.school/amibragim/order-events/internal/ports"
)

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(r.values))
	}
	for i, d := range dest {
		target := reflect.ValueOf(d).Elem()
		if r.values[i] == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		target.Set(reflect.ValueOf(r.values[i]))
	}
	return nil
}

type execCall struct {
	sql  string
	args []any
}

type fakeDB struct {
	execs   []execCall
	execErr error
	row     fakeRow
	queries []execCall
}

func (db *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.execs = append(db.execs, execCall{sql: sql, args: args})
	if db.execErr != nil {
		return pgconn.CommandTag{}, db.execErr
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (db *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	db.queries = append(db.queries, execCall{sql: sql, args: args})
	return db.row
}

const orderID = "3f0c1a8e-8d4c-4c1e-9f55-0b9a3b1e2d71"

func TestRecordProcessed_Inserts(t *testing.T) {
	db := &fakeDB{}
	repo := NewOrdersRepo(db)
	processedAt := time.Date(2026, 3, 1, 10, 0, 5, 0, time.UTC)

	err := repo.RecordProcessed(context.Background(), orders.ProcessedOrder{
		MessageID:   "m-1",
		OrderID:     uuid.MustParse(orderID),
		Amount:      decimal.RequireFromString("42.50"),
		ProcessedAt: processedAt,
	})

	require.NoError(t, err)
	require.Len(t, db.execs, 1)
	assert.Contains(t, db.execs[0].sql, "ON CONFLICT (message_id) DO NOTHING")
	args := db.execs[0].args
	assert.Equal(t, "m-1", args[0])
	assert.Equal(t, orderID, args[1])
	assert.Equal(t, "42.5", args[2])
	assert.Nil(t, args[3])
	assert.Equal(t, processedAt, args[5])
}

func TestRecordProcessed_WrapsError(t *testing.T) {
	db := &fakeDB{execErr: errors.New("connection refused")}

	err := NewOrdersRepo(db).RecordProcessed(context.Background(), orders.ProcessedOrder{MessageID: "m-1"})

	assert.ErrorContains(t, err, "insert processed order: connection refused")
}

func TestGetByOrderID_Found(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	processed := created.Add(5 * time.Second)
	corr := "c-1"
	db := &fakeDB{row: fakeRow{values: []any{"m-1", orderID, "42.50", &corr, &created, processed}}}

	got, err := NewOrdersRepo(db).GetByOrderID(context.Background(), orderID)

	require.NoError(t, err)
	assert.Equal(t, "m-1", got.MessageID)
	assert.Equal(t, orderID, got.OrderID.String())
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("42.5")))
	assert.Equal(t, "c-1", got.CorrelationID)
	require.NotNil(t, got.CreatedAt)
	assert.Equal(t, created, *got.CreatedAt)
	assert.Equal(t, processed, got.ProcessedAt)
}

func TestGetByOrderID_NullableColumns(t *testing.T) {
	db := &fakeDB{row: fakeRow{values: []any{"m-1", orderID, "1", nil, nil, time.Now()}}}

	got, err := NewOrdersRepo(db).GetByOrderID(context.Background(), orderID)

	require.NoError(t, err)
	assert.Empty(t, got.CorrelationID)
	assert.Nil(t, got.CreatedAt)
}

func TestGetByOrderID_NotFound(t *testing.T) {
	db := &fakeDB{row: fakeRow{err: pgx.ErrNoRows}}

	_, err := NewOrdersRepo(db).GetByOrderID(context.Background(), orderID)

	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestGetByOrderID_InvalidIDIsNotFound(t *testing.T) {
	db := &fakeDB{}

	_, err := NewOrdersRepo(db).GetByOrderID(context.Background(), "not-a-uuid")

	assert.ErrorIs(t, err, ports.ErrNotFound)
	assert.Empty(t, db.queries)
}

func TestEnsureSchema(t *testing.T) {
	db := &fakeDB{}

	require.NoError(t, EnsureSchema(context.Background(), db))
	require.Len(t, db.execs, 1)
	assert.Contains(t, db.execs[0].sql, "CREATE TABLE IF NOT EXISTS processed_orders")

	db.execErr = errors.New("permission denied")
	assert.ErrorContains(t, EnsureSchema(context.Background(), db), "ensure schema")
}

func TestNewPool_RequiresDSN(t *testing.T) {
	_, err := NewPool(context.Background(), "", nil)

	assert.ErrorIs(t, err, ErrNoDatabase)
}
