package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"olt-collector/internal/domain"
	"olt-collector/internal/domain/dto"
)

var errConnLost = errors.New("conn lost")

type fakeBatchResults struct {
	pgx.BatchResults
	n int
}

func (f *fakeBatchResults) Exec() (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeBatchResults) Close() error { return nil }

type fakeTx struct {
	pgx.Tx

	execSQL  []string
	execArgs [][]any
	execErr  error
	affected string

	batches []*pgx.Batch

	copyTable pgx.Identifier
	copyCols  []string
	copyRows  [][]any
	copyErr   error
}

func (f *fakeTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execSQL = append(f.execSQL, sql)
	f.execArgs = append(f.execArgs, args)
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	return pgconn.NewCommandTag(f.affected), nil
}

func (f *fakeTx) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	f.batches = append(f.batches, b)
	return &fakeBatchResults{n: b.Len()}
}

func (f *fakeTx) CopyFrom(_ context.Context, table pgx.Identifier, cols []string, src pgx.CopyFromSource) (int64, error) {
	f.copyTable = table
	f.copyCols = cols
	if f.copyErr != nil {
		return 0, f.copyErr
	}
	for src.Next() {
		values, err := src.Values()
		if err != nil {
			return 0, err
		}
		f.copyRows = append(f.copyRows, values)
	}
	return int64(len(f.copyRows)), src.Err()
}

type fakeDB struct {
	tx        *fakeTx
	txCalls   int
	committed int
	olts      []dto.OltRow
}

func (f *fakeDB) QueryStruct(_ context.Context, dest any, _ string, _ ...any) error {
	if rows, ok := dest.(*[]dto.OltRow); ok {
		*rows = f.olts
	}
	return nil
}

func (f *fakeDB) WithTx(_ context.Context, fn func(tx pgx.Tx) error) error {
	f.txCalls++
	if err := fn(f.tx); err != nil {
		return err
	}
	f.committed++
	return nil
}

func (f *fakeDB) Close() {}

func TestOltRepository_UpsertAll(t *testing.T) {
	db := &fakeDB{tx: &fakeTx{}}
	rpt := NewOltRepository(db)

	err := rpt.UpsertAll(context.Background(), []domain.OLT{
		{ID: "zyxel-1", Vendor: domain.VendorZyxel1408A, Host: "10.0.0.1", Port: 23, Username: "admin", PollInterval: 5 * time.Minute},
		{ID: "huawei-1", Vendor: domain.VendorHuawei, Host: "10.0.0.2", Port: 161, PollInterval: time.Minute},
	})
	require.NoError(t, err)

	require.Equal(t, 1, db.committed)
	require.Len(t, db.tx.batches, 1)
	queued := db.tx.batches[0].QueuedQueries
	require.Len(t, queued, 2)

	args := queued[0].Arguments
	assert.Equal(t, "zyxel-1", args[0])
	assert.Equal(t, "zyxel1408A", args[1])
	assert.Equal(t, 300, args[6])
	assert.Nil(t, args[5], "empty password is stored as NULL")
	assert.Equal(t, "admin", *args[4].(*string))
}

func TestOltRepository_UpsertAllEmpty(t *testing.T) {
	db := &fakeDB{tx: &fakeTx{}}

	require.NoError(t, NewOltRepository(db).UpsertAll(context.Background(), nil))
	assert.Zero(t, db.txCalls)
}

func TestOltRepository_List(t *testing.T) {
	db := &fakeDB{olts: []dto.OltRow{{ID: "zyxel-1", Vendor: "zyxel1408A"}}}

	rows, err := NewOltRepository(db).List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "zyxel-1", rows[0].ID)
}

func TestNewRepository_NilDBPanics(t *testing.T) {
	assert.Panics(t, func() { NewOltRepository(nil) })
	assert.Panics(t, func() { NewOntRepository(nil) })
	assert.Panics(t, func() { NewPowerRepository(nil) })
}

func TestOntRepository_ResolveEmptySkipsStore(t *testing.T) {
	db := &fakeDB{tx: &fakeTx{}}

	ids, err := NewOntRepository(db).Resolve(context.Background(), "zyxel-1", nil, time.Now())
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Zero(t, db.txCalls)
}

func TestOntRepository_ResolveLockFailure(t *testing.T) {
	db := &fakeDB{tx: &fakeTx{execErr: errConnLost}}

	_, err := NewOntRepository(db).Resolve(context.Background(), "zyxel-1",
		[]domain.NormalizedReading{{VendorOntID: "1-1-1"}}, time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStore)
	assert.ErrorIs(t, err, errConnLost)
	assert.Zero(t, db.committed)
	assert.Empty(t, db.tx.batches, "no upsert without the OLT lock")
}

func TestOntRepository_MarkStale(t *testing.T) {
	db := &fakeDB{tx: &fakeTx{affected: "UPDATE 4"}}
	olderThan := time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)

	marked, err := NewOntRepository(db).MarkStale(context.Background(), "zyxel-1", olderThan)
	require.NoError(t, err)
	assert.EqualValues(t, 4, marked)

	require.Len(t, db.tx.execSQL, 2)
	assert.Equal(t, lockOltQuery, db.tx.execSQL[0])
	assert.Equal(t, []any{"zyxel-1", olderThan, int16(98)}, db.tx.execArgs[1])
}

func TestPowerRepository_Append(t *testing.T) {
	db := &fakeDB{tx: &fakeTx{}}
	now := time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)

	written, err := NewPowerRepository(db).Append(context.Background(), []domain.PowerSample{
		{Time: now, OntID: 7, Tx: domain.PowerValue{Value: 2.1, Valid: true}, Rx: domain.PowerValue{Value: -22.5, Valid: true}, Status: domain.StatusUp},
		{Time: now, OntID: 8, Status: domain.StatusDown},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, written)

	assert.Equal(t, pgx.Identifier{"ont_power"}, db.tx.copyTable)
	assert.Equal(t, []string{"time", "ont_id", "ptx", "prx", "status"}, db.tx.copyCols)

	require.Len(t, db.tx.copyRows, 2)
	assert.Equal(t, int64(7), db.tx.copyRows[0][1])
	assert.InDelta(t, -22.5, *db.tx.copyRows[0][3].(*float64), 1e-9)
	assert.Nil(t, db.tx.copyRows[1][2], "absent power is written as NULL")
	assert.Nil(t, db.tx.copyRows[1][3])
	assert.Equal(t, int16(0), db.tx.copyRows[1][4])
}

func TestPowerRepository_AppendFailureWritesNothing(t *testing.T) {
	db := &fakeDB{tx: &fakeTx{copyErr: errConnLost}}

	written, err := NewPowerRepository(db).Append(context.Background(), []domain.PowerSample{{OntID: 1}})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStore)
	assert.Zero(t, written)
	assert.Zero(t, db.committed)
}
