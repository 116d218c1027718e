package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/histsync/internal/domain/historian"
	"github.com/okian/histsync/internal/domain/model"
	"github.com/okian/histsync/pkg/retry"
)

func openSQLite(t *testing.T) Historian {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "hist.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStoreContract(t *testing.T) {
	runContract(t, openSQLite)
}

func TestSQLiteStoreInMemory(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(ctx, ":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.CreatePoints(ctx, []string{"P1"}, nil))
	_, total, err := s.FindPoints(ctx, "*", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestSQLiteStorePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "hist.db")

	s, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.CreatePoints(ctx, []string{"P1"}, map[string]any{"zero": 0.0}))
	_, err = s.PutValues(ctx, "P1", []model.Value{{Timestamp: t0, Value: "Open"}}, model.Replace)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	n, err := s.GetValueCount(ctx, "P1", nil, model.TimeRange{Start: t0, End: t0}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLiteStoreMicrosecondTimestamps(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)
	require.NoError(t, s.CreatePoints(ctx, []string{"P1"}, nil))

	ts := t0.Add(1500 * time.Nanosecond)
	_, err := s.PutValues(ctx, "P1", []model.Value{{Timestamp: ts, Value: 1.0}}, model.Replace)
	require.NoError(t, err)

	got, err := s.GetValues(ctx, "P1", nil, model.TimeRange{Start: t0, End: t0.Add(time.Second)}, nil, false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, t0.Add(time.Microsecond), got[0].Timestamp)
}

func TestSQLiteStoreOpenFailure(t *testing.T) {
	_, err := NewSQLiteStore(context.Background(), "")
	assert.ErrorIs(t, err, historian.ErrConnection)

	_, err = NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "missing", "dir", "hist.db"))
	assert.ErrorIs(t, err, historian.ErrConnection)
}

func TestSQLiteStoreRetryPolicyIsApplied(t *testing.T) {
	ctx := context.Background()
	attempts := 0
	r := retry.New(
		retry.WithMaxAttempts(3),
		retry.WithRetryIf(func(error) bool { attempts++; return false }),
	)
	s, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "hist.db"), WithRetryer(r))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.GetValueCount(ctx, "missing", nil, model.TimeRange{Start: t0, End: t0}, nil)
	assert.ErrorIs(t, err, historian.ErrPointNotFound)
	assert.Equal(t, 1, attempts)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	h, err := Open(ctx, DriverMemory, "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, h)

	h, err = Open(ctx, DriverSQLite, filepath.Join(t.TempDir(), "x.db"))
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, h)
	require.NoError(t, h.Close())

	_, err = Open(ctx, "oracle", "")
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestInstrumentedPassesThrough(t *testing.T) {
	ctx := context.Background()
	base, err := NewMemoryStore("")
	require.NoError(t, err)
	h := Instrument(base, "test")

	require.NoError(t, h.CreatePoints(ctx, []string{"P1"}, nil))
	failed, err := h.PutValues(ctx, "P1", []model.Value{{Timestamp: t0, Value: 1.0}}, model.Replace)
	require.NoError(t, err)
	assert.Zero(t, failed)
	n, err := h.GetValueCount(ctx, "P1", nil, model.TimeRange{Start: t0, End: t0}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = h.GetValues(ctx, "nope", nil, model.TimeRange{Start: t0, End: t0}, nil, false)
	assert.ErrorIs(t, err, historian.ErrPointNotFound)
	mode := "mode"
	require.NoError(t, h.InsertValue(ctx, "P1", nil, model.Value{Timestamp: t0.Add(time.Second), Value: 2.0}))
	require.NoError(t, h.InsertValue(ctx, "P1", &mode, model.Value{Timestamp: t0, Value: "AUTO"}))
	removed, err := h.DeleteValues(ctx, "P1", &mode, model.TimeRange{Start: t0, End: t0.Add(time.Second)})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}
