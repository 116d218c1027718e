package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/histsync/internal/domain/historian"
	"github.com/okian/histsync/internal/domain/model"
)

func TestMemoryStoreContract(t *testing.T) {
	runContract(t, func(t *testing.T) Historian {
		s, err := NewMemoryStore("")
		require.NoError(t, err)
		return s
	})
}

func TestMemoryStoreSnapshot(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "hist.snap")

	s, err := NewMemoryStore(path)
	require.NoError(t, err)
	require.NoError(t, s.CreatePoints(ctx, []string{"Tank.PV"}, map[string]any{"uom": "m"}))
	_, err = s.PutValues(ctx, "Tank.PV", []model.Value{{Timestamp: t0, Value: 4.25, UOM: "m"}}, model.Replace)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := NewMemoryStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	pts, total, err := reopened.FindPoints(ctx, "*", 0, 10)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, "Tank.PV", pts[0].Name)
	assert.Equal(t, map[string]any{"uom": "m"}, pts[0].Attributes)

	vals, err := reopened.GetValues(ctx, "tank.pv", nil, model.TimeRange{Start: t0, End: t0}, nil, false)
	require.NoError(t, err)
	assert.Equal(t, []model.Value{{Timestamp: t0, Value: 4.25, UOM: "m"}}, vals)
}

func TestMemoryStoreCorruptSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.snap")
	require.NoError(t, os.WriteFile(path, []byte{0xff, 0x00}, 0o600))

	_, err := NewMemoryStore(path)
	assert.ErrorIs(t, err, historian.ErrConnection)
}

func TestTreapOrderStatistics(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemoryStore("")
	require.NoError(t, err)

	const n = 500
	names := make([]string, 0, n)
	for i := n - 1; i >= 0; i-- {
		names = append(names, fmt.Sprintf("P%04d", i))
	}
	require.NoError(t, s.CreatePoints(ctx, names, nil))
	assert.Equal(t, n, nsize(s.root))

	for _, offset := range []int{0, 1, 137, 498, 499, 500, 750} {
		pts, total, err := s.FindPoints(ctx, "*", offset, 3)
		require.NoError(t, err)
		assert.Equal(t, n, total)
		var want []string
		for i := offset; i < min(offset+3, n); i++ {
			want = append(want, model.FoldName(fmt.Sprintf("P%04d", i)))
		}
		var got []string
		for _, p := range pts {
			got = append(got, model.FoldName(p.Name))
		}
		assert.Equal(t, want, got, "offset %d", offset)
	}
}

func TestMemoryStoreConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemoryStore("")
	require.NoError(t, err)
	require.NoError(t, s.CreatePoints(ctx, []string{"P1"}, nil))

	done := make(chan struct{})
	for g := range 4 {
		go func() {
			defer func() { done <- struct{}{} }()
			for i := range 50 {
				ts := t0.Add(time.Duration(g*1000+i) * time.Second)
				_, _ = s.PutValues(ctx, "P1", []model.Value{{Timestamp: ts, Value: float64(i)}}, model.Replace)
			}
		}()
	}
	for range 4 {
		<-done
	}

	n, err := s.GetValueCount(ctx, "P1", nil, model.TimeRange{Start: t0, End: t0.Add(24 * time.Hour)}, nil)
	require.NoError(t, err)
	assert.Equal(t, 200, n)
}
