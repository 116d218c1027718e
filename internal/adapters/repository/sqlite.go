package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/okian/histsync/internal/domain/filter"
	"github.com/okian/histsync/internal/domain/historian"
	"github.com/okian/histsync/internal/domain/model"
	"github.com/okian/histsync/pkg/logger"
	"github.com/okian/histsync/pkg/retry"

	// SQLite driver using pure Go implementation
	_ "modernc.org/sqlite"
)

// SQLite historian.
//
// Names are unique by their folded form. Timestamps are stored as Unix
// microseconds (model.Precision), values as CBOR blobs. Value filters are
// evaluated in Go after decoding.

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS points (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		name       TEXT    NOT NULL,
		folded     TEXT    NOT NULL UNIQUE,
		attributes BLOB,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS vals (
		point_id  INTEGER NOT NULL REFERENCES points(id) ON DELETE CASCADE,
		attribute TEXT    NOT NULL DEFAULT '',
		ts        INTEGER NOT NULL,
		value     BLOB    NOT NULL,
		uom       TEXT    NOT NULL DEFAULT '',
		PRIMARY KEY (point_id, attribute, ts)
	) WITHOUT ROWID;
`

// SQLiteStore is a historian backed by a SQLite database file.
type SQLiteStore struct {
	db       *sql.DB
	codec    codec
	settings settings
	mu       sync.RWMutex
	closed   bool
}

var _ Historian = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty sqlite path", historian.ErrConnection)
	}
	st := defaultSettings()
	for _, opt := range opts {
		opt(&st)
	}
	c, err := newCodec()
	if err != nil {
		return nil, err
	}

	memory := path == ":memory:" || strings.HasPrefix(path, "file::memory:")
	if memory {
		// every pooled connection would see its own empty database
		st.maxOpenConns = 1
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn := fmt.Sprintf("%s%s_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)", path, sep, st.busyTimeout)
	if !memory {
		dsn += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite %s: %w", historian.ErrConnection, path, err)
	}
	db.SetMaxOpenConns(st.maxOpenConns)
	db.SetMaxIdleConns(st.maxOpenConns)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping sqlite %s: %w", historian.ErrConnection, path, err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: initialize schema: %w", historian.ErrConnection, err)
	}

	st.log.Debug(ctx, "sqlite store opened", logger.String("path", path))
	return &SQLiteStore{db: db, codec: c, settings: st}, nil
}

// Close closes the database. Later calls fail with historian.ErrClosed.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// do runs op under the read lock with the transient-failure retry policy.
func do[T any](ctx context.Context, s *SQLiteStore, op func(ctx context.Context) (T, error)) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		var zero T
		return zero, historian.ErrClosed
	}
	v, res := retry.DoValue(ctx, s.settings.retryer, op)
	if res.Err != nil && res.Attempts > 1 {
		s.settings.log.Warn(ctx, "sqlite operation failed after retries",
			logger.Int("attempts", res.Attempts), logger.Error(res.Err))
	}
	return v, res.Err
}

// FindPoints implements historian.Store.
func (s *SQLiteStore) FindPoints(ctx context.Context, f string, offset, limit int) ([]model.Point, int, error) {
	q, err := filter.ParsePointQuery(f)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", historian.ErrInvalidFilter, err)
	}
	if offset < 0 || limit <= 0 {
		return nil, 0, fmt.Errorf("%w: offset %d limit %d", historian.ErrInvalidFilter, offset, limit)
	}

	likes := q.LikePatterns()
	conds := make([]string, len(likes))
	args := make([]any, 0, len(likes)+2)
	for i, l := range likes {
		conds[i] = `folded LIKE ? ESCAPE '\'`
		args = append(args, l)
	}
	where := strings.Join(conds, " OR ")

	type page struct {
		points []model.Point
		total  int
	}
	res, err := do(ctx, s, func(ctx context.Context) (page, error) {
		var p page
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM points WHERE "+where, args...).Scan(&p.total); err != nil {
			return p, fmt.Errorf("count points: %w", err)
		}
		rows, err := s.db.QueryContext(ctx,
			"SELECT name, attributes FROM points WHERE "+where+" ORDER BY folded LIMIT ? OFFSET ?",
			append(args, limit, offset)...)
		if err != nil {
			return p, fmt.Errorf("list points: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				name string
				blob []byte
			)
			if err := rows.Scan(&name, &blob); err != nil {
				return p, fmt.Errorf("scan point: %w", err)
			}
			attrs, err := s.codec.decodeAttrs(blob)
			if err != nil {
				return p, err
			}
			p.points = append(p.points, model.Point{Name: name, Attributes: attrs})
		}
		return p, rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}
	return res.points, res.total, nil
}

// CreatePoints implements historian.Store.
func (s *SQLiteStore) CreatePoints(ctx context.Context, names []string, attrs map[string]any) error {
	blob, err := s.codec.encodeAttrs(attrs)
	if err != nil {
		return err
	}
	for _, n := range names {
		if n == "" {
			return fmt.Errorf("%w: empty point name", historian.ErrInvalidFilter)
		}
	}

	_, err = do(ctx, s, func(ctx context.Context) (struct{}, error) {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return struct{}{}, fmt.Errorf("begin: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		stmt, err := tx.PrepareContext(ctx,
			"INSERT OR IGNORE INTO points (name, folded, attributes, created_at) VALUES (?, ?, ?, ?)")
		if err != nil {
			return struct{}{}, fmt.Errorf("prepare insert point: %w", err)
		}
		defer stmt.Close()

		now := time.Now().UnixMicro()
		for _, n := range names {
			if _, err := stmt.ExecContext(ctx, n, model.FoldName(n), blob, now); err != nil {
				return struct{}{}, fmt.Errorf("insert point %s: %w", n, err)
			}
		}
		return struct{}{}, tx.Commit()
	})
	return err
}

// GetValues implements historian.Store.
func (s *SQLiteStore) GetValues(ctx context.Context, point string, attribute *string, r model.TimeRange,
	f *string, newestFirst bool) ([]model.Value, error) {
	vf, err := parseValueFilter(f)
	if err != nil {
		return nil, err
	}
	order := "ASC"
	if newestFirst {
		order = "DESC"
	}

	return do(ctx, s, func(ctx context.Context) ([]model.Value, error) {
		id, err := s.pointID(ctx, point)
		if err != nil {
			return nil, err
		}
		lo, hi := micros(r)
		rows, err := s.db.QueryContext(ctx,
			"SELECT ts, value, uom FROM vals WHERE point_id = ? AND attribute = ? AND ts >= ? AND ts <= ? ORDER BY ts "+order,
			id, attr(attribute), lo, hi)
		if err != nil {
			return nil, fmt.Errorf("query values of %s: %w", point, err)
		}
		defer rows.Close()

		var out []model.Value
		for rows.Next() {
			var (
				ts   int64
				blob []byte
				uom  string
			)
			if err := rows.Scan(&ts, &blob, &uom); err != nil {
				return nil, fmt.Errorf("scan value: %w", err)
			}
			v, err := s.codec.decodeValue(blob)
			if err != nil {
				return nil, err
			}
			if vf != nil && !vf.Match(v) {
				continue
			}
			out = append(out, model.Value{Timestamp: time.UnixMicro(ts).UTC(), Value: v, UOM: uom})
		}
		return out, rows.Err()
	})
}

// GetValueCount implements historian.Store.
func (s *SQLiteStore) GetValueCount(ctx context.Context, point string, attribute *string, r model.TimeRange,
	f *string) (int, error) {
	if f != nil {
		vals, err := s.GetValues(ctx, point, attribute, r, f, false)
		return len(vals), err
	}
	return do(ctx, s, func(ctx context.Context) (int, error) {
		id, err := s.pointID(ctx, point)
		if err != nil {
			return 0, err
		}
		var n int
		lo, hi := micros(r)
		err = s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM vals WHERE point_id = ? AND attribute = ? AND ts >= ? AND ts <= ?",
			id, attr(attribute), lo, hi).Scan(&n)
		if err != nil {
			return 0, fmt.Errorf("count values of %s: %w", point, err)
		}
		return n, nil
	})
}

// PutValues implements historian.Store. Values of unsupported kinds, with a
// zero timestamp, or repeating an earlier timestamp of the same call once
// truncated to model.Precision are rejected and counted; the rest are
// written in one transaction.
func (s *SQLiteStore) PutValues(ctx context.Context, point string, values []model.Value, mode model.UpdateMode) (int, error) {
	if mode != model.Replace {
		return 0, fmt.Errorf("unsupported update mode %s", mode)
	}
	return s.put(ctx, point, "", values)
}

func (s *SQLiteStore) put(ctx context.Context, point, attribute string, values []model.Value) (int, error) {
	type row struct {
		ts   int64
		blob []byte
		uom  string
	}
	rows := make([]row, 0, len(values))
	seen := make(map[int64]struct{}, len(values))
	failed := 0
	for _, v := range values {
		blob, err := s.codec.encodeValue(v.Value)
		if err != nil || v.Timestamp.IsZero() {
			failed++
			continue
		}
		ts := v.Timestamp.UnixMicro()
		if _, dup := seen[ts]; dup {
			failed++
			continue
		}
		seen[ts] = struct{}{}
		rows = append(rows, row{ts: ts, blob: blob, uom: v.UOM})
	}

	_, err := do(ctx, s, func(ctx context.Context) (struct{}, error) {
		id, err := s.pointID(ctx, point)
		if err != nil {
			return struct{}{}, err
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return struct{}{}, fmt.Errorf("begin: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		stmt, err := tx.PrepareContext(ctx,
			"INSERT OR REPLACE INTO vals (point_id, attribute, ts, value, uom) VALUES (?, ?, ?, ?, ?)")
		if err != nil {
			return struct{}{}, fmt.Errorf("prepare insert value: %w", err)
		}
		defer stmt.Close()

		for _, r := range rows {
			if _, err := stmt.ExecContext(ctx, id, attribute, r.ts, r.blob, r.uom); err != nil {
				return struct{}{}, fmt.Errorf("insert value of %s: %w", point, err)
			}
		}
		return struct{}{}, tx.Commit()
	})
	if err != nil {
		return 0, err
	}
	if failed > 0 {
		s.settings.log.Debug(ctx, "values rejected",
			logger.String("point", point),
			logger.String("attribute", attribute),
			logger.Int("failed", failed),
			logger.Int("attempted", len(values)))
	}
	return failed, nil
}

// InsertValue implements historian.ValueEditor.
func (s *SQLiteStore) InsertValue(ctx context.Context, point string, attribute *string, v model.Value) error {
	failed, err := s.put(ctx, point, attr(attribute), []model.Value{v})
	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%w: %T", ErrUnsupportedValue, v.Value)
	}
	return nil
}

// DeleteValues implements historian.ValueEditor.
func (s *SQLiteStore) DeleteValues(ctx context.Context, point string, attribute *string, r model.TimeRange) (int, error) {
	return do(ctx, s, func(ctx context.Context) (int, error) {
		id, err := s.pointID(ctx, point)
		if err != nil {
			return 0, err
		}
		lo, hi := micros(r)
		res, err := s.db.ExecContext(ctx,
			"DELETE FROM vals WHERE point_id = ? AND attribute = ? AND ts >= ? AND ts <= ?",
			id, attr(attribute), lo, hi)
		if err != nil {
			return 0, fmt.Errorf("delete values of %s: %w", point, err)
		}
		n, err := res.RowsAffected()
		return int(n), err
	})
}

func (s *SQLiteStore) pointID(ctx context.Context, point string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM points WHERE folded = ?", model.FoldName(point)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", historian.ErrPointNotFound, point)
	}
	if err != nil {
		return 0, fmt.Errorf("look up point %s: %w", point, err)
	}
	return id, nil
}

func attr(attribute *string) string {
	if attribute == nil {
		return ""
	}
	return *attribute
}

// micros returns the stored timestamp span inside r. A start between two
// microseconds rounds up, so both drivers include exactly the same values.
func micros(r model.TimeRange) (int64, int64) {
	lo := r.Start.UnixMicro()
	if !r.Start.Equal(time.UnixMicro(lo)) {
		lo++
	}
	return lo, r.End.UnixMicro()
}
