package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"sightline/internal/config"
	"sightline/internal/model"
)

// Store persists narration history, alerts and the description cache.
type Store interface {
	Init(ctx context.Context) error
	Close() error
	SaveHistory(ctx context.Context, entry model.HistoryEntry) error
	History(ctx context.Context, limit int) ([]model.HistoryEntry, error)
	SaveAlert(ctx context.Context, alert model.Alert) error
	CachedDescription(ctx context.Context, key string) (string, bool, error)
	CacheDescription(ctx context.Context, key, objects, text string) error
	PruneCache(ctx context.Context, olderThan time.Time, minUses int) (int64, error)
}

var ErrUnsupportedDriver = errors.New("unsupported storage driver")

// NewStore returns nil when storage is disabled.
func NewStore(cfg config.StorageConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}
}

// baseStore holds the queries shared by both dialects. Queries are written
// with ? placeholders and rewritten for drivers that number them.
type baseStore struct {
	db       *sql.DB
	numbered bool
	textTime bool
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func (b *baseStore) q(query string) string {
	if !b.numbered {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// timeLayout is fixed width so text timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func (b *baseStore) ts(t time.Time) any {
	if b.textTime {
		return t.UTC().Format(timeLayout)
	}
	return t.UTC()
}

func (b *baseStore) SaveHistory(ctx context.Context, entry model.HistoryEntry) error {
	if b.db == nil {
		return nil
	}
	_, err := b.db.ExecContext(ctx, b.q(
		`INSERT INTO history (id, ts, camera_id, description, source, object_count, objects_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		entry.ID,
		b.ts(entry.Timestamp),
		entry.CameraID,
		entry.Description,
		entry.Source,
		entry.ObjectCount,
		encodeJSON(entry.Objects),
	)
	if err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

func (b *baseStore) History(ctx context.Context, limit int) ([]model.HistoryEntry, error) {
	if b.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := b.db.QueryContext(ctx, b.q(
		`SELECT id, ts, camera_id, description, source, object_count, objects_json
		FROM history ORDER BY ts DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()
	out := make([]model.HistoryEntry, 0, limit)
	for rows.Next() {
		var (
			e       model.HistoryEntry
			ts      sqlTime
			objects sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &e.CameraID, &e.Description, &e.Source, &e.ObjectCount, &objects); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.Timestamp = ts.Time
		if objects.Valid && objects.String != "" {
			_ = json.Unmarshal([]byte(objects.String), &e.Objects)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (b *baseStore) SaveAlert(ctx context.Context, alert model.Alert) error {
	if b.db == nil {
		return nil
	}
	_, err := b.db.ExecContext(ctx, b.q(
		`INSERT INTO alerts (ts, camera_id, class, level, distance, position, pattern, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		b.ts(alert.Timestamp),
		alert.CameraID,
		alert.Class,
		string(alert.Level),
		alert.Distance,
		string(alert.Position),
		string(alert.Pattern),
		alert.Message,
	)
	if err != nil {
		return fmt.Errorf("save alert: %w", err)
	}
	return nil
}

// CachedDescription returns the stored text for key and counts the use.
func (b *baseStore) CachedDescription(ctx context.Context, key string) (string, bool, error) {
	if b.db == nil {
		return "", false, nil
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, err
	}
	var text string
	err = tx.QueryRowContext(ctx, b.q(`SELECT text FROM description_cache WHERE cache_key = ?`), key).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		_ = tx.Rollback()
		return "", false, nil
	}
	if err != nil {
		_ = tx.Rollback()
		return "", false, fmt.Errorf("lookup description: %w", err)
	}
	if _, err := tx.ExecContext(ctx, b.q(
		`UPDATE description_cache SET usage_count = usage_count + 1, last_used = ? WHERE cache_key = ?`),
		b.ts(nowUTC()), key); err != nil {
		_ = tx.Rollback()
		return "", false, fmt.Errorf("touch description: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", false, err
	}
	return text, true, nil
}

func (b *baseStore) CacheDescription(ctx context.Context, key, objects, text string) error {
	if b.db == nil {
		return nil
	}
	now := b.ts(nowUTC())
	_, err := b.db.ExecContext(ctx, b.q(
		`INSERT INTO description_cache (cache_key, objects_json, text, usage_count, created_at, last_used)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT (cache_key) DO UPDATE SET text = excluded.text, objects_json = excluded.objects_json, last_used = excluded.last_used`),
		key, objects, text, now, now,
	)
	if err != nil {
		return fmt.Errorf("cache description: %w", err)
	}
	return nil
}

// PruneCache deletes entries unused since olderThan that were used fewer
// than minUses times.
func (b *baseStore) PruneCache(ctx context.Context, olderThan time.Time, minUses int) (int64, error) {
	if b.db == nil {
		return 0, nil
	}
	res, err := b.db.ExecContext(ctx, b.q(
		`DELETE FROM description_cache WHERE last_used < ? AND usage_count < ?`),
		b.ts(olderThan), minUses)
	if err != nil {
		return 0, fmt.Errorf("prune cache: %w", err)
	}
	return res.RowsAffected()
}

// sqlTime scans native timestamps as well as the text layout used on sqlite.
type sqlTime struct {
	Time time.Time
}

func (s *sqlTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		s.Time = time.Time{}
		return nil
	case time.Time:
		s.Time = v.UTC()
		return nil
	case string:
		return s.parse(v)
	case []byte:
		return s.parse(string(v))
	}
	return fmt.Errorf("unsupported timestamp type %T", src)
}

func (s *sqlTime) parse(v string) error {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00"} {
		if t, err := time.Parse(layout, v); err == nil {
			s.Time = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", v)
}

var _ sql.Scanner = (*sqlTime)(nil)

func encodeJSON(value any) string {
	data, _ := json.Marshal(value)
	return string(data)
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
