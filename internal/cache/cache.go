// Package cache is the persistent translation cache, backed by SQLite.
//
// Records carry a schema version and a timestamp; a record is only served
// while its version matches the current schema and its age is inside the
// TTL for its type. Invalid records are evicted on read.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rustledotdev/rustle.dev-sub001/internal/fingerprint"
)

// SchemaVersion is bumped when the persisted record format changes; every
// record written under an older version becomes a miss and is evicted.
const SchemaVersion = 1

// Default TTLs per record type.
const (
	DefaultTranslationTTL = 7 * 24 * time.Hour
	DefaultBundleTTL      = 24 * time.Hour
)

const (
	typeTranslation = "translation"
	typeBundle      = "bundle"
)

// Store is the persistent cache. Safe for concurrent use; concurrent
// writers race with last-write-wins semantics, which is acceptable because
// entries are idempotent reconstructions of the same mapping.
type Store struct {
	db             *sql.DB
	schemaVersion  int
	translationTTL time.Duration
	bundleTTL      time.Duration
	now            func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithTTL overrides the per-type TTLs. Zero keeps the default.
func WithTTL(translation, bundle time.Duration) Option {
	return func(s *Store) {
		if translation > 0 {
			s.translationTTL = translation
		}
		if bundle > 0 {
			s.bundleTTL = bundle
		}
	}
}

// WithSchemaVersion overrides the schema version stamped on writes and
// required on reads. Tests use it to force invalidation.
func WithSchemaVersion(v int) Option {
	return func(s *Store) { s.schemaVersion = v }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New opens (creating if needed) the cache database at dbPath.
func New(dbPath string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{
		db:             db,
		schemaVersion:  SchemaVersion,
		translationTTL: DefaultTranslationTTL,
		bundleTTL:      DefaultBundleTTL,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cache_records (
		key TEXT PRIMARY KEY,
		record_type TEXT NOT NULL,
		payload TEXT NOT NULL,
		schema_version INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		usage_count INTEGER DEFAULT 0,
		last_used INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_records_type ON cache_records(record_type);
	`
	_, err := s.db.Exec(schema)
	return err
}

// TranslationKey builds the persistent key for a single translation.
func TranslationKey(text, srcLocale, tgtLocale string) string {
	return fmt.Sprintf("translation_%s_%s_%s", srcLocale, tgtLocale, fingerprint.Normalize(text))
}

func bundleKey(locale string) string {
	return fmt.Sprintf("bundle_%s", locale)
}

// Get returns the cached translation for (text, srcLocale, tgtLocale).
// Records with a stale schema version or past their TTL are evicted and
// reported as a miss.
func (s *Store) Get(ctx context.Context, text, srcLocale, tgtLocale string) (string, bool, error) {
	payload, ok, err := s.get(ctx, TranslationKey(text, srcLocale, tgtLocale), typeTranslation)
	if err != nil || !ok {
		return "", false, err
	}
	return payload, true, nil
}

// Put persists a translation. The engine calls this before handing a
// network result back, so a repeated identical request within the TTL never
// reaches the network.
func (s *Store) Put(ctx context.Context, text, srcLocale, tgtLocale, translation string) error {
	return s.put(ctx, TranslationKey(text, srcLocale, tgtLocale), typeTranslation, translation)
}

// GetBundle returns the cached whole-locale translation map for locale.
func (s *Store) GetBundle(ctx context.Context, locale string) (map[string]string, bool, error) {
	payload, ok, err := s.get(ctx, bundleKey(locale), typeBundle)
	if err != nil || !ok {
		return nil, false, err
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		// Corrupt row; evict and treat as a miss.
		_, _ = s.db.ExecContext(ctx, `DELETE FROM cache_records WHERE key = ?`, bundleKey(locale))
		return nil, false, nil
	}
	return m, true, nil
}

// PutBundle persists a whole-locale translation map.
func (s *Store) PutBundle(ctx context.Context, locale string, translations map[string]string) error {
	data, err := json.Marshal(translations)
	if err != nil {
		return fmt.Errorf("failed to encode bundle: %w", err)
	}
	return s.put(ctx, bundleKey(locale), typeBundle, string(data))
}

func (s *Store) ttlFor(recordType string) time.Duration {
	if recordType == typeBundle {
		return s.bundleTTL
	}
	return s.translationTTL
}

func (s *Store) get(ctx context.Context, key, recordType string) (string, bool, error) {
	var payload string
	var version int
	var createdAt int64

	err := s.db.QueryRowContext(ctx,
		`SELECT payload, schema_version, created_at FROM cache_records WHERE key = ?`,
		key).Scan(&payload, &version, &createdAt)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	age := s.now().Sub(time.Unix(createdAt, 0))
	if version != s.schemaVersion || age >= s.ttlFor(recordType) {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM cache_records WHERE key = ?`, key)
		return "", false, nil
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE cache_records SET usage_count = usage_count + 1, last_used = ? WHERE key = ?`,
		s.now().Unix(), key)
	return payload, true, err
}

func (s *Store) put(ctx context.Context, key, recordType, payload string) error {
	now := s.now().Unix()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache_records (key, record_type, payload, schema_version, created_at, usage_count, last_used)
		 VALUES (?, ?, ?, ?, ?, 0, ?)`,
		key, recordType, payload, s.schemaVersion, now, now)
	return err
}

// Record is a row from the cache, as listed by the CLI.
type Record struct {
	Key        string
	RecordType string
	Payload    string
	Version    int
	CreatedAt  time.Time
	UsageCount int
	LastUsed   time.Time
}

// List returns all records ordered by most recently used.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, record_type, payload, schema_version, created_at, usage_count, COALESCE(last_used, created_at)
		 FROM cache_records ORDER BY COALESCE(last_used, created_at) DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var createdAt, lastUsed int64
		if err := rows.Scan(&r.Key, &r.RecordType, &r.Payload, &r.Version, &createdAt, &r.UsageCount, &lastUsed); err != nil {
			return nil, err
		}
		r.CreatedAt = time.Unix(createdAt, 0)
		r.LastUsed = time.Unix(lastUsed, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Stats summarises cache contents.
type Stats struct {
	TotalRecords int
	Translations int
	Bundles      int
	TotalUsage   int
}

// Stats returns summary statistics for the cache.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN record_type = 'translation' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN record_type = 'bundle' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(usage_count), 0)
		FROM cache_records`).Scan(
		&stats.TotalRecords, &stats.Translations, &stats.Bundles, &stats.TotalUsage)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// Clear removes all records and returns how many were deleted.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cache_records`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) Close() error {
	return s.db.Close()
}
