// Package store persists DraftRecords: the durable "already drafted" marks
// keyed by conversation id. Records are written once and never updated.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"replydraft/internal/logging"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"
	_ "modernc.org/sqlite"
)

// DraftRecord marks a conversation as already drafted.
type DraftRecord struct {
	ConversationID string    `json:"conversation_id"`
	Drafted        bool      `json:"drafted"`
	Timestamp      time.Time `json:"timestamp"`
}

// Records is the record store interface consumed by the pipeline.
type Records interface {
	Get(ctx context.Context, conversationID string) (DraftRecord, bool, error)
	Put(ctx context.Context, rec DraftRecord) error
}

const (
	defaultCacheSize = 512
	// DefaultCacheTTL bounds how long a cached record can outlive a delete
	// made through another handle (e.g. "records forget").
	DefaultCacheTTL = 5 * time.Second
)

// RecordStore is a SQLite-backed Records with an LRU read cache.
type RecordStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
	cache  *lru.Cache[string, cachedRecord]
	ttl    time.Duration
	clock  clockwork.Clock
}

type cachedRecord struct {
	rec DraftRecord
	at  time.Time
}

// Option configures a RecordStore.
type Option func(*RecordStore)

// WithCacheTTL sets how long a cached record is trusted before SQLite is
// consulted again.
func WithCacheTTL(d time.Duration) Option {
	return func(s *RecordStore) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithClock sets the clock used to age cache entries.
func WithClock(c clockwork.Clock) Option {
	return func(s *RecordStore) { s.clock = c }
}

// Open opens (creating if needed) the record database at path.
func Open(path string, cacheSize int, opts ...Option) (*RecordStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer; also keeps ":memory:" on a single shared connection.
	db.SetMaxOpenConns(1)

	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[string, cachedRecord](cacheSize)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create record cache: %w", err)
	}

	s := &RecordStore{db: db, dbPath: path, cache: cache, ttl: DefaultCacheTTL, clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Store("record store opened at %s", path)
	return s, nil
}

func (s *RecordStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS draft_records (
		conversation_id TEXT PRIMARY KEY,
		drafted INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_draft_records_created ON draft_records(created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create draft_records table: %w", err)
	}
	return nil
}

// Get returns the record for conversationID. found is false when none exists.
// A cached hit is trusted for the cache TTL, after which the row is re-read.
func (s *RecordStore) Get(ctx context.Context, conversationID string) (DraftRecord, bool, error) {
	if c, ok := s.cache.Get(conversationID); ok {
		if s.clock.Since(c.at) < s.ttl {
			logging.StoreDebug("cache hit for %s", conversationID)
			return c.rec, true, nil
		}
		s.cache.Remove(conversationID)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		drafted int
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT drafted, created_at FROM draft_records WHERE conversation_id = ?",
		conversationID,
	).Scan(&drafted, &created)
	if err == sql.ErrNoRows {
		return DraftRecord{}, false, nil
	}
	if err != nil {
		return DraftRecord{}, false, fmt.Errorf("failed to read record %s: %w", conversationID, err)
	}

	rec := DraftRecord{
		ConversationID: conversationID,
		Drafted:        drafted != 0,
		Timestamp:      time.UnixMilli(created),
	}
	s.cache.Add(conversationID, cachedRecord{rec: rec, at: s.clock.Now()})
	return rec, true, nil
}

// Put stores rec. An existing record for the same id is kept as-is.
func (s *RecordStore) Put(ctx context.Context, rec DraftRecord) error {
	if rec.ConversationID == "" {
		return fmt.Errorf("record has no conversation id")
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	drafted := 0
	if rec.Drafted {
		drafted = 1
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO draft_records (conversation_id, drafted, created_at) VALUES (?, ?, ?)",
		rec.ConversationID, drafted, rec.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to write record %s: %w", rec.ConversationID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		logging.StoreDebug("record %s already present", rec.ConversationID)
		return nil
	}
	s.cache.Add(rec.ConversationID, cachedRecord{rec: rec, at: s.clock.Now()})
	logging.Store("recorded draft for %s", rec.ConversationID)
	return nil
}

// List returns all records, newest first.
func (s *RecordStore) List(ctx context.Context) ([]DraftRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT conversation_id, drafted, created_at FROM draft_records ORDER BY created_at DESC, conversation_id")
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var out []DraftRecord
	for rows.Next() {
		var (
			rec     DraftRecord
			drafted int
			created int64
		)
		if err := rows.Scan(&rec.ConversationID, &drafted, &created); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec.Drafted = drafted != 0
		rec.Timestamp = time.UnixMilli(created)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Delete removes the record for conversationID so the thread can be drafted again.
// It reports whether a record existed.
func (s *RecordStore) Delete(ctx context.Context, conversationID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM draft_records WHERE conversation_id = ?", conversationID)
	if err != nil {
		return false, fmt.Errorf("failed to delete record %s: %w", conversationID, err)
	}
	s.cache.Remove(conversationID)
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Prune deletes records created before cutoff and returns how many were removed.
func (s *RecordStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM draft_records WHERE created_at < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune records: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.cache.Purge()
		logging.Store("pruned %d record(s) older than %s", n, cutoff.Format(time.RFC3339))
	}
	return n, nil
}

// Close closes the database.
func (s *RecordStore) Close() error {
	return s.db.Close()
}
