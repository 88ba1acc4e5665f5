package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/tutor/pkg/database"
	"mercator-hq/tutor/pkg/resilience"
)

// SQLiteCache implements Cache on the content_cache table.
type SQLiteCache struct {
	db         *sql.DB
	maxEntries int
	logger     *slog.Logger
	closeOnce  sync.Once

	// mu makes the capacity check and the insert one step.
	mu sync.Mutex

	getStmt    *sql.Stmt
	setStmt    *sql.Stmt
	existsStmt *sql.Stmt
	countStmt  *sql.Stmt
	purgeStmt  *sql.Stmt
}

// SQLiteCacheConfig configures the SQLite content cache.
type SQLiteCacheConfig struct {
	// DB selects the driver, file path and busy timeout.
	DB database.Config

	// MaxEntries caps the number of rows. Zero means no cap; the cache then
	// only reports pressure when SQLite itself is full.
	MaxEntries int

	Logger *slog.Logger
}

// NewSQLiteCache opens the database and prepares the content_cache table.
func NewSQLiteCache(cfg SQLiteCacheConfig) (*SQLiteCache, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	db, err := database.Open(cfg.DB)
	if err != nil {
		return nil, err
	}

	c := &SQLiteCache{
		db:         db,
		maxEntries: cfg.MaxEntries,
		logger:     cfg.Logger.With("component", "content.cache.sqlite"),
	}

	schema := `
	CREATE TABLE IF NOT EXISTS content_cache (
		key TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		timestamp INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_content_cache_timestamp ON content_cache(timestamp);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := c.prepareStatements(); err != nil {
		c.closeStatements()
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	c.logger.Info("content cache initialized", "path", cfg.DB.Path, "max_entries", cfg.MaxEntries)

	return c, nil
}

func (c *SQLiteCache) prepareStatements() error {
	var err error

	c.getStmt, err = c.db.Prepare(`SELECT payload, timestamp FROM content_cache WHERE key = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare get statement: %w", err)
	}

	c.setStmt, err = c.db.Prepare(`
		INSERT INTO content_cache (key, payload, timestamp)
		VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			payload = excluded.payload,
			timestamp = excluded.timestamp
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare set statement: %w", err)
	}

	c.existsStmt, err = c.db.Prepare(`SELECT 1 FROM content_cache WHERE key = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare exists statement: %w", err)
	}

	c.countStmt, err = c.db.Prepare(`SELECT COUNT(*) FROM content_cache`)
	if err != nil {
		return fmt.Errorf("failed to prepare count statement: %w", err)
	}

	c.purgeStmt, err = c.db.Prepare(`DELETE FROM content_cache WHERE timestamp < ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare purge statement: %w", err)
	}

	return nil
}

func (c *SQLiteCache) Get(ctx context.Context, key string) (*Entry, error) {
	var (
		payload []byte
		ts      int64
	)

	err := c.getStmt.QueryRowContext(ctx, key).Scan(&payload, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, resilience.NewInfraError("cache.get", err)
	}

	return &Entry{Key: key, Payload: payload, Timestamp: time.Unix(0, ts)}, nil
}

func (c *SQLiteCache) Set(ctx context.Context, key string, payload []byte, at time.Time) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxEntries > 0 {
		full, err := c.fullFor(ctx, key)
		if err != nil {
			return resilience.NewInfraError("cache.set", err)
		}
		if full {
			return fmt.Errorf("cache.set %q: %w (%d entries)", key, ErrStoragePressure, c.maxEntries)
		}
	}

	if _, err := c.setStmt.ExecContext(ctx, key, payload, at.UnixNano()); err != nil {
		if database.IsFullError(err) {
			return fmt.Errorf("cache.set %q: %w: %v", key, ErrStoragePressure, err)
		}
		return resilience.NewInfraError("cache.set", err)
	}

	return nil
}

// fullFor reports whether inserting key would exceed maxEntries.
// Replacing an existing key never does.
func (c *SQLiteCache) fullFor(ctx context.Context, key string) (bool, error) {
	var one int
	err := c.existsStmt.QueryRowContext(ctx, key).Scan(&one)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}

	var count int
	if err := c.countStmt.QueryRowContext(ctx).Scan(&count); err != nil {
		return false, err
	}
	return count >= c.maxEntries, nil
}

func (c *SQLiteCache) Purge(ctx context.Context, olderThan time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	result, err := c.purgeStmt.ExecContext(ctx, olderThan.UnixNano())
	if err != nil {
		return 0, resilience.NewInfraError("cache.purge", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, resilience.NewInfraError("cache.purge", err)
	}

	return int(deleted), nil
}

// Ping checks the database connection.
func (c *SQLiteCache) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return resilience.NewInfraError("cache.ping", err)
	}
	return nil
}

// Close is idempotent.
func (c *SQLiteCache) Close() error {
	var closeErr error
	c.closeOnce.Do(func() {
		c.closeStatements()
		_, _ = c.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		closeErr = c.db.Close()
	})
	return closeErr
}

func (c *SQLiteCache) closeStatements() {
	for _, stmt := range []*sql.Stmt{c.getStmt, c.setStmt, c.existsStmt, c.countStmt, c.purgeStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}
}
