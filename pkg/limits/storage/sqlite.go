package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/tutor/pkg/database"
)

// SQLiteStore implements Store on a SQLite database shared by every process
// that opens the same file.
//
// Compare-and-swap is a conditional UPDATE on the version column; a zero
// RowsAffected means another writer won. A background loop checkpoints the
// WAL and drops expired windows.
type SQLiteStore struct {
	db                  *sql.DB
	maintenanceInterval time.Duration
	logger              *slog.Logger
	now                 func() time.Time
	done                chan struct{}
	closeOnce           sync.Once

	// prepared statements
	getStmt     *sql.Stmt
	putStmt     *sql.Stmt
	casStmt     *sql.Stmt
	deleteStmt  *sql.Stmt
	cleanupStmt *sql.Stmt
}

// SQLiteStoreConfig configures the SQLite store.
type SQLiteStoreConfig struct {
	// DB selects the driver, file path and busy timeout.
	DB database.Config

	// MaintenanceInterval is how often to checkpoint the WAL and remove
	// expired windows.
	// Default: 5 minutes
	MaintenanceInterval time.Duration

	// Logger receives maintenance failures.
	Logger *slog.Logger

	// Now returns the current time.
	// Default: time.Now
	Now func() time.Time
}

// NewSQLiteStore opens the database and prepares the rate_limits table.
func NewSQLiteStore(cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	if cfg.MaintenanceInterval == 0 {
		cfg.MaintenanceInterval = 5 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	db, err := database.Open(cfg.DB)
	if err != nil {
		return nil, err
	}

	s := &SQLiteStore{
		db:                  db,
		maintenanceInterval: cfg.MaintenanceInterval,
		logger:              cfg.Logger.With("component", "ratelimit.storage.sqlite"),
		now:                 cfg.Now,
		done:                make(chan struct{}),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := s.prepareStatements(); err != nil {
		s.closeStatements()
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	go s.maintenanceLoop()

	s.logger.Info("rate limit store initialized", "path", cfg.DB.Path, "driver", cfg.DB.Driver)

	return s, nil
}

// initSchema creates the database schema if it doesn't exist.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS rate_limits (
		identifier TEXT PRIMARY KEY,
		count INTEGER NOT NULL,
		reset_at INTEGER NOT NULL,
		last_access_at INTEGER NOT NULL,
		version INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_rate_limits_reset_at ON rate_limits(reset_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// prepareStatements prepares SQL statements for reuse.
func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.getStmt, err = s.db.Prepare(`
		SELECT count, reset_at, last_access_at, version
		FROM rate_limits
		WHERE identifier = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare get statement: %w", err)
	}

	s.putStmt, err = s.db.Prepare(`
		INSERT INTO rate_limits (identifier, count, reset_at, last_access_at, version)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT (identifier) DO UPDATE SET
			count = excluded.count,
			reset_at = excluded.reset_at,
			last_access_at = excluded.last_access_at,
			version = rate_limits.version + 1
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare put statement: %w", err)
	}

	s.casStmt, err = s.db.Prepare(`
		UPDATE rate_limits
		SET count = ?, reset_at = ?, last_access_at = ?, version = version + 1
		WHERE identifier = ? AND version = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare compare-and-swap statement: %w", err)
	}

	s.deleteStmt, err = s.db.Prepare(`DELETE FROM rate_limits WHERE identifier = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}

	s.cleanupStmt, err = s.db.Prepare(`DELETE FROM rate_limits WHERE reset_at < ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare cleanup statement: %w", err)
	}

	return nil
}

// Get returns the entry for identifier, or nil when none exists.
func (s *SQLiteStore) Get(ctx context.Context, identifier string) (*RateLimitEntry, error) {
	if err := validateIdentifier(identifier); err != nil {
		return nil, err
	}

	var (
		count        int
		resetAt      int64
		lastAccessAt int64
		version      int64
	)

	err := s.getStmt.QueryRowContext(ctx, identifier).Scan(&count, &resetAt, &lastAccessAt, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("ratelimit.get", err)
	}

	return &RateLimitEntry{
		Identifier:    identifier,
		Count:         count,
		WindowResetAt: time.Unix(0, resetAt),
		LastAccessAt:  time.Unix(0, lastAccessAt),
		Version:       version,
	}, nil
}

// Put writes a fresh window.
func (s *SQLiteStore) Put(ctx context.Context, entry *RateLimitEntry) error {
	if entry == nil {
		return errors.New("entry cannot be nil")
	}
	if err := validateIdentifier(entry.Identifier); err != nil {
		return err
	}

	_, err := s.putStmt.ExecContext(ctx,
		entry.Identifier,
		entry.Count,
		entry.WindowResetAt.UnixNano(),
		entry.LastAccessAt.UnixNano(),
	)
	if err != nil {
		return unavailable("ratelimit.put", err)
	}

	return nil
}

// CompareAndSwap replaces the entry if its version matches.
func (s *SQLiteStore) CompareAndSwap(ctx context.Context, identifier string, expectedVersion int64, next *RateLimitEntry) (bool, error) {
	if next == nil {
		return false, errors.New("entry cannot be nil")
	}
	if err := validateIdentifier(identifier); err != nil {
		return false, err
	}

	result, err := s.casStmt.ExecContext(ctx,
		next.Count,
		next.WindowResetAt.UnixNano(),
		next.LastAccessAt.UnixNano(),
		identifier,
		expectedVersion,
	)
	if err != nil {
		return false, unavailable("ratelimit.cas", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, unavailable("ratelimit.cas", err)
	}

	return rows == 1, nil
}

// Delete removes the entry for identifier.
func (s *SQLiteStore) Delete(ctx context.Context, identifier string) error {
	if err := validateIdentifier(identifier); err != nil {
		return err
	}

	if _, err := s.deleteStmt.ExecContext(ctx, identifier); err != nil {
		return unavailable("ratelimit.delete", err)
	}

	return nil
}

// Cleanup removes entries whose window ended before olderThan.
func (s *SQLiteStore) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	result, err := s.cleanupStmt.ExecContext(ctx, olderThan.UnixNano())
	if err != nil {
		return 0, unavailable("ratelimit.cleanup", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, unavailable("ratelimit.cleanup", err)
	}

	return int(deleted), nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ratelimit.ping", err)
	}
	return nil
}

// Close releases any resources held by the store.
// Close is idempotent and safe to call multiple times.
func (s *SQLiteStore) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		close(s.done)
		s.closeStatements()

		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		closeErr = s.db.Close()
	})

	return closeErr
}

func (s *SQLiteStore) closeStatements() {
	for _, stmt := range []*sql.Stmt{s.getStmt, s.putStmt, s.casStmt, s.deleteStmt, s.cleanupStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}
}

// maintenanceLoop checkpoints the WAL and drops expired windows.
func (s *SQLiteStore) maintenanceLoop() {
	ticker := time.NewTicker(s.maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := database.Checkpoint(s.db); err != nil {
				s.logger.Warn("wal checkpoint failed", "error", err)
			}
			if n, err := s.Cleanup(context.Background(), s.now()); err != nil {
				s.logger.Warn("expired window cleanup failed", "error", err)
			} else if n > 0 {
				s.logger.Debug("removed expired windows", "count", n)
			}
		case <-s.done:
			return
		}
	}
}
