package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

const mysqlCreateTable = `
	CREATE TABLE IF NOT EXISTS greylist_kv (
		k VARBINARY(767) PRIMARY KEY,
		v VARCHAR(64) NOT NULL,
		expires_at BIGINT NOT NULL,
		INDEX idx_expires_at (expires_at)
	)
`

// MySQLStore is a MySQL implementation of core.KVStore, letting several mail servers
// share greylist state through one database
type MySQLStore struct {
	db          *sql.DB
	logger      *zap.Logger
	cleanupFreq time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
	now         func() time.Time
}

// NewMySQLStore creates a new MySQL store
func NewMySQLStore(dsn string, logger *zap.Logger, cleanupFreq time.Duration) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	s, err := NewMySQLStoreFromDB(db, logger, cleanupFreq)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewMySQLStoreFromDB creates the schema on an open database and returns the store
func NewMySQLStoreFromDB(db *sql.DB, logger *zap.Logger, cleanupFreq time.Duration) (*MySQLStore, error) {
	// Create table if it doesn't exist
	if _, err := db.Exec(mysqlCreateTable); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	s := &MySQLStore{
		db:          db,
		logger:      logger,
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
		now:         time.Now,
	}

	// Start background cleanup
	if cleanupFreq > 0 {
		go s.startCleanupTask()
	}

	return s, nil
}

// Get retrieves a live value
func (s *MySQLStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT v
		FROM greylist_kv
		WHERE k = ? AND expires_at > ?
	`, key, s.now().UnixMilli()).Scan(&value)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to query store: %w", err)
	}

	return value, true, nil
}

// Set stores a value with a TTL
func (s *MySQLStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO greylist_kv (k, v, expires_at)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE
			v = VALUES(v),
			expires_at = VALUES(expires_at)
	`, key, value, s.now().Add(ttl).UnixMilli())

	if err != nil {
		return fmt.Errorf("failed to store entry: %w", err)
	}

	return nil
}

// Cleanup removes expired entries
func (s *MySQLStore) Cleanup(ctx context.Context) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM greylist_kv
		WHERE expires_at <= ?
	`, s.now().UnixMilli())

	if err != nil {
		return fmt.Errorf("failed to clean up expired entries: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		s.logger.Warn("Failed to get rows affected during cleanup", zap.Error(err))
	} else {
		s.logger.Debug("Cleaned up expired store entries", zap.Int64("expired_count", rowsAffected))
	}

	return nil
}

// startCleanupTask starts a background task to clean up expired entries
func (s *MySQLStore) startCleanupTask() {
	ticker := time.NewTicker(s.cleanupFreq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Cleanup(context.Background()); err != nil {
				s.logger.Error("Failed to clean up store", zap.Error(err))
			}
		case <-s.stopCh:
			return
		}
	}
}

// Stop stops the background cleanup task and closes the database connection
func (s *MySQLStore) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close MySQL database", zap.Error(err))
		}
	})
}
