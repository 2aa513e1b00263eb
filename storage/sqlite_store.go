package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"election-backend/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
    election_id TEXT PRIMARY KEY,
    saved_at    INTEGER NOT NULL,
    payload     BLOB NOT NULL
);`

// SQLiteStore keeps one snapshot row per election id in a local database
// file. Saves upsert the row; loads return the most recently saved one.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// Single-writer model; one connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) SaveSnapshot(snap *models.Snapshot) error {
	if snap.Election == nil {
		return fmt.Errorf("snapshot has no election")
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	_, err = s.db.Exec(`
INSERT INTO snapshots(election_id, saved_at, payload)
VALUES (?, ?, ?)
ON CONFLICT(election_id) DO UPDATE SET
    saved_at = excluded.saved_at,
    payload  = excluded.payload
`, snap.Election.ID, time.Now().Unix(), payload)
	return err
}

func (s *SQLiteStore) LoadSnapshot() (*models.Snapshot, error) {
	row := s.db.QueryRow(`SELECT payload FROM snapshots ORDER BY saved_at DESC LIMIT 1`)

	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var snap models.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	s.logger.Info("loaded snapshot from sqlite", zap.Int("blocks", len(snap.Blocks)))
	return &snap, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
