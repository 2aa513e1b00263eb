package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"election-backend/models"
)

// PostgresStore implements Store with PostgreSQL persistence.
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// ConnectionString returns the PostgreSQL connection string.
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

func NewPostgresStore(config *PostgresConfig, logger *zap.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &PostgresStore{db: db, logger: logger}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS election_snapshots (
		election_id VARCHAR(64) PRIMARY KEY,
		saved_at    TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		payload     JSONB NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_saved ON election_snapshots(saved_at);
	`

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *PostgresStore) SaveSnapshot(snap *models.Snapshot) error {
	if snap.Election == nil {
		return fmt.Errorf("snapshot has no election")
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
	INSERT INTO election_snapshots (election_id, saved_at, payload)
	VALUES ($1, NOW(), $2)
	ON CONFLICT (election_id) DO UPDATE SET
		saved_at = NOW(),
		payload = EXCLUDED.payload
	`

	_, err = s.db.ExecContext(ctx, query, snap.Election.ID, payload)
	return err
}

func (s *PostgresStore) LoadSnapshot() (*models.Snapshot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	row := s.db.QueryRowContext(ctx,
		`SELECT payload FROM election_snapshots ORDER BY saved_at DESC LIMIT 1`)

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

	s.logger.Info("loaded snapshot from postgres", zap.Int("blocks", len(snap.Blocks)))
	return &snap, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
