package cartstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/checkout-engine/internal/cart"
)

// PostgresStore persists session carts in a session_carts table.
type PostgresStore struct {
	db *sql.DB
}

// ConnectPostgres opens and verifies a PostgreSQL connection.
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return db, nil
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the session_carts table if it does not exist.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS session_carts (
			session_id TEXT PRIMARY KEY,
			lines      JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`)
	return err
}

func (p *PostgresStore) Load(ctx context.Context, sessionID string) ([]cart.LineItem, error) {
	var data []byte
	err := p.db.QueryRowContext(ctx,
		"SELECT lines FROM session_carts WHERE session_id = $1",
		sessionID,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cart %s: %w", sessionID, err)
	}

	var lines []cart.LineItem
	if err := json.Unmarshal(data, &lines); err != nil {
		return nil, fmt.Errorf("decode cart %s: %w", sessionID, err)
	}
	return lines, nil
}

func (p *PostgresStore) Save(ctx context.Context, sessionID string, lines []cart.LineItem) error {
	data, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("encode cart %s: %w", sessionID, err)
	}

	_, err = p.db.ExecContext(ctx,
		`INSERT INTO session_carts (session_id, lines, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (session_id) DO UPDATE SET lines = $2, updated_at = $3`,
		sessionID, data, time.Now(),
	)
	return err
}

func (p *PostgresStore) Clear(ctx context.Context, sessionID string) error {
	_, err := p.db.ExecContext(ctx,
		"DELETE FROM session_carts WHERE session_id = $1", sessionID)
	return err
}
