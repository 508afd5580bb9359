package game

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists player snapshots. The in-memory ledger stays authoritative;
// a store only makes it survive restarts.
type Store interface {
	LoadPlayers(ctx context.Context) ([]PlayerSnapshot, error)
	SavePlayer(ctx context.Context, snap PlayerSnapshot) error
}

type NopStore struct{}

func (NopStore) LoadPlayers(context.Context) ([]PlayerSnapshot, error) { return nil, nil }

func (NopStore) SavePlayer(context.Context, PlayerSnapshot) error { return nil }

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE SCHEMA IF NOT EXISTS stocks;
		CREATE TABLE IF NOT EXISTS stocks.players (
			user_id      text PRIMARY KEY,
			display_name text NOT NULL,
			snapshot     jsonb NOT NULL,
			updated_at   timestamptz NOT NULL DEFAULT now()
		);
	`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadPlayers(ctx context.Context) ([]PlayerSnapshot, error) {
	rows, err := s.db.Query(ctx, `SELECT snapshot FROM stocks.players ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PlayerSnapshot
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var snap PlayerSnapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			return nil, fmt.Errorf("decode player snapshot: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SavePlayer(ctx context.Context, snap PlayerSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO stocks.players (user_id, display_name, snapshot, updated_at)
		VALUES ($1, $2, $3::jsonb, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET display_name = EXCLUDED.display_name,
		    snapshot = EXCLUDED.snapshot,
		    updated_at = EXCLUDED.updated_at
		WHERE stocks.players.updated_at <= EXCLUDED.updated_at
	`, snap.UserID, snap.DisplayName, string(raw), snapshotTime(snap))
	return err
}

// snapshotTime is the row version; older snapshots never replace newer rows.
func snapshotTime(snap PlayerSnapshot) time.Time {
	if snap.UpdatedAt.IsZero() {
		return time.Now().UTC()
	}
	return snap.UpdatedAt
}
