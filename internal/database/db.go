// internal/database/db.go
package database

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the global postgres pool. Nil when persistence is disabled; every
// writer checks before touching it.
var DB *pgxpool.Pool

// Connect initializes the global pool from environment variables
// (POSTGRES_USER, POSTGRES_PASSWORD, PG_HOST, PG_PORT, PG_DATABASE).
func Connect() error {
	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		os.Getenv("POSTGRES_USER"),
		os.Getenv("POSTGRES_PASSWORD"),
		os.Getenv("PG_HOST"),
		os.Getenv("PG_PORT"),
		os.Getenv("PG_DATABASE"),
	)

	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return fmt.Errorf("unable to parse pgx config: %w", err)
	}

	DB, err = pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return fmt.Errorf("unable to create pgx pool: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := DB.Ping(ctx); err != nil {
		return fmt.Errorf("db ping error: %w", err)
	}

	log.Printf("Connected to database at %s:%s", os.Getenv("PG_HOST"), os.Getenv("PG_PORT"))
	return nil
}

// EnsureSchema creates the archive tables if they do not exist.
func EnsureSchema(ctx context.Context) error {
	if DB == nil {
		return nil
	}
	_, err := DB.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS match_results (
			room_id    TEXT NOT NULL,
			generation INT  NOT NULL,
			winner_id  TEXT NOT NULL DEFAULT '',
			ended_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (room_id, generation)
		);
		CREATE TABLE IF NOT EXISTS rooms_archive (
			room_id    TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL,
			expired_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			members    INT NOT NULL
		);
	`)
	return err
}
