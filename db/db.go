package db

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/appliance-controller/internal/model"
)

//go:embed schema.sql
var schema string

var ErrNotFound = errors.New("not found")

// Open opens the SQLite database at dbPath and applies the schema. ":memory:"
// is accepted for tests.
func Open(dbPath string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// ":memory:" databases exist per connection
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return conn, nil
}

// SeedDatabase inserts the singleton state rows if they are missing. Existing
// state is left alone so a restart can see what was running.
func SeedDatabase(db *sql.DB, defaultMode model.WashMode) error {
	tx, err := StartTransaction(db)
	if err != nil {
		return err
	}
	defer RollbackTransaction(tx)

	now := time.Now().Format(time.RFC3339)

	_, err = tx.Exec(`INSERT OR IGNORE INTO thermostat_state (id, has_recent_dwell, updated_at) VALUES (1, FALSE, ?)`, now)
	if err != nil {
		return fmt.Errorf("failed to insert thermostat record: %w", err)
	}

	_, err = tx.Exec(`INSERT OR IGNORE INTO wash_state (id, mode, stage, updated_at) VALUES (1, ?, ?, ?)`,
		defaultMode.String(), model.StageOff, now)
	if err != nil {
		return fmt.Errorf("failed to insert wash record: %w", err)
	}

	if err := CommitTransaction(tx); err != nil {
		return fmt.Errorf("failed to commit seed transaction: %w", err)
	}

	log.Info().Msg("Database seeded")
	return nil
}
