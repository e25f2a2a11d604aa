package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/thatsimonsguy/appliance-controller/internal/controllers/washer"
	"github.com/thatsimonsguy/appliance-controller/internal/model"
)

// StartTransaction starts a new database transaction.
func StartTransaction(db *sql.DB) (*sql.Tx, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	return tx, nil
}

// CommitTransaction commits the given transaction.
func CommitTransaction(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RollbackTransaction rolls back the given transaction.
func RollbackTransaction(tx *sql.Tx) {
	tx.Rollback()
}

func SaveRecentDwell(db *sql.DB, recent bool, at time.Time) error {
	_, err := db.Exec(`INSERT INTO thermostat_state (id, has_recent_dwell, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET has_recent_dwell = excluded.has_recent_dwell, updated_at = excluded.updated_at`,
		recent, at.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("update thermostat state: %w", err)
	}
	return nil
}

func SaveWashState(db *sql.DB, rec washer.Record, at time.Time) error {
	var cycleID *string
	if rec.CycleID != "" {
		cycleID = &rec.CycleID
	}

	_, err := db.Exec(`INSERT INTO wash_state (id, mode, stage, rinse_count, elapsed_minutes, cycle_id, updated_at) VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET mode = excluded.mode, stage = excluded.stage, rinse_count = excluded.rinse_count,
			elapsed_minutes = excluded.elapsed_minutes, cycle_id = excluded.cycle_id, updated_at = excluded.updated_at`,
		rec.Mode.String(), int(rec.Stage), rec.RinseCount, rec.ElapsedMinutes, cycleID, at.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("update wash state: %w", err)
	}
	return nil
}

func StartCycle(db *sql.DB, id string, mode model.WashMode, startedAt time.Time) error {
	_, err := db.Exec(`INSERT INTO wash_cycles (id, mode, started_at) VALUES (?, ?, ?)`,
		id, mode.String(), startedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert wash cycle %s: %w", id, err)
	}
	return nil
}

// FinishCycle closes a running cycle. A cycle that is already closed keeps its
// first outcome.
func FinishCycle(db *sql.DB, id string, outcome washer.CycleOutcome, endedAt time.Time) error {
	tx, err := StartTransaction(db)
	if err != nil {
		return err
	}

	res, err := tx.Exec(`UPDATE wash_cycles SET ended_at = ?, outcome = ? WHERE id = ? AND ended_at IS NULL`,
		endedAt.Format(time.RFC3339), string(outcome), id)
	if err != nil {
		RollbackTransaction(tx)
		return fmt.Errorf("finish wash cycle %s: %w", id, err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		err = tx.QueryRow(`SELECT COUNT(*) FROM wash_cycles WHERE id = ?`, id).Scan(&exists)
		if err == nil && exists == 0 {
			RollbackTransaction(tx)
			return fmt.Errorf("finish wash cycle %s: %w", id, ErrNotFound)
		}
	}
	return CommitTransaction(tx)
}

// ResetState clears the wash record to Off and forgets the thermostat dwell.
// Cycles left open are closed as stopped.
func ResetState(db *sql.DB, mode model.WashMode, at time.Time) error {
	tx, err := StartTransaction(db)
	if err != nil {
		return err
	}
	ts := at.Format(time.RFC3339)

	if _, err := tx.Exec(`UPDATE wash_cycles SET ended_at = ?, outcome = ? WHERE ended_at IS NULL`, ts, string(washer.CycleStopped)); err != nil {
		RollbackTransaction(tx)
		return fmt.Errorf("close open cycles: %w", err)
	}
	if _, err := tx.Exec(`UPDATE wash_state SET mode = ?, stage = ?, rinse_count = 0, elapsed_minutes = 0, cycle_id = NULL, updated_at = ? WHERE id = 1`,
		mode.String(), int(model.StageOff), ts); err != nil {
		RollbackTransaction(tx)
		return fmt.Errorf("reset wash state: %w", err)
	}
	if _, err := tx.Exec(`UPDATE thermostat_state SET has_recent_dwell = FALSE, updated_at = ? WHERE id = 1`, ts); err != nil {
		RollbackTransaction(tx)
		return fmt.Errorf("reset thermostat state: %w", err)
	}
	return CommitTransaction(tx)
}
