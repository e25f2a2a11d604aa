package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/thatsimonsguy/appliance-controller/internal/controllers/washer"
	"github.com/thatsimonsguy/appliance-controller/internal/model"
)

// CycleRecord is one row of wash cycle history. EndedAt and Outcome are empty
// while the cycle is running.
type CycleRecord struct {
	ID        string     `json:"id"`
	Mode      string     `json:"mode"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Outcome   string     `json:"outcome,omitempty"`
}

// GetRecentDwell reports whether the thermostat transitioned within its
// longest dwell before the last shutdown.
func GetRecentDwell(db *sql.DB) (bool, error) {
	var recent bool
	err := db.QueryRow(`SELECT has_recent_dwell FROM thermostat_state WHERE id = 1`).Scan(&recent)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to get thermostat state: %w", err)
	}
	return recent, nil
}

func GetWashState(db *sql.DB) (washer.Record, error) {
	var (
		rec     washer.Record
		mode    string
		stage   int
		cycleID sql.NullString
	)
	err := db.QueryRow(`SELECT mode, stage, rinse_count, elapsed_minutes, cycle_id FROM wash_state WHERE id = 1`).
		Scan(&mode, &stage, &rec.RinseCount, &rec.ElapsedMinutes, &cycleID)
	if errors.Is(err, sql.ErrNoRows) {
		return washer.Record{}, ErrNotFound
	}
	if err != nil {
		return washer.Record{}, fmt.Errorf("failed to get wash state: %w", err)
	}

	rec.Mode, err = model.ParseWashMode(mode)
	if err != nil {
		return washer.Record{}, fmt.Errorf("wash state: %w", err)
	}
	rec.Stage = model.Stage(stage)
	if !rec.Stage.Valid() {
		return washer.Record{}, fmt.Errorf("wash state: unknown stage %d", stage)
	}
	rec.CycleID = cycleID.String
	return rec, nil
}

// ListCycles returns up to limit cycles, newest first.
func ListCycles(db *sql.DB, limit int) ([]CycleRecord, error) {
	rows, err := db.Query(`SELECT id, mode, started_at, ended_at, outcome FROM wash_cycles ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query wash cycles: %w", err)
	}
	defer rows.Close()

	cycles := []CycleRecord{}
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		cycles = append(cycles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read wash cycles: %w", err)
	}
	return cycles, nil
}

func GetCycle(db *sql.DB, id string) (CycleRecord, error) {
	row := db.QueryRow(`SELECT id, mode, started_at, ended_at, outcome FROM wash_cycles WHERE id = ?`, id)
	c, err := scanCycle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return CycleRecord{}, ErrNotFound
	}
	return c, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCycle(row scanner) (CycleRecord, error) {
	var (
		c         CycleRecord
		startedAt string
		endedAt   sql.NullString
		outcome   sql.NullString
	)
	if err := row.Scan(&c.ID, &c.Mode, &startedAt, &endedAt, &outcome); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CycleRecord{}, err
		}
		return CycleRecord{}, fmt.Errorf("failed to scan wash cycle: %w", err)
	}

	c.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
	if endedAt.Valid {
		t, _ := time.Parse(time.RFC3339, endedAt.String)
		c.EndedAt = &t
	}
	c.Outcome = outcome.String
	return c, nil
}
