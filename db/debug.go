package db

import (
	"database/sql"
	"time"

	"github.com/thatsimonsguy/appliance-controller/internal/controllers/washer"
	"github.com/thatsimonsguy/appliance-controller/internal/model"
)

// StateSummary is what the debug CLI prints for the state command.
type StateSummary struct {
	Wash           washer.Record `json:"wash"`
	HasRecentDwell bool          `json:"has_recent_dwell"`
}

func ReadStateCLI(dbPath string) (StateSummary, error) {
	var summary StateSummary
	err := withDB(dbPath, func(conn *sql.DB) error {
		var err error
		if summary.Wash, err = GetWashState(conn); err != nil {
			return err
		}
		summary.HasRecentDwell, err = GetRecentDwell(conn)
		return err
	})
	return summary, err
}

func ListCyclesCLI(dbPath string, limit int) ([]CycleRecord, error) {
	var cycles []CycleRecord
	err := withDB(dbPath, func(conn *sql.DB) error {
		var err error
		cycles, err = ListCycles(conn, limit)
		return err
	})
	return cycles, err
}

func ResetStateCLI(dbPath string, mode model.WashMode) error {
	return withDB(dbPath, func(conn *sql.DB) error {
		return ResetState(conn, mode, time.Now())
	})
}

func withDB(dbPath string, fn func(*sql.DB) error) error {
	conn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(conn)
}
