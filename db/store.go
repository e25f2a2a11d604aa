package db

import (
	"database/sql"
	"time"

	"github.com/thatsimonsguy/appliance-controller/internal/controllers/washer"
	"github.com/thatsimonsguy/appliance-controller/internal/model"
)

// Store adapts a database handle to the controllers' persistence interfaces.
type Store struct {
	DB  *sql.DB
	Now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{DB: db, Now: time.Now}
}

func (s *Store) SaveRecentDwell(recent bool) error {
	return SaveRecentDwell(s.DB, recent, s.Now())
}

func (s *Store) SaveWashState(rec washer.Record) error {
	return SaveWashState(s.DB, rec, s.Now())
}

func (s *Store) StartCycle(id string, mode model.WashMode, startedAt time.Time) error {
	return StartCycle(s.DB, id, mode, startedAt)
}

func (s *Store) FinishCycle(id string, outcome washer.CycleOutcome, endedAt time.Time) error {
	return FinishCycle(s.DB, id, outcome, endedAt)
}
