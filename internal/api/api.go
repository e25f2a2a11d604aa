package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/appliance-controller/db"
	"github.com/thatsimonsguy/appliance-controller/internal/clock"
	"github.com/thatsimonsguy/appliance-controller/internal/controllers/thermostat"
	"github.com/thatsimonsguy/appliance-controller/internal/controllers/washer"
	"github.com/thatsimonsguy/appliance-controller/internal/model"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

type Thermostat interface {
	Start(now clock.Millis, mode model.ThermostatMode)
	Stop(now clock.Millis)
	SetSetpoint(setpoint float64) error
	Snapshot(now clock.Millis) thermostat.Snapshot
}

type Washer interface {
	ChangeMode(mode model.WashMode) bool
	Start(now clock.Millis) bool
	Stop(now clock.Millis)
	SkipStage(now clock.Millis) bool
	Snapshot(now clock.Millis) washer.Snapshot
}

// Server exposes the controllers over HTTP. A nil controller leaves its routes
// unregistered.
type Server struct {
	thermostat Thermostat
	washer     Washer
	db         *sql.DB
	clock      clock.Source
}

type SetpointRequest struct {
	Setpoint float64 `json:"setpoint"`
}

type ThermostatStartRequest struct {
	Mode string `json:"mode"`
}

type WashModeRequest struct {
	Mode string `json:"mode"`
}

type ActionResponse struct {
	Accepted bool   `json:"accepted"`
	Stage    string `json:"stage,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewServer(t Thermostat, w Washer, database *sql.DB, clk clock.Source) *Server {
	return &Server{
		thermostat: t,
		washer:     w,
		db:         database,
		clock:      clk,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	if s.thermostat != nil {
		mux.HandleFunc("/api/thermostat", s.handleThermostat)
		mux.HandleFunc("/api/thermostat/setpoint", s.handleThermostatSetpoint)
		mux.HandleFunc("/api/thermostat/start", s.handleThermostatStart)
		mux.HandleFunc("/api/thermostat/stop", s.handleThermostatStop)
	}

	if s.washer != nil {
		mux.HandleFunc("/api/washer", s.handleWasher)
		mux.HandleFunc("/api/washer/mode", s.handleWashMode)
		mux.HandleFunc("/api/washer/start", s.handleWasherStart)
		mux.HandleFunc("/api/washer/stop", s.handleWasherStop)
		mux.HandleFunc("/api/washer/skip", s.handleWasherSkip)
		mux.HandleFunc("/api/washer/history", s.handleWashHistory)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		mux.ServeHTTP(w, r)
	})
}

// Run serves the API until ctx is cancelled.
func (s *Server) Run(ctx context.Context, port int) error {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("address", addr).Msg("Starting REST API server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleThermostat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.thermostat.Snapshot(s.clock.Now()))
}

func (s *Server) handleThermostatSetpoint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req SetpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	if err := s.thermostat.SetSetpoint(req.Setpoint); err != nil {
		if errors.Is(err, thermostat.ErrSetpointRange) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Error().Err(err).Float64("setpoint", req.Setpoint).Msg("Failed to update setpoint")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().Float64("setpoint", req.Setpoint).Msg("Setpoint updated via API")
	s.writeJSON(w, http.StatusOK, s.thermostat.Snapshot(s.clock.Now()))
}

func (s *Server) handleThermostatStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	req := ThermostatStartRequest{Mode: string(model.ThermostatModeCool)}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
			return
		}
	}

	mode := model.ThermostatMode(req.Mode)
	if mode != model.ThermostatModeCool && mode != model.ThermostatModeFan {
		s.writeError(w, http.StatusBadRequest, "Invalid thermostat mode. Valid modes: cool, fan")
		return
	}

	now := s.clock.Now()
	s.thermostat.Start(now, mode)
	log.Info().Str("mode", req.Mode).Msg("Thermostat started via API")
	s.writeJSON(w, http.StatusOK, s.thermostat.Snapshot(now))
}

func (s *Server) handleThermostatStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	now := s.clock.Now()
	s.thermostat.Stop(now)
	log.Info().Msg("Thermostat stopped via API")
	s.writeJSON(w, http.StatusOK, s.thermostat.Snapshot(now))
}

func (s *Server) handleWasher(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.washer.Snapshot(s.clock.Now()))
}

func (s *Server) handleWashMode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req WashModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	mode, err := model.ParseWashMode(req.Mode)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !s.washer.ChangeMode(mode) {
		s.writeError(w, http.StatusConflict, "Mode cannot be changed while a cycle is running")
		return
	}

	log.Info().Str("mode", mode.String()).Msg("Wash mode updated via API")
	s.writeJSON(w, http.StatusOK, s.washer.Snapshot(s.clock.Now()))
}

func (s *Server) handleWasherStart(w http.ResponseWriter, r *http.Request) {
	s.washerAction(w, r, "start", s.washer.Start)
}

func (s *Server) handleWasherSkip(w http.ResponseWriter, r *http.Request) {
	s.washerAction(w, r, "skip", s.washer.SkipStage)
}

func (s *Server) handleWasherStop(w http.ResponseWriter, r *http.Request) {
	s.washerAction(w, r, "stop", func(now clock.Millis) bool {
		s.washer.Stop(now)
		return true
	})
}

func (s *Server) washerAction(w http.ResponseWriter, r *http.Request, name string, action func(clock.Millis) bool) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	now := s.clock.Now()
	accepted := action(now)
	snap := s.washer.Snapshot(now)

	log.Info().
		Str("action", name).
		Bool("accepted", accepted).
		Str("stage", snap.Stage.String()).
		Msg("Washer action via API")
	s.writeJSON(w, http.StatusOK, ActionResponse{Accepted: accepted, Stage: snap.Stage.String()})
}

func (s *Server) handleWashHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeError(w, http.StatusServiceUnavailable, "History is not available")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	cycles, err := db.ListCycles(s.db, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list wash cycles")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, cycles)
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}
