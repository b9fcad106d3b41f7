package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/underxbet/inplay-engine/internal/core/bet"
	"github.com/underxbet/inplay-engine/internal/core/rules"
	"github.com/underxbet/inplay-engine/internal/journal"
	"github.com/underxbet/inplay-engine/internal/telemetry"
)

// RuleSource mirrors the loader so the API can show the live rule set.
type RuleSource interface {
	Current() []rules.Rule
	LoadedAt() time.Time
}

// Server is the read-only status API: health, counters, active bets,
// the live rule set, and recent journal entries.
type Server struct {
	store      bet.Store
	ruleSource RuleSource
	journal    *journal.Journal
	startedAt  time.Time
	httpServer *http.Server
}

func NewServer(listen string, store bet.Store, ruleSource RuleSource, jr *journal.Journal) *Server {
	s := &Server{
		store:      store,
		ruleSource: ruleSource,
		journal:    jr,
		startedAt:  time.Now(),
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	r.HandleFunc("/bets", s.handleBets).Methods(http.MethodGet)
	r.HandleFunc("/bets/{event_id}", s.handleBet).Methods(http.MethodGet)
	r.HandleFunc("/rules", s.handleRules).Methods(http.MethodGet)
	r.HandleFunc("/journal", s.handleJournal).Methods(http.MethodGet)

	handler := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet},
	}).Handler(r)

	s.httpServer = &http.Server{
		Addr:         listen,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start serves in a goroutine and returns immediately.
func (s *Server) Start() {
	go func() {
		telemetry.Infof("web: listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Errorf("web: %v", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	m := &telemetry.Metrics
	writeJSON(w, http.StatusOK, map[string]any{
		"snapshots_received":   m.SnapshotsReceived.Value(),
		"snapshot_parse_warns": m.SnapshotParseWarns.Value(),
		"events_processed":     m.EventsProcessed.Value(),
		"event_errors":         m.EventErrors.Value(),
		"rules_evaluated":      m.RulesEvaluated.Value(),
		"suitable_verdicts":    m.SuitableVerdicts.Value(),
		"bets_placed":          m.BetsPlaced.Value(),
		"bet_signal_errors":    m.BetSignalErrors.Value(),
		"cashouts_fired":       m.CashoutsFired.Value(),
		"predictor_timeouts":   m.PredictorTimeouts.Value(),
		"predictor_errors":     m.PredictorErrors.Value(),
		"ws_reconnects":        m.WSReconnects.Value(),
		"active_bets":          m.ActiveBets.Value(),
		"tracked_events":       m.TrackedEvents.Value(),
		"pipeline_p50_ms":      m.PipelineLatency.P50().Milliseconds(),
		"pipeline_p99_ms":      m.PipelineLatency.P99().Milliseconds(),
		"predict_p50_ms":       m.PredictLatency.P50().Milliseconds(),
		"predict_p99_ms":       m.PredictLatency.P99().Milliseconds(),
	})
}

func (s *Server) handleBets(w http.ResponseWriter, r *http.Request) {
	ids, err := s.store.ActiveEventIDs(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	out := make([]*bet.Record, 0, len(ids))
	for _, id := range ids {
		rec, err := s.store.Get(r.Context(), id)
		if err != nil || rec == nil {
			continue
		}
		out = append(out, rec)
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(out), "bets": out})
}

func (s *Server) handleBet(w http.ResponseWriter, r *http.Request) {
	eventID := mux.Vars(r)["event_id"]
	rec, err := s.store.Get(r.Context(), eventID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no bet for event"})
		return
	}
	events, _ := s.store.MatchEvents(r.Context(), eventID)
	writeJSON(w, http.StatusOK, map[string]any{"bet": rec, "match_events": events})
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"loaded_at": s.ruleSource.LoadedAt().UTC().Format(time.RFC3339),
		"rules":     s.ruleSource.Current(),
	})
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "journal disabled"})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.journal.Recent(r.URL.Query().Get("event_id"), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(entries), "entries": entries})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
