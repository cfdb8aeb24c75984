package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/jose-zothner-meyer/commodity-tracker/internal/database"
	"github.com/jose-zothner-meyer/commodity-tracker/internal/provider"
	"github.com/jose-zothner-meyer/commodity-tracker/pkg/models"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// resolveInstrument loads the instrument named in the route, writing the
// error response itself when resolution fails.
func (s *Server) resolveInstrument(w http.ResponseWriter, r *http.Request) *models.Instrument {
	symbol := mux.Vars(r)["symbol"]

	instrument, err := s.store.GetInstrumentBySymbol(r.Context(), symbol)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get instrument")
		writeError(w, http.StatusInternalServerError, "failed to retrieve instrument")
		return nil
	}
	if instrument == nil {
		writeError(w, http.StatusNotFound, "instrument not found")
		return nil
	}
	return instrument
}

// handleHealth reports component health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	services := map[string]bool{
		"mysql": s.store.Health(ctx) == nil,
		"redis": s.cache.Health(ctx) == nil,
		"nats":  s.tasks.IsConnected(),
	}

	status := "healthy"
	code := http.StatusOK
	for _, ok := range services {
		if !ok {
			status = "degraded"
			code = http.StatusServiceUnavailable
			break
		}
	}

	writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"services":  services,
		"timestamp": time.Now().Unix(),
	})
}

// handleGetProviders lists configured data providers.
func (s *Server) handleGetProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := s.store.GetProviders(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to get providers")
		writeError(w, http.StatusInternalServerError, "failed to retrieve providers")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"providers": providers,
		"count":     len(providers),
	})
}

// handleGetInstruments lists active instruments.
func (s *Server) handleGetInstruments(w http.ResponseWriter, r *http.Request) {
	instruments, err := s.store.GetActiveInstruments(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to get instruments")
		writeError(w, http.StatusInternalServerError, "failed to retrieve instruments")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"instruments": instruments,
		"count":       len(instruments),
	})
}

// handleGetInstrument retrieves one instrument by symbol.
func (s *Server) handleGetInstrument(w http.ResponseWriter, r *http.Request) {
	instrument := s.resolveInstrument(w, r)
	if instrument == nil {
		return
	}
	writeJSON(w, http.StatusOK, instrument)
}

// handleGetPrices retrieves observation history for an instrument. The
// days query parameter bounds the window (default 30), limit caps rows.
func (s *Server) handleGetPrices(w http.ResponseWriter, r *http.Request) {
	instrument := s.resolveInstrument(w, r)
	if instrument == nil {
		return
	}

	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = parsed
	}

	limit := 1000
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	observations, err := s.store.GetObservations(r.Context(), instrument.ID, since, limit)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get observations")
		writeError(w, http.StatusInternalServerError, "failed to retrieve price history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":       instrument.Symbol,
		"days":         days,
		"observations": observations,
		"count":        len(observations),
	})
}

// priceView decorates an observation with its derived change fields.
type priceView struct {
	*models.PriceObservation
	Change        interface{} `json:"change,omitempty"`
	ChangePercent interface{} `json:"change_percent,omitempty"`
	Cached        bool        `json:"cached"`
}

// handleGetLatest returns the most recent observation, serving from the
// cache when possible and falling back to MySQL on a miss.
func (s *Server) handleGetLatest(w http.ResponseWriter, r *http.Request) {
	instrument := s.resolveInstrument(w, r)
	if instrument == nil {
		return
	}

	cached := true
	obs, err := s.cache.GetLatestObservation(r.Context(), instrument.Symbol)
	if err != nil {
		s.logger.WithError(err).Warn("Latest price cache read failed, falling back to database")
		obs = nil
	}
	if obs == nil {
		cached = false
		obs, err = s.store.GetLatestObservation(r.Context(), instrument.ID)
		if err != nil {
			s.logger.WithError(err).Error("Failed to get latest observation")
			writeError(w, http.StatusInternalServerError, "failed to retrieve latest price")
			return
		}
	}
	if obs == nil {
		writeError(w, http.StatusNotFound, "no price data available")
		return
	}

	view := priceView{PriceObservation: obs, Cached: cached}
	if c := obs.Change(); c != nil {
		view.Change = c
	}
	if cp := obs.ChangePercent(); cp != nil {
		view.ChangePercent = cp
	}
	writeJSON(w, http.StatusOK, view)
}

// fetchOptionsFromRequest maps trigger query parameters onto provider fetch
// options.
func (s *Server) fetchOptionsFromRequest(r *http.Request) provider.FetchOptions {
	opts := provider.FetchOptions{OutputSize: s.cfg.Updater.OutputSize}
	if v := r.URL.Query().Get("output_size"); v != "" {
		opts.OutputSize = v
	}
	return opts
}

// handleTriggerUpdate enqueues an update for one instrument and answers 202
// immediately. The outcome is observable through the run ledger, keyed by
// the returned correlation id.
func (s *Server) handleTriggerUpdate(w http.ResponseWriter, r *http.Request) {
	instrument := s.resolveInstrument(w, r)
	if instrument == nil {
		return
	}

	correlationID, err := s.tasks.EnqueueInstrumentUpdate(r.Context(), instrument.ID, s.fetchOptionsFromRequest(r))
	if err != nil {
		s.logger.WithError(err).Error("Failed to enqueue update task")
		writeError(w, http.StatusServiceUnavailable, "failed to enqueue update")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":         "queued",
		"symbol":         instrument.Symbol,
		"instrument_id":  instrument.ID,
		"correlation_id": correlationID,
	})
}

// handleTriggerUpdateAll enqueues a sweep over every active instrument.
func (s *Server) handleTriggerUpdateAll(w http.ResponseWriter, r *http.Request) {
	correlationID, err := s.tasks.EnqueueAllUpdate(r.Context(), s.fetchOptionsFromRequest(r))
	if err != nil {
		s.logger.WithError(err).Error("Failed to enqueue update sweep")
		writeError(w, http.StatusServiceUnavailable, "failed to enqueue update")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":         "queued",
		"correlation_id": correlationID,
	})
}

// handleGetRuns lists ledger entries, optionally filtered by status and
// instrument.
func (s *Server) handleGetRuns(w http.ResponseWriter, r *http.Request) {
	filter := database.RunFilter{
		InstrumentID: r.URL.Query().Get("instrument_id"),
	}

	if v := r.URL.Query().Get("status"); v != "" {
		status := models.RunStatus(v)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "unknown run status")
			return
		}
		filter.Status = status
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = parsed
	}

	runs, err := s.store.GetUpdateRuns(r.Context(), filter)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get update runs")
		writeError(w, http.StatusInternalServerError, "failed to retrieve runs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// handleGetRun retrieves one ledger entry by id.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	run, err := s.store.GetUpdateRunByID(r.Context(), id)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get update run")
		writeError(w, http.StatusInternalServerError, "failed to retrieve run")
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}

	resp := map[string]interface{}{"run": run}
	if d := run.Duration(); d != nil {
		resp["duration_ms"] = d.Milliseconds()
	}
	writeJSON(w, http.StatusOK, resp)
}
