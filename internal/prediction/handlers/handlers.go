// Package handlers provides HTTP handlers for prediction requests.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/foresight/internal/domain"
	"github.com/aristath/foresight/internal/prediction"
)

// PredictionGetter is the prediction service as seen by the handlers
type PredictionGetter interface {
	GetPrediction(ctx context.Context, inst domain.Instrument) (prediction.Prediction, error)
}

// Handler handles prediction HTTP requests
type Handler struct {
	service PredictionGetter
	log     zerolog.Logger
}

// NewHandler creates a new prediction handler
func NewHandler(service PredictionGetter, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "prediction").Logger(),
	}
}

// RegisterRoutes registers prediction routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/predictions", func(r chi.Router) {
		r.Get("/{market}/{symbol}", h.HandleGetPrediction)
	})
}

// HandleGetPrediction handles GET /api/predictions/{market}/{symbol}
func (h *Handler) HandleGetPrediction(w http.ResponseWriter, r *http.Request) {
	inst, err := domain.NewInstrument(chi.URLParam(r, "market"), chi.URLParam(r, "symbol"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	p, err := h.service.GetPrediction(r.Context(), inst)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":      inst.Symbol,
		"market":      string(inst.Market),
		"prediction":  p.Value,
		"cached":      p.Cached,
		"produced_at": p.ProducedAt.UTC().Format(time.RFC3339),
	})
}

// StatusFor maps an error kind onto an HTTP status
func StatusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindInvalidInput:
		return http.StatusBadRequest
	case domain.KindDataNotFound, domain.KindModelNotFound:
		return http.StatusNotFound
	case domain.KindInsufficientData:
		return http.StatusUnprocessableEntity
	case domain.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Message is the user-facing text for an error kind
func Message(kind domain.ErrorKind) string {
	switch kind {
	case domain.KindInvalidInput:
		return "Invalid market or symbol"
	case domain.KindDataNotFound:
		return "No price data for this instrument"
	case domain.KindModelNotFound:
		return "No trained model for this instrument"
	case domain.KindInsufficientData:
		return "Not enough price history to predict"
	case domain.KindStoreUnavailable:
		return "A backing store is unavailable, try again later"
	default:
		return "Internal error"
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	status := StatusFor(kind)
	if status >= 500 {
		h.log.Error().Err(err).Str("kind", string(kind)).Msg("Prediction request failed")
	}
	h.writeJSON(w, status, map[string]string{
		"kind":    string(kind),
		"message": Message(kind),
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
