package ingest

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/cepro/linewatch/docstore"
	"github.com/gorilla/mux"
)

// Handler serves the telemetry ingestion API. Routes:
//
//	POST /update  - apply a batch of current readings
//	GET  /update  - informational only, for people poking the endpoint
//	GET  /health  - liveness probe
type Handler struct {
	store docstore.Store
}

func NewHandler(store docstore.Store) *Handler {
	return &Handler{store: store}
}

// Register attaches the ingestion routes to the given router.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/update", h.handleUpdate).Methods(http.MethodPost)
	r.HandleFunc("/update", h.handleUpdateInfo).Methods(http.MethodGet)
	r.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	readings, err := ParsePayload(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid data format"})
		return
	}

	applied, err := Apply(r.Context(), h.store, readings)
	if errors.Is(err, docstore.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "dashboard data not found"})
		return
	}
	if err != nil {
		slog.Error("Failed to apply telemetry readings", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	slog.Debug("Applied telemetry readings", "received", len(readings), "applied", applied)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) handleUpdateInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "This endpoint is for POST requests from the telemetry hardware.",
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
