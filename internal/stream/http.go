package stream

import (
	"encoding/json"
	"net/http"

	"github.com/signalsfoundry/scene-reconciler/core"
	"github.com/signalsfoundry/scene-reconciler/internal/logging"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ToggleRequest changes any subset of the visibility toggles.
type ToggleRequest struct {
	Tracks *bool `json:"tracks,omitempty"`
	Paths  *bool `json:"paths,omitempty"`
	Labels *bool `json:"labels,omitempty"`
}

// NewHandler serves the UI contract:
//
//	GET  /api/legend   track counters
//	GET  /api/scene    full scene with legend and toggles
//	GET  /api/toggles  current toggles
//	POST /api/toggles  change toggles
//	GET  /ws           websocket scene stream
//	GET  /healthz      liveness
func NewHandler(h *Hub, log logging.Logger) http.Handler {
	if log == nil {
		log = logging.Noop()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/legend", func(w http.ResponseWriter, r *http.Request) {
		if h.controls == nil {
			writeError(w, http.StatusServiceUnavailable, errNoControls)
			return
		}
		writeJSON(w, http.StatusOK, h.controls.Legend())
	})
	mux.HandleFunc("GET /api/scene", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, h.Current())
	})
	mux.HandleFunc("GET /api/toggles", func(w http.ResponseWriter, r *http.Request) {
		if h.controls == nil {
			writeError(w, http.StatusServiceUnavailable, errNoControls)
			return
		}
		writeJSON(w, http.StatusOK, h.controls.Visibility())
	})
	mux.HandleFunc("POST /api/toggles", func(w http.ResponseWriter, r *http.Request) {
		if h.controls == nil {
			writeError(w, http.StatusServiceUnavailable, errNoControls)
			return
		}
		var req ToggleRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		applyToggles(h.controls, req)
		state := h.controls.Visibility()
		log.Info(r.Context(), "visibility toggled",
			logging.Bool("tracks", state.Tracks),
			logging.Bool("paths", state.Paths),
			logging.Bool("labels", state.Labels))
		h.Broadcast(r.Context(), false)
		writeJSON(w, http.StatusOK, state)
	})
	mux.HandleFunc("GET /ws", h.ServeWS)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "clients": h.Clients()})
	})
	return otelhttp.NewHandler(mux, "scene-http",
		otelhttp.WithFilter(func(r *http.Request) bool { return r.URL.Path != "/ws" }))
}

func applyToggles(c Controls, req ToggleRequest) {
	if req.Tracks != nil {
		c.SetTracksVisible(*req.Tracks)
	}
	if req.Paths != nil {
		c.SetPathsVisible(*req.Paths)
	}
	if req.Labels != nil {
		c.SetLabelsVisible(*req.Labels)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

var _ Controls = (*core.TrackReconciler)(nil)
