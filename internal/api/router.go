// Package api exposes a read-only view of a running session over HTTP.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"hlsfeed/internal/controller"
	"hlsfeed/internal/logger"
)

type API struct {
	ctrl   *controller.Controller
	logger logger.Logger
}

// New builds the stats router for one session.
func New(ctrl *controller.Controller, log logger.Logger) http.Handler {
	api := &API{ctrl: ctrl, logger: log}

	r := mux.NewRouter()
	r.HandleFunc("/stats", api.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/healthz", api.handleHealth).Methods(http.MethodGet)
	return r
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(a.ctrl.Stats()); err != nil {
		a.logger.Warnf("Failed to encode stats: %v", err)
	}
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
