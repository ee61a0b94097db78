package admin

import (
	"log/slog"
	"net/http"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/hirsh012/probed/internal/backend"
	"github.com/hirsh012/probed/internal/probe"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Handler serves the administrative API. It tracks which backends have
// probing paused so repeated enable/disable requests stay idempotent at
// the HTTP layer; the prober itself treats double transitions as misuse.
type Handler struct {
	logger *slog.Logger
	prober *probe.Prober

	mutex    sync.RWMutex
	backends map[string]*backend.Backend
	paused   map[string]bool
}

type backendSummary struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Healthy bool   `json:"healthy"`
	Probe   string `json:"probe"`
	Paused  bool   `json:"paused"`
}

type probeControl struct {
	Enabled bool `json:"enabled"`
}

func NewHandler(logger *slog.Logger, prober *probe.Prober, backends map[string]*backend.Backend) *Handler {
	h := &Handler{
		logger:   logger,
		prober:   prober,
		backends: make(map[string]*backend.Backend, len(backends)),
		paused:   make(map[string]bool, len(backends)),
	}
	for name, be := range backends {
		h.backends[name] = be
	}
	return h
}

// Register installs the admin routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /backends", h.listBackends)
	mux.HandleFunc("GET /backends/{name}/health", h.backendHealth)
	mux.HandleFunc("POST /backends/{name}/probe", h.controlProbe)
	mux.HandleFunc("DELETE /backends/{name}", h.removeBackend)
}

func (h *Handler) listBackends(w http.ResponseWriter, r *http.Request) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	summaries := make([]backendSummary, 0, len(h.backends))
	for name, be := range h.backends {
		status, _ := h.prober.Status(be, false)
		summaries = append(summaries, backendSummary{
			Name:    name,
			Address: be.Address(),
			Healthy: be.Healthy(),
			Probe:   status,
			Paused:  h.paused[name],
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(summaries); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) backendHealth(w http.ResponseWriter, r *http.Request) {
	be := h.lookup(r.PathValue("name"))
	if be == nil {
		http.Error(w, "unknown backend", http.StatusNotFound)
		return
	}

	verbose := r.URL.Query().Get("verbose") != ""
	status, ok := h.prober.Status(be, verbose)
	if !ok {
		http.Error(w, "backend has no probe", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(status + "\n"))
}

func (h *Handler) controlProbe(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	be := h.lookup(name)
	if be == nil {
		http.Error(w, "unknown backend", http.StatusNotFound)
		return
	}

	var ctl probeControl
	if err := json.NewDecoder(r.Body).Decode(&ctl); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.paused[name] != !ctl.Enabled {
		h.prober.SetEnabled(be, ctl.Enabled)
		h.paused[name] = !ctl.Enabled
		h.logger.Info("probe control",
			slog.String("backend", name),
			slog.Bool("enabled", ctl.Enabled))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeBackend(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	h.mutex.Lock()
	be := h.backends[name]
	if be != nil {
		delete(h.backends, name)
		delete(h.paused, name)
	}
	h.mutex.Unlock()

	if be == nil {
		http.Error(w, "unknown backend", http.StatusNotFound)
		return
	}

	h.prober.Remove(be)
	h.logger.Info("backend removed", slog.String("backend", name))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) lookup(name string) *backend.Backend {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.backends[name]
}
