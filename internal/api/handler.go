package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/probkit/beliefnet/internal/bn"
	"github.com/probkit/beliefnet/internal/config"
	"github.com/probkit/beliefnet/internal/engine"
	"github.com/probkit/beliefnet/internal/metrics"
	"github.com/probkit/beliefnet/internal/netfile"
)

// Handler holds all HTTP handler dependencies.
type Handler struct {
	svc    *engine.Service
	loader *config.Loader
	mux    *http.ServeMux
}

// New creates an HTTP handler and registers all routes.
func New(svc *engine.Service, loader *config.Loader) http.Handler {
	h := &Handler{svc: svc, loader: loader, mux: http.NewServeMux()}

	h.mux.HandleFunc("POST /v1/query", h.runQuery)
	h.mux.HandleFunc("POST /v1/joint", h.jointProbability)
	h.mux.HandleFunc("POST /v1/conditional", h.conditionalProbability)
	h.mux.HandleFunc("GET /v1/network", h.describeNetwork)
	h.mux.HandleFunc("POST /v1/network/reload", h.reloadNetwork)
	h.mux.HandleFunc("POST /v1/network/probability", h.setProbability)
	h.mux.HandleFunc("POST /v1/network/normalize", h.normalizeTensor)
	h.mux.HandleFunc("GET /v1/network/export", h.exportNetwork)
	h.mux.HandleFunc("POST /v1/network/import", h.importNetwork)
	h.mux.HandleFunc("GET /v1/history", h.listHistory)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(h.mux)
}

// POST /v1/query — synchronous inference.
func (h *Handler) runQuery(w http.ResponseWriter, r *http.Request) {
	var req engine.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	res, err := h.svc.RunSync(r.Context(), &req)
	if err != nil {
		writeError(w, inferenceStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /v1/joint — evaluate a complete assignment.
func (h *Handler) jointProbability(w http.ResponseWriter, r *http.Request) {
	var assignment map[string]string
	if err := json.NewDecoder(r.Body).Decode(&assignment); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	p, err := h.svc.JointProbability(assignment)
	if err != nil {
		writeError(w, inferenceStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"probability": p})
}

// POST /v1/conditional — resolve one conditional probability.
func (h *Handler) conditionalProbability(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Variable string            `json:"variable"`
		State    string            `json:"state"`
		Parents  map[string]string `json:"parents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	p, err := h.svc.ConditionalProbability(req.Variable, req.State, req.Parents)
	if err != nil {
		writeError(w, inferenceStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"probability": p})
}

// variableView is the wire form of one variable.
type variableView struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	States    []string `json:"states"`
	Parents   []string `json:"parents"`
	HasTensor bool     `json:"has_tensor"`
}

// GET /v1/network — current structure.
func (h *Handler) describeNetwork(w http.ResponseWriter, r *http.Request) {
	net := h.svc.Network()
	vars := make([]variableView, 0, net.NumVariables())
	edges := make([]map[string]string, 0)
	for _, id := range net.VariableIDs() {
		v, _ := net.Variable(id)
		vars = append(vars, variableView{
			ID:        id,
			Name:      v.Name,
			States:    v.States,
			Parents:   v.ParentIDs(),
			HasTensor: net.HasTensor(id),
		})
		for _, pid := range v.ParentIDs() {
			edges = append(edges, map[string]string{"parent": pid, "child": id})
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"variables":         vars,
		"edges":             edges,
		"topological_order": net.TopologicalOrder(),
	})
}

// POST /v1/network/reload — re-read the definition file and swap.
func (h *Handler) reloadNetwork(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.loader.Reload()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := config.Validate(cfg); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	net, err := bn.Build(&cfg.Network)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	h.svc.Swap(net)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reloaded":  true,
		"variables": net.NumVariables(),
	})
}

// POST /v1/network/probability — write one tensor cell by state names.
func (h *Handler) setProbability(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Variable string            `json:"variable"`
		State    string            `json:"state"`
		Parents  map[string]string `json:"parents"`
		Value    float64           `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if err := h.svc.SetProbability(req.Variable, req.Parents, req.State, req.Value); err != nil {
		writeError(w, inferenceStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

// POST /v1/network/normalize — rescale a variable's tensor slices.
func (h *Handler) normalizeTensor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Variable string `json:"variable"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if err := h.svc.Normalize(req.Variable); err != nil {
		writeError(w, inferenceStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"normalized": true})
}

// GET /v1/network/export — current network in the text interchange
// format.
func (h *Handler) exportNetwork(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := netfile.Encode(w, h.svc.Network()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// POST /v1/network/import — replace the network with one parsed from the
// text interchange format.
func (h *Handler) importNetwork(w http.ResponseWriter, r *http.Request) {
	net, err := netfile.Decode(r.Body)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	h.svc.Swap(net)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"imported":  true,
		"variables": net.NumVariables(),
	})
}

// GET /v1/history?limit= — recent query records.
func (h *Handler) listHistory(w http.ResponseWriter, r *http.Request) {
	store := h.svc.History()
	if store == nil {
		writeError(w, http.StatusServiceUnavailable, "query history is disabled")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	entries, err := store.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// GET /healthz — always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz — 503 if query queue >80% full.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	util := h.svc.QueueUtilization()
	metrics.QueueUtilization.Set(util)
	if util > 0.8 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":            "overloaded",
			"queue_utilization": util,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "ready",
		"queue_utilization": util,
	})
}

// inferenceStatus maps engine errors onto HTTP statuses: structural and
// state lookups are client errors, everything else is 422.
func inferenceStatus(err error) int {
	switch {
	case errors.Is(err, bn.ErrUnknownID),
		errors.Is(err, bn.ErrUnknownState),
		errors.Is(err, bn.ErrMissingParentState),
		errors.Is(err, bn.ErrMissingAssignment):
		return http.StatusBadRequest
	default:
		return http.StatusUnprocessableEntity
	}
}
