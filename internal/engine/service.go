package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/probkit/beliefnet/internal/bn"
	"github.com/probkit/beliefnet/internal/config"
	"github.com/probkit/beliefnet/internal/history"
	"github.com/probkit/beliefnet/internal/infer"
	"github.com/probkit/beliefnet/internal/metrics"
)

// Algorithm selects which inference routine answers a query.
type Algorithm string

const (
	// AlgorithmEnumerate is exact brute-force marginal enumeration.
	AlgorithmEnumerate Algorithm = "enumerate"
	// AlgorithmPropagate is the heuristic forward belief propagation.
	AlgorithmPropagate Algorithm = "propagate"
	// AlgorithmDiagnose is the reverse (effect → cause) variant.
	AlgorithmDiagnose Algorithm = "diagnose"
)

// Request is one inference query against the current network snapshot.
type Request struct {
	ID        string            `json:"id"`
	Algorithm Algorithm         `json:"algorithm"`
	Query     []string          `json:"query"`
	Evidence  map[string]string `json:"evidence"`
	Trace     bool              `json:"trace"`
}

// Result is the outcome of a completed query. Cells and Skipped are set
// for enumeration; Beliefs and Traces for the propagation algorithms.
type Result struct {
	QueryID    string                 `json:"query_id"`
	Algorithm  Algorithm              `json:"algorithm"`
	DurationMs int64                  `json:"duration_ms"`
	Cells      []infer.Cell           `json:"cells,omitempty"`
	Skipped    int                    `json:"skipped,omitempty"`
	Beliefs    infer.Beliefs          `json:"beliefs,omitempty"`
	Traces     []infer.InfluenceTrace `json:"traces,omitempty"`
}

type queryWork struct {
	ctx     context.Context
	req     *Request
	resultC chan queryOutcome
}

type queryOutcome struct {
	res *Result
	err error
}

// Service executes inference queries against an atomically swappable
// network snapshot. Mutations never touch a snapshot in use: hot reload
// builds a fresh network and swaps the pointer.
type Service struct {
	network atomic.Pointer[bn.Network]
	pool    *workerPool[*queryWork]
	conf    *config.EngineConf
	hist    *history.Store // nil = history disabled
	lastErr atomic.Pointer[string]
}

// New creates a Service and starts its worker pool.
func New(ctx context.Context, net *bn.Network, hist *history.Store, conf config.EngineConf) *Service {
	s := &Service{conf: &conf, hist: hist}
	s.network.Store(net)
	s.pool = newWorkerPool(ctx, conf.QueryWorkers, conf.QueueDepth, func(ctx context.Context, w *queryWork) {
		res, err := s.execute(w.ctx, w.req)
		w.resultC <- queryOutcome{res: res, err: err}
	})
	return s
}

// Swap atomically replaces the network snapshot (used on hot reload).
func (s *Service) Swap(net *bn.Network) {
	s.network.Store(net)
	metrics.NetworkReloads.Inc()
}

// Network returns the current snapshot.
func (s *Service) Network() *bn.Network {
	return s.network.Load()
}

// History returns the query-history store, or nil when disabled.
func (s *Service) History() *history.Store {
	return s.hist
}

// RunSync submits a query and waits for its result, bounded by the
// configured query timeout. A full queue is reported immediately.
func (s *Service) RunSync(ctx context.Context, req *Request) (*Result, error) {
	resultC := make(chan queryOutcome, 1)
	w := &queryWork{ctx: ctx, req: req, resultC: resultC}

	if !s.pool.Submit(w) {
		metrics.QueriesDropped.Inc()
		return nil, fmt.Errorf("query queue full (capacity %d)", s.pool.QueueCap())
	}
	metrics.QueriesEnqueued.Inc()

	timeout := time.Duration(s.conf.QueryTimeoutMs) * time.Millisecond
	select {
	case out := <-resultC:
		return out.res, out.err
	case <-time.After(timeout):
		return nil, fmt.Errorf("inference timeout after %v", timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Service) execute(ctx context.Context, req *Request) (*Result, error) {
	start := time.Now()
	net := s.network.Load()

	res := &Result{QueryID: req.ID, Algorithm: req.Algorithm}
	var err error

	switch req.Algorithm {
	case AlgorithmEnumerate, "":
		var er *infer.EnumerationResult
		er, err = infer.Enumerate(net, req.Query, req.Evidence)
		if err == nil {
			res.Algorithm = AlgorithmEnumerate
			res.Cells = er.Cells
			res.Skipped = er.Skipped
		}
	case AlgorithmPropagate:
		var beliefs infer.Beliefs
		beliefs, res.Traces, err = infer.Propagate(net, req.Query, req.Evidence, req.Trace)
		res.Beliefs = restrict(beliefs, req.Query)
	case AlgorithmDiagnose:
		var beliefs infer.Beliefs
		beliefs, res.Traces, err = infer.Diagnose(net, req.Query, req.Evidence, req.Trace)
		res.Beliefs = restrict(beliefs, req.Query)
	default:
		err = fmt.Errorf("unknown algorithm %q", req.Algorithm)
	}

	res.DurationMs = time.Since(start).Milliseconds()
	status := "success"
	if err != nil {
		status = "error"
		s.setLastError(err)
	} else {
		s.clearLastError()
	}
	metrics.QueriesProcessed.WithLabelValues(string(res.Algorithm), status).Inc()
	metrics.InferenceDuration.Observe(float64(res.DurationMs))

	if err != nil {
		return nil, err
	}
	s.record(ctx, req, res)
	return res, nil
}

// record appends the query to the audit log. Failures are logged and
// never fail the query itself.
func (s *Service) record(ctx context.Context, req *Request, res *Result) {
	if s.hist == nil {
		return
	}
	entry := history.Entry{
		ID:         req.ID,
		Algorithm:  string(res.Algorithm),
		Query:      req.Query,
		Evidence:   req.Evidence,
		DurationMs: res.DurationMs,
	}
	if err := entry.SetResult(res); err == nil {
		if err := s.hist.Record(ctx, entry); err != nil {
			slog.Warn("query history write failed", "query_id", req.ID, "err", err)
		}
	}
}

// JointProbability evaluates a complete assignment against the current
// snapshot.
func (s *Service) JointProbability(assignment map[string]string) (float64, error) {
	p, err := s.network.Load().JointProbability(assignment)
	if err != nil {
		s.setLastError(err)
		return 0, err
	}
	s.clearLastError()
	return p, nil
}

// ConditionalProbability resolves P(variable=state | parents) against the
// current snapshot.
func (s *Service) ConditionalProbability(id, state string, parents map[string]string) (float64, error) {
	p, err := s.network.Load().ConditionalProbability(id, state, parents)
	if err != nil {
		s.setLastError(err)
		return 0, err
	}
	s.clearLastError()
	return p, nil
}

// SetProbability writes one tensor cell on a copy of the current
// snapshot and swaps it in, so in-flight queries keep a consistent view.
func (s *Service) SetProbability(id string, parents map[string]string, ownState string, value float64) error {
	next := s.network.Load().Clone()
	if err := next.SetProbability(id, parents, ownState, value); err != nil {
		s.setLastError(err)
		return err
	}
	s.network.Store(next)
	s.clearLastError()
	return nil
}

// Normalize rescales every parent-configuration slice of id's tensor,
// again on a copy-and-swap of the snapshot.
func (s *Service) Normalize(id string) error {
	next := s.network.Load().Clone()
	if err := next.Normalize(id); err != nil {
		s.setLastError(err)
		return err
	}
	s.network.Store(next)
	s.clearLastError()
	return nil
}

// LastErrorMessage returns the message of the most recent failed
// operation, or the empty string when the last operation succeeded.
func (s *Service) LastErrorMessage() string {
	if msg := s.lastErr.Load(); msg != nil {
		return *msg
	}
	return ""
}

func (s *Service) setLastError(err error) {
	msg := err.Error()
	s.lastErr.Store(&msg)
}

func (s *Service) clearLastError() {
	empty := ""
	s.lastErr.Store(&empty)
}

// QueueUtilization returns queue used / capacity (0–1).
func (s *Service) QueueUtilization() float64 {
	if s.pool.QueueCap() == 0 {
		return 0
	}
	return float64(s.pool.QueueLen()) / float64(s.pool.QueueCap())
}

// Shutdown drains the worker pool gracefully.
func (s *Service) Shutdown() {
	s.pool.Drain()
}

func restrict(beliefs infer.Beliefs, query []string) infer.Beliefs {
	if len(query) == 0 {
		return beliefs
	}
	out := make(infer.Beliefs, len(query))
	for _, id := range query {
		if b, ok := beliefs[id]; ok {
			out[id] = b
		}
	}
	return out
}
