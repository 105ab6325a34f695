package engine_test

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/probkit/beliefnet/internal/bn"
	"github.com/probkit/beliefnet/internal/config"
	"github.com/probkit/beliefnet/internal/engine"
)

func medicalNet(t *testing.T) *bn.Network {
	t.Helper()
	n := bn.NewNetwork()
	for _, v := range []struct {
		id     string
		states []string
	}{
		{"disease", []string{"None", "Cold", "Flu"}},
		{"fever", []string{"No", "Yes"}},
		{"cough", []string{"No", "Yes"}},
	} {
		if err := n.AddVariable(v.id, v.id, v.states); err != nil {
			t.Fatal(err)
		}
	}
	for _, e := range [][2]string{{"disease", "fever"}, {"disease", "cough"}} {
		if err := n.AddEdge(e[0], e[1]); err != nil {
			t.Fatal(err)
		}
	}
	for id, def := range map[string]struct {
		dims   []int
		values []float64
	}{
		"disease": {[]int{3}, []float64{0.7, 0.2, 0.1}},
		"fever":   {[]int{3, 2}, []float64{0.9, 0.1, 0.7, 0.3, 0.2, 0.8}},
		"cough":   {[]int{3, 2}, []float64{0.95, 0.05, 0.3, 0.7, 0.4, 0.6}},
	} {
		tensor, err := bn.NewTensor(def.dims)
		if err != nil {
			t.Fatal(err)
		}
		if err := tensor.SetValues(def.values); err != nil {
			t.Fatal(err)
		}
		if err := n.SetTensor(id, tensor); err != nil {
			t.Fatal(err)
		}
	}
	return n
}

func newService(t *testing.T) *engine.Service {
	t.Helper()
	conf := config.EngineConf{QueryWorkers: 2, QueueDepth: 8, QueryTimeoutMs: 5000}
	ctx, cancel := context.WithCancel(context.Background())
	svc := engine.New(ctx, medicalNet(t), nil, conf)
	t.Cleanup(func() {
		svc.Shutdown()
		cancel()
	})
	return svc
}

func TestService_RunSyncEnumerate(t *testing.T) {
	svc := newService(t)

	res, err := svc.RunSync(context.Background(), &engine.Request{
		ID:        "q-1",
		Algorithm: engine.AlgorithmEnumerate,
		Query:     []string{"disease"},
		Evidence:  map[string]string{"fever": "Yes", "cough": "Yes"},
	})
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}
	if res.QueryID != "q-1" {
		t.Errorf("query id = %q", res.QueryID)
	}
	if len(res.Cells) != 3 {
		t.Fatalf("expected 3 cells, got %d", len(res.Cells))
	}
	if svc.LastErrorMessage() != "" {
		t.Errorf("last error should clear on success, got %q", svc.LastErrorMessage())
	}
}

func TestService_DefaultAlgorithm(t *testing.T) {
	svc := newService(t)

	res, err := svc.RunSync(context.Background(), &engine.Request{
		ID:    "q-default",
		Query: []string{"disease"},
	})
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}
	if res.Algorithm != engine.AlgorithmEnumerate {
		t.Errorf("empty algorithm should default to enumerate, got %q", res.Algorithm)
	}
}

func TestService_PropagateRestrictsToQuery(t *testing.T) {
	svc := newService(t)

	res, err := svc.RunSync(context.Background(), &engine.Request{
		ID:        "q-prop",
		Algorithm: engine.AlgorithmPropagate,
		Query:     []string{"fever"},
		Evidence:  map[string]string{"disease": "Flu"},
	})
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}
	if len(res.Beliefs) != 1 {
		t.Fatalf("beliefs should be restricted to the query set, got %v", res.Beliefs)
	}
	if got := res.Beliefs["fever"]["Yes"]; math.Abs(got-0.8) > 1e-4 {
		t.Errorf("P(fever=Yes | disease=Flu) = %v, want ≈ 0.8", got)
	}
}

func TestService_UnknownAlgorithm(t *testing.T) {
	svc := newService(t)

	_, err := svc.RunSync(context.Background(), &engine.Request{
		ID:        "q-bad",
		Algorithm: engine.Algorithm("simulate"),
		Query:     []string{"disease"},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "unknown algorithm") {
		t.Errorf("error = %v", err)
	}
	if svc.LastErrorMessage() == "" {
		t.Error("failed query should set the last error message")
	}
}

func TestService_JointAndConditional(t *testing.T) {
	svc := newService(t)

	p, err := svc.JointProbability(map[string]string{
		"disease": "Flu", "fever": "Yes", "cough": "Yes",
	})
	if err != nil {
		t.Fatalf("JointProbability: %v", err)
	}
	if want := 0.1 * 0.8 * 0.6; math.Abs(p-want) > 1e-12 {
		t.Errorf("joint = %v, want %v", p, want)
	}

	c, err := svc.ConditionalProbability("fever", "Yes", map[string]string{"disease": "Cold"})
	if err != nil {
		t.Fatalf("ConditionalProbability: %v", err)
	}
	if math.Abs(c-0.3) > 1e-12 {
		t.Errorf("conditional = %v, want 0.3", c)
	}

	if _, err := svc.JointProbability(map[string]string{"disease": "Flu"}); err == nil {
		t.Error("partial assignment should fail")
	}
	if svc.LastErrorMessage() == "" {
		t.Error("failed joint should set the last error message")
	}
}

func TestService_Swap(t *testing.T) {
	svc := newService(t)

	replacement := bn.NewNetwork()
	if err := replacement.AddVariable("solo", "solo", []string{"on"}); err != nil {
		t.Fatal(err)
	}
	tensor, _ := bn.NewTensor([]int{1})
	if err := tensor.SetValues([]float64{1}); err != nil {
		t.Fatal(err)
	}
	if err := replacement.SetTensor("solo", tensor); err != nil {
		t.Fatal(err)
	}
	svc.Swap(replacement)

	if svc.Network().NumVariables() != 1 {
		t.Fatal("snapshot not swapped")
	}
	res, err := svc.RunSync(context.Background(), &engine.Request{
		ID: "q-swapped", Query: []string{"solo"},
	})
	if err != nil {
		t.Fatalf("RunSync after swap: %v", err)
	}
	if len(res.Cells) != 1 || res.Cells[0].Probability != 1.0 {
		t.Errorf("unexpected result after swap: %+v", res)
	}
}

func TestService_SetProbabilityCopyOnWrite(t *testing.T) {
	svc := newService(t)
	before := svc.Network()

	if err := svc.SetProbability("fever", map[string]string{"disease": "Flu"}, "Yes", 0.75); err != nil {
		t.Fatalf("SetProbability: %v", err)
	}
	if svc.Network() == before {
		t.Fatal("snapshot should be replaced, not mutated in place")
	}
	if p, _ := before.ConditionalProbability("fever", "Yes", map[string]string{"disease": "Flu"}); p != 0.8 {
		t.Errorf("old snapshot changed: %v", p)
	}
	if p, _ := svc.ConditionalProbability("fever", "Yes", map[string]string{"disease": "Flu"}); p != 0.75 {
		t.Errorf("new snapshot = %v, want 0.75", p)
	}

	if err := svc.SetProbability("fever", map[string]string{"disease": "Flu"}, "Yes", 2.0); err == nil {
		t.Error("out-of-range value should fail")
	}
}

func TestService_Normalize(t *testing.T) {
	svc := newService(t)

	if err := svc.SetProbability("fever", map[string]string{"disease": "Flu"}, "Yes", 0.4); err != nil {
		t.Fatal(err)
	}
	// Slice (Flu) is now 0.2 + 0.4; normalizing rescales it to sum to 1.
	if err := svc.Normalize("fever"); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	p, err := svc.ConditionalProbability("fever", "Yes", map[string]string{"disease": "Flu"})
	if err != nil {
		t.Fatal(err)
	}
	if want := 0.4 / 0.6; math.Abs(p-want) > 1e-12 {
		t.Errorf("normalized value = %v, want %v", p, want)
	}

	if err := svc.Normalize("ghost"); err == nil {
		t.Error("unknown variable should fail")
	}
}

func TestService_QueueUtilizationStartsIdle(t *testing.T) {
	svc := newService(t)
	if u := svc.QueueUtilization(); u != 0 {
		t.Errorf("idle utilization = %v, want 0", u)
	}
}

// With no workers the queue never drains: the first query sits until its
// timeout and a second one is dropped immediately.
func TestService_QueueFullAndTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	svc := engine.New(ctx, medicalNet(t), nil, config.EngineConf{
		QueryWorkers: 0, QueueDepth: 1, QueryTimeoutMs: 100,
	})
	t.Cleanup(func() {
		cancel()
		svc.Shutdown()
	})

	first := make(chan error, 1)
	go func() {
		_, err := svc.RunSync(context.Background(), &engine.Request{
			ID: "q-stuck", Query: []string{"disease"},
		})
		first <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for svc.QueueUtilization() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if svc.QueueUtilization() != 1.0 {
		t.Fatal("first query never reached the queue")
	}

	_, err := svc.RunSync(context.Background(), &engine.Request{
		ID: "q-dropped", Query: []string{"disease"},
	})
	if err == nil || !strings.Contains(err.Error(), "queue full") {
		t.Errorf("second query should be dropped, got %v", err)
	}

	if err := <-first; err == nil || !strings.Contains(err.Error(), "timeout") {
		t.Errorf("first query should time out, got %v", err)
	}
}
