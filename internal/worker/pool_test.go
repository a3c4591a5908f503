package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"crucible/internal/pipeline"
)

type fakeWorker struct {
	kind pipeline.Kind
}

func (f *fakeWorker) Kind() pipeline.Kind { return f.kind }

func (f *fakeWorker) Execute(_ context.Context, _ pipeline.Request) (*pipeline.Response, error) {
	return &pipeline.Response{Payload: map[string]any{"kind": string(f.kind)}}, nil
}

func okFactories() map[pipeline.Kind]Factory {
	factories := make(map[pipeline.Kind]Factory)
	for _, k := range pipeline.Kinds() {
		factories[k] = func(_ context.Context) (pipeline.Worker, error) {
			return &fakeWorker{kind: k}, nil
		}
	}
	return factories
}

func newTestPool(t *testing.T, timeout time.Duration) *Pool {
	t.Helper()
	p, err := Initialize(context.Background(), okFactories(), timeout)
	if err != nil {
		t.Fatalf("initialize pool: %v", err)
	}
	return p
}

func TestInitialize_AllReady(t *testing.T) {
	p := newTestPool(t, time.Second)
	for k, s := range p.Statuses() {
		if s != StatusReady {
			t.Errorf("%s worker status = %s, want ready", k, s)
		}
	}
}

func TestInitialize_AtomicFailure(t *testing.T) {
	factories := okFactories()
	factories[pipeline.KindConversion] = func(_ context.Context) (pipeline.Worker, error) {
		return nil, fmt.Errorf("missing output directory")
	}

	p, err := Initialize(context.Background(), factories, time.Second)
	if p != nil {
		t.Fatal("expected no pool on partial initialization")
	}
	var initErr *InitError
	if !errors.As(err, &initErr) {
		t.Fatalf("got %v, want InitError", err)
	}
	if initErr.Kind != pipeline.KindConversion {
		t.Errorf("InitError.Kind = %s, want conversion", initErr.Kind)
	}
}

func TestInitialize_MissingFactory(t *testing.T) {
	factories := okFactories()
	delete(factories, pipeline.KindEnrichment)
	if _, err := Initialize(context.Background(), factories, time.Second); err == nil {
		t.Fatal("expected error for missing factory")
	}
}

func TestAcquire_SerializesPerKind(t *testing.T) {
	p := newTestPool(t, 5*time.Second)

	h, err := p.Acquire(context.Background(), pipeline.KindConversion)
	if err != nil {
		t.Fatal(err)
	}
	if h.Status() != StatusBusy {
		t.Errorf("acquired handle status = %s, want busy", h.Status())
	}

	var mu sync.Mutex
	var order []string
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// Blocks until the first holder releases.
		h2, err := p.Acquire(context.Background(), pipeline.KindConversion)
		if err != nil {
			t.Errorf("second acquire: %v", err)
			return
		}
		mu.Lock()
		order = append(order, "second-acquired")
		mu.Unlock()
		p.Release(h2.Kind(), OutcomeOK)
	}()

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	order = append(order, "first-released")
	mu.Unlock()
	p.Release(h.Kind(), OutcomeOK)
	wg.Wait()

	if len(order) != 2 || order[0] != "first-released" || order[1] != "second-acquired" {
		t.Errorf("ordering = %v, want [first-released second-acquired]", order)
	}
}

func TestAcquire_DifferentKindsConcurrent(t *testing.T) {
	p := newTestPool(t, time.Second)

	h1, err := p.Acquire(context.Background(), pipeline.KindAnalysis)
	if err != nil {
		t.Fatal(err)
	}
	// A different kind must not block behind analysis.
	h2, err := p.Acquire(context.Background(), pipeline.KindEvaluation)
	if err != nil {
		t.Fatalf("evaluation acquire blocked behind analysis: %v", err)
	}
	p.Release(h1.Kind(), OutcomeOK)
	p.Release(h2.Kind(), OutcomeOK)
}

func TestAcquire_TimeoutWhenBusy(t *testing.T) {
	p := newTestPool(t, 30*time.Millisecond)

	h, err := p.Acquire(context.Background(), pipeline.KindAnalysis)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Release(h.Kind(), OutcomeOK)

	_, err = p.Acquire(context.Background(), pipeline.KindAnalysis)
	var unavail *UnavailableError
	if !errors.As(err, &unavail) {
		t.Fatalf("got %v, want UnavailableError", err)
	}
}

func TestAcquire_ContextCancelled(t *testing.T) {
	p := newTestPool(t, time.Minute)

	h, err := p.Acquire(context.Background(), pipeline.KindAnalysis)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Release(h.Kind(), OutcomeOK)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.Acquire(ctx, pipeline.KindAnalysis); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want context.DeadlineExceeded", err)
	}
}

func TestRelease_FaultParksWorker(t *testing.T) {
	p := newTestPool(t, 30*time.Millisecond)

	h, err := p.Acquire(context.Background(), pipeline.KindEnrichment)
	if err != nil {
		t.Fatal(err)
	}
	p.Release(h.Kind(), OutcomeFault)

	_, err = p.Acquire(context.Background(), pipeline.KindEnrichment)
	var unavail *UnavailableError
	if !errors.As(err, &unavail) {
		t.Fatalf("acquire after fault: got %v, want UnavailableError", err)
	}

	if err := p.Reset(pipeline.KindEnrichment); err != nil {
		t.Fatalf("reset: %v", err)
	}
	h, err = p.Acquire(context.Background(), pipeline.KindEnrichment)
	if err != nil {
		t.Fatalf("acquire after reset: %v", err)
	}
	p.Release(h.Kind(), OutcomeOK)
}

func TestRelease_CancelledReturnsReady(t *testing.T) {
	p := newTestPool(t, time.Second)

	h, err := p.Acquire(context.Background(), pipeline.KindConversion)
	if err != nil {
		t.Fatal(err)
	}
	p.Release(h.Kind(), OutcomeCancelled)

	if got := p.Statuses()[pipeline.KindConversion]; got != StatusReady {
		t.Errorf("status after cancelled release = %s, want ready", got)
	}
}

func TestReset_BusyRejected(t *testing.T) {
	p := newTestPool(t, time.Second)

	h, err := p.Acquire(context.Background(), pipeline.KindAnalysis)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Release(h.Kind(), OutcomeOK)

	if err := p.Reset(pipeline.KindAnalysis); err == nil {
		t.Error("reset of a busy worker should fail")
	}
}
