package index

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/khizarrm/outreach/internal/model"
)

var indexWrites = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "outreach_index_writes_total",
	Help: "Semantic index writes by kind and result.",
}, []string{"kind", "result"})

// Async runs indexing in background goroutines, each bounded by its own
// timeout and detached from the submitting request.
type Async struct {
	indexer Indexer
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewAsync wraps indexer. A non-positive timeout defaults to 10s.
func NewAsync(indexer Indexer, timeout time.Duration) *Async {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Async{indexer: indexer, timeout: timeout}
}

// Submit indexes the company and its employees in the background. It never
// blocks and is a no-op after Drain.
func (a *Async) Submit(c model.Company, employees []model.Employee) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		zap.L().Warn("index: submit after drain, dropping", zap.String("company", c.Name))
		return
	}
	a.wg.Add(1)
	a.mu.Unlock()

	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		a.run(ctx, c, employees)
	}()
}

func (a *Async) run(ctx context.Context, c model.Company, employees []model.Employee) {
	log := zap.L().With(zap.String("company", c.Name), zap.Int64("company_id", c.ID))

	if err := a.indexer.IndexCompany(ctx, c); err != nil {
		indexWrites.WithLabelValues("company", "error").Inc()
		log.Warn("index: company failed", zap.Error(err))
	} else {
		indexWrites.WithLabelValues("company", "ok").Inc()
	}

	for _, e := range employees {
		if err := a.indexer.IndexEmployee(ctx, e, c.Name); err != nil {
			indexWrites.WithLabelValues("employee", "error").Inc()
			log.Warn("index: employee failed", zap.String("employee", e.Name), zap.Error(err))
			continue
		}
		indexWrites.WithLabelValues("employee", "ok").Inc()
	}
}

// Drain stops accepting work and waits for in-flight indexing or ctx.
func (a *Async) Drain(ctx context.Context) error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
