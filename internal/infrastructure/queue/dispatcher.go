// Package queue runs mutating operations on a fixed set of sharded workers.
// Operations sharing a key run in submission order on the same worker.
package queue

import (
	"context"
	"errors"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/99minutos/approval-system/internal/api/metrics"
	"github.com/99minutos/approval-system/internal/core/domain"
)

const (
	defaultWorkers   = 8
	channelBuffer    = 256
	defaultRetention = 15 * time.Minute
)

// ErrStopped is returned by Submit after the dispatcher has been stopped.
var ErrStopped = errors.New("dispatcher stopped")

// Operation is a unit of work submitted to the dispatcher.
type Operation struct {
	// Name labels metrics and logs, e.g. "process_approval".
	Name string
	// Key selects the worker. Operations with equal keys never run concurrently.
	Key string
	// Owner is the identity that submitted the operation, kept on its receipt.
	Owner string
	Run   func(ctx context.Context) (any, error)
}

type job struct {
	ctx     context.Context
	op      Operation
	receipt *Receipt
}

// Dispatcher routes operations to workers using consistent hashing on the key.
type Dispatcher struct {
	workers   []chan job
	retention time.Duration
	log       zerolog.Logger

	mu       sync.RWMutex
	stopped  bool
	receipts map[string]*Receipt

	wg sync.WaitGroup
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used. Finished receipts are kept for
// retention; zero selects defaultRetention.
func NewDispatcher(numWorkers int, retention time.Duration, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	if retention <= 0 {
		retention = defaultRetention
	}
	d := &Dispatcher{
		workers:   make([]chan job, numWorkers),
		retention: retention,
		log:       log,
		receipts:  make(map[string]*Receipt),
	}
	for i := range d.workers {
		d.workers[i] = make(chan job, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines and the receipt pruner. When ctx is
// cancelled the dispatcher stops accepting work; workers drain what is
// already queued and exit. Use Wait to block until they have.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(i, ch)
	}
	go d.prune(ctx)
	go func() {
		<-ctx.Done()
		d.Stop()
	}()
}

// Stop closes the worker channels. It is safe to call more than once.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	for _, ch := range d.workers {
		close(ch)
	}
}

// Wait blocks until every worker has exited or ctx ends.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit queues op and returns its receipt in the submitted phase. It never
// blocks: a full shard or a stopped dispatcher fails with a transport error.
// If ctx ends before a worker picks the operation up it is abandoned; once a
// worker accepts it, it runs to the end regardless of ctx.
func (d *Dispatcher) Submit(ctx context.Context, op Operation) (*Receipt, error) {
	r := newReceipt(uuid.NewString(), op.Name, op.Owner)
	idx := d.shardIndex(op.Key)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return nil, domain.Transport("submit "+op.Name, ErrStopped)
	}
	select {
	case d.workers[idx] <- job{ctx: ctx, op: op, receipt: r}:
	default:
		return nil, domain.Transport("submit "+op.Name, errors.New("operation queue is full"))
	}
	d.receipts[r.id] = r
	metrics.OperationsQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
	return r, nil
}

// Receipt returns the receipt for id while it is retained.
func (d *Dispatcher) Receipt(id string) (*Receipt, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.receipts[id]
	return r, ok
}

// shardIndex maps a key deterministically to a worker index.
func (d *Dispatcher) shardIndex(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(id int, ch <-chan job) {
	defer d.wg.Done()
	label := strconv.Itoa(id)
	for j := range ch {
		metrics.OperationsQueueDepth.WithLabelValues(label).Set(float64(len(ch)))
		d.execute(id, j)
	}
}

func (d *Dispatcher) execute(worker int, j job) {
	if err := j.ctx.Err(); err != nil {
		failure := domain.Transport("operation abandoned before acceptance", err)
		j.receipt.finish(nil, failure)
		metrics.OperationsTotal.WithLabelValues(j.op.Name, "abandoned", string(domain.KindOf(failure))).Inc()
		d.log.Warn().Str("operation_id", j.receipt.id).Str("operation", j.op.Name).Msg("operation abandoned")
		return
	}

	j.receipt.accept()
	start := time.Now()
	result, err := j.op.Run(context.WithoutCancel(j.ctx))
	j.receipt.finish(result, err)

	outcome := string(PhaseSettled)
	if err != nil {
		outcome = string(PhaseFailed)
	}
	metrics.OperationDuration.WithLabelValues(j.op.Name, outcome).Observe(time.Since(start).Seconds())
	metrics.OperationsTotal.WithLabelValues(j.op.Name, outcome, string(domain.KindOf(err))).Inc()

	if err != nil && domain.KindOf(err) == domain.KindUnknown {
		d.log.Error().Err(err).
			Str("operation_id", j.receipt.id).
			Str("operation", j.op.Name).
			Int("worker_id", worker).
			Msg("operation failed")
	}
}

func (d *Dispatcher) prune(ctx context.Context) {
	ticker := time.NewTicker(d.retention / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			d.pruneBefore(now.Add(-d.retention))
		}
	}
}

func (d *Dispatcher) pruneBefore(cutoff time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, r := range d.receipts {
		if settled, ok := r.settledAt(); ok && settled.Before(cutoff) {
			delete(d.receipts, id)
		}
	}
}
