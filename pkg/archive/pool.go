// Package archive provides an asynchronous worker pool that persists finished
// exchanges with a storage.Driver and announces them on an
// eventstream.Publisher.
//
// Archiving runs off the session goroutine; Record never blocks.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/papercomputeco/parley/pkg/eventstream"
	"github.com/papercomputeco/parley/pkg/logger"
	"github.com/papercomputeco/parley/pkg/storage"
)

var (
	defaultNumWorkers   uint = 2
	defaultJobQueueSize uint = 64
	defaultJobTimeout        = 10 * time.Second
)

// Config is the configuration options for the worker pool.
type Config struct {
	// Driver is the storage backend for persisting exchanges.
	Driver storage.Driver

	// Publisher optionally receives an event for every stored exchange.
	Publisher eventstream.Publisher

	// Source is stamped on every published event.
	Source eventstream.EventSource

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 64).
	QueueSize uint

	// JobTimeout bounds the storage and publish calls of one job.
	JobTimeout time.Duration

	Logger *slog.Logger
}

// Pool archives exchanges asynchronously. It implements session.Recorder.
type Pool struct {
	config *Config
	queue  chan *storage.Exchange
	wg     sync.WaitGroup
	logger *slog.Logger

	// mu guards closed so Record never sends on a closed queue.
	mu     sync.RWMutex
	closed bool
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Driver == nil {
		return nil, errors.New("archive pool requires a storage driver")
	}
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}
	if c.JobTimeout == 0 {
		c.JobTimeout = defaultJobTimeout
	}
	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}

	p := &Pool{
		config: c,
		queue:  make(chan *storage.Exchange, c.QueueSize),
		logger: c.Logger,
	}

	p.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go p.worker(i)
	}

	return p, nil
}

// Record queues ex for archiving without blocking.
func (p *Pool) Record(ex *storage.Exchange) {
	p.Enqueue(ex)
}

// Enqueue submits an exchange to the pool. It returns false when the exchange
// was dropped because the queue is full or the pool is closed.
func (p *Pool) Enqueue(ex *storage.Exchange) bool {
	if ex == nil {
		return false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Warn("exchange not queued, archive closed", "exchange_id", ex.ID)
		return false
	}

	select {
	case p.queue <- ex:
		p.logger.Debug("exchange queued", "exchange_id", ex.ID, "outcome", ex.Outcome)
		return true
	default:
		p.logger.Error("exchange not queued, queue full, exchange dropped",
			"exchange_id", ex.ID,
			"model", ex.Model,
		)
		return false
	}
}

// Close stops accepting exchanges and waits for queued ones to drain. It does
// not close the driver or publisher.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("archive worker started", "worker_id", id)

	for ex := range p.queue {
		p.process(ex)
	}

	p.logger.Debug("archive worker stopped", "worker_id", id)
}

// process stores ex and, when that succeeds, publishes it. A publish failure
// is logged and does not undo the stored exchange.
func (p *Pool) process(ex *storage.Exchange) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.JobTimeout)
	defer cancel()

	if err := p.config.Driver.SaveExchange(ctx, ex); err != nil {
		p.logger.Error("archiving exchange failed", "exchange_id", ex.ID, "error", err)
		return
	}

	p.logger.Debug("exchange archived",
		"exchange_id", ex.ID,
		"session_id", ex.SessionID,
		"outcome", ex.Outcome,
		"duration", ex.Duration(),
	)

	if p.config.Publisher == nil {
		return
	}

	event := eventstream.NewExchangeRecordedEvent(p.config.Source, ex)
	if err := p.config.Publisher.PublishExchange(ctx, event); err != nil {
		p.logger.Warn("publishing exchange event failed",
			"exchange_id", ex.ID,
			"event_id", event.EventID,
			"error", err,
		)
		return
	}

	p.logger.Debug("exchange event published", "exchange_id", ex.ID, "event_id", event.EventID)
}
