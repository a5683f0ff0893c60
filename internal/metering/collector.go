package metering

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// BatchInserter is the interface used by Collector to persist records. It
// exists to allow testing without a real database.
type BatchInserter interface {
	BatchInsert(ctx context.Context, recs []UsageRecord) error
}

// Collector buffers priced usage records in memory and periodically flushes
// them to the store in batches, so ingestion never blocks on a database
// round-trip per request. It is safe for concurrent use.
type Collector struct {
	store         BatchInserter
	buffer        []UsageRecord
	mu            sync.Mutex
	batchSize     int
	flushInterval time.Duration
	done          chan struct{}

	// OnFlush, when set, is invoked after every flush attempt with the batch
	// size, write duration and outcome. Used to feed metrics; must not block.
	OnFlush func(count int, duration time.Duration, err error)
}

// NewCollector creates a Collector that flushes to the given store when the
// buffer reaches batchSize or every flushInterval, whichever comes first.
func NewCollector(store BatchInserter, batchSize int, flushInterval time.Duration) *Collector {
	return &Collector{
		store:         store,
		buffer:        make([]UsageRecord, 0, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		done:          make(chan struct{}),
	}
}

// Start begins a background goroutine that flushes buffered records on a
// timer. It blocks until Stop is called or the context is cancelled.
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.flush()
		case <-ctx.Done():
			c.flush()
			return
		case <-c.done:
			c.flush()
			return
		}
	}
}

// Record adds a usage record to the buffer. If the buffer reaches batchSize,
// a flush is triggered immediately.
func (c *Collector) Record(rec UsageRecord) {
	c.mu.Lock()
	c.buffer = append(c.buffer, rec)
	shouldFlush := len(c.buffer) >= c.batchSize
	c.mu.Unlock()

	if shouldFlush {
		c.flush()
	}
}

// BufferedCount returns the number of records currently awaiting flush.
func (c *Collector) BufferedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffer)
}

// flush drains all buffered records and writes them to the store. It logs
// errors rather than returning them so record producers are never blocked;
// a failed flush means metering data was lost, which the log and the OnFlush
// hook both surface.
func (c *Collector) flush() {
	c.mu.Lock()
	if len(c.buffer) == 0 {
		c.mu.Unlock()
		return
	}
	batch := c.buffer
	c.buffer = make([]UsageRecord, 0, c.batchSize)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	err := c.store.BatchInsert(ctx, batch)
	if err != nil {
		slog.Error("failed to flush usage records", "count", len(batch), "error", err)
	}
	if c.OnFlush != nil {
		c.OnFlush(len(batch), time.Since(start), err)
	}
}

// Stop signals the background goroutine to exit and performs a final flush.
func (c *Collector) Stop() {
	close(c.done)
}
