// Package store buffers and batches VoteLatency records and dispatches
// them to a backing time-series store: InfluxDB for the forward path,
// or the legacy ClickHouse relational schema. Both backends share
// the same dedup, buffering, and batch-dispatch machinery; only the
// final per-batch write differs.
package store

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"

	"github.com/hellomoon/svlm/internal/latency"
	"github.com/hellomoon/svlm/internal/metrics"
)

// avgSlotMillis approximates Solana's ~400ms slot time. latency_ms is a
// deprecated, coarse pipeline-delay figure derived from it; latency_slots
// remains the authoritative metric (see the timestamp-source open
// question this store's callers resolved in favour of on-chain slots).
const avgSlotMillis = 400

// Backend writes one batch of records to the backing store.
type Backend interface {
	WriteBatch(ctx context.Context, batch []latency.VoteLatency) error
	Name() string
	Close(ctx context.Context) error
}

// Config configures the buffering/dispatch machinery shared by every
// backend.
type Config struct {
	BatchSize      int
	FlushInterval  time.Duration
	NumWorkers     int
	DedupSize      int
	DedupWindow    time.Duration
	DispatchDepth  int
	MaxRetries     int
	RetryBaseDelay time.Duration
	Clock          clockwork.Clock
}

func (c *Config) setDefaults() {
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 5_000
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 100 * time.Millisecond
	}
	if c.NumWorkers <= 0 {
		c.NumWorkers = 4
	}
	if c.DedupSize <= 0 {
		c.DedupSize = 10_000
	}
	if c.DedupWindow <= 0 {
		c.DedupWindow = 60 * time.Second
	}
	if c.DispatchDepth <= 0 {
		c.DispatchDepth = 100
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 100 * time.Millisecond
	}
}

// Store owns the dedup cache, the write buffer, and the pool of batch
// dispatch workers in front of a Backend.
type Store struct {
	log     *slog.Logger
	cfg     Config
	backend Backend
	dedup   *dedupCache

	mu     sync.Mutex
	buffer []latency.VoteLatency

	batches chan []latency.VoteLatency
	wg      sync.WaitGroup

	shuttingDown atomic.Bool
	stopTicker   chan struct{}
}

// New constructs a Store in front of backend and starts its flush ticker
// and writer pool.
func New(log *slog.Logger, cfg Config, backend Backend) *Store {
	cfg.setDefaults()

	s := &Store{
		log:        log,
		cfg:        cfg,
		backend:    backend,
		dedup:      newDedupCache(cfg.DedupSize, cfg.DedupWindow),
		buffer:     make([]latency.VoteLatency, 0, cfg.BatchSize),
		batches:    make(chan []latency.VoteLatency, cfg.DispatchDepth),
		stopTicker: make(chan struct{}),
	}

	for i := 0; i < cfg.NumWorkers; i++ {
		s.wg.Add(1)
		go s.writerLoop()
	}
	go s.tickerLoop()

	return s
}

// Write admits v unless the same (signature, voted slot) pair was seen
// within the dedup window, appending it to the write buffer. A
// size-triggered flush dispatches immediately; when the dispatch channel
// is full, Write blocks until a writer frees a slot.
func (s *Store) Write(v latency.VoteLatency) {
	if s.shuttingDown.Load() {
		return
	}

	if s.dedup.seen(v.Signature, v.VotedSlot) {
		metrics.StoreDedupDropTotal.Inc()
		return
	}

	var full []latency.VoteLatency
	s.mu.Lock()
	s.buffer = append(s.buffer, v)
	metrics.StoreBufferDepth.Set(float64(len(s.buffer)))
	if len(s.buffer) >= s.cfg.BatchSize {
		full = s.buffer
		s.buffer = make([]latency.VoteLatency, 0, s.cfg.BatchSize)
	}
	s.mu.Unlock()

	if full != nil {
		s.dispatch(full)
	}
}

func (s *Store) tickerLoop() {
	ticker := s.cfg.Clock.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopTicker:
			return
		case <-ticker.Chan():
			s.Flush()
		}
	}
}

// Flush drains whatever is currently buffered and dispatches it.
func (s *Store) Flush() {
	s.mu.Lock()
	if len(s.buffer) == 0 {
		s.mu.Unlock()
		return
	}
	drained := s.buffer
	s.buffer = make([]latency.VoteLatency, 0, s.cfg.BatchSize)
	metrics.StoreBufferDepth.Set(0)
	s.mu.Unlock()

	s.dispatch(drained)
}

func (s *Store) dispatch(batch []latency.VoteLatency) {
	select {
	case s.batches <- batch:
	default:
		// Dispatch channel is at depth; send blocking as a last resort so
		// we never silently drop an admitted batch.
		s.batches <- batch
	}
}

func (s *Store) writerLoop() {
	defer s.wg.Done()
	for batch := range s.batches {
		s.writeWithRetry(batch)
	}
}

func (s *Store) writeWithRetry(batch []latency.VoteLatency) {
	start := time.Now()
	var err error
	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = s.backend.WriteBatch(ctx, batch)
		cancel()
		if err == nil {
			metrics.StoreWriteTotal.WithLabelValues(s.backend.Name(), "success").Inc()
			metrics.StoreWriteDuration.WithLabelValues(s.backend.Name()).Observe(time.Since(start).Seconds())
			return
		}
		if attempt < s.cfg.MaxRetries {
			time.Sleep(s.cfg.RetryBaseDelay * time.Duration(attempt))
		}
	}
	s.log.Error("store: batch write failed after retries, dropping batch", "backend", s.backend.Name(), "count", len(batch), "error", err)
	metrics.StoreWriteTotal.WithLabelValues(s.backend.Name(), "dropped").Inc()
}

// Shutdown sets the shutdown flag, stops the ticker, drains the buffer
// one last time, closes the batch channel, and awaits every writer.
func (s *Store) Shutdown(ctx context.Context) error {
	s.shuttingDown.Store(true)
	close(s.stopTicker)
	s.Flush()
	close(s.batches)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.log.Warn("store: writer pool did not finish within shutdown timeout")
	}

	return s.backend.Close(ctx)
}

func toLatencyMs(slots uint8) int64 {
	return int64(slots) * avgSlotMillis
}

// dedupCache is an LRU of recently-seen (signature, voted slot) pairs
// with insert timestamps; a pair observed again within window is a
// duplicate. The voted slot is part of the key because a multi-slot vote
// decomposes into several records sharing one signature, all of which
// are legitimate; only a CDC redelivery repeats the pair.
type dedupCache struct {
	mu     sync.Mutex
	cache  *lru.Cache[dedupKey, time.Time]
	window time.Duration
}

type dedupKey struct {
	signature [64]byte
	votedSlot uint64
}

func newDedupCache(size int, window time.Duration) *dedupCache {
	c, _ := lru.New[dedupKey, time.Time](size)
	return &dedupCache{cache: c, window: window}
}

func (d *dedupCache) seen(signature [64]byte, votedSlot uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := dedupKey{signature: signature, votedSlot: votedSlot}
	if ts, ok := d.cache.Get(key); ok && time.Since(ts) < d.window {
		return true
	}
	d.cache.Add(key, time.Now())
	return false
}
