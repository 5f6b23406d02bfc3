package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HTTPClient is what the batcher needs from the transport layer: one POST
// for dispatched batches and a generic request for the non-batched path.
type HTTPClient interface {
	Post(ctx context.Context, url string, payload interface{}, headers map[string]string) ([]byte, error)
	Request(ctx context.Context, endpoint string, data RequestData) ([]byte, error)
}

// outcome is the resolution of one pending request
type outcome struct {
	data json.RawMessage
	err  error
}

// pendingRequest is one queued caller waiting for its batch to dispatch
type pendingRequest struct {
	id       string
	endpoint string
	data     RequestData
	enqueued time.Time
	done     chan outcome
}

// activeBatch groups pending requests under one batch key until a size or
// time trigger dispatches it
type activeBatch struct {
	key     string
	rule    Rule
	pending []*pendingRequest
	timer   *time.Timer
	created time.Time
}

// Batcher coalesces eligible GET requests by endpoint pattern into single
// batch POSTs, fanning the combined response back out to each caller.
// Construct one per process and Destroy it on teardown.
type Batcher struct {
	client         HTTPClient
	rules          []Rule
	defaultMaxSize int
	defaultTimeout time.Duration
	log            zerolog.Logger

	mu        sync.Mutex
	batches   map[string]*activeBatch
	destroyed bool
}

// Option configures the batcher
type Option func(*Batcher)

// WithRules replaces the default endpoint routing table
func WithRules(rules []Rule) Option {
	return func(b *Batcher) {
		b.rules = rules
	}
}

// WithDefaultMaxSize sets the size trigger used by rules without one
func WithDefaultMaxSize(n int) Option {
	return func(b *Batcher) {
		b.defaultMaxSize = n
	}
}

// WithDefaultTimeout sets the debounce window used by rules without one
func WithDefaultTimeout(d time.Duration) Option {
	return func(b *Batcher) {
		b.defaultTimeout = d
	}
}

// WithLogger sets the logger for dispatch failures
func WithLogger(log zerolog.Logger) Option {
	return func(b *Batcher) {
		b.log = log
	}
}

// NewBatcher creates a batcher dispatching through the given client
func NewBatcher(client HTTPClient, opts ...Option) *Batcher {
	b := &Batcher{
		client:         client,
		rules:          DefaultRules(),
		defaultMaxSize: DefaultMaxSize,
		defaultTimeout: DefaultTimeout,
		log:            zerolog.Nop(),
		batches:        make(map[string]*activeBatch),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// ExecuteWithBatching is the single public entry point for calling code.
// Batchable GET requests are queued and the call blocks until the batch
// dispatches; everything else goes straight through the underlying client.
func (b *Batcher) ExecuteWithBatching(ctx context.Context, endpoint string, data RequestData) (json.RawMessage, error) {
	method := data.Method
	if method == "" {
		method = http.MethodGet
		data.Method = method
	}

	if method != http.MethodGet || !b.IsBatchable(endpoint) {
		return b.client.Request(ctx, endpoint, data)
	}

	req, err := b.enqueue(endpoint, data)
	if err != nil {
		return nil, err
	}

	select {
	case out := <-req.done:
		return out.data, out.err
	case <-ctx.Done():
		// the request stays queued; its eventual outcome is discarded
		return nil, ctx.Err()
	}
}

// enqueue adds a request to its batch, creating the batch lazily, and
// applies exactly one flush trigger: immediate dispatch at the size cap,
// otherwise a debounce timer that each new arrival replaces.
func (b *Batcher) enqueue(endpoint string, data RequestData) (*pendingRequest, error) {
	b.mu.Lock()

	if b.destroyed {
		b.mu.Unlock()
		return nil, ErrDestroyed
	}

	rule, ok := b.ruleFor(endpoint)
	if !ok {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotBatchable, endpoint)
	}

	key := data.Method + ":" + rule.Pattern
	bt, exists := b.batches[key]
	if !exists {
		bt = &activeBatch{
			key:     key,
			rule:    rule,
			created: time.Now(),
		}
		b.batches[key] = bt
	}

	req := &pendingRequest{
		id:       uuid.NewString(),
		endpoint: endpoint,
		data:     data,
		enqueued: time.Now(),
		done:     make(chan outcome, 1),
	}
	bt.pending = append(bt.pending, req)

	if len(bt.pending) >= b.maxSize(rule) {
		b.takeLocked(bt)
		b.mu.Unlock()
		go b.dispatch(bt)
		return req, nil
	}

	// debounce: each arrival before the timer fires extends the window
	if bt.timer != nil {
		bt.timer.Stop()
	}
	bt.timer = time.AfterFunc(b.timeout(rule), func() {
		b.flushBatch(key, bt)
	})

	b.mu.Unlock()
	return req, nil
}

// takeLocked removes a batch from the map and cancels its timer. Removal
// happens before the outbound call is made, so requests arriving during
// dispatch start a fresh batch under the same key.
func (b *Batcher) takeLocked(bt *activeBatch) {
	if bt.timer != nil {
		bt.timer.Stop()
		bt.timer = nil
	}
	delete(b.batches, bt.key)
}

// flushBatch dispatches a batch when its debounce timer fires. The map is
// re-checked under lock: a size trigger or FlushAll may already have taken
// this batch, in which case the late timer is a no-op.
func (b *Batcher) flushBatch(key string, bt *activeBatch) {
	b.mu.Lock()
	current, ok := b.batches[key]
	if !ok || current != bt {
		b.mu.Unlock()
		return
	}
	b.takeLocked(bt)
	b.mu.Unlock()

	b.dispatch(bt)
}

// dispatch sends one combined POST for a batch already removed from the
// map and fans the per-id results back out. It never panics or returns an
// error; all failure modes resolve through the pending requests.
func (b *Batcher) dispatch(bt *activeBatch) {
	items := make([]Item, len(bt.pending))
	for i, req := range bt.pending {
		items[i] = Item{
			ID:       req.id,
			Method:   req.data.Method,
			Endpoint: req.endpoint,
			Params:   req.data.Params,
			Data:     req.data.Body,
			Headers:  req.data.Headers,
		}
	}

	body, err := b.client.Post(context.Background(), bt.rule.BatchEndpoint, Envelope{Requests: items}, nil)
	if err != nil {
		// transport failure: partial success is impossible at this layer
		b.log.Warn().Str("batch_key", bt.key).Int("size", len(bt.pending)).Err(err).Msg("Batch dispatch failed")
		wrapped := fmt.Errorf("batch dispatch failed: %w", err)
		for _, req := range bt.pending {
			req.done <- outcome{err: wrapped}
		}
		return
	}

	var resp ResponseEnvelope
	if err := json.Unmarshal(body, &resp); err != nil {
		wrapped := fmt.Errorf("batch dispatch failed: invalid response: %w", err)
		for _, req := range bt.pending {
			req.done <- outcome{err: wrapped}
		}
		return
	}

	results := make(map[string]ItemResult, len(resp.Responses))
	for _, r := range resp.Responses {
		results[r.ID] = r
	}

	for _, req := range bt.pending {
		r, ok := results[req.id]
		switch {
		case !ok:
			req.done <- outcome{err: fmt.Errorf("%w for request %s", ErrNoResponse, req.id)}
		case r.Success:
			req.done <- outcome{data: r.Data}
		default:
			req.done <- outcome{err: &ItemError{Status: r.Status, Code: r.Code, Message: r.Error}}
		}
	}
}

// FlushAll dispatches every pending batch now, regardless of timers or
// size. Used to drain before shutdown and for test determinism.
func (b *Batcher) FlushAll() {
	b.mu.Lock()
	taken := make([]*activeBatch, 0, len(b.batches))
	for _, bt := range b.batches {
		taken = append(taken, bt)
	}
	for _, bt := range taken {
		b.takeLocked(bt)
	}
	b.mu.Unlock()

	for _, bt := range taken {
		b.dispatch(bt)
	}
}

// Clear cancels every pending timer and fails every queued request with
// ErrBatchCleared. Nothing is sent; this discards where FlushAll drains.
func (b *Batcher) Clear() {
	b.mu.Lock()
	taken := make([]*activeBatch, 0, len(b.batches))
	for _, bt := range b.batches {
		taken = append(taken, bt)
	}
	for _, bt := range taken {
		b.takeLocked(bt)
	}
	b.mu.Unlock()

	for _, bt := range taken {
		for _, req := range bt.pending {
			req.done <- outcome{err: ErrBatchCleared}
		}
	}
}

// Destroy clears all pending work and rejects any later submissions
func (b *Batcher) Destroy() {
	b.mu.Lock()
	b.destroyed = true
	b.mu.Unlock()
	b.Clear()
}

// GetStats returns a snapshot of the current queues
func (b *Batcher) GetStats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := Stats{
		ActiveBatches: len(b.batches),
		SizeHistogram: make(map[int]int),
	}

	now := time.Now()
	for _, bt := range b.batches {
		size := len(bt.pending)
		stats.TotalPending += size
		stats.SizeHistogram[size]++
		if age := now.Sub(bt.created); age > stats.OldestBatchAge {
			stats.OldestBatchAge = age
		}
	}
	if stats.ActiveBatches > 0 {
		stats.AverageSize = float64(stats.TotalPending) / float64(stats.ActiveBatches)
	}
	return stats
}
