package perf

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Collector aggregates performance telemetry into capped rolling windows,
// flags threshold violations as bottlenecks and fans alerts out to
// subscribers. One instance per process; construct it explicitly and wire
// it into the composition root rather than sharing a package-level value.
type Collector struct {
	provider    EntryProvider
	memory      MemoryReader
	memInterval time.Duration
	log         zerolog.Logger

	mu           sync.RWMutex
	thresholds   Thresholds
	api          map[string]*ring[APISample]
	interactions map[string]*ring[InteractionSample]
	memorySamp   *ring[MemorySample]
	custom       map[string]*ring[CustomSample]
	resources    *ring[ResourceSample]
	bottlenecks  *ring[Bottleneck]
	vitals       WebVitals
	navigation   *NavigationTiming

	subscribers map[int]AlertFunc
	nextSubID   int

	subs    []Subscription
	memStop chan struct{}
	active  bool
}

// CollectorOption configures the collector
type CollectorOption func(*Collector)

// WithThresholds sets the initial bottleneck thresholds
func WithThresholds(t Thresholds) CollectorOption {
	return func(c *Collector) {
		c.thresholds = t
	}
}

// WithMemoryReader sets the memory-usage source
func WithMemoryReader(r MemoryReader) CollectorOption {
	return func(c *Collector) {
		c.memory = r
	}
}

// WithMemoryInterval sets how often the memory sampler runs
func WithMemoryInterval(d time.Duration) CollectorOption {
	return func(c *Collector) {
		c.memInterval = d
	}
}

// WithLogger sets the logger used for subscriber failures and degraded
// observation registrations
func WithLogger(log zerolog.Logger) CollectorOption {
	return func(c *Collector) {
		c.log = log
	}
}

// NewCollector creates a collector reading entries from the given provider.
// Construction never fails; unsupported observation streams degrade to
// no-ops when Start registers them.
func NewCollector(provider EntryProvider, opts ...CollectorOption) *Collector {
	c := &Collector{
		provider:    provider,
		memInterval: DefaultMemoryInterval,
		log:         zerolog.Nop(),
		thresholds:  DefaultThresholds(),
	}
	c.resetState()

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// resetState re-creates every sample buffer. Must be called with the
// write lock held (or before the collector is shared).
func (c *Collector) resetState() {
	c.api = make(map[string]*ring[APISample])
	c.interactions = make(map[string]*ring[InteractionSample])
	c.memorySamp = newRing[MemorySample](maxMemorySamples)
	c.custom = make(map[string]*ring[CustomSample])
	c.resources = newRing[ResourceSample](maxResourceSamples)
	c.bottlenecks = newRing[Bottleneck](maxBottlenecks)
	c.vitals = WebVitals{}
	c.navigation = nil
	if c.subscribers == nil {
		c.subscribers = make(map[int]AlertFunc)
	}
}

// Start registers the observation streams and the memory sampler.
// Idempotent; calling Start on an active collector is a no-op.
func (c *Collector) Start() {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return
	}
	c.active = true
	c.mu.Unlock()

	for _, t := range []EntryType{
		EntryNavigation,
		EntryResource,
		EntryEvent,
		EntryLCP,
		EntryFirstInput,
		EntryLayoutShift,
	} {
		c.observe(t)
	}

	c.startMemorySampler()
}

// observe registers one entry stream; an unsupported type degrades silently
func (c *Collector) observe(t EntryType) {
	sub, err := c.provider.Observe(t, c.Ingest)
	if err != nil {
		c.log.Debug().Str("entry_type", string(t)).Err(err).Msg("Observation stream unavailable")
		return
	}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
}

// Stop disconnects every observation stream and stops the memory sampler.
// Recorded samples are kept. Idempotent.
func (c *Collector) Stop() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	memStop := c.memStop
	c.memStop = nil
	c.active = false
	c.mu.Unlock()

	for _, sub := range subs {
		sub.Disconnect()
	}
	if memStop != nil {
		close(memStop)
	}
}

// Restart stops the collector, clears all recorded samples and starts again
func (c *Collector) Restart() {
	c.Stop()
	c.Clear()
	c.Start()
}

// Clear empties every sample buffer and the web vitals without touching
// active observation streams
func (c *Collector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetState()
}

// Active reports whether observation streams are registered
func (c *Collector) Active() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// UpdateThresholds merges non-nil patch fields into the current thresholds
// and returns the result
func (c *Collector) UpdateThresholds(patch ThresholdPatch) Thresholds {
	c.mu.Lock()
	defer c.mu.Unlock()

	if patch.APIResponseTime != nil {
		c.thresholds.APIResponseTime = *patch.APIResponseTime
	}
	if patch.MemoryUsage != nil {
		c.thresholds.MemoryUsage = *patch.MemoryUsage
	}
	if patch.RenderTime != nil {
		c.thresholds.RenderTime = *patch.RenderTime
	}
	if patch.InteractionDelay != nil {
		c.thresholds.InteractionDelay = *patch.InteractionDelay
	}
	if patch.BundleSize != nil {
		c.thresholds.BundleSize = *patch.BundleSize
	}
	return c.thresholds
}

// GetThresholds returns the current thresholds
func (c *Collector) GetThresholds() Thresholds {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.thresholds
}

// OnAlert registers a subscriber for every alert the collector emits.
// The returned function removes the subscription.
func (c *Collector) OnAlert(fn AlertFunc) func() {
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subscribers, id)
		c.mu.Unlock()
	}
}

// APICallOptions carries the optional fields of a manually recorded API call
type APICallOptions struct {
	Status       int
	TransferSize int64
	Cached       bool
	Retried      bool
}

// RecordAPICall records one API call measurement from explicit timestamps.
// It works without any observation support and returns the stored sample.
func (c *Collector) RecordAPICall(endpoint, method string, start, end time.Time, opts APICallOptions) APISample {
	sample := APISample{
		Endpoint:     endpoint,
		Method:       method,
		Duration:     float64(end.Sub(start)) / float64(time.Millisecond),
		TransferSize: opts.TransferSize,
		Status:       opts.Status,
		Cached:       opts.Cached,
		Retried:      opts.Retried,
		Timestamp:    time.Now(),
	}

	c.mu.Lock()
	r, ok := c.api[endpoint]
	if !ok {
		r = newRing[APISample](maxAPISamples)
		c.api[endpoint] = r
	}
	r.push(sample)
	alert, subs := c.checkBottleneckLocked(
		BottleneckAPISlowResponse, endpoint, sample.Duration, c.thresholds.APIResponseTime, 2)
	c.mu.Unlock()

	c.emit(alert, subs)
	return sample
}

// RecordInteraction records one user-interaction measurement
func (c *Collector) RecordInteraction(interactionType, target string, duration float64) InteractionSample {
	sample := InteractionSample{
		Type:      interactionType,
		Target:    target,
		Duration:  duration,
		Timestamp: time.Now(),
	}

	c.mu.Lock()
	r, ok := c.interactions[interactionType]
	if !ok {
		r = newRing[InteractionSample](maxInteractionSamples)
		c.interactions[interactionType] = r
	}
	r.push(sample)
	alert, subs := c.checkBottleneckLocked(
		BottleneckInteractionDelay, interactionType, duration, c.thresholds.InteractionDelay, 3)
	c.mu.Unlock()

	c.emit(alert, subs)
	return sample
}

// RecordCustomMetric records a caller-defined timing. A "threshold_ms"
// metadata entry overrides the default 1000ms bottleneck threshold.
func (c *Collector) RecordCustomMetric(name string, duration float64, metadata map[string]interface{}) CustomSample {
	sample := CustomSample{
		Name:      name,
		Duration:  duration,
		Metadata:  metadata,
		Timestamp: time.Now(),
	}

	threshold := 1000.0
	if v, ok := metadata["threshold_ms"]; ok {
		switch t := v.(type) {
		case float64:
			threshold = t
		case int:
			threshold = float64(t)
		}
	}

	c.mu.Lock()
	r, ok := c.custom[name]
	if !ok {
		r = newRing[CustomSample](maxCustomSamples)
		c.custom[name] = r
	}
	r.push(sample)
	alert, subs := c.checkBottleneckLocked(
		BottleneckCustomMetricSlow, name, duration, threshold, 2)
	c.mu.Unlock()

	c.emit(alert, subs)
	return sample
}

// checkBottleneckLocked evaluates one threshold rule and, when violated,
// appends a bottleneck and prepares the matching alert. Severity is high
// only past highFactor times the threshold (strict inequality). Must be
// called with the write lock held; the caller emits after unlocking.
func (c *Collector) checkBottleneckLocked(kind BottleneckKind, subject string, duration, threshold, highFactor float64) (*Alert, []AlertFunc) {
	if duration <= threshold {
		return nil, nil
	}

	severity := SeverityMedium
	if duration > highFactor*threshold {
		severity = SeverityHigh
	}

	b := Bottleneck{
		Kind:      kind,
		Subject:   subject,
		Duration:  duration,
		Threshold: threshold,
		Severity:  severity,
		Timestamp: time.Now(),
	}
	c.bottlenecks.push(b)

	alert := &Alert{
		Type:      string(kind),
		Payload:   b,
		Timestamp: b.Timestamp,
	}
	return alert, c.subscribersLocked()
}

func (c *Collector) subscribersLocked() []AlertFunc {
	subs := make([]AlertFunc, 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		subs = append(subs, fn)
	}
	return subs
}

// emit delivers an alert to every subscriber. A panicking subscriber is
// logged and the remaining subscribers still run.
func (c *Collector) emit(alert *Alert, subs []AlertFunc) {
	if alert == nil {
		return
	}
	for _, fn := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.log.Error().
						Str("alert_type", alert.Type).
						Interface("panic", r).
						Msg("Alert subscriber panicked")
				}
			}()
			fn(*alert)
		}()
	}
}

// Ingest routes one performance entry through the collector. Observation
// streams deliver entries here; the gateway's sample-ingestion endpoint
// uses it for client-reported entries. Panics are contained so no failure
// escapes into an observer callback.
func (c *Collector) Ingest(e Entry) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Str("entry_type", string(e.Type)).Interface("panic", r).Msg("Entry handler panicked")
		}
	}()

	switch e.Type {
	case EntryNavigation:
		c.ingestNavigation(e)
	case EntryResource:
		c.ingestResource(e)
	case EntryEvent:
		c.RecordInteraction(e.Name, e.Target, e.Duration)
	case EntryLCP, EntryFirstInput, EntryLayoutShift:
		c.ingestVital(e)
	}
}

func (c *Collector) ingestNavigation(e Entry) {
	nav := e.Navigation
	if nav == nil {
		nav = &NavigationTiming{LoadComplete: e.Duration}
	}
	stored := *nav
	if stored.Timestamp.IsZero() {
		stored.Timestamp = time.Now()
	}

	c.mu.Lock()
	c.navigation = &stored
	c.mu.Unlock()
}

func (c *Collector) ingestResource(e Entry) {
	if isAPIResource(e.Name) {
		method := "GET"
		now := time.Now()
		c.RecordAPICall(e.Name, method, now.Add(-time.Duration(e.Duration*float64(time.Millisecond))), now, APICallOptions{
			Status:       e.ResponseStatus,
			TransferSize: e.TransferSize,
		})
		return
	}

	sample := ResourceSample{
		Name:         e.Name,
		Kind:         resourceKind(e.Name),
		Duration:     e.Duration,
		TransferSize: e.TransferSize,
		Timestamp:    time.Now(),
	}
	c.mu.Lock()
	c.resources.push(sample)
	c.mu.Unlock()
}

// isAPIResource splits resource timing into API calls vs generic assets
func isAPIResource(name string) bool {
	return strings.Contains(name, "/api/")
}

func resourceKind(name string) string {
	trimmed := name
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	switch {
	case strings.HasSuffix(trimmed, ".js"):
		return "script"
	case strings.HasSuffix(trimmed, ".css"):
		return "stylesheet"
	case strings.HasSuffix(trimmed, ".png"), strings.HasSuffix(trimmed, ".jpg"),
		strings.HasSuffix(trimmed, ".jpeg"), strings.HasSuffix(trimmed, ".webp"),
		strings.HasSuffix(trimmed, ".svg"), strings.HasSuffix(trimmed, ".gif"):
		return "image"
	case strings.HasSuffix(trimmed, ".woff"), strings.HasSuffix(trimmed, ".woff2"),
		strings.HasSuffix(trimmed, ".ttf"):
		return "font"
	default:
		return "other"
	}
}

// startMemorySampler takes one immediate sample and then samples on a
// fixed interval until Stop
func (c *Collector) startMemorySampler() {
	if c.memory == nil {
		return
	}

	stop := make(chan struct{})
	c.mu.Lock()
	c.memStop = stop
	c.mu.Unlock()

	c.sampleMemory()

	go func() {
		ticker := time.NewTicker(c.memInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.sampleMemory()
			case <-stop:
				return
			}
		}
	}()
}

// sampleMemory appends one memory sample and emits a memory_usage_high
// alert when usage is past the threshold. Memory violations do not enter
// the bottleneck buffer.
func (c *Collector) sampleMemory() {
	info, ok := c.memory.Read()
	if !ok {
		return
	}

	sample := MemorySample{
		Used:      info.Used,
		Total:     info.Total,
		Limit:     info.Limit,
		Timestamp: time.Now(),
	}

	c.mu.Lock()
	c.memorySamp.push(sample)
	threshold := c.thresholds.MemoryUsage
	var alert *Alert
	var subs []AlertFunc
	if threshold > 0 && info.Used > threshold {
		severity := SeverityMedium
		if float64(info.Used) > 1.5*float64(threshold) {
			severity = SeverityHigh
		}
		alert = &Alert{
			Type: AlertMemoryUsageHigh,
			Payload: MemoryAlertPayload{
				Used:      info.Used,
				Threshold: threshold,
				Severity:  severity,
			},
			Timestamp: sample.Timestamp,
		}
		subs = c.subscribersLocked()
	}
	c.mu.Unlock()

	c.emit(alert, subs)
}

// ingestVital updates the matching web-vital slot. CLS accumulates across
// shifts without recent input and only resets via Clear or Restart.
func (c *Collector) ingestVital(e Entry) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	switch e.Type {
	case EntryLCP:
		c.vitals.LCP = &Vital{
			Value:     e.StartTime,
			Rating:    rateVital(e.StartTime, 2500, 4000),
			Timestamp: now,
		}
	case EntryFirstInput:
		delay := e.ProcessingStart - e.StartTime
		c.vitals.FID = &Vital{
			Value:     delay,
			Rating:    rateVital(delay, 100, 300),
			Timestamp: now,
		}
	case EntryLayoutShift:
		if e.HadRecentInput {
			return
		}
		total := e.Value
		if c.vitals.CLS != nil {
			total += c.vitals.CLS.Value
		}
		c.vitals.CLS = &Vital{
			Value:     total,
			Rating:    rateVital(total, 0.1, 0.25),
			Timestamp: now,
		}
	}
}

// rateVital applies the standard good / needs-improvement / poor split
func rateVital(value, good, needsImprovement float64) VitalRating {
	switch {
	case value <= good:
		return RatingGood
	case value <= needsImprovement:
		return RatingNeedsImprovement
	default:
		return RatingPoor
	}
}

// WebVitalsSnapshot returns a copy of the current web vitals
func (c *Collector) WebVitalsSnapshot() WebVitals {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneVitals(c.vitals)
}

func cloneVitals(v WebVitals) WebVitals {
	out := WebVitals{}
	if v.LCP != nil {
		lcp := *v.LCP
		out.LCP = &lcp
	}
	if v.FID != nil {
		fid := *v.FID
		out.FID = &fid
	}
	if v.CLS != nil {
		cls := *v.CLS
		out.CLS = &cls
	}
	return out
}

// Bottlenecks returns recorded bottlenecks newest first, optionally
// filtered by kind and severity (empty values match everything)
func (c *Collector) Bottlenecks(kind BottleneckKind, severity Severity) []Bottleneck {
	c.mu.RLock()
	all := c.bottlenecks.values()
	c.mu.RUnlock()

	out := make([]Bottleneck, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		b := all[i]
		if kind != "" && b.Kind != kind {
			continue
		}
		if severity != "" && b.Severity != severity {
			continue
		}
		out = append(out, b)
	}
	return out
}
