package perf

import (
	"errors"
	"runtime"
)

// EntryType identifies a stream of performance entries
type EntryType string

// Entry types the collector knows how to observe
const (
	EntryNavigation  EntryType = "navigation"
	EntryResource    EntryType = "resource"
	EntryEvent       EntryType = "event"
	EntryLCP         EntryType = "largest-contentful-paint"
	EntryFirstInput  EntryType = "first-input"
	EntryLayoutShift EntryType = "layout-shift"
)

// ErrUnsupportedEntry is returned by providers that cannot observe a given
// entry type. The collector treats it as a silent no-op.
var ErrUnsupportedEntry = errors.New("entry type not supported")

// Entry is a single performance observation delivered by a provider.
// Which fields are meaningful depends on the entry type.
type Entry struct {
	Type            EntryType
	Name            string
	StartTime       float64 // ms since origin
	Duration        float64 // ms
	ProcessingStart float64 // ms, first-input only
	TransferSize    int64
	ResponseStatus  int
	Value           float64 // layout-shift only
	HadRecentInput  bool    // layout-shift only
	Target          string  // event only
	Navigation      *NavigationTiming
}

// Subscription is an active observation that can be torn down
type Subscription interface {
	Disconnect()
}

// EntryProvider abstracts the runtime's performance-observation facility.
// Observe registers a callback for one entry type and returns an active
// subscription, or ErrUnsupportedEntry when the type cannot be observed.
// The collector never branches on the environment itself; a test provider
// can drive it fully deterministically.
type EntryProvider interface {
	Observe(t EntryType, fn func(Entry)) (Subscription, error)
}

// MemoryInfo is a point-in-time memory reading
type MemoryInfo struct {
	Used  int64
	Total int64
	Limit int64
}

// MemoryReader abstracts the memory-usage source. The second return value
// reports whether a reading was available.
type MemoryReader interface {
	Read() (MemoryInfo, bool)
}

// RuntimeMemoryReader reads memory usage from the Go runtime
type RuntimeMemoryReader struct{}

// Read reports heap usage from runtime.MemStats
func (RuntimeMemoryReader) Read() (MemoryInfo, bool) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return MemoryInfo{
		Used:  int64(ms.HeapAlloc),
		Total: int64(ms.HeapSys),
		Limit: int64(ms.Sys),
	}, true
}

// NoopProvider supports no entry types; useful where only manual
// instrumentation is wanted
type NoopProvider struct{}

// Observe always reports the entry type as unsupported
func (NoopProvider) Observe(EntryType, func(Entry)) (Subscription, error) {
	return nil, ErrUnsupportedEntry
}
