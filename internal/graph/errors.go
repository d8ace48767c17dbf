package graph

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/e7canasta/orion-care-sensor/modules/stream-tee/internal/engine"
)

// Error classes. Wrapped with fmt.Errorf("...: %w") and matched with errors.Is.
var (
	// ErrConstruction: a required stage, pad or static link could not be created.
	// Fatal, returned before PLAYING.
	ErrConstruction = errors.New("graph construction failed")
	// ErrLink: a pad link was rejected.
	ErrLink = errors.New("pad link failed")
	// ErrNegotiation: a discovered output had no format or an unwanted one.
	ErrNegotiation = errors.New("format negotiation")
	// ErrExtraction: a buffer or its format could not be obtained from the sample sink.
	ErrExtraction = errors.New("frame extraction failed")
	// ErrStartup: the engine refused the transition to PLAYING.
	ErrStartup = errors.New("pipeline startup failed")
	// ErrRuntime: the engine posted an error on the bus while running.
	ErrRuntime = errors.New("pipeline runtime error")
)

// ErrorCategory represents the classification of engine errors for telemetry
type ErrorCategory int

const (
	// ErrCategoryNetwork indicates network-related failures (connection, timeout, DNS)
	ErrCategoryNetwork ErrorCategory = iota
	// ErrCategoryCodec indicates decode/format failures
	ErrCategoryCodec
	// ErrCategoryAuth indicates authentication/authorization failures
	ErrCategoryAuth
	// ErrCategoryResource indicates local resource failures (missing file, permissions, display)
	ErrCategoryResource
	// ErrCategoryUnknown indicates unclassified errors
	ErrCategoryUnknown
)

// String returns a human-readable string representation of the error category
func (e ErrorCategory) String() string {
	switch e {
	case ErrCategoryNetwork:
		return "network"
	case ErrCategoryCodec:
		return "codec"
	case ErrCategoryAuth:
		return "auth"
	case ErrCategoryResource:
		return "resource"
	default:
		return "unknown"
	}
}

var (
	authKeywords = []string{
		"unauthorized", "401", "403", "forbidden",
		"authentication", "credentials", "password",
	}
	codecKeywords = []string{
		"codec", "decode", "decoder", "demux", "format", "negotiat",
		"caps", "h264", "h265", "no decoder", "missing plugin",
		"not negotiated", "stream type", "internal data stream error",
	}
	resourceKeywords = []string{
		"no such file", "permission denied", "could not open",
		"resource", "display", "read-only",
	}
	networkKeywords = []string{
		"connection", "timeout", "timed out", "unreachable", "network",
		"dns", "resolve", "socket", "http", "tcp", "udp", "rtsp",
		"could not connect", "failed to connect", "not found",
	}
)

// ClassifyError categorizes a bus error event by keyword heuristics over the
// message and debug text. Auth is checked first (most specific), network last
// (most common).
func ClassifyError(ev engine.ErrorEvent) ErrorCategory {
	combined := strings.ToLower(ev.Message + " " + ev.Debug)
	if strings.TrimSpace(combined) == "" {
		return ErrCategoryUnknown
	}

	switch {
	case containsAny(combined, authKeywords):
		return ErrCategoryAuth
	case containsAny(combined, codecKeywords):
		return ErrCategoryCodec
	case containsAny(combined, resourceKeywords):
		return ErrCategoryResource
	case containsAny(combined, networkKeywords):
		return ErrCategoryNetwork
	default:
		return ErrCategoryUnknown
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// ErrorCounters holds atomic counters per error category
type ErrorCounters struct {
	Network  atomic.Uint64
	Codec    atomic.Uint64
	Auth     atomic.Uint64
	Resource atomic.Uint64
	Unknown  atomic.Uint64
}

// Add increments the counter for category
func (c *ErrorCounters) Add(category ErrorCategory) {
	switch category {
	case ErrCategoryNetwork:
		c.Network.Add(1)
	case ErrCategoryCodec:
		c.Codec.Add(1)
	case ErrCategoryAuth:
		c.Auth.Add(1)
	case ErrCategoryResource:
		c.Resource.Add(1)
	default:
		c.Unknown.Add(1)
	}
}

// Total returns the sum over all categories
func (c *ErrorCounters) Total() uint64 {
	return c.Network.Load() + c.Codec.Load() + c.Auth.Load() + c.Resource.Load() + c.Unknown.Load()
}
