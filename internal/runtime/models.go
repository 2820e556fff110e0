package runtime

import (
	"encoding/json"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	ce "github.com/drblury/cotflow/internal/runtime/cloudevents"
	handlerpkg "github.com/drblury/cotflow/internal/runtime/handlers"
)

const latencySampleSize = 256

// UnprocessableEventError wraps payloads that could not be decoded.
type UnprocessableEventError = handlerpkg.UnprocessableEventError

// HandlerInfo describes a registered handler and its live statistics.
type HandlerInfo struct {
	Name         string        `json:"name"`
	ConsumeQueue string        `json:"consume_queue"`
	PublishQueue string        `json:"publish_queue,omitempty"`
	Stats        *HandlerStats `json:"stats"`
}

// HandlerStats accumulates per-handler counters. It is safe for concurrent use.
type HandlerStats struct {
	mu sync.Mutex `json:"-"`

	MessagesProcessed   uint64         `json:"messages_processed"`
	MessagesFailed      uint64         `json:"messages_failed"`
	TotalProcessingTime int64          `json:"total_processing_time_ns"`
	LastProcessedAt     time.Time      `json:"last_processed_at"`
	InFlight            uint64         `json:"in_flight"`
	MaxInFlight         uint64         `json:"max_in_flight"`
	Outcomes            OutcomeCounts  `json:"outcomes"`
	Latency             LatencyMetrics `json:"latency"`
	LastError           string         `json:"last_error,omitempty"`

	latencyWindow *latencyWindow `json:"-"`
}

// OutcomeCounts tallies handler results by how the router will treat them.
type OutcomeCounts struct {
	Ack        uint64 `json:"ack"`
	Retry      uint64 `json:"retry"`
	DeadLetter uint64 `json:"dead_letter"`
	Skip       uint64 `json:"skip"`
}

type LatencyMetrics struct {
	AverageNs  int64 `json:"average_ns"`
	P50Ns      int64 `json:"p50_ns"`
	P95Ns      int64 `json:"p95_ns"`
	P99Ns      int64 `json:"p99_ns"`
	LastNs     int64 `json:"last_ns"`
	SampleSize int   `json:"sample_size"`
}

func newHandlerStats() *HandlerStats {
	return &HandlerStats{latencyWindow: newLatencyWindow(latencySampleSize)}
}

func (h *HandlerStats) onMessageStart() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.InFlight++
	if h.InFlight > h.MaxInFlight {
		h.MaxInFlight = h.InFlight
	}
}

func (h *HandlerStats) onMessageFinish(duration time.Duration, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.InFlight > 0 {
		h.InFlight--
	}

	h.MessagesProcessed++
	h.TotalProcessingTime += int64(duration)
	h.LastProcessedAt = time.Now().UTC()

	h.latencyWindow.Add(duration)
	snapshot := h.latencyWindow.Snapshot()
	snapshot.AverageNs = h.TotalProcessingTime / int64(h.MessagesProcessed)
	h.Latency = snapshot

	result := ce.ClassifyError(err)
	h.Outcomes.record(result)
	if result == ce.ResultRetry || result == ce.ResultDeadLetter {
		h.MessagesFailed++
		h.LastError = err.Error()
	}
}

// Snapshot returns a copy of the counters.
func (h *HandlerStats) Snapshot() HandlerStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	return HandlerStats{
		MessagesProcessed:   h.MessagesProcessed,
		MessagesFailed:      h.MessagesFailed,
		TotalProcessingTime: h.TotalProcessingTime,
		LastProcessedAt:     h.LastProcessedAt,
		InFlight:            h.InFlight,
		MaxInFlight:         h.MaxInFlight,
		Outcomes:            h.Outcomes,
		Latency:             h.Latency,
		LastError:           h.LastError,
	}
}

func (h *HandlerStats) MarshalJSON() ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	type Alias HandlerStats
	return json.Marshal((*Alias)(h))
}

func (o *OutcomeCounts) record(result ce.HandlerResult) {
	switch result {
	case ce.ResultRetry:
		o.Retry++
	case ce.ResultDeadLetter:
		o.DeadLetter++
	case ce.ResultSkip:
		o.Skip++
	default:
		o.Ack++
	}
}

func wrapHandlerWithStats(handler message.HandlerFunc, stats *HandlerStats) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		stats.onMessageStart()
		start := time.Now()
		msgs, err := handler(msg)
		stats.onMessageFinish(time.Since(start), err)
		return msgs, err
	}
}

type latencyWindow struct {
	samples []int64
	next    int
	filled  int
	last    int64
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = latencySampleSize
	}
	return &latencyWindow{samples: make([]int64, size)}
}

func (lw *latencyWindow) Add(d time.Duration) {
	lw.samples[lw.next] = int64(d)
	lw.last = int64(d)
	lw.next = (lw.next + 1) % len(lw.samples)
	if lw.filled < len(lw.samples) {
		lw.filled++
	}
}

func (lw *latencyWindow) Snapshot() LatencyMetrics {
	metrics := LatencyMetrics{LastNs: lw.last}
	if lw.filled == 0 {
		return metrics
	}
	samples := make([]int64, lw.filled)
	for i := range lw.filled {
		idx := lw.next - lw.filled + i
		if idx < 0 {
			idx += len(lw.samples)
		}
		samples[i] = lw.samples[idx]
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	metrics.SampleSize = lw.filled
	metrics.P50Ns = percentile(samples, 0.50)
	metrics.P95Ns = percentile(samples, 0.95)
	metrics.P99Ns = percentile(samples, 0.99)
	return metrics
}

func percentile(samples []int64, quantile float64) int64 {
	if len(samples) == 0 {
		return 0
	}
	if quantile <= 0 {
		return samples[0]
	}
	if quantile >= 1 {
		return samples[len(samples)-1]
	}
	pos := quantile * float64(len(samples)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return samples[lower]
	}
	frac := pos - float64(lower)
	return samples[lower] + int64(float64(samples[upper]-samples[lower])*frac)
}
