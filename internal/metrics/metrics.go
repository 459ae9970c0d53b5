package metrics

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/maheshrc27/postqueue/internal/models"
)

var enabled atomic.Bool

func init() {
	enabled.Store(true)
}

// SetEnabled turns collection on or off process-wide.
func SetEnabled(on bool) {
	enabled.Store(on)
}

func IsEnabled() bool {
	return enabled.Load()
}

// RecordItem counts a queue item reaching an outcome during a tick:
// completed, retried, failed, deferred, starved or recovered.
func RecordItem(platform models.Platform, outcome string) {
	if !IsEnabled() {
		return
	}
	name := fmt.Sprintf(`postqueue_items_total{platform=%q,outcome=%q}`, string(platform), outcome)
	metrics.GetOrCreateCounter(name).Inc()
}

func ObserveTick(d time.Duration) {
	if !IsEnabled() {
		return
	}
	metrics.GetOrCreateHistogram(`postqueue_tick_duration_seconds`).Update(d.Seconds())
}

// RecordPublishRequest counts outbound platform API calls by HTTP status
// class, or "error" when no response came back.
func RecordPublishRequest(platform models.Platform, class string) {
	if !IsEnabled() {
		return
	}
	metrics.GetOrCreateCounter(publishRequestName(platform, class)).Inc()
}

func PublishRequestCount(platform models.Platform, class string) uint64 {
	return metrics.GetOrCreateCounter(publishRequestName(platform, class)).Get()
}

func publishRequestName(platform models.Platform, class string) string {
	return fmt.Sprintf(`postqueue_platform_requests_total{platform=%q,class=%q}`, string(platform), class)
}

func ItemCount(platform models.Platform, outcome string) uint64 {
	name := fmt.Sprintf(`postqueue_items_total{platform=%q,outcome=%q}`, string(platform), outcome)
	return metrics.GetOrCreateCounter(name).Get()
}

func WritePrometheus(w io.Writer) {
	metrics.WritePrometheus(w, true)
}
