// Package monitoring - metrics.go provides simple counters.
//
// DESIGN: Lightweight in-memory counters for the chat rewriter:
//   - intercepted:  chat events routed to the rewrite path
//   - passthrough:  events let through unmodified (disabled or bypassed)
//   - rewritten:    rewrites re-published to chat
//   - failed:       rewrites that ended with a private error notice
//   - rejected:     events dropped before any network call (rate limit,
//     length, queue full)
package monitoring

import (
	"fmt"
	"sync/atomic"
	"time"
)

// MetricsCollector collects operational metrics.
type MetricsCollector struct {
	startedAt time.Time

	intercepted atomic.Int64
	bypassed    atomic.Int64
	passthrough atomic.Int64
	rewritten   atomic.Int64
	failed      atomic.Int64
	rejected    atomic.Int64
	queued      atomic.Int64

	totalRewriteLatencyMs atomic.Int64
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		startedAt: time.Now(),
	}
}

// RecordIntercepted records a cancelled event sent to the rewrite path.
func (mc *MetricsCollector) RecordIntercepted() { mc.intercepted.Add(1) }

// RecordBypass records a consumed bypass entry.
func (mc *MetricsCollector) RecordBypass() { mc.bypassed.Add(1) }

// RecordPassthrough records an event allowed through because rewriting is off.
func (mc *MetricsCollector) RecordPassthrough() { mc.passthrough.Add(1) }

// RecordQueued records a message held behind a player's in-flight rewrite.
func (mc *MetricsCollector) RecordQueued() { mc.queued.Add(1) }

// RecordRejected records a message dropped before any rewrite call.
func (mc *MetricsCollector) RecordRejected() { mc.rejected.Add(1) }

// RecordRewrite records a finished rewrite.
func (mc *MetricsCollector) RecordRewrite(success bool, latency time.Duration) {
	if success {
		mc.rewritten.Add(1)
	} else {
		mc.failed.Add(1)
	}
	mc.totalRewriteLatencyMs.Add(latency.Milliseconds())
}

// StartedAt returns when the metrics collector was created.
func (mc *MetricsCollector) StartedAt() time.Time { return mc.startedAt }

// Stats returns current counters as a flat map.
func (mc *MetricsCollector) Stats() map[string]int64 {
	return map[string]int64{
		"intercepted": mc.intercepted.Load(),
		"bypassed":    mc.bypassed.Load(),
		"passthrough": mc.passthrough.Load(),
		"rewritten":   mc.rewritten.Load(),
		"failed":      mc.failed.Load(),
		"rejected":    mc.rejected.Load(),
		"queued":      mc.queued.Load(),
	}
}

// FullStats returns all metrics in a structured format for the /stats endpoint.
func (mc *MetricsCollector) FullStats() StatsResponse {
	uptime := time.Since(mc.startedAt)
	rewritten := mc.rewritten.Load()
	failed := mc.failed.Load()

	var avgLatency int64
	if done := rewritten + failed; done > 0 {
		avgLatency = mc.totalRewriteLatencyMs.Load() / done
	}

	return StatsResponse{
		Uptime:        formatDuration(uptime),
		UptimeSeconds: int64(uptime.Seconds()),
		StartedAt:     mc.startedAt.Format(time.RFC3339),
		Chat: ChatStats{
			Intercepted: mc.intercepted.Load(),
			Bypassed:    mc.bypassed.Load(),
			Passthrough: mc.passthrough.Load(),
			Queued:      mc.queued.Load(),
			Rejected:    mc.rejected.Load(),
		},
		Rewrites: RewriteStats{
			Successful:   rewritten,
			Failed:       failed,
			AvgLatencyMs: avgLatency,
		},
	}
}

// StatsResponse is the structured response for the /stats endpoint.
type StatsResponse struct {
	Uptime        string       `json:"uptime"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartedAt     string       `json:"started_at"`
	Chat          ChatStats    `json:"chat"`
	Rewrites      RewriteStats `json:"rewrites"`
}

// ChatStats holds interceptor disposition counts.
type ChatStats struct {
	Intercepted int64 `json:"intercepted"`
	Bypassed    int64 `json:"bypassed"`
	Passthrough int64 `json:"passthrough"`
	Queued      int64 `json:"queued"`
	Rejected    int64 `json:"rejected"`
}

// RewriteStats holds rewrite outcome metrics.
type RewriteStats struct {
	Successful   int64 `json:"successful"`
	Failed       int64 `json:"failed"`
	AvgLatencyMs int64 `json:"avg_latency_ms"`
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
