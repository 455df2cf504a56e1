package observability

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

var counters sync.Map // metric key -> *counter

type counter struct {
	mu    sync.Mutex
	count int64
	sum   float64
}

// Enabled reports whether observability has been toggled on.
func Enabled() bool {
	_, cfg := current()
	return cfg.Enabled
}

// StartSpan records a lightweight span around an operation. The returned
// func must be called with the operation's outcome.
func StartSpan(ctx context.Context, component, operation string) (context.Context, func(error)) {
	start := time.Now()
	logger, cfg := current()
	if logger != nil && cfg.Enabled {
		logger.LogAttrs(ctx, slog.LevelDebug, "[OBS] span start",
			slog.String("component", component),
			slog.String("operation", operation),
		)
	}

	return ctx, func(err error) {
		elapsed := time.Since(start)
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		RecordMetric(ctx, component+"."+operation+".duration_ms", float64(elapsed.Milliseconds()),
			map[string]string{"outcome": outcome})

		logger, cfg := current()
		if logger == nil || !cfg.Enabled {
			return
		}
		level := slog.LevelDebug
		attrs := []slog.Attr{
			slog.String("component", component),
			slog.String("operation", operation),
			slog.Duration("duration", elapsed),
		}
		if err != nil {
			level = slog.LevelWarn
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		logger.LogAttrs(ctx, level, "[OBS] span end", attrs...)
	}
}

// RecordMetric accumulates a datapoint and logs it when enabled.
func RecordMetric(ctx context.Context, name string, value float64, labels map[string]string) {
	key := metricKey(name, labels)
	v, _ := counters.LoadOrStore(key, &counter{})
	c := v.(*counter)
	c.mu.Lock()
	c.count++
	c.sum += value
	c.mu.Unlock()

	logger, cfg := current()
	if logger == nil || !cfg.Enabled {
		return
	}
	attrs := []slog.Attr{
		slog.String("metric", name),
		slog.Float64("value", value),
	}
	for _, k := range sortedKeys(labels) {
		attrs = append(attrs, slog.String(k, labels[k]))
	}
	logger.LogAttrs(ctx, slog.LevelDebug, "[OBS] metric", attrs...)
}

// MetricSummary is an aggregated view of one metric/label combination.
type MetricSummary struct {
	Count int64   `json:"count"`
	Sum   float64 `json:"sum"`
}

// Snapshot returns the accumulated metrics keyed by "name{k=v,...}".
func Snapshot() map[string]MetricSummary {
	out := make(map[string]MetricSummary)
	counters.Range(func(k, v any) bool {
		c := v.(*counter)
		c.mu.Lock()
		out[k.(string)] = MetricSummary{Count: c.count, Sum: c.sum}
		c.mu.Unlock()
		return true
	})
	return out
}

// Reset clears accumulated metrics.
func Reset() {
	counters.Range(func(k, _ any) bool {
		counters.Delete(k)
		return true
	})
}

func metricKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	parts := make([]string, 0, len(labels))
	for _, k := range sortedKeys(labels) {
		parts = append(parts, k+"="+labels[k])
	}
	return name + "{" + strings.Join(parts, ",") + "}"
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
