package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordMetricAggregates(t *testing.T) {
	Reset()
	ctx := context.Background()

	RecordMetric(ctx, "capture.frames", 1, map[string]string{"source": "camera"})
	RecordMetric(ctx, "capture.frames", 2, map[string]string{"source": "camera"})
	RecordMetric(ctx, "capture.frames", 5, nil)

	snap := Snapshot()
	require.Contains(t, snap, "capture.frames{source=camera}")
	assert.Equal(t, int64(2), snap["capture.frames{source=camera}"].Count)
	assert.Equal(t, 3.0, snap["capture.frames{source=camera}"].Sum)
	assert.Equal(t, int64(1), snap["capture.frames"].Count)
}

func TestStartSpanRecordsOutcome(t *testing.T) {
	Reset()
	_, end := StartSpan(context.Background(), "analysis", "run")
	end(errors.New("boom"))

	snap := Snapshot()
	summary, ok := snap["analysis.run.duration_ms{outcome=error}"]
	require.True(t, ok)
	assert.Equal(t, int64(1), summary.Count)
}
