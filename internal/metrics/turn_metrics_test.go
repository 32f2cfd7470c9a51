package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTurnMetrics_Creation(t *testing.T) {
	t.Run("successfully create turn metrics", func(t *testing.T) {
		metrics, err := NewTurnMetrics()
		require.NoError(t, err)
		assert.NotNil(t, metrics)
		assert.NotNil(t, metrics.turnsCounter)
		assert.NotNil(t, metrics.clarificationsCounter)
		assert.NotNil(t, metrics.errorsCounter)
		assert.NotNil(t, metrics.turnDurationHistogram)
		assert.NotNil(t, metrics.turnsActiveGauge)
	})
}

func TestTurnMetrics_Record(t *testing.T) {
	metrics, err := NewTurnMetrics()
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("turn lifecycle", func(t *testing.T) {
		assert.NotPanics(t, func() {
			metrics.RecordTurnStarted(ctx, "message")
			metrics.RecordTurnCompleted(ctx, "message", "COLLECT_INFORMATION", 15*time.Millisecond)
		})
	})

	t.Run("failed turn", func(t *testing.T) {
		assert.NotPanics(t, func() {
			metrics.RecordTurnStarted(ctx, "resume")
			metrics.RecordTurnFailed(ctx, "resume", "store")
			metrics.RecordTurnCompleted(ctx, "resume", "ERROR", time.Millisecond)
		})
	})

	t.Run("clarifications", func(t *testing.T) {
		for _, status := range []string{"asked", "resolved", "skipped", "retry"} {
			metrics.RecordClarification(ctx, "size", status)
		}
	})
}
