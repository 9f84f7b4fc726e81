package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_TurnLifecycle(t *testing.T) {
	r := New()
	r.TurnStarted()
	r.TurnStarted()
	assert.Equal(t, 2.0, testutil.ToFloat64(r.active))

	r.FirstFragment(20 * time.Millisecond)
	r.TurnFinished("completed", "", 3, 12, time.Second)
	r.TurnFinished("failed", "timeout", 1, 4, 2*time.Second)

	assert.Equal(t, 0.0, testutil.ToFloat64(r.active))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.turns.WithLabelValues("completed", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.turns.WithLabelValues("failed", "timeout")))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.fragments))
	assert.Equal(t, 16.0, testutil.ToFloat64(r.bytes))
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.TurnStarted()
		r.FirstFragment(time.Millisecond)
		r.TurnFinished("cancelled", "", 0, 0, time.Millisecond)
	})
}

func TestRecorder_Handler(t *testing.T) {
	r := New()
	r.TurnStarted()
	r.TurnFinished("completed", "", 1, 1, time.Millisecond)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "adminchat_turns_total")
	assert.Contains(t, string(body), "go_goroutines")
}
