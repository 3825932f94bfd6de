package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/risk-cli/internal/config"
)

func TestChecker_RunStopsOnCancel(t *testing.T) {
	cfg := config.MonitoringConfig{
		CheckIntervalSecs:      1,
		LookbackWindowHours:    24,
		HighRiskShareThreshold: 0.25,
	}
	checker := NewChecker(NewCollector(newTestStore(t)), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_DefaultInterval(t *testing.T) {
	checker := NewChecker(NewCollector(newTestStore(t)), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{})
	require.NotNil(t, checker)

	// Zero interval falls back to the default; a cancelled ctx returns at once.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}

func TestChecker_AlertsOncePerBatch(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.SaveBatch(ctx, riskyBatch(time.Now().UTC())))

	cfg := config.MonitoringConfig{
		WebhookURL:             ts.URL,
		LookbackWindowHours:    24,
		HighRiskShareThreshold: 0.25,
	}
	checker := NewChecker(NewCollector(st), fastAlerter(cfg), cfg)

	assert.Equal(t, 1, checker.check(ctx, zap.NewNop()))
	assert.Equal(t, 0, checker.check(ctx, zap.NewNop()))
	assert.Equal(t, int32(1), received.Load())

	require.NoError(t, st.SaveBatch(ctx, riskyBatch(time.Now().UTC())))
	assert.Equal(t, 1, checker.check(ctx, zap.NewNop()))
	assert.Equal(t, int32(2), received.Load())
}

func TestChecker_CollectError(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Close())

	cfg := config.MonitoringConfig{WebhookURL: "http://example.invalid", HighRiskShareThreshold: 0.25}
	checker := NewChecker(NewCollector(st), NewAlerter(cfg), cfg)
	assert.Equal(t, 0, checker.check(context.Background(), zap.NewNop()))
}
