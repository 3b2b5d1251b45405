package healthchecker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckClearsRecoveredServices(t *testing.T) {
	pingErr := errors.New("still down")
	healthchecker := NewService(&config.Config{HealthCheckerMonitorInterval: 1}, map[string]Checker{
		circuitbreak.DBService: func(context.Context) error { return pingErr },
	})

	healthchecker.TriggerError(circuitbreak.DBService)
	healthchecker.TriggerError(circuitbreak.OpenAIService)
	assert.Equal(t, []string{circuitbreak.DBService, circuitbreak.OpenAIService}, healthchecker.Degraded())

	healthchecker.Check(context.Background())
	assert.Equal(t, []string{circuitbreak.DBService}, healthchecker.Degraded())

	pingErr = nil
	healthchecker.Check(context.Background())
	assert.Empty(t, healthchecker.Degraded())
}

func TestServeHTTPReportsDegradedServices(t *testing.T) {
	healthchecker := NewService(&config.Config{HealthCheckerMonitorInterval: 1}, nil)

	recorder := httptest.NewRecorder()
	healthchecker.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.JSONEq(t, `{"status":"ok"}`, recorder.Body.String())

	healthchecker.TriggerError(circuitbreak.TwilioService)

	recorder = httptest.NewRecorder()
	healthchecker.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)
	assert.JSONEq(t, `{"status":"degraded","degraded":["twilio"]}`, recorder.Body.String())
}

func TestMonitorConsumesBreakerReports(t *testing.T) {
	healthchecker := NewService(&config.Config{HealthCheckerMonitorInterval: 3600}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go healthchecker.Monitor(ctx)

	circuitbreak.TriggerError(circuitbreak.MinioService)

	require.Eventually(t, func() bool {
		return len(healthchecker.Degraded()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{circuitbreak.MinioService}, healthchecker.Degraded())
}
