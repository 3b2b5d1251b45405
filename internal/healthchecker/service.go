package healthchecker

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/logging"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

const checkTimeout = 10 * time.Second

const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// Checker reports whether a dependency is reachable again.
type Checker func(ctx context.Context) error

type Status struct {
	Status   string   `json:"status"`
	Degraded []string `json:"degraded,omitempty"`
}

// Healthchecker tracks services whose circuit breaker opened. A service stays
// degraded until its check succeeds. Services without a check recover on the
// next check.
type Healthchecker struct {
	mu       sync.RWMutex
	degraded map[string]time.Time
	Checkers map[string]Checker
	Interval time.Duration
}

func NewService(cfg *config.Config, checks map[string]Checker) *Healthchecker {
	return &Healthchecker{
		degraded: map[string]time.Time{},
		Checkers: checks,
		Interval: time.Duration(cfg.HealthCheckerMonitorInterval) * time.Second,
	}
}

func (healthchecker *Healthchecker) TriggerError(service string) {
	healthchecker.mu.Lock()
	defer healthchecker.mu.Unlock()

	if _, ok := healthchecker.degraded[service]; !ok {
		logging.Logger.Error("[TriggerError] service marked degraded", zap.String("service", service))
		healthchecker.degraded[service] = time.Now()
	}
}

// Monitor consumes breaker reports and checks degraded services until ctx is done.
func (healthchecker *Healthchecker) Monitor(ctx context.Context) {
	logging.Logger.Info("[Monitor] health checker monitor started",
		zap.Duration("interval", healthchecker.Interval),
	)

	ticker := time.NewTicker(healthchecker.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case service := <-circuitbreak.CircuitBreakChan:
			logging.Logger.Warn("[Monitor] circuit break happened", zap.String("service", service))
			healthchecker.TriggerError(service)
		case <-ticker.C:
			healthchecker.Check(ctx)
		}
	}
}

// Check runs the checker of every degraded service once and clears the ones that recovered.
func (healthchecker *Healthchecker) Check(ctx context.Context) {
	for _, service := range healthchecker.Degraded() {
		if healthchecker.recovered(ctx, service) {
			healthchecker.mu.Lock()
			delete(healthchecker.degraded, service)
			healthchecker.mu.Unlock()

			logging.Logger.Info("[Check] service back healthy", zap.String("service", service))
		}
	}
}

func (healthchecker *Healthchecker) recovered(ctx context.Context, service string) bool {
	check, ok := healthchecker.Checkers[service]
	if !ok {
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	err := check(ctx)
	if err != nil {
		logging.Logger.Warn("[recovered] service still unhealthy",
			zap.String("service", service),
			zap.String("error", err.Error()),
		)

		return false
	}

	return true
}

// Degraded lists degraded services in name order.
func (healthchecker *Healthchecker) Degraded() []string {
	healthchecker.mu.RLock()
	defer healthchecker.mu.RUnlock()

	services := make([]string, 0, len(healthchecker.degraded))
	for service := range healthchecker.degraded {
		services = append(services, service)
	}

	slices.Sort(services)

	return services
}

func (healthchecker *Healthchecker) Status() Status {
	degraded := healthchecker.Degraded()
	if len(degraded) == 0 {
		return Status{Status: StatusOK}
	}

	return Status{Status: StatusDegraded, Degraded: degraded}
}

// ServeHTTP answers 200 while healthy and 503 while any service is degraded.
func (healthchecker *Healthchecker) ServeHTTP(writer http.ResponseWriter, _ *http.Request) {
	status := healthchecker.Status()

	code := http.StatusOK
	if status.Status != StatusOK {
		code = http.StatusServiceUnavailable
	}

	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(code)

	err := json.NewEncoder(writer).Encode(status)
	if err != nil {
		logging.Logger.Error("[ServeHTTP] failed to write health status", zap.String("error", err.Error()))
	}
}
