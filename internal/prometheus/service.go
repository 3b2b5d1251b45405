package prometheus

import (
	"context"
	"errors"
	"net/http"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/logging"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Run serves /metrics until ctx is done.
func Run(ctx context.Context, cfg *config.Config) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	timeout := time.Duration(cfg.PrometheusTimeout) * time.Second

	server := &http.Server{
		Addr:              ":" + cfg.PrometheusPort,
		Handler:           mux,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
		WriteTimeout:      timeout,
		IdleTimeout:       timeout,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		_ = server.Shutdown(shutdownCtx)
	}()

	logging.Logger.Info("[Run] start prometheus server on port " + cfg.PrometheusPort)

	err := server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.Logger.Error("[Run] failed to start prometheus server", zap.String("error", err.Error()))
		return err
	}

	return nil
}
