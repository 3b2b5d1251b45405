package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/conversation"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/dashboard"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/listing"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/recording"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/voice"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type CallStarter interface {
	StartCalls(ctx context.Context, searchID string, userQuestions []string) (int, error)
}

type ListingWriter interface {
	UpsertMany(ctx context.Context, listings []listing.Listing) (int, error)
}

type TurnHandler interface {
	HandleTurn(ctx context.Context, turn conversation.Turn) (*conversation.TurnResult, error)
}

type RecordingArchiver interface {
	Archive(ctx context.Context, callback recording.Callback) (string, error)
}

type SummaryProvider interface {
	Summaries(ctx context.Context, searchID string) ([]dashboard.SummaryItem, error)
}

// Server exposes submission, gateway webhooks, the dashboard and health.
// Recordings is nil when recording archival is disabled.
type Server struct {
	Calls      CallStarter
	Listings   ListingWriter
	Turns      TurnHandler
	Recordings RecordingArchiver
	Summaries  SummaryProvider
	Health     http.Handler
	TwiML      voice.TwiMLOptions

	validate *validator.Validate
}

func NewServer(
	cfg *config.Config,
	calls CallStarter,
	listings ListingWriter,
	turns TurnHandler,
	recordings RecordingArchiver,
	summaries SummaryProvider,
	health http.Handler,
) *Server {
	return &Server{
		Calls:      calls,
		Listings:   listings,
		Turns:      turns,
		Recordings: recordings,
		Summaries:  summaries,
		Health:     health,
		TwiML: voice.TwiMLOptions{
			SayVoice:      cfg.TwilioSayVoice,
			SpeechTimeout: cfg.TwilioSpeechTimeout,
		},
		validate: validator.New(),
	}
}

func (server *Server) Router() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/calls/start", server.StartCalls()).Methods(http.MethodPost)
	router.HandleFunc("/listings", server.IngestListings()).Methods(http.MethodPost)
	router.HandleFunc(voice.VoicePath, server.VoiceWebhook()).Methods(http.MethodPost)
	router.HandleFunc(voice.RecordingPath, server.RecordingWebhook()).Methods(http.MethodPost)
	router.HandleFunc("/dashboard/summaries", server.DashboardSummaries()).Methods(http.MethodGet)

	if server.Health != nil {
		router.Handle("/healthz", server.Health).Methods(http.MethodGet)
	}

	router.Use(accessLog)

	return router
}

// Run serves the API until ctx is done.
func (server *Server) Run(ctx context.Context, cfg *config.Config) error {
	timeout := time.Duration(cfg.HTTPTimeout) * time.Second

	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           server.Router(),
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
		WriteTimeout:      timeout,
		IdleTimeout:       timeout,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logging.Logger.Info("[Run] start api server on port " + cfg.HTTPPort)

	err := httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.Logger.Error("[Run] failed to start api server", zap.String("error", err.Error()))
		return err
	}

	return nil
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		startTime := time.Now()

		next.ServeHTTP(writer, request)

		logging.Logger.Debug("[accessLog] request served",
			zap.String("method", request.Method),
			zap.String("path", request.URL.Path),
			zap.Duration("duration", time.Since(startTime)),
		)
	})
}
