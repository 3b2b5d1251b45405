package outreach

import (
	"errors"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/api"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/batch"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/call"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/conversation"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/dashboard"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/database"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/deadletter"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/dispatch"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/healthchecker"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/kafka"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/listing"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/lock"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/minio"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/ratelimit"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/recording"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/schema"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/textgen"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/voice"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const inMemoryDatabaseName = "outreach"

var ErrRecordingUnsupported = errors.New("voice provider cannot fetch recordings")

// Outreach holds every long running component of the service. Optional
// components are nil when disabled in config.
type Outreach struct {
	Config               *config.Config
	DBConn               *gorm.DB
	Dispatcher           *dispatch.Dispatcher
	BatchService         *batch.Service
	TurnService          *conversation.TurnService
	DeadLetterWorker     *deadletter.Worker
	KafkaConsumer        *kafka.Consumer
	KafkaProducer        *kafka.Producer
	MinioClient          *minio.MinioClient
	HealthCheckerService *healthchecker.Healthchecker
	Server               *api.Server
}

func NewApp(cfg *config.Config) (*Outreach, error) {
	logging.Logger.Info("[NewApp] initializing outreach application...")

	app := &Outreach{Config: cfg}
	checks := map[string]healthchecker.Checker{}

	dbConn, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}

	app.DBConn = dbConn
	checks[circuitbreak.DBService] = healthchecker.DatabaseChecker(dbConn)

	cbSettings := database.GetCircuitBreakerSettings(cfg)
	listingRepository := listing.NewRepository(dbConn, cbSettings)
	store := conversation.NewStore(cfg, dbConn)

	logging.Logger.Info("[NewApp] stores created", zap.String("store_provider", cfg.StoreProvider))

	locker, err := lock.NewLocker(cfg)
	if err != nil {
		logging.Logger.Error("[NewApp] failed to create locker", zap.String("error", err.Error()))
		return nil, err
	}

	if pinger, ok := locker.(healthchecker.Pinger); ok {
		checks[circuitbreak.RedisService] = healthchecker.PingChecker(pinger)
	}

	generator := textgen.New(cfg)
	if pinger, ok := generator.(healthchecker.Pinger); ok {
		checks[circuitbreak.OpenAIService] = healthchecker.PingChecker(pinger)
	}

	gateway := voice.NewGateway(cfg)
	if pinger, ok := gateway.(healthchecker.Pinger); ok {
		checks[circuitbreak.TwilioService] = healthchecker.PingChecker(pinger)
	}

	logging.Logger.Info("[NewApp] collaborators created",
		zap.String("voice_provider", cfg.VoiceProvider),
		zap.String("textgen_provider", cfg.TextGenProvider),
		zap.String("lock_provider", cfg.LockProvider),
	)

	executor := call.NewExecutor(cfg, store, gateway, nil)
	limiter := ratelimit.NewTokenBucket(cfg.DispatchRatePerSecond, cfg.DispatchBurst)
	app.Dispatcher = dispatch.NewDispatcher(cfg, limiter, executor, nil)

	if cfg.DeadLetterEnabled {
		err = app.initializeDeadLetter(executor, cbSettings)
		if err != nil {
			return nil, err
		}
	}

	var publisher conversation.ResultPublisher

	if cfg.KafkaEnabled {
		err = app.initializeKafka()
		if err != nil {
			return nil, err
		}

		publisher = app.KafkaProducer
		checks[circuitbreak.KafkaProducerService] = healthchecker.KafkaProducerChecker(cfg)
	}

	var archiver api.RecordingArchiver

	if cfg.RecordingEnabled {
		recordingService, err := app.initializeRecording(gateway, store)
		if err != nil {
			return nil, err
		}

		archiver = recordingService
		checks[circuitbreak.MinioService] = healthchecker.MinioChecker(app.MinioClient)
	}

	app.BatchService = batch.NewService(cfg, listingRepository, app.Dispatcher)
	app.TurnService = conversation.NewTurnService(cfg, store, locker, listingRepository, generator, generator, publisher)
	app.HealthCheckerService = healthchecker.NewService(cfg, checks)
	app.Server = api.NewServer(
		cfg,
		app.BatchService,
		listingRepository,
		app.TurnService,
		archiver,
		dashboard.NewService(listingRepository, store),
		app.HealthCheckerService,
	)

	logging.Logger.Info("[NewApp] outreach application initialized", zap.Int("checks", len(checks)))

	return app, nil
}

// openDatabase connects to postgres, or to an in-memory SQLite database
// holding listings and dead letters when conversations live in memory.
func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	if cfg.StoreProvider == config.StoreProviderMemory {
		dbConn, err := database.NewInMemory(inMemoryDatabaseName, schema.Models()...)
		if err != nil {
			logging.Logger.Error("[NewApp] failed to open in-memory database", zap.String("error", err.Error()))
			return nil, err
		}

		logging.Logger.Info("[NewApp] in-memory database opened")

		return dbConn, nil
	}

	dbConn, err := database.NewDatabase(cfg)
	if err != nil {
		logging.Logger.Error("[NewApp] failed to initialize database", zap.String("error", err.Error()))
		return nil, err
	}

	logging.Logger.Info("[NewApp] database connection established")

	return dbConn, nil
}

func (app *Outreach) initializeDeadLetter(executor *call.Executor, cbSettings gobreaker.Settings) error {
	dlRepository := deadletter.NewRepository(app.Config, app.DBConn, cbSettings)
	dlService := deadletter.NewService(dlRepository, app.Dispatcher)

	executor.Recorder = dlService
	app.Dispatcher.Recorder = dlService

	dlWorker, err := deadletter.NewWorker(app.Config, dlService)
	if err != nil {
		logging.Logger.Error("[NewApp] failed to create dead letter worker", zap.String("error", err.Error()))
		return err
	}

	app.DeadLetterWorker = dlWorker

	logging.Logger.Info("[NewApp] dead letter worker created")

	return nil
}

func (app *Outreach) initializeKafka() error {
	kafkaProducer, err := kafka.NewProducer(app.Config)
	if err != nil {
		logging.Logger.Error("[NewApp] failed to create Kafka producer", zap.String("error", err.Error()))
		return err
	}

	kafkaConsumer, err := kafka.NewConsumer(app.Config)
	if err != nil {
		logging.Logger.Error("[NewApp] failed to create Kafka consumer", zap.String("error", err.Error()))
		_ = kafkaProducer.Close()

		return err
	}

	app.KafkaProducer = kafkaProducer
	app.KafkaConsumer = kafkaConsumer

	logging.Logger.Info("[NewApp] Kafka consumer and producer created",
		zap.String("batch_topic", app.Config.KafkaBatchTopic),
		zap.String("result_topic", app.Config.KafkaResultTopic),
	)

	return nil
}

func (app *Outreach) initializeRecording(gateway voice.Gateway, store recording.Store) (*recording.Service, error) {
	fetcher, ok := gateway.(recording.Fetcher)
	if !ok {
		logging.Logger.Error("[NewApp] voice provider cannot fetch recordings", zap.String("voice_provider", app.Config.VoiceProvider))
		return nil, ErrRecordingUnsupported
	}

	minioClient, err := minio.NewMinioClient(app.Config)
	if err != nil {
		logging.Logger.Error("[NewApp] failed to initialize Minio client", zap.String("error", err.Error()))
		return nil, err
	}

	app.MinioClient = minioClient

	logging.Logger.Info("[NewApp] Minio client created", zap.String("bucket", app.Config.MinioBucketName))

	return recording.NewService(fetcher, minioClient, store), nil
}
