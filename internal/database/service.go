package database

import (
	"fmt"
	"net/url"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/logging"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

func NewDatabase(cfg *config.Config) (*gorm.DB, error) {
	return Open(postgres.Open(GetDSN(cfg)))
}

// Open connects through any gorm dialector and verifies the connection.
func Open(dialector gorm.Dialector) (*gorm.DB, error) {
	gormLoggerInstance := gormLogger.Default.LogMode(gormLogger.Silent)

	database, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLoggerInstance,
	})
	if err != nil {
		logging.Logger.Error("[Open] failed to connect to database", zap.String("error", err.Error()))
		return nil, err
	}

	sqldatabase, err := database.DB()
	if err != nil {
		logging.Logger.Error("[Open] failed to get sql.DB from gorm", zap.String("error", err.Error()))
		return nil, err
	}

	err = sqldatabase.Ping()
	if err != nil {
		logging.Logger.Error("[Open] failed to ping database", zap.String("error", err.Error()))
		return nil, err
	}

	logging.Logger.Info("[Open] successfully connected to database", zap.String("dialect", dialector.Name()))

	return database, nil
}

func GetDSN(cfg *config.Config) string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s",
		cfg.PostgresHost,
		cfg.PostgresUsername,
		cfg.PostgresPassword,
		cfg.PostgresDatabase,
		cfg.PostgresPort,
	)
}

func GetURL(cfg *config.Config) string {
	dbURL := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.PostgresUsername, cfg.PostgresPassword),
		Host:   fmt.Sprintf("%s:%s", cfg.PostgresHost, cfg.PostgresPort),
		Path:   cfg.PostgresDatabase,
	}
	queries := url.Values{}
	queries.Add("sslmode", "disable")
	dbURL.RawQuery = queries.Encode()

	return dbURL.String()
}

func GetCircuitBreakerSettings(cfg *config.Config) gobreaker.Settings {
	return circuitbreak.Settings(circuitbreak.DBService, cfg.DBIntervalCB, cfg.DBConsecutiveFailuresCB)
}

// NewCircuitBreaker returns a breaker shared by the repositories of one process.
func NewCircuitBreaker(cfg *config.Config) *gobreaker.CircuitBreaker[any] {
	return gobreaker.NewCircuitBreaker[any](GetCircuitBreakerSettings(cfg))
}
