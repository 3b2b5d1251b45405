package databasetest

import (
	"testing"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/database"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	postgresImage    = "postgres"
	postgresTag      = "14-alpine"
	postgresUser     = "outreach"
	postgresPassword = "outreach"
	postgresDatabase = "outreach"
	postgresMaxWait  = 90 * time.Second
)

// NewPostgres starts a disposable postgres container, migrates models and
// returns the connection with the config pointing at it. The test is skipped
// when docker is unavailable.
func NewPostgres(t *testing.T, models ...any) (*gorm.DB, *config.Config) {
	t.Helper()

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker is not available: %v", err)
	}

	err = pool.Client.Ping()
	if err != nil {
		t.Skipf("docker is not reachable: %v", err)
	}

	pool.MaxWait = postgresMaxWait

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: postgresImage,
		Tag:        postgresTag,
		Env: []string{
			"POSTGRES_USER=" + postgresUser,
			"POSTGRES_PASSWORD=" + postgresPassword,
			"POSTGRES_DB=" + postgresDatabase,
		},
	}, func(hostConfig *docker.HostConfig) {
		hostConfig.AutoRemove = true
		hostConfig.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = pool.Purge(resource)
	})

	cfg := &config.Config{
		PostgresHost:            "localhost",
		PostgresPort:            resource.GetPort("5432/tcp"),
		PostgresUsername:        postgresUser,
		PostgresPassword:        postgresPassword,
		PostgresDatabase:        postgresDatabase,
		DBIntervalCB:            30,
		DBConsecutiveFailuresCB: 3,
	}

	var dbConn *gorm.DB

	err = pool.Retry(func() error {
		var openErr error

		dbConn, openErr = database.NewDatabase(cfg)

		return openErr
	})
	require.NoError(t, err, "postgres did not start within %s", postgresMaxWait)

	require.NoError(t, dbConn.AutoMigrate(models...))

	return dbConn, cfg
}
