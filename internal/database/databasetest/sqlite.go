// Package databasetest opens throwaway databases for repository tests.
package databasetest

import (
	"strings"
	"testing"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/database"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// NewSQLite returns an in-memory database private to t with models migrated.
func NewSQLite(t *testing.T, models ...any) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())

	dbConn, err := database.NewInMemory(name, models...)
	require.NoError(t, err)

	sqlDB, err := dbConn.DB()
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return dbConn
}
