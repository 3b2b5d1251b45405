package database

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewInMemory opens a private in-memory SQLite database named name with
// models migrated. It backs the memory store provider.
func NewInMemory(name string, models ...any) (*gorm.DB, error) {
	dbConn, err := Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)))
	if err != nil {
		return nil, err
	}

	sqlDB, err := dbConn.DB()
	if err != nil {
		return nil, err
	}

	// one connection keeps the shared in-memory database alive and serializes writers
	sqlDB.SetMaxOpenConns(1)

	err = dbConn.AutoMigrate(models...)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate in-memory database: %w", err)
	}

	return dbConn, nil
}
