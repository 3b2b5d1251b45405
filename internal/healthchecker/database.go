package healthchecker

import (
	"context"

	"gorm.io/gorm"
)

func DatabaseChecker(dbConn *gorm.DB) Checker {
	return func(ctx context.Context) error {
		sqlDB, err := dbConn.DB()
		if err != nil {
			return err
		}

		return sqlDB.PingContext(ctx)
	}
}
