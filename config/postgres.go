package config

import (
	"time"

	"github.com/rajmehta89/call-agent-backend/internal/models"
	"github.com/rajmehta89/call-agent-backend/internal/utils"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PostgresDB backs the turn log and interest analyses. It stays nil when POSTGRES_URI is unset.
var PostgresDB *gorm.DB

func InitPostgres(dsn string) error {
	const op = "config.InitPostgres"
	if dsn == "" {
		return utils.E(utils.CodeMisconfigured, op, "POSTGRES_URI is not set", nil)
	}

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true, // pgbouncer in transaction mode
	}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Warn),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return utils.E(utils.CodeUnavailable, op, "open failed", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return utils.E(utils.CodeInternal, op, "no sql handle", err)
	}
	// every live call appends turns; size for a few dozen concurrent calls
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.AutoMigrate(&models.CallTurn{}, &models.CallAnalysis{}); err != nil {
		_ = sqlDB.Close()
		return utils.E(utils.CodeInternal, op, "migrate turn log", err)
	}

	PostgresDB = db
	return nil
}

func ClosePostgres() error {
	if PostgresDB == nil {
		return nil
	}
	sqlDB, err := PostgresDB.DB()
	PostgresDB = nil
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
