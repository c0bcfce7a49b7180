package app

import (
	"github.com/fiffu/trailerwatch/config"
	"github.com/fiffu/trailerwatch/lib/models"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func NewDatabase(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(cfg.DatabasePath), &gorm.Config{})
	if err != nil {
		log.Sugar().Panicw("failed to connect database", "err", err)
	}
	log.Info("Database started", zap.String("path", cfg.DatabasePath))

	// sqlite allows a single writer.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
		lc.Append(fx.StopHook(sqlDB.Close))
	}

	log.Info("Starting migrations")
	if err := models.AutoMigrate(db); err != nil {
		log.Sugar().Panicw("migration failed", "err", err)
	}
	return db
}
