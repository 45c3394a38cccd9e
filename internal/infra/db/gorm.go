package db

import (
	"fmt"
	"log/slog"
	"time"

	"inventory/internal/config"
	"inventory/internal/domain/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect はDBに接続して *gorm.DB を返す。
func Connect(cfg config.Config) (*gorm.DB, error) {
	level := logger.Warn
	if !cfg.IsProduction() {
		level = logger.Info
	}

	gormDB, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("db: open: %w", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("db: pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return gormDB, nil
}

// Migrate はテーブルを作成・更新する。
func Migrate(gormDB *gorm.DB) error {
	return gormDB.AutoMigrate(
		&model.User{},
		&model.Product{},
		&model.InventoryHistory{},
	)
}

// Close はプロセス終了時に一度だけ呼ぶ。
func Close(gormDB *gorm.DB, log *slog.Logger) {
	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Error("db: pool unavailable on close", slog.Any("error", err))
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Error("db: close failed", slog.Any("error", err))
	}
}
