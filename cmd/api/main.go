package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"inventory/internal/config"
	"inventory/internal/handler"
	"inventory/internal/infra/asset"
	"inventory/internal/infra/cache"
	"inventory/internal/infra/csvio"
	"inventory/internal/infra/db"
	infraRepo "inventory/internal/infra/repository"
	"inventory/internal/observability"
	"inventory/internal/server"
	"inventory/internal/usecase"
	"inventory/internal/validator"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	//.envは無くてもよい（本番は環境変数）
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", slog.Any("error", err))
		os.Exit(1)
	}
	log := config.NewLogger(cfg)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
	log.Info("server has been gracefully shutdown")
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	//DB接続
	gormDB, err := db.Connect(cfg)
	if err != nil {
		return err
	}
	defer db.Close(gormDB, log)

	if err := db.Migrate(gormDB); err != nil {
		return err
	}

	//Redis（REDIS_ADDRが空ならキャッシュ無し）
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Error("redis close failed", slog.Any("error", err))
			}
		}()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unavailable, reads go to the database", slog.Any("error", err))
		}
	}
	productCache := cache.NewProductCache(rdb, cfg.CacheTTL)

	assets, err := asset.NewLocalStore(cfg.UploadDir, cfg.UploadBaseURL)
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics()

	//Repository（GORM実装）生成
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	historyRepo := infraRepo.NewInventoryHistoryGormRepository(gormDB)
	userRepo := infraRepo.NewUserGormRepository(gormDB)
	txManager := infraRepo.NewTxManagerGorm(gormDB)

	productValidator := validator.NewProductValidator()

	//Usecase生成
	productUC := usecase.NewProductUsecase(usecase.ProductDeps{
		Products:      productRepo,
		History:       historyRepo,
		Assets:        assets,
		Validator:     productValidator,
		Cache:         productCache,
		Metrics:       metrics,
		Logger:        log,
		MaxImageBytes: cfg.MaxImageBytes,
	})
	importUC := usecase.NewImportUsecase(usecase.ImportDeps{
		Tx:        txManager,
		Products:  productRepo,
		Validator: productValidator,
		Sheet:     csvio.ProductSheet{},
		Cache:     productCache,
		Metrics:   metrics,
		Logger:    log,
	})
	authUC := usecase.NewAuthUsecase(cfg, userRepo, validator.NewAuthValidator(userRepo))

	//Handler生成
	e := server.New(cfg, log, metrics, server.Handlers{
		Auth:    handler.NewAuthHandler(authUC, cfg),
		Product: handler.NewProductHandler(productUC),
		Import:  handler.NewImportHandler(importUC, cfg.MaxCSVBytes),
	})

	//Server起動
	return server.Start(ctx, e, cfg.Addr(), log)
}
