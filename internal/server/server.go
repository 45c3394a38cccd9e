package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"inventory/internal/config"
	"inventory/internal/handler"
	"inventory/internal/middleware"
	"inventory/internal/observability"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"
)

// Handlers はルートに登録するハンドラー一式
type Handlers struct {
	Auth    *handler.AuthHandler
	Product *handler.ProductHandler
	Import  *handler.ImportHandler
}

// New はミドルウェアとルートを登録したechoを返す。
func New(cfg config.Config, log *slog.Logger, metrics *observability.Metrics, h Handlers) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(log)

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(log))
	e.Use(metrics.Middleware())
	e.Use(middleware.SecureHeaders(cfg, log))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     []string{cfg.ClientURL},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowCredentials: true,
	}))
	e.Use(middleware.RateLimit(cfg.RateLimit))
	// 画像とCSVの上限＋multipartの余白
	e.Use(echomw.BodyLimit(fmt.Sprintf("%dB", maxInt64(cfg.MaxCSVBytes, cfg.MaxImageBytes)+1<<20)))

	RegisterRoutes(e, cfg, metrics, h)
	return e
}

// Start はctxが終わるまで待ち受け、終わったら処理中のリクエストを待ってShutdownする。
func Start(ctx context.Context, e *echo.Echo, addr string, log *slog.Logger) error {
	errGrp, ctx := errgroup.WithContext(ctx)

	errGrp.Go(func() error {
		log.Info("server started", slog.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: listen: %w", err)
		}
		return nil
	})

	errGrp.Go(func() error {
		<-ctx.Done()
		log.Info("server shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: shutdown: %w", err)
		}
		return nil
	})

	return errGrp.Wait()
}

// echo.HTTPError（ルート無し・サイズ超過など）も同じ形で返す
func errorHandler(log *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		msg := "Server Error"
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			if m, ok := he.Message.(string); ok {
				msg = m
			} else {
				msg = http.StatusText(status)
			}
		} else {
			log.Error("unhandled error", slog.String("path", c.Request().URL.Path), slog.Any("error", err))
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, handler.ErrorResponse{Success: false, Error: msg})
	}
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
