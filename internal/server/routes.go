package server

import (
	"net/http"

	"inventory/internal/config"
	"inventory/internal/middleware"
	"inventory/internal/observability"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo, cfg config.Config, metrics *observability.Metrics, h Handlers) {
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	e.Static(cfg.UploadBaseURL, cfg.UploadDir)

	api := e.Group("/api")
	h.Auth.RegisterRoutes(api)

	// ここから下は認証必須
	protected := api.Group("", middleware.AuthJWT(cfg))
	h.Import.RegisterRoutes(protected)
	h.Product.RegisterRoutes(protected)
}
