package handler

import (
	"errors"
	"net/http"

	"inventory/internal/config"
	"inventory/internal/middleware"
	"inventory/internal/usecase"

	"github.com/labstack/echo/v4"
)

// /api/auth
type AuthHandler struct {
	uc  *usecase.AuthUsecase
	cfg config.Config
}

// DI
func NewAuthHandler(uc *usecase.AuthUsecase, cfg config.Config) *AuthHandler {
	return &AuthHandler{uc: uc, cfg: cfg}
}

func (h *AuthHandler) RegisterRoutes(api *echo.Group) {
	auth := api.Group("/auth")
	auth.POST("/register", h.register)
	auth.POST("/login", h.login)
	auth.GET("/me", h.me, middleware.AuthJWT(h.cfg))
}

func (h *AuthHandler) register(c echo.Context) error {
	var req usecase.AuthRegisterRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorJSON("invalid body"))
	}

	res, err := h.uc.Register(c.Request().Context(), req)
	if err != nil {
		return writeAuthError(c, err)
	}
	return ok(c, http.StatusCreated, res)
}

func (h *AuthHandler) login(c echo.Context) error {
	var req usecase.AuthLoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorJSON("invalid body"))
	}

	res, err := h.uc.Login(c.Request().Context(), req)
	if err != nil {
		return writeAuthError(c, err)
	}
	return ok(c, http.StatusOK, res)
}

func (h *AuthHandler) me(c echo.Context) error {
	actor, found := middleware.ActorFrom(c)
	if !found {
		return unauthorized(c)
	}

	user, err := h.uc.Me(c.Request().Context(), actor.UserID)
	if err != nil {
		return writeAuthError(c, err)
	}
	return ok(c, http.StatusOK, user)
}

// usecase/validatorのエラーをHTTPに変換
func writeAuthError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, usecase.ErrValidation):
		return c.JSON(http.StatusBadRequest, errorJSON("invalid input"))
	case errors.Is(err, usecase.ErrUnauthorized):
		return c.JSON(http.StatusUnauthorized, errorJSON("Invalid credentials"))
	case errors.Is(err, usecase.ErrConflict):
		return c.JSON(http.StatusConflict, errorJSON("User already exists"))
	default:
		return writeError(c, err)
	}
}
