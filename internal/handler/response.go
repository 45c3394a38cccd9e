package handler

import (
	"net/http"

	"inventory/internal/usecase"

	"github.com/labstack/echo/v4"
)

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// {success, data}
type DataResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Message string      `json:"message,omitempty"`
}

// {success, count, pagination?, data}
type ListResponse struct {
	Success    bool                `json:"success"`
	Count      int                 `json:"count"`
	Pagination *usecase.Pagination `json:"pagination,omitempty"`
	Data       interface{}         `json:"data"`
}

func errorJSON(msg string) ErrorResponse {
	return ErrorResponse{Success: false, Error: msg}
}

func writeError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}
	if he, ok := usecase.AsHTTPError(err); ok {
		return c.JSON(he.Status, errorJSON(he.Message))
	}

	//500
	c.Logger().Error(err)
	return c.JSON(http.StatusInternalServerError, errorJSON("Server Error"))
}

func ok(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, DataResponse{Success: true, Data: data})
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, errorJSON("Not authorized to access this route"))
}
