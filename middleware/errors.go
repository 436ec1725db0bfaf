package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"cynix/models"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// ErrorHandler writes AppErrors with their mapped status. Anything else is
// logged and answered with a generic 500.
func ErrorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, msg := http.StatusInternalServerError, "internal server error"

		var appErr *models.AppError
		var httpErr *echo.HTTPError
		switch {
		case errors.As(err, &appErr):
			status = appErr.Code.HTTPStatus()
			if status < http.StatusInternalServerError || appErr.Code == models.ErrRPCUnavailable {
				msg = appErr.Message
			}
		case errors.As(err, &httpErr):
			status = httpErr.Code
			if status < http.StatusInternalServerError {
				msg = http.StatusText(status)
				if m, ok := httpErr.Message.(string); ok {
					msg = m
				}
			}
		}

		if status >= http.StatusInternalServerError {
			logger.Error("Request failed",
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
				zap.Error(err))
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, ErrorResponse{Status: "error", Error: msg})
		}
		if err != nil {
			logger.Warn("Failed to write error response", zap.Error(err))
		}
	}
}
