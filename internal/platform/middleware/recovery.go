package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medisched/medisched/internal/platform/apperr"
)

// Recovery turns a handler panic into a 500 so one bad request cannot take
// the process down.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					buf := make([]byte, 8<<10)
					buf = buf[:runtime.Stack(buf, false)]

					rid, _ := c.Get("request_id").(string)
					logger.Error().
						Str("request_id", rid).
						Str("method", c.Request().Method).
						Str("path", c.Path()).
						Str("panic", fmt.Sprint(r)).
						Bytes("stack", buf).
						Msg("handler panicked")

					err = echo.NewHTTPError(http.StatusInternalServerError, apperr.Body{
						Code:    "internal",
						Message: "internal server error",
					})
				}
			}()
			return next(c)
		}
	}
}
