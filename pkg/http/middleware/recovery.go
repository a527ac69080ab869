package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	applogger "CoinCast/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Recover turns handler panics into a 500 response.
func Recover(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					perr, ok := r.(error)
					if !ok {
						perr = fmt.Errorf("%v", r)
					}
					l.Error("panic recovered",
						applogger.String("path", c.Path()),
						applogger.String("request_id", GetRequestID(c)),
						applogger.String("stack", string(debug.Stack())),
						applogger.Error(perr),
					)
					if c.Response().Committed {
						return
					}
					err = c.JSON(http.StatusInternalServerError, map[string]string{
						"detail": "Internal Server Error",
					})
				}
			}()
			return next(c)
		}
	}
}
