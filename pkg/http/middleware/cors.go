package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	AllowCredentials bool
	MaxAge           int
}

// CORS returns CORS middleware. With credentials enabled the request
// origin is echoed instead of "*". An empty AllowHeaders reflects the
// headers the preflight asks for.
func CORS(cfg CORSConfig) echo.MiddlewareFunc {
	methods := strings.Join(cfg.AllowMethods, ", ")
	headers := strings.Join(cfg.AllowHeaders, ", ")
	wildcard := false
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			wildcard = true
			break
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			h := c.Response().Header()
			origin := req.Header.Get(echo.HeaderOrigin)
			h.Add(echo.HeaderVary, echo.HeaderOrigin)

			if origin == "" || !allowed(cfg.AllowOrigins, wildcard, origin) {
				return next(c)
			}

			if wildcard && !cfg.AllowCredentials {
				h.Set(echo.HeaderAccessControlAllowOrigin, "*")
			} else {
				h.Set(echo.HeaderAccessControlAllowOrigin, origin)
			}
			if cfg.AllowCredentials {
				h.Set(echo.HeaderAccessControlAllowCredentials, "true")
			}

			// Handle preflight
			if req.Method == http.MethodOptions && req.Header.Get(echo.HeaderAccessControlRequestMethod) != "" {
				h.Add(echo.HeaderVary, echo.HeaderAccessControlRequestMethod)
				h.Add(echo.HeaderVary, echo.HeaderAccessControlRequestHeaders)
				if methods != "" {
					h.Set(echo.HeaderAccessControlAllowMethods, methods)
				}
				if headers != "" {
					h.Set(echo.HeaderAccessControlAllowHeaders, headers)
				} else if reqHeaders := req.Header.Get(echo.HeaderAccessControlRequestHeaders); reqHeaders != "" {
					h.Set(echo.HeaderAccessControlAllowHeaders, reqHeaders)
				}
				if cfg.MaxAge > 0 {
					h.Set(echo.HeaderAccessControlMaxAge, itoa(cfg.MaxAge))
				}
				return c.NoContent(http.StatusOK)
			}

			return next(c)
		}
	}
}

func allowed(origins []string, wildcard bool, origin string) bool {
	if wildcard {
		return true
	}
	for _, o := range origins {
		if o == origin {
			return true
		}
	}
	return false
}
