package middleware

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medisched/medisched/internal/platform/apperr"
)

const maxHeaderValueSize = 8 << 10

var (
	// Logged only; parameters always reach SQL as bind arguments.
	sqlPattern    = regexp.MustCompile(`(?i)('+\s*;\s*DROP\b|UNION\s+SELECT\b|'\s+OR\s+1\s*=\s*1)`)
	scriptPattern = regexp.MustCompile(`(?i)(<script|javascript\s*:|on\w+\s*=)`)
)

// Sanitize rejects requests carrying path traversal, null bytes, header
// injection or script in query parameters.
func Sanitize(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			for _, p := range []string{req.URL.Path, req.URL.RawPath} {
				if hasTraversal(p) {
					return rejected("path_traversal", "path traversal is not allowed")
				}
				if hasNullByte(p) {
					return rejected("null_byte", "null bytes are not allowed in the path")
				}
			}

			for name, values := range req.Header {
				for _, v := range values {
					if len(v) > maxHeaderValueSize {
						return rejected("header_too_large", "header "+name+" is too large")
					}
					if strings.ContainsAny(v, "\r\n") {
						return rejected("header_injection", "header "+name+" contains a line break")
					}
				}
			}

			for key, values := range req.URL.Query() {
				for _, v := range values {
					if hasNullByte(key) || hasNullByte(v) {
						return rejected("null_byte", "null bytes are not allowed in query parameters")
					}
					if scriptPattern.MatchString(key) || scriptPattern.MatchString(v) {
						return rejected("script_injection", "query parameter "+key+" contains script")
					}
					if sqlPattern.MatchString(v) {
						logger.Warn().
							Str("param", key).
							Str("path", req.URL.Path).
							Str("remote_ip", c.RealIP()).
							Msg("suspicious query parameter")
					}
				}
			}
			return next(c)
		}
	}
}

func hasTraversal(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(s, "..") || strings.Contains(lower, "%2e%2e") || strings.Contains(lower, "%252e")
}

func hasNullByte(s string) bool {
	return strings.ContainsRune(s, 0) || strings.Contains(strings.ToLower(s), "%00")
}

func rejected(code, msg string) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusBadRequest, apperr.Body{Code: code, Message: msg})
}
