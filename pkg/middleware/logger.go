package middleware

import (
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nat-prohmpiriya/fipe-garage/pkg/logger"
	"go.uber.org/zap"
)

// Logger writes one access log line per request. Paths in skip (health
// checks, typically) are not logged.
func Logger(log *logger.Logger, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		if _, ok := skipped[path]; ok {
			return
		}

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("request_id", GetRequestID(c)),
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("route", c.FullPath()),
			zap.String("query", redactQuery(c.Request.URL.RawQuery)),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
			zap.Int("body_size", c.Writer.Size()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case status >= 500:
			log.Error("Server error", fields...)
		case status >= 400:
			log.Warn("Client error", fields...)
		default:
			log.Info("Request completed", fields...)
		}
	}
}

const redacted = "[REDACTED]"

// sensitiveQueryParams never reach the access log in clear text
var sensitiveQueryParams = map[string]struct{}{
	"access_token":  {},
	"refresh_token": {},
	"token":         {},
	"api_key":       {},
}

// redactQuery masks the values of sensitiveQueryParams. A query that does
// not parse is dropped whole since it may still carry a credential.
func redactQuery(raw string) string {
	if raw == "" {
		return ""
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return redacted
	}
	found := false
	for key, vals := range values {
		if _, ok := sensitiveQueryParams[strings.ToLower(key)]; !ok {
			continue
		}
		found = true
		for i := range vals {
			vals[i] = redacted
		}
	}
	if !found {
		return raw
	}
	return values.Encode()
}
