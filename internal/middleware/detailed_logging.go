package middleware

import (
	"net/http"
	"strings"

	"github.com/mariovalmir/chatwoot/internal/service"
	"github.com/mariovalmir/chatwoot/internal/tracing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// sensitiveHeaders are masked in debug logs. Both gateway key headers and
// the webhook signature headers are included.
var sensitiveHeaders = map[string]bool{
	"authorization":       true,
	"apikey":              true,
	"x-api-key":           true,
	"x-webhook-signature": true,
	"x-webhook-hmac":      true,
	"x-hub-signature-256": true,
	"cookie":              true,
}

// DetailedLogging logs request headers at debug level for webhook routes.
// It is only installed when the logger runs at debug level.
func DetailedLogging(logger *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !logger.IsLevelEnabled(logrus.DebugLevel) || r.URL.Path == routeHealth || r.URL.Path == routeMetrics {
				next.ServeHTTP(w, r)
				return
			}

			logger.WithFields(logrus.Fields{
				service.LogFieldRequestID: tracing.RequestID(r.Context()),
				service.LogFieldMethod:    r.Method,
				service.LogFieldRoute:     routeTemplate(r),
				"content_length":          r.ContentLength,
				"protocol":                r.Proto,
				"request_headers":         maskHeaders(r.Header),
			}).Debug("Detailed request logging")

			next.ServeHTTP(w, r)
		})
	}
}

func maskHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if sensitiveHeaders[strings.ToLower(name)] {
			out[name] = "***MASKED***"
			continue
		}
		out[name] = strings.Join(values, ", ")
	}
	return out
}
