// Package middleware wraps the HTTP router with request ids, tracing,
// metrics and access logging.
package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/mariovalmir/chatwoot/internal/httputil"
	"github.com/mariovalmir/chatwoot/internal/metrics"
	"github.com/mariovalmir/chatwoot/internal/service"
	"github.com/mariovalmir/chatwoot/internal/tracing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Observability assigns a request id, continues any incoming trace, records
// HTTP metrics by route template and logs each completed request.
func Observability(logger *logrus.Logger, trustProxy bool) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(tracing.RequestIDHeader)
			if requestID == "" || len(requestID) > 128 {
				requestID = tracing.NewRequestID()
			}
			route := routeTemplate(r)
			clientIP := httputil.ClientIP(r, trustProxy)

			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx = tracing.WithRequest(ctx, requestID, start)
			ctx, span := tracing.StartSpan(ctx, r.Method+" "+route,
				attribute.String("http.request.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("client.address", clientIP),
				attribute.String("user_agent.original", r.Header.Get("User-Agent")),
			)
			span.SetAttributes(attribute.String("request.id", requestID))
			defer span.End()

			w.Header().Set(tracing.RequestIDHeader, requestID)
			wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapper, r.WithContext(ctx))

			duration := time.Since(start)
			metrics.ObserveHTTP(r.Method, route, wrapper.statusCode, duration)

			span.SetAttributes(
				attribute.Int("http.response.status_code", wrapper.statusCode),
				attribute.Int64("http.response.body.size", wrapper.responseSize),
			)
			if wrapper.statusCode >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", wrapper.statusCode))
			}

			level := logrus.InfoLevel
			switch {
			case wrapper.statusCode >= http.StatusInternalServerError:
				level = logrus.ErrorLevel
			case wrapper.statusCode >= http.StatusBadRequest:
				level = logrus.WarnLevel
			case route == routeHealth || route == routeMetrics:
				level = logrus.DebugLevel
			}

			logger.WithFields(logrus.Fields{
				service.LogFieldRequestID:  requestID,
				service.LogFieldTraceID:    traceID(span),
				service.LogFieldMethod:     r.Method,
				service.LogFieldRoute:      route,
				service.LogFieldStatusCode: wrapper.statusCode,
				service.LogFieldDuration:   duration.Milliseconds(),
				service.LogFieldRemoteIP:   clientIP,
				service.LogFieldUserAgent:  r.UserAgent(),
				service.LogFieldSize:       wrapper.responseSize,
			}).Log(level, "HTTP request completed")
		})
	}
}

const (
	routeHealth  = "/health"
	routeMetrics = "/metrics"
)

// routeTemplate keeps metric cardinality bounded by labelling requests
// with the matched mux template instead of the raw path.
func routeTemplate(r *http.Request) string {
	if current := mux.CurrentRoute(r); current != nil {
		if tpl, err := current.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

func traceID(span oteltrace.Span) string {
	sc := span.SpanContext()
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// responseWrapper captures response metrics
type responseWrapper struct {
	http.ResponseWriter
	statusCode   int
	responseSize int64
	wroteHeader  bool
}

func (rw *responseWrapper) WriteHeader(statusCode int) {
	if !rw.wroteHeader {
		rw.statusCode = statusCode
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWrapper) Write(data []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(data)
	rw.responseSize += int64(n)
	return n, err
}
