package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mariovalmir/chatwoot/internal/service"
	"github.com/mariovalmir/chatwoot/internal/tracing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(logger *logrus.Logger) (*mux.Router, *string) {
	var seenID string
	r := mux.NewRouter()
	r.Use(Observability(logger, false), DetailedLogging(logger))
	r.HandleFunc("/webhook/{provider}/{inbox}", func(w http.ResponseWriter, req *http.Request) {
		seenID = tracing.RequestID(req.Context())
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodPost)
	r.HandleFunc("/fail", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	r.HandleFunc("/bad", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {})
	return r, &seenID
}

func TestObservability_LogsRouteTemplate(t *testing.T) {
	logger, hook := test.NewNullLogger()
	r, seenID := newRouter(logger)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook/evolution/12", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	requestID := rec.Header().Get(tracing.RequestIDHeader)
	assert.NotEmpty(t, requestID)
	assert.Equal(t, requestID, *seenID)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "/webhook/{provider}/{inbox}", entry.Data[service.LogFieldRoute])
	assert.Equal(t, http.StatusAccepted, entry.Data[service.LogFieldStatusCode])
	assert.Equal(t, int64(2), entry.Data[service.LogFieldSize])
}

func TestObservability_KeepsIncomingRequestID(t *testing.T) {
	logger, _ := test.NewNullLogger()
	r, seenID := newRouter(logger)

	req := httptest.NewRequest(http.MethodPost, "/webhook/waha/3", nil)
	req.Header.Set(tracing.RequestIDHeader, "gw-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "gw-123", rec.Header().Get(tracing.RequestIDHeader))
	assert.Equal(t, "gw-123", *seenID)
}

func TestObservability_LevelsFollowStatus(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	r, _ := newRouter(logger)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fail", nil))
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, logrus.DebugLevel, hook.LastEntry().Level)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/bad", nil))
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestDetailedLogging_MasksSecrets(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	r, _ := newRouter(logger)

	req := httptest.NewRequest(http.MethodPost, "/webhook/evolution/1", nil)
	req.Header.Set("apikey", "super-secret")
	req.Header.Set("X-Webhook-Signature", "sha256=abc")
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(httptest.NewRecorder(), req)

	var detailed *logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Message == "Detailed request logging" {
			detailed = e
		}
	}
	require.NotNil(t, detailed)
	headers := detailed.Data["request_headers"].(map[string]string)
	assert.Equal(t, "***MASKED***", headers["Apikey"])
	assert.Equal(t, "***MASKED***", headers["X-Webhook-Signature"])
	assert.Equal(t, "application/json", headers["Content-Type"])
}

func TestDetailedLogging_SilentAboveDebug(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.InfoLevel)
	r, _ := newRouter(logger)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/webhook/evolution/1", nil))
	for _, e := range hook.AllEntries() {
		assert.NotEqual(t, "Detailed request logging", e.Message)
	}
}
