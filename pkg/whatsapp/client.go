package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/mariovalmir/chatwoot/internal/errors"
	"github.com/mariovalmir/chatwoot/internal/metrics"
	"github.com/mariovalmir/chatwoot/internal/retry"
	"github.com/mariovalmir/chatwoot/pkg/circuitbreaker"

	"github.com/sirupsen/logrus"
)

const (
	DefaultLookupTimeout     = 10 * time.Second
	DefaultCircuitFailures   = 5
	DefaultCircuitOpenPeriod = 30 * time.Second

	maxResponseBytes = 1 << 20
)

// ClientOptions tune the gateway clients. Zero values take the defaults.
type ClientOptions struct {
	HTTPClient         *http.Client
	Timeout            time.Duration
	CircuitMaxFailures uint32
	CircuitOpenTimeout time.Duration
	Backoff            retry.BackoffConfig
	Logger             *logrus.Logger
}

func (o ClientOptions) withDefaults() ClientOptions {
	if o.Timeout <= 0 {
		o.Timeout = DefaultLookupTimeout
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: o.Timeout}
	}
	if o.CircuitMaxFailures == 0 {
		o.CircuitMaxFailures = DefaultCircuitFailures
	}
	if o.CircuitOpenTimeout <= 0 {
		o.CircuitOpenTimeout = DefaultCircuitOpenPeriod
	}
	if o.Backoff.MaxAttempts == 0 {
		o.Backoff = retry.LookupBackoffConfig()
	}
	if o.Logger == nil {
		o.Logger = logrus.New()
		o.Logger.SetLevel(logrus.WarnLevel)
	}
	return o
}

// apiClient is the HTTP core shared by the gateway clients: it authenticates,
// retries transient failures and stops calling a gateway that keeps failing.
type apiClient struct {
	provider  string
	baseURL   string
	keyHeader string
	apiKey    string
	client    *http.Client
	breaker   *circuitbreaker.CircuitBreaker
	backoff   retry.BackoffConfig
	logger    *logrus.Logger
}

func newAPIClient(provider, baseURL, keyHeader, apiKey string, opts ClientOptions) *apiClient {
	opts = opts.withDefaults()
	breaker := circuitbreaker.NewWithLogger(provider+":"+baseURL, opts.CircuitMaxFailures, opts.CircuitOpenTimeout, opts.Logger)
	breaker.OnStateChange(func(name string, _, to circuitbreaker.State) {
		metrics.CircuitState(name, int(to))
	})
	return &apiClient{
		provider:  provider,
		baseURL:   strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		keyHeader: keyHeader,
		apiKey:    apiKey,
		client:    opts.HTTPClient,
		breaker:   breaker,
		backoff:   opts.Backoff,
		logger:    opts.Logger,
	}
}

// call performs one API request and decodes the JSON answer into a generic
// value. found is false when the gateway answered 404.
func (c *apiClient) call(ctx context.Context, method, path string, query url.Values, body any) (result any, found bool, err error) {
	if c.baseURL == "" {
		return nil, false, apperrors.New(apperrors.ErrCodeConfigError, c.provider+" API URL is not configured")
	}

	err = c.breaker.Execute(ctx, func(ctx context.Context) error {
		return retry.NewBackoff(c.backoff).
			OnRetry(func(attempt int, delay time.Duration, err error) {
				c.logger.WithFields(logrus.Fields{
					"provider": c.provider,
					"path":     path,
					"attempt":  attempt,
					"delay_ms": delay.Milliseconds(),
					"error":    err,
				}).Debug("Retrying gateway request")
			}).
			RetryWithPredicate(ctx, func() error {
				var callErr error
				result, found, callErr = c.once(ctx, method, path, query, body)
				return callErr
			}, apperrors.IsRetryable)
	})
	return result, found, err
}

func (c *apiClient) once(ctx context.Context, method, path string, query url.Values, body any) (any, bool, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, false, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(c.keyHeader, c.apiKey)
	}

	c.logger.WithFields(logrus.Fields{
		"provider": c.provider,
		"method":   method,
		"path":     path,
	}).Debug("Calling gateway API")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, apperrors.Wrap(err, apperrors.ErrCodeTimeout, c.provider+" request cancelled")
		}
		return nil, false, apperrors.WrapRetryable(err, apperrors.ErrCodeNetworkError, c.provider+" request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, false, apperrors.WrapRetryable(err, apperrors.ErrCodeNetworkError, "failed to read response")
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false, apperrors.NewAPIError(c.provider, path, resp.StatusCode,
			fmt.Errorf("%s API error: status %d, body: %s", c.provider, resp.StatusCode, strings.TrimSpace(string(raw))))
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, true, nil
	}
	var out any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		// Some gateway builds answer with a bare string.
		return strings.Trim(strings.TrimSpace(string(raw)), `"`), true, nil
	}
	return out, true, nil
}
