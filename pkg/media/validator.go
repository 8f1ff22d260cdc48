// Package media vets the media references gateways put in webhooks before
// they are stored as attachment URLs.
package media

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mariovalmir/chatwoot/internal/constants"
	apperrors "github.com/mariovalmir/chatwoot/internal/errors"

	"github.com/sirupsen/logrus"
)

// Gateway is a gateway base URL whose media links may point at internal
// addresses. Its key authenticates reachability checks.
type Gateway struct {
	BaseURL   string
	KeyHeader string
	APIKey    string
}

type Options struct {
	Gateways []Gateway
	// CheckReachable sends a HEAD request and rejects links the host
	// answers 404 or 410 for.
	CheckReachable bool
	HTTPClient     *http.Client
	Logger         *logrus.Logger
}

type gatewayHost struct {
	host      string
	port      string
	keyHeader string
	apiKey    string
}

// Validator accepts public http(s) links, links to a configured gateway and
// inline references without a scheme (base64 bodies some gateways send).
type Validator struct {
	gateways  []gatewayHost
	checkHead bool
	client    *http.Client
	logger    *logrus.Logger
}

func NewValidator(opts Options) *Validator {
	v := &Validator{
		checkHead: opts.CheckReachable,
		client:    opts.HTTPClient,
		logger:    opts.Logger,
	}
	if v.client == nil {
		v.client = &http.Client{
			Timeout: time.Duration(constants.DefaultMediaTimeoutSec) * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	if v.logger == nil {
		v.logger = logrus.New()
		v.logger.SetLevel(logrus.WarnLevel)
	}
	for _, g := range opts.Gateways {
		u, err := url.Parse(strings.TrimSpace(g.BaseURL))
		if err != nil || u.Host == "" {
			continue
		}
		v.gateways = append(v.gateways, gatewayHost{
			host:      strings.ToLower(u.Hostname()),
			port:      effectivePort(u),
			keyHeader: g.KeyHeader,
			apiKey:    g.APIKey,
		})
	}
	return v
}

func (v *Validator) ValidateRef(ctx context.Context, ref string) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "empty media reference")
	}
	if strings.HasPrefix(ref, "data:") || !strings.Contains(ref, "://") {
		return nil
	}

	u, err := url.Parse(ref)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "invalid media URL")
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return apperrors.New(apperrors.ErrCodeInvalidInput, fmt.Sprintf("unsupported URL scheme: %s", u.Scheme))
	}
	if u.Hostname() == "" {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "media URL has no host")
	}

	gw, internal := v.matchGateway(u)
	if !internal && isInternalHost(u.Hostname()) {
		return apperrors.New(apperrors.ErrCodeInvalidInput, fmt.Sprintf("media host not allowed: %s", u.Hostname()))
	}

	if !v.checkHead {
		return nil
	}
	return v.head(ctx, u, gw)
}

// matchGateway reports whether u points at a configured gateway. WAHA
// reports its own files under localhost, so a loopback host on a gateway's
// port also counts.
func (v *Validator) matchGateway(u *url.URL) (*gatewayHost, bool) {
	host := strings.ToLower(u.Hostname())
	port := effectivePort(u)
	for i := range v.gateways {
		g := &v.gateways[i]
		if g.port != port {
			continue
		}
		if host == g.host || isLoopback(host) {
			return g, true
		}
	}
	return nil, false
}

func (v *Validator) head(ctx context.Context, u *url.URL, gw *gatewayHost) error {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(constants.DefaultMediaTimeoutSec)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u.String(), nil)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "failed to create request")
	}
	if gw != nil && gw.apiKey != "" && gw.keyHeader != "" {
		req.Header.Set(gw.keyHeader, gw.apiKey)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		// An unreachable host now may serve the file later; keep the link.
		v.logger.WithFields(logrus.Fields{
			"host":  u.Hostname(),
			"error": err,
		}).Debug("Media reachability check failed")
		return nil
	}
	resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return apperrors.New(apperrors.ErrCodeInvalidInput, fmt.Sprintf("media not available: status %d", resp.StatusCode))
	}
	return nil
}

func effectivePort(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	if u.Scheme == "https" {
		return "443"
	}
	return "80"
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// isInternalHost flags literal private addresses and single-label names
// that only resolve inside a container network.
func isInternalHost(host string) bool {
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
			ip.IsLinkLocalMulticast() || ip.IsUnspecified()
	}
	host = strings.ToLower(host)
	return host == "localhost" || strings.HasSuffix(host, ".localhost") ||
		strings.HasSuffix(host, ".internal") || !strings.Contains(host, ".")
}
