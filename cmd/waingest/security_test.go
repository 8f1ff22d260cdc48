package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/mariovalmir/chatwoot/internal/constants"
	apperrors "github.com/mariovalmir/chatwoot/internal/errors"
	"github.com/mariovalmir/chatwoot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(newHash func() hash.Hash, secret string, body []byte) string {
	mac := hmac.New(newHash, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature_Evolution(t *testing.T) {
	body := []byte(`{"event":"messages.upsert"}`)
	secret := "evolution-secret"
	now := time.Now()

	tests := []struct {
		name    string
		header  string
		wantErr string
	}{
		{"valid", "sha256=" + sign(sha256.New, secret, body), ""},
		{"uppercase algo", "SHA256=" + sign(sha256.New, secret, body), ""},
		{"missing", "", "missing signature header"},
		{"no algo", sign(sha256.New, secret, body), "invalid signature format"},
		{"wrong algo", "sha1=abcdef", "invalid signature format"},
		{"wrong secret", "sha256=" + sign(sha256.New, "other", body), "signature mismatch"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.header != "" {
				h.Set(constants.HeaderEvolutionSignature, tt.header)
			}
			err := verifySignature(models.ProviderEvolution, h, body, secret, time.Minute, now)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, apperrors.Is(err, apperrors.ErrCodeUnauthorized))
		})
	}
}

func TestVerifySignature_WAHA(t *testing.T) {
	body := []byte(`{"event":"message","session":"default"}`)
	secret := "waha-secret"
	now := time.Unix(1700000000, 0)
	nowMs := strconv.FormatInt(now.UnixMilli(), 10)

	tests := []struct {
		name      string
		hmac      string
		algorithm string
		timestamp string
		wantErr   string
	}{
		{"sha512 ms timestamp", sign(sha512.New, secret, body), "", nowMs, ""},
		{"sha512 explicit", sign(sha512.New, secret, body), "sha512", nowMs, ""},
		{"sha256", sign(sha256.New, secret, body), "sha256", nowMs, ""},
		{"seconds timestamp", sign(sha512.New, secret, body), "", strconv.FormatInt(now.Unix()-30, 10), ""},
		{"missing hmac", "", "", nowMs, "missing signature header"},
		{"missing timestamp", sign(sha512.New, secret, body), "", "", "missing X-Webhook-Timestamp"},
		{"bad timestamp", sign(sha512.New, secret, body), "", "yesterday", "invalid X-Webhook-Timestamp"},
		{"stale", sign(sha512.New, secret, body), "", strconv.FormatInt(now.Add(-10*time.Minute).UnixMilli(), 10), "skew"},
		{"future", sign(sha512.New, secret, body), "", strconv.FormatInt(now.Add(10*time.Minute).UnixMilli(), 10), "skew"},
		{"unknown algorithm", sign(sha512.New, secret, body), "md5", nowMs, "unsupported HMAC algorithm"},
		{"mismatch", sign(sha512.New, "other", body), "", nowMs, "signature mismatch"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.hmac != "" {
				h.Set(constants.HeaderWAHAHmac, tt.hmac)
			}
			if tt.algorithm != "" {
				h.Set(constants.HeaderWAHAHmacAlgorithm, tt.algorithm)
			}
			if tt.timestamp != "" {
				h.Set(constants.HeaderWAHATimestamp, tt.timestamp)
			}
			err := verifySignature(models.ProviderWAHA, h, body, secret, 5*time.Minute, now)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestVerifySignature_NoSecret(t *testing.T) {
	assert.NoError(t, verifySignature(models.ProviderWAHA, http.Header{}, []byte(`{}`), "", time.Minute, time.Now()))
	assert.NoError(t, verifySignature(models.ProviderEvolution, http.Header{}, []byte(`{}`), "", time.Minute, time.Now()))
}
