package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mariovalmir/chatwoot/internal/constants"
	apperrors "github.com/mariovalmir/chatwoot/internal/errors"
	"github.com/mariovalmir/chatwoot/internal/models"
)

// verifySignature checks the HMAC a gateway computed over body. Evolution
// sends "sha256=<hex>" in X-Webhook-Signature. WAHA sends a hex digest in
// X-Webhook-Hmac (sha512 unless X-Webhook-Hmac-Algorithm says otherwise)
// with an X-Webhook-Timestamp that must fall within maxSkew of now.
func verifySignature(provider models.Provider, header http.Header, body []byte, secret string, maxSkew time.Duration, now time.Time) error {
	if secret == "" {
		return nil
	}

	switch provider {
	case models.ProviderWAHA:
		return verifyWAHA(header, body, secret, maxSkew, now)
	default:
		return verifyEvolution(header, body, secret)
	}
}

func verifyEvolution(header http.Header, body []byte, secret string) error {
	signature := header.Get(constants.HeaderEvolutionSignature)
	if signature == "" {
		return unauthorized("missing signature header: " + constants.HeaderEvolutionSignature)
	}
	algo, digest, ok := strings.Cut(signature, "=")
	if !ok || !strings.EqualFold(algo, "sha256") {
		return unauthorized("invalid signature format in header " + constants.HeaderEvolutionSignature)
	}
	return compareMAC(sha256.New, secret, body, digest)
}

func verifyWAHA(header http.Header, body []byte, secret string, maxSkew time.Duration, now time.Time) error {
	signature := header.Get(constants.HeaderWAHAHmac)
	if signature == "" {
		return unauthorized("missing signature header: " + constants.HeaderWAHAHmac)
	}

	timestamp := header.Get(constants.HeaderWAHATimestamp)
	if timestamp == "" {
		return unauthorized("missing " + constants.HeaderWAHATimestamp + " header")
	}
	sent, err := parseTimestamp(timestamp)
	if err != nil {
		return unauthorized("invalid " + constants.HeaderWAHATimestamp + " header")
	}
	if maxSkew > 0 && math.Abs(float64(now.Sub(sent))) > float64(maxSkew) {
		return unauthorized("webhook timestamp outside allowed skew")
	}

	newHash := sha512.New
	switch strings.ToLower(header.Get(constants.HeaderWAHAHmacAlgorithm)) {
	case "", "sha512":
	case "sha256":
		newHash = sha256.New
	default:
		return unauthorized("unsupported HMAC algorithm")
	}
	return compareMAC(newHash, secret, body, signature)
}

// parseTimestamp accepts unix seconds or milliseconds.
func parseTimestamp(v string) (time.Time, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	if n > 1e12 {
		return time.UnixMilli(n), nil
	}
	return time.Unix(n, 0), nil
}

func compareMAC(newHash func() hash.Hash, secret string, body []byte, expectedHex string) error {
	mac := hmac.New(newHash, []byte(secret))
	mac.Write(body)
	computed := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(computed), []byte(strings.ToLower(strings.TrimSpace(expectedHex)))) {
		return unauthorized("signature mismatch")
	}
	return nil
}

func unauthorized(msg string) error {
	return apperrors.New(apperrors.ErrCodeUnauthorized, msg)
}
