package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

const (
	headerAPIKey    = "X-API-Key"
	headerTimestamp = "X-Timestamp"
	headerSignature = "X-Signature"

	maxBodyForSig = 1 << 20
)

var (
	errUnknownAPIKey    = errors.New("unknown api key")
	errStaleTimestamp   = errors.New("timestamp outside allowed skew")
	errBadSignature     = errors.New("signature mismatch")
	errMissingSignature = errors.New("missing signature headers")
)

// Authenticator verifies API key + HMAC-SHA256 signatures on incoming
// requests. The signed payload is timestamp, method, path and body joined by
// newlines.
type Authenticator struct {
	secrets map[string]string
	skew    time.Duration
	nowFn   func() time.Time
}

func NewAuthenticator(keys []APIKeyConfig, skew time.Duration, nowFn func() time.Time) *Authenticator {
	secrets := make(map[string]string, len(keys))
	for _, key := range keys {
		secrets[key.Key] = key.Secret
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Authenticator{secrets: secrets, skew: skew, nowFn: nowFn}
}

// Verify checks the request credentials and returns the authenticated API
// key.
func (a *Authenticator) Verify(apiKey, timestamp, signature, method, path string, body []byte) (string, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" || strings.TrimSpace(timestamp) == "" || strings.TrimSpace(signature) == "" {
		return "", errMissingSignature
	}
	secret, ok := a.secrets[apiKey]
	if !ok {
		return "", errUnknownAPIKey
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(timestamp), 10, 64)
	if err != nil {
		return "", errStaleTimestamp
	}
	now := a.nowFn()
	drift := now.Sub(time.Unix(ts, 0))
	if drift < 0 {
		drift = -drift
	}
	if drift > a.skew {
		return "", errStaleTimestamp
	}
	expected := ComputeSignature(secret, timestamp, method, path, body)
	provided, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return "", errBadSignature
	}
	if !hmac.Equal(expected, provided) {
		return "", errBadSignature
	}
	return apiKey, nil
}

// ComputeSignature derives the request signature clients must present.
func ComputeSignature(secret, timestamp, method, path string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("\n"))
	mac.Write([]byte(strings.ToUpper(method)))
	mac.Write([]byte("\n"))
	mac.Write([]byte(path))
	mac.Write([]byte("\n"))
	mac.Write(body)
	return mac.Sum(nil)
}
