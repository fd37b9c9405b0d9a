package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"lukechampine.com/blake3"

	"workledger/observability"
	"workledger/observability/logging"
)

type contextKey string

const (
	contextKeyAPIKey    contextKey = "api-key"
	contextKeyRequestID contextKey = "request-id"
)

func apiKeyFrom(ctx context.Context) string {
	key, _ := ctx.Value(contextKeyAPIKey).(string)
	return key
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyRequestID).(string)
	return id
}

// withRequestID assigns a request id and echoes it back to the caller.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), contextKeyRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withAuth verifies the HMAC signature and stores the authenticated API key
// on the request context. The body is buffered so downstream handlers can
// re-read it.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyForSig))
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorBody("unable to read request body"))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		apiKey, err := s.auth.Verify(
			r.Header.Get(headerAPIKey),
			r.Header.Get(headerTimestamp),
			r.Header.Get(headerSignature),
			r.Method,
			r.URL.Path,
			body,
		)
		if err != nil {
			s.log.Warn("request rejected", "path", r.URL.Path,
				logging.MaskField("api_key", r.Header.Get(headerAPIKey)), "error", err.Error())
			s.writeJSON(w, http.StatusUnauthorized, errorBody("invalid credentials"))
			return
		}
		ctx := context.WithValue(r.Context(), contextKeyAPIKey, apiKey)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// keyLimiter hands out one token-bucket limiter per API key.
type keyLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newKeyLimiter(perMinute int) *keyLimiter {
	return &keyLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    perMinute,
	}
}

func (l *keyLimiter) allow(key string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := apiKeyFrom(r.Context())
		if key == "" {
			key = r.RemoteAddr
		}
		if !s.limiter.allow(key) {
			observability.HTTP().RecordThrottle(routeLabel(r))
			s.writeJSON(w, http.StatusTooManyRequests, errorBody("rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withIdempotency replays cached responses for repeated Idempotency-Key
// headers. Reusing a key with a different request body is a conflict.
func (s *Server) withIdempotency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("Idempotency-Key")
		if key == "" || r.Method == http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyForSig))
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorBody("unable to read request body"))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		hash := blake3.Sum256(body)
		requestHash := hex.EncodeToString(hash[:])
		apiKey := apiKeyFrom(r.Context())

		cached, err := s.store.LookupIdempotency(apiKey, key, requestHash)
		if err != nil {
			if err == ErrIdempotencyMismatch {
				s.writeJSON(w, http.StatusConflict, errorBody("idempotency key reused with different request"))
				return
			}
			s.writeJSON(w, http.StatusInternalServerError, errorBody("idempotency lookup failed"))
			return
		}
		if cached != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(cached.Status)
			_, _ = io.WriteString(w, cached.Response)
			return
		}

		recorder := &responseRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, r)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		if err := s.store.SaveIdempotency(IdempotencyRecord{
			APIKey:      apiKey,
			Key:         key,
			RequestHash: requestHash,
			Status:      status,
			Response:    recorder.buf.String(),
		}); err != nil {
			s.log.Error("persist idempotency record", "error", err.Error())
		}
	})
}

// withObservability records request metrics and the audit entry.
func (s *Server) withObservability(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &responseRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, r)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		observability.HTTP().ObserveRequest(r.Method, routeLabel(r), status, time.Since(start))
		if err := s.store.RecordAudit(apiKeyFrom(r.Context()), r.Method, r.URL.Path, status); err != nil {
			s.log.Error("persist audit record", "error", err.Error())
		}
	})
}

// routeLabel returns the chi route pattern for metrics labels. Raw URL paths
// embed account ids and would blow up label cardinality.
func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

// responseRecorder captures the status and body written by a handler.
type responseRecorder struct {
	http.ResponseWriter
	buf    bytes.Buffer
	status int
}

func (rr *responseRecorder) WriteHeader(status int) {
	rr.status = status
	rr.ResponseWriter.WriteHeader(status)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	rr.buf.Write(b)
	return rr.ResponseWriter.Write(b)
}
