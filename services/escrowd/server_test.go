package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"workledger/escrow"
	"workledger/ledger"
	"workledger/observability/logging"
)

const (
	testAPIKey    = "test-key"
	testAPISecret = "test-secret"
)

func testAddr(b byte) ledger.Address {
	var a ledger.Address
	a[19] = b
	return a
}

// stubGateway serves seeded accounts and counts submissions.
type stubGateway struct {
	accounts map[ledger.AccountID][]byte
	submits  int
}

func (g *stubGateway) Submit(ctx context.Context, instructions []ledger.Instruction, signers []ledger.Address) (ledger.ConfirmationID, error) {
	g.submits++
	return ledger.ConfirmationID(fmt.Sprintf("conf-%d", g.submits)), nil
}

func (g *stubGateway) ReadAccount(ctx context.Context, id ledger.AccountID) ([]byte, error) {
	raw, ok := g.accounts[id]
	if !ok {
		return nil, nil
	}
	return raw, nil
}

func (g *stubGateway) QueryAccounts(ctx context.Context, program ledger.Address, filters []ledger.Filter) ([]ledger.AccountEntry, error) {
	return nil, nil
}

func newTestServer(t *testing.T) (*Server, *stubGateway) {
	t.Helper()
	return newTestServerWithLogger(t, logging.Setup("escrowd-test", "test"))
}

func newTestServerWithLogger(t *testing.T, log *slog.Logger) (*Server, *stubGateway) {
	t.Helper()
	gw := &stubGateway{accounts: make(map[ledger.AccountID][]byte)}
	coordinator := escrow.New(gw, testAddr(0xEE))

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	store, err := NewStoreWithDB(db)
	require.NoError(t, err)

	auth := NewAuthenticator([]APIKeyConfig{{Key: testAPIKey, Secret: testAPISecret}}, 2*time.Minute, nil)
	srv := NewServer(ServerConfig{
		Coordinator: coordinator,
		Store:       store,
		Auth:        auth,
		RatePerMin:  1000,
		Log:         log,
	})
	return srv, gw
}

func seedEscrow(t *testing.T, gw *stubGateway, id ledger.AccountID, state uint8) {
	t.Helper()
	raw, err := ledger.EncodeRecord(ledger.RecordEscrow, &ledger.EscrowRecord{
		Depositor:   testAddr(1),
		Beneficiary: testAddr(2),
		Arbitrator:  testAddr(3),
		Amount:      big.NewInt(1_000_000),
		State:       state,
		CreatedAt:   1_700_000_000,
	})
	require.NoError(t, err)
	gw.accounts[id] = raw
}

func signedRequest(t *testing.T, method, path string, body []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	sig := ComputeSignature(testAPISecret, timestamp, method, path, body)
	req.Header.Set(headerAPIKey, testAPIKey)
	req.Header.Set(headerTimestamp, timestamp)
	req.Header.Set(headerSignature, hex.EncodeToString(sig))
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func TestRequestsWithoutCredentialsRejected(t *testing.T) {
	srv, gw := newTestServer(t)
	id := ledger.AccountID{0x01}
	seedEscrow(t, gw, id, 0)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/escrows/"+id.String(), nil)
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	bad := signedRequest(t, http.MethodGet, "/escrows/"+id.String(), nil)
	bad.Header.Set(headerSignature, "deadbeef")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, bad)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetEscrow(t *testing.T) {
	srv, gw := newTestServer(t)
	id := ledger.AccountID{0x01}
	seedEscrow(t, gw, id, 0)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, signedRequest(t, http.MethodGet, "/escrows/"+id.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "pending", resp["state"])
	require.Equal(t, "1000000", resp["amount"])

	rec = httptest.NewRecorder()
	missing := ledger.AccountID{0x7F}
	srv.Handler().ServeHTTP(rec, signedRequest(t, http.MethodGet, "/escrows/"+missing.String(), nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelMapsInvalidStateToConflict(t *testing.T) {
	srv, gw := newTestServer(t)
	id := ledger.AccountID{0x02}
	seedEscrow(t, gw, id, 2) // cancelled

	body, _ := json.Marshal(map[string]string{"caller": testAddr(1).String()})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, signedRequest(t, http.MethodPost, "/escrows/"+id.String()+"/cancel", body))
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestCancelMapsUnauthorizedToForbidden(t *testing.T) {
	srv, gw := newTestServer(t)
	id := ledger.AccountID{0x03}
	seedEscrow(t, gw, id, 0)

	body, _ := json.Marshal(map[string]string{"caller": testAddr(9).String()})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, signedRequest(t, http.MethodPost, "/escrows/"+id.String()+"/cancel", body))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestIdempotencyReplayAndConflict(t *testing.T) {
	srv, gw := newTestServer(t)
	id := ledger.AccountID{0x04}
	seedEscrow(t, gw, id, 0)

	path := "/escrows/" + id.String() + "/dispute"
	body, _ := json.Marshal(map[string]string{
		"caller": testAddr(1).String(),
		"reason": "work never delivered",
	})

	first := signedRequest(t, http.MethodPost, path, body)
	first.Header.Set("Idempotency-Key", "dispute-1")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, first)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, gw.submits)
	firstBody := rec.Body.String()

	replay := signedRequest(t, http.MethodPost, path, body)
	replay.Header.Set("Idempotency-Key", "dispute-1")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, replay)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, firstBody, rec.Body.String())
	require.Equal(t, 1, gw.submits, "replay must not resubmit")

	otherBody, _ := json.Marshal(map[string]string{
		"caller": testAddr(1).String(),
		"reason": "different complaint",
	})
	conflict := signedRequest(t, http.MethodPost, path, otherBody)
	conflict.Header.Set("Idempotency-Key", "dispute-1")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, conflict)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, 1, gw.submits)
}

func TestHealthzIsPublic(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthenticatorRejectsStaleTimestamp(t *testing.T) {
	auth := NewAuthenticator([]APIKeyConfig{{Key: testAPIKey, Secret: testAPISecret}}, time.Minute, nil)
	stale := strconv.FormatInt(time.Now().Add(-10*time.Minute).Unix(), 10)
	sig := ComputeSignature(testAPISecret, stale, http.MethodGet, "/escrows/x", nil)
	_, err := auth.Verify(testAPIKey, stale, hex.EncodeToString(sig), http.MethodGet, "/escrows/x", nil)
	require.ErrorIs(t, err, errStaleTimestamp)
}

func seedDisputedEscrow(t *testing.T, gw *stubGateway, id ledger.AccountID) {
	t.Helper()
	raw, err := ledger.EncodeRecord(ledger.RecordEscrow, &ledger.EscrowRecord{
		Depositor:     testAddr(1),
		Beneficiary:   testAddr(2),
		Arbitrator:    testAddr(3),
		Amount:        big.NewInt(1_000_000),
		State:         0,
		CreatedAt:     1_700_000_000,
		DisputeReason: "work never delivered",
	})
	require.NoError(t, err)
	gw.accounts[id] = raw
}

func TestSubmitEvidenceEndpoint(t *testing.T) {
	srv, gw := newTestServer(t)
	id := ledger.AccountID{0x05}
	seedDisputedEscrow(t, gw, id)
	path := "/escrows/" + id.String() + "/evidence"

	body, _ := json.Marshal(map[string]string{
		"submitter": testAddr(1).String(),
		"kind":      "screenshot",
		"data":      "ipfs://bafkreia",
	})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, signedRequest(t, http.MethodPost, path, body))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, 1, gw.submits)

	outsider, _ := json.Marshal(map[string]string{
		"submitter": testAddr(9).String(),
		"kind":      "log",
		"data":      "ipfs://bafkreib",
	})
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, signedRequest(t, http.MethodPost, path, outsider))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, 1, gw.submits)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, signedRequest(t, http.MethodGet, path, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string][]map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Empty(t, resp["evidence"])
}

func TestMetricsUseRoutePatterns(t *testing.T) {
	srv, gw := newTestServer(t)
	id := ledger.AccountID{0x06}
	seedEscrow(t, gw, id, 0)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, signedRequest(t, http.MethodGet, "/escrows/"+id.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	metrics := rec.Body.String()
	require.Contains(t, metrics, `route="/escrows/{id}"`)
	require.Contains(t, metrics, `operation="get_escrow"`)
	require.NotContains(t, metrics, id.String())
}

func TestAuthFailureLogRedactsAPIKey(t *testing.T) {
	var buf bytes.Buffer
	srv, _ := newTestServerWithLogger(t, slog.New(slog.NewJSONHandler(&buf, nil)))

	req := signedRequest(t, http.MethodGet, "/escrows/0x01", nil)
	req.Header.Set(headerSignature, "deadbeef")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	logged := buf.String()
	require.True(t, strings.Contains(logged, logging.RedactedValue))
	require.False(t, strings.Contains(logged, testAPIKey))
}
