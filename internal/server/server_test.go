package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/Mohsinsiddi/ctfactory/internal/registry"
)

var (
	alice = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob   = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, reg registry.Registry, opts ...Option) *Server {
	t.Helper()
	if reg == nil {
		reg = registry.NewLedger()
	}
	s := New(reg, opts...)
	t.Cleanup(s.Close)
	return s
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type listResponse struct {
	Tokens []tokenJSON `json:"tokens"`
	Count  int         `json:"count"`
}

// ---------------------------------------------------------------------------
// Reads and writes
// ---------------------------------------------------------------------------

func TestCreateAndQuery(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/api/tokens", createRequest{
		Name: "  Secret Coin ", Symbol: "sc", Supply: "500", Creator: alice.Hex(),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[tokenJSON](t, rec)
	assert.Equal(t, "Secret Coin", created.Name)
	assert.Equal(t, "SC", created.Symbol)
	assert.Equal(t, "500", created.TotalSupply)
	assert.Equal(t, alice.Hex(), created.Creator)

	rec = do(t, s, http.MethodPost, "/api/tokens", createRequest{
		Name: "Bob Token", Symbol: "BOB", Creator: bob.Hex(),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "1000000000", decode[tokenJSON](t, rec).TotalSupply)

	rec = do(t, s, http.MethodGet, "/api/tokens", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[listResponse](t, rec)
	require.Equal(t, 2, all.Count)
	assert.Equal(t, "SC", all.Tokens[0].Symbol)
	assert.Equal(t, "BOB", all.Tokens[1].Symbol)

	rec = do(t, s, http.MethodGet, "/api/tokens?creator="+bob.Hex(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	mine := decode[listResponse](t, rec)
	require.Len(t, mine.Tokens, 1)
	assert.Equal(t, "Bob Token", mine.Tokens[0].Name)

	rec = do(t, s, http.MethodGet, "/api/tokens/count", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":2}`, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/api/tokens/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	one := decode[tokenJSON](t, rec)
	require.NotNil(t, one.Index)
	assert.Equal(t, uint64(1), *one.Index)
	assert.Equal(t, "BOB", one.Symbol)

	assert.Equal(t, uint64(2), s.Counter().Value())
}

func TestGetTokenErrors(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/api/tokens/0", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "index_out_of_range", decode[errorEnvelope](t, rec).Error.Code)

	rec = do(t, s, http.MethodGet, "/api/tokens/-1", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_index", decode[errorEnvelope](t, rec).Error.Code)

	rec = do(t, s, http.MethodGet, "/api/tokens?creator=bogus", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_creator", decode[errorEnvelope](t, rec).Error.Code)
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name string
		body createRequest
		code string
	}{
		{"empty name", createRequest{Name: "   ", Symbol: "X", Creator: alice.Hex()}, "invalid_name"},
		{"empty symbol", createRequest{Name: "X", Symbol: " ", Creator: alice.Hex()}, "invalid_symbol"},
		{"long symbol", createRequest{Name: "X", Symbol: "TOOLONG", Creator: alice.Hex()}, "invalid_symbol"},
		{"negative supply", createRequest{Name: "X", Symbol: "X", Supply: "-5", Creator: alice.Hex()}, "invalid_supply"},
		{"non numeric supply", createRequest{Name: "X", Symbol: "X", Supply: "lots", Creator: alice.Hex()}, "invalid_supply"},
		{"missing creator", createRequest{Name: "X", Symbol: "X"}, "invalid_creator"},
		{"bad creator", createRequest{Name: "X", Symbol: "X", Creator: "0x123"}, "invalid_creator"},
	}

	s := newTestServer(t, nil, WithWriteLimit(rate.Inf, 0))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/api/tokens", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			body := decode[errorEnvelope](t, rec)
			assert.Equal(t, tt.code, body.Error.Code)
			assert.NotEmpty(t, body.Error.RequestID)
		})
	}

	rec := do(t, s, http.MethodGet, "/api/tokens/count", nil)
	assert.JSONEq(t, `{"count":0}`, rec.Body.String())
	assert.Equal(t, uint64(0), s.Counter().Value())
}

func TestCreateMalformedBody(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/tokens", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decode[errorEnvelope](t, rec).Error.Code)
}

// failingRegistry fails every creation with a fixed error.
type failingRegistry struct {
	registry.Registry
	err error
}

func (f failingRegistry) CreateToken(context.Context, common.Address, string, string, *big.Int) (*registry.TokenRecord, error) {
	return nil, f.err
}

func TestCreateBackendFailures(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{
			name:    "reverted without reason",
			err:     &registry.FinalizationError{TxHash: common.HexToHash("0x01")},
			status:  http.StatusBadGateway,
			code:    "finalization_failed",
			message: "transaction failed",
		},
		{
			name:    "receipt timeout",
			err:     &registry.FinalizationError{Cause: errors.New("receipt not found")},
			status:  http.StatusBadGateway,
			code:    "finalization_failed",
			message: "receipt not found",
		},
		{
			name:    "rejected by node",
			err:     registry.Submissionf("insufficient funds"),
			status:  http.StatusServiceUnavailable,
			code:    "submission_failed",
			message: "insufficient funds",
		},
		{
			name:    "revert mapped to validation",
			err:     &registry.SubmissionError{Cause: registry.ErrInvalidName},
			status:  http.StatusBadRequest,
			code:    "invalid_name",
			message: "invalid token name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, failingRegistry{Registry: registry.NewLedger(), err: tt.err})
			rec := do(t, s, http.MethodPost, "/api/tokens", createRequest{Name: "N", Symbol: "S", Creator: alice.Hex()})
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			body := decode[errorEnvelope](t, rec)
			assert.Equal(t, tt.code, body.Error.Code)
			assert.Equal(t, tt.message, body.Error.Message)
			assert.Equal(t, uint64(0), s.Counter().Value())
		})
	}
}

func TestWriteRateLimit(t *testing.T) {
	s := newTestServer(t, nil, WithWriteLimit(rate.Every(time.Hour), 1))
	body := createRequest{Name: "N", Symbol: "S", Creator: alice.Hex()}

	require.Equal(t, http.StatusCreated, do(t, s, http.MethodPost, "/api/tokens", body).Code)
	rec := do(t, s, http.MethodPost, "/api/tokens", body)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", decode[errorEnvelope](t, rec).Error.Code)

	// reads are never throttled
	for range 5 {
		assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/tokens", nil).Code)
	}
}

// ---------------------------------------------------------------------------
// Ops endpoints
// ---------------------------------------------------------------------------

func TestHealthzAndMetrics(t *testing.T) {
	s := newTestServer(t, nil, WithBackend("memory"))

	rec := do(t, s, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","backend":"memory","tokens":0}`, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `ctfactory_api_requests_total{method="GET",route="/healthz",status="200"} 1`)
}

func TestRequestIDEchoed(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/tokens/count", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))

	rec = do(t, s, http.MethodGet, "/api/tokens/count", nil)
	assert.Len(t, rec.Header().Get("X-Request-ID"), 36)
}

func TestRefreshFeed(t *testing.T) {
	s := newTestServer(t, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/refresh"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var ev refreshEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, uint64(0), ev.Refresh)

	rec := do(t, s, http.MethodPost, "/api/tokens", createRequest{Name: "N", Symbol: "S", Creator: alice.Hex()})
	require.Equal(t, http.StatusCreated, rec.Code)

	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, uint64(1), ev.Refresh)
}
