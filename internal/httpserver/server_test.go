package httpserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ILLUVRSE/stark-signer/internal/credentials"
	"github.com/ILLUVRSE/stark-signer/internal/felt"
	"github.com/ILLUVRSE/stark-signer/internal/metrics"
	"github.com/ILLUVRSE/stark-signer/internal/models"
	"github.com/ILLUVRSE/stark-signer/internal/service"
	"github.com/ILLUVRSE/stark-signer/internal/signing"
)

const (
	testAPIKey     = "test-api-key"
	testPrivateKey = "0x139fe4d6f02e666e86a6f58e65060f115cd3c185bd9e98bd829636931458f79"
)

type testServer struct {
	router  http.Handler
	metrics *metrics.Metrics
	logs    *observer.ObservedLogs
}

func newTestServer(t *testing.T, curve signing.Curve) testServer {
	t.Helper()
	key, err := felt.Decode(testPrivateKey)
	require.NoError(t, err)
	creds, err := credentials.New(testAPIKey, key)
	require.NoError(t, err)

	core, logs := observer.New(zapcore.DebugLevel)
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	srv := New(service.New(creds, curve), creds, zap.New(core), m, Options{
		ServiceName: "stark-signer",
		Version:     "test",
	})
	return testServer{router: srv.Router(), metrics: m, logs: logs}
}

func doRequest(router http.Handler, method, path string, body []byte, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func authorized() string {
	return "ApiKey " + testAPIKey
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

func TestSignThenVerifyMatchesSelf(t *testing.T) {
	ts := newTestServer(t, signing.NewStarkCurve())

	rec := doRequest(ts.router, http.MethodPost, "/signatures", []byte(`{"hash":"0x1"}`), authorized())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	sig := decodeBody[models.SignResponse](t, rec)
	assert.False(t, sig.R.IsZero())
	assert.False(t, sig.S.IsZero())
	assert.Regexp(t, `"r":"0x[0-9a-f]+","s":"0x[0-9a-f]+"`, rec.Body.String())

	body, err := json.Marshal(models.VerifyRequest{Hash: "0x1", R: sig.R.String(), S: sig.S.String()})
	require.NoError(t, err)
	rec = doRequest(ts.router, http.MethodPost, "/signatures/verify", body, authorized())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	verdict := decodeBody[models.VerifyResponse](t, rec)
	assert.True(t, verdict.IsValid)

	rec = doRequest(ts.router, http.MethodGet, "/signers/self", nil, authorized())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	self := decodeBody[models.SelfSignerResponse](t, rec)
	assert.Equal(t, self.PublicKey, verdict.PublicKey)

	assert.Equal(t, float64(1), testutil.ToFloat64(ts.metrics.Signatures.WithLabelValues(metrics.OutcomeSigned)))
	assert.Equal(t, float64(1), testutil.ToFloat64(ts.metrics.Verifications.WithLabelValues(metrics.OutcomeValid)))
}

func TestVerifyOtherHashIsFalse(t *testing.T) {
	ts := newTestServer(t, signing.NewStarkCurve())

	rec := doRequest(ts.router, http.MethodPost, "/signatures", []byte(`{"hash":"0x1"}`), authorized())
	require.Equal(t, http.StatusOK, rec.Code)
	sig := decodeBody[models.SignResponse](t, rec)

	body, err := json.Marshal(models.VerifyRequest{Hash: "0x2", R: sig.R.String(), S: sig.S.String()})
	require.NoError(t, err)
	rec = doRequest(ts.router, http.MethodPost, "/signatures/verify", body, authorized())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	verdict := decodeBody[models.VerifyResponse](t, rec)
	assert.False(t, verdict.IsValid)
	assert.False(t, verdict.PublicKey.IsZero())
	assert.Equal(t, float64(1), testutil.ToFloat64(ts.metrics.Verifications.WithLabelValues(metrics.OutcomeInvalid)))
}

func TestProtectedRoutesRequireAPIKey(t *testing.T) {
	ts := newTestServer(t, signing.NewStarkCurve())

	routes := []struct {
		method string
		path   string
		body   []byte
	}{
		{http.MethodPost, "/signatures", []byte(`{"hash":"0x1"}`)},
		{http.MethodPost, "/signatures/verify", []byte(`{"hash":"0x1","r":"0x2","s":"0x3"}`)},
		{http.MethodGet, "/signers/self", nil},
	}
	headers := []string{
		"",
		"ApiKey wrong-key",
		"Bearer " + testAPIKey,
		testAPIKey,
		"ApiKey",
		"ApiKey  " + testAPIKey,
	}

	rejections := 0
	for _, route := range routes {
		for _, h := range headers {
			rec := doRequest(ts.router, route.method, route.path, route.body, h)
			require.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s with %q", route.method, route.path, h)
			assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
			rejections++
		}
	}
	assert.Equal(t, float64(rejections), testutil.ToFloat64(ts.metrics.AuthFailures))
}

func TestUnauthorizedBeforeDecoding(t *testing.T) {
	ts := newTestServer(t, signing.NewStarkCurve())

	rec := doRequest(ts.router, http.MethodPost, "/signatures", []byte(`{"hash":"not-hex"}`), "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
}

func TestSchemeIsCaseInsensitive(t *testing.T) {
	ts := newTestServer(t, signing.NewStarkCurve())

	rec := doRequest(ts.router, http.MethodGet, "/signers/self", nil, "apikey "+testAPIKey)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSignRejectsBadHash(t *testing.T) {
	ts := newTestServer(t, signing.NewStarkCurve())

	rec := doRequest(ts.router, http.MethodPost, "/signatures", []byte(`{"hash":"not-hex"}`), authorized())
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"bad request: hash: invalid field element encoding"}`, rec.Body.String())
	assert.Equal(t, float64(1), testutil.ToFloat64(ts.metrics.Signatures.WithLabelValues(metrics.OutcomeBadRequest)))
}

func TestInputRejectionIsNeverInternal(t *testing.T) {
	ts := newTestServer(t, signing.NewStarkCurve())

	cases := []struct {
		name string
		path string
		body string
		want string
	}{
		{"empty hash", "/signatures", `{"hash":""}`, "bad request: hash is required"},
		{"missing hash", "/signatures", `{}`, "bad request: hash is required"},
		{"prefix only", "/signatures", `{"hash":"0x"}`, "bad request: hash: invalid field element encoding"},
		{"out of field", "/signatures", `{"hash":"0x800000000000011000000000000000000000000000000000000000000000001"}`, "bad request: hash: invalid field element encoding"},
		{"bad r", "/signatures/verify", `{"hash":"0x1","r":"xyz","s":"0x3"}`, "bad request: r: invalid field element encoding"},
		{"bad s", "/signatures/verify", `{"hash":"0x1","r":"0x2","s":"0xg"}`, "bad request: s: invalid field element encoding"},
		{"missing s", "/signatures/verify", `{"hash":"0x1","r":"0x2"}`, "bad request: s is required"},
		{"empty body", "/signatures", ``, "bad request: request body is empty"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(ts.router, http.MethodPost, tc.path, []byte(tc.body), authorized())
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			resp := decodeBody[models.ErrorResponse](t, rec)
			assert.Equal(t, tc.want, resp.Error)
		})
	}
}

func TestMalformedJSON(t *testing.T) {
	ts := newTestServer(t, signing.NewStarkCurve())

	rec := doRequest(ts.router, http.MethodPost, "/signatures", []byte(`{"hash":`), authorized())
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody[models.ErrorResponse](t, rec)
	assert.True(t, strings.HasPrefix(resp.Error, "bad request: invalid request body"), resp.Error)

	rec = doRequest(ts.router, http.MethodPost, "/signatures", []byte(`{"hash":1}`), authorized())
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownFieldsIgnored(t *testing.T) {
	ts := newTestServer(t, signing.NewStarkCurve())

	rec := doRequest(ts.router, http.MethodPost, "/signatures", []byte(`{"hash":"0x1","note":"extra"}`), authorized())
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestBodyLimit(t *testing.T) {
	ts := newTestServer(t, signing.NewStarkCurve())

	body := []byte(`{"hash":"0x1","pad":"` + strings.Repeat("a", defaultMaxBodyBytes) + `"}`)
	rec := doRequest(ts.router, http.MethodPost, "/signatures", body, authorized())
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody[models.ErrorResponse](t, rec)
	assert.Equal(t, "bad request: request body exceeds 65536 bytes", resp.Error)
}

func TestHealthNeedsNoAuth(t *testing.T) {
	ts := newTestServer(t, signing.NewStarkCurve())

	rec := doRequest(ts.router, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","service":"stark-signer","version":"test"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, signing.NewStarkCurve())

	doRequest(ts.router, http.MethodGet, "/health", nil, "")
	rec := doRequest(ts.router, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `stark_signer_http_requests_total{method="GET",route="/health",status="200"} 1`)
}

func TestCurveFailureIsInternal(t *testing.T) {
	ts := newTestServer(t, failingCurve{err: errors.New("primitive exploded")})

	for _, tc := range []struct {
		method, path string
		body         []byte
	}{
		{http.MethodPost, "/signatures", []byte(`{"hash":"0x1"}`)},
		{http.MethodPost, "/signatures/verify", []byte(`{"hash":"0x1","r":"0x2","s":"0x3"}`)},
		{http.MethodGet, "/signers/self", nil},
	} {
		rec := doRequest(ts.router, tc.method, tc.path, tc.body, authorized())
		require.Equal(t, http.StatusInternalServerError, rec.Code, tc.path)
		assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
		assert.NotContains(t, rec.Body.String(), "exploded")
	}

	failures := ts.logs.FilterMessage("request failed").All()
	require.Len(t, failures, 3)
	assert.Contains(t, failures[0].ContextMap()["error"], "primitive exploded")
	assert.Equal(t, float64(1), testutil.ToFloat64(ts.metrics.Signatures.WithLabelValues(metrics.OutcomeError)))
}

func TestRequestIDAndLogging(t *testing.T) {
	ts := newTestServer(t, signing.NewStarkCurve())

	rec := doRequest(ts.router, http.MethodGet, "/signers/self", nil, authorized())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	rec = httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-Id"))

	served := ts.logs.FilterMessage("request served").All()
	require.Len(t, served, 2)
	assert.Equal(t, "/signers/self", served[0].ContextMap()["route"])
	assert.Equal(t, "abc-123", served[1].ContextMap()["request_id"])
	for _, entry := range ts.logs.All() {
		for _, v := range entry.ContextMap() {
			if s, ok := v.(string); ok {
				assert.NotContains(t, s, testAPIKey)
			}
		}
	}
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t, signing.NewStarkCurve())

	rec := doRequest(ts.router, http.MethodGet, "/nope", nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"not found"}`, rec.Body.String())
}

type failingCurve struct {
	err error
}

func (c failingCurve) Sign(_, _ felt.Felt) (signing.Signature, error) {
	return signing.Signature{}, c.err
}

func (c failingCurve) PublicKey(_ felt.Felt) (felt.Felt, error) {
	return felt.Felt{}, c.err
}

func (c failingCurve) Verify(_, _ felt.Felt, _ signing.Signature) (bool, error) {
	return false, c.err
}
