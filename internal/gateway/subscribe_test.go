package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dadknowsai/chat-relay/internal/beehiiv"
	"github.com/dadknowsai/chat-relay/internal/config"
	"github.com/dadknowsai/chat-relay/internal/openai"
)

// newSubscribeGateway wires a gateway at a fake provider and reports how
// many requests reached it.
func newSubscribeGateway(t *testing.T, providerStatus int, providerBody string) (*Gateway, *atomic.Int64) {
	t.Helper()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(providerStatus)
		_, _ = w.Write([]byte(providerBody))
	}))
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		CookieSecure:         true,
		BeehiivAPIKey:        "bee_secret_123",
		BeehiivPublicationID: "pub_abc123",
	}
	newsletter := beehiiv.NewClient(cfg.BeehiivAPIKey, cfg.BeehiivPublicationID, beehiiv.WithBaseURL(srv.URL))
	g := New(cfg, &fakeStore{}, openai.NewClient("test-key"), newsletter)
	return g, &hits
}

func postSubscribe(t *testing.T, g *Gateway, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/subscribe", strings.NewReader(body))
	g.handleSubscribe(rec, req)
	return rec
}

func decodeSubscribe(t *testing.T, rec *httptest.ResponseRecorder) subscribeResponse {
	t.Helper()
	var resp subscribeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestSubscribe_Success(t *testing.T) {
	g, hits := newSubscribeGateway(t, http.StatusCreated, `{"data":{"id":"sub_1"}}`)

	rec := postSubscribe(t, g, `{"email":"Dad@Example.COM"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeSubscribe(t, rec).OK)
	assert.GreaterOrEqual(t, hits.Load(), int64(1))

	captured := cookieByName(t, rec.Result(), config.CapturedCookieName)
	require.NotNil(t, captured)
	assert.Equal(t, config.CapturedCookieValue, captured.Value)
	assert.Equal(t, int(config.CapturedCookieMaxAge.Seconds()), captured.MaxAge)
}

func TestSubscribe_AlreadySubscribedCountsAsSuccess(t *testing.T) {
	g, _ := newSubscribeGateway(t, http.StatusConflict, `{"error":"exists"}`)

	rec := postSubscribe(t, g, `{"email":"dad@example.com"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeSubscribe(t, rec).OK)
	assert.NotNil(t, cookieByName(t, rec.Result(), config.CapturedCookieName))
}

func TestSubscribe_InvalidEmailNeverReachesProvider(t *testing.T) {
	g, hits := newSubscribeGateway(t, http.StatusCreated, `{}`)

	for _, body := range []string{
		`{"email":""}`,
		`{"email":"   "}`,
		`{"email":"not-an-email"}`,
		`{"email":"missing@dot"}`,
		`{"email":"two words@example.com"}`,
	} {
		rec := postSubscribe(t, g, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %s", body)
		assert.Equal(t, "invalid_email", decodeSubscribe(t, rec).Error, "body %s", body)
	}
	assert.Zero(t, hits.Load())
}

func TestSubscribe_InvalidJSON(t *testing.T) {
	g, hits := newSubscribeGateway(t, http.StatusCreated, `{}`)

	rec := postSubscribe(t, g, `{"email":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_json", decodeSubscribe(t, rec).Error)
	assert.Zero(t, hits.Load())
}

func TestSubscribe_HoneypotFakesSuccess(t *testing.T) {
	g, hits := newSubscribeGateway(t, http.StatusCreated, `{}`)

	rec := postSubscribe(t, g, `{"email":"bot@example.com","honeypot":"gotcha"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeSubscribe(t, rec).OK)
	assert.Zero(t, hits.Load(), "honeypot submissions must not reach the provider")
	assert.NotNil(t, cookieByName(t, rec.Result(), config.CapturedCookieName))
}

func TestSubscribe_ProviderFailureSurfaced(t *testing.T) {
	g, _ := newSubscribeGateway(t, http.StatusInternalServerError, "upstream exploded")

	rec := postSubscribe(t, g, `{"email":"dad@example.com"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeSubscribe(t, rec)
	assert.False(t, resp.OK)
	assert.Equal(t, "beehiiv_error", resp.Error)
	assert.Equal(t, http.StatusInternalServerError, resp.Status)
	assert.Equal(t, "upstream exploded", resp.Detail)
	assert.Nil(t, cookieByName(t, rec.Result(), config.CapturedCookieName), "failures must not unlock the wall")
}

func TestSubscribe_NotConfigured(t *testing.T) {
	cfg := &config.Config{CookieSecure: true}
	g := New(cfg, &fakeStore{}, openai.NewClient("test-key"), beehiiv.NewClient("", ""))

	rec := postSubscribe(t, g, `{"email":"dad@example.com"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "beehiiv_not_configured", decodeSubscribe(t, rec).Error)
}

func TestSubscribe_MethodNotAllowed(t *testing.T) {
	g, _ := newSubscribeGateway(t, http.StatusCreated, `{}`)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/subscribe", nil)
	g.handleSubscribe(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSubscribe_DiagNeverLeaksKey(t *testing.T) {
	g, _ := newSubscribeGateway(t, http.StatusCreated, `{}`)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/subscribe", nil)
	g.handleSubscribe(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "bee_secret_123")

	var diag map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &diag))
	assert.Equal(t, true, diag["hasKey"])
	assert.Equal(t, true, diag["hasV2Pub"])
	assert.Equal(t, "pub_", diag["pubPrefix"])
}
