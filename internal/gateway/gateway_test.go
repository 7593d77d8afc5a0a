package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dadknowsai/chat-relay/internal/beehiiv"
	"github.com/dadknowsai/chat-relay/internal/config"
	"github.com/dadknowsai/chat-relay/internal/openai"
	"github.com/dadknowsai/chat-relay/internal/store"
)

type pingFailStore struct {
	fakeStore
}

func (s *pingFailStore) Ping(_ context.Context) error { return errors.New("pool exhausted") }

func newBareGateway(st Store) *Gateway {
	return New(&config.Config{}, st, openai.NewClient("test-key"), beehiiv.NewClient("", ""))
}

func TestHealth_OK(t *testing.T) {
	g := newBareGateway(&fakeStore{})

	rec := httptest.NewRecorder()
	g.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
}

func TestHealth_DegradedWhenStoreUnreachable(t *testing.T) {
	g := newBareGateway(&pingFailStore{})

	rec := httptest.NewRecorder()
	g.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "degraded", health["status"])
}

func TestIsLoopback(t *testing.T) {
	cases := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:54321", true},
		{"[::1]:54321", true},
		{"127.0.0.1", true},
		{"192.168.1.10:80", false},
		{"8.8.8.8:443", false},
		{"example.com:80", false},
		{"", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, isLoopback(tc.addr), "addr %q", tc.addr)
	}
}

func TestStats_RemoteForbidden(t *testing.T) {
	g := newBareGateway(&fakeStore{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.RemoteAddr = "203.0.113.9:1234"
	g.handleStats(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestStats_CountersReported(t *testing.T) {
	g := newBareGateway(&fakeStore{})
	g.metrics.RecordRequest()
	g.metrics.RecordRequest()
	g.metrics.RecordGateRejection()
	g.metrics.RecordTokensRelayed(7)
	g.metrics.RecordSubscribeAccepted()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	g.handleStats(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var stats StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(2), stats.Chat.TotalRequests)
	assert.Equal(t, int64(1), stats.Chat.GateRejections)
	assert.Equal(t, int64(7), stats.Chat.TokensRelayed)
	assert.Equal(t, int64(1), stats.Subscribe.Accepted)
}

func TestRoutes_UnknownPathIs404(t *testing.T) {
	g := newBareGateway(&fakeStore{})
	srv := httptest.NewServer(g.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/nope")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

var _ Store = (*store.Store)(nil)
