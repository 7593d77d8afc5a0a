// Package gateway is the HTTP surface of the chat relay.
//
// DESIGN: Main request flow:
//   - handleChat():      gate -> session -> upstream -> stream relay
//   - handleSubscribe(): email capture with provider fallback
//
// Also includes health check, diag, and stats endpoints.
package gateway

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/dadknowsai/chat-relay/internal/beehiiv"
	"github.com/dadknowsai/chat-relay/internal/config"
	"github.com/dadknowsai/chat-relay/internal/openai"
	"github.com/dadknowsai/chat-relay/internal/store"
)

// Store is the persistence surface the gateway needs. Both operations
// are append-only.
type Store interface {
	CreateSession(ctx context.Context) (string, error)
	InsertMessage(ctx context.Context, msg store.Message) error
	Ping(ctx context.Context) error
}

// Gateway handles the chat relay's inbound HTTP requests.
type Gateway struct {
	cfg        *config.Config
	store      Store
	completer  *openai.Client
	newsletter *beehiiv.Client
	metrics    *metricsCollector
}

// New creates a Gateway.
func New(cfg *config.Config, st Store, completer *openai.Client, newsletter *beehiiv.Client) *Gateway {
	return &Gateway{
		cfg:        cfg,
		store:      st,
		completer:  completer,
		newsletter: newsletter,
		metrics:    newMetricsCollector(),
	}
}

// Routes returns the gateway's HTTP handler.
func (g *Gateway) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", g.handleChat)
	mux.HandleFunc("/api/subscribe", g.handleSubscribe)
	mux.HandleFunc("/healthz", g.handleHealth)
	mux.HandleFunc("/stats", g.handleStats)
	return mux
}

// writePlainError writes a plain-text error response, the chat
// endpoint's error surface.
func writePlainError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg))
}

// writeJSON writes a JSON response, the subscribe endpoint's surface.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// handleHealth reports store connectivity.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := g.store.Ping(ctx); err != nil {
		health["status"] = "degraded"
	}

	if health["status"] != "ok" {
		writeJSON(w, http.StatusServiceUnavailable, health)
		return
	}
	writeJSON(w, http.StatusOK, health)
}

// isLoopback reports whether the remote address is local. Operational
// endpoints are restricted to the machine the relay runs on.
func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
