// Chat endpoint: the gated streaming relay.
//
// One POST handler does the whole flow: usage gate, session resolution,
// user-turn logging, upstream completion call, and the token relay with
// its dual sink (client stream + accumulation for the assistant log).
package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dadknowsai/chat-relay/internal/config"
	"github.com/dadknowsai/chat-relay/internal/openai"
	"github.com/dadknowsai/chat-relay/internal/store"
)

type chatRequest struct {
	Messages []json.RawMessage `json:"messages"`
}

func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writePlainError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	requestID := uuid.New().String()
	g.metrics.RecordRequest()

	if !g.completer.HasAPIKey() {
		writePlainError(w, "OPENAI_API_KEY missing", http.StatusInternalServerError)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, config.MaxRequestBodySize)
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writePlainError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	messages := openai.FilterMessages(req.Messages)

	// Gate before anything stateful. Rejected requests must not create
	// sessions or consume a counter increment.
	gate := readGateState(r)
	if !gate.admitted() {
		g.metrics.RecordGateRejection()
		log.Info().Str("request_id", requestID).Int("count", gate.count).Msg("soft wall rejection")
		writePlainError(w, config.GateRejectionMessage, http.StatusTooManyRequests)
		return
	}

	sessionID, err := g.ensureSession(r)
	if err != nil {
		log.Error().Err(err).Str("request_id", requestID).Msg("session resolution failed")
		writePlainError(w, "Failed to start session", http.StatusInternalServerError)
		return
	}

	// Only the latest user turn: prior turns were logged by the
	// requests that carried them.
	if lastUser, ok := openai.LastUserMessage(messages); ok && lastUser.Content != "" {
		g.logMessage(requestID, store.Message{
			SessionID: sessionID,
			Role:      openai.RoleUser,
			Content:   lastUser.Content,
			Meta: map[string]any{
				"from":       "api/chat",
				"gated":      !gate.captured,
				"priorCount": gate.count,
			},
		})
	}

	upstream, err := g.completer.StreamChat(r.Context(), messages)
	if err != nil {
		var ue *openai.UpstreamError
		if errors.As(err, &ue) {
			log.Error().Int("status", ue.StatusCode).Str("request_id", requestID).Msg("upstream error response")
			writePlainError(w, ue.Body, http.StatusInternalServerError)
			return
		}
		log.Error().Err(err).Str("request_id", requestID).Msg("upstream request failed")
		writePlainError(w, "Upstream error", http.StatusInternalServerError)
		return
	}

	// Cookies ride along with the streamed body, so they must be set
	// before the status line goes out.
	g.setCookie(w, config.CounterCookieName, strconv.Itoa(gate.nextCount()), config.CounterCookieMaxAge)
	g.setSessionCookie(w, sessionID)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	result := g.relayStream(w, r, upstream)
	if result.aborted {
		g.metrics.RecordStreamAborted()
		log.Info().Str("request_id", requestID).Msg("stream aborted, partial answer discarded")
		return
	}
	g.metrics.RecordStreamCompleted()

	if strings.TrimSpace(result.answer) != "" {
		model := config.CompletionModel
		g.logMessage(requestID, store.Message{
			SessionID:  sessionID,
			Role:       openai.RoleAssistant,
			Content:    result.answer,
			Model:      &model,
			TokenUsage: countTokens(result.answer),
			Tags:       []string{"streamed"},
			Meta:       map[string]any{"streamed": true},
		})
	}
}

// ensureSession returns the session id from the request cookie, or
// creates a new session record when none is present. A store failure
// here aborts the request: streaming without a session would orphan the
// conversation log.
func (g *Gateway) ensureSession(r *http.Request) (string, error) {
	if id := sessionIDFromRequest(r); id != "" {
		return id, nil
	}
	return g.store.CreateSession(r.Context())
}
