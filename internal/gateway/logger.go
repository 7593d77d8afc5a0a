// Conversation logger: fire-and-forget persistence of chat turns.
//
// Inserts run on a detached context so they survive the request
// ending. Failures go to the operational log only; they never reach
// the client or change the streamed response's status.
package gateway

import (
	"context"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog/log"

	"github.com/dadknowsai/chat-relay/internal/config"
	"github.com/dadknowsai/chat-relay/internal/store"
)

// logMessage persists one conversation turn asynchronously.
func (g *Gateway) logMessage(requestID string, msg store.Message) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), config.LogWriteTimeout)
		defer cancel()

		if err := g.store.InsertMessage(ctx, msg); err != nil {
			log.Error().
				Err(err).
				Str("request_id", requestID).
				Str("role", msg.Role).
				Msg("message log failed")
			return
		}
		g.metrics.RecordMessageLogged()
	}()
}

var (
	encoderOnce sync.Once
	encoder     *tiktoken.Tiktoken
)

// countTokens estimates token usage for a logged assistant turn.
// Returns nil when no encoder is available for the model; token_usage
// stays NULL in that case.
func countTokens(text string) *int {
	encoderOnce.Do(func() {
		enc, err := tiktoken.EncodingForModel(config.CompletionModel)
		if err != nil {
			log.Warn().Err(err).Str("model", config.CompletionModel).Msg("token encoder unavailable")
			return
		}
		encoder = enc
	})
	if encoder == nil {
		return nil
	}
	n := len(encoder.Encode(text, nil, nil))
	return &n
}
