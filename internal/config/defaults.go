// Package config - defaults.go centralizes fixed policy values.
//
// These are deliberate constants, not configuration: every deployment of
// the soft wall uses the same threshold, cookie names, and lifetimes.
package config

import "time"

// =============================================================================
// USAGE GATE
// =============================================================================

// FreeMessageLimit is the number of chat requests a browser gets before
// the soft wall rejects further use until an email is captured.
const FreeMessageLimit = 3

// GateRejectionMessage is the plain-text body returned on gate rejection.
const GateRejectionMessage = "You've reached the free limit. Please sign up to keep chatting."

// =============================================================================
// COOKIES
// =============================================================================

// SessionCookieName carries the chat session id.
const SessionCookieName = "dkai_sid"

// CounterCookieName carries the client-held usage counter.
const CounterCookieName = "dkai_c"

// CapturedCookieName is the unlock sentinel set after email capture.
const CapturedCookieName = "dkai_captured"

// CapturedCookieValue is the only value treated as "captured".
const CapturedCookieValue = "1"

// CounterCookieMaxAge bounds the usage counter to a rolling day.
const CounterCookieMaxAge = 24 * time.Hour

// SessionCookieMaxAge bounds a chat session's cookie lifetime.
const SessionCookieMaxAge = 14 * 24 * time.Hour

// CapturedCookieMaxAge keeps the unlock sentinel for a year.
const CapturedCookieMaxAge = 365 * 24 * time.Hour

// =============================================================================
// UPSTREAM COMPLETIONS
// =============================================================================

// CompletionModel is the fixed upstream model identifier.
const CompletionModel = "gpt-4o-mini"

// CompletionTemperature is the fixed sampling temperature.
const CompletionTemperature = 0.3

// SystemPersona is prepended to every upstream request as the system turn.
const SystemPersona = "You are DadKnowsAI — a calm, practical helper for adults 45+. Be concise, step-by-step, and down-to-earth."

// =============================================================================
// SUBSCRIPTIONS
// =============================================================================

// DefaultUTMSource tags subscriptions that arrive without a source.
const DefaultUTMSource = "chat_soft_wall"

// MaxErrorDetailLen caps provider error bodies echoed back to the client.
const MaxErrorDetailLen = 500

// =============================================================================
// HTTP AND I/O
// =============================================================================

// DefaultBufferSize is the standard I/O buffer size for the stream relay.
const DefaultBufferSize = 4096

// MaxRequestBodySize caps inbound JSON bodies (1MB).
const MaxRequestBodySize = 1 << 20

// DefaultServerReadTimeout for the HTTP server.
const DefaultServerReadTimeout = 30 * time.Second

// DefaultServerWriteTimeout for the HTTP server (safe for streaming).
const DefaultServerWriteTimeout = 10 * time.Minute

// LogWriteTimeout bounds each fire-and-forget store insert.
const LogWriteTimeout = 5 * time.Second
