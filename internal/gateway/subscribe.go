// Subscribe endpoint: email capture behind the soft wall.
//
// POST forwards a validated email to the newsletter provider and sets
// the year-long unlock cookie on success. GET is a credentials diag
// that never echoes the key itself.
package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dadknowsai/chat-relay/internal/beehiiv"
	"github.com/dadknowsai/chat-relay/internal/config"
)

// emailPattern is a deliberately loose local@domain-with-dot check; the
// provider does the real validation.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type subscribeRequest struct {
	Email    string `json:"email"`
	Source   string `json:"source"`
	Honeypot string `json:"honeypot"`
}

type subscribeResponse struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	Status int    `json:"status,omitempty"`
	Detail string `json:"detail,omitempty"`
	Warn   string `json:"warn,omitempty"`
}

func (g *Gateway) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		g.handleSubscribeDiag(w, r)
	case http.MethodPost:
		g.handleSubscribePost(w, r)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, subscribeResponse{OK: false, Error: "method_not_allowed"})
	}
}

func (g *Gateway) handleSubscribePost(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, config.MaxRequestBodySize)

	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, subscribeResponse{OK: false, Error: "invalid_json"})
		return
	}

	// Bot trap: a filled honeypot gets a convincing success and no
	// provider call.
	if req.Honeypot != "" {
		log.Info().Msg("subscribe honeypot tripped")
		g.setCookie(w, config.CapturedCookieName, config.CapturedCookieValue, config.CapturedCookieMaxAge)
		writeJSON(w, http.StatusOK, subscribeResponse{OK: true})
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !emailPattern.MatchString(email) {
		writeJSON(w, http.StatusBadRequest, subscribeResponse{OK: false, Error: "invalid_email"})
		return
	}

	if !g.newsletter.Configured() {
		writeJSON(w, http.StatusInternalServerError, subscribeResponse{OK: false, Error: "beehiiv_not_configured"})
		return
	}

	err := g.newsletter.Subscribe(r.Context(), beehiiv.Subscription{
		Email:     email,
		UTMSource: req.Source,
	})
	if err != nil {
		g.metrics.RecordSubscribeFailed()
		var pe *beehiiv.ProviderError
		if errors.As(err, &pe) {
			writeJSON(w, pe.StatusCode, subscribeResponse{
				OK:     false,
				Error:  "beehiiv_error",
				Status: pe.StatusCode,
				Detail: pe.Detail,
			})
			return
		}
		log.Error().Err(err).Msg("subscribe forwarding failed")
		writeJSON(w, http.StatusInternalServerError, subscribeResponse{OK: false, Error: "subscribe_error"})
		return
	}

	g.metrics.RecordSubscribeAccepted()
	g.setCookie(w, config.CapturedCookieName, config.CapturedCookieValue, config.CapturedCookieMaxAge)
	writeJSON(w, http.StatusOK, subscribeResponse{OK: true})
}

// handleSubscribeDiag reports whether provider credentials look sane
// without leaking them.
func (g *Gateway) handleSubscribeDiag(w http.ResponseWriter, _ *http.Request) {
	pub := g.cfg.BeehiivPublicationID
	prefix := pub
	if len(prefix) > 4 {
		prefix = prefix[:4]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"hasKey":    g.cfg.BeehiivAPIKey != "",
		"hasV2Pub":  strings.HasPrefix(pub, "pub_"),
		"pubPrefix": prefix,
	})
}
