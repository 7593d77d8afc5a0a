package gateway

import (
	"net/http"
	"net/url"
	"time"

	"github.com/dadknowsai/chat-relay/internal/config"
)

// setCookie writes one of the relay's state cookies with the shared
// attribute set (Path=/, HttpOnly, SameSite=Lax, Secure per config).
func (g *Gateway) setCookie(w http.ResponseWriter, name, value string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   g.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// setSessionCookie refreshes the session cookie. The id is escaped for
// parity with the browser clients that wrote these cookies historically.
func (g *Gateway) setSessionCookie(w http.ResponseWriter, sessionID string) {
	g.setCookie(w, config.SessionCookieName, url.QueryEscape(sessionID), config.SessionCookieMaxAge)
}

// sessionIDFromRequest returns the session id cookie value, decoded, or
// empty when absent.
func sessionIDFromRequest(r *http.Request) string {
	c, err := r.Cookie(config.SessionCookieName)
	if err != nil || c.Value == "" {
		return ""
	}
	if decoded, err := url.QueryUnescape(c.Value); err == nil {
		return decoded
	}
	return c.Value
}
