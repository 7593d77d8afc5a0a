package gateway

import (
	"net/http"
	"strconv"

	"github.com/dadknowsai/chat-relay/internal/config"
)

// gateState is the usage gate's view of one request's cookies. The
// counter is client-held and server-trusted: a visitor can reset their
// own cookie, which is an accepted trust boundary of the soft wall, not
// something to defend against here.
type gateState struct {
	captured bool
	count    int
}

// readGateState parses the capture flag and usage counter cookies.
// Missing or unparseable counters default to zero.
func readGateState(r *http.Request) gateState {
	st := gateState{}

	if c, err := r.Cookie(config.CapturedCookieName); err == nil && c.Value == config.CapturedCookieValue {
		st.captured = true
	}

	if c, err := r.Cookie(config.CounterCookieName); err == nil {
		if n, err := strconv.Atoi(c.Value); err == nil && n >= 0 {
			st.count = n
		}
	}

	return st
}

// admitted decides whether the request may reach the upstream provider.
func (s gateState) admitted() bool {
	return s.captured || s.count < config.FreeMessageLimit
}

// nextCount is the counter value to write back on the admitted path.
// Captured browsers hold their counter constant.
func (s gateState) nextCount() int {
	if s.captured {
		return s.count
	}
	return s.count + 1
}
