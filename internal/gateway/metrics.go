// Operational metrics: lightweight in-memory counters.
//
// GET /stats returns them as JSON, restricted to localhost. For
// production, export these to Prometheus or similar.
package gateway

import (
	"net/http"
	"sync/atomic"
	"time"
)

// metricsCollector collects per-process counters for the relay.
type metricsCollector struct {
	startedAt time.Time

	requests          atomic.Int64
	gateRejections    atomic.Int64
	streamsCompleted  atomic.Int64
	streamsAborted    atomic.Int64
	tokensRelayed     atomic.Int64
	messagesLogged    atomic.Int64
	subscribeAccepted atomic.Int64
	subscribeFailed   atomic.Int64
}

func newMetricsCollector() *metricsCollector {
	return &metricsCollector{startedAt: time.Now()}
}

func (mc *metricsCollector) RecordRequest()            { mc.requests.Add(1) }
func (mc *metricsCollector) RecordGateRejection()      { mc.gateRejections.Add(1) }
func (mc *metricsCollector) RecordStreamCompleted()    { mc.streamsCompleted.Add(1) }
func (mc *metricsCollector) RecordStreamAborted()      { mc.streamsAborted.Add(1) }
func (mc *metricsCollector) RecordTokensRelayed(n int) { mc.tokensRelayed.Add(int64(n)) }
func (mc *metricsCollector) RecordMessageLogged()      { mc.messagesLogged.Add(1) }
func (mc *metricsCollector) RecordSubscribeAccepted()  { mc.subscribeAccepted.Add(1) }
func (mc *metricsCollector) RecordSubscribeFailed()    { mc.subscribeFailed.Add(1) }

// StatsResponse is the JSON response for GET /stats.
type StatsResponse struct {
	Uptime string `json:"uptime"`
	Chat   struct {
		TotalRequests    int64 `json:"total_requests"`
		GateRejections   int64 `json:"gate_rejections"`
		StreamsCompleted int64 `json:"streams_completed"`
		StreamsAborted   int64 `json:"streams_aborted"`
		TokensRelayed    int64 `json:"tokens_relayed"`
		MessagesLogged   int64 `json:"messages_logged"`
	} `json:"chat"`

	Subscribe struct {
		Accepted int64 `json:"accepted"`
		Failed   int64 `json:"failed"`
	} `json:"subscribe"`
}

// handleStats returns aggregated metrics as JSON.
// Restricted to localhost to prevent external access to operational metrics.
func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	if !isLoopback(r.RemoteAddr) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var resp StatsResponse
	resp.Uptime = time.Since(g.metrics.startedAt).Truncate(time.Second).String()
	resp.Chat.TotalRequests = g.metrics.requests.Load()
	resp.Chat.GateRejections = g.metrics.gateRejections.Load()
	resp.Chat.StreamsCompleted = g.metrics.streamsCompleted.Load()
	resp.Chat.StreamsAborted = g.metrics.streamsAborted.Load()
	resp.Chat.TokensRelayed = g.metrics.tokensRelayed.Load()
	resp.Chat.MessagesLogged = g.metrics.messagesLogged.Load()
	resp.Subscribe.Accepted = g.metrics.subscribeAccepted.Load()
	resp.Subscribe.Failed = g.metrics.subscribeFailed.Load()

	writeJSON(w, http.StatusOK, resp)
}
