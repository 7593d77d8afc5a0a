// Stream relay: decodes the upstream completion stream into content
// tokens and forwards them to the client as they arrive.
//
// The upstream wire format is newline-delimited "data: {json}" lines
// closed by a "data: [DONE]" sentinel. Lines can be split across read
// chunks, so the parser buffers exactly one incomplete trailing line;
// tokens come out in the order they went in regardless of chunking.
package gateway

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/dadknowsai/chat-relay/internal/config"
)

var (
	dataPrefix   = []byte("data:")
	doneSentinel = []byte("[DONE]")
)

// deltaParser incrementally decodes the event stream into content
// tokens. Feed as many chunks as arrive; Flush once at end-of-stream to
// drain a trailing line that never got its newline.
type deltaParser struct {
	buf []byte
}

// Feed appends a chunk and returns the tokens from every complete line
// it now holds, in order.
func (p *deltaParser) Feed(chunk []byte) []string {
	p.buf = append(p.buf, chunk...)

	var tokens []string
	for {
		idx := bytes.IndexByte(p.buf, '\n')
		if idx < 0 {
			return tokens
		}
		line := p.buf[:idx]
		p.buf = p.buf[idx+1:]
		if tok, ok := parseDeltaLine(line); ok {
			tokens = append(tokens, tok)
		}
	}
}

// Flush drains the trailing unterminated line, if any.
func (p *deltaParser) Flush() []string {
	line := p.buf
	p.buf = nil
	if len(bytes.TrimSpace(line)) == 0 {
		return nil
	}
	if tok, ok := parseDeltaLine(line); ok {
		return []string{tok}
	}
	return nil
}

// parseDeltaLine extracts the content delta from one stream line.
// Non-"data:" lines (keep-alives, comments), the [DONE] sentinel, and
// unparseable payloads are all skipped without error: a malformed line
// must never abort the stream.
func parseDeltaLine(line []byte) (string, bool) {
	trimmed := bytes.TrimSpace(line)
	if !bytes.HasPrefix(trimmed, dataPrefix) {
		return "", false
	}

	payload := bytes.TrimSpace(bytes.TrimPrefix(trimmed, dataPrefix))
	if len(payload) == 0 || bytes.Equal(payload, doneSentinel) {
		return "", false
	}
	if !gjson.ValidBytes(payload) {
		return "", false
	}

	token := gjson.GetBytes(payload, "choices.0.delta.content").String()
	if token == "" {
		return "", false
	}
	return token, true
}

// relayResult is what the relay accumulated for the conversation logger.
type relayResult struct {
	answer  string
	aborted bool
}

// relayStream pumps the upstream byte stream to the client while
// accumulating the full answer. Each upstream read happens only after
// the previous tokens were written and flushed to the client, so a slow
// consumer applies backpressure to the upstream connection.
//
// If the client goes away mid-stream the relay stops reading, closes
// the upstream body, and marks the result aborted; the caller discards
// the partial answer rather than logging a turn the user never saw.
// An upstream read failure before EOF aborts the same way: the answer
// is truncated, not complete.
func (g *Gateway) relayStream(w http.ResponseWriter, r *http.Request, upstream io.ReadCloser) relayResult {
	defer func() { _ = upstream.Close() }()

	flusher, canFlush := w.(http.Flusher)
	parser := &deltaParser{}
	var answer strings.Builder

	writeTokens := func(tokens []string) bool {
		for _, tok := range tokens {
			if _, err := io.WriteString(w, tok); err != nil {
				log.Debug().Err(err).Msg("client disconnected")
				return false
			}
			answer.WriteString(tok)
			g.metrics.RecordTokensRelayed(1)
			if canFlush {
				flusher.Flush()
			}
		}
		return true
	}

	buf := make([]byte, config.DefaultBufferSize)
	for {
		if r.Context().Err() != nil {
			return relayResult{answer: answer.String(), aborted: true}
		}

		n, readErr := upstream.Read(buf)
		if n > 0 {
			if !writeTokens(parser.Feed(buf[:n])) {
				return relayResult{answer: answer.String(), aborted: true}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			// A transport failure is not end-of-stream: the answer is
			// truncated and must not be logged as a completed turn.
			log.Debug().Err(readErr).Msg("error reading upstream stream")
			return relayResult{answer: answer.String(), aborted: true}
		}
	}

	if !writeTokens(parser.Flush()) {
		return relayResult{answer: answer.String(), aborted: true}
	}

	return relayResult{answer: answer.String()}
}
