package httpapi

import (
	"encoding/json"
	"fmt"
	"iter"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/postvisit/carecore/provider"
)

// Terminal SSE event names. Chunk events are named by chunk type.
const (
	EventError = "error"
	EventDone  = "done"
)

type errorPayload struct {
	Message string `json:"message"`
}

// sseWriter writes server-sent events to an echo response.
type sseWriter struct {
	res *echo.Response
}

func newSSEWriter(c echo.Context) *sseWriter {
	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)
	return &sseWriter{res: c.Response()}
}

// event writes one event with a JSON-encoded payload and flushes it.
func (w *sseWriter) event(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w.res, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	w.res.Flush()
	return nil
}

// stream relays chunks until seq ends, the client goes away or an error
// occurs. It returns the concatenated text chunks.
func (w *sseWriter) stream(seq iter.Seq2[provider.Chunk, error], onErr func(error)) (text string, ok bool) {
	return w.relay(seq, func(err error) {
		onErr(err)
		_ = w.event(EventError, errorPayload{Message: publicMessage(err)})
	})
}

// preface relays a stream that is followed by another. An error ends it
// without a terminal error event. It reports false only when the client
// can no longer be written to.
func (w *sseWriter) preface(seq iter.Seq2[provider.Chunk, error], onErr func(error)) bool {
	failed := false
	_, ok := w.relay(seq, func(err error) {
		failed = true
		onErr(err)
	})
	return ok || failed
}

func (w *sseWriter) relay(seq iter.Seq2[provider.Chunk, error], onErr func(error)) (text string, ok bool) {
	var answer []byte
	for chunk, err := range seq {
		if err != nil {
			onErr(err)
			return string(answer), false
		}
		if chunk.Type == provider.ChunkText {
			answer = append(answer, chunk.Content...)
		}
		if err := w.event(string(chunk.Type), chunk.Content); err != nil {
			return string(answer), false
		}
	}
	return string(answer), true
}

func (w *sseWriter) done() {
	_ = w.event(EventDone, struct{}{})
}
