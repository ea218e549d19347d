package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/easygithub/easygithub/pkg/pipeline"
)

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
	wsPingEvery = (wsPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Stream message types.
const (
	msgEvent  = "event"
	msgResult = "result"
	msgError  = "error"
)

type streamMessage struct {
	Type   string            `json:"type"`
	Event  *pipeline.Event   `json:"event,omitempty"`
	Result *generateResponse `json:"result,omitempty"`
	Error  *apiError         `json:"error,omitempty"`
}

// handleGenerateStream runs the pipeline for ?repo_url= and reports every
// stage event over a websocket, followed by one result or error message.
// Closing the socket cancels the run.
func (s *Server) handleGenerateStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := generateRequest{
		RepoURL: q.Get("repo_url"),
		Branch:  q.Get("branch"),
		Refresh: q.Get("refresh") == "true" || q.Get("refresh") == "1",
	}
	if req.RepoURL == "" {
		writeError(w, r, s.logger, errMissingRepoURL)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	// Inbound messages are ignored; reading surfaces pongs and closes.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	out := make(chan streamMessage, 32)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeStream(conn, out, cancel)
	}()

	push := func(m streamMessage) {
		select {
		case out <- m:
		case <-ctx.Done():
		}
	}

	resp, err := s.generate(ctx, req, func(e pipeline.Event) {
		push(streamMessage{Type: msgEvent, Event: &e})
	})
	if err != nil {
		body, _ := toAPIError(err)
		s.logger.Warn("stream generate failed", "repo", req.RepoURL, "err", err)
		push(streamMessage{Type: msgError, Error: &body})
	} else {
		push(streamMessage{Type: msgResult, Result: resp})
	}
	close(out)
	<-writerDone
}

// writeStream owns all writes to conn. It drains out until it is closed,
// then sends a close frame. A write failure cancels the run and discards the
// remaining messages.
func (s *Server) writeStream(conn *websocket.Conn, out <-chan streamMessage, cancel context.CancelFunc) {
	ticker := time.NewTicker(wsPingEvery)
	defer ticker.Stop()

	failed := false
	for {
		select {
		case m, ok := <-out:
			if !ok {
				if !failed {
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
						time.Now().Add(wsWriteWait))
				}
				return
			}
			if failed {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(m); err != nil {
				s.logger.Debug("stream write failed", "err", err)
				failed = true
				cancel()
			}
		case <-ticker.C:
			if failed {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				failed = true
				cancel()
			}
		}
	}
}
