package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/reelbox/reelbox-agent/internal/capture"
	"github.com/reelbox/reelbox-agent/internal/metrics"
	"github.com/reelbox/reelbox-agent/internal/workflow"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	phasePoll  = time.Second
)

// eventsHandler streams recorder state changes and elapsed ticks of the
// open capture until it closes or the client goes away.
func eventsHandler(cfg ServerConfig) http.HandlerFunc {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = DefaultAllowedOrigins
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || originAllowed(origin, origins)
		},
	}

	return withWorkflow(cfg, func(w http.ResponseWriter, r *http.Request, wf *workflow.Workflow) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			cfg.Logger.Warn("websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		metrics.WebSocketConnections.Inc()
		defer metrics.WebSocketConnections.Dec()

		events, unsubscribe := wf.Subscribe()
		defer unsubscribe()

		gone := make(chan struct{})
		go readPump(conn, gone)

		st := wf.Status()
		initial := capture.Event{State: st.State, Elapsed: st.Elapsed, Label: st.ElapsedLabel}
		if err := writeEvent(conn, st.Phase, initial); err != nil {
			return
		}

		ping := time.NewTicker(pingPeriod)
		defer ping.Stop()
		poll := time.NewTicker(phasePoll)
		defer poll.Stop()

		for {
			select {
			case ev, ok := <-events:
				if !ok {
					closeStream(conn)
					return
				}
				if err := writeEvent(conn, wf.Phase(), ev); err != nil {
					return
				}
			case <-poll.C:
				if wf.Phase() == workflow.PhaseClosed {
					closeStream(conn)
					return
				}
			case <-ping.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-gone:
				return
			case <-r.Context().Done():
				return
			}
		}
	})
}

func writeEvent(conn *websocket.Conn, phase workflow.Phase, ev capture.Event) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(EventToMessage(phase, ev))
}

func closeStream(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "capture closed")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

// readPump discards client messages and keeps the read deadline fresh so
// pongs are processed. gone is closed when the connection drops.
func readPump(conn *websocket.Conn, gone chan<- struct{}) {
	defer close(gone)
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// originAllowed matches origin against patterns that may contain one "*".
func originAllowed(origin string, patterns []string) bool {
	for _, p := range patterns {
		if p == "*" || p == origin {
			return true
		}
		prefix, suffix, ok := strings.Cut(p, "*")
		if ok && len(origin) >= len(prefix)+len(suffix) &&
			strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin, suffix) {
			return true
		}
	}
	return false
}
