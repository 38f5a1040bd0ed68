package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"ideaforge/internal/eventbus"
)

const subscriberBuffer = 64

// terminalEvent reports whether the stream for a session can close.
func terminalEvent(ev eventbus.Event) bool {
	switch ev.Type {
	case eventbus.TopicWorkflowCompleted, eventbus.TopicWorkflowStopped:
		return true
	}
	return false
}

// handleWatchSSE streams one session's events as Server-Sent Events.
// Path: /api/watch/{session_id}
func (a *API) handleWatchSSE(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimPrefix(r.URL.Path, "/api/watch/")
	if sessionID == "" {
		http.Error(w, "session_id required", http.StatusBadRequest)
		return
	}
	if _, err := a.orch.Status(sessionID); err != nil {
		a.writeErr(w, "", err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	sub := a.bus.Subscribe("", subscriberBuffer)
	defer a.bus.Unsubscribe(sub)

	// replay history first so a late subscriber misses nothing
	for _, ev := range a.bus.History("", 0) {
		if ev.SessionID != sessionID {
			continue
		}
		writeSSE(w, ev)
		if terminalEvent(ev) {
			flusher.Flush()
			fmt.Fprintf(w, "event: close\ndata: {}\n\n")
			flusher.Flush()
			return
		}
	}
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if ev.SessionID != sessionID {
				continue
			}
			writeSSE(w, ev)
			flusher.Flush()
			if terminalEvent(ev) {
				fmt.Fprintf(w, "event: close\ndata: {}\n\n")
				flusher.Flush()
				return
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, ev eventbus.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "id: %d\ndata: %s\n\n", ev.ID, data)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// same-origin policy is handled upstream; the API itself is open
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleEventsWS pushes every bus event over a websocket. Clients that
// fall behind are disconnected and can replay via the history endpoint.
func (a *API) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := a.bus.Subscribe("", subscriberBuffer)
	defer a.bus.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				log.Printf("api: websocket write: %v", err)
				return
			}
		}
	}
}
