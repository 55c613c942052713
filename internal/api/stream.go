package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/priyanshumodi22/kubiq-sub000/internal/tailer"
	"github.com/priyanshumodi22/kubiq-sub000/pkg/types"
)

const (
	streamWriteTimeout = 5 * time.Second
	statusPushInterval = 10 * time.Second

	// streamOutBuffer absorbs bursts from multiple subscriptions
	// feeding one connection.
	streamOutBuffer = 256
)

// The REST surface is CORS-open, so the websocket side matches.
var streamUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamRequest is a client message on the stream socket.
//
// Actions:
//   - subscribe: open a log stream for a stored source (source_id)
//   - switch: move a subscription to its pending rotation candidate
//   - unsubscribe: close one subscription
//   - status: request an immediate status snapshot
type streamRequest struct {
	Action         string `json:"action"`
	SourceID       string `json:"source_id,omitempty"`
	SubscriptionID string `json:"subscription_id,omitempty"`
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := streamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	session := &streamSession{
		server:  s,
		conn:    conn,
		out:     make(chan types.StreamEvent, streamOutBuffer),
		stopped: make(chan struct{}),
		subs:    make(map[string]*tailer.Subscription),
		logger:  s.logger.With("component", "stream_session", "remote", r.RemoteAddr),
	}
	session.run(r.Context())
}

// streamSession multiplexes log subscriptions and status pushes over
// one websocket connection. All writes happen on the run goroutine;
// per-subscription pumps only feed the out channel.
type streamSession struct {
	server  *Server
	conn    *websocket.Conn
	out     chan types.StreamEvent
	stopped chan struct{}
	logger  *slog.Logger

	mu   sync.Mutex
	subs map[string]*tailer.Subscription
}

func (ss *streamSession) run(ctx context.Context) {
	defer ss.conn.Close()
	defer ss.closeAll()
	defer close(ss.stopped)

	// Reader goroutine: client messages only.
	inbound := make(chan streamRequest)
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			var req streamRequest
			if err := ss.conn.ReadJSON(&req); err != nil {
				return
			}
			select {
			case inbound <- req:
			case <-ss.stopped:
				return
			}
		}
	}()

	// First frame is always a status snapshot so the client can render
	// immediately.
	if err := ss.write(ss.statusEvent()); err != nil {
		return
	}

	ticker := time.NewTicker(statusPushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-readerDone:
			return
		case req := <-inbound:
			ss.handle(ctx, req)
		case event := <-ss.out:
			if err := ss.write(event); err != nil {
				return
			}
		case <-ticker.C:
			if err := ss.write(ss.statusEvent()); err != nil {
				return
			}
		}
	}
}

func (ss *streamSession) handle(ctx context.Context, req streamRequest) {
	switch req.Action {
	case "subscribe":
		ss.subscribe(ctx, req.SourceID)
	case "switch":
		ss.switchActive(req.SubscriptionID)
	case "unsubscribe":
		ss.unsubscribe(req.SubscriptionID)
	case "status":
		ss.enqueue(ss.statusEvent())
	default:
		ss.enqueue(errorEvent("", "unknown action: "+req.Action))
	}
}

func (ss *streamSession) subscribe(ctx context.Context, sourceID string) {
	if sourceID == "" {
		ss.enqueue(errorEvent("", "source_id is required"))
		return
	}

	src, err := ss.server.store.GetLogSource(ctx, sourceID)
	if err != nil {
		ss.logger.Warn("log source lookup failed", "source", sourceID, "error", err)
		ss.enqueue(errorEvent("", "failed to load log source"))
		return
	}
	if src == nil {
		ss.enqueue(errorEvent("", "log source not found"))
		return
	}

	sub, err := ss.server.tailer.Subscribe(*src)
	if err != nil {
		ss.enqueue(errorEvent("", err.Error()))
		return
	}

	ss.mu.Lock()
	ss.subs[sub.ID] = sub
	ss.mu.Unlock()

	go ss.pump(sub)
}

// pump forwards one subscription's events to the shared out channel.
// It exits when the subscription closes its event channel.
func (ss *streamSession) pump(sub *tailer.Subscription) {
	for event := range sub.Events() {
		select {
		case ss.out <- event:
		case <-ss.stopped:
			return
		}
	}
	ss.mu.Lock()
	delete(ss.subs, sub.ID)
	ss.mu.Unlock()
}

func (ss *streamSession) switchActive(subscriptionID string) {
	ss.mu.Lock()
	sub, ok := ss.subs[subscriptionID]
	ss.mu.Unlock()
	if !ok {
		ss.enqueue(errorEvent(subscriptionID, "subscription not found"))
		return
	}

	if err := sub.Switch(); err != nil {
		ss.enqueue(errorEvent(subscriptionID, err.Error()))
	}
}

func (ss *streamSession) unsubscribe(subscriptionID string) {
	ss.mu.Lock()
	sub, ok := ss.subs[subscriptionID]
	ss.mu.Unlock()
	if !ok {
		ss.enqueue(errorEvent(subscriptionID, "subscription not found"))
		return
	}

	// The pump drains the terminal closed event and removes the entry.
	sub.Close()
}

func (ss *streamSession) closeAll() {
	ss.mu.Lock()
	subs := make([]*tailer.Subscription, 0, len(ss.subs))
	for _, sub := range ss.subs {
		subs = append(subs, sub)
	}
	ss.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}

// enqueue feeds the session's own events into the out channel without
// blocking the run loop; if the connection cannot keep up, the event
// is dropped.
func (ss *streamSession) enqueue(event types.StreamEvent) {
	select {
	case ss.out <- event:
	default:
		ss.logger.Debug("stream event dropped, connection too slow", "kind", event.Kind)
	}
}

func (ss *streamSession) write(event types.StreamEvent) error {
	_ = ss.conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	return ss.conn.WriteJSON(event)
}

func (ss *streamSession) statusEvent() types.StreamEvent {
	return types.StreamEvent{
		Kind:      types.StreamStatus,
		Timestamp: time.Now(),
		States:    ss.server.states.States(),
	}
}

func errorEvent(subscriptionID, message string) types.StreamEvent {
	return types.StreamEvent{
		Kind:           types.StreamError,
		SubscriptionID: subscriptionID,
		Timestamp:      time.Now(),
		Error:          message,
	}
}
