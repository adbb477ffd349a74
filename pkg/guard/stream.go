package guard

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/platinummonkey/wagerline/pkg/contextkeys"
	"github.com/platinummonkey/wagerline/pkg/httputil"
	"github.com/platinummonkey/wagerline/pkg/rbac"
	"github.com/platinummonkey/wagerline/pkg/session"
)

const defaultHeartbeat = 25 * time.Second

// streamEvent is the payload of one access event. Failures carry no
// detail.
type streamEvent struct {
	State  string         `json:"state"`
	Access *rbac.Snapshot `json:"access,omitempty"`
}

func eventFor(state State) streamEvent {
	switch {
	case state.IsLoading():
		return streamEvent{State: "loading"}
	case state.Err() != nil:
		return streamEvent{State: "failed"}
	}
	access, _ := state.Access()
	snap := access.Snapshot()
	return streamEvent{State: "ready", Access: &snap}
}

// StreamHandler serves GET /api/me/access/stream: a server-sent-events
// feed of the caller's access, re-sent after every auth event and role
// change
type StreamHandler struct {
	provider      session.Provider
	resolver      Resolver
	invalidations rbac.InvalidationSource
	heartbeat     time.Duration
}

// StreamOption configures a StreamHandler
type StreamOption func(*StreamHandler)

// WithInvalidations re-sends access when roles change
func WithInvalidations(source rbac.InvalidationSource) StreamOption {
	return func(h *StreamHandler) { h.invalidations = source }
}

// NewStreamHandler creates the access stream handler
func NewStreamHandler(provider session.Provider, resolver Resolver, opts ...StreamOption) *StreamHandler {
	h := &StreamHandler{provider: provider, resolver: resolver, heartbeat: defaultHeartbeat}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s, ok := contextkeys.Session(r.Context()).(*session.Session)
	if !ok || s == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	initial, _ := rbac.AccessFromContext(r.Context())
	live := NewLive(r.Context(), h.provider, h.resolver, s.User, initial)
	defer live.Close()
	if h.invalidations != nil {
		live.FollowInvalidations(h.invalidations)
	}

	updates, unsubscribe := live.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": stream started\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case state := <-updates:
			payload, err := json.Marshal(eventFor(state))
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: access\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
