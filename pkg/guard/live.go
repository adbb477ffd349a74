package guard

import (
	"context"
	"net/http"
	"sync"

	"github.com/platinummonkey/wagerline/pkg/rbac"
	"github.com/platinummonkey/wagerline/pkg/session"
)

// Live keeps the access state of one principal current. It starts in
// Loading, re-resolves on every auth event for that user (and on role
// invalidations when following a source) and notifies subscribers. Updates are applied asynchronously; a result that arrives
// after a newer resolution started is dropped.
type Live struct {
	userID       string
	metadataRole string
	resolver     Resolver

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	state   State
	version uint64
	nextSub int
	subs    map[int]chan State

	unsubscribe []func()
	wg          sync.WaitGroup
}

// NewLive tracks user. When initial is non-nil it becomes the first state
// instead of resolving from scratch.
func NewLive(ctx context.Context, provider session.Provider, resolver Resolver, user session.User, initial *rbac.Access) *Live {
	ctx, cancel := context.WithCancel(ctx)
	l := &Live{
		userID:       user.ID,
		metadataRole: user.Metadata.Role,
		resolver:     resolver,
		ctx:          ctx,
		cancel:       cancel,
		state:        Loading(),
		subs:         make(map[int]chan State),
	}

	l.unsubscribe = append(l.unsubscribe, provider.OnAuthStateChange(l.handleEvent))

	if initial != nil {
		l.set(0, Ready(initial))
	} else {
		l.Refresh()
	}
	return l
}

// State returns the current state
func (l *Live) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// StateFunc adapts Live to a Guard
func (l *Live) StateFunc() StateFunc {
	return func(*http.Request) State { return l.State() }
}

// Subscribe returns a channel carrying the current state and every later
// change. Slow readers only see the latest state.
func (l *Live) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = ch
	ch <- l.state
	l.mu.Unlock()

	return ch, func() {
		l.mu.Lock()
		delete(l.subs, id)
		l.mu.Unlock()
	}
}

// Refresh re-resolves access in the background
func (l *Live) Refresh() {
	l.mu.Lock()
	l.version++
	version := l.version
	role := l.metadataRole
	l.mu.Unlock()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		access, err := l.resolver.Access(rbac.WithFreshMemo(l.ctx), l.userID, role)
		if l.ctx.Err() != nil {
			return
		}
		if err != nil {
			l.set(version, Failed(err))
			return
		}
		l.set(version, Ready(access))
	}()
}

// FollowInvalidations re-resolves whenever source reports a role change
// for this user or for everyone
func (l *Live) FollowInvalidations(source rbac.InvalidationSource) {
	unsubscribe := source.OnInvalidation(func(inv rbac.Invalidation) {
		if inv.UserID != "" && inv.UserID != l.userID {
			return
		}
		if l.ctx.Err() != nil {
			return
		}
		l.Refresh()
	})

	l.mu.Lock()
	l.unsubscribe = append(l.unsubscribe, unsubscribe)
	l.mu.Unlock()
}

// Close stops tracking and waits for in-flight resolutions
func (l *Live) Close() {
	l.mu.Lock()
	unsubscribe := l.unsubscribe
	l.unsubscribe = nil
	l.mu.Unlock()
	for _, fn := range unsubscribe {
		fn()
	}
	l.cancel()
	l.wg.Wait()
}

func (l *Live) handleEvent(event session.Event) {
	if event.User.ID != l.userID {
		return
	}

	switch event.Type {
	case session.EventSignedOut:
		l.mu.Lock()
		l.version++
		version := l.version
		l.mu.Unlock()
		l.set(version, Ready(nil))
	default:
		l.mu.Lock()
		l.metadataRole = event.User.Metadata.Role
		l.mu.Unlock()
		l.Refresh()
	}
}

func (l *Live) set(version uint64, state State) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if version < l.version {
		return
	}
	l.state = state
	for _, ch := range l.subs {
		select {
		case <-ch:
		default:
		}
		ch <- state
	}
}
