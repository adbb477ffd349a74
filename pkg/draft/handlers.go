package draft

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/wagerline/pkg/async"
	"github.com/platinummonkey/wagerline/pkg/httputil"
	"github.com/platinummonkey/wagerline/pkg/observability"
	"github.com/platinummonkey/wagerline/pkg/rbac"
	"github.com/platinummonkey/wagerline/pkg/session"
)

var errorStatuses = []httputil.ErrorStatus{
	{Err: ErrInvalid, Status: http.StatusBadRequest},
	{Err: ErrNotFound, Status: http.StatusNotFound},
	{Err: ErrStorage, Status: http.StatusInternalServerError},
}

// Handlers serves the caller's own draft bet
type Handlers struct {
	store Store
}

// NewHandlers creates draft handlers
func NewHandlers(store Store) *Handlers {
	return &Handlers{store: store}
}

// RegisterRoutes registers GET, PUT and DELETE /draft-bet. The router is
// expected to sit behind the gate, which supplies the resolved access.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/draft-bet", h.Get).Methods("GET")
	router.HandleFunc("/draft-bet", h.Put).Methods("PUT")
	router.HandleFunc("/draft-bet", h.Delete).Methods("DELETE")
}

type saveRequest struct {
	Game       Game        `json:"game"`
	Selections []Selection `json:"selections"`
	Stake      float64     `json:"stake"`
}

func userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	access, ok := rbac.AccessFromContext(r.Context())
	if !ok || access.UserID == "" {
		httputil.WriteUnauthorized(w, "authentication required")
		return "", false
	}
	return access.UserID, true
}

// Get returns the caller's draft
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	bet, err := h.store.Get(r.Context(), uid)
	if err != nil {
		httputil.WriteServiceError(w, r, err, errorStatuses)
		return
	}
	httputil.WriteSuccess(w, bet)
}

// Put replaces the caller's draft, keeping its id and creation time
func (h *Handlers) Put(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var req saveRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	bet := &Bet{UserID: uid, Game: req.Game, Selections: req.Selections, Stake: req.Stake}
	if existing, err := h.store.Get(r.Context(), uid); err == nil {
		bet.ID = existing.ID
		bet.CreatedAt = existing.CreatedAt
	}

	if err := h.store.Save(r.Context(), bet); err != nil {
		httputil.WriteServiceError(w, r, err, errorStatuses)
		return
	}
	httputil.WriteSuccess(w, bet)
}

// Delete clears the caller's draft
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	if err := h.store.Clear(r.Context(), uid); err != nil {
		httputil.WriteServiceError(w, r, err, errorStatuses)
		return
	}
	httputil.WriteNoContent(w)
}

// clearTimeout bounds the background delete started on sign-out
const clearTimeout = 2 * time.Second

// ClearOnSignOut deletes a user's draft in the background when the
// provider reports that they signed out. The returned function
// unsubscribes.
func ClearOnSignOut(provider session.Provider, store Store, logger *observability.Logger) func() {
	return provider.OnAuthStateChange(func(ev session.Event) {
		if ev.Type != session.EventSignedOut || ev.User.ID == "" {
			return
		}
		userID := ev.User.ID
		async.SafeGo(context.Background(), logger, clearTimeout, "draft cleanup", func(ctx context.Context) error {
			return store.Clear(ctx, userID)
		})
	})
}
