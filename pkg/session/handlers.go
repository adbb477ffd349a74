package session

import (
	"errors"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/wagerline/pkg/audit"
	"github.com/platinummonkey/wagerline/pkg/httputil"
	"github.com/platinummonkey/wagerline/pkg/observability"
)

// HandlerConfig holds the redirect targets of the auth handlers. The paths
// come from the route table.
type HandlerConfig struct {
	LoginPath    string
	DispatchPath string
	ReturnParam  string
}

// Handlers serves sign-in and sign-out
type Handlers struct {
	provider Provider
	cookies  Cookies
	cfg      HandlerConfig
	audit    audit.Logger
	metrics  *observability.Metrics
}

// NewHandlers creates auth handlers
func NewHandlers(provider Provider, cookies Cookies, cfg HandlerConfig, auditLogger audit.Logger, metrics *observability.Metrics) *Handlers {
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	if cfg.DispatchPath == "" {
		cfg.DispatchPath = "/dashboard"
	}
	if cfg.ReturnParam == "" {
		cfg.ReturnParam = "redirectedFrom"
	}
	if auditLogger == nil {
		auditLogger = audit.NoopLogger{}
	}
	return &Handlers{
		provider: provider,
		cookies:  cookies,
		cfg:      cfg,
		audit:    auditLogger,
		metrics:  metrics,
	}
}

// RegisterRoutes registers POST /auth/login and POST /auth/logout. The
// login middlewares (rate limiting) wrap the login handler only.
func (h *Handlers) RegisterRoutes(router *mux.Router, loginMiddleware ...func(http.Handler) http.Handler) {
	login := httputil.Chain(loginMiddleware...)(http.HandlerFunc(h.Login))
	router.Handle("/auth/login", login).Methods("POST")
	router.HandleFunc("/auth/logout", h.Logout).Methods("POST")
}

type loginRequest struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	RedirectedFrom string `json:"redirectedFrom"`
}

// Login signs the user in, sets the session cookies and redirects to the
// original destination or the dispatcher
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.FromContext(ctx)

	req, err := h.parseLoginRequest(r)
	if err != nil {
		http.Redirect(w, r, h.loginURL("invalid_request", ""), http.StatusSeeOther)
		return
	}

	s, err := h.provider.SignInWithPassword(ctx, req.Email, req.Password)
	h.metrics.RecordAuthEvent("login", err)
	if err != nil {
		event := audit.NewEvent(ctx, r, audit.EventTypeAuthLoginFailed, audit.EventStatusFailure)
		event.ResourceType = audit.ResourceTypeSession
		event.Metadata["email"] = req.Email

		code := "invalid_credentials"
		if errors.Is(err, ErrInvalidCredentials) {
			logger.WithField("email", req.Email).Info("Sign-in rejected")
		} else {
			code = "unavailable"
			event.Message = "session provider unavailable"
			logger.WithError(err).Error("Sign-in failed")
		}
		h.record(r, event)

		http.Redirect(w, r, h.loginURL(code, req.RedirectedFrom), http.StatusSeeOther)
		return
	}

	h.cookies.Set(w, s)
	httputil.AnnotateUser(ctx, s.User.ID)

	event := audit.NewEvent(ctx, r, audit.EventTypeAuthLogin, audit.EventStatusSuccess)
	event.ActorID = s.User.ID
	event.ResourceType = audit.ResourceTypeSession
	h.record(r, event)

	http.Redirect(w, r, SafeRedirect(req.RedirectedFrom, h.cfg.DispatchPath), http.StatusSeeOther)
}

// Logout revokes the session, clears the cookies and redirects to login.
// Cookies are cleared even when the provider call fails.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.FromContext(ctx)

	s, err := h.provider.GetSession(ctx, r)
	if err != nil {
		logger.WithError(err).Warn("Failed to read session during sign-out")
	}

	if s != nil {
		err = h.provider.SignOut(ctx, s)
		h.metrics.RecordAuthEvent("logout", err)
		if err != nil {
			logger.WithError(err).Warn("Provider sign-out failed")
		}

		event := audit.NewEvent(ctx, r, audit.EventTypeAuthLogout, audit.EventStatusSuccess)
		event.ActorID = s.User.ID
		event.ResourceType = audit.ResourceTypeSession
		if err != nil {
			event.Status = audit.EventStatusFailure
			event.Message = "provider sign-out failed"
		}
		h.record(r, event)
	}

	h.cookies.Clear(w)
	http.Redirect(w, r, h.cfg.LoginPath, http.StatusSeeOther)
}

func (h *Handlers) parseLoginRequest(r *http.Request) (loginRequest, error) {
	var req loginRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := httputil.ParseJSON(r, &req); err != nil {
			return req, err
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return req, err
		}
		req.Email = r.PostForm.Get("email")
		req.Password = r.PostForm.Get("password")
		req.RedirectedFrom = r.PostForm.Get(h.cfg.ReturnParam)
	}

	req.Email = strings.TrimSpace(req.Email)
	return req, nil
}

func (h *Handlers) loginURL(code, redirectedFrom string) string {
	q := url.Values{}
	if code != "" {
		q.Set("error", code)
	}
	if target := SafeRedirect(redirectedFrom, ""); target != "" {
		q.Set(h.cfg.ReturnParam, target)
	}
	if len(q) == 0 {
		return h.cfg.LoginPath
	}
	return h.cfg.LoginPath + "?" + q.Encode()
}

func (h *Handlers) record(r *http.Request, event *audit.AuditEvent) {
	if err := h.audit.Log(r.Context(), event); err != nil {
		observability.FromContext(r.Context()).WithError(err).
			WithField("event_type", string(event.EventType)).
			Warn("Failed to write audit event")
	}
}

// SafeRedirect returns target when it is a local absolute path, otherwise
// fallback
func SafeRedirect(target, fallback string) string {
	if target == "" || !strings.HasPrefix(target, "/") {
		return fallback
	}
	if strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return fallback
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return fallback
	}
	return target
}
