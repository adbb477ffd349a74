package gate

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/platinummonkey/wagerline/pkg/rbac"
)

// State is the position of a request in the gate state machine
type State string

const (
	StateUnauthenticated State = "UNAUTHENTICATED"
	StateNoRole          State = "AUTHENTICATED_NO_ROLE"
	StateWithRole        State = "AUTHENTICATED_WITH_ROLE"
)

// Action is what the gate does with a request
type Action string

const (
	ActionPass         Action = "pass"
	ActionLogin        Action = "redirect_login"
	ActionHome         Action = "redirect_home"
	ActionUnauthorized Action = "redirect_unauthorized"
	ActionFallback     Action = "redirect_fallback"
	ActionError        Action = "redirect_error"
)

// Decision is the outcome of evaluating one request
type Decision struct {
	State    State
	Action   Action
	Location string
	Rule     Rule

	// Access is set whenever roles were resolved
	Access *rbac.Access

	// Err explains a denial: rbac.ErrUnauthorized, rbac.ErrNoRoleAssigned
	// or a wrapped lookup failure
	Err error
}

// Resolve loads the access of the signed-in principal. It is only called
// when the rule needs roles.
type Resolve func() (*rbac.Access, error)

// Decide runs the state machine for path. resolve is nil for requests
// without a session.
func (t *Table) Decide(path, rawQuery string, resolve Resolve) Decision {
	rule := t.Match(path)

	if resolve == nil {
		d := Decision{State: StateUnauthenticated, Rule: rule}
		switch rule.Access {
		case AccessPublic, AccessAuthOnly:
			d.Action = ActionPass
		default:
			d.Action = ActionLogin
			d.Location = t.loginRedirect(path, rawQuery)
			d.Err = rbac.ErrUnauthorized
		}
		return d
	}

	if rule.Access == AccessPublic {
		return Decision{State: StateWithRole, Action: ActionPass, Rule: rule}
	}

	access, err := resolve()
	if err != nil {
		return Decision{
			State:    StateWithRole,
			Action:   ActionError,
			Location: t.Error,
			Rule:     rule,
			Err:      fmt.Errorf("failed to resolve roles: %w", err),
		}
	}
	if !access.HasRoles() {
		return Decision{
			State:    StateNoRole,
			Action:   ActionError,
			Location: t.Error,
			Rule:     rule,
			Access:   access,
			Err:      rbac.ErrNoRoleAssigned,
		}
	}

	d := Decision{State: StateWithRole, Action: ActionPass, Rule: rule, Access: access}

	switch rule.Access {
	case AccessAuthOnly, AccessDispatch:
		if home := t.Home(access); trimSlash(home) != trimSlash(path) {
			d.Action = ActionHome
			d.Location = home
		}
		return d
	}

	allowed, deniedTo := t.allows(rule, access)
	if allowed {
		return d
	}

	d.Action = ActionUnauthorized
	if deniedTo != t.Unauthorized {
		d.Action = ActionFallback
	}
	d.Location = deniedTo
	d.Err = rbac.ErrUnauthorized
	return d
}

// loginRedirect builds login?<return_param>=<path and query>. Slashes stay
// literal so the return path reads as a path.
func (t *Table) loginRedirect(path, rawQuery string) string {
	target := path
	if rawQuery != "" {
		target += "?" + rawQuery
	}
	escaped := strings.ReplaceAll(url.QueryEscape(target), "%2F", "/")

	sep := "?"
	if strings.Contains(t.Login, "?") {
		sep = "&"
	}
	return t.Login + sep + url.QueryEscape(t.ReturnParam) + "=" + escaped
}
