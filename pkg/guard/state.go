package guard

import "github.com/platinummonkey/wagerline/pkg/rbac"

type stateKind int

const (
	kindLoading stateKind = iota
	kindReady
	kindFailed
)

// State is what is known about the principal's access
type State struct {
	kind   stateKind
	access *rbac.Access
	err    error
}

// Loading is the state before access is resolved
func Loading() State {
	return State{kind: kindLoading}
}

// Ready carries resolved access. A nil access is an anonymous principal.
func Ready(access *rbac.Access) State {
	return State{kind: kindReady, access: access}
}

// Failed records a resolution failure
func Failed(err error) State {
	return State{kind: kindFailed, err: err}
}

func (s State) IsLoading() bool { return s.kind == kindLoading }

// Access returns the resolved access, if any
func (s State) Access() (*rbac.Access, bool) {
	return s.access, s.kind == kindReady
}

// Err returns the resolution failure, if any
func (s State) Err() error {
	return s.err
}

// Render is the outcome of evaluating a guard
type Render int

const (
	RenderLoading Render = iota
	RenderChildren
	RenderFallback
	RenderRedirect
)

func (r Render) String() string {
	switch r {
	case RenderLoading:
		return "loading"
	case RenderChildren:
		return "children"
	case RenderFallback:
		return "fallback"
	case RenderRedirect:
		return "redirect"
	}
	return "unknown"
}

// Evaluate decides what to render for state. Failures deny.
func Evaluate(state State, req Requirement) Render {
	switch state.kind {
	case kindLoading:
		return RenderLoading
	case kindFailed:
		return RenderFallback
	}

	if req.Satisfied(state.access) {
		return RenderChildren
	}
	if req.RedirectTo != "" {
		return RenderRedirect
	}
	return RenderFallback
}
