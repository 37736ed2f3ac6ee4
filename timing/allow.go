package timing

import (
	"context"
	"net/http"
)

// AllowContext is what a Predicate receives.
type AllowContext struct {
	Request *http.Request
}

// Predicate decides whether the timing header may be written for a request.
// It may block; a returned error is handed back to the caller unchanged.
type Predicate func(ctx context.Context, ac AllowContext) (bool, error)

type allowKind uint8

const (
	allowUnset allowKind = iota
	allowStatic
	allowDynamic
)

// Allow is either a fixed decision or a per-request Predicate.
// The zero value is unset and permits every request.
type Allow struct {
	kind      allowKind
	value     bool
	predicate Predicate
}

// AllowAlways permits every request.
func AllowAlways() Allow {
	return Allow{}
}

// AllowStatic returns a fixed decision.
func AllowStatic(allowed bool) Allow {
	return Allow{kind: allowStatic, value: allowed}
}

// AllowDynamic defers the decision to p, evaluated once per request.
func AllowDynamic(p Predicate) Allow {
	return Allow{kind: allowDynamic, predicate: p}
}

// IsDynamic reports whether the decision depends on the request.
func (a Allow) IsDynamic() bool {
	return a.kind == allowDynamic && a.predicate != nil
}

// Resolve returns the decision for one request.
func (a Allow) Resolve(ctx context.Context, ac AllowContext) (bool, error) {
	switch a.kind {
	case allowStatic:
		return a.value, nil
	case allowDynamic:
		if a.predicate == nil {
			return true, nil
		}
		return a.predicate(ctx, ac)
	default:
		return true, nil
	}
}
