// Package actor defines the identity performing admin operations and
// the ways a host application can supply it.
package actor

import "context"

// Identity describes the authenticated operator of a request. A nil
// *Identity means the request is anonymous.
type Identity struct {
	ID         string
	Email      string
	Roles      []string
	SuperAdmin bool
}

// HasRole reports whether the identity carries the named role.
func (id *Identity) HasRole(role string) bool {
	if id == nil {
		return false
	}
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type resolverKind int

const (
	resolverStatic resolverKind = iota
	resolverContextKey
	resolverFunc
)

// Resolver extracts the current identity from a request context. The
// three variants cover a fixed identity, a context value set by
// middleware, and an arbitrary lookup function. Absence is not an
// error; the resolved identity is simply nil.
type Resolver struct {
	kind   resolverKind
	static *Identity
	key    any
	fn     func(context.Context) *Identity
}

// Static always resolves the given identity.
func Static(id *Identity) *Resolver {
	return &Resolver{kind: resolverStatic, static: id}
}

// ContextKey resolves the identity stored under key in the context.
func ContextKey(key any) *Resolver {
	return &Resolver{kind: resolverContextKey, key: key}
}

// Func resolves via a caller-supplied function.
func Func(fn func(context.Context) *Identity) *Resolver {
	return &Resolver{kind: resolverFunc, fn: fn}
}

// Resolve returns the identity for ctx, or nil when none is present.
func (r *Resolver) Resolve(ctx context.Context) *Identity {
	if r == nil {
		return nil
	}
	switch r.kind {
	case resolverStatic:
		return r.static
	case resolverContextKey:
		if id, ok := ctx.Value(r.key).(*Identity); ok {
			return id
		}
		return nil
	case resolverFunc:
		if r.fn == nil {
			return nil
		}
		return r.fn(ctx)
	}
	return nil
}
