// Package authz selects and invokes one of several pluggable
// authorization strategies, all answering the same question: may this
// actor perform this operation, and what subset of a collection may
// they see.
package authz

import (
	"context"
	"errors"
	"fmt"

	"steward/internal/actor"
	"steward/internal/metadata"
	"steward/internal/query"
)

// ErrConfiguration marks a mis-configured strategy. It is distinct from
// an authorization denial: denial is a boolean outcome, configuration
// errors mean the host application is set up wrong.
var ErrConfiguration = errors.New("authz: invalid configuration")

// Decision is the outcome of one authorization check. Detail carries
// the reason for a denial and is empty when authorized.
type Decision struct {
	Authorized bool
	Detail     string
}

func allow() Decision {
	return Decision{Authorized: true}
}

func deny(format string, args ...any) Decision {
	return Decision{Detail: fmt.Sprintf(format, args...)}
}

// Adapter is one authorization strategy. Authorize answers a single
// check; an error return signals a strategy malfunction, not a denial.
type Adapter interface {
	Name() string
	Authorize(ctx context.Context, id *actor.Identity, res *metadata.Resource, record map[string]any) (Decision, error)
}

// Scoper is the optional second capability of an adapter: narrowing a
// collection scope to what the actor may see. Adapters without it get
// pass-through scoping.
type Scoper interface {
	Scope(id *actor.Identity, scope *query.Scope) *query.Scope
}

// ApplyScope narrows scope through the adapter when it supports
// scoping, else returns scope unchanged.
func ApplyScope(a Adapter, id *actor.Identity, scope *query.Scope) *query.Scope {
	if s, ok := a.(Scoper); ok {
		return s.Scope(id, scope)
	}
	return scope
}

// --- default adapter ---

// DefaultAdapter authorizes super admins, or whatever a configured
// predicate over the actor decides.
type DefaultAdapter struct {
	Predicate func(id *actor.Identity) bool
}

func (d *DefaultAdapter) Name() string { return "default" }

func (d *DefaultAdapter) Authorize(_ context.Context, id *actor.Identity, _ *metadata.Resource, _ map[string]any) (Decision, error) {
	if id == nil {
		return deny("no actor resolved"), nil
	}
	if d.Predicate != nil {
		if d.Predicate(id) {
			return allow(), nil
		}
		return deny("actor %s rejected by predicate", id.Email), nil
	}
	if id.SuperAdmin {
		return allow(), nil
	}
	return deny("actor %s is not a super admin", id.Email), nil
}

// --- callback adapter ---

type callbackKind int

const (
	callbackNoArg callbackKind = iota
	callbackActor
	callbackActorResource
)

// CallbackAdapter wraps a host-supplied callback. The three fixed
// arities are distinct variants; exactly one function is set.
type CallbackAdapter struct {
	kind          callbackKind
	noArg         func() bool
	actorOnly     func(id *actor.Identity) bool
	actorResource func(id *actor.Identity, res *metadata.Resource) bool
}

// CallbackNoArg builds a callback adapter from a nullary predicate.
func CallbackNoArg(fn func() bool) *CallbackAdapter {
	return &CallbackAdapter{kind: callbackNoArg, noArg: fn}
}

// CallbackActor builds a callback adapter from an actor predicate.
func CallbackActor(fn func(id *actor.Identity) bool) *CallbackAdapter {
	return &CallbackAdapter{kind: callbackActor, actorOnly: fn}
}

// CallbackActorResource builds a callback adapter from an
// actor-and-resource predicate.
func CallbackActorResource(fn func(id *actor.Identity, res *metadata.Resource) bool) *CallbackAdapter {
	return &CallbackAdapter{kind: callbackActorResource, actorResource: fn}
}

func (c *CallbackAdapter) Name() string { return "callback" }

func (c *CallbackAdapter) Authorize(_ context.Context, id *actor.Identity, res *metadata.Resource, _ map[string]any) (Decision, error) {
	var ok bool
	switch c.kind {
	case callbackNoArg:
		ok = c.noArg()
	case callbackActor:
		ok = c.actorOnly(id)
	case callbackActorResource:
		ok = c.actorResource(id, res)
	}
	if ok {
		return allow(), nil
	}
	return deny("callback rejected the request"), nil
}

// --- policy-object adapter ---

// ResourcePolicy is the contract a host policy object implements:
// a full check over actor, resource and, for member operations, the
// record in question.
type ResourcePolicy interface {
	Authorize(ctx context.Context, id *actor.Identity, res *metadata.Resource, record map[string]any) (bool, error)
}

// ScopedResourcePolicy optionally adds collection scoping.
type ScopedResourcePolicy interface {
	ResourcePolicy
	Scope(id *actor.Identity, scope *query.Scope) *query.Scope
}

// PolicyAdapter delegates to a host-supplied policy object.
type PolicyAdapter struct {
	Policy ResourcePolicy
}

func (p *PolicyAdapter) Name() string { return "policy" }

func (p *PolicyAdapter) Authorize(ctx context.Context, id *actor.Identity, res *metadata.Resource, record map[string]any) (Decision, error) {
	ok, err := p.Policy.Authorize(ctx, id, res, record)
	if err != nil {
		return Decision{}, err
	}
	if ok {
		return allow(), nil
	}
	return deny("policy denied access to %s", res.Name), nil
}

func (p *PolicyAdapter) Scope(id *actor.Identity, scope *query.Scope) *query.Scope {
	if sp, ok := p.Policy.(ScopedResourcePolicy); ok {
		return sp.Scope(id, scope)
	}
	return scope
}

// --- ability adapter ---

// Ability is a capability-list contract: a single Can query over actor
// and resource name.
type Ability interface {
	Can(id *actor.Identity, action, resource string) bool
}

// AbilityAdapter delegates to a host-supplied ability. The action is
// fixed to "manage" at this layer; finer actions belong to the host.
type AbilityAdapter struct {
	Ability Ability
}

func (a *AbilityAdapter) Name() string { return "ability" }

func (a *AbilityAdapter) Authorize(_ context.Context, id *actor.Identity, res *metadata.Resource, _ map[string]any) (Decision, error) {
	if a.Ability.Can(id, "manage", res.Name) {
		return allow(), nil
	}
	return deny("actor cannot manage %s", res.Name), nil
}
