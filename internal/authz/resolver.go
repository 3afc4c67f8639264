package authz

import (
	"fmt"

	"go.uber.org/zap"

	"steward/internal/actor"
)

// Options carries everything a host may configure for authorization.
// Strategy names an adapter explicitly; empty or "auto" means
// auto-detect from whichever hooks are present.
type Options struct {
	Strategy   string
	Callback   *CallbackAdapter
	Policy     ResourcePolicy
	Ability    Ability
	Expression string

	// Predicate customizes the default adapter's actor check.
	Predicate func(id *actor.Identity) bool
}

// Resolve selects exactly one adapter from the options.
//
// An explicitly named strategy whose hook is missing or broken is a
// configuration error. During auto-detection the same problems degrade
// to the default adapter with a logged warning instead.
func Resolve(opts Options, logger *zap.Logger) (Adapter, error) {
	fallback := &DefaultAdapter{Predicate: opts.Predicate}

	switch opts.Strategy {
	case "", "auto":
		adapter, err := autoDetect(opts, fallback)
		if err != nil {
			logger.Warn("authorization strategy degraded to default", zap.Error(err))
			return fallback, nil
		}
		return adapter, nil
	case "default":
		return fallback, nil
	case "callback":
		if opts.Callback == nil {
			return nil, fmt.Errorf("%w: strategy callback without a callback", ErrConfiguration)
		}
		return opts.Callback, nil
	case "policy":
		if opts.Policy == nil {
			return nil, fmt.Errorf("%w: strategy policy without a policy object", ErrConfiguration)
		}
		return &PolicyAdapter{Policy: opts.Policy}, nil
	case "ability":
		if opts.Ability == nil {
			return nil, fmt.Errorf("%w: strategy ability without an ability", ErrConfiguration)
		}
		return &AbilityAdapter{Ability: opts.Ability}, nil
	case "expr":
		if opts.Expression == "" {
			return nil, fmt.Errorf("%w: strategy expr without an expression", ErrConfiguration)
		}
		return NewExprAdapter(opts.Expression)
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", ErrConfiguration, opts.Strategy)
	}
}

// autoDetect prefers an explicit callback, then a policy object, then
// an ability, then a configured expression, before the default.
func autoDetect(opts Options, fallback Adapter) (Adapter, error) {
	switch {
	case opts.Callback != nil:
		return opts.Callback, nil
	case opts.Policy != nil:
		return &PolicyAdapter{Policy: opts.Policy}, nil
	case opts.Ability != nil:
		return &AbilityAdapter{Ability: opts.Ability}, nil
	case opts.Expression != "":
		return NewExprAdapter(opts.Expression)
	default:
		return fallback, nil
	}
}
