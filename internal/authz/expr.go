package authz

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"steward/internal/actor"
	"steward/internal/metadata"
)

// ExprAdapter evaluates a compiled boolean expression per check. The
// expression sees the actor, the resource name, and the record (nil for
// collection-level checks), e.g.
//
//	actor.super_admin or (resource == "posts" and "editor" in actor.roles)
type ExprAdapter struct {
	source  string
	program *vm.Program
}

// NewExprAdapter compiles the expression once up front. A compile
// failure is a configuration error.
func NewExprAdapter(source string) (*ExprAdapter, error) {
	prog, err := expr.Compile(source, expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("%w: compile %q: %v", ErrConfiguration, source, err)
	}
	return &ExprAdapter{source: source, program: prog}, nil
}

func (e *ExprAdapter) Name() string { return "expr" }

func (e *ExprAdapter) Authorize(_ context.Context, id *actor.Identity, res *metadata.Resource, record map[string]any) (Decision, error) {
	env := map[string]any{
		"actor":    exprActor(id),
		"resource": res.Name,
		"record":   record,
	}
	result, err := expr.Run(e.program, env)
	if err != nil {
		return Decision{}, fmt.Errorf("evaluate %q: %w", e.source, err)
	}
	if ok, _ := result.(bool); ok {
		return allow(), nil
	}
	return deny("expression %q evaluated false", e.source), nil
}

func exprActor(id *actor.Identity) map[string]any {
	if id == nil {
		return map[string]any{"id": "", "email": "", "roles": []string{}, "super_admin": false}
	}
	roles := id.Roles
	if roles == nil {
		roles = []string{}
	}
	return map[string]any{
		"id":          id.ID,
		"email":       id.Email,
		"roles":       roles,
		"super_admin": id.SuperAdmin,
	}
}
