// Package authz decides whether an authenticated principal may perform an action.
// Decisions come from an embedded Rego policy evaluated in process.
package authz

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	"taskdeck.io/internal/auth"
)

// Actions understood by the policy.
const (
	ActionTaskCreate    = "task:create"
	ActionTaskUpdate    = "task:update"
	ActionTaskDelete    = "task:delete"
	ActionTaskList      = "task:list"
	ActionTaskRead      = "task:read"
	ActionProfileRead   = "profile:read"
	ActionAccountStatus = "account:status"
)

const allowQuery = "data.taskdeck.authz.allow"

//go:embed policy.rego
var defaultPolicy string

// Policy is a compiled authorization policy. It is safe for concurrent use.
type Policy struct {
	query rego.PreparedEvalQuery
}

// NewPolicy compiles the embedded policy.
func NewPolicy(ctx context.Context) (*Policy, error) {
	return NewPolicyFromSource(ctx, defaultPolicy)
}

// NewPolicyFromSource compiles a policy that defines data.taskdeck.authz.allow.
func NewPolicyFromSource(ctx context.Context, src string) (*Policy, error) {
	compiler, err := ast.CompileModules(map[string]string{"authz.rego": src})
	if err != nil {
		return nil, fmt.Errorf("authz: compile policy: %w", err)
	}
	q, err := rego.New(
		rego.Query(allowQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("authz: prepare query: %w", err)
	}
	return &Policy{query: q}, nil
}

// Allow reports whether p may perform action.
func (p *Policy) Allow(ctx context.Context, principal auth.Principal, action string) (bool, error) {
	rs, err := p.query.Eval(ctx, rego.EvalInput(input(principal, action)))
	if err != nil {
		return false, fmt.Errorf("authz: evaluate %s: %w", action, err)
	}
	return rs.Allowed(), nil
}

// Authorize is Allow mapped onto the auth error taxonomy: a denial is auth.ErrAccessDenied.
func (p *Policy) Authorize(ctx context.Context, principal auth.Principal, action string) error {
	ok, err := p.Allow(ctx, principal, action)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", auth.ErrAccessDenied, action)
	}
	return nil
}

func input(p auth.Principal, action string) map[string]any {
	authorities := make([]any, 0, len(p.Authorities))
	for _, a := range p.Authorities {
		authorities = append(authorities, a)
	}
	return map[string]any{
		"action":      action,
		"account_id":  p.AccountID.String(),
		"active":      p.Active(),
		"authorities": authorities,
	}
}
