package scope

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"

	"authcore/internal/security"
)

const policyQuery = "data.authcore.scope.allow"

// Default Rego policy: grant when the required scope is empty, present in the
// token's scopes, or covered by the "*" wildcard.
const defaultRegoPolicy = `package authcore.scope

default allow := false

allow if {
	input.required == ""
}

allow if {
	some s in input.scopes
	s == input.required
}

allow if {
	some s in input.scopes
	s == "*"
}
`

// OPAEvaluator evaluates scope checks with an OPA Rego policy, prepared once
// at construction. Deployments can swap in their own policy module as long as
// it exposes the same allow rule.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles the default scope policy and returns an evaluator
// over it.
func NewOPAEvaluator(ctx context.Context) (*OPAEvaluator, error) {
	return NewOPAEvaluatorWithPolicy(ctx, defaultRegoPolicy)
}

// NewOPAEvaluatorWithPolicy compiles the given Rego module. The module must
// define data.authcore.scope.allow.
func NewOPAEvaluatorWithPolicy(ctx context.Context, policy string) (*OPAEvaluator, error) {
	q, err := rego.New(
		rego.Query(policyQuery),
		rego.Module("scope.rego", policy),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile scope policy: %w", err)
	}
	return &OPAEvaluator{query: q}, nil
}

// Allow evaluates the policy with the token's scopes and the required scope
// as input. A policy that yields no result denies.
func (e *OPAEvaluator) Allow(ctx context.Context, claims *security.Claims, required string) (bool, error) {
	scopes := []string{}
	if claims != nil {
		scopes = claims.Scopes
	}
	input := map[string]interface{}{
		"scopes":   scopes,
		"required": required,
	}
	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("eval scope policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	allowed, ok := rs[0].Expressions[0].Value.(bool)
	return ok && allowed, nil
}
