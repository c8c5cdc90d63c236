// Package scope decides whether a token's claims satisfy a required scope.
package scope

import (
	"context"

	"authcore/internal/security"
)

// Evaluator answers scope checks during authorization. Implementations must
// be safe for concurrent use.
type Evaluator interface {
	// Allow reports whether claims satisfy required. An empty required scope
	// always passes.
	Allow(ctx context.Context, claims *security.Claims, required string) (bool, error)
}

// StaticEvaluator grants a scope when the claims carry it literally or carry
// the "*" wildcard. For deployments that do not want a policy engine.
type StaticEvaluator struct{}

// Allow implements Evaluator by scope-list membership.
func (StaticEvaluator) Allow(_ context.Context, claims *security.Claims, required string) (bool, error) {
	if required == "" {
		return true, nil
	}
	if claims == nil {
		return false, nil
	}
	for _, s := range claims.Scopes {
		if s == required || s == "*" {
			return true, nil
		}
	}
	return false, nil
}
