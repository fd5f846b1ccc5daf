// Package policy gates model-requested tool calls through an OPA policy.
// Scope enforcement lives inside the tools themselves; this gate decides
// only whether a tool name may be executed at all for the caller's role.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
)

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.chat_tools.decision"),
		rego.Module("chat_tools.rego", policyContent),
		rego.SetRegoVersion(ast.RegoV1),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Input is the policy evaluation input for one tool call.
type Input struct {
	ToolName string `json:"tool_name"`
	Role     string `json:"role"`
}

// Allow evaluates the policy for a tool call. Anything other than an
// explicit "allow" decision denies the call.
func (e *Engine) Allow(ctx context.Context, input Input) (bool, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(map[string]interface{}{
		"tool_name": input.ToolName,
		"role":      input.Role,
	}))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, nil
	}
	decision, ok := results[0].Expressions[0].Value.(string)
	if !ok {
		return false, nil
	}
	return decision == "allow", nil
}

// DefaultPolicy admits exactly the read-only clinic tool catalog. Unknown
// tool names are denied regardless of role.
const DefaultPolicy = `
package chat_tools

default decision := "deny"

catalog := {
	"list_veterinarians",
	"find_vets_by_specialty",
	"list_pet_types",
	"upcoming_visits_for_owner",
	"upcoming_visits",
	"clinic_info",
}

decision := "allow" if input.tool_name in catalog
`
