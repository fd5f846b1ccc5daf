// Package tools implements the read-only data access tool catalog exposed
// to the inference capability.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/emeraldgrove/clinic-assistant/internal/adapter/llm"
)

// ExecutorFunc runs one tool call.
type ExecutorFunc func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// Catalog holds the tool definitions and executors for a single request.
// A catalog is built per request with the request's access scope bound
// into the executors, so a tool call can never reach data outside the
// scope it was constructed with.
type Catalog struct {
	defs      []llm.Tool
	executors map[string]ExecutorFunc
}

func newCatalog() *Catalog {
	return &Catalog{executors: make(map[string]ExecutorFunc)}
}

func (c *Catalog) register(name, description string, params interface{}, exec ExecutorFunc) {
	c.defs = append(c.defs, llm.Tool{
		Type: "function",
		Function: llm.ToolFunction{
			Name:        name,
			Description: description,
			Parameters:  params,
		},
	})
	c.executors[name] = exec
}

// Definitions returns the tool definitions to advertise to the model.
func (c *Catalog) Definitions() []llm.Tool {
	return c.defs
}

// Execute runs the executor for the tool name.
func (c *Catalog) Execute(ctx context.Context, toolName string, args json.RawMessage) (json.RawMessage, error) {
	exec := c.executors[toolName]
	if exec == nil {
		return nil, fmt.Errorf("no executor registered for %s", toolName)
	}
	return exec(ctx, args)
}
