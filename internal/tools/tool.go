// Package tools implements the tool layer of the assistant: a static
// registry of logistics tools, argument validation against declared
// schemas, and a dispatcher that maps every failure mode to a
// structured Result the model can read and correct.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// Tool is one registered capability: metadata, an argument schema for
// pre-dispatch validation, and the execution handler.
//
// Handlers report domain failures inside the Result envelope rather
// than as Go errors, so the model can see and react to them.
type Tool struct {
	name        string
	description string
	schema      *InputSchema

	run    func(ctx context.Context, args map[string]any) Result
	define func(g *genkit.Genkit) ai.Tool
}

// Name returns the tool's registry name.
func (t *Tool) Name() string { return t.name }

// Description returns the model-facing description.
func (t *Tool) Description() string { return t.description }

// Schema returns the argument schema, nil when the tool takes none.
func (t *Tool) Schema() *InputSchema { return t.schema }

// Run executes the tool. Args are assumed schema-valid; the dispatcher
// validates before calling.
func (t *Tool) Run(ctx context.Context, args map[string]any) Result {
	return t.run(ctx, args)
}

// New creates a Tool from a typed handler. The map arguments the model
// produces are decoded into In via JSON, so In's json tags define the
// argument names. The typed signature is preserved for Genkit tool
// definition, which derives the model-visible schema from In.
func New[In any](name, description string, schema *InputSchema, handler func(ctx context.Context, input In) Result) *Tool {
	t := &Tool{
		name:        name,
		description: description,
		schema:      schema,
	}

	t.run = func(ctx context.Context, args map[string]any) Result {
		var input In
		raw, err := json.Marshal(args)
		if err != nil {
			return Fail(ErrCodeInvalidArguments, fmt.Sprintf("encoding arguments: %v", err))
		}
		if err := json.Unmarshal(raw, &input); err != nil {
			return Fail(ErrCodeInvalidArguments, fmt.Sprintf("decoding arguments: %v", err))
		}
		return handler(ctx, input)
	}

	t.define = func(g *genkit.Genkit) ai.Tool {
		return genkit.DefineTool(g, name, description,
			func(tctx *ai.ToolContext, input In) (Result, error) {
				return handler(tctx, input), nil
			})
	}

	return t
}

// Define registers the tool with Genkit and returns the reference used
// in generate requests.
func (t *Tool) Define(g *genkit.Genkit) ai.Tool {
	return t.define(g)
}
