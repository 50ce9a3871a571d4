// Package dispatch routes named tool invocations to the finance calculators
// and the vector store lookup.
//
// A [Definition] binds a tool name to its argument declaration and a call
// function. The [Router] owns the catalogue: it looks a tool up by name,
// validates the raw argument object against the declaration, invokes the
// binding and wraps the outcome. Every transport (MCP stdio, SSE, streamable
// HTTP and the CLI) goes through the same router.
package dispatch

import (
	"context"

	"github.com/MrWong99/finengine/internal/finance/args"
)

// CallFunc executes a tool with a bag that already passed validation against
// the tool's fields. Implementations must be safe for concurrent use and must
// respect context cancellation.
type CallFunc func(ctx context.Context, b args.Bag) (any, error)

// Definition is one entry of the tool catalogue.
type Definition struct {
	// Name is the unique tool name used for lookup.
	Name string

	// Description is the human-facing summary advertised in tools/list.
	Description string

	// Fields declares the accepted arguments. Both validation and the input
	// JSON Schema are derived from it.
	Fields []args.Field

	// Call runs the tool.
	Call CallFunc
}

// InputSchema renders the JSON Schema of the tool's argument object.
func (d Definition) InputSchema() map[string]any {
	return args.Schema(d.Fields)
}

// Required returns the names of the required arguments in declaration order.
func (d Definition) Required() []string {
	var out []string
	for _, f := range d.Fields {
		if f.Required {
			out = append(out, f.Name)
		}
	}
	return out
}

// bind adapts a calculator with a typed request into a [CallFunc].
func bind[Req, Res any](decode func(args.Bag) Req, calc func(Req) (*Res, error)) CallFunc {
	return func(_ context.Context, b args.Bag) (any, error) {
		res, err := calc(decode(b))
		if err != nil {
			return nil, err
		}
		return res, nil
	}
}
