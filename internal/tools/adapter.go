// Package tools provides the calculator, policy lookup and retriever tools
// and the adapter that exposes plain Go functions as dispatch.Tool.
package tools

import (
	"context"
	"fmt"
	"strings"

	dispatch "github.com/ZanzyTHEbar/dispatch-agent"
)

// Func is the signature of a function wrapped by an Adapter.
type Func func(ctx context.Context, input string) (interface{}, error)

// Adapter adapts a Go function to the dispatch.Tool interface.
type Adapter struct {
	fn          Func
	schema      map[string]interface{}
	name        dispatch.ToolName
	validator   func(string) error
	description string
	category    string
}

// AdapterOption represents an option for configuring an Adapter.
type AdapterOption func(*Adapter)

// WithValidator sets a custom validator function for the tool.
func WithValidator(validator func(string) error) AdapterOption {
	return func(a *Adapter) {
		a.validator = validator
	}
}

// WithCategory sets the tool's category.
func WithCategory(category string) AdapterOption {
	return func(a *Adapter) {
		a.category = category
		a.schema["category"] = category
	}
}

// WithDescription sets a detailed description for the tool.
func WithDescription(description string) AdapterOption {
	return func(a *Adapter) {
		a.description = description
		a.schema["description"] = description
	}
}

// WithParameters sets the parameters description in the schema.
func WithParameters(parameters map[string]string) AdapterOption {
	return func(a *Adapter) {
		a.schema["parameters"] = parameters
	}
}

// WithReturns sets the return value description in the schema.
func WithReturns(returns string) AdapterOption {
	return func(a *Adapter) {
		a.schema["returns"] = returns
	}
}

// WithExamples adds usage examples to the schema.
func WithExamples(examples []string) AdapterOption {
	return func(a *Adapter) {
		a.schema["examples"] = examples
	}
}

// NewAdapter creates a new adapter for fn. The default validator rejects
// blank input.
func NewAdapter(name dispatch.ToolName, fn Func, options ...AdapterOption) *Adapter {
	a := &Adapter{
		fn:        fn,
		schema:    map[string]interface{}{"name": string(name)},
		name:      name,
		validator: requireText,
	}

	for _, option := range options {
		option(a)
	}

	return a
}

// Execute validates input and runs the wrapped function.
func (a *Adapter) Execute(ctx context.Context, input string) (interface{}, error) {
	if a.fn == nil {
		return nil, dispatch.NewInternalError(string(a.name), "tool function is nil", nil)
	}
	if err := a.Validate(input); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, dispatch.NewCancelledError(string(a.name), err)
	}

	return a.fn(ctx, input)
}

// Schema returns the tool description.
func (a *Adapter) Schema() map[string]interface{} {
	return a.schema
}

// Validate runs the validator. Failures are validation errors.
func (a *Adapter) Validate(input string) error {
	if a.validator == nil {
		return nil
	}
	if err := a.validator(input); err != nil {
		if dispatch.IsDispatchError(err) {
			return err
		}
		return dispatch.NewValidationError(string(a.name), fmt.Sprintf("input validation failed for %s", a.name), err)
	}
	return nil
}

// Name returns the tool name.
func (a *Adapter) Name() dispatch.ToolName {
	return a.name
}

func requireText(input string) error {
	if strings.TrimSpace(input) == "" {
		return fmt.Errorf("input cannot be empty")
	}
	return nil
}
