package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	ports "github.com/ZanzyTHEbar/fitcheck/fitcheck/generation/harness/ports"
	"github.com/xeipuuv/gojsonschema"
)

// Dispatcher maps declared tool names to handlers. It never returns an
// error: unknown tools, bad arguments and handler failures all come back as
// a ToolResult the model can read.
type Dispatcher struct {
	tools     map[string]ports.Tool
	order     []string
	validator *JSONValidator
	tracer    ports.Tracer
}

// NewDispatcher declares the given tools. Later duplicates replace earlier ones.
func NewDispatcher(tools []ports.Tool, tracer ports.Tracer) *Dispatcher {
	if tracer == nil {
		tracer = &noOpTracer{}
	}
	d := &Dispatcher{
		tools:     make(map[string]ports.Tool, len(tools)),
		validator: NewJSONValidator(),
		tracer:    tracer,
	}
	for _, t := range tools {
		if _, dup := d.tools[t.Name()]; !dup {
			d.order = append(d.order, t.Name())
		}
		d.tools[t.Name()] = t
	}
	return d
}

// Specs returns the declarations of every tool in registration order.
func (d *Dispatcher) Specs() []ports.ToolSpec {
	specs := make([]ports.ToolSpec, 0, len(d.order))
	for _, name := range d.order {
		specs = append(specs, ports.SpecOf(d.tools[name]))
	}
	return specs
}

// Dispatch executes one tool call.
func (d *Dispatcher) Dispatch(ctx context.Context, scope *ports.TaskScope, call ports.ToolCall) (result ports.ToolResult) {
	ctx, finish := d.tracer.StartSpan(ctx, "tool_dispatch", map[string]any{"tool": call.Name})
	defer func() { finish(errorOf(result)) }()

	tool, ok := d.tools[call.Name]
	if !ok {
		return ports.ToolResult{
			Text:    fmt.Sprintf("Unknown function: %s. Available functions: %s.", call.Name, strings.Join(d.order, ", ")),
			IsError: true,
		}
	}

	args := call.Args
	if len(strings.TrimSpace(string(args))) == 0 {
		args = json.RawMessage(`{}`)
	}
	if err := d.validator.Validate(args, tool.Schema()); err != nil {
		return ports.ToolResult{
			Text:    fmt.Sprintf("Invalid arguments for %s: %v", call.Name, err),
			IsError: true,
		}
	}

	defer func() {
		if r := recover(); r != nil {
			result = ports.ToolResult{Text: fmt.Sprintf("Error in %s: %v", call.Name, r), IsError: true}
		}
	}()

	res, err := tool.Invoke(ctx, scope, args)
	if err != nil {
		return ports.ToolResult{Text: fmt.Sprintf("Error in %s: %v", call.Name, err), IsError: true}
	}
	return res
}

func errorOf(r ports.ToolResult) error {
	if r.IsError {
		return fmt.Errorf("%s", r.Text)
	}
	return nil
}

// JSONValidator handles JSON schema validation.
type JSONValidator struct{}

// NewJSONValidator creates a new JSON validator.
func NewJSONValidator() *JSONValidator {
	return &JSONValidator{}
}

// Validate checks if JSON data conforms to a schema.
func (v *JSONValidator) Validate(data json.RawMessage, schema []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("data is not valid JSON")
	}
	if len(schema) == 0 {
		return nil
	}

	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schema), gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if !result.Valid() {
		var errs []string
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
