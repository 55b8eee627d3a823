package config

import (
	"fmt"
	"os"

	"github.com/dop251/goja"

	"github.com/simon020286/go-datahub/models"
)

// ValueSpec represents a value that can be static or dynamic
type ValueSpec interface {
	IsStatic() bool
	GetStaticValue() (any, bool)
	GetDynamicExpression() (DynamicValue, bool)
	// Resolve resolves the value against the step input of a document
	Resolve(input *models.StepInput) (any, error)
}

// StaticValue represents a literal value (number, string, bool, etc.)
type StaticValue struct {
	Value any
}

func NewStaticValue(value any) StaticValue {
	return StaticValue{
		Value: value,
	}
}

func (s StaticValue) IsStatic() bool {
	return true
}

func (s StaticValue) GetStaticValue() (any, bool) {
	return s.Value, true
}

func (s StaticValue) GetDynamicExpression() (DynamicValue, bool) {
	return DynamicValue{}, false
}

func (s StaticValue) Resolve(_ *models.StepInput) (any, error) {
	return s.Value, nil
}

// DynamicValue represents an expression to be evaluated at runtime
type DynamicValue struct {
	Language   string // only "js" is supported
	Expression string
}

func (d DynamicValue) IsStatic() bool {
	return false
}

func (d DynamicValue) GetStaticValue() (any, bool) {
	return nil, false
}

func (d DynamicValue) GetDynamicExpression() (DynamicValue, bool) {
	return d, true
}

func (d DynamicValue) Resolve(input *models.StepInput) (any, error) {
	switch d.Language {
	case "js", "javascript", "":
		return d.resolveJS(input)
	default:
		return nil, fmt.Errorf("unsupported language: %s", d.Language)
	}
}

// resolveJS evaluates a JavaScript expression using Goja.
// The expression sees the document as ctx and the run variables as $vars.
func (d DynamicValue) resolveJS(input *models.StepInput) (any, error) {
	runtime := goja.New()

	if err := runtime.Set("ctx", ExpressionContext(input)); err != nil {
		return nil, fmt.Errorf("failed to set context: %w", err)
	}

	vars := map[string]any{}
	if input != nil && input.Variables != nil {
		vars = input.Variables
	}
	if err := runtime.Set("$vars", vars); err != nil {
		return nil, fmt.Errorf("failed to set global variables: %w", err)
	}

	wrappedCode := "(function() {\n return " + d.Expression + "\n})()"

	result, err := runtime.RunString(wrappedCode)
	if err != nil {
		return nil, fmt.Errorf("failed to execute JS expression '%s': %w", d.Expression, err)
	}

	return result.Export(), nil
}

// ExpressionContext exposes a step input to expressions and templates:
// uri, format, jobId, entityType, flowName, content and previous (label to content).
func ExpressionContext(input *models.StepInput) map[string]any {
	ctx := make(map[string]any)
	if input == nil {
		return ctx
	}

	ctx["uri"] = input.URI
	ctx["format"] = string(input.Format)
	ctx["jobId"] = input.JobID
	ctx["entityType"] = input.EntityType
	ctx["flowName"] = input.FlowName
	if input.Document != nil {
		ctx["content"] = string(input.Document.Content)
	}

	previous := make(map[string]any, len(input.Previous))
	for label, doc := range input.Previous {
		if doc != nil {
			previous[label] = string(doc.Content)
		}
	}
	ctx["previous"] = previous

	return ctx
}

// HasDynamicValues checks if at least one value is dynamic
func HasDynamicValues(values map[string]ValueSpec) bool {
	for _, v := range values {
		if !v.IsStatic() {
			return true
		}
	}
	return false
}

// ExtractStaticValues extracts only static values into a map[string]any
func ExtractStaticValues(values map[string]ValueSpec) map[string]any {
	result := make(map[string]any)
	for k, v := range values {
		if staticVal, ok := v.GetStaticValue(); ok {
			result[k] = staticVal
		}
	}
	return result
}

// ResolveAll resolves every value of the map
func ResolveAll(values map[string]ValueSpec, input *models.StepInput) (map[string]any, error) {
	result := make(map[string]any, len(values))
	for k, v := range values {
		resolved, err := v.Resolve(input)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve '%s': %w", k, err)
		}
		result[k] = resolved
	}
	return result, nil
}

// VariableReference represents a reference to a run variable ($var:name)
type VariableReference struct {
	Name string
}

func (v VariableReference) IsStatic() bool {
	return false
}

func (v VariableReference) GetStaticValue() (any, bool) {
	return nil, false
}

func (v VariableReference) GetDynamicExpression() (DynamicValue, bool) {
	return DynamicValue{Language: "js", Expression: "$vars." + v.Name}, true
}

func (v VariableReference) Resolve(input *models.StepInput) (any, error) {
	if input == nil || input.Variables == nil {
		return nil, fmt.Errorf("variable '%s' not found: no variables defined", v.Name)
	}

	value, exists := input.Variables[v.Name]
	if !exists {
		return nil, fmt.Errorf("variable '%s' not found in variables", v.Name)
	}

	return value, nil
}

// EnvReference represents a reference to an environment variable ($env:NAME)
type EnvReference struct {
	Name string
}

func (e EnvReference) IsStatic() bool {
	return false
}

func (e EnvReference) GetStaticValue() (any, bool) {
	return nil, false
}

func (e EnvReference) GetDynamicExpression() (DynamicValue, bool) {
	return DynamicValue{}, false
}

func (e EnvReference) Resolve(_ *models.StepInput) (any, error) {
	value := os.Getenv(e.Name)
	if value == "" {
		return nil, fmt.Errorf("environment variable '%s' is not set or is empty", e.Name)
	}

	return value, nil
}
