package builder

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/google/uuid"

	"github.com/simon020286/go-datahub/config"
	"github.com/simon020286/go-datahub/models"
)

// CreateStep creates a step based on type and configuration
func CreateStep(stepType, label string, stepConfig map[string]any) (models.Step, error) {
	factory, err := GetStepFactory(stepType)
	if err != nil {
		return nil, err
	}
	if stepConfig == nil {
		stepConfig = map[string]any{}
	}
	step, err := factory(label, stepConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s step '%s': %w", stepType, label, err)
	}
	return step, nil
}

// NewJobID generates a unique ID for a flow run
func NewJobID() string {
	return uuid.NewString()
}

// ParseConfigValue converts a configuration value to config.ValueSpec.
// Recognizes the "$js:", "$var:" and "$env:" prefixes.
func ParseConfigValue(v any) config.ValueSpec {
	if vs, ok := v.(config.ValueSpec); ok {
		return vs
	}

	if str, ok := v.(string); ok {
		switch {
		case strings.HasPrefix(str, "$js:"):
			expr := strings.TrimSpace(strings.TrimPrefix(str, "$js:"))
			return config.DynamicValue{
				Language:   "js",
				Expression: expr,
			}
		case strings.HasPrefix(str, "$var:"):
			return config.VariableReference{Name: strings.TrimSpace(strings.TrimPrefix(str, "$var:"))}
		case strings.HasPrefix(str, "$env:"):
			return config.EnvReference{Name: strings.TrimSpace(strings.TrimPrefix(str, "$env:"))}
		}
	}

	return config.StaticValue{Value: v}
}

// ParseConfigValues converts every value of a configuration map
func ParseConfigValues(values map[string]any) map[string]config.ValueSpec {
	result := make(map[string]config.ValueSpec, len(values))
	for k, v := range values {
		result[k] = ParseConfigValue(v)
	}
	return result
}

// ValueOption returns the ValueSpec of a configuration key and whether the key is set
func ValueOption(cfg map[string]any, key string) (config.ValueSpec, bool) {
	v, ok := cfg[key]
	if !ok || v == nil {
		return nil, false
	}
	return ParseConfigValue(v), true
}

// StringOption returns a literal string option
func StringOption(cfg map[string]any, key, def string) (string, error) {
	v, ok := cfg[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("'%s' must be a string, got %T", key, v)
	}
	return s, nil
}

// EngineOption reads the "engine" option, defaulting to def
func EngineOption(cfg map[string]any, def models.Engine) (models.Engine, error) {
	name, err := StringOption(cfg, "engine", "")
	if err != nil {
		return def, err
	}
	if name == "" {
		return def, nil
	}
	return models.ParseEngine(name)
}

// FormatOption reads a content format option, empty when absent
func FormatOption(cfg map[string]any, key string) (models.ContentFormat, error) {
	name, err := StringOption(cfg, key, "")
	if err != nil || name == "" {
		return "", err
	}
	return models.ParseFormat(name)
}

// ToInt converts resolved numeric values
func ToInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("must be a number, got %T", v)
	}
}

// RenderTemplate renders a Go template with values resolved against the input.
// If all values are static they are not resolved again.
func RenderTemplate(tmpl *template.Template, values map[string]config.ValueSpec, input *models.StepInput) (string, error) {
	data := config.ExpressionContext(input)

	var resolved map[string]any
	if !config.HasDynamicValues(values) {
		resolved = config.ExtractStaticValues(values)
	} else {
		var err error
		resolved, err = config.ResolveAll(values, input)
		if err != nil {
			return "", err
		}
	}
	data["values"] = resolved
	if input != nil {
		data["vars"] = input.Variables
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}

// ParseTemplate parses a Go template with the helper functions available to steps
func ParseTemplate(name, text string) (*template.Template, error) {
	tmpl, err := template.New(name).Funcs(templateFuncs).Option("missingkey=zero").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	return tmpl, nil
}

var templateFuncs = template.FuncMap{
	"upper":   strings.ToUpper,
	"lower":   strings.ToLower,
	"trim":    strings.TrimSpace,
	"xmlText": xmlText,
	"jsonStr": jsonString,
}

func xmlText(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&apos;")
	return r.Replace(s)
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// GetRegisteredStepTypes returns all registered step types
func GetRegisteredStepTypes() []string {
	return ListStepTypes()
}
