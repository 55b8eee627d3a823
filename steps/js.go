package steps

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dop251/goja"

	"github.com/simon020286/go-datahub/builder"
	"github.com/simon020286/go-datahub/config"
	"github.com/simon020286/go-datahub/models"
)

// JsStep runs a JavaScript body with the script engine.
// The body sees the document as input and returns the output value:
// a string is read in the flow format, binary(hex) builds a binary
// document and any other value is serialized as JSON.
type JsStep struct {
	baseStep
	code    string
	options map[string]config.ValueSpec
}

// binaryValue is what the script's binary() helper returns
type binaryValue struct {
	data []byte
}

func (s *JsStep) Run(ctx context.Context, input *models.StepInput) (*models.Document, error) {
	options, err := config.ResolveAll(s.options, input)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve options: %w", err)
	}

	runtime := goja.New()
	stop := context.AfterFunc(ctx, func() {
		runtime.Interrupt(ctx.Err())
	})
	defer stop()

	jsInput := config.ExpressionContext(input)
	jsInput["options"] = options

	if err := runtime.Set("input", jsInput); err != nil {
		return nil, fmt.Errorf("failed to set input in JavaScript runtime: %w", err)
	}
	vars := input.Variables
	if vars == nil {
		vars = map[string]any{}
	}
	if err := runtime.Set("$vars", vars); err != nil {
		return nil, fmt.Errorf("failed to set global variables: %w", err)
	}
	if err := runtime.Set("binary", newBinaryValue); err != nil {
		return nil, fmt.Errorf("failed to set binary helper: %w", err)
	}

	// The user can write: return { key: "value" };
	wrappedCode := "(function() {\n" + s.code + "\n})()"

	result, err := runtime.RunString(wrappedCode)
	if err != nil {
		return nil, fmt.Errorf("JavaScript execution error: %w", err)
	}
	if result == nil || goja.IsUndefined(result) || goja.IsNull(result) {
		return nil, errors.New("script returned no value")
	}

	switch v := result.Export().(type) {
	case *binaryValue:
		return models.NewDocument(input.URI, models.FormatBinary, v.data), nil
	case string:
		return models.NewDocument(input.URI, outputFormat("", input), []byte(v)), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize script result: %w", err)
		}
		return models.NewDocument(input.URI, models.FormatJSON, b), nil
	}
}

func newBinaryValue(h string) (*binaryValue, error) {
	b, err := hex.DecodeString(h)
	if err != nil {
		return nil, fmt.Errorf("binary: %w", err)
	}
	return &binaryValue{data: b}, nil
}

func init() {
	builder.RegisterStepType("js", func(label string, cfg map[string]any) (models.Step, error) {
		code, ok := cfg["code"].(string)
		if !ok || code == "" {
			return nil, models.ErrMissingConfig("code")
		}
		engine, err := builder.EngineOption(cfg, models.EngineScript)
		if err != nil {
			return nil, err
		}
		options, _ := cfg["options"].(map[string]any)

		return &JsStep{
			baseStep: baseStep{label: label, engine: engine},
			code:     code,
			options:  builder.ParseConfigValues(options),
		}, nil
	})
}
