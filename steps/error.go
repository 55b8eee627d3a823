package steps

import (
	"context"
	"errors"

	"github.com/simon020286/go-datahub/builder"
	"github.com/simon020286/go-datahub/config"
	"github.com/simon020286/go-datahub/models"
)

// ErrorStep always fails. With partial set, the input document is kept
// as the output of the failed step.
type ErrorStep struct {
	baseStep
	message config.ValueSpec
	partial bool
}

func (s *ErrorStep) Run(_ context.Context, input *models.StepInput) (*models.Document, error) {
	msg, err := resolveString(s.message, input)
	if err != nil {
		return nil, err
	}
	if s.partial {
		return input.Document, errors.New(msg)
	}
	return nil, errors.New(msg)
}

func init() {
	builder.RegisterStepType("error", func(label string, cfg map[string]any) (models.Step, error) {
		engine, err := builder.EngineOption(cfg, models.EngineNative)
		if err != nil {
			return nil, err
		}
		message, ok := builder.ValueOption(cfg, "message")
		if !ok {
			message = config.NewStaticValue("step '" + label + "' failed")
		}
		partial, _ := cfg["partial"].(bool)

		return &ErrorStep{
			baseStep: baseStep{label: label, engine: engine},
			message:  message,
			partial:  partial,
		}, nil
	})
}
