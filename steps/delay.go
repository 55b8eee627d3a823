package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/simon020286/go-datahub/builder"
	"github.com/simon020286/go-datahub/config"
	"github.com/simon020286/go-datahub/models"
)

// DelayStep pauses for ms milliseconds then passes the document through
type DelayStep struct {
	baseStep
	delay config.ValueSpec
}

func (s *DelayStep) Run(ctx context.Context, input *models.StepInput) (*models.Document, error) {
	delayResolved, err := s.delay.Resolve(input)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve delay: %w", err)
	}
	delayMS, err := builder.ToInt(delayResolved)
	if err != nil {
		return nil, fmt.Errorf("delay %w", err)
	}

	timer := time.NewTimer(time.Duration(delayMS) * time.Millisecond)
	defer timer.Stop()

	select {
	case <-timer.C:
		return input.Document, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func init() {
	builder.RegisterStepType("delay", func(label string, cfg map[string]any) (models.Step, error) {
		delaySpec, ok := builder.ValueOption(cfg, "ms")
		if !ok {
			return nil, models.ErrMissingConfig("ms")
		}
		return &DelayStep{
			baseStep: baseStep{label: label, engine: models.EngineNative},
			delay:    delaySpec,
		}, nil
	})
}
