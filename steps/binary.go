package steps

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/simon020286/go-datahub/builder"
	"github.com/simon020286/go-datahub/config"
	"github.com/simon020286/go-datahub/models"
)

// BinaryStep emits a binary document built from a hex string or read from a file
type BinaryStep struct {
	baseStep
	hex  config.ValueSpec
	path config.ValueSpec
}

func (s *BinaryStep) Run(ctx context.Context, input *models.StepInput) (*models.Document, error) {
	if s.hex != nil {
		h, err := resolveString(s.hex, input)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve hex: %w", err)
		}
		content, err := hex.DecodeString(strings.TrimSpace(h))
		if err != nil {
			return nil, fmt.Errorf("invalid hex content: %w", err)
		}
		return models.NewDocument(input.URI, models.FormatBinary, content), nil
	}

	filePath, err := resolveString(s.path, input)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return models.NewDocument(input.URI, models.FormatBinary, content), nil
}

func init() {
	builder.RegisterStepType("binary", func(label string, cfg map[string]any) (models.Step, error) {
		engine, err := builder.EngineOption(cfg, models.EngineNative)
		if err != nil {
			return nil, err
		}
		step := &BinaryStep{baseStep: baseStep{label: label, engine: engine}}

		hexSpec, hasHex := builder.ValueOption(cfg, "hex")
		pathSpec, hasPath := builder.ValueOption(cfg, "path")
		switch {
		case hasHex && hasPath:
			return nil, errors.New("binary step accepts either 'hex' or 'path', not both")
		case hasHex:
			step.hex = hexSpec
		case hasPath:
			step.path = pathSpec
		default:
			return nil, models.ErrMissingConfig("hex")
		}
		return step, nil
	})
}
