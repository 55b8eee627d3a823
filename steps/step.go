// Package steps contains the step types available to flow definitions.
// Each type registers its factory with the builder in init.
package steps

import (
	"fmt"

	"github.com/simon020286/go-datahub/config"
	"github.com/simon020286/go-datahub/models"
)

// baseStep holds what every step reports about itself
type baseStep struct {
	label  string
	engine models.Engine
}

func (b baseStep) Label() string {
	return b.label
}

func (b baseStep) Engine() models.Engine {
	return b.engine
}

// resolveString resolves a value and formats it as a string
func resolveString(spec config.ValueSpec, input *models.StepInput) (string, error) {
	v, err := spec.Resolve(input)
	if err != nil {
		return "", err
	}
	if v == nil {
		return "", nil
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	return fmt.Sprintf("%v", v), nil
}

// outputFormat returns the configured format, or the flow format
func outputFormat(configured models.ContentFormat, input *models.StepInput) models.ContentFormat {
	if configured != "" {
		return configured
	}
	if input.Format != "" {
		return input.Format
	}
	return models.FormatJSON
}
