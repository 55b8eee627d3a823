package config

import (
	"fmt"

	"github.com/simon020286/go-datahub/models"
)

// ValidateFlowConfig checks a flow definition before any step is created
func ValidateFlowConfig(cfg *FlowConfig) error {
	if cfg.Name == "" {
		return models.ErrMissingConfig("name")
	}
	if cfg.EntityType == "" {
		return models.ErrMissingConfig("entity_type")
	}
	if cfg.Format != "" {
		format, err := models.ParseFormat(cfg.Format)
		if err != nil {
			return fmt.Errorf("flow '%s': %w", cfg.Name, err)
		}
		if !format.IsStructured() {
			return fmt.Errorf("flow '%s': format must be xml or json, got %s", cfg.Name, format)
		}
	}
	if len(cfg.Steps) == 0 {
		return fmt.Errorf("flow '%s' has no steps", cfg.Name)
	}

	seen := make(map[string]int, len(cfg.Steps))
	for i, step := range cfg.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("flow '%s' step %d: %w", cfg.Name, i, err)
		}
		if prev, dup := seen[step.Label]; dup {
			return fmt.Errorf("flow '%s': duplicate step label '%s' (steps %d and %d)", cfg.Name, step.Label, prev, i)
		}
		seen[step.Label] = i
	}

	if cfg.Steps[0].Label != CollectorLabel {
		return fmt.Errorf("flow '%s': first step must be labelled '%s'", cfg.Name, CollectorLabel)
	}
	if len(cfg.Steps) < 2 {
		return fmt.Errorf("flow '%s' has no step after the collector", cfg.Name)
	}

	return nil
}

func validateStep(step StepConfig) error {
	if step.Label == "" {
		return models.ErrMissingConfig("label")
	}
	if step.StepType == "" {
		return models.ErrMissingConfig("step_type")
	}
	if engine, ok := step.StepConfig["engine"]; ok {
		name, ok := engine.(string)
		if !ok {
			return fmt.Errorf("engine of step '%s' must be a string", step.Label)
		}
		if _, err := models.ParseEngine(name); err != nil {
			return fmt.Errorf("step '%s': %w", step.Label, err)
		}
	}
	return nil
}
