package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// CollectorLabel is the reserved label of the first step of every flow
const CollectorLabel = "collector"

// FlowConfig represents a flow definition from YAML
type FlowConfig struct {
	Name        string         `yaml:"name"`
	EntityType  string         `yaml:"entity_type"`
	Description string         `yaml:"description"`
	Format      string         `yaml:"format"`                // xml or json, defaults to json
	Collections []string       `yaml:"collections,omitempty"` // Extra collections of the final documents
	Variables   map[string]any `yaml:"variables,omitempty"`   // Default run variables
	Steps       []StepConfig   `yaml:"steps"`
}

// StepConfig represents the configuration of a step from YAML
type StepConfig struct {
	Label      string         `yaml:"label"`
	StepType   string         `yaml:"step_type"`   // Type of step to instantiate
	StepConfig map[string]any `yaml:"step_config"` // Specific step configuration
}

// ParseFlowConfig decodes and validates a YAML flow definition
func ParseFlowConfig(data []byte) (*FlowConfig, error) {
	var cfg FlowConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse flow YAML: %w", err)
	}
	if err := ValidateFlowConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
