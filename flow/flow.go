// Package flow defines flows, the ordered step sequences bound to an entity
// type, and the catalog they are resolved from.
package flow

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/simon020286/go-datahub/config"
	"github.com/simon020286/go-datahub/models"
	"github.com/simon020286/go-datahub/store"
)

// CollectorLabel is reserved for the step that enumerates the input documents
const CollectorLabel = config.CollectorLabel

// CollectInput is what a collector sees when it enumerates documents
type CollectInput struct {
	Staging    store.DocumentStore
	JobID      string
	EntityType string
	FlowName   string
	Variables  map[string]any
}

// StepInput returns the step input used to resolve collector options
func (ci *CollectInput) StepInput() *models.StepInput {
	return &models.StepInput{
		JobID:      ci.JobID,
		EntityType: ci.EntityType,
		FlowName:   ci.FlowName,
		Variables:  ci.Variables,
	}
}

// Collector is the first step of a flow: it lists the staging URIs to process
type Collector interface {
	models.Step
	Collect(ctx context.Context, input *CollectInput) ([]string, error)
}

// Flow is an immutable, ordered sequence of steps for one entity type.
// The collector is kept apart from the document steps.
type Flow struct {
	name        string
	entityType  string
	description string
	format      models.ContentFormat
	collector   Collector
	steps       []models.Step
	collections []string
	variables   map[string]any
}

// Option configures a Flow
type Option func(*Flow)

// WithDescription sets the human readable description
func WithDescription(d string) Option {
	return func(f *Flow) { f.description = d }
}

// WithCollections adds collections to every final document of the flow
func WithCollections(names ...string) Option {
	return func(f *Flow) { f.collections = append(f.collections, names...) }
}

// WithVariables sets the default run variables
func WithVariables(vars map[string]any) Option {
	return func(f *Flow) {
		f.variables = make(map[string]any, len(vars))
		for k, v := range vars {
			f.variables[k] = v
		}
	}
}

// New builds a flow. steps must start with a Collector labelled "collector"
// followed by at least one document step, all with distinct labels.
func New(name, entityType string, format models.ContentFormat, steps []models.Step, opts ...Option) (*Flow, error) {
	if name == "" || entityType == "" {
		return nil, errors.New("flow name and entity type are required")
	}
	if format == "" {
		format = models.FormatJSON
	}
	if !format.IsStructured() {
		return nil, fmt.Errorf("flow '%s': format must be xml or json, got %s", name, format)
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("flow '%s' has no steps", name)
	}

	collector, ok := steps[0].(Collector)
	if !ok || steps[0].Label() != CollectorLabel {
		return nil, fmt.Errorf("flow '%s': first step must be a collector labelled '%s'", name, CollectorLabel)
	}
	if len(steps) == 1 {
		return nil, fmt.Errorf("flow '%s' has no step after the collector", name)
	}

	seen := make(map[string]struct{}, len(steps))
	for i, s := range steps {
		if s == nil {
			return nil, fmt.Errorf("flow '%s': step %d is nil", name, i)
		}
		if _, dup := seen[s.Label()]; dup {
			return nil, fmt.Errorf("flow '%s': duplicate step label '%s'", name, s.Label())
		}
		seen[s.Label()] = struct{}{}
	}

	f := &Flow{
		name:       name,
		entityType: entityType,
		format:     format,
		collector:  collector,
		steps:      slices.Clone(steps[1:]),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func (f *Flow) Name() string                 { return f.name }
func (f *Flow) EntityType() string           { return f.entityType }
func (f *Flow) Description() string          { return f.description }
func (f *Flow) Format() models.ContentFormat { return f.format }
func (f *Flow) Collector() Collector         { return f.collector }

// StepCount returns the number of document steps, the collector excluded
func (f *Flow) StepCount() int {
	return len(f.steps)
}

// Step returns the document step at index i
func (f *Flow) Step(i int) models.Step {
	return f.steps[i]
}

// Steps returns a copy of the document steps in order
func (f *Flow) Steps() []models.Step {
	return slices.Clone(f.steps)
}

// Labels returns the labels of every step, the collector first
func (f *Flow) Labels() []string {
	labels := []string{f.collector.Label()}
	for _, s := range f.steps {
		labels = append(labels, s.Label())
	}
	return labels
}

// Collections returns the entity type, the flow name and the extra collections
// every final document belongs to
func (f *Flow) Collections() []string {
	return append([]string{f.entityType, f.name}, f.collections...)
}

// Variables returns a copy of the default run variables
func (f *Flow) Variables() map[string]any {
	out := make(map[string]any, len(f.variables))
	for k, v := range f.variables {
		out[k] = v
	}
	return out
}

// WriterIndex returns the index of the step whose output goes to the final
// store: the last step reporting CapWriteOutput, or the last step.
func (f *Flow) WriterIndex() int {
	for i := len(f.steps) - 1; i >= 0; i-- {
		if models.CapabilitiesOf(f.steps[i]).Has(models.CapWriteOutput) {
			return i
		}
	}
	return len(f.steps) - 1
}
