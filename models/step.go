package models

import "context"

// Step represents one labelled transformation of a flow.
// Run receives the current document and returns a new one.
// A non-nil document returned along with an error is kept as the
// partial output of the failed step.
type Step interface {
	// Label identifies the step inside its flow (e.g. "content", "writer")
	Label() string
	// Engine reports which engine executes the step
	Engine() Engine
	// Run transforms the input document
	Run(ctx context.Context, input *StepInput) (*Document, error)
}

// Capabilities is the set of things a step is allowed to do
type Capabilities uint8

const (
	CapTransform Capabilities = 1 << iota
	CapReadInput
	CapWriteOutput
	CapMayFail
)

// Has reports whether all the bits of c2 are set
func (c Capabilities) Has(c2 Capabilities) bool {
	return c&c2 == c2
}

// Capable is implemented by steps that declare their capabilities.
// Steps that don't are treated as CapTransform|CapReadInput|CapMayFail.
type Capable interface {
	Capabilities() Capabilities
}

// DefaultCapabilities is assumed for steps not implementing Capable
const DefaultCapabilities = CapTransform | CapReadInput | CapMayFail

// CapabilitiesOf returns the declared or default capabilities of a step
func CapabilitiesOf(s Step) Capabilities {
	if c, ok := s.(Capable); ok {
		return c.Capabilities()
	}
	return DefaultCapabilities
}
