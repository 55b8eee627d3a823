package models

// StepInput contains the input of a step invocation for one document
type StepInput struct {
	URI        string               // URI of the source document
	Document   *Document            // Current document (output of the previous step)
	Previous   map[string]*Document // Outputs of the steps already run, by label
	JobID      string               // Job the invocation belongs to
	EntityType string
	FlowName   string
	Format     ContentFormat  // Data format of the flow
	Variables  map[string]any // Global variables of the run
}

// Output returns the output of a previous step or nil
func (si *StepInput) Output(label string) *Document {
	if si.Previous == nil {
		return nil
	}
	return si.Previous[label]
}
