package models

import (
	"time"
)

// EventType is the type of an event emitted by a flow runner
type EventType string

const (
	// Flow events
	EventFlowStarted   EventType = "flow.started"
	EventFlowCompleted EventType = "flow.completed"
	EventFlowError     EventType = "flow.error"

	// Batch events
	EventBatchStarted   EventType = "batch.started"
	EventBatchCompleted EventType = "batch.completed"

	// Step events
	EventStepOutput EventType = "step.output"
	EventStepError  EventType = "step.error"

	// Document events
	EventDocumentCompleted EventType = "document.completed"
	EventDocumentFailed    EventType = "document.failed"

	// Trace events
	EventTraceWritten EventType = "trace.written"
)

// Event is a generic runner event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// EventListener must be implemented to receive runner events
type EventListener interface {
	OnEvent(event Event)
}

// EventListenerFunc adapts a function to EventListener
type EventListenerFunc func(event Event)

func (f EventListenerFunc) OnEvent(event Event) {
	f(event)
}
