package datahub

import (
	"sync"
	"time"

	"github.com/simon020286/go-datahub/models"
)

// eventBus manages event distribution to registered listeners (private)
type eventBus struct {
	listeners []models.EventListener
	mutex     sync.RWMutex
	pendingWg sync.WaitGroup // Tracks events being processed
}

// newEventBus creates a new eventBus instance (private)
func newEventBus() *eventBus {
	return &eventBus{
		listeners: make([]models.EventListener, 0),
	}
}

// addListener registers a new listener
func (eb *eventBus) addListener(listener models.EventListener) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()
	eb.listeners = append(eb.listeners, listener)
}

// Emit sends an event to all registered listeners
func (eb *eventBus) Emit(eventType models.EventType, data map[string]interface{}) {
	eb.mutex.RLock()
	listeners := make([]models.EventListener, len(eb.listeners))
	copy(listeners, eb.listeners)
	eb.mutex.RUnlock()

	if len(listeners) == 0 {
		return
	}

	event := models.Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	// Notify all listeners asynchronously to avoid blocking the workers
	for _, listener := range listeners {
		eb.pendingWg.Add(1)
		go func(l models.EventListener) {
			defer eb.pendingWg.Done()
			l.OnEvent(event)
		}(listener)
	}
}

// Wait waits for all pending events to be processed
func (eb *eventBus) Wait() {
	eb.pendingWg.Wait()
}

func (eb *eventBus) EmitFlowStarted(jobID, entityType, flowName string) {
	eb.Emit(models.EventFlowStarted, map[string]interface{}{
		"job_id":      jobID,
		"entity_type": entityType,
		"flow":        flowName,
	})
}

func (eb *eventBus) EmitFlowCompleted(result JobResult) {
	eb.Emit(models.EventFlowCompleted, map[string]interface{}{
		"job_id":    result.JobID,
		"status":    string(result.Status),
		"succeeded": result.Counts.Succeeded,
		"failed":    result.Counts.Failed,
		"duration":  result.Finished.Sub(result.Started),
	})
}

func (eb *eventBus) EmitFlowError(jobID string, err error) {
	eb.Emit(models.EventFlowError, map[string]interface{}{
		"job_id": jobID,
		"error":  err.Error(),
	})
}

func (eb *eventBus) EmitBatchStarted(jobID string, batch, size int) {
	eb.Emit(models.EventBatchStarted, map[string]interface{}{
		"job_id": jobID,
		"batch":  batch,
		"size":   size,
	})
}

func (eb *eventBus) EmitBatchCompleted(jobID string, batch int, duration time.Duration) {
	eb.Emit(models.EventBatchCompleted, map[string]interface{}{
		"job_id":   jobID,
		"batch":    batch,
		"duration": duration,
	})
}

func (eb *eventBus) EmitStepOutput(jobID, label, uri string, output *models.Document) {
	eb.Emit(models.EventStepOutput, map[string]interface{}{
		"job_id": jobID,
		"label":  label,
		"uri":    uri,
		"format": string(output.Format),
		"size":   len(output.Content),
	})
}

func (eb *eventBus) EmitStepError(jobID, label, uri string, err error) {
	eb.Emit(models.EventStepError, map[string]interface{}{
		"job_id": jobID,
		"label":  label,
		"uri":    uri,
		"error":  err.Error(),
	})
}

func (eb *eventBus) EmitDocumentCompleted(jobID, uri string) {
	eb.Emit(models.EventDocumentCompleted, map[string]interface{}{
		"job_id": jobID,
		"uri":    uri,
	})
}

func (eb *eventBus) EmitDocumentFailed(jobID, uri string, err error) {
	eb.Emit(models.EventDocumentFailed, map[string]interface{}{
		"job_id": jobID,
		"uri":    uri,
		"error":  err.Error(),
	})
}

func (eb *eventBus) EmitTraceWritten(jobID, traceURI, identifier string) {
	eb.Emit(models.EventTraceWritten, map[string]interface{}{
		"job_id":     jobID,
		"trace_uri":  traceURI,
		"identifier": identifier,
	})
}
