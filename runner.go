package datahub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/simon020286/go-datahub/builder"
	"github.com/simon020286/go-datahub/flow"
	"github.com/simon020286/go-datahub/logger"
	"github.com/simon020286/go-datahub/models"
	"github.com/simon020286/go-datahub/store"
	"github.com/simon020286/go-datahub/tracing"
)

const (
	DefaultBatchSize   = 100
	DefaultThreadCount = 4
)

// RunnerState is the lifecycle state of a FlowRunner
type RunnerState int32

const (
	StateIdle RunnerState = iota
	StateDispatching
	StateRunning
	StateCompleted
)

func (s RunnerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDispatching:
		return "dispatching"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// JobStatus summarizes how a run ended
type JobStatus string

const (
	JobStatusPending            JobStatus = "pending"
	JobStatusRunning            JobStatus = "running"
	JobStatusFinished           JobStatus = "finished"
	JobStatusFinishedWithErrors JobStatus = "finished_with_errors"
	JobStatusFailed             JobStatus = "failed"
	JobStatusCanceled           JobStatus = "canceled"
)

// JobCounts are the document counters of a run
type JobCounts struct {
	Collected int // URIs returned by the collector
	Batches   int // Batches submitted to the workers
	Succeeded int // Documents written to the final store
	Failed    int // Documents that failed at a step or at a store
	Traces    int // Trace documents written, the run trace included
}

// JobResult describes a run
type JobResult struct {
	JobID      string
	EntityType string
	FlowName   string
	Status     JobStatus
	Counts     JobCounts
	FailedURIs []string
	Err        error // Set when the run could not dispatch its documents
	Started    time.Time
	Finished   time.Time
}

// FlowRunner executes one flow over the documents returned by its collector.
// A runner is configured, run once and then awaited.
type FlowRunner struct {
	manager *FlowManager
	logger  logger.Logger

	// configuration, fixed once Run is called
	entityType  string
	flowName    string
	flow        *flow.Flow
	batchSize   int
	threadCount int
	variables   map[string]any
	jobID       string
	runTrace    bool
	configErr   error

	eventBus *eventBus

	mu         sync.Mutex
	state      RunnerState
	done       chan struct{}
	result     JobResult
	failedURIs []string

	succeeded atomic.Int64
	failed    atomic.Int64
	traces    atomic.Int64
}

func newFlowRunner(m *FlowManager) *FlowRunner {
	return &FlowRunner{
		manager:     m,
		logger:      m.logger,
		batchSize:   DefaultBatchSize,
		threadCount: DefaultThreadCount,
		runTrace:    true,
		eventBus:    newEventBus(),
		state:       StateIdle,
	}
}

// WithFlow selects the flow to run from the manager catalog
func (r *FlowRunner) WithFlow(entityType, name string) *FlowRunner {
	r.entityType = entityType
	r.flowName = name
	r.flow = nil
	return r
}

// WithFlowDefinition runs a flow that is not in the catalog
func (r *FlowRunner) WithFlowDefinition(f *flow.Flow) *FlowRunner {
	r.flow = f
	return r
}

// WithBatchSize sets how many documents a worker processes per task
func (r *FlowRunner) WithBatchSize(size int) *FlowRunner {
	if size <= 0 {
		r.configErr = fmt.Errorf("batch size must be positive, got %d", size)
		return r
	}
	r.batchSize = size
	return r
}

// WithThreadCount sets how many batches are processed concurrently
func (r *FlowRunner) WithThreadCount(count int) *FlowRunner {
	if count <= 0 {
		r.configErr = fmt.Errorf("thread count must be positive, got %d", count)
		return r
	}
	r.threadCount = count
	return r
}

// WithVariables sets run variables, overriding the flow defaults
func (r *FlowRunner) WithVariables(vars map[string]any) *FlowRunner {
	r.variables = vars
	return r
}

// WithJobID sets the job id instead of a generated one
func (r *FlowRunner) WithJobID(id string) *FlowRunner {
	r.jobID = id
	return r
}

// WithRunTrace controls the run trace listing the collected URIs,
// written when tracing is enabled at dispatch. It is on by default.
func (r *FlowRunner) WithRunTrace(enabled bool) *FlowRunner {
	r.runTrace = enabled
	return r
}

// AddListener adds a listener to receive events from the run
func (r *FlowRunner) AddListener(listener models.EventListener) *FlowRunner {
	r.eventBus.addListener(listener)
	return r
}

// State returns the current lifecycle state
func (r *FlowRunner) State() RunnerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// JobID returns the id of the run, empty before Run
func (r *FlowRunner) JobID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result.JobID
}

// Run starts the run in background (non blocking). It fails with an
// InvalidStateError if the runner was already started.
func (r *FlowRunner) Run(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateIdle {
		return &models.InvalidStateError{Op: "run", State: r.state.String()}
	}
	if r.configErr != nil {
		return r.configErr
	}

	f := r.flow
	if f == nil {
		if r.entityType == "" || r.flowName == "" {
			return errors.New("no flow selected")
		}
		var err error
		if f, err = r.manager.GetFlow(r.entityType, r.flowName); err != nil {
			return err
		}
		r.flow = f
	}

	jobID := r.jobID
	if jobID == "" {
		jobID = builder.NewJobID()
	}

	vars := f.Variables()
	for k, v := range r.variables {
		vars[k] = v
	}

	r.state = StateDispatching
	r.done = make(chan struct{})
	r.result = JobResult{
		JobID:      jobID,
		EntityType: f.EntityType(),
		FlowName:   f.Name(),
		Status:     JobStatusRunning,
		Started:    time.Now(),
	}
	r.logger = r.manager.logger.With(
		zap.String("job_id", jobID),
		zap.String("entity_type", f.EntityType()),
		zap.String("flow", f.Name()))

	job := &job{
		runner: r,
		flow:   f,
		id:     jobID,
		vars:   vars,
	}
	go job.execute(logger.ContextWithJobID(ctx, jobID))

	return nil
}

// AwaitCompletion blocks until every batch has been processed. Per document
// failures are reported in Job, not here: the error is an InvalidStateError
// when the runner was never started, or the reason the run could not dispatch.
func (r *FlowRunner) AwaitCompletion() error {
	r.mu.Lock()
	if r.state == StateIdle {
		r.mu.Unlock()
		return &models.InvalidStateError{Op: "await completion", State: r.state.String()}
	}
	done := r.done
	r.mu.Unlock()

	<-done

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result.Err
}

// Job returns a snapshot of the run
func (r *FlowRunner) Job() JobResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := r.result
	if r.state == StateIdle {
		res.Status = JobStatusPending
	}
	res.Counts.Succeeded = int(r.succeeded.Load())
	res.Counts.Failed = int(r.failed.Load())
	res.Counts.Traces = int(r.traces.Load())
	res.FailedURIs = append([]string(nil), r.failedURIs...)
	return res
}

func (r *FlowRunner) setState(s RunnerState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = s
}

// job is the execution of a flow by a started runner
type job struct {
	runner *FlowRunner
	flow   *flow.Flow
	id     string
	vars   map[string]any
}

func (j *job) execute(ctx context.Context) {
	r := j.runner
	stores := r.manager.stores
	r.eventBus.EmitFlowStarted(j.id, j.flow.EntityType(), j.flow.Name())
	r.logger.InfoWithContext(ctx, "flow run started",
		zap.Int("batch_size", r.batchSize),
		zap.Int("thread_count", r.threadCount))

	uris, err := j.flow.Collector().Collect(ctx, &flow.CollectInput{
		Staging:    stores.Staging,
		JobID:      j.id,
		EntityType: j.flow.EntityType(),
		FlowName:   j.flow.Name(),
		Variables:  j.vars,
	})
	if err != nil {
		j.finish(ctx, 0, 0, fmt.Errorf("collector failed: %w", err))
		return
	}

	if r.runTrace {
		enabled, err := r.manager.tracing.IsEnabled(ctx)
		if err != nil {
			r.logger.WarnWithContext(ctx, "failed to read tracing flag, run trace skipped", zap.Error(err))
		} else if enabled {
			j.writeRunTrace(ctx, uris)
		}
	}

	batches := partition(uris, r.batchSize)
	p := pool.New().WithMaxGoroutines(r.threadCount)
	submitted := 0
	for i, batch := range batches {
		if ctx.Err() != nil {
			break
		}
		i, batch := i, batch
		p.Go(func() {
			j.processBatch(ctx, i, batch)
		})
		submitted++
	}
	r.setState(StateRunning)
	p.Wait()

	j.finish(ctx, len(uris), submitted, ctx.Err())
}

func (j *job) finish(ctx context.Context, collected, batches int, err error) {
	r := j.runner

	r.mu.Lock()
	r.result.Counts.Collected = collected
	r.result.Counts.Batches = batches
	r.result.Finished = time.Now()
	failed := r.failed.Load()
	switch {
	case err != nil && errors.Is(err, context.Canceled):
		r.result.Status = JobStatusCanceled
		r.result.Err = err
	case err != nil:
		r.result.Status = JobStatusFailed
		r.result.Err = err
	case failed > 0:
		r.result.Status = JobStatusFinishedWithErrors
	default:
		r.result.Status = JobStatusFinished
	}
	r.mu.Unlock()

	result := r.Job()
	if err != nil {
		r.eventBus.EmitFlowError(j.id, err)
		r.logger.ErrorWithContext(ctx, "flow run failed", zap.Error(err))
	}
	r.eventBus.EmitFlowCompleted(result)
	r.logger.InfoWithContext(ctx, "flow run completed",
		zap.String("status", string(result.Status)),
		zap.Int("collected", result.Counts.Collected),
		zap.Int("succeeded", result.Counts.Succeeded),
		zap.Int("failed", result.Counts.Failed),
		zap.Int("traces", result.Counts.Traces),
		zap.Duration("duration", result.Finished.Sub(result.Started)))

	// Wait for all the events to be delivered
	r.eventBus.Wait()

	r.mu.Lock()
	r.state = StateCompleted
	close(r.done)
	r.mu.Unlock()
}

// writeRunTrace records the collected URIs: a JSON array for json flows,
// one URI per line for xml flows
func (j *job) writeRunTrace(ctx context.Context, uris []string) {
	r := j.runner
	collector := j.flow.Collector()

	var out *models.Document
	if j.flow.Format() == models.FormatXML {
		out = models.NewDocument(j.id, models.FormatText, []byte(strings.Join(uris, "\n")))
	} else {
		if uris == nil {
			uris = []string{}
		}
		b, err := json.Marshal(uris)
		if err != nil {
			r.logger.WarnWithContext(ctx, "failed to encode collected URIs", zap.Error(err))
			return
		}
		out = models.NewDocument(j.id, models.FormatJSON, b)
	}

	trace := tracing.NewDocument(j.id, j.flow.Name(), j.flow.EntityType(), j.id, j.flow.Format())
	trace.Add(r.manager.tracing.RecordStep(collector.Label(), collector.Engine(), out))
	trace.Complete()
	j.flush(ctx, trace)
}

func (j *job) processBatch(ctx context.Context, index int, uris []string) {
	r := j.runner
	start := time.Now()
	r.eventBus.EmitBatchStarted(j.id, index, len(uris))

	for _, uri := range uris {
		if ctx.Err() != nil {
			j.documentFailed(ctx, uri, ctx.Err())
			continue
		}

		var err error
		recovered := panics.Try(func() {
			err = j.processDocument(ctx, uri)
		})
		if recovered != nil {
			err = &models.StepExecutionError{URI: uri, Err: recovered.AsError()}
		}

		if err != nil {
			j.documentFailed(ctx, uri, err)
			continue
		}
		r.succeeded.Add(1)
		documentsProcessedCounter.WithLabelValues(j.flow.EntityType(), j.flow.Name(), outcomeSucceeded).Inc()
		r.eventBus.EmitDocumentCompleted(j.id, uri)
	}

	duration := time.Since(start)
	batchDurationHistogram.WithLabelValues(j.flow.EntityType(), j.flow.Name()).Observe(float64(duration.Milliseconds()))
	r.eventBus.EmitBatchCompleted(j.id, index, duration)
}

func (j *job) documentFailed(ctx context.Context, uri string, err error) {
	r := j.runner
	r.failed.Add(1)
	r.mu.Lock()
	r.failedURIs = append(r.failedURIs, uri)
	r.mu.Unlock()

	documentsProcessedCounter.WithLabelValues(j.flow.EntityType(), j.flow.Name(), outcomeFailed).Inc()
	r.eventBus.EmitDocumentFailed(j.id, uri, err)
	r.logger.WarnWithContext(ctx, "document failed", zap.String("uri", uri), zap.Error(err))
}

// processDocument folds the document through the flow steps. The first
// failing step ends the fold and is traced whatever the tracing flag.
func (j *job) processDocument(ctx context.Context, uri string) error {
	r := j.runner
	stores := r.manager.stores
	controller := r.manager.tracing

	source, err := stores.Staging.Read(ctx, uri)
	if err != nil {
		return models.ErrUnavailable(store.StagingName, "read", err)
	}

	trace := tracing.NewDocument(j.id, j.flow.Name(), j.flow.EntityType(), uri, source.Format)
	input := &models.StepInput{
		URI:        uri,
		Document:   source,
		Previous:   make(map[string]*models.Document, j.flow.StepCount()),
		JobID:      j.id,
		EntityType: j.flow.EntityType(),
		FlowName:   j.flow.Name(),
		Format:     j.flow.Format(),
		Variables:  j.vars,
	}
	outputs := make([]*models.Document, 0, j.flow.StepCount())

	for i := 0; i < j.flow.StepCount(); i++ {
		step := j.flow.Step(i)

		enabled, err := controller.IsEnabled(ctx)
		if err != nil {
			return models.ErrUnavailable(store.StagingName, "read tracing flag", err)
		}

		out, err := runStep(ctx, step, input)
		if err != nil {
			stepErr := &models.StepExecutionError{Label: step.Label(), URI: uri, Err: err}
			trace.Add(controller.RecordFailure(step.Label(), step.Engine(), out, err))
			trace.Fail(stepErr)
			j.flush(ctx, trace)
			r.eventBus.EmitStepError(j.id, step.Label(), uri, err)
			return stepErr
		}

		if enabled {
			trace.Add(controller.RecordStep(step.Label(), step.Engine(), out))
		}
		r.eventBus.EmitStepOutput(j.id, step.Label(), uri, out)

		input.Previous[step.Label()] = out
		input.Document = out
		outputs = append(outputs, out)
	}

	written := outputs[j.flow.WriterIndex()]
	final := models.NewDocument(uri, written.Format, written.Content, j.flow.Collections()...)
	if err := stores.Final.Write(ctx, final); err != nil {
		err = models.ErrUnavailable(store.FinalName, "write", err)
		if !trace.Empty() {
			trace.Fail(err)
			j.flush(ctx, trace)
		}
		return err
	}

	if !trace.Empty() {
		trace.Complete()
		j.flush(ctx, trace)
	}
	return nil
}

// runStep runs a step, turning a panic or a missing output into an error
func runStep(ctx context.Context, step models.Step, input *models.StepInput) (out *models.Document, err error) {
	recovered := panics.Try(func() {
		out, err = step.Run(ctx, input)
	})
	if recovered != nil {
		return nil, recovered.AsError()
	}
	if err == nil && out == nil {
		return nil, errors.New("step returned no document")
	}
	return out, err
}

func (j *job) flush(ctx context.Context, trace *tracing.Document) {
	r := j.runner
	traceURI, err := r.manager.tracing.Flush(ctx, trace)
	if err != nil {
		r.logger.ErrorWithContext(ctx, "failed to write trace",
			zap.String("identifier", trace.Identifier), zap.Error(err))
		return
	}
	r.traces.Add(1)
	traceDocumentsCounter.WithLabelValues(j.flow.EntityType(), j.flow.Name()).Inc()
	r.eventBus.EmitTraceWritten(j.id, traceURI, trace.Identifier)
}

// partition splits uris into consecutive batches of at most size
func partition(uris []string, size int) [][]string {
	var batches [][]string
	for start := 0; start < len(uris); start += size {
		end := min(start+size, len(uris))
		batches = append(batches, uris[start:end])
	}
	return batches
}
