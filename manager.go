// Package datahub runs flows over the documents of a staging store,
// writing their results to a final store and step traces to a trace store.
package datahub

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/simon020286/go-datahub/flow"
	"github.com/simon020286/go-datahub/logger"
	"github.com/simon020286/go-datahub/store"
	"github.com/simon020286/go-datahub/tracing"

	_ "github.com/simon020286/go-datahub/steps"
)

// FlowManager resolves flows and creates the runners that execute them
type FlowManager struct {
	catalog *flow.Catalog
	stores  store.Stores
	tracing *tracing.Controller
	logger  logger.Logger
}

// ManagerOption configures a FlowManager
type ManagerOption func(*FlowManager)

// WithLogger sets the logger of the manager and its runners
func WithLogger(l logger.Logger) ManagerOption {
	return func(m *FlowManager) { m.logger = l }
}

// WithCatalog replaces the empty default catalog
func WithCatalog(c *flow.Catalog) ManagerOption {
	return func(m *FlowManager) { m.catalog = c }
}

// NewFlowManager creates a manager over the given stores. The tracing flag
// is persisted in the staging store.
func NewFlowManager(stores store.Stores, opts ...ManagerOption) (*FlowManager, error) {
	if err := stores.Validate(); err != nil {
		return nil, err
	}

	m := &FlowManager{
		catalog: flow.NewCatalog(),
		stores:  stores,
		logger:  logger.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.tracing = tracing.NewController(stores.Staging, stores.Trace, m.logger)
	return m, nil
}

// Catalog returns the flows known to the manager
func (m *FlowManager) Catalog() *flow.Catalog {
	return m.catalog
}

// Tracing returns the tracing controller shared by every runner
func (m *FlowManager) Tracing() *tracing.Controller {
	return m.tracing
}

// Stores returns the staging, final and trace stores
func (m *FlowManager) Stores() store.Stores {
	return m.stores
}

// LoadFlows adds the flow definitions of a directory to the catalog
func (m *FlowManager) LoadFlows(dir string) error {
	n, err := m.catalog.LoadDirectory(dir)
	if err != nil {
		return fmt.Errorf("failed to load flows from %s: %w", dir, err)
	}
	m.logger.Info("flows loaded", zap.String("dir", dir), zap.Int("count", n))
	return nil
}

// GetFlow returns the flow of an entity type by name
func (m *FlowManager) GetFlow(entityType, name string) (*flow.Flow, error) {
	return m.catalog.Get(entityType, name)
}

// IsTracingEnabled reports the persisted tracing flag
func (m *FlowManager) IsTracingEnabled(ctx context.Context) (bool, error) {
	return m.tracing.IsEnabled(ctx)
}

// EnableTracing turns step tracing on for every runner
func (m *FlowManager) EnableTracing(ctx context.Context) error {
	return m.tracing.Enable(ctx)
}

// DisableTracing turns step tracing off. Failing steps are still traced.
func (m *FlowManager) DisableTracing(ctx context.Context) error {
	return m.tracing.Disable(ctx)
}

// NewFlowRunner creates an idle runner with the default configuration
func (m *FlowManager) NewFlowRunner() *FlowRunner {
	return newFlowRunner(m)
}
