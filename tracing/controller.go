// Package tracing records step outputs of flow runs into trace documents
// and owns the persisted switch that turns tracing on or off.
package tracing

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/simon020286/go-datahub/logger"
	"github.com/simon020286/go-datahub/models"
	"github.com/simon020286/go-datahub/store"
)

const (
	// SettingsPrefix is the URI prefix of documents holding hub settings
	SettingsPrefix = "/datahub/settings/"
	// SettingsURI is where the tracing flag is persisted in the settings store
	SettingsURI = SettingsPrefix + "tracing.json"
)

// Controller reads and writes the tracing flag and flushes trace documents.
// The flag is read from the settings store on every call, so a change made
// by another process is observed by the next step that runs.
type Controller struct {
	settings store.DocumentStore
	traces   store.DocumentStore
	logger   logger.Logger
}

// NewController creates a controller persisting its flag in settings and
// writing trace documents to traces
func NewController(settings, traces store.DocumentStore, log logger.Logger) *Controller {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &Controller{settings: settings, traces: traces, logger: log}
}

// IsEnabled reports the persisted flag. A missing flag means disabled.
func (c *Controller) IsEnabled(ctx context.Context) (bool, error) {
	doc, err := c.settings.Read(ctx, SettingsURI)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("read tracing flag: %w", err)
	}
	if !gjson.ValidBytes(doc.Content) {
		return false, fmt.Errorf("read tracing flag: invalid settings document %s", SettingsURI)
	}
	return gjson.GetBytes(doc.Content, "tracing.enabled").Bool(), nil
}

// Enable turns tracing on
func (c *Controller) Enable(ctx context.Context) error {
	return c.SetEnabled(ctx, true)
}

// Disable turns tracing off
func (c *Controller) Disable(ctx context.Context) error {
	return c.SetEnabled(ctx, false)
}

// SetEnabled persists the flag. Setting the current value again is a no-op write.
func (c *Controller) SetEnabled(ctx context.Context, enabled bool) error {
	content := fmt.Sprintf(`{"tracing":{"enabled":%t}}`, enabled)
	doc := models.NewDocument(SettingsURI, models.FormatJSON, []byte(content), "datahub-settings")
	if err := c.settings.Write(ctx, doc); err != nil {
		return fmt.Errorf("write tracing flag: %w", err)
	}
	c.logger.InfoWithContext(ctx, "tracing flag updated", zap.Bool("enabled", enabled))
	return nil
}

// RecordStep builds the record of a successful step
func (c *Controller) RecordStep(label string, engine models.Engine, output *models.Document) Record {
	return NewRecord(label, engine, output)
}

// RecordFailure builds the record of a failed step
func (c *Controller) RecordFailure(label string, engine models.Engine, output *models.Document, err error) Record {
	return NewFailureRecord(label, engine, output, err)
}

// Flush writes the trace document to the trace store and returns its URI
func (c *Controller) Flush(ctx context.Context, trace *Document) (string, error) {
	doc, err := trace.StoreDocument()
	if err != nil {
		return "", err
	}
	if err := c.traces.Write(ctx, doc); err != nil {
		return "", fmt.Errorf("flush trace %s: %w", doc.URI, err)
	}
	c.logger.DebugWithContext(ctx, "trace written",
		zap.String("uri", doc.URI),
		zap.String("identifier", trace.Identifier),
		zap.Int("records", len(trace.Records)))
	return doc.URI, nil
}
