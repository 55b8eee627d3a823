package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/simon020286/go-datahub/builder"
	"github.com/simon020286/go-datahub/config"
	"github.com/simon020286/go-datahub/flow"
	"github.com/simon020286/go-datahub/models"
	"github.com/simon020286/go-datahub/store"
	"github.com/simon020286/go-datahub/tracing"
)

// CollectorStep lists the staging documents of a collection.
// Without a configured collection it lists the collection named after the entity type.
type CollectorStep struct {
	baseStep
	collection config.ValueSpec
	uriPrefix  string
}

var _ flow.Collector = (*CollectorStep)(nil)

func (s *CollectorStep) Capabilities() models.Capabilities {
	return models.CapReadInput
}

// Collect returns the matching staging URIs in order, hub settings excluded
func (s *CollectorStep) Collect(ctx context.Context, input *flow.CollectInput) ([]string, error) {
	collection := input.EntityType
	if s.collection != nil {
		resolved, err := resolveString(s.collection, input.StepInput())
		if err != nil {
			return nil, fmt.Errorf("failed to resolve collection: %w", err)
		}
		collection = resolved
	}

	uris, err := store.URIs(ctx, input.Staging, store.Query{
		Collection: collection,
		URIPrefix:  s.uriPrefix,
	})
	if err != nil {
		return nil, models.ErrUnavailable(store.StagingName, "query", err)
	}

	out := uris[:0]
	for _, uri := range uris {
		if !strings.HasPrefix(uri, tracing.SettingsPrefix) {
			out = append(out, uri)
		}
	}
	return out, nil
}

// Run passes the document through
func (s *CollectorStep) Run(_ context.Context, input *models.StepInput) (*models.Document, error) {
	return input.Document, nil
}

func init() {
	builder.RegisterStepType("collector", func(label string, cfg map[string]any) (models.Step, error) {
		prefix, err := builder.StringOption(cfg, "uri_prefix", "")
		if err != nil {
			return nil, err
		}
		step := &CollectorStep{
			baseStep:  baseStep{label: label, engine: models.EngineNative},
			uriPrefix: prefix,
		}
		if spec, ok := builder.ValueOption(cfg, "collection"); ok {
			step.collection = spec
		}
		return step, nil
	})
}
