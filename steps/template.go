package steps

import (
	"context"
	"text/template"

	"github.com/simon020286/go-datahub/builder"
	"github.com/simon020286/go-datahub/config"
	"github.com/simon020286/go-datahub/models"
)

// TemplateStep renders a Go template against the document.
// The template sees uri, content, previous and the other input fields,
// the resolved values as .values and the run variables as .vars.
type TemplateStep struct {
	baseStep
	tmpl   *template.Template
	format models.ContentFormat
	values map[string]config.ValueSpec
}

func (s *TemplateStep) Run(_ context.Context, input *models.StepInput) (*models.Document, error) {
	out, err := builder.RenderTemplate(s.tmpl, s.values, input)
	if err != nil {
		return nil, err
	}
	return models.NewDocument(input.URI, outputFormat(s.format, input), []byte(out)), nil
}

func init() {
	builder.RegisterStepType("template", func(label string, cfg map[string]any) (models.Step, error) {
		text, err := builder.StringOption(cfg, "template", "")
		if err != nil {
			return nil, err
		}
		if text == "" {
			return nil, models.ErrMissingConfig("template")
		}
		tmpl, err := builder.ParseTemplate(label, text)
		if err != nil {
			return nil, err
		}
		format, err := builder.FormatOption(cfg, "format")
		if err != nil {
			return nil, err
		}
		engine, err := builder.EngineOption(cfg, models.EngineNative)
		if err != nil {
			return nil, err
		}
		values, _ := cfg["values"].(map[string]any)

		return &TemplateStep{
			baseStep: baseStep{label: label, engine: engine},
			tmpl:     tmpl,
			format:   format,
			values:   builder.ParseConfigValues(values),
		}, nil
	})
}
