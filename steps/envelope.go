package steps

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/simon020286/go-datahub/builder"
	"github.com/simon020286/go-datahub/models"
	"github.com/simon020286/go-datahub/tracing"
)

// envelope sections in output order
var envelopeSections = []string{"headers", "triples", "instance"}

// EnvelopeStep assembles the outputs of earlier steps into an envelope:
// headers, triples and instance sections, by default read from the
// steps labelled headers, triples and content. Binary outputs are written
// in the notation of the step engine.
type EnvelopeStep struct {
	baseStep
	format  models.ContentFormat
	sources map[string]string // section to step label
}

// Capabilities marks the envelope as the writer of the flow
func (s *EnvelopeStep) Capabilities() models.Capabilities {
	return models.CapTransform | models.CapReadInput | models.CapWriteOutput | models.CapMayFail
}

func (s *EnvelopeStep) Run(_ context.Context, input *models.StepInput) (*models.Document, error) {
	format := outputFormat(s.format, input)

	var (
		out []byte
		err error
	)
	switch format {
	case models.FormatXML:
		out = s.xmlEnvelope(input)
	case models.FormatJSON:
		out, err = s.jsonEnvelope(input)
	default:
		return nil, fmt.Errorf("envelope format must be xml or json, got %s", format)
	}
	if err != nil {
		return nil, err
	}
	return models.NewDocument(input.URI, format, out), nil
}

func (s *EnvelopeStep) section(input *models.StepInput, name string) *models.Document {
	return input.Output(s.sources[name])
}

func (s *EnvelopeStep) xmlEnvelope(input *models.StepInput) []byte {
	var buf bytes.Buffer
	buf.WriteString("<envelope>")
	for _, name := range envelopeSections {
		buf.WriteString("<" + name + ">")
		if doc := s.section(input, name); doc != nil {
			switch doc.Format {
			case models.FormatXML:
				buf.Write(stripXMLDeclaration(doc.Content))
			case models.FormatBinary:
				_ = xml.EscapeText(&buf, []byte(tracing.EncodeBinary(s.engine, doc.Content)))
			default:
				_ = xml.EscapeText(&buf, doc.Content)
			}
		}
		buf.WriteString("</" + name + ">")
	}
	buf.WriteString("</envelope>")
	return buf.Bytes()
}

func (s *EnvelopeStep) jsonEnvelope(input *models.StepInput) ([]byte, error) {
	sections := make(map[string]json.RawMessage, len(envelopeSections))
	for _, name := range envelopeSections {
		doc := s.section(input, name)
		switch {
		case doc == nil:
			sections[name] = json.RawMessage("null")
		case doc.Format == models.FormatJSON && gjson.ValidBytes(doc.Content):
			sections[name] = json.RawMessage(bytes.TrimSpace(doc.Content))
		case doc.Format == models.FormatBinary:
			sections[name] = quoteJSON(tracing.EncodeBinary(s.engine, doc.Content))
		default:
			sections[name] = quoteJSON(string(doc.Content))
		}
	}

	b, err := marshalJSON(map[string]any{"envelope": sections})
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return b, nil
}

// marshalJSON encodes v keeping <, > and & as they are
func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func quoteJSON(s string) json.RawMessage {
	b, _ := marshalJSON(s)
	return b
}

func stripXMLDeclaration(b []byte) []byte {
	b = bytes.TrimSpace(b)
	if bytes.HasPrefix(b, []byte("<?xml")) {
		if end := bytes.Index(b, []byte("?>")); end >= 0 {
			b = bytes.TrimSpace(b[end+2:])
		}
	}
	return b
}

func init() {
	builder.RegisterStepType("envelope", func(label string, cfg map[string]any) (models.Step, error) {
		format, err := builder.FormatOption(cfg, "format")
		if err != nil {
			return nil, err
		}
		if format != "" && !format.IsStructured() {
			return nil, fmt.Errorf("envelope format must be xml or json, got %s", format)
		}
		engine, err := builder.EngineOption(cfg, models.EngineNative)
		if err != nil {
			return nil, err
		}

		defaults := map[string]string{"headers": "headers", "triples": "triples", "instance": "content"}
		sources := make(map[string]string, len(defaults))
		for section, def := range defaults {
			label, err := builder.StringOption(cfg, section, def)
			if err != nil {
				return nil, err
			}
			sources[section] = strings.TrimSpace(label)
		}

		return &EnvelopeStep{
			baseStep: baseStep{label: label, engine: engine},
			format:   format,
			sources:  sources,
		}, nil
	})
}
