package tracing

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/tidwall/gjson"

	"github.com/simon020286/go-datahub/models"
)

// Collection every trace document belongs to
const Collection = "trace"

// URIPrefix of trace document URIs
const URIPrefix = "/trace/"

// Document groups the records of one document (or one run) of a flow
type Document struct {
	ID         ulid.ULID
	JobID      string
	FlowName   string
	EntityType string
	// Identifier is the source URI, or the job id for the run trace
	Identifier string
	Format     models.ContentFormat
	Records    []Record
	Completed  bool
	Error      string
	Created    time.Time
}

// NewDocument starts an empty trace. Sources that are neither xml nor json are traced as json.
func NewDocument(jobID, flowName, entityType, identifier string, format models.ContentFormat) *Document {
	if !format.IsStructured() {
		format = models.FormatJSON
	}
	return &Document{
		ID:         ulid.Make(),
		JobID:      jobID,
		FlowName:   flowName,
		EntityType: entityType,
		Identifier: identifier,
		Format:     format,
		Created:    time.Now().UTC(),
	}
}

// Add appends a record
func (d *Document) Add(r Record) {
	d.Records = append(d.Records, r)
}

// Empty reports whether the trace has no records
func (d *Document) Empty() bool {
	return len(d.Records) == 0
}

// Complete marks the traced document as processed
func (d *Document) Complete() {
	d.Completed = true
}

// Fail marks the traced document as failed
func (d *Document) Fail(err error) {
	d.Completed = false
	if err != nil {
		d.Error = err.Error()
	}
}

// URI is the location of the trace in the trace store
func (d *Document) URI() string {
	return URIPrefix + d.ID.String() + "." + d.Format.Extension()
}

// Labels returns the record labels in order
func (d *Document) Labels() []string {
	labels := make([]string, len(d.Records))
	for i, r := range d.Records {
		labels[i] = r.Label
	}
	return labels
}

// StoreDocument encodes the trace in its format
func (d *Document) StoreDocument() (*models.Document, error) {
	var (
		content []byte
		err     error
	)
	switch d.Format {
	case models.FormatXML:
		content, err = xml.Marshal(d.toXML())
	default:
		content, err = json.Marshal(jsonDocument{Trace: d.toJSON()})
	}
	if err != nil {
		return nil, fmt.Errorf("encode trace %s: %w", d.ID, err)
	}

	collections := []string{Collection}
	if d.FlowName != "" && d.FlowName != Collection {
		collections = append(collections, d.FlowName)
	}
	return models.NewDocument(d.URI(), d.Format, content, collections...), nil
}

// Decode parses a trace document read from the trace store
func Decode(doc *models.Document) (*Document, error) {
	switch doc.Format {
	case models.FormatXML:
		var x xmlTrace
		if err := xml.Unmarshal(doc.Content, &x); err != nil {
			return nil, fmt.Errorf("decode trace %s: %w", doc.URI, err)
		}
		return x.document()
	case models.FormatJSON:
		var j jsonDocument
		if err := json.Unmarshal(doc.Content, &j); err != nil {
			return nil, fmt.Errorf("decode trace %s: %w", doc.URI, err)
		}
		return j.Trace.document()
	default:
		return nil, fmt.Errorf("decode trace %s: unsupported format %s", doc.URI, doc.Format)
	}
}

type xmlTrace struct {
	XMLName    xml.Name  `xml:"trace"`
	ID         string    `xml:"id"`
	JobID      string    `xml:"jobId"`
	FlowName   string    `xml:"flowName"`
	EntityType string    `xml:"entityType"`
	Identifier string    `xml:"identifier"`
	Created    time.Time `xml:"created"`
	Completed  bool      `xml:"completed"`
	Error      string    `xml:"error,omitempty"`
	Steps      []xmlStep `xml:"step"`
}

type xmlStep struct {
	Label  string    `xml:"label"`
	Output string    `xml:"output"`
	Format string    `xml:"format,omitempty"`
	Kind   string    `xml:"kind"`
	Engine string    `xml:"engine"`
	Error  string    `xml:"error,omitempty"`
	Time   time.Time `xml:"time"`
}

type jsonDocument struct {
	Trace jsonTrace `json:"trace"`
}

type jsonTrace struct {
	ID         string     `json:"id"`
	JobID      string     `json:"jobId"`
	FlowName   string     `json:"flowName"`
	EntityType string     `json:"entityType"`
	Identifier string     `json:"identifier"`
	Created    time.Time  `json:"created"`
	Completed  bool       `json:"completed"`
	Error      string     `json:"error,omitempty"`
	Steps      []jsonStep `json:"steps"`
}

type jsonStep struct {
	Label  string          `json:"label"`
	Output json.RawMessage `json:"output"`
	Format string          `json:"format,omitempty"`
	Kind   string          `json:"kind"`
	Engine string          `json:"engine"`
	Error  string          `json:"error,omitempty"`
	Time   time.Time       `json:"time"`
}

func (d *Document) toXML() xmlTrace {
	x := xmlTrace{
		ID:         d.ID.String(),
		JobID:      d.JobID,
		FlowName:   d.FlowName,
		EntityType: d.EntityType,
		Identifier: d.Identifier,
		Created:    d.Created,
		Completed:  d.Completed,
		Error:      d.Error,
		Steps:      make([]xmlStep, 0, len(d.Records)),
	}
	for _, r := range d.Records {
		x.Steps = append(x.Steps, xmlStep{
			Label:  r.Label,
			Output: r.Output,
			Format: string(r.Format),
			Kind:   string(r.Kind),
			Engine: r.Engine.String(),
			Error:  r.Error,
			Time:   r.Time,
		})
	}
	return x
}

func (d *Document) toJSON() jsonTrace {
	j := jsonTrace{
		ID:         d.ID.String(),
		JobID:      d.JobID,
		FlowName:   d.FlowName,
		EntityType: d.EntityType,
		Identifier: d.Identifier,
		Created:    d.Created,
		Completed:  d.Completed,
		Error:      d.Error,
		Steps:      make([]jsonStep, 0, len(d.Records)),
	}
	for _, r := range d.Records {
		j.Steps = append(j.Steps, jsonStep{
			Label:  r.Label,
			Output: jsonOutput(r),
			Format: string(r.Format),
			Kind:   string(r.Kind),
			Engine: r.Engine.String(),
			Error:  r.Error,
			Time:   r.Time,
		})
	}
	return j
}

// jsonOutput embeds json outputs as they are, everything else as a string
func jsonOutput(r Record) json.RawMessage {
	if r.Kind == KindText && r.Format == models.FormatJSON && gjson.Valid(r.Output) {
		return json.RawMessage(r.Output)
	}
	b, _ := json.Marshal(r.Output)
	return b
}

func (x xmlTrace) document() (*Document, error) {
	id, err := ulid.Parse(x.ID)
	if err != nil {
		return nil, fmt.Errorf("decode trace id: %w", err)
	}
	d := &Document{
		ID:         id,
		JobID:      x.JobID,
		FlowName:   x.FlowName,
		EntityType: x.EntityType,
		Identifier: x.Identifier,
		Format:     models.FormatXML,
		Completed:  x.Completed,
		Error:      x.Error,
		Created:    x.Created,
	}
	for _, s := range x.Steps {
		engine, err := models.ParseEngine(s.Engine)
		if err != nil {
			return nil, err
		}
		d.Records = append(d.Records, Record{
			Label:  s.Label,
			Engine: engine,
			Kind:   Kind(s.Kind),
			Format: models.ContentFormat(s.Format),
			Output: s.Output,
			Error:  s.Error,
			Time:   s.Time,
		})
	}
	return d, nil
}

func (j jsonTrace) document() (*Document, error) {
	id, err := ulid.Parse(j.ID)
	if err != nil {
		return nil, fmt.Errorf("decode trace id: %w", err)
	}
	d := &Document{
		ID:         id,
		JobID:      j.JobID,
		FlowName:   j.FlowName,
		EntityType: j.EntityType,
		Identifier: j.Identifier,
		Format:     models.FormatJSON,
		Completed:  j.Completed,
		Error:      j.Error,
		Created:    j.Created,
	}
	for _, s := range j.Steps {
		engine, err := models.ParseEngine(s.Engine)
		if err != nil {
			return nil, err
		}
		output := gjson.ParseBytes(s.Output)
		text := output.Raw
		if output.Type == gjson.String {
			text = output.String()
		}
		d.Records = append(d.Records, Record{
			Label:  s.Label,
			Engine: engine,
			Kind:   Kind(s.Kind),
			Format: models.ContentFormat(s.Format),
			Output: text,
			Error:  s.Error,
			Time:   s.Time,
		})
	}
	return d, nil
}
