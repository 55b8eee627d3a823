package steps

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/simon020286/go-datahub/builder"
	"github.com/simon020286/go-datahub/flow"
	"github.com/simon020286/go-datahub/models"
	"github.com/simon020286/go-datahub/store/memory"
	"github.com/simon020286/go-datahub/tracing"
)

func mustCreate(t *testing.T, stepType, label string, cfg map[string]any) models.Step {
	t.Helper()
	step, err := builder.CreateStep(stepType, label, cfg)
	if err != nil {
		t.Fatalf("CreateStep(%s) failed: %v", stepType, err)
	}
	return step
}

func newInput(format models.ContentFormat, content string) *models.StepInput {
	doc := models.NewDocument("/person/1."+format.Extension(), format, []byte(content))
	return &models.StepInput{
		URI:        doc.URI,
		Document:   doc,
		Previous:   map[string]*models.Document{},
		JobID:      "job-1",
		EntityType: "Person",
		FlowName:   "person",
		Format:     format,
		Variables:  map[string]any{"country": "IT"},
	}
}

func TestRegisteredStepTypes(t *testing.T) {
	want := []string{"binary", "collector", "delay", "envelope", "error", "js", "template"}
	got := strings.Join(builder.ListStepTypes(), ",")
	for _, name := range want {
		if !strings.Contains(got, name) {
			t.Errorf("step type %s not registered (got %s)", name, got)
		}
	}
}

func TestCollectorStep(t *testing.T) {
	ctx := context.Background()
	staging := memory.New("staging")
	for _, doc := range []*models.Document{
		models.NewDocument("/person/2.json", models.FormatJSON, []byte(`{}`), "Person"),
		models.NewDocument("/person/1.json", models.FormatJSON, []byte(`{}`), "Person"),
		models.NewDocument("/order/1.json", models.FormatJSON, []byte(`{}`), "Order"),
		models.NewDocument("/other/1.json", models.FormatJSON, []byte(`{}`), "Person"),
		models.NewDocument(tracing.SettingsURI, models.FormatJSON, []byte(`{}`), "Person"),
	} {
		if err := staging.Write(ctx, doc); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name string
		cfg  map[string]any
		want []string
	}{
		{"entity type collection", nil, []string{"/other/1.json", "/person/1.json", "/person/2.json"}},
		{"uri prefix", map[string]any{"uri_prefix": "/person/"}, []string{"/person/1.json", "/person/2.json"}},
		{"explicit collection", map[string]any{"collection": "Order"}, []string{"/order/1.json"}},
		{"variable collection", map[string]any{"collection": "$var:source"}, []string{"/order/1.json"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := mustCreate(t, "collector", flow.CollectorLabel, tt.cfg)
			collector, ok := step.(flow.Collector)
			if !ok {
				t.Fatal("collector step does not implement flow.Collector")
			}

			uris, err := collector.Collect(ctx, &flow.CollectInput{
				Staging:    staging,
				EntityType: "Person",
				Variables:  map[string]any{"source": "Order"},
			})
			if err != nil {
				t.Fatalf("Collect failed: %v", err)
			}
			if strings.Join(uris, ",") != strings.Join(tt.want, ",") {
				t.Errorf("expected %v, got %v", tt.want, uris)
			}
		})
	}
}

func TestCollectorStoreUnavailable(t *testing.T) {
	staging := memory.New("staging")
	_ = staging.Close()

	step := mustCreate(t, "collector", flow.CollectorLabel, nil).(flow.Collector)
	_, err := step.Collect(context.Background(), &flow.CollectInput{Staging: staging, EntityType: "Person"})
	if !errors.Is(err, models.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestJsStep(t *testing.T) {
	tests := []struct {
		name       string
		code       string
		wantFormat models.ContentFormat
		want       string
	}{
		{
			name:       "string in flow format",
			code:       `return "<person>" + input.uri + "</person>";`,
			wantFormat: models.FormatXML,
			want:       "<person>/person/1.xml</person>",
		},
		{
			name:       "object as json",
			code:       `return { name: "Ada", country: $vars.country, job: input.jobId };`,
			wantFormat: models.FormatJSON,
			want:       `{"country":"IT","job":"job-1","name":"Ada"}`,
		},
		{
			name:       "binary helper",
			code:       `return binary("00FF10");`,
			wantFormat: models.FormatBinary,
			want:       "\x00\xff\x10",
		},
		{
			name:       "options",
			code:       `return input.options.greeting + " " + input.content;`,
			wantFormat: models.FormatXML,
			want:       "hello <p/>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := mustCreate(t, "js", "content", map[string]any{
				"code":    tt.code,
				"options": map[string]any{"greeting": "hello"},
			})
			if step.Engine() != models.EngineScript {
				t.Errorf("expected script engine, got %s", step.Engine())
			}

			out, err := step.Run(context.Background(), newInput(models.FormatXML, "<p/>"))
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if out.Format != tt.wantFormat {
				t.Errorf("expected format %s, got %s", tt.wantFormat, out.Format)
			}
			if string(out.Content) != tt.want {
				t.Errorf("expected %q, got %q", tt.want, out.Content)
			}
			if out.URI != "/person/1.xml" {
				t.Errorf("expected source URI, got %s", out.URI)
			}
		})
	}
}

func TestJsStepFailures(t *testing.T) {
	tests := map[string]string{
		"throw":      `throw new Error("boom");`,
		"no value":   `var x = 1;`,
		"bad binary": `return binary("zz");`,
		"syntax":     `return {;`,
	}

	for name, code := range tests {
		t.Run(name, func(t *testing.T) {
			step := mustCreate(t, "js", "content", map[string]any{"code": code})
			if _, err := step.Run(context.Background(), newInput(models.FormatJSON, "{}")); err == nil {
				t.Error("expected an error")
			}
		})
	}

	if _, err := builder.CreateStep("js", "content", map[string]any{}); err == nil {
		t.Error("expected an error for a missing code")
	}
}

func TestJsStepCancelled(t *testing.T) {
	step := mustCreate(t, "js", "content", map[string]any{"code": `while (true) {}`})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := step.Run(ctx, newInput(models.FormatJSON, "{}")); err == nil {
		t.Error("expected the script to be interrupted")
	}
}

func TestTemplateStep(t *testing.T) {
	step := mustCreate(t, "template", "headers", map[string]any{
		"template": `<headers><flow>{{.flowName}}</flow><country>{{.vars.country}}</country><src>{{xmlText .content}}</src><n>{{.values.n}}</n></headers>`,
		"values":   map[string]any{"n": "$js: 40 + 2"},
	})
	if step.Engine() != models.EngineNative {
		t.Errorf("expected native engine, got %s", step.Engine())
	}

	out, err := step.Run(context.Background(), newInput(models.FormatXML, "<a>&</a>"))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	want := `<headers><flow>person</flow><country>IT</country><src>&lt;a&gt;&amp;&lt;/a&gt;</src><n>42</n></headers>`
	if string(out.Content) != want {
		t.Errorf("expected %s, got %s", want, out.Content)
	}
	if out.Format != models.FormatXML {
		t.Errorf("expected flow format, got %s", out.Format)
	}

	text := mustCreate(t, "template", "triples", map[string]any{"template": "{{.uri}}", "format": "text"})
	out, err = text.Run(context.Background(), newInput(models.FormatJSON, "{}"))
	if err != nil {
		t.Fatal(err)
	}
	if out.Format != models.FormatText || string(out.Content) != "/person/1.json" {
		t.Errorf("unexpected output %s", out)
	}

	if _, err := builder.CreateStep("template", "x", map[string]any{"template": "{{"}); err == nil {
		t.Error("expected a parse error")
	}
}

func envelopeInput(format models.ContentFormat) *models.StepInput {
	input := newInput(format, "")
	if format == models.FormatXML {
		input.Previous["headers"] = models.NewDocument(input.URI, models.FormatXML, []byte(`<?xml version="1.0"?><h>1</h>`))
	} else {
		input.Previous["headers"] = models.NewDocument(input.URI, models.FormatJSON, []byte(`{"h":1}`))
	}
	input.Previous["triples"] = models.NewDocument(input.URI, models.FormatText, []byte(`a<b`))
	input.Previous["content"] = models.NewDocument(input.URI, models.FormatBinary, []byte{0xAB, 0x01})
	return input
}

func TestEnvelopeStep(t *testing.T) {
	tests := []struct {
		name   string
		format models.ContentFormat
		engine string
		want   string
	}{
		{"xml native", models.FormatXML, "native", `<envelope><headers><h>1</h></headers><triples>a&lt;b</triples><instance>ab01</instance></envelope>`},
		{"xml script", models.FormatXML, "script", `<envelope><headers><h>1</h></headers><triples>a&lt;b</triples><instance>BinaryNode(&#34;ab01&#34;)</instance></envelope>`},
		{"json native", models.FormatJSON, "native", `{"envelope":{"headers":{"h":1},"instance":"ab01","triples":"a<b"}}`},
		{"json script", models.FormatJSON, "script", `{"envelope":{"headers":{"h":1},"instance":"BinaryNode(\"ab01\")","triples":"a<b"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := mustCreate(t, "envelope", "writer", map[string]any{"engine": tt.engine})
			if !models.CapabilitiesOf(step).Has(models.CapWriteOutput) {
				t.Error("envelope should be a writer")
			}

			out, err := step.Run(context.Background(), envelopeInput(tt.format))
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if string(out.Content) != tt.want {
				t.Errorf("expected\n%s\ngot\n%s", tt.want, out.Content)
			}
		})
	}
}

func TestEnvelopeMissingSections(t *testing.T) {
	step := mustCreate(t, "envelope", "writer", map[string]any{"instance": "body"})
	out, err := step.Run(context.Background(), newInput(models.FormatJSON, "{}"))
	if err != nil {
		t.Fatal(err)
	}

	var decoded map[string]map[string]any
	if err := json.Unmarshal(out.Content, &decoded); err != nil {
		t.Fatalf("invalid envelope: %v", err)
	}
	for _, section := range []string{"headers", "triples", "instance"} {
		if v, ok := decoded["envelope"][section]; !ok || v != nil {
			t.Errorf("expected null %s, got %v", section, v)
		}
	}
}

func TestBinaryStep(t *testing.T) {
	step := mustCreate(t, "binary", "content", map[string]any{"hex": "CAFE"})
	out, err := step.Run(context.Background(), newInput(models.FormatXML, "<p/>"))
	if err != nil {
		t.Fatal(err)
	}
	if out.Format != models.FormatBinary || string(out.Content) != "\xca\xfe" {
		t.Errorf("unexpected output %s", out)
	}

	path := filepath.Join(t.TempDir(), "payload.bin")
	if err := os.WriteFile(path, []byte{1, 2, 3}, 0o600); err != nil {
		t.Fatal(err)
	}
	fileStep := mustCreate(t, "binary", "content", map[string]any{"path": path})
	out, err = fileStep.Run(context.Background(), newInput(models.FormatXML, "<p/>"))
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Content) != 3 {
		t.Errorf("expected 3 bytes, got %d", len(out.Content))
	}

	bad := mustCreate(t, "binary", "content", map[string]any{"hex": "xyz"})
	if _, err := bad.Run(context.Background(), newInput(models.FormatXML, "")); err == nil {
		t.Error("expected invalid hex error")
	}

	if _, err := builder.CreateStep("binary", "content", nil); err == nil {
		t.Error("expected missing option error")
	}
	if _, err := builder.CreateStep("binary", "content", map[string]any{"hex": "00", "path": "x"}); err == nil {
		t.Error("expected conflicting options error")
	}
}

func TestDelayStep(t *testing.T) {
	step := mustCreate(t, "delay", "wait", map[string]any{"ms": 10})
	input := newInput(models.FormatJSON, `{"a":1}`)

	start := time.Now()
	out, err := step.Run(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Error("delay returned too early")
	}
	if out != input.Document {
		t.Error("delay should pass the document through")
	}

	long := mustCreate(t, "delay", "wait", map[string]any{"ms": "$var:wait"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	input.Variables["wait"] = 10000
	if _, err := long.Run(ctx, input); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestErrorStep(t *testing.T) {
	step := mustCreate(t, "error", "content", map[string]any{"message": "bad document"})
	out, err := step.Run(context.Background(), newInput(models.FormatJSON, "{}"))
	if err == nil || err.Error() != "bad document" {
		t.Errorf("expected 'bad document', got %v", err)
	}
	if out != nil {
		t.Error("expected no partial output")
	}

	partial := mustCreate(t, "error", "writer", map[string]any{"partial": true})
	input := newInput(models.FormatJSON, `{"a":1}`)
	out, err = partial.Run(context.Background(), input)
	if err == nil {
		t.Fatal("expected an error")
	}
	if out != input.Document {
		t.Error("expected the input as partial output")
	}
}
