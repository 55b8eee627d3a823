package builder

import (
	"errors"
	"testing"

	"github.com/simon020286/go-datahub/config"
	"github.com/simon020286/go-datahub/models"
)

func TestParseConfigValue_StaticString(t *testing.T) {
	result := ParseConfigValue("hello")

	if !result.IsStatic() {
		t.Error("Expected static value")
	}

	val, ok := result.GetStaticValue()
	if !ok {
		t.Fatal("GetStaticValue should return true")
	}

	if val != "hello" {
		t.Errorf("Expected 'hello', got %v", val)
	}
}

func TestParseConfigValue_StaticNumber(t *testing.T) {
	result := ParseConfigValue(42)

	val, ok := result.GetStaticValue()
	if !ok {
		t.Fatal("GetStaticValue should return true")
	}

	if val != 42 {
		t.Errorf("Expected 42, got %v", val)
	}
}

func TestParseConfigValue_DynamicJS(t *testing.T) {
	result := ParseConfigValue("$js: ctx.uri")

	if result.IsStatic() {
		t.Error("Expected dynamic value")
	}

	dv, ok := result.GetDynamicExpression()
	if !ok {
		t.Fatal("GetDynamicExpression should return true")
	}

	if dv.Language != "js" {
		t.Errorf("Expected language 'js', got %s", dv.Language)
	}

	if dv.Expression != "ctx.uri" {
		t.Errorf("Expected expression 'ctx.uri', got %s", dv.Expression)
	}
}

func TestParseConfigValue_DynamicJSWithSpaces(t *testing.T) {
	result := ParseConfigValue("$js:   ctx.jobId + 10  ")

	dv, ok := result.GetDynamicExpression()
	if !ok {
		t.Fatal("Expected dynamic value")
	}

	if dv.Expression != "ctx.jobId + 10" {
		t.Errorf("Expected trimmed expression, got '%s'", dv.Expression)
	}
}

func TestParseConfigValue_References(t *testing.T) {
	if ref, ok := ParseConfigValue("$var: collection").(config.VariableReference); !ok || ref.Name != "collection" {
		t.Errorf("Expected VariableReference{collection}, got %#v", ParseConfigValue("$var: collection"))
	}
	if ref, ok := ParseConfigValue("$env:DATAHUB_DIR").(config.EnvReference); !ok || ref.Name != "DATAHUB_DIR" {
		t.Errorf("Expected EnvReference{DATAHUB_DIR}, got %#v", ParseConfigValue("$env:DATAHUB_DIR"))
	}

	spec := config.NewStaticValue(1)
	if ParseConfigValue(spec) != spec {
		t.Error("ValueSpec should be returned unchanged")
	}
}

func TestParseConfigValue_Bool(t *testing.T) {
	result := ParseConfigValue(true)

	val, ok := result.GetStaticValue()
	if !ok {
		t.Fatal("GetStaticValue should return true")
	}

	if val != true {
		t.Errorf("Expected true, got %v", val)
	}
}

func TestOptions(t *testing.T) {
	cfg := map[string]any{
		"engine": "script",
		"format": "xml",
		"name":   "x",
		"count":  3,
	}

	engine, err := EngineOption(cfg, models.EngineNative)
	if err != nil || engine != models.EngineScript {
		t.Errorf("Expected script engine, got %v (%v)", engine, err)
	}
	engine, err = EngineOption(map[string]any{}, models.EngineNative)
	if err != nil || engine != models.EngineNative {
		t.Errorf("Expected default engine, got %v (%v)", engine, err)
	}

	format, err := FormatOption(cfg, "format")
	if err != nil || format != models.FormatXML {
		t.Errorf("Expected xml, got %v (%v)", format, err)
	}

	if _, err := StringOption(cfg, "count", ""); err == nil {
		t.Error("Expected error for non string option")
	}
	if s, _ := StringOption(cfg, "missing", "def"); s != "def" {
		t.Errorf("Expected default, got %s", s)
	}

	if _, ok := ValueOption(cfg, "missing"); ok {
		t.Error("Expected missing option")
	}
}

func TestToInt(t *testing.T) {
	for _, v := range []any{5, int64(5), 5.0, " 5 "} {
		n, err := ToInt(v)
		if err != nil || n != 5 {
			t.Errorf("ToInt(%#v) = %d, %v", v, n, err)
		}
	}
	if _, err := ToInt(true); err == nil {
		t.Error("Expected error for bool")
	}
	if _, err := ToInt("abc"); err == nil {
		t.Error("Expected error for non numeric string")
	}
}

func TestRenderTemplate(t *testing.T) {
	tmpl, err := ParseTemplate("t", `<doc uri="{{ xmlText .uri }}">{{ .values.name }}-{{ .values.n }}-{{ .vars.env }}</doc>`)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	input := &models.StepInput{
		URI:       "/a&b.xml",
		Variables: map[string]any{"env": "test"},
	}
	values := map[string]config.ValueSpec{
		"name": config.NewStaticValue("bob"),
		"n":    config.DynamicValue{Language: "js", Expression: "1 + 1"},
	}

	result, err := RenderTemplate(tmpl, values, input)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	expected := `<doc uri="/a&amp;b.xml">bob-2-test</doc>`
	if result != expected {
		t.Errorf("Expected '%s', got '%s'", expected, result)
	}
}

func TestParseTemplate_Invalid(t *testing.T) {
	if _, err := ParseTemplate("t", "{{ .x "); err == nil {
		t.Error("Expected parse error")
	}
}

func TestStepRegistry(t *testing.T) {
	called := false
	testFactory := func(label string, cfg map[string]any) (models.Step, error) {
		called = true
		if label != "content" {
			t.Errorf("Expected label 'content', got '%s'", label)
		}
		return nil, nil
	}

	RegisterStepType("test_step", testFactory)

	factory, err := GetStepFactory("test_step")
	if err != nil {
		t.Fatalf("Step type not registered: %v", err)
	}

	factory("content", nil)
	if !called {
		t.Error("Factory function not called")
	}

	if _, err := GetStepFactory("nope"); err == nil {
		t.Error("Expected error for unknown step type")
	}
}

func TestCreateStep_FactoryError(t *testing.T) {
	RegisterStepType("failing_step", func(label string, cfg map[string]any) (models.Step, error) {
		return nil, errors.New("bad config")
	})

	if _, err := CreateStep("failing_step", "x", nil); err == nil {
		t.Error("Expected factory error to be returned")
	}
	if _, err := CreateStep("unknown_step", "x", nil); err == nil {
		t.Error("Expected unknown step type error")
	}
}

func TestNewJobID(t *testing.T) {
	a, b := NewJobID(), NewJobID()
	if a == "" || a == b {
		t.Errorf("Expected distinct job ids, got %q and %q", a, b)
	}
}
