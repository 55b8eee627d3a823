package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

const personFlow = `
name: person
entity_type: Person
format: xml
steps:
  - label: collector
    step_type: collector
  - label: content
    step_type: template
    step_config:
      template: "<person>{{.content}}</person>"
  - label: headers
    step_type: template
    step_config:
      template: "<source>{{xmlText .uri}}</source>"
  - label: writer
    step_type: envelope
`

type testEnv struct {
	flowsDir string
	inputDir string
	dbURI    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("HOME", t.TempDir())

	dir := t.TempDir()
	env := &testEnv{
		flowsDir: filepath.Join(dir, "flows"),
		inputDir: filepath.Join(dir, "input"),
		dbURI:    "file:" + filepath.Join(dir, "datahub.db"),
	}
	require.NoError(t, os.MkdirAll(env.flowsDir, 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(env.inputDir, "person"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(env.flowsDir, "person.yaml"), []byte(personFlow), 0o600))
	for _, name := range []string{"ada", "alan", "grace"} {
		content := "<name>" + name + "</name>"
		require.NoError(t, os.WriteFile(filepath.Join(env.inputDir, "person", name+".xml"), []byte(content), 0o600))
	}
	return env
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	root := NewDatahubCommand()

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)

	require.NoError(t, root.ExecuteContext(context.Background()), out.String())
	return out.String()
}

func (e *testEnv) sqlite(args ...string) []string {
	return append(args,
		"--store-engine", "sqlite",
		"--store-uri", e.dbURI,
		"--flows-dir", e.flowsDir,
		"--log-level", "none")
}

func TestRunWithMemoryStore(t *testing.T) {
	env := newTestEnv(t)

	out := execute(t, "run",
		"--entity-type", "Person",
		"--flow", "person",
		"--input", env.inputDir,
		"--flows-dir", env.flowsDir,
		"--log-level", "none")

	require.Contains(t, out, "finished: collected=3 succeeded=3 failed=0 traces=0")
}

func TestSqliteLifecycle(t *testing.T) {
	env := newTestEnv(t)

	out := execute(t, env.sqlite("migrate")...)
	require.Contains(t, out, "schema version 2")

	out = execute(t, env.sqlite("load", env.inputDir, "--collection", "Person")...)
	require.Contains(t, out, "loaded 3 documents")

	out = execute(t, env.sqlite("tracing", "status")...)
	require.Contains(t, out, "tracing enabled: false")

	execute(t, env.sqlite("tracing", "enable")...)
	out = execute(t, env.sqlite("tracing", "status")...)
	require.Contains(t, out, "tracing enabled: true")

	out = execute(t, env.sqlite("run", "--entity-type", "Person", "--flow", "person", "--batch-size", "2", "--thread-count", "2")...)
	require.Contains(t, out, "collected=3 succeeded=3 failed=0 traces=4")

	require.Equal(t, "3", strings.TrimSpace(execute(t, env.sqlite("count", "--store", "final")...)))
	require.Equal(t, "4", strings.TrimSpace(execute(t, env.sqlite("count", "--store", "trace")...)))
	require.Equal(t, "3", strings.TrimSpace(execute(t, env.sqlite("count", "--store", "trace", "--exclude-collector")...)))
	require.Equal(t, "3", strings.TrimSpace(execute(t, env.sqlite("count", "--store", "trace", "--label", "writer")...)))

	out = execute(t, env.sqlite("flows")...)
	require.Contains(t, out, "Person/person (xml): collector -> content -> headers -> writer")
}

func TestMigrateWithoutSchema(t *testing.T) {
	newTestEnv(t)
	out := execute(t, "migrate", "--log-level", "none")
	require.Contains(t, out, "no migrations to run for `memory` store")
}

func TestUnknownStore(t *testing.T) {
	env := newTestEnv(t)

	root := NewDatahubCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(env.sqlite("count", "--store", "other"))
	require.Error(t, root.ExecuteContext(context.Background()))
}

func TestEnvironmentOverridesDefaults(t *testing.T) {
	env := newTestEnv(t)
	t.Setenv("DATAHUB_STORE_ENGINE", "sqlite")
	t.Setenv("DATAHUB_STORE_URI", env.dbURI)

	out := execute(t, "migrate", "--log-level", "none")
	require.Contains(t, out, "schema version 2")
}
