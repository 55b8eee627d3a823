package util

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestMustBindPFlag(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("batch-size", 7, "")
	MustBindPFlag("run.batchSize", flags.Lookup("batch-size"))

	require.Equal(t, 7, viper.GetInt("run.batchSize"))
	require.Panics(t, func() { MustBindPFlag("run.threadCount", nil) })
}

func TestMustBindEnv(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("DATAHUB_TEST_KEY", "value")
	MustBindEnv("test.key", "DATAHUB_TEST_KEY")
	require.Equal(t, "value", viper.GetString("test.key"))
}

func TestParseVariables(t *testing.T) {
	vars, err := ParseVariables([]string{"country=IT", " source = a=b"})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"country": "IT", "source": " a=b"}, vars)

	_, err = ParseVariables([]string{"novalue"})
	require.Error(t, err)
	_, err = ParseVariables([]string{"=x"})
	require.Error(t, err)
}
