package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrate(t *testing.T) {
	ctx := context.Background()
	uri := "file:" + filepath.Join(t.TempDir(), "migrate.db")

	require.NoError(t, Migrate(ctx, MigrationConfig{URI: uri, TargetVersion: 1}))
	version, err := CurrentVersion(uri)
	require.NoError(t, err)
	require.Equal(t, int64(1), version)

	require.NoError(t, Migrate(ctx, MigrationConfig{URI: uri}))
	version, err = CurrentVersion(uri)
	require.NoError(t, err)
	require.Equal(t, int64(2), version)

	// already at the latest version
	require.NoError(t, Migrate(ctx, MigrationConfig{URI: uri, TargetVersion: 2}))

	require.NoError(t, Migrate(ctx, MigrationConfig{URI: uri, TargetVersion: 1}))
	version, err = CurrentVersion(uri)
	require.NoError(t, err)
	require.Equal(t, int64(1), version)
}
