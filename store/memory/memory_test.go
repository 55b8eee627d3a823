package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/simon020286/go-datahub/models"
	"github.com/simon020286/go-datahub/store"
	"github.com/simon020286/go-datahub/store/storetest"
)

func TestMemdbStorage(t *testing.T) {
	storetest.RunAllTests(t, New("memory"))
}

func TestReadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	ds := New("memory")

	require.NoError(t, ds.Write(ctx, models.NewDocument("/a.xml", models.FormatXML, []byte("<a/>"))))
	got, err := ds.Read(ctx, "/a.xml")
	require.NoError(t, err)
	got.Content[0] = 'X'

	again, err := ds.Read(ctx, "/a.xml")
	require.NoError(t, err)
	require.Equal(t, "<a/>", string(again.Content))
}

func TestClosedStoreIsUnavailable(t *testing.T) {
	ctx := context.Background()
	ds := New(store.FinalName)
	require.NoError(t, ds.Close())

	err := ds.Write(ctx, models.NewDocument("/a.xml", models.FormatXML, nil))
	require.ErrorIs(t, err, models.ErrStoreUnavailable)

	_, err = ds.Count(ctx, store.Query{})
	require.ErrorIs(t, err, models.ErrStoreUnavailable)
}
