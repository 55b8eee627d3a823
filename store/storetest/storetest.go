// Package storetest contains the behavior every [store.DocumentStore] implementation must satisfy.
package storetest

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/simon020286/go-datahub/models"
	"github.com/simon020286/go-datahub/store"
)

// RunAllTests runs the conformance suite against an empty store
func RunAllTests(t *testing.T, ds store.DocumentStore) {
	t.Run("ReadWrite", func(t *testing.T) { ReadWriteTest(t, ds) })
	t.Run("Query", func(t *testing.T) { QueryTest(t, ds) })
	t.Run("Conditions", func(t *testing.T) { ConditionsTest(t, ds) })
	t.Run("DeleteAndClear", func(t *testing.T) { DeleteAndClearTest(t, ds) })
}

func ReadWriteTest(t *testing.T, ds store.DocumentStore) {
	ctx := context.Background()
	require.NoError(t, ds.Clear(ctx))

	_, err := ds.Read(ctx, "/missing.xml")
	require.ErrorIs(t, err, store.ErrNotFound)

	doc := models.NewDocument("/doc/1.xml", models.FormatXML, []byte("<a>1</a>"), "c1", "c2")
	require.NoError(t, ds.Write(ctx, doc))

	got, err := ds.Read(ctx, "/doc/1.xml")
	require.NoError(t, err)
	require.Equal(t, doc.URI, got.URI)
	require.Equal(t, models.FormatXML, got.Format)
	require.Equal(t, "<a>1</a>", string(got.Content))
	require.ElementsMatch(t, []string{"c1", "c2"}, got.Collections)

	// overwrite
	require.NoError(t, ds.Write(ctx, models.NewDocument("/doc/1.xml", models.FormatXML, []byte("<a>2</a>"), "c3")))
	got, err = ds.Read(ctx, "/doc/1.xml")
	require.NoError(t, err)
	require.Equal(t, "<a>2</a>", string(got.Content))
	require.Equal(t, []string{"c3"}, got.Collections)

	bin := models.NewDocument("/bin/1.png", models.FormatBinary, []byte{0x89, 0x50, 0x00, 0xff})
	require.NoError(t, ds.Write(ctx, bin))
	got, err = ds.Read(ctx, "/bin/1.png")
	require.NoError(t, err)
	require.Equal(t, bin.Content, got.Content)
}

func QueryTest(t *testing.T, ds store.DocumentStore) {
	ctx := context.Background()
	require.NoError(t, ds.Clear(ctx))

	for i := 5; i >= 1; i-- {
		coll := "even"
		if i%2 == 1 {
			coll = "odd"
		}
		doc := models.NewDocument(fmt.Sprintf("/doc/%d.json", i), models.FormatJSON, []byte(fmt.Sprintf(`{"n":%d}`, i)), coll, "all")
		require.NoError(t, ds.Write(ctx, doc))
	}
	require.NoError(t, ds.Write(ctx, models.NewDocument("/other/1.json", models.FormatJSON, []byte(`{}`), "all")))

	n, err := ds.Count(ctx, store.Query{})
	require.NoError(t, err)
	require.Equal(t, 6, n)

	uris, err := store.URIs(ctx, ds, store.Query{Collection: "odd"})
	require.NoError(t, err)
	require.Equal(t, []string{"/doc/1.json", "/doc/3.json", "/doc/5.json"}, uris)

	uris, err = store.URIs(ctx, ds, store.Query{URIPrefix: "/doc/", Limit: 2})
	require.NoError(t, err)
	require.Equal(t, []string{"/doc/1.json", "/doc/2.json"}, uris)

	n, err = ds.Count(ctx, store.Query{Collection: "all", URIPrefix: "/other/"})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	it, err := ds.Query(ctx, store.Query{Collection: "even"})
	require.NoError(t, err)
	docs, err := store.Collect(ctx, it)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.JSONEq(t, `{"n":2}`, string(docs[0].Content))
}

func ConditionsTest(t *testing.T, ds store.DocumentStore) {
	ctx := context.Background()
	require.NoError(t, ds.Clear(ctx))

	require.NoError(t, ds.Write(ctx, models.NewDocument("/trace/1.json", models.FormatJSON,
		[]byte(`{"trace":{"steps":[{"label":"collector","output":"[]"}]}}`), "trace")))
	require.NoError(t, ds.Write(ctx, models.NewDocument("/trace/2.json", models.FormatJSON,
		[]byte(`{"trace":{"steps":[{"label":"content","output":"x"},{"label":"writer","output":"y"}]}}`), "trace")))
	require.NoError(t, ds.Write(ctx, models.NewDocument("/trace/3.xml", models.FormatXML,
		[]byte(`<trace><step><label>content</label><output>z</output></step></trace>`), "trace")))
	require.NoError(t, ds.Write(ctx, models.NewDocument("/trace/4.xml", models.FormatXML,
		[]byte(`<trace><step><label>collector</label><output/></step></trace>`), "trace")))

	uris, err := store.URIs(ctx, ds, store.Query{Conditions: []store.Condition{store.PropertyNotEquals("label", "collector")}})
	require.NoError(t, err)
	require.Equal(t, []string{"/trace/2.json", "/trace/3.xml"}, uris)

	n, err := ds.Count(ctx, store.Query{Conditions: []store.Condition{store.PropertyEquals("label", "writer")}})
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func DeleteAndClearTest(t *testing.T, ds store.DocumentStore) {
	ctx := context.Background()
	require.NoError(t, ds.Clear(ctx))

	require.NoError(t, ds.Write(ctx, models.NewDocument("/a.txt", models.FormatText, []byte("a"))))
	require.NoError(t, ds.Write(ctx, models.NewDocument("/b.txt", models.FormatText, []byte("b"))))

	require.NoError(t, ds.Delete(ctx, "/a.txt"))
	require.NoError(t, ds.Delete(ctx, "/never.txt"))
	_, err := ds.Read(ctx, "/a.txt")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, ds.Clear(ctx))
	n, err := ds.Count(ctx, store.Query{})
	require.NoError(t, err)
	require.Zero(t, n)
}
