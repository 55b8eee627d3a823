package mongo

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/simon020286/go-datahub/store"
	"github.com/simon020286/go-datahub/store/storetest"
)

func TestFilter(t *testing.T) {
	require.Equal(t, bson.M{}, filter(store.Query{}))
	require.Equal(t, bson.M{
		"collections": "trace",
		"_id":         bson.M{"$regex": `^/trace/a\.b`},
	}, filter(store.Query{Collection: "trace", URIPrefix: "/trace/a.b"}))
}

func TestConnectRequiresURI(t *testing.T) {
	_, err := Connect(context.Background(), Config{})
	require.Error(t, err)
}

func TestMongoDatastore(t *testing.T) {
	uri := os.Getenv("DATAHUB_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("DATAHUB_TEST_MONGO_URI not set")
	}

	ctx := context.Background()
	client, err := Connect(ctx, Config{URI: uri, Database: "datahub_test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close(context.Background()) })

	storetest.RunAllTests(t, client.Store(store.FinalName))
}
