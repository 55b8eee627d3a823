package tracing

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/simon020286/go-datahub/models"
	"github.com/simon020286/go-datahub/store"
)

func sampleTrace(format models.ContentFormat) *Document {
	d := NewDocument("job-1", "my-flow", "Person", "/doc/1."+format.Extension(), format)
	d.Add(NewRecord("content", models.EngineNative, models.NewDocument("/doc/1", format, []byte(contentFor(format)))))
	d.Add(NewRecord("headers", models.EngineScript, models.NewDocument("/doc/1", models.FormatBinary, []byte{0x01, 0xab})))
	d.Add(NewFailureRecord("writer", models.EngineNative, nil, errors.New("write failed")))
	d.Fail(errors.New("write failed"))
	return d
}

func contentFor(format models.ContentFormat) string {
	if format == models.FormatXML {
		return "<person><name>bob</name></person>"
	}
	return `{"person":{"name":"bob"}}`
}

func TestDocumentRoundTrip(t *testing.T) {
	for _, format := range []models.ContentFormat{models.FormatXML, models.FormatJSON} {
		t.Run(string(format), func(t *testing.T) {
			trace := sampleTrace(format)

			doc, err := trace.StoreDocument()
			require.NoError(t, err)
			require.Equal(t, format, doc.Format)
			require.True(t, strings.HasPrefix(doc.URI, URIPrefix))
			require.True(t, strings.HasSuffix(doc.URI, "."+format.Extension()))
			require.ElementsMatch(t, []string{Collection, "my-flow"}, doc.Collections)

			require.Equal(t, []string{"content", "headers", "writer"}, store.PropertyValues(doc, "label"))

			decoded, err := Decode(doc)
			require.NoError(t, err)
			require.Equal(t, trace.ID, decoded.ID)
			require.Equal(t, "job-1", decoded.JobID)
			require.Equal(t, "/doc/1."+format.Extension(), decoded.Identifier)
			require.False(t, decoded.Completed)
			require.Equal(t, "write failed", decoded.Error)
			require.Equal(t, []string{"content", "headers", "writer"}, decoded.Labels())

			require.Equal(t, KindBinary, decoded.Records[1].Kind)
			require.Equal(t, models.EngineScript, decoded.Records[1].Engine)
			require.Equal(t, `BinaryNode("01ab")`, decoded.Records[1].Output)
			require.True(t, decoded.Records[2].Failed())
		})
	}
}

func TestJSONOutputsAreEmbedded(t *testing.T) {
	trace := sampleTrace(models.FormatJSON)
	doc, err := trace.StoreDocument()
	require.NoError(t, err)

	require.Contains(t, string(doc.Content), `"output":{"person":{"name":"bob"}}`)

	decoded, err := Decode(doc)
	require.NoError(t, err)
	require.JSONEq(t, `{"person":{"name":"bob"}}`, decoded.Records[0].Output)
}

func TestXMLOutputsAreEscaped(t *testing.T) {
	doc, err := sampleTrace(models.FormatXML).StoreDocument()
	require.NoError(t, err)
	require.Contains(t, string(doc.Content), "&lt;person&gt;")

	decoded, err := Decode(doc)
	require.NoError(t, err)
	require.Equal(t, "<person><name>bob</name></person>", decoded.Records[0].Output)
}

func TestNonStructuredSourcesUseJSON(t *testing.T) {
	d := NewDocument("job", "flow", "Entity", "/img.png", models.FormatBinary)
	require.Equal(t, models.FormatJSON, d.Format)
	require.True(t, d.Empty())
	require.True(t, strings.HasSuffix(d.URI(), ".json"))
}

func TestDecodeRejectsBinary(t *testing.T) {
	_, err := Decode(models.NewDocument("/trace/x.bin", models.FormatBinary, []byte{0x00}))
	require.Error(t, err)
}
