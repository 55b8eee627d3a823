package models

import (
	"fmt"
	"slices"
	"strings"
)

// ContentFormat is the kind of body a Document carries
type ContentFormat string

const (
	FormatXML    ContentFormat = "xml"
	FormatJSON   ContentFormat = "json"
	FormatBinary ContentFormat = "binary"
	FormatText   ContentFormat = "text"
)

// ParseFormat converts a configuration string into a ContentFormat
func ParseFormat(s string) (ContentFormat, error) {
	switch f := ContentFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatXML, FormatJSON, FormatBinary, FormatText:
		return f, nil
	default:
		return "", fmt.Errorf("unknown content format: %q", s)
	}
}

// FormatFromURI guesses the format from the URI extension, falling back to binary
func FormatFromURI(uri string) ContentFormat {
	switch {
	case strings.HasSuffix(uri, ".xml"):
		return FormatXML
	case strings.HasSuffix(uri, ".json"):
		return FormatJSON
	case strings.HasSuffix(uri, ".txt"):
		return FormatText
	default:
		return FormatBinary
	}
}

// IsStructured reports whether the format is xml or json
func (f ContentFormat) IsStructured() bool {
	return f == FormatXML || f == FormatJSON
}

// Extension returns the file extension used for URIs of this format
func (f ContentFormat) Extension() string {
	switch f {
	case FormatXML:
		return "xml"
	case FormatJSON:
		return "json"
	case FormatText:
		return "txt"
	default:
		return "bin"
	}
}

// Document is a unit of content identified by a URI
// Steps never modify a Document they receive: they return a new one
type Document struct {
	URI         string
	Format      ContentFormat
	Content     []byte
	Collections []string
}

// NewDocument creates a document copying content and collections
func NewDocument(uri string, format ContentFormat, content []byte, collections ...string) *Document {
	return &Document{
		URI:         uri,
		Format:      format,
		Content:     slices.Clone(content),
		Collections: slices.Clone(collections),
	}
}

// Clone returns a deep copy of the document
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	return NewDocument(d.URI, d.Format, d.Content, d.Collections...)
}

// InCollection reports whether the document belongs to the named collection
func (d *Document) InCollection(name string) bool {
	return slices.Contains(d.Collections, name)
}

// WithCollections returns a copy belonging to the union of its collections and the given ones
func (d *Document) WithCollections(names ...string) *Document {
	out := d.Clone()
	for _, n := range names {
		if n != "" && !out.InCollection(n) {
			out.Collections = append(out.Collections, n)
		}
	}
	return out
}

func (d *Document) String() string {
	return fmt.Sprintf("%s (%s, %d bytes)", d.URI, d.Format, len(d.Content))
}
