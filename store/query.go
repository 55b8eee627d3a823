package store

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/simon020286/go-datahub/models"
)

// Query selects documents of a store. Zero values select everything.
type Query struct {
	Collection string      // Only documents in this collection
	URIPrefix  string      // Only documents whose URI starts with this prefix
	Conditions []Condition // All conditions must hold
	Limit      int         // Maximum number of documents, 0 means no limit
}

// Condition is a property value query: it holds when any JSON property or
// XML element named Property, at any depth, has the text Value.
// Negate inverts the condition.
type Condition struct {
	Property string
	Value    string
	Negate   bool
}

// PropertyEquals builds a positive property value condition
func PropertyEquals(property, value string) Condition {
	return Condition{Property: property, Value: value}
}

// PropertyNotEquals builds a negated property value condition
func PropertyNotEquals(property, value string) Condition {
	return Condition{Property: property, Value: value, Negate: true}
}

// Matches reports whether doc satisfies every part of the query except Limit
func (q Query) Matches(doc *models.Document) bool {
	if q.Collection != "" && !doc.InCollection(q.Collection) {
		return false
	}
	if q.URIPrefix != "" && !strings.HasPrefix(doc.URI, q.URIPrefix) {
		return false
	}
	for _, c := range q.Conditions {
		if !c.Matches(doc) {
			return false
		}
	}
	return true
}

// Matches evaluates the condition against the document content
func (c Condition) Matches(doc *models.Document) bool {
	found := false
	for _, v := range PropertyValues(doc, c.Property) {
		if v == c.Value {
			found = true
			break
		}
	}
	return found != c.Negate
}

// PropertyValues returns the scalar values of every property or element named
// name in the document. Binary and text documents have no properties.
func PropertyValues(doc *models.Document, name string) []string {
	switch doc.Format {
	case models.FormatJSON:
		if !gjson.ValidBytes(doc.Content) {
			return nil
		}
		var out []string
		jsonPropertyValues(gjson.ParseBytes(doc.Content), name, &out)
		return out
	case models.FormatXML:
		out, _ := xmlElementValues(doc.Content, name)
		return out
	default:
		return nil
	}
}

func jsonPropertyValues(r gjson.Result, name string, out *[]string) {
	switch {
	case r.IsObject():
		r.ForEach(func(key, value gjson.Result) bool {
			if key.String() == name {
				appendScalars(value, out)
			}
			jsonPropertyValues(value, name, out)
			return true
		})
	case r.IsArray():
		r.ForEach(func(_, value gjson.Result) bool {
			jsonPropertyValues(value, name, out)
			return true
		})
	}
}

func appendScalars(r gjson.Result, out *[]string) {
	switch {
	case r.IsObject():
	case r.IsArray():
		r.ForEach(func(_, v gjson.Result) bool {
			if !v.IsObject() && !v.IsArray() {
				*out = append(*out, v.String())
			}
			return true
		})
	default:
		*out = append(*out, r.String())
	}
}

type xmlFrame struct {
	name     string
	text     strings.Builder
	hasChild bool
}

// xmlElementValues returns the trimmed text of every leaf element with the given local name
func xmlElementValues(content []byte, name string) ([]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(content))
	var (
		stack []*xmlFrame
		out   []string
	)
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if len(stack) > 0 {
				stack[len(stack)-1].hasChild = true
			}
			stack = append(stack, &xmlFrame{name: t.Name.Local})
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}
		case xml.EndElement:
			if len(stack) == 0 {
				continue
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if top.name == name && !top.hasChild {
				out = append(out, strings.TrimSpace(top.text.String()))
			}
		}
	}
}
