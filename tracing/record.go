package tracing

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/simon020286/go-datahub/models"
)

// Kind tells how a record output is represented
type Kind string

const (
	KindText   Kind = "text"
	KindBinary Kind = "binary"
)

const (
	binaryNodePrefix = `BinaryNode("`
	binaryNodeSuffix = `")`
)

// Record is the trace of one step execution
type Record struct {
	Label  string
	Engine models.Engine
	Kind   Kind
	// Format of the step output the record was built from, empty when there was none
	Format models.ContentFormat
	Output string
	Error  string
	Time   time.Time
}

// Failed reports whether the step failed
func (r Record) Failed() bool {
	return r.Error != ""
}

// NewRecord builds the record of a successful step. Binary outputs are
// encoded in the notation of the step engine.
func NewRecord(label string, engine models.Engine, output *models.Document) Record {
	r := Record{
		Label:  label,
		Engine: engine,
		Kind:   KindText,
		Time:   time.Now().UTC(),
	}
	if output == nil {
		return r
	}
	r.Format = output.Format
	if output.Format == models.FormatBinary {
		r.Kind = KindBinary
		r.Output = EncodeBinary(engine, output.Content)
		return r
	}
	r.Output = string(output.Content)
	return r
}

// NewFailureRecord builds the record of a failed step: the partial output
// when the step returned one, the error message otherwise.
func NewFailureRecord(label string, engine models.Engine, output *models.Document, err error) Record {
	if err == nil {
		err = errors.New("unknown error")
	}
	var r Record
	if output != nil && len(output.Content) > 0 {
		r = NewRecord(label, engine, output)
	} else {
		r = NewRecord(label, engine, nil)
		r.Output = err.Error()
	}
	r.Error = err.Error()
	return r
}

// EncodeBinary renders bytes in the notation of the engine: lowercase hex
// for the native engine, BinaryNode("hex") for the script engine.
func EncodeBinary(engine models.Engine, b []byte) string {
	h := hex.EncodeToString(b)
	if engine == models.EngineScript {
		return binaryNodePrefix + h + binaryNodeSuffix
	}
	return h
}

// NormalizeBinary strips the script notation wrapper and lowercases the hex
func NormalizeBinary(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, binaryNodePrefix) && strings.HasSuffix(s, binaryNodeSuffix) {
		s = s[len(binaryNodePrefix) : len(s)-len(binaryNodeSuffix)]
	}
	return strings.ToLower(s)
}

// DecodeBinary decodes either binary notation back to bytes
func DecodeBinary(s string) ([]byte, error) {
	b, err := hex.DecodeString(NormalizeBinary(s))
	if err != nil {
		return nil, fmt.Errorf("decode binary output: %w", err)
	}
	return b, nil
}
