// Package agents implements the document agents: the classifier that detects
// format and intent, and the JSON, email and PDF extractors. Every agent logs
// its result to the shared memory through Base.LogProcessing.
package agents

import (
	"context"
	"fmt"
)

// Supported document formats
const (
	FormatJSON  = "json"
	FormatEmail = "email"
	FormatPDF   = "pdf"
)

// Document is the input to an agent: either text or raw bytes.
type Document struct {
	Text     string
	Binary   []byte
	Filename string
}

// TextDocument wraps text content
func TextDocument(text string) Document {
	return Document{Text: text}
}

// BinaryDocument wraps raw bytes such as an uploaded PDF
func BinaryDocument(data []byte, filename string) Document {
	if data == nil {
		data = []byte{}
	}
	return Document{Binary: data, Filename: filename}
}

// IsBinary reports whether the document carries bytes rather than text
func (d Document) IsBinary() bool {
	return d.Binary != nil
}

// Size is the content length in bytes
func (d Document) Size() int {
	if d.IsBinary() {
		return len(d.Binary)
	}
	return len(d.Text)
}

// Metadata is the caller-supplied context that travels with a document.
// Recognized keys: thread_id, conversation_id, source, type, intent.
type Metadata map[string]interface{}

// String returns the value for key as a string. Non-string values are
// formatted; missing and nil values report false.
func (m Metadata) String(key string) (string, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}

// Clone returns a shallow copy, never nil
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Processor is implemented by every agent.
type Processor interface {
	Name() string
	Process(ctx context.Context, doc Document, metadata Metadata) (interface{}, error)
}
