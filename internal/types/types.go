package types

import (
	"context"

	"github.com/xhad/pdfalt/internal/models"
)

// Core interfaces

// DocumentSource exposes the page model of an opened document.
type DocumentSource interface {
	PageCount() int
	Page(index int) (models.Page, error)
	Metadata() []MetadataEntry
	Close() error
}

// MetadataEntry is one key/value pair of a document's metadata.
type MetadataEntry struct {
	Key   string
	Value string
	Kind  ValueKind
}

// ValueKind is the type a metadata value is stored as in the document.
type ValueKind int

const (
	// StringValue is a text string. It is the zero value.
	StringValue ValueKind = iota
	// NameValue is a name such as /False, stored without the slash.
	NameValue
	// RawValue is a number or boolean, written back verbatim.
	RawValue
)

// Generator turns a context record into a description. Implementations may
// fail; callers treat failures as non-fatal.
type Generator interface {
	Generate(ctx context.Context, record models.ContextRecord) (string, error)
}

// ImageSink persists extracted image bytes under their derived names.
type ImageSink interface {
	Put(ctx context.Context, name string, data []byte) error
}

// Embedder creates vector embeddings for archive storage and search.
type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}
