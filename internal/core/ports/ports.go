// Package ports declares the collaborators the conversion pipeline reads
// from and writes to. Concrete adapters live under internal/data and
// internal/output.
package ports

import (
	"github.com/penwyp/go-photometry-sync/internal/core/model"
	"github.com/penwyp/go-photometry-sync/internal/data/imaging"
	"github.com/penwyp/go-photometry-sync/internal/data/processed"
	"github.com/penwyp/go-photometry-sync/internal/data/ttl"
)

// TTLReader decodes behavioral acquisition recordings.
type TTLReader interface {
	ReadRecording(path string) (*ttl.Recording, error)
}

// ImagingReader reads raw imaging movies.
type ImagingReader interface {
	ReadMetadata(path string) (imaging.Metadata, error)
	ReadFrames(path string, first, last int) ([]model.Frame, error)
}

// TableReader reads bookkeeping tables as header-keyed rows.
type TableReader interface {
	ReadTable(path string) ([]map[string]string, error)
}

// ProcessedReader reads processed-data documents.
type ProcessedReader interface {
	ReadDocument(path string) (*processed.Document, error)
}

// Serializer writes a completed session record.
type Serializer interface {
	Write(record *model.SessionRecord, outputPath string, overwrite bool) error
}
