// Package processed reads the per-session processed-data document produced
// by the lab's extraction scripts: fluorescence traces, frame-indexed
// behavior and the inclusion index pair of every sensor.
package processed

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/bytedance/sonic"
	"github.com/penwyp/go-photometry-sync/internal/core/errs"
	"github.com/penwyp/go-photometry-sync/internal/core/model"
)

// TimestampKey is the behavior vector holding the processed frame times.
const TimestampKey = "timestamp"

// Photometry is one sensor's fluorescence: Data[frame][fiber].
type Photometry struct {
	Data [][]float64 `json:"data"`
	ROIs []model.ROI `json:"rois"`
}

// Frames returns the number of frames.
func (p Photometry) Frames() int {
	return len(p.Data)
}

// Fibers returns the number of fibers, taken from the first frame.
func (p Photometry) Fibers() int {
	if len(p.Data) == 0 {
		return 0
	}
	return len(p.Data[0])
}

// Behavior holds frame-indexed behavioral vectors keyed by name.
type Behavior map[string][]float64

// Timestamps returns the processed frame times, if present.
func (b Behavior) Timestamps() ([]float64, bool) {
	ts, ok := b[TimestampKey]
	return ts, ok
}

// Channels returns the behavior vector names except the timestamp, sorted.
func (b Behavior) Channels() []string {
	names := make([]string, 0, len(b))
	for name := range b {
		if name != TimestampKey {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Document is a decoded processed-data file. Fields are decoded lazily
// by type on access.
type Document struct {
	Path   string
	fields map[string]json.RawMessage
}

// Reader loads processed-data documents.
type Reader struct{}

// NewReader creates a Reader.
func NewReader() *Reader {
	return &Reader{}
}

// ReadDocument reads and indexes path.
func (r *Reader) ReadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read processed data: %w", err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse processed data %s: %w", path, err)
	}
	doc.Path = path
	return doc, nil
}

// Parse indexes an in-memory document.
func Parse(data []byte) (*Document, error) {
	fields := make(map[string]json.RawMessage)
	if err := sonic.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return &Document{fields: fields}, nil
}

// Fields returns the top-level field names, sorted.
func (d *Document) Fields() []string {
	names := make([]string, 0, len(d.fields))
	for name := range d.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether the document contains field.
func (d *Document) Has(field string) bool {
	_, ok := d.fields[field]
	return ok
}

func (d *Document) raw(field string) (json.RawMessage, error) {
	raw, ok := d.fields[field]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", errs.ErrFieldNotFound, field, d.Fields())
	}
	return raw, nil
}

// Photometry decodes a fluorescence field.
func (d *Document) Photometry(field string) (Photometry, error) {
	raw, err := d.raw(field)
	if err != nil {
		return Photometry{}, err
	}
	var p Photometry
	if err := sonic.Unmarshal(raw, &p); err != nil {
		return Photometry{}, fmt.Errorf("field %q is not a photometry struct: %w", field, err)
	}
	for i, row := range p.Data {
		if len(row) != p.Fibers() {
			return Photometry{}, fmt.Errorf("field %q: frame %d has %d fibers, expected %d", field, i, len(row), p.Fibers())
		}
	}
	return p, nil
}

// Behavior decodes a behavior field.
func (d *Document) Behavior(field string) (Behavior, error) {
	raw, err := d.raw(field)
	if err != nil {
		return nil, err
	}
	var b Behavior
	if err := sonic.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("field %q is not a behavior struct: %w", field, err)
	}
	return b, nil
}

// Index decodes a 1-based inclusive [first, last] pair into a window.
func (d *Document) Index(field string) (model.InclusionWindow, error) {
	raw, err := d.raw(field)
	if err != nil {
		return model.InclusionWindow{}, err
	}
	var pair []float64
	if err := sonic.Unmarshal(raw, &pair); err != nil {
		return model.InclusionWindow{}, fmt.Errorf("field %q is not an index pair: %w", field, err)
	}
	w, err := model.FromOneBased(pair)
	if err != nil {
		return model.InclusionWindow{}, fmt.Errorf("field %q: %w", field, err)
	}
	return w, nil
}
