package ttl

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/penwyp/go-photometry-sync/internal/core/model"
	"github.com/penwyp/go-photometry-sync/internal/util"
)

// Recording is a fully decoded acquisition file.
type Recording struct {
	Path      string
	Header    *Header
	Series    []model.RawChannelSeries
	StartTime time.Time
}

// Labels returns the channel names in file order.
func (r *Recording) Labels() []string {
	labels := make([]string, len(r.Series))
	for i, s := range r.Series {
		labels[i] = s.Name
	}
	return labels
}

// Reader decodes EDF acquisition files.
type Reader struct{}

// NewReader creates a Reader.
func NewReader() *Reader {
	return &Reader{}
}

// ReadSeries returns every channel of the file as physical values.
func (r *Reader) ReadSeries(path string) ([]model.RawChannelSeries, error) {
	rec, err := r.ReadRecording(path)
	if err != nil {
		return nil, err
	}
	return rec.Series, nil
}

// ReadRecording decodes the header and all data records of path.
func (r *Reader) ReadRecording(path string) (*Recording, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open TTL file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, err
	}

	rec, err := Decode(file, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to decode TTL file %s: %w", path, err)
	}
	rec.Path = path

	util.LogDebug(fmt.Sprintf("Read %d channels from %s: %v", len(rec.Series), path, rec.Labels()))
	return rec, nil
}

// Decode reads a recording from r. size is the total byte length and is
// only used when the header does not state the record count.
func Decode(r io.ReadSeeker, size int64) (*Recording, error) {
	hdr, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	recordSize := hdr.RecordSize()
	if recordSize == 0 {
		return nil, fmt.Errorf("recording has no samples per record")
	}
	records := hdr.DataRecords
	if records < 0 {
		records = int((size - int64(hdr.HeaderBytes)) / int64(recordSize))
	}

	if _, err := r.Seek(int64(hdr.HeaderBytes), io.SeekStart); err != nil {
		return nil, fmt.Errorf("error seeking to data records: %w", err)
	}

	series := make([]model.RawChannelSeries, len(hdr.Signals))
	for i, s := range hdr.Signals {
		rate := hdr.SampleRate(s)
		if rate <= 0 {
			return nil, fmt.Errorf("signal %q has invalid sample rate", s.Label)
		}
		series[i] = model.RawChannelSeries{
			Name:       s.Label,
			Values:     make([]float64, 0, records*s.SamplesPerRecord),
			SampleRate: rate,
		}
	}

	br := bufio.NewReader(r)
	buf := make([]byte, recordSize)
	for rec := 0; rec < records; rec++ {
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, fmt.Errorf("error reading data record %d: %w", rec, err)
		}
		offset := 0
		for i, s := range hdr.Signals {
			for j := 0; j < s.SamplesPerRecord; j++ {
				digital := int16(binary.LittleEndian.Uint16(buf[offset:]))
				series[i].Values = append(series[i].Values, digitalToPhysical(digital, s))
				offset += 2
			}
		}
	}

	return &Recording{Header: hdr, Series: series, StartTime: hdr.StartTime}, nil
}
