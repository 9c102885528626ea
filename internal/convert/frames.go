package convert

import (
	"fmt"

	"github.com/penwyp/go-photometry-sync/internal/core/interleave"
	"github.com/penwyp/go-photometry-sync/internal/core/model"
	"github.com/penwyp/go-photometry-sync/internal/core/ports"
	"github.com/penwyp/go-photometry-sync/internal/data/imaging"
)

// fileFrames serves frames of one stack file. The file is opened per read.
type fileFrames struct {
	path   string
	meta   imaging.Metadata
	reader ports.ImagingReader
}

func openFrames(reader ports.ImagingReader, path string) (*fileFrames, error) {
	meta, err := reader.ReadMetadata(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read imaging metadata: %w", err)
	}
	return &fileFrames{path: path, meta: meta, reader: reader}, nil
}

func (f *fileFrames) Len() int                { return f.meta.Frames }
func (f *fileFrames) Shape() model.FrameShape { return f.meta.Shape() }

func (f *fileFrames) ReadFrames(first, last int) ([]model.Frame, error) {
	return f.reader.ReadFrames(f.path, first, last)
}

// interleavedFrames is one channel of a stack that alternates both
// excitation wavelengths frame by frame.
type interleavedFrames struct {
	file   *fileFrames
	parity interleave.Parity
	// second selects channel B of the split.
	second bool
}

// ownsEven reports whether the channel owns the file's even frames.
func (f *interleavedFrames) ownsEven() bool {
	return (f.parity == interleave.ParityEven) != f.second
}

func (f *interleavedFrames) Len() int {
	n := f.file.Len()
	if f.ownsEven() {
		return (n + 1) / 2
	}
	return n / 2
}

func (f *interleavedFrames) Shape() model.FrameShape { return f.file.Shape() }

func (f *interleavedFrames) ReadFrames(first, last int) ([]model.Frame, error) {
	if first < 0 || last < first || last >= f.Len() {
		return nil, fmt.Errorf("frames [%d, %d] outside interleaved channel of %d frames", first, last, f.Len())
	}
	// The block starts on an even file index so the split keeps its parity.
	end := min(2*last+1, f.file.Len()-1)
	block, err := f.file.ReadFrames(2*first, end)
	if err != nil {
		return nil, err
	}
	a, b := interleave.Split(block, f.parity)
	if f.second {
		return b, nil
	}
	return a, nil
}
