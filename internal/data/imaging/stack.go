// Package imaging reads and writes raw frame stacks: a fixed ASCII header
// followed by little-endian uint16 frames in row-major order.
package imaging

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/penwyp/go-photometry-sync/internal/core/model"
	"github.com/penwyp/go-photometry-sync/internal/util"
)

const (
	HeaderSize = 64
	magic      = "RAWSTACK1"
)

// Metadata describes a stack. SamplingFrequency is zero when the
// acquisition software did not record it.
type Metadata struct {
	Width             int     `json:"width"`
	Height            int     `json:"height"`
	Frames            int     `json:"frames"`
	SamplingFrequency float64 `json:"sampling_frequency"`
}

// Shape returns the frame geometry.
func (m Metadata) Shape() model.FrameShape {
	return model.FrameShape{Height: m.Height, Width: m.Width}
}

// FrameBytes is the encoded size of one frame.
func (m Metadata) FrameBytes() int {
	return m.Width * m.Height * 2
}

func (m Metadata) encodeHeader() ([]byte, error) {
	line := fmt.Sprintf("%s %d %d %d %g", magic, m.Width, m.Height, m.Frames, m.SamplingFrequency)
	if len(line) > HeaderSize-1 {
		return nil, fmt.Errorf("stack header too long: %q", line)
	}
	return []byte(fmt.Sprintf("%-*s\n", HeaderSize-1, line)), nil
}

func decodeHeader(b []byte) (Metadata, error) {
	var (
		m   Metadata
		tag string
	)
	if _, err := fmt.Sscanf(strings.TrimSpace(string(b)), "%s %d %d %d %g", &tag, &m.Width, &m.Height, &m.Frames, &m.SamplingFrequency); err != nil {
		return Metadata{}, fmt.Errorf("invalid stack header: %w", err)
	}
	if tag != magic {
		return Metadata{}, fmt.Errorf("not a raw stack (tag %q)", tag)
	}
	if m.Width <= 0 || m.Height <= 0 || m.Frames < 0 {
		return Metadata{}, fmt.Errorf("invalid stack geometry %dx%d with %d frames", m.Width, m.Height, m.Frames)
	}
	return m, nil
}

// Reader reads frame ranges from stack files. Files are opened per call
// and closed before returning.
type Reader struct{}

// NewReader creates a Reader.
func NewReader() *Reader {
	return &Reader{}
}

// ReadMetadata reads the header of path.
func (r *Reader) ReadMetadata(path string) (Metadata, error) {
	file, err := os.Open(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to open imaging file: %w", err)
	}
	defer file.Close()

	b := make([]byte, HeaderSize)
	if _, err := io.ReadFull(file, b); err != nil {
		return Metadata{}, fmt.Errorf("failed to read imaging header %s: %w", path, err)
	}
	return decodeHeader(b)
}

// ReadFrames returns frames first..last inclusive.
func (r *Reader) ReadFrames(path string, first, last int) ([]model.Frame, error) {
	meta, err := r.ReadMetadata(path)
	if err != nil {
		return nil, err
	}
	if first < 0 || last < first || last >= meta.Frames {
		return nil, fmt.Errorf("frame range [%d, %d] outside stack of %d frames", first, last, meta.Frames)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open imaging file: %w", err)
	}
	defer file.Close()

	frameBytes := meta.FrameBytes()
	offset := int64(HeaderSize) + int64(first)*int64(frameBytes)
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to frame %d: %w", first, err)
	}

	util.LogDebug(fmt.Sprintf("Reading frames [%d, %d] of %s", first, last, path))

	br := bufio.NewReader(file)
	buf := make([]byte, frameBytes)
	frames := make([]model.Frame, 0, last-first+1)
	for i := first; i <= last; i++ {
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, fmt.Errorf("failed to read frame %d of %s: %w", i, path, err)
		}
		frame := make(model.Frame, meta.Width*meta.Height)
		for p := range frame {
			frame[p] = binary.LittleEndian.Uint16(buf[2*p:])
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

// WriteFile writes frames as a stack. Every frame must match the shape.
func WriteFile(path string, shape model.FrameShape, rate float64, frames []model.Frame) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create imaging file: %w", err)
	}

	err = Encode(file, shape, rate, frames)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	return err
}

// Encode writes a complete stack to w.
func Encode(w io.Writer, shape model.FrameShape, rate float64, frames []model.Frame) error {
	meta := Metadata{Width: shape.Width, Height: shape.Height, Frames: len(frames), SamplingFrequency: rate}
	header, err := meta.encodeHeader()
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	if err := writeFrames(bw, header, meta, frames); err != nil {
		return err
	}
	return bw.Flush()
}

func writeFrames(w io.Writer, header []byte, meta Metadata, frames []model.Frame) error {
	if _, err := w.Write(header); err != nil {
		return err
	}
	pixels := meta.Width * meta.Height
	buf := make([]byte, meta.FrameBytes())
	for i, frame := range frames {
		if len(frame) != pixels {
			return fmt.Errorf("frame %d has %d pixels, expected %d", i, len(frame), pixels)
		}
		for p, v := range frame {
			binary.LittleEndian.PutUint16(buf[2*p:], v)
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}
