package ttl

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/penwyp/go-photometry-sync/internal/core/model"
)

const (
	digitalMin = -32768
	digitalMax = 32767
)

// WriteFile encodes series as an EDF file with one-second data records.
// Every series must have an integer sample rate. Short series are padded
// with their last value up to the end of the final record.
func WriteFile(path string, start time.Time, series []model.RawChannelSeries) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create TTL file: %w", err)
	}
	if err := Encode(file, start, series); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Encode writes series to w in EDF layout.
func Encode(w io.Writer, start time.Time, series []model.RawChannelSeries) error {
	if len(series) == 0 {
		return fmt.Errorf("no series to encode")
	}

	hdr := &Header{
		Version:            "0",
		StartTime:          start,
		HeaderBytes:        fixedHeaderBytes + len(series)*signalHeaderBytes,
		DataRecordDuration: time.Second,
	}
	for _, s := range series {
		if s.SampleRate <= 0 || s.SampleRate != math.Trunc(s.SampleRate) {
			return fmt.Errorf("series %q: sample rate %v is not a positive integer", s.Name, s.SampleRate)
		}
		perRecord := int(s.SampleRate)
		records := (len(s.Values) + perRecord - 1) / perRecord
		if records > hdr.DataRecords {
			hdr.DataRecords = records
		}
		pmin, pmax := physicalRange(s.Values)
		hdr.Signals = append(hdr.Signals, Signal{
			Label:            s.Name,
			PhysicalMin:      pmin,
			PhysicalMax:      pmax,
			DigitalMin:       digitalMin,
			DigitalMax:       digitalMax,
			SamplesPerRecord: perRecord,
		})
	}

	bw := bufio.NewWriter(w)
	if err := writeHeader(bw, hdr); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}

	buf := make([]byte, 2)
	for rec := 0; rec < hdr.DataRecords; rec++ {
		for i, sig := range hdr.Signals {
			values := series[i].Values
			for j := 0; j < sig.SamplesPerRecord; j++ {
				idx := rec*sig.SamplesPerRecord + j
				v := 0.0
				if len(values) > 0 {
					v = values[min(idx, len(values)-1)]
				}
				binary.LittleEndian.PutUint16(buf, uint16(physicalToDigital(v, sig)))
				if _, err := bw.Write(buf); err != nil {
					return err
				}
			}
		}
	}
	return bw.Flush()
}

func writeHeader(w *bufio.Writer, hdr *Header) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%-8s", hdr.Version)
	fmt.Fprintf(&b, "%-80s", hdr.PatientID)
	fmt.Fprintf(&b, "%-80s", hdr.RecordingID)
	fmt.Fprintf(&b, "%-8s", hdr.StartTime.Format("02.01.06"))
	fmt.Fprintf(&b, "%-8s", hdr.StartTime.Format("15.04.05"))
	fmt.Fprintf(&b, "%-8d", hdr.HeaderBytes)
	fmt.Fprintf(&b, "%-44s", "")
	fmt.Fprintf(&b, "%-8d", hdr.DataRecords)
	fmt.Fprintf(&b, "%-8d", int(math.Ceil(hdr.DataRecordDuration.Seconds())))
	fmt.Fprintf(&b, "%-4d", len(hdr.Signals))

	for _, s := range hdr.Signals {
		fmt.Fprintf(&b, "%-16s", s.Label)
	}
	for _, s := range hdr.Signals {
		fmt.Fprintf(&b, "%-80s", s.TransducerType)
	}
	for _, s := range hdr.Signals {
		fmt.Fprintf(&b, "%-8s", s.PhysicalDimension)
	}
	for _, s := range hdr.Signals {
		b.WriteString(formatPhysical(s.PhysicalMin))
	}
	for _, s := range hdr.Signals {
		b.WriteString(formatPhysical(s.PhysicalMax))
	}
	for _, s := range hdr.Signals {
		fmt.Fprintf(&b, "%-8d", s.DigitalMin)
	}
	for _, s := range hdr.Signals {
		fmt.Fprintf(&b, "%-8d", s.DigitalMax)
	}
	for _, s := range hdr.Signals {
		fmt.Fprintf(&b, "%-80s", s.Prefiltering)
	}
	for _, s := range hdr.Signals {
		fmt.Fprintf(&b, "%-8d", s.SamplesPerRecord)
	}
	for range hdr.Signals {
		fmt.Fprintf(&b, "%-32s", "")
	}

	_, err := w.WriteString(b.String())
	return err
}

// physicalRange picks calibration bounds that fit in the 8-byte header
// fields. Integral bounds keep the round trip exact for logic levels.
func physicalRange(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 1
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	lo, hi = math.Floor(lo), math.Ceil(hi)
	if hi == lo {
		hi = lo + 1
	}
	return lo, hi
}

func physicalToDigital(v float64, s Signal) int16 {
	if s.PhysicalMax == s.PhysicalMin {
		return 0
	}
	d := (v-s.PhysicalMin)*float64(s.DigitalMax-s.DigitalMin)/(s.PhysicalMax-s.PhysicalMin) + float64(s.DigitalMin)
	d = math.Round(d)
	if d < digitalMin {
		d = digitalMin
	} else if d > digitalMax {
		d = digitalMax
	}
	return int16(d)
}

func formatPhysical(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	if len(s) > 8 {
		s = fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%-8s", s)
}
