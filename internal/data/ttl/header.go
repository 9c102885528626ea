// Package ttl reads behavioral acquisition recordings (TTL inputs, wheel,
// licks) stored as EDF/EDF+ files, one signal per acquisition channel.
package ttl

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

const (
	fixedHeaderBytes  = 256
	signalHeaderBytes = 256
)

// Header is the EDF file header.
type Header struct {
	Version            string
	PatientID          string
	RecordingID        string
	StartTime          time.Time
	HeaderBytes        int
	DataRecords        int // -1 if unknown
	DataRecordDuration time.Duration
	Signals            []Signal
}

// Signal describes one channel of the recording.
type Signal struct {
	Label             string
	TransducerType    string
	PhysicalDimension string
	PhysicalMin       float64
	PhysicalMax       float64
	DigitalMin        int
	DigitalMax        int
	Prefiltering      string
	SamplesPerRecord  int
}

// SampleRate returns the samples per second of the signal.
func (h *Header) SampleRate(s Signal) float64 {
	secs := h.DataRecordDuration.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(s.SamplesPerRecord) / secs
}

// RecordSize is the byte size of one data record.
func (h *Header) RecordSize() int {
	size := 0
	for _, s := range h.Signals {
		size += s.SamplesPerRecord * 2
	}
	return size
}

// ReadHeader parses the fixed and per-signal header blocks.
func ReadHeader(r io.Reader) (*Header, error) {
	br := bufio.NewReader(r)

	b := make([]byte, fixedHeaderBytes)
	if _, err := io.ReadFull(br, b); err != nil {
		return nil, fmt.Errorf("error reading header: %w", err)
	}

	hdr := &Header{
		Version:     strings.TrimSpace(string(b[0:8])),
		PatientID:   strings.TrimSpace(string(b[8:88])),
		RecordingID: strings.TrimSpace(string(b[88:168])),
	}

	startDate, err := time.Parse("02.01.06", strings.TrimSpace(string(b[168:176])))
	if err != nil {
		return nil, fmt.Errorf("error parsing start date: %w", err)
	}
	startClock, err := time.Parse("15.04.05", strings.TrimSpace(string(b[176:184])))
	if err != nil {
		return nil, fmt.Errorf("error parsing start time: %w", err)
	}
	hdr.StartTime = time.Date(startDate.Year(), startDate.Month(), startDate.Day(),
		startClock.Hour(), startClock.Minute(), startClock.Second(), 0, time.UTC)

	if hdr.HeaderBytes, err = atoiField(b[184:192]); err != nil {
		return nil, fmt.Errorf("error parsing header bytes: %w", err)
	}
	if hdr.DataRecords, err = atoiField(b[236:244]); err != nil {
		return nil, fmt.Errorf("error parsing number of data records: %w", err)
	}
	duration, err := strconv.ParseFloat(strings.TrimSpace(string(b[244:252])), 64)
	if err != nil {
		return nil, fmt.Errorf("error parsing data record duration: %w", err)
	}
	hdr.DataRecordDuration = time.Duration(duration * float64(time.Second))

	signalCount, err := atoiField(b[252:256])
	if err != nil {
		return nil, fmt.Errorf("error parsing signal count: %w", err)
	}
	if signalCount <= 0 {
		return nil, fmt.Errorf("recording declares %d signals", signalCount)
	}
	if want := fixedHeaderBytes + signalCount*signalHeaderBytes; hdr.HeaderBytes != want {
		return nil, fmt.Errorf("header size %d does not match %d signals", hdr.HeaderBytes, signalCount)
	}

	signals := make([]Signal, signalCount)
	fields := []struct {
		width int
		set   func(s *Signal, v string) error
	}{
		{16, func(s *Signal, v string) error { s.Label = v; return nil }},
		{80, func(s *Signal, v string) error { s.TransducerType = v; return nil }},
		{8, func(s *Signal, v string) error { s.PhysicalDimension = v; return nil }},
		{8, func(s *Signal, v string) (err error) { s.PhysicalMin, err = strconv.ParseFloat(v, 64); return }},
		{8, func(s *Signal, v string) (err error) { s.PhysicalMax, err = strconv.ParseFloat(v, 64); return }},
		{8, func(s *Signal, v string) (err error) { s.DigitalMin, err = strconv.Atoi(v); return }},
		{8, func(s *Signal, v string) (err error) { s.DigitalMax, err = strconv.Atoi(v); return }},
		{80, func(s *Signal, v string) error { s.Prefiltering = v; return nil }},
		{8, func(s *Signal, v string) (err error) { s.SamplesPerRecord, err = strconv.Atoi(v); return }},
		{32, func(*Signal, string) error { return nil }},
	}
	for _, field := range fields {
		for i := range signals {
			buf := make([]byte, field.width)
			if _, err := io.ReadFull(br, buf); err != nil {
				return nil, fmt.Errorf("error reading signal headers: %w", err)
			}
			if err := field.set(&signals[i], strings.TrimSpace(string(buf))); err != nil {
				return nil, fmt.Errorf("error parsing header of signal %d: %w", i, err)
			}
		}
	}
	hdr.Signals = signals
	return hdr, nil
}

func atoiField(b []byte) (int, error) {
	return strconv.Atoi(strings.TrimSpace(string(b)))
}

func digitalToPhysical(digital int16, s Signal) float64 {
	if s.DigitalMax == s.DigitalMin {
		return 0
	}
	return s.PhysicalMin + (float64(digital)-float64(s.DigitalMin))*(s.PhysicalMax-s.PhysicalMin)/float64(s.DigitalMax-s.DigitalMin)
}
