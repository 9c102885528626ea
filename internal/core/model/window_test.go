package model

import (
	"testing"

	"github.com/penwyp/go-photometry-sync/internal/core/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInclusionWindow(t *testing.T) {
	tests := []struct {
		name    string
		first   int
		last    int
		wantErr bool
	}{
		{name: "single frame", first: 0, last: 0},
		{name: "range", first: 2, last: 4},
		{name: "negative first", first: -1, last: 4, wantErr: true},
		{name: "inverted", first: 5, last: 4, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NewInclusionWindow(tt.first, tt.last)
			if tt.wantErr {
				require.ErrorIs(t, err, errs.ErrInvalidWindow)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.first, w.First)
			assert.Equal(t, tt.last, w.Last)
			assert.Equal(t, tt.last-tt.first+1, w.Len())
		})
	}
}

func TestFromOneBased(t *testing.T) {
	w, err := FromOneBased([]float64{3, 5})
	require.NoError(t, err)
	assert.Equal(t, InclusionWindow{First: 2, Last: 4}, w)

	_, err = FromOneBased([]float64{0, 5})
	assert.ErrorIs(t, err, errs.ErrInvalidWindow, "index 0 is not a valid 1-based index")

	_, err = FromOneBased([]float64{1})
	assert.ErrorIs(t, err, errs.ErrInvalidWindow)

	_, err = FromOneBased([]float64{1.5, 4})
	assert.ErrorIs(t, err, errs.ErrInvalidWindow)
}

func TestInclusionWindowTruncate(t *testing.T) {
	w := InclusionWindow{First: 10, Last: 99}

	assert.Equal(t, InclusionWindow{First: 10, Last: 19}, w.Truncate(10))
	assert.Equal(t, w, w.Truncate(0), "zero disables truncation")
	assert.Equal(t, w, w.Truncate(500), "longer limit keeps the window")
}

func TestFullWindow(t *testing.T) {
	w, err := FullWindow(5)
	require.NoError(t, err)
	assert.Equal(t, InclusionWindow{First: 0, Last: 4}, w)

	_, err = FullWindow(0)
	assert.ErrorIs(t, err, errs.ErrInvalidWindow)
}

func TestWavelengthChannelSeriesNames(t *testing.T) {
	tests := []struct {
		wavelength int
		response   string
		photon     string
	}{
		{470, "FiberPhotometryResponseSeriesGreen", "OnePhotonSeriesGreen"},
		{405, "FiberPhotometryResponseSeriesGreenIsosbestic", "OnePhotonSeriesGreenIsosbestic"},
		{415, "FiberPhotometryResponseSeriesGreenIsosbestic", "OnePhotonSeriesGreenIsosbestic"},
		{570, "FiberPhotometryResponseSeriesRed", "OnePhotonSeriesRed"},
		{488, "FiberPhotometryResponseSeries488nm", "OnePhotonSeries488nm"},
	}

	for _, tt := range tests {
		c := WavelengthChannel{WavelengthNM: tt.wavelength, Indicator: "ACh3.0"}
		assert.Equal(t, tt.response, c.ResponseSeriesName())
		assert.Equal(t, tt.photon, c.PhotonSeriesName())
	}

	_, err := WavelengthChannel{WavelengthNM: 488}.SeriesSuffix()
	assert.Error(t, err)
}

func TestRawChannelSeriesTimeAt(t *testing.T) {
	s := RawChannelSeries{Name: "ttlIn1", Values: make([]float64, 2000), SampleRate: 2000, StartTime: 1.5}

	assert.InDelta(t, 1.5, s.TimeAt(0), 1e-12)
	assert.InDelta(t, 2.0, s.TimeAt(1000), 1e-12)
	assert.InDelta(t, 1.0, s.Duration(), 1e-12)

	found, ok := FindSeries([]RawChannelSeries{s}, "ttlIn1")
	assert.True(t, ok)
	assert.Equal(t, s.Name, found.Name)
	_, ok = FindSeries([]RawChannelSeries{s}, "ttlIn2")
	assert.False(t, ok)
}
