package timebase

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/penwyp/go-photometry-sync/internal/core/errs"
	"github.com/penwyp/go-photometry-sync/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pulseTrain builds a TTL channel whose rising edges land on edgeTimes.
func pulseTrain(name string, sampleRate, start float64, edgeTimes []float64, width int, total int) model.RawChannelSeries {
	values := make([]float64, total)
	for _, e := range edgeTimes {
		idx := int((e-start)*sampleRate + 0.5)
		for j := idx; j < idx+width && j < total; j++ {
			values[j] = 5
		}
	}
	return model.RawChannelSeries{Name: name, Values: values, SampleRate: sampleRate, StartTime: start}
}

func TestExtractFrameTimesScenarioA(t *testing.T) {
	ttl := pulseTrain("ttlIn1", 1000, -0.01, []float64{0, 0.05, 0.10, 0.15}, 5, 200)

	seq, err := ExtractFrameTimes([]model.RawChannelSeries{ttl}, "ttlIn1", DefaultOptions().WithExpectedRate(20))

	require.NoError(t, err)
	require.Len(t, seq.Timestamps, 4)
	for i, expected := range []float64{0, 0.05, 0.10, 0.15} {
		assert.InDelta(t, expected, seq.Timestamps[i], 1e-9)
	}
	assert.Equal(t, 20.0, seq.Rate)
	assert.False(t, seq.RateInferred)
	assert.Empty(t, seq.Outliers)
}

func TestExtractFrameTimesScenarioB(t *testing.T) {
	ttl := pulseTrain("ttlIn1", 1000, -0.01, []float64{0, 0.05, 0.10, 0.15}, 5, 200)

	_, err := ExtractFrameTimes([]model.RawChannelSeries{ttl}, "ttlIn1", DefaultOptions().WithExpectedRate(18))

	require.ErrorIs(t, err, errs.ErrTimebaseMismatch)
	var mismatch *MismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, 18.0, mismatch.Expected)
	assert.InDelta(t, 20.0, mismatch.Measured, 1e-6)
}

func TestExtractFrameTimesInfersRate(t *testing.T) {
	var edges []float64
	for i := 0; i < 50; i++ {
		edges = append(edges, 1+float64(i)/18)
	}
	ttl := pulseTrain("ttlIn2", 2000, 0, edges, 10, 2000*5)

	seq, err := ExtractFrameTimes([]model.RawChannelSeries{ttl}, "ttlIn2", DefaultOptions())

	require.NoError(t, err)
	assert.Len(t, seq.Timestamps, 50)
	assert.True(t, seq.RateInferred)
	assert.InDelta(t, 18.0, seq.Rate, 0.1)
}

func TestExtractFrameTimesNoPulses(t *testing.T) {
	ttl := model.RawChannelSeries{Name: "ttlIn1", Values: make([]float64, 1000), SampleRate: 2000}

	_, err := ExtractFrameTimes([]model.RawChannelSeries{ttl}, "ttlIn1", DefaultOptions().WithExpectedRate(18))

	assert.ErrorIs(t, err, errs.ErrNoSyncPulsesFound)
}

func TestExtractFrameTimesSinglePulse(t *testing.T) {
	ttl := pulseTrain("ttlIn1", 1000, 0, []float64{0.2}, 5, 1000)

	seq, err := ExtractFrameTimes([]model.RawChannelSeries{ttl}, "ttlIn1", DefaultOptions().WithExpectedRate(18))
	require.NoError(t, err)
	assert.Len(t, seq.Timestamps, 1)
	assert.Equal(t, 18.0, seq.Rate)

	_, err = ExtractFrameTimes([]model.RawChannelSeries{ttl}, "ttlIn1", DefaultOptions())
	assert.ErrorIs(t, err, errs.ErrNoSyncPulsesFound)
}

func TestExtractFrameTimesMissingChannel(t *testing.T) {
	ttl := pulseTrain("ttlIn1", 1000, 0, []float64{0.1, 0.2}, 5, 1000)

	_, err := ExtractFrameTimes([]model.RawChannelSeries{ttl}, "ttlIn3", DefaultOptions())

	assert.ErrorIs(t, err, errs.ErrChannelNotFound)
}

func TestExtractFrameTimesFlagsOutliers(t *testing.T) {
	// Regular 20 Hz train with one late pulse.
	edges := []float64{0.1, 0.15, 0.20, 0.25, 0.33, 0.35, 0.40}
	ttl := pulseTrain("ttlIn1", 1000, 0, edges, 3, 1000)

	seq, err := ExtractFrameTimes([]model.RawChannelSeries{ttl}, "ttlIn1", DefaultOptions().WithExpectedRate(20))

	require.NoError(t, err)
	assert.Len(t, seq.Timestamps, len(edges), "outliers are flagged, not dropped")
	assert.Equal(t, []int{4, 5}, seq.Outliers)
}

func TestExtractFrameTimesStrictlyIncreasing(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 25; trial++ {
		values := make([]float64, 5000)
		expected := 0
		high := false
		for i := 1; i < len(values); i++ {
			if rng.Intn(20) == 0 {
				high = !high
				if high {
					expected++
				}
			}
			if high {
				values[i] = 1
			}
		}
		ttl := model.RawChannelSeries{Name: "ttl", Values: values, SampleRate: 2000}

		seq, err := ExtractFrameTimes([]model.RawChannelSeries{ttl}, "ttl", DefaultOptions())
		if expected < 2 {
			assert.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.Len(t, seq.Timestamps, expected)
		for i := 1; i < len(seq.Timestamps); i++ {
			assert.Greater(t, seq.Timestamps[i], seq.Timestamps[i-1])
		}
	}
}

func TestRisingEdges(t *testing.T) {
	values := []float64{1, 1, 0, 0.5, 0.7, 0, 0.49, 0.2, 3}

	assert.Equal(t, []int{3, 8}, RisingEdges(values, 0.5))
	assert.Empty(t, RisingEdges(nil, 0.5))
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 0.0, Median(nil))
	assert.Equal(t, 2.0, Median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, Median([]float64{4, 1, 3, 2}))

	values := []float64{3, 1, 2}
	Median(values)
	assert.Equal(t, []float64{3, 1, 2}, values, "input must not be reordered")
}

func TestSampleAt(t *testing.T) {
	s := model.RawChannelSeries{Name: "wheel", Values: []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, SampleRate: 10, StartTime: 1}

	out, err := SampleAt(s, []float64{0.5, 1.0, 1.25, 1.3, 1.99, 5})

	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 2, 3, 9, 9}, out)

	_, err = SampleAt(model.RawChannelSeries{Name: "empty", SampleRate: 10}, []float64{1})
	assert.Error(t, err)
}

func TestOutliers(t *testing.T) {
	assert.Equal(t, []int{3}, Outliers([]float64{0, 1, 2, 4, 5, 6}, 0.5))
	assert.Empty(t, Outliers([]float64{0, 1, 2, 3}, 0.5))
	assert.Empty(t, Outliers([]float64{0}, 0.5))
}
