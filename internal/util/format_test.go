package util

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		name     string
		input    int
		expected string
	}{
		{name: "zero", input: 0, expected: "0"},
		{name: "hundreds", input: 999, expected: "999"},
		{name: "exactly 1000", input: 1000, expected: "1.0K"},
		{name: "thousands", input: 1500, expected: "1.5K"},
		{name: "exactly 1 million", input: 1000000, expected: "1.0M"},
		{name: "millions", input: 2500000, expected: "2.5M"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatNumber(tt.input))
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		input    time.Duration
		expected string
	}{
		{name: "zero", input: 0, expected: "0ms"},
		{name: "milliseconds", input: 250 * time.Millisecond, expected: "250ms"},
		{name: "seconds", input: 1500 * time.Millisecond, expected: "1.5s"},
		{name: "minutes", input: 5*time.Minute + 7*time.Second, expected: "5m 7s"},
		{name: "hours", input: 90 * time.Minute, expected: "1h 30m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatDuration(tt.input))
		})
	}
}

func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "1.250s", FormatSeconds(1.25))
	assert.Equal(t, "-", FormatSeconds(math.NaN()))
}

func TestFormatRate(t *testing.T) {
	assert.Equal(t, "18.00 Hz", FormatRate(18, false))
	assert.Equal(t, "~19.98 Hz", FormatRate(19.98, true))
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 KiB", FormatBytes(1536))
	assert.Equal(t, "2.0 MiB", FormatBytes(2*1024*1024))
}

func TestPadRight(t *testing.T) {
	assert.Equal(t, "abc  ", PadRight("abc", 5))
	assert.Equal(t, 4, GetDisplayWidth(PadRight("abcdefgh", 4)))
	assert.Equal(t, 6, GetDisplayWidth(PadRight("小鼠", 6)))
}

func TestColorize(t *testing.T) {
	assert.Equal(t, "ok", Colorize("ok", ColorGreen, false))
	assert.Equal(t, ColorGreen+"ok"+ColorReset, Colorize("ok", StatusColor("Success"), true))
	assert.Equal(t, "x", Colorize("x", StatusColor("unknown"), true))
}

func TestCreateProgressBar(t *testing.T) {
	assert.Equal(t, "[█████░░░░░]", CreateProgressBar(50, 12))
	assert.Equal(t, "[]", CreateProgressBar(50, 1))
}
