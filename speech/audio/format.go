// Package audio owns the single hardware output resource and schedules
// decoded PCM buffers on it: exactly one source is ever live, progress is
// reported on a redraw-rate loop bound to that source, and playback rate is
// applied on a discrete ladder.
package audio

import "time"

// PCM format produced by the synthesis service and consumed by the output
// device: 24kHz 16-bit signed little-endian mono.
const (
	// SampleRate is the audio sample rate in Hz.
	SampleRate = 24000
	// Channels is the number of audio channels (1 = mono).
	Channels = 1
	// BitDepth is the bit depth per sample.
	BitDepth = 16
	// BytesPerSample is the number of bytes per sample frame.
	BytesPerSample = BitDepth / 8 * Channels
	// BytesPerSecond is the PCM byte rate.
	BytesPerSecond = SampleRate * BytesPerSample
)

// BufferDuration returns the play time of a PCM buffer of n bytes.
func BufferDuration(n int) time.Duration {
	samples := n / BytesPerSample
	return time.Duration(samples) * time.Second / SampleRate
}

// sampleIndex converts an offset into a sample index, clamped to [0, total].
func sampleIndex(offset time.Duration, total int) int {
	if offset < 0 {
		return 0
	}
	idx := int(offset * SampleRate / time.Second)
	if idx > total {
		idx = total
	}
	return idx
}
