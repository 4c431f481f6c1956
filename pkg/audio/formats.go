// Package audio provides the PCM encoding pipeline shared by capture and upload paths.
package audio

import "time"

// Format constants for the streaming wire format.
const (
	// Streaming output.
	TargetSampleRate = 16_000 // Hz
	TargetChannels   = 1
	BytesPerSample   = 2 // 16-bit PCM

	// DefaultGain is applied to every frame before clipping.
	DefaultGain = 5.0

	// PassThroughTolerance is the rate difference under which resampling is skipped.
	PassThroughTolerance = 100 // Hz

	// Offline upload pacing. 3200 bytes is 100 ms of 16 kHz mono PCM16.
	UploadChunkBytes = 3200
	UploadInterval   = 100 * time.Millisecond
)

// Frame is one block of captured samples in [-1, 1] at its native rate.
type Frame struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// PCMChunk is 16 kHz mono signed 16-bit little-endian audio ready for the wire.
type PCMChunk []byte

// Duration returns the playback length of the chunk at TargetSampleRate.
func (c PCMChunk) Duration() time.Duration {
	samples := len(c) / BytesPerSample

	return time.Duration(samples) * time.Second / TargetSampleRate
}
