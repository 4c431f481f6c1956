package audio

import (
	"encoding/binary"
	"math"
)

// Encoder converts captured frames into PCM chunks with a fixed gain and target rate.
type Encoder struct {
	TargetRate int
	Gain       float64
}

// NewEncoder returns an Encoder using TargetSampleRate and the given gain.
// A non-positive gain falls back to DefaultGain.
func NewEncoder(gain float64) Encoder {
	if gain <= 0 {
		gain = DefaultGain
	}

	return Encoder{TargetRate: TargetSampleRate, Gain: gain}
}

// Encode converts one frame. Frames without a rate are treated as already at the target rate.
func (e Encoder) Encode(frame Frame) PCMChunk {
	rate := frame.SampleRate
	if rate <= 0 {
		rate = e.TargetRate
	}

	return Encode(frame.Samples, rate, e.TargetRate, e.Gain)
}

// OutputLength reports how many samples Encode produces for n input samples.
func OutputLength(n, inputRate, targetRate int) int {
	if n <= 0 || inputRate <= 0 || targetRate <= 0 {
		return 0
	}
	if isPassThrough(inputRate, targetRate) {
		return n
	}

	return int(int64(n) * int64(targetRate) / int64(inputRate))
}

// Encode resamples samples from inputRate to targetRate by linear interpolation,
// applies gain, hard-clips to [-1, 1] and packs the result as s16le.
// Rates within PassThroughTolerance of each other skip resampling.
// The returned slice is the only allocation.
func Encode(samples []float32, inputRate, targetRate int, gain float64) PCMChunk {
	n := len(samples)
	outLen := OutputLength(n, inputRate, targetRate)
	out := make(PCMChunk, outLen*BytesPerSample)
	if outLen == 0 {
		return out
	}

	if isPassThrough(inputRate, targetRate) {
		for i, s := range samples {
			putSample(out, i, float64(s), gain)
		}

		return out
	}

	ratio := float64(inputRate) / float64(targetRate)
	last := n - 1
	for i := range outLen {
		offset := float64(i) * ratio
		lo := int(offset)
		hi := lo + 1
		if hi > last {
			hi = last
		}
		frac := offset - float64(lo)
		a := float64(samples[lo])
		b := float64(samples[hi])
		putSample(out, i, a+(b-a)*frac, gain)
	}

	return out
}

// Level returns the RMS of samples, used as an input level signal.
func Level(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}

	return math.Sqrt(sum / float64(len(samples)))
}

func isPassThrough(inputRate, targetRate int) bool {
	diff := inputRate - targetRate
	if diff < 0 {
		diff = -diff
	}

	return diff < PassThroughTolerance
}

func putSample(dst PCMChunk, i int, v, gain float64) {
	binary.LittleEndian.PutUint16(dst[i*BytesPerSample:], uint16(toInt16(v*gain)))
}

// toInt16 clips to [-1, 1] and scales asymmetrically: negatives by 32768, the rest by 32767.
// Conversion truncates toward zero.
func toInt16(v float64) int16 {
	switch {
	case math.IsNaN(v):
		return 0
	case v > 1:
		v = 1
	case v < -1:
		v = -1
	}

	if v < 0 {
		return int16(v * 32768)
	}

	return int16(v * 32767)
}
