package audio

import "encoding/binary"

// LEToPCMInt16 converts raw little-endian bytes back to int16 samples.
// A trailing odd byte is ignored.
func LEToPCMInt16(b []byte) []int16 {
	out := make([]int16, len(b)/BytesPerSample)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*BytesPerSample:]))
	}

	return out
}

// IntToFloat32 normalizes integer PCM of the given bit depth into [-1, 1].
func IntToFloat32(samples []int, bitDepth int) []float32 {
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float32(int64(1) << (bitDepth - 1))

	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / scale
	}

	return out
}

// DownmixInterleaved averages interleaved channels into a mono signal.
func DownmixInterleaved(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}

	frames := len(samples) / channels
	out := make([]float32, frames)
	for f := range frames {
		var sum float32
		for c := range channels {
			sum += samples[f*channels+c]
		}
		out[f] = sum / float32(channels)
	}

	return out
}

// Chunks splits pcm into consecutive slices of at most size bytes without copying.
func Chunks(pcm []byte, size int) [][]byte {
	if size <= 0 || len(pcm) == 0 {
		return nil
	}

	chunks := make([][]byte, 0, (len(pcm)+size-1)/size)
	for off := 0; off < len(pcm); off += size {
		end := min(off+size, len(pcm))
		chunks = append(chunks, pcm[off:end])
	}

	return chunks
}
