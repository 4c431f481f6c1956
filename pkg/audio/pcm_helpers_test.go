package audio_test

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Raikerian/meetingmind-streamer/pkg/audio"
)

func toLE(samples []int16) audio.PCMChunk {
	out := make(audio.PCMChunk, len(samples)*audio.BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*audio.BytesPerSample:], uint16(s))
	}

	return out
}

func TestLEToPCMInt16(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 1234}
	b := toLE(samples)

	assert.Equal(t, audio.PCMChunk{0x00, 0x00, 0x01, 0x00, 0xff, 0xff, 0xff, 0x7f, 0x00, 0x80, 0xd2, 0x04}, b)
	assert.Equal(t, samples, audio.LEToPCMInt16(b))
	assert.Len(t, audio.LEToPCMInt16(b[:3]), 1, "odd trailing byte is ignored")
}

func TestIntToFloat32(t *testing.T) {
	out := audio.IntToFloat32([]int{0, 16384, -32768}, 16)
	assert.Equal(t, []float32{0, 0.5, -1}, out)

	out = audio.IntToFloat32([]int{64}, 8)
	assert.Equal(t, []float32{0.5}, out)
}

func TestDownmixInterleaved(t *testing.T) {
	assert.Equal(t, []float32{0.5, 0}, audio.DownmixInterleaved([]float32{1, 0, 0.5, -0.5}, 2))

	mono := []float32{0.1, 0.2}
	assert.Equal(t, mono, audio.DownmixInterleaved(mono, 1))
}

func TestChunks(t *testing.T) {
	pcm := make([]byte, 10000)

	chunks := audio.Chunks(pcm, audio.UploadChunkBytes)
	sizes := make([]int, 0, len(chunks))
	for _, c := range chunks {
		sizes = append(sizes, len(c))
	}

	assert.Equal(t, []int{3200, 3200, 3200, 400}, sizes)
	assert.Nil(t, audio.Chunks(nil, 3200))
	assert.Nil(t, audio.Chunks(pcm, 0))
}

func TestRecorder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.wav")

	rec, err := audio.NewRecorder(path)
	require.NoError(t, err)
	assert.Equal(t, path, rec.Path())

	require.NoError(t, rec.Write(toLE([]int16{1, -2, 3})))
	require.NoError(t, rec.Write(toLE([]int16{4})))
	assert.Equal(t, 4, rec.Samples())

	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close(), "second close is a no-op")
	assert.ErrorIs(t, rec.Write(audio.PCMChunk{0, 0}), audio.ErrRecorderClosed)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)

	assert.Equal(t, audio.TargetSampleRate, buf.Format.SampleRate)
	assert.Equal(t, 1, buf.Format.NumChannels)
	assert.Equal(t, []int{1, -2, 3, 4}, buf.Data)
}
