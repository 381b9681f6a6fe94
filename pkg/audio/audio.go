package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// BytesPerSample is the width of one signed 16-bit PCM sample.
const BytesPerSample = 2

// PCM16ToFloat32 decodes little-endian signed 16-bit PCM into normalized
// float32 samples. A trailing odd byte is dropped.
func PCM16ToFloat32(data []byte) []float32 {
	n := len(data) / BytesPerSample
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(data[i*BytesPerSample:]))
		samples[i] = float32(s) / 32768.0
	}
	return samples
}

// Float32ToPCM16 encodes normalized float32 samples as little-endian signed
// 16-bit PCM, clamping out-of-range values.
func Float32ToPCM16(samples []float32) []byte {
	data := make([]byte, len(samples)*BytesPerSample)
	for i, v := range samples {
		scaled := v * 32768.0
		if scaled > 32767 {
			scaled = 32767
		} else if scaled < -32768 {
			scaled = -32768
		}
		binary.LittleEndian.PutUint16(data[i*BytesPerSample:], uint16(int16(scaled)))
	}
	return data
}

// ResampleFloat32 converts mono samples between sample rates with linear
// interpolation. Good enough for speech; no anti-aliasing filter.
func ResampleFloat32(samples []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate || len(samples) == 0 || fromRate <= 0 || toRate <= 0 {
		return samples
	}

	outLen := len(samples) * toRate / fromRate
	if outLen == 0 {
		outLen = 1
	}

	step := float64(fromRate) / float64(toRate)
	out := make([]float32, outLen)
	for i := range out {
		srcPos := float64(i) * step
		srcIdx := int(srcPos)
		if srcIdx+1 < len(samples) {
			frac := float32(srcPos - float64(srcIdx))
			out[i] = samples[srcIdx]*(1-frac) + samples[srcIdx+1]*frac
		} else {
			out[i] = samples[len(samples)-1]
		}
	}
	return out
}

// SplitFloat32 cuts samples into chunks of at most size samples. The last
// chunk keeps the remainder, so every input sample lands in exactly one
// chunk.
func SplitFloat32(samples []float32, size int) [][]float32 {
	if len(samples) == 0 {
		return nil
	}
	if size <= 0 {
		return [][]float32{samples}
	}

	n := (len(samples) + size - 1) / size
	chunks := make([][]float32, 0, n)
	for start := 0; start < len(samples); start += size {
		end := start + size
		if end > len(samples) {
			end = len(samples)
		}
		chunks = append(chunks, samples[start:end])
	}
	return chunks
}

// PCM16Duration reports the play time of a signed 16-bit mono PCM buffer.
func PCM16Duration(byteLen, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := byteLen / BytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// WAVInfo describes the PCM stream inside a RIFF/WAVE container.
type WAVInfo struct {
	Channels    int
	SampleWidth int // bytes per sample
	SampleRate  int
	Frames      int
}

type wavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

// IsWAV reports whether data starts with a RIFF/WAVE signature.
func IsWAV(data []byte) bool {
	if len(data) < 44 {
		return false
	}
	return string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// DecodeWAV parses a canonical 44-byte WAV header and returns the stream
// info plus the raw PCM payload.
func DecodeWAV(data []byte) (WAVInfo, []byte, error) {
	if !IsWAV(data) {
		return WAVInfo{}, nil, fmt.Errorf("not a WAV container")
	}

	reader := bytes.NewReader(data)
	var header wavHeader
	if err := binary.Read(reader, binary.LittleEndian, &header); err != nil {
		return WAVInfo{}, nil, fmt.Errorf("read WAV header: %w", err)
	}

	info := WAVInfo{
		Channels:    int(header.NumChannels),
		SampleWidth: int(header.BitsPerSample / 8),
		SampleRate:  int(header.SampleRate),
	}
	if info.Channels <= 0 || info.SampleWidth <= 0 {
		return WAVInfo{}, nil, fmt.Errorf("invalid WAV header: channels=%d width=%d",
			info.Channels, info.SampleWidth)
	}
	info.Frames = int(header.Subchunk2Size) / (info.Channels * info.SampleWidth)

	pcm := make([]byte, header.Subchunk2Size)
	if _, err := io.ReadFull(reader, pcm); err != nil {
		return WAVInfo{}, nil, fmt.Errorf("read WAV data: %w", err)
	}
	return info, pcm, nil
}
