package recognizer

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func voicedChunk(samples int) []float32 {
	chunk := make([]float32, samples)
	for i := range chunk {
		if i%2 == 0 {
			chunk[i] = 0.5
		} else {
			chunk[i] = -0.5
		}
	}
	return chunk
}

func TestChunks_ResamplesAndSplits(t *testing.T) {
	// 1.5 s at 48 kHz becomes 24000 samples at 16 kHz: two full 600 ms
	// chunks plus a 300 ms remainder.
	in := make([]float32, 72000)
	chunks := Chunks(in, 48000, 0.6)

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 9600)
	assert.Len(t, chunks[1], 9600)
	assert.Len(t, chunks[2], 4800)
}

func TestChunks_ExactMultipleHasNoEmptyTail(t *testing.T) {
	in := make([]float32, 19200) // exactly two chunks at 16 kHz
	chunks := Chunks(in, TargetSampleRate, 0.6)

	require.Len(t, chunks, 2)
	for _, c := range chunks {
		assert.Len(t, c, 9600)
	}
}

func TestChunks_ShortInputKeptWhole(t *testing.T) {
	chunks := Chunks(make([]float32, 100), TargetSampleRate, 0.6)
	require.Len(t, chunks, 1)
	assert.Len(t, chunks[0], 100)

	assert.Nil(t, Chunks(nil, TargetSampleRate, 0.6))
}

func TestCache_Lifecycle(t *testing.T) {
	cache := NewCache()
	assert.Zero(t, cache.Size())

	cache.Set("feats", []float32{0.1})
	cache.Set("offset", 3)
	assert.Equal(t, 2, cache.Size())

	v, ok := cache.Get("offset")
	require.True(t, ok)
	assert.Equal(t, 3, v)

	cache.Reset()
	assert.Zero(t, cache.Size())
	_, ok = cache.Get("feats")
	assert.False(t, ok)
}

func TestLocalService_CyclesPhrasesPerVoicedChunk(t *testing.T) {
	svc, err := NewLocalService(&LocalConfig{Phrases: []string{"你好", "世界"}})
	require.NoError(t, err)
	defer svc.Close()

	cache := NewCache()
	chunk := voicedChunk(9600)

	text, err := svc.RecognizeStream(chunk, cache, false)
	require.NoError(t, err)
	assert.Equal(t, "你好", text)

	text, err = svc.RecognizeStream(chunk, cache, false)
	require.NoError(t, err)
	assert.Equal(t, "世界", text)

	text, err = svc.RecognizeStream(chunk, cache, true)
	require.NoError(t, err)
	assert.Equal(t, "你好", text)

	// A fresh cache restarts the cycle, like a new utterance.
	cache.Reset()
	text, err = svc.RecognizeStream(chunk, cache, false)
	require.NoError(t, err)
	assert.Equal(t, "你好", text)
}

func TestLocalService_SilenceYieldsNoText(t *testing.T) {
	svc, err := NewLocalService(&LocalConfig{})
	require.NoError(t, err)
	defer svc.Close()

	cache := NewCache()

	text, err := svc.RecognizeStream(make([]float32, 9600), cache, false)
	require.NoError(t, err)
	assert.Empty(t, text)

	text, err = svc.RecognizeStream(nil, cache, true)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestLocalService_Guards(t *testing.T) {
	_, err := NewLocalService(nil)
	assert.Error(t, err)

	svc, err := NewLocalService(&LocalConfig{})
	require.NoError(t, err)
	assert.InDelta(t, DefaultChunkSeconds, svc.ChunkSeconds(), 1e-9)

	_, err = svc.RecognizeStream(voicedChunk(100), nil, false)
	assert.Error(t, err)

	require.NoError(t, svc.Close())
	_, err = svc.RecognizeStream(voicedChunk(100), NewCache(), false)
	assert.Error(t, err)
}

func TestFactory_CreateLocal(t *testing.T) {
	factory := NewFactory()

	assert.True(t, factory.IsSupported(VendorLocal))
	assert.Contains(t, factory.SupportedVendors(), VendorLocal)

	svc, err := factory.Create(&LocalConfig{})
	require.NoError(t, err)
	require.NotNil(t, svc)
	defer svc.Close()

	_, err = factory.Create(nil)
	assert.Error(t, err)
}

type fakeVendorConfig struct{}

func (fakeVendorConfig) GetVendor() Vendor { return Vendor("cloudx") }

func TestFactory_RegisterCustomVendor(t *testing.T) {
	factory := NewFactory()

	_, err := factory.Create(fakeVendorConfig{})
	assert.Error(t, err)

	factory.Register(Vendor("cloudx"), func(Config) (StreamingService, error) {
		return nil, fmt.Errorf("not configured")
	})
	assert.True(t, factory.IsSupported(Vendor("cloudx")))

	_, err = factory.Create(fakeVendorConfig{})
	assert.EqualError(t, err, "not configured")
}

func TestGetGlobalFactory_Singleton(t *testing.T) {
	assert.Same(t, GetGlobalFactory(), GetGlobalFactory())
}
