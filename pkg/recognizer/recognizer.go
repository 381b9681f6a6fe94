package recognizer

import (
	"sync"

	"github.com/code-100-precent/EchoLink/pkg/audio"
)

// TargetSampleRate is the sample rate every recognizer consumes.
const TargetSampleRate = 16000

// DefaultChunkSeconds matches the streaming model's 600 ms window.
const DefaultChunkSeconds = 0.6

// StreamingService is the incremental speech-recognition contract. One
// utterance is a sequence of RecognizeStream calls sharing a Cache; the
// closing call carries isFinal=true.
type StreamingService interface {
	// RecognizeStream feeds one chunk at TargetSampleRate and returns the
	// text increment it produced, which may be empty.
	RecognizeStream(chunk []float32, cache *Cache, isFinal bool) (string, error)
	// ChunkSeconds reports the chunk duration the engine wants.
	ChunkSeconds() float64
	Close() error
}

// Cache holds recognizer-private state across the chunks of one utterance.
// The voice core passes it through untouched and resets it when a segment
// finalizes.
type Cache struct {
	mu     sync.Mutex
	values map[string]interface{}
}

func NewCache() *Cache {
	return &Cache{values: make(map[string]interface{})}
}

func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok
}

func (c *Cache) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

// Reset drops all state, starting a fresh utterance.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = make(map[string]interface{})
}

func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.values)
}

// Chunks resamples audio from srcRate to TargetSampleRate and splits it into
// recognizer-sized windows of chunkSecs seconds. The remainder stays in the
// last chunk, so short inputs still produce one chunk.
func Chunks(samples []float32, srcRate int, chunkSecs float64) [][]float32 {
	if chunkSecs <= 0 {
		chunkSecs = DefaultChunkSeconds
	}
	resampled := audio.ResampleFloat32(samples, srcRate, TargetSampleRate)
	stride := int(chunkSecs * TargetSampleRate)
	return audio.SplitFloat32(resampled, stride)
}
