package recognizer

import (
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"
)

// Default phrase cycle for the local engine. One fragment per voiced chunk
// keeps partial-transcript behavior observable without a real model.
var defaultLocalPhrases = []string{"你好", "，", "请继续说"}

// defaultMinEnergy gates near-silent chunks so they yield no text.
const defaultMinEnergy = 0.01

// LocalConfig configures the built-in offline recognizer.
type LocalConfig struct {
	ChunkSecs float64  `json:"chunkSecs"` // chunk duration, 0.6 s default
	Phrases   []string `json:"phrases"`   // transcript fragments, cycled per voiced chunk
	MinEnergy float32  `json:"minEnergy"` // RMS floor below which a chunk is silence
}

func (c *LocalConfig) GetVendor() Vendor {
	return VendorLocal
}

// LocalService is a deterministic offline engine. Each voiced chunk emits
// the next configured phrase fragment; silent chunks emit nothing. It exists
// so the full conversation loop runs with no cloud account.
type LocalService struct {
	mu        sync.Mutex
	chunkSecs float64
	phrases   []string
	minEnergy float32
	closed    bool
	logger    *zap.Logger
}

func NewLocalService(config *LocalConfig) (*LocalService, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	svc := &LocalService{
		chunkSecs: config.ChunkSecs,
		phrases:   config.Phrases,
		minEnergy: config.MinEnergy,
		logger:    zap.L(),
	}
	if svc.chunkSecs <= 0 {
		svc.chunkSecs = DefaultChunkSeconds
	}
	if len(svc.phrases) == 0 {
		svc.phrases = defaultLocalPhrases
	}
	if svc.minEnergy <= 0 {
		svc.minEnergy = defaultMinEnergy
	}
	return svc, nil
}

// cacheKeyIndex tracks the phrase cursor inside the utterance cache.
const cacheKeyIndex = "local.phrase_index"

func (s *LocalService) RecognizeStream(chunk []float32, cache *Cache, isFinal bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", fmt.Errorf("local recognizer closed")
	}
	if cache == nil {
		return "", fmt.Errorf("cache cannot be nil")
	}
	if len(chunk) == 0 || rms(chunk) < s.minEnergy {
		return "", nil
	}

	index := 0
	if v, ok := cache.Get(cacheKeyIndex); ok {
		index, _ = v.(int)
	}
	text := s.phrases[index%len(s.phrases)]
	cache.Set(cacheKeyIndex, index+1)

	s.logger.Debug("local recognizer produced fragment",
		zap.String("text", text),
		zap.Int("chunkSamples", len(chunk)),
		zap.Bool("isFinal", isFinal))
	return text, nil
}

func (s *LocalService) ChunkSeconds() float64 {
	return s.chunkSecs
}

func (s *LocalService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func rms(samples []float32) float32 {
	var sum float64
	for _, v := range samples {
		sum += float64(v) * float64(v)
	}
	return float32(math.Sqrt(sum / float64(len(samples))))
}
