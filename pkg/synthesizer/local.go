package synthesizer

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/code-100-precent/EchoLink/pkg/audio"
	"go.uber.org/zap"
)

// LocalConfig configures the built-in tone synthesizer.
type LocalConfig struct {
	SampleRate   int           `json:"sampleRate"`   // output rate, 16000 default
	Speaker      string        `json:"speaker"`      // shifts the voice pitch
	Amplitude    float64       `json:"amplitude"`    // peak level in [0,1]
	RuneDuration time.Duration `json:"runeDuration"` // speech length per rune
	MinDuration  time.Duration `json:"minDuration"`
	MaxDuration  time.Duration `json:"maxDuration"`
}

func (c *LocalConfig) GetProvider() TTSProvider {
	return ProviderLocal
}

// NewLocalConfig returns a config with playable defaults.
func NewLocalConfig() *LocalConfig {
	return &LocalConfig{
		SampleRate:   16000,
		Speaker:      "default",
		Amplitude:    0.3,
		RuneDuration: 60 * time.Millisecond,
		MinDuration:  240 * time.Millisecond,
		MaxDuration:  3 * time.Second,
	}
}

// LocalService renders text as a steady tone whose pitch follows the text
// and speaker, so the full conversation loop runs with no TTS server. The
// output is PCM16 mono, chunked into 20 ms frames.
type LocalService struct {
	mu     sync.Mutex
	config LocalConfig
	closed bool
	logger *zap.Logger
}

func NewLocalService(config *LocalConfig) (*LocalService, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	cfg := *config
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Amplitude <= 0 || cfg.Amplitude > 1 {
		cfg.Amplitude = 0.3
	}
	if cfg.RuneDuration <= 0 {
		cfg.RuneDuration = 60 * time.Millisecond
	}
	if cfg.MinDuration <= 0 {
		cfg.MinDuration = 240 * time.Millisecond
	}
	if cfg.MaxDuration < cfg.MinDuration {
		cfg.MaxDuration = 3 * time.Second
	}

	return &LocalService{config: cfg, logger: zap.L()}, nil
}

func (s *LocalService) Provider() TTSProvider {
	return ProviderLocal
}

func (s *LocalService) Format() StreamFormat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StreamFormat{
		SampleRate:    s.config.SampleRate,
		BitDepth:      16,
		Channels:      1,
		FrameDuration: 20 * time.Millisecond,
	}
}

func (s *LocalService) Synthesize(ctx context.Context, handler SynthesisHandler, text string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("synthesizer is closed")
	}
	cfg := s.config
	s.mu.Unlock()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	pcm := audio.Float32ToPCM16(renderTone(cfg, text))
	frameBytes := s.Format().FrameBytes()

	for offset := 0; offset < len(pcm); offset += frameBytes {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := offset + frameBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		handler.OnMessage(pcm[offset:end])
	}

	s.logger.Debug("local synthesis finished",
		zap.Int("textRunes", utf8.RuneCountInString(text)),
		zap.Int("pcmBytes", len(pcm)))
	return nil
}

func (s *LocalService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// renderTone maps text length to duration and text content to pitch. A short
// fade at both ends avoids clicks at frame boundaries.
func renderTone(cfg LocalConfig, text string) []float32 {
	duration := time.Duration(utf8.RuneCountInString(text)) * cfg.RuneDuration
	if duration < cfg.MinDuration {
		duration = cfg.MinDuration
	}
	if duration > cfg.MaxDuration {
		duration = cfg.MaxDuration
	}

	h := fnv.New32a()
	h.Write([]byte(cfg.Speaker))
	h.Write([]byte(text))
	freq := 180.0 + float64(h.Sum32()%220)

	n := int(float64(cfg.SampleRate) * duration.Seconds())
	samples := make([]float32, n)
	for i := range samples {
		t := float64(i) / float64(cfg.SampleRate)
		samples[i] = float32(math.Sin(2*math.Pi*freq*t) * cfg.Amplitude)
	}

	fade := cfg.SampleRate / 100
	if fade > len(samples)/2 {
		fade = len(samples) / 2
	}
	for i := 0; i < fade; i++ {
		gain := float32(i) / float32(fade)
		samples[i] *= gain
		samples[len(samples)-1-i] *= gain
	}
	return samples
}
