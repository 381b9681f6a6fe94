package synthesizer

import (
	"context"
	"time"
)

// TTSProvider identifies a synthesis engine implementation.
type TTSProvider string

const (
	// ProviderLocal is the built-in offline engine, used in dev mode and when
	// no remote endpoint is configured.
	ProviderLocal TTSProvider = "local"
	// ProviderRemote is a self-hosted HTTP synthesis server.
	ProviderRemote TTSProvider = "remote"
)

// StreamFormat describes the PCM stream a vendor produces.
type StreamFormat struct {
	SampleRate    int           `json:"sample_rate"`
	BitDepth      int           `json:"bit_depth"`
	Channels      int           `json:"channels"`
	FrameDuration time.Duration `json:"frame_duration"`
}

// FrameBytes returns the byte length of one frame, or 0 when the format
// does not define a frame duration.
func (f StreamFormat) FrameBytes() int {
	if f.FrameDuration <= 0 || f.SampleRate <= 0 {
		return 0
	}
	samples := int(float64(f.SampleRate) * f.FrameDuration.Seconds())
	return samples * f.Channels * f.BitDepth / 8
}

// SynthesisHandler receives audio chunks as the vendor produces them.
type SynthesisHandler interface {
	OnMessage(data []byte)
}

// SynthesisHandlerFunc adapts a function to the SynthesisHandler interface.
type SynthesisHandlerFunc func(data []byte)

func (f SynthesisHandlerFunc) OnMessage(data []byte) { f(data) }

// SynthesisService converts text into a stream of audio chunks delivered
// through the handler. Synthesize blocks until the stream ends or ctx is
// cancelled.
type SynthesisService interface {
	Provider() TTSProvider
	Format() StreamFormat
	Synthesize(ctx context.Context, handler SynthesisHandler, text string) error
	Close() error
}
