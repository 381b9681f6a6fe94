package synthesizer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/code-100-precent/EchoLink/pkg/audio"
	"github.com/code-100-precent/EchoLink/pkg/utils"
)

// RemoteConfig configures a self-hosted HTTP synthesis server. The server
// takes a JSON request on POST {BaseURL}/v1/tts and answers with audio
// bytes, either a WAV container or raw PCM16.
type RemoteConfig struct {
	BaseURL    string `json:"base_url" env:"TTS_BASE_URL"`
	APIKey     string `json:"api_key" env:"TTS_API_KEY"`
	Speaker    string `json:"speaker"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	BitDepth   int    `json:"bit_depth"`
	Codec      string `json:"codec"`   // wav or pcm
	Timeout    int    `json:"timeout"` // seconds
}

func (c *RemoteConfig) GetProvider() TTSProvider {
	return ProviderRemote
}

// NewRemoteConfig builds a config with defaults, falling back to the
// environment for credentials.
func NewRemoteConfig(baseURL, apiKey string) *RemoteConfig {
	opt := &RemoteConfig{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		Speaker:    "default",
		SampleRate: 16000,
		Channels:   1,
		BitDepth:   16,
		Codec:      "wav",
		Timeout:    30,
	}
	if opt.BaseURL == "" {
		opt.BaseURL = utils.GetEnv("TTS_BASE_URL")
	}
	if opt.APIKey == "" {
		opt.APIKey = utils.GetEnv("TTS_API_KEY")
	}
	return opt
}

type remoteRequest struct {
	Text       string `json:"text"`
	Speaker    string `json:"speaker,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Format     string `json:"format,omitempty"`
}

// RemoteService streams synthesis from a self-hosted server. Responses
// arrive as one audio payload which is re-chunked into frames for the
// handler, so downstream consumers see the same cadence as the local
// engine.
type RemoteService struct {
	opt    RemoteConfig
	client *resty.Client
	mu     sync.Mutex
	logger *zap.Logger
}

func NewRemoteService(opt *RemoteConfig) (*RemoteService, error) {
	if opt == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	cfg := *opt
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.BitDepth <= 0 {
		cfg.BitDepth = 16
	}
	if cfg.Codec == "" {
		cfg.Codec = "wav"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30
	}

	client := resty.New().SetTimeout(time.Duration(cfg.Timeout) * time.Second)
	return &RemoteService{opt: cfg, client: client, logger: zap.L()}, nil
}

func (rs *RemoteService) Provider() TTSProvider {
	return ProviderRemote
}

func (rs *RemoteService) Format() StreamFormat {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return StreamFormat{
		SampleRate:    rs.opt.SampleRate,
		BitDepth:      rs.opt.BitDepth,
		Channels:      rs.opt.Channels,
		FrameDuration: 20 * time.Millisecond,
	}
}

func (rs *RemoteService) Synthesize(ctx context.Context, handler SynthesisHandler, text string) error {
	rs.mu.Lock()
	opt := rs.opt
	rs.mu.Unlock()

	if opt.BaseURL == "" {
		return fmt.Errorf("TTS_BASE_URL is required")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	req := rs.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(remoteRequest{
			Text:       text,
			Speaker:    opt.Speaker,
			SampleRate: opt.SampleRate,
			Format:     opt.Codec,
		})
	if opt.APIKey != "" {
		req.SetHeader("Authorization", "Bearer "+opt.APIKey)
	}

	resp, err := req.Post(strings.TrimRight(opt.BaseURL, "/") + "/v1/tts")
	if err != nil {
		return fmt.Errorf("tts request: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("tts server status %d: %s", resp.StatusCode(), resp.String())
	}

	payload := resp.Body()
	format := StreamFormat{
		SampleRate:    opt.SampleRate,
		BitDepth:      opt.BitDepth,
		Channels:      opt.Channels,
		FrameDuration: 20 * time.Millisecond,
	}
	if audio.IsWAV(payload) {
		info, pcm, err := audio.DecodeWAV(payload)
		if err != nil {
			return fmt.Errorf("decode tts audio: %w", err)
		}
		payload = pcm
		format.SampleRate = info.SampleRate
		format.BitDepth = info.SampleWidth * 8
		format.Channels = info.Channels
	}
	if len(payload) == 0 {
		return nil
	}

	frameBytes := format.FrameBytes()
	if frameBytes <= 0 {
		handler.OnMessage(payload)
		return nil
	}
	for offset := 0; offset < len(payload); offset += frameBytes {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := offset + frameBytes
		if end > len(payload) {
			end = len(payload)
		}
		handler.OnMessage(payload[offset:end])
	}

	rs.logger.Debug("remote synthesis finished",
		zap.Int("pcmBytes", len(payload)),
		zap.Int("sampleRate", format.SampleRate))
	return nil
}

func (rs *RemoteService) Close() error {
	return nil
}
