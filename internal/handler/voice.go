package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/code-100-precent/EchoLink/pkg/config"
	"github.com/code-100-precent/EchoLink/pkg/logger"
	"github.com/code-100-precent/EchoLink/pkg/metrics"
	"github.com/code-100-precent/EchoLink/pkg/pipeline"
	"github.com/code-100-precent/EchoLink/pkg/recognizer"
	"github.com/code-100-precent/EchoLink/pkg/response"
	"github.com/code-100-precent/EchoLink/pkg/synthesizer"
	"github.com/code-100-precent/EchoLink/pkg/utils"
	"github.com/code-100-precent/EchoLink/pkg/voice"
)

// recentEventTail caps how many bus events the sessions endpoint reports
// per session.
const recentEventTail = 10

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Origin policy is enforced by the deployment proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// VoiceChat upgrades the request and runs a full-duplex voice session on
// the connection until the client disconnects or the server shuts down.
func (h *Handlers) VoiceChat(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	metrics.RecordConnection()

	svc, cleanup, err := h.buildSession(conn)
	if err != nil {
		logger.Error("voice session setup failed", zap.Error(err))
		conn.Close()
		return
	}
	defer cleanup()

	h.registry.Add(svc)
	metrics.SessionOpened()
	defer func() {
		h.registry.Remove(svc.ID())
		metrics.SessionClosed()
	}()

	if err := svc.Run(h.baseCtx); err != nil {
		logger.Warn("voice session ended abnormally",
			zap.String("sessionID", svc.ID()), zap.Error(err))
	}
}

// buildSession assembles the per-connection engines and the service around
// them. The returned cleanup closes the engines after the session ends.
func (h *Handlers) buildSession(conn *websocket.Conn) (*voice.Service, func(), error) {
	cfg := config.GlobalConfig

	rec, err := buildRecognizer(cfg.ASR)
	if err != nil {
		return nil, nil, err
	}

	synth, err := buildSynthesizer(cfg.TTS)
	if err != nil {
		rec.Close()
		return nil, nil, err
	}

	sessionID := utils.ShortID(12)
	pipe := pipeline.New(h.llm, synth, h.history, sessionID, pipeline.Config{
		MinSegmentRunes: cfg.Pipeline.MinSegmentRunes,
		MaxSegmentRunes: cfg.Pipeline.MaxSegmentRunes,
	})

	svc := voice.NewService(conn, voice.Options{
		SessionID:  sessionID,
		Recognizer: rec,
		Pipeline:   pipe,
		ASR: voice.ASROptions{
			ChunkSeconds:    cfg.ASR.ChunkSeconds,
			PollInterval:    cfg.ASR.PollInterval,
			BufferCap:       cfg.Audio.FrameBufferCap,
			InputSampleRate: cfg.Audio.InputSampleRate,
		},
		TTS: voice.TTSOptions{
			QueueCap:      cfg.TTS.QueueCap,
			PollInterval:  cfg.TTS.QueueInterval,
			PauseInterval: cfg.TTS.PauseInterval,
		},
		Input: voice.InputOptions{SampleRate: cfg.Audio.InputSampleRate},
	})
	metrics.ObserveBus(svc.Bus())

	cleanup := func() {
		if err := rec.Close(); err != nil {
			logger.Warn("close recognizer", zap.Error(err))
		}
		if err := synth.Close(); err != nil {
			logger.Warn("close synthesizer", zap.Error(err))
		}
	}
	return svc, cleanup, nil
}

func buildRecognizer(cfg config.ASRConfig) (recognizer.StreamingService, error) {
	switch recognizer.Vendor(cfg.Vendor) {
	case recognizer.VendorLocal, "":
		return recognizer.GetGlobalFactory().Create(&recognizer.LocalConfig{
			ChunkSecs: cfg.ChunkSeconds,
		})
	default:
		return nil, fmt.Errorf("recognizer vendor %s not supported", cfg.Vendor)
	}
}

func buildSynthesizer(cfg config.TTSConfig) (synthesizer.SynthesisService, error) {
	switch synthesizer.TTSProvider(cfg.Vendor) {
	case synthesizer.ProviderRemote:
		opt := synthesizer.NewRemoteConfig(cfg.BaseURL, cfg.APIKey)
		opt.Speaker = cfg.Speaker
		if cfg.SampleRate > 0 {
			opt.SampleRate = cfg.SampleRate
		}
		return synthesizer.GetGlobalFactory().Create(opt)
	case synthesizer.ProviderLocal, "":
		opt := synthesizer.NewLocalConfig()
		opt.Speaker = cfg.Speaker
		if cfg.SampleRate > 0 {
			opt.SampleRate = cfg.SampleRate
		}
		return synthesizer.GetGlobalFactory().Create(opt)
	default:
		return nil, fmt.Errorf("synthesizer provider %s not supported", cfg.Vendor)
	}
}

// Sessions reports the running sessions with their bus activity.
func (h *Handlers) Sessions(c *gin.Context) {
	sessions := h.registry.Snapshot()

	items := make([]gin.H, 0, len(sessions))
	for _, svc := range sessions {
		seen := svc.Bus().PublishedTypes()
		eventTypes := make(map[string]string, len(seen))
		for eventType, last := range seen {
			eventTypes[eventType] = last.Format(time.RFC3339)
		}

		recent := svc.Bus().RecentEvents()
		if len(recent) > recentEventTail {
			recent = recent[len(recent)-recentEventTail:]
		}
		tail := make([]map[string]interface{}, 0, len(recent))
		for _, event := range recent {
			tail = append(tail, event.Summary())
		}

		items = append(items, gin.H{
			"session_id":     svc.ID(),
			"started_at":     svc.StartedAt().Format(time.RFC3339),
			"uptime_seconds": time.Since(svc.StartedAt()).Seconds(),
			"event_types":    eventTypes,
			"recent_events":  tail,
		})
	}

	response.Success(c, "active sessions", gin.H{
		"count":    len(items),
		"sessions": items,
	})
}
