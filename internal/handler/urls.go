package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/code-100-precent/EchoLink/pkg/cache"
	"github.com/code-100-precent/EchoLink/pkg/config"
	"github.com/code-100-precent/EchoLink/pkg/history"
	"github.com/code-100-precent/EchoLink/pkg/llm"
	"github.com/code-100-precent/EchoLink/pkg/logger"
	"github.com/code-100-precent/EchoLink/pkg/metrics"
)

type Handlers struct {
	store     cache.Cache
	history   *history.Store
	llm       llm.LLMProvider
	registry  *SessionRegistry
	startedAt time.Time

	// baseCtx is the parent of every session context; stop cancels it so
	// running sessions wind down during shutdown.
	baseCtx context.Context
	stop    context.CancelFunc
}

func NewHandlers() (*Handlers, error) {
	cfg := config.GlobalConfig

	store, err := cache.NewCache(cfg.Cache)
	if err != nil {
		return nil, err
	}

	provider, err := llm.NewLLMProvider(
		cfg.LLM.Provider, cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.SystemPrompt)
	if err != nil {
		store.Close()
		return nil, err
	}

	baseCtx, stop := context.WithCancel(context.Background())
	return &Handlers{
		store:     store,
		history:   history.NewStore(store, cfg.LLM.HistoryDepth),
		llm:       provider,
		registry:  NewSessionRegistry(),
		startedAt: time.Now(),
		baseCtx:   baseCtx,
		stop:      stop,
	}, nil
}

// SetLLMProvider replaces the completion provider (for dependency injection).
func (h *Handlers) SetLLMProvider(provider llm.LLMProvider) {
	if provider != nil {
		h.llm = provider
	}
}

// Registry returns the session registry.
func (h *Handlers) Registry() *SessionRegistry {
	return h.registry
}

func (h *Handlers) Register(engine *gin.Engine) {
	engine.GET("/healthz", h.HealthCheck)

	if config.GlobalConfig.Server.MonitorPrefix != "" {
		engine.GET(config.GlobalConfig.Server.MonitorPrefix, gin.WrapH(metrics.Handler()))
	}

	r := engine.Group(config.GlobalConfig.Server.APIPrefix)
	h.registerVoiceRoutes(r)
}

func (h *Handlers) registerVoiceRoutes(r *gin.RouterGroup) {
	voiceGroup := r.Group("/voice")
	voiceGroup.GET("/chat", h.VoiceChat)
	voiceGroup.GET("/sessions", h.Sessions)
}

// Shutdown stops accepting session work and waits for running sessions to
// drain. Each session's context watcher closes its connection, which ends
// the read loop and tears the session down.
func (h *Handlers) Shutdown(ctx context.Context) error {
	h.stop()

	if err := h.registry.Wait(ctx); err != nil {
		logger.Warn("sessions still draining at shutdown deadline",
			zap.Int("remaining", h.registry.Len()), zap.Error(err))
		return err
	}

	if err := h.store.Close(); err != nil {
		logger.Warn("close cache store", zap.Error(err))
	}
	return nil
}
