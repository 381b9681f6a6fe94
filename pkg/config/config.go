package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/code-100-precent/EchoLink/pkg/cache"
	"github.com/code-100-precent/EchoLink/pkg/logger"
	"github.com/code-100-precent/EchoLink/pkg/utils"
)

// Config main configuration structure
type Config struct {
	Server   ServerConfig     `mapstructure:"server"`
	Log      logger.LogConfig `mapstructure:"log"`
	Cache    cache.Config     `mapstructure:"cache"`
	Audio    AudioConfig      `mapstructure:"audio"`
	ASR      ASRConfig        `mapstructure:"asr"`
	TTS      TTSConfig        `mapstructure:"tts"`
	LLM      LLMConfig        `mapstructure:"llm"`
	Pipeline PipelineConfig   `mapstructure:"pipeline"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Name          string `env:"SERVER_NAME"`
	Addr          string `env:"ADDR"`
	Mode          string `env:"MODE"`
	APIPrefix     string `env:"API_PREFIX"`
	MonitorPrefix string `env:"MONITOR_PREFIX"`
}

// AudioConfig inbound audio configuration
type AudioConfig struct {
	InputSampleRate  int `env:"AUDIO_INPUT_SAMPLE_RATE"`  // client microphone rate
	TargetSampleRate int `env:"AUDIO_TARGET_SAMPLE_RATE"` // recognizer rate
	FrameBufferCap   int `env:"AUDIO_FRAME_BUFFER_CAP"`   // bounded frame queue
}

// ASRConfig speech recognition configuration
type ASRConfig struct {
	Vendor       string        `env:"ASR_VENDOR"`
	ChunkSeconds float64       `env:"ASR_CHUNK_SECONDS"`
	PollInterval time.Duration `env:"ASR_POLL_INTERVAL"`
}

// TTSConfig speech synthesis configuration
type TTSConfig struct {
	Vendor        string        `env:"TTS_VENDOR"`
	BaseURL       string        `env:"TTS_BASE_URL"`
	APIKey        string        `env:"TTS_API_KEY"`
	Speaker       string        `env:"TTS_SPEAKER"`
	SampleRate    int           `env:"TTS_SAMPLE_RATE"`
	QueueCap      int           `env:"TTS_QUEUE_CAP"`
	QueueInterval time.Duration `env:"TTS_QUEUE_INTERVAL"`
	PauseInterval time.Duration `env:"TTS_PAUSE_INTERVAL"`
}

// LLMConfig LLM service configuration
type LLMConfig struct {
	Provider     string `env:"LLM_PROVIDER"`
	APIKey       string `env:"LLM_API_KEY"`
	BaseURL      string `env:"LLM_BASE_URL"`
	Model        string `env:"LLM_MODEL"`
	SystemPrompt string `env:"LLM_SYSTEM_PROMPT"`
	HistoryDepth int    `env:"LLM_HISTORY_DEPTH"`
}

// PipelineConfig response pipeline tuning
type PipelineConfig struct {
	MinSegmentRunes int `env:"PIPELINE_MIN_SEGMENT_RUNES"`
	MaxSegmentRunes int `env:"PIPELINE_MAX_SEGMENT_RUNES"`
}

var GlobalConfig *Config

func Load() error {
	// Load .env based on environment first (missing files are fine, defaults apply).
	env := os.Getenv("APP_ENV")
	err := utils.LoadEnv(env)
	if err != nil {
		log.Printf("Note: .env file not found or failed to load: %v (using default values)", err)
	}

	GlobalConfig = &Config{
		Server: ServerConfig{
			Name:          getStringOrDefault("SERVER_NAME", "echolink"),
			Addr:          getStringOrDefault("ADDR", ":7073"),
			Mode:          getStringOrDefault("MODE", "development"),
			APIPrefix:     getStringOrDefault("API_PREFIX", "/api"),
			MonitorPrefix: getStringOrDefault("MONITOR_PREFIX", "/metrics"),
		},
		Log: logger.LogConfig{
			Level:      getStringOrDefault("LOG_LEVEL", "info"),
			Filename:   getStringOrDefault("LOG_FILENAME", "./logs/app.log"),
			MaxSize:    getIntOrDefault("LOG_MAX_SIZE", 100),
			MaxAge:     getIntOrDefault("LOG_MAX_AGE", 30),
			MaxBackups: getIntOrDefault("LOG_MAX_BACKUPS", 5),
			Daily:      getBoolOrDefault("LOG_DAILY", true),
		},
		Cache: loadCacheConfig(),
		Audio: AudioConfig{
			InputSampleRate:  getIntOrDefault("AUDIO_INPUT_SAMPLE_RATE", 48000),
			TargetSampleRate: getIntOrDefault("AUDIO_TARGET_SAMPLE_RATE", 16000),
			FrameBufferCap:   getIntOrDefault("AUDIO_FRAME_BUFFER_CAP", 1000),
		},
		ASR: ASRConfig{
			Vendor:       getStringOrDefault("ASR_VENDOR", "local"),
			ChunkSeconds: getFloatOrDefault("ASR_CHUNK_SECONDS", 0.6),
			PollInterval: parseDuration(getStringOrDefault("ASR_POLL_INTERVAL", "5ms"), 5*time.Millisecond),
		},
		TTS: TTSConfig{
			Vendor:        getStringOrDefault("TTS_VENDOR", "local"),
			BaseURL:       getStringOrDefault("TTS_BASE_URL", ""),
			APIKey:        getStringOrDefault("TTS_API_KEY", ""),
			Speaker:       getStringOrDefault("TTS_SPEAKER", "default"),
			SampleRate:    getIntOrDefault("TTS_SAMPLE_RATE", 16000),
			QueueCap:      getIntOrDefault("TTS_QUEUE_CAP", 1024),
			QueueInterval: parseDuration(getStringOrDefault("TTS_QUEUE_INTERVAL", "100ms"), 100*time.Millisecond),
			PauseInterval: parseDuration(getStringOrDefault("TTS_PAUSE_INTERVAL", "50ms"), 50*time.Millisecond),
		},
		LLM: LLMConfig{
			Provider:     getStringOrDefault("LLM_PROVIDER", "openai"),
			APIKey:       getStringOrDefault("LLM_API_KEY", ""),
			BaseURL:      getStringOrDefault("LLM_BASE_URL", "https://api.openai.com/v1"),
			Model:        getStringOrDefault("LLM_MODEL", "gpt-3.5-turbo"),
			SystemPrompt: getStringOrDefault("LLM_SYSTEM_PROMPT", "You are a helpful voice assistant. Keep answers short and speakable."),
			HistoryDepth: getIntOrDefault("LLM_HISTORY_DEPTH", 10),
		},
		Pipeline: PipelineConfig{
			MinSegmentRunes: getIntOrDefault("PIPELINE_MIN_SEGMENT_RUNES", 4),
			MaxSegmentRunes: getIntOrDefault("PIPELINE_MAX_SEGMENT_RUNES", 60),
		},
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server address is required")
	}
	if c.Audio.InputSampleRate <= 0 || c.Audio.TargetSampleRate <= 0 {
		return errors.New("audio sample rates must be positive")
	}
	if c.Audio.FrameBufferCap <= 0 {
		return errors.New("audio frame buffer capacity must be positive")
	}
	if c.ASR.ChunkSeconds <= 0 {
		return errors.New("asr chunk seconds must be positive")
	}
	if c.TTS.QueueCap <= 0 {
		return errors.New("tts queue capacity must be positive")
	}
	if c.LLM.HistoryDepth < 0 {
		return errors.New("llm history depth must not be negative")
	}
	return nil
}

// getStringOrDefault gets environment variable value, returns default if empty
func getStringOrDefault(key, defaultValue string) string {
	value := utils.GetEnv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getBoolOrDefault gets boolean environment variable value, returns default if empty
func getBoolOrDefault(key string, defaultValue bool) bool {
	value := utils.GetEnv(key)
	if value == "" {
		return defaultValue
	}
	return utils.GetBoolEnv(key)
}

// getIntOrDefault gets integer environment variable value, returns default if empty
func getIntOrDefault(key string, defaultValue int) int {
	value := utils.GetIntEnv(key)
	if value == 0 {
		return defaultValue
	}
	return int(value)
}

// getFloatOrDefault gets float environment variable value, returns default if empty
func getFloatOrDefault(key string, defaultValue float64) float64 {
	value := utils.GetEnv(key)
	if value == "" {
		return defaultValue
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return defaultValue
}

// parseDuration parses duration string with default fallback
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// loadCacheConfig loads cache configuration with all default values
func loadCacheConfig() cache.Config {
	cacheType := utils.GetEnv("CACHE_TYPE")
	if cacheType == "" {
		cacheType = "local"
	}
	redisAddr := utils.GetEnv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	redisPoolSize := int(utils.GetIntEnv("REDIS_POOL_SIZE"))
	if redisPoolSize == 0 {
		redisPoolSize = 10
	}
	redisMinIdleConns := int(utils.GetIntEnv("REDIS_MIN_IDLE_CONNS"))
	if redisMinIdleConns == 0 {
		redisMinIdleConns = 5
	}
	localDefaultExpiration := parseDuration(utils.GetEnv("LOCAL_CACHE_DEFAULT_EXPIRATION"), 5*time.Minute)
	localCleanupInterval := parseDuration(utils.GetEnv("LOCAL_CACHE_CLEANUP_INTERVAL"), 10*time.Minute)
	return cache.Config{
		Type: cacheType,
		Redis: cache.RedisConfig{
			Addr:         redisAddr,
			Password:     utils.GetEnv("REDIS_PASSWORD"),
			DB:           int(utils.GetIntEnv("REDIS_DB")),
			PoolSize:     redisPoolSize,
			MinIdleConns: redisMinIdleConns,
			DialTimeout:  parseDuration(utils.GetEnv("REDIS_DIAL_TIMEOUT"), 5*time.Second),
			ReadTimeout:  parseDuration(utils.GetEnv("REDIS_READ_TIMEOUT"), 3*time.Second),
			WriteTimeout: parseDuration(utils.GetEnv("REDIS_WRITE_TIMEOUT"), 3*time.Second),
		},
		Local: cache.LocalConfig{
			DefaultExpiration: localDefaultExpiration,
			CleanupInterval:   localCleanupInterval,
		},
	}
}
