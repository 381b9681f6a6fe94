package bootstrap

import (
	"fmt"
	"os"
	"strings"

	"github.com/code-100-precent/EchoLink/pkg/config"
	"github.com/code-100-precent/EchoLink/pkg/logger"
	"go.uber.org/zap"
)

// LogConfigInfo Print global configuration information
func LogConfigInfo() {
	logger.Info("system config load finished")
	logger.Info("global config",
		zap.String("server_name", config.GlobalConfig.Server.Name),
		zap.String("mode", config.GlobalConfig.Server.Mode),
		zap.String("addr", config.GlobalConfig.Server.Addr),
		zap.String("api_prefix", config.GlobalConfig.Server.APIPrefix),
		zap.String("monitor_prefix", config.GlobalConfig.Server.MonitorPrefix),
	)

	logger.Info("audio config",
		zap.Int("input_sample_rate", config.GlobalConfig.Audio.InputSampleRate),
		zap.Int("target_sample_rate", config.GlobalConfig.Audio.TargetSampleRate),
		zap.Int("frame_buffer_cap", config.GlobalConfig.Audio.FrameBufferCap),
	)

	logger.Info("asr config",
		zap.String("asr_vendor", config.GlobalConfig.ASR.Vendor),
		zap.Float64("chunk_seconds", config.GlobalConfig.ASR.ChunkSeconds),
		zap.Duration("poll_interval", config.GlobalConfig.ASR.PollInterval),
	)

	logger.Info("tts config",
		zap.String("tts_vendor", config.GlobalConfig.TTS.Vendor),
		zap.String("tts_base_url", config.GlobalConfig.TTS.BaseURL),
		zap.String("speaker", config.GlobalConfig.TTS.Speaker),
		zap.Int("tts_sample_rate", config.GlobalConfig.TTS.SampleRate),
		zap.Int("queue_cap", config.GlobalConfig.TTS.QueueCap),
	)

	logger.Info("llm config",
		zap.String("llm_provider", config.GlobalConfig.LLM.Provider),
		zap.String("llm_base_url", config.GlobalConfig.LLM.BaseURL),
		zap.String("llm_model", config.GlobalConfig.LLM.Model),
		zap.Int("history_depth", config.GlobalConfig.LLM.HistoryDepth),
	)

	logger.Info("pipeline config",
		zap.Int("min_segment_runes", config.GlobalConfig.Pipeline.MinSegmentRunes),
		zap.Int("max_segment_runes", config.GlobalConfig.Pipeline.MaxSegmentRunes),
	)

	logger.Info("cache config",
		zap.String("cache_type", config.GlobalConfig.Cache.Type),
		zap.String("redis_addr", config.GlobalConfig.Cache.Redis.Addr),
	)

	logger.Info("log config",
		zap.String("log_level", config.GlobalConfig.Log.Level),
		zap.String("log_filename", config.GlobalConfig.Log.Filename),
		zap.Int("log_max_size", config.GlobalConfig.Log.MaxSize),
		zap.Int("log_max_age", config.GlobalConfig.Log.MaxAge),
		zap.Int("log_max_backups", config.GlobalConfig.Log.MaxBackups),
	)
}

// PrintBannerFromFile Read file and print
func PrintBannerFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	lines := strings.Split(string(data), "\n")

	colors := []string{
		"\x1b[38;5;165m",
		"\x1b[38;5;189m",
		"\x1b[38;5;207m",
		"\x1b[38;5;219m",
		"\x1b[38;5;225m",
		"\x1b[38;5;231m",
	}

	for i, line := range lines {
		color := colors[i%len(colors)]
		fmt.Println(color + line + "\x1b[0m")
	}
	return nil
}
