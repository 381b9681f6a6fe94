package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_StampsIdentity(t *testing.T) {
	evt := New(ASRResultPartial, "asr_manager", map[string]interface{}{"text": "hi"})

	assert.NotEmpty(t, evt.ID)
	assert.False(t, evt.Timestamp.IsZero())
	assert.Equal(t, ASRResultPartial, evt.Type)
	assert.Equal(t, "asr_manager", evt.Source)
	assert.Equal(t, "hi", evt.Data["text"])

	other := New(ASRResultPartial, "asr_manager", nil)
	assert.NotNil(t, other.Data)
	assert.NotEqual(t, evt.ID, other.ID)
}

func TestEvent_Getters(t *testing.T) {
	evt := New("demo.subject", "test", map[string]interface{}{
		"text":       "hello",
		"confidence": 0.85,
		"task_id":    int64(3),
		"channels":   1,
		"is_final":   true,
		"audio_data": []byte{0x01, 0x02},
	})

	assert.Equal(t, "hello", evt.GetString("text"))
	assert.InDelta(t, 0.85, evt.GetFloat("confidence"), 1e-9)
	assert.Equal(t, int64(3), evt.GetInt64("task_id"))
	assert.Equal(t, int64(1), evt.GetInt64("channels"))
	assert.True(t, evt.GetBool("is_final"))
	assert.Equal(t, []byte{0x01, 0x02}, evt.GetBytes("audio_data"))

	// Missing keys fall back to zero values.
	assert.Equal(t, "", evt.GetString("missing"))
	assert.Zero(t, evt.GetFloat("missing"))
	assert.Zero(t, evt.GetInt64("missing"))
	assert.False(t, evt.GetBool("missing"))
	assert.Nil(t, evt.GetBytes("missing"))
	assert.Nil(t, evt.GetBytes("text"))
}

func TestEvent_SummaryReplacesBinaryPayloads(t *testing.T) {
	evt := NewAudioFrame("input_gateway", make([]byte, 960), 48000, false)

	summary := evt.Summary()
	data, ok := summary["data"].(map[string]interface{})
	require.True(t, ok)

	assert.Equal(t, 960, data["audio_data_len"])
	assert.NotContains(t, data, "audio_data")
	assert.Equal(t, 48000, data["sample_rate"])
	assert.Equal(t, evt.ID, summary["event_id"])
	assert.Equal(t, AudioFrameReceived, summary["event_type"])
}

func TestBuilders_PayloadShapes(t *testing.T) {
	frame := NewAudioFrame("input_gateway", []byte{0x00, 0x01}, 48000, false)
	assert.Equal(t, AudioFrameReceived, frame.Type)
	assert.Equal(t, []byte{0x00, 0x01}, frame.GetBytes("audio_data"))
	assert.Equal(t, int64(48000), frame.GetInt64("sample_rate"))
	assert.Equal(t, int64(1), frame.GetInt64("channels"))
	assert.Equal(t, "pcm_s16le", frame.GetString("audio_format"))
	assert.False(t, frame.GetBool("is_final"))

	final := NewAudioFrame("input_gateway", nil, 48000, true)
	assert.True(t, final.GetBool("is_final"))
	assert.Empty(t, final.GetBytes("audio_data"))

	partial := NewASRPartial("asr_manager", "你好", 0.85)
	assert.Equal(t, ASRResultPartial, partial.Type)
	assert.False(t, partial.GetBool("is_final"))

	finalASR := NewASRFinal("asr_manager", "你好世界", 0.9)
	assert.Equal(t, ASRResultFinal, finalASR.Type)
	assert.True(t, finalASR.GetBool("is_final"))
	assert.Equal(t, "你好世界", finalASR.GetString("text"))

	paused := NewTTSPaused("tts_manager", "partial response", 7)
	assert.Equal(t, TTSPaused, paused.Type)
	assert.Equal(t, int64(7), paused.GetInt64("task_id"))
	assert.Equal(t, "partial response", paused.GetString("text"))

	chunk := NewTTSChunk("tts_manager", []byte{0xAA}, 7)
	assert.Equal(t, TTSChunkGenerated, chunk.Type)
	assert.Equal(t, []byte{0xAA}, chunk.GetBytes("audio_chunk"))

	start := NewVADSpeechStart("input_gateway", 0.8)
	assert.Equal(t, VADSpeechStart, start.Type)
	assert.InDelta(t, 0.8, start.GetFloat("confidence"), 1e-9)
}

func TestNewError_Payload(t *testing.T) {
	evt := NewError("tts_manager", ErrTypeTTSGeneration, "llm stream broke", "tts_manager",
		map[string]interface{}{"task_id": int64(2)})

	assert.Equal(t, ErrorOccurred, evt.Type)
	assert.Equal(t, ErrTypeTTSGeneration, evt.GetString("error_type"))
	assert.Equal(t, "llm stream broke", evt.GetString("error_message"))
	assert.Equal(t, "tts_manager", evt.GetString("component"))

	ctx, ok := evt.Data["context"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, int64(2), ctx["task_id"])

	// A nil context still marshals as an object, not null.
	bare := NewError("asr_manager", ErrTypeASRConsumer, "boom", "asr_manager", nil)
	assert.NotNil(t, bare.Data["context"])
}
