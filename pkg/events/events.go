package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"
)

// Event subjects. These strings are the bus wire format and must stay stable.
const (
	WebSocketMessageReceived = "websocket.message_received"
	AudioFrameReceived       = "audio.frame_received"
	VADSpeechStart           = "vad.speech_start"
	VADSpeechEnd             = "vad.speech_end"
	ASRResultPartial         = "asr.result_partial"
	ASRResultFinal           = "asr.result_final"
	TTSStarted               = "tts.started"
	TTSStopped               = "tts.stopped"
	TTSPaused                = "tts.paused"
	TTSResponseUpdate        = "tts.response_update"
	TTSResponseFinish        = "tts.response_finish"
	TTSChunkGenerated        = "tts.chunk_generated"
	TTSPlaybackFinished      = "tts.playback_finished"
	ErrorOccurred            = "error.occurred"
)

// Error taxonomy carried in the error_type field of error.occurred events.
const (
	ErrTypeEventBusPublish = "event_bus_publish_error"
	ErrTypeEventHandler    = "event_handler_error"
	ErrTypeASRConsumer     = "asr_consumer_error"
	ErrTypeTTSConsumer     = "tts_consumer_error"
	ErrTypeTTSGeneration   = "tts_generation_error"
)

// Event system event
type Event struct {
	ID        string                 `json:"event_id"`   // Unique event id
	Type      string                 `json:"event_type"` // Event subject, e.g. "audio.frame_received"
	Timestamp time.Time              `json:"timestamp"`  // Event timestamp
	Source    string                 `json:"source"`     // Emitting component
	Data      map[string]interface{} `json:"data"`       // Event payload
}

// New builds an event with a fresh id and timestamp.
func New(eventType, source string, data map[string]interface{}) Event {
	if data == nil {
		data = make(map[string]interface{})
	}
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		Source:    source,
		Data:      data,
	}
}

// GetString reads a payload field as string.
func (e Event) GetString(key string) string {
	return cast.ToString(e.Data[key])
}

// GetFloat reads a payload field as float64.
func (e Event) GetFloat(key string) float64 {
	return cast.ToFloat64(e.Data[key])
}

// GetInt64 reads a payload field as int64.
func (e Event) GetInt64(key string) int64 {
	return cast.ToInt64(e.Data[key])
}

// GetBool reads a payload field as bool.
func (e Event) GetBool(key string) bool {
	return cast.ToBool(e.Data[key])
}

// GetBytes reads a payload field as a raw byte slice. Binary payloads are
// stored as []byte and never go through string conversion.
func (e Event) GetBytes(key string) []byte {
	if b, ok := e.Data[key].([]byte); ok {
		return b
	}
	return nil
}

// Summary returns a log- and JSON-friendly view of the payload with binary
// fields replaced by their lengths.
func (e Event) Summary() map[string]interface{} {
	out := map[string]interface{}{
		"event_id":   e.ID,
		"event_type": e.Type,
		"timestamp":  e.Timestamp,
		"source":     e.Source,
	}
	data := make(map[string]interface{}, len(e.Data))
	for k, v := range e.Data {
		if b, ok := v.([]byte); ok {
			data[k+"_len"] = len(b)
			continue
		}
		data[k] = v
	}
	out["data"] = data
	return out
}

// NewWebSocketMessage records an inbound text frame.
func NewWebSocketMessage(source, message string) Event {
	return New(WebSocketMessageReceived, source, map[string]interface{}{
		"message": message,
	})
}

// NewAudioFrame carries one inbound audio frame. A final frame has no audio
// and marks the end of a speech segment.
func NewAudioFrame(source string, audio []byte, sampleRate int, isFinal bool) Event {
	return New(AudioFrameReceived, source, map[string]interface{}{
		"audio_data":   audio,
		"sample_rate":  sampleRate,
		"channels":     1,
		"audio_format": "pcm_s16le",
		"is_final":     isFinal,
	})
}

// NewVADSpeechStart signals the client detected the user started speaking.
func NewVADSpeechStart(source string, confidence float64) Event {
	return New(VADSpeechStart, source, map[string]interface{}{
		"confidence": confidence,
	})
}

// NewVADSpeechEnd signals the client detected the user stopped speaking.
func NewVADSpeechEnd(source string, confidence float64) Event {
	return New(VADSpeechEnd, source, map[string]interface{}{
		"confidence": confidence,
	})
}

// NewASRPartial carries the cumulative partial transcript of the current
// utterance.
func NewASRPartial(source, text string, confidence float64) Event {
	return New(ASRResultPartial, source, map[string]interface{}{
		"text":       text,
		"confidence": confidence,
		"is_final":   false,
	})
}

// NewASRFinal carries the final transcript of an utterance.
func NewASRFinal(source, text string, confidence float64) Event {
	return New(ASRResultFinal, source, map[string]interface{}{
		"text":       text,
		"confidence": confidence,
		"is_final":   true,
	})
}

// NewTTSStarted marks the start of a synthesis turn.
func NewTTSStarted(source string, taskID int64) Event {
	return New(TTSStarted, source, map[string]interface{}{
		"task_id": taskID,
	})
}

// NewTTSStopped marks the teardown of a synthesis turn.
func NewTTSStopped(source string, taskID int64) Event {
	return New(TTSStopped, source, map[string]interface{}{
		"task_id": taskID,
	})
}

// NewTTSPaused signals a barge-in pause of the active synthesis turn.
func NewTTSPaused(source, text string, taskID int64) Event {
	return New(TTSPaused, source, map[string]interface{}{
		"text":    text,
		"task_id": taskID,
	})
}

// NewTTSResponseUpdate carries the accumulated response text so far.
func NewTTSResponseUpdate(source, text string, taskID int64) Event {
	return New(TTSResponseUpdate, source, map[string]interface{}{
		"text":    text,
		"task_id": taskID,
	})
}

// NewTTSResponseFinish carries the complete response text of a turn.
func NewTTSResponseFinish(source, text string, taskID int64) Event {
	return New(TTSResponseFinish, source, map[string]interface{}{
		"text":    text,
		"task_id": taskID,
	})
}

// NewTTSChunk carries one synthesized audio chunk.
func NewTTSChunk(source string, chunk []byte, taskID int64) Event {
	return New(TTSChunkGenerated, source, map[string]interface{}{
		"audio_chunk": chunk,
		"task_id":     taskID,
	})
}

// NewTTSPlaybackFinished records the client's playback-complete ack.
func NewTTSPlaybackFinished(source string) Event {
	return New(TTSPlaybackFinished, source, nil)
}

// NewError reports a contained component failure.
func NewError(source, errorType, message, component string, context map[string]interface{}) Event {
	if context == nil {
		context = make(map[string]interface{})
	}
	return New(ErrorOccurred, source, map[string]interface{}{
		"error_type":    errorType,
		"error_message": message,
		"component":     component,
		"context":       context,
	})
}
