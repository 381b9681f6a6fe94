package voice

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/code-100-precent/EchoLink/pkg/audio"
	"github.com/code-100-precent/EchoLink/pkg/events"
	"github.com/code-100-precent/EchoLink/pkg/metrics"
	"github.com/code-100-precent/EchoLink/pkg/recognizer"
)

const asrSource = "asr_manager"

// asrChunkConfidence is the placeholder confidence for streaming results
// until engines report real scores.
const asrChunkConfidence = 0.85

// ASR manager states.
const (
	ASRStateIdle      = "idle"
	ASRStateListening = "listening"
)

// ASROptions tunes the manager.
type ASROptions struct {
	ChunkSeconds    float64       // recognizer chunk duration, 0.6 s default
	PollInterval    time.Duration // consumer sleep when the buffer is empty
	BufferCap       int           // frame buffer bound, oldest dropped on overflow
	InputSampleRate int           // assumed rate before the first tagged frame
}

func (o *ASROptions) fillDefaults() {
	if o.ChunkSeconds <= 0 {
		o.ChunkSeconds = recognizer.DefaultChunkSeconds
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Millisecond
	}
	if o.BufferCap <= 0 {
		o.BufferCap = 1000
	}
	if o.InputSampleRate <= 0 {
		o.InputSampleRate = 48000
	}
}

// audioFrame is one buffered inbound frame.
type audioFrame struct {
	data       []byte
	sampleRate int
	isFinal    bool
	receivedAt time.Time
}

// ASRManager buffers inbound audio and streams it through the recognizer.
// Frames are buffered in every state; starting a segment clears whatever
// predates the start signal. A consumer task started on VADSpeechStart
// drains the buffer in recognizer-sized chunks and publishes cumulative
// partial transcripts; the end-of-segment sentinel makes it flush the rest,
// publish exactly one final transcript, and stop.
type ASRManager struct {
	bus  *events.Bus
	rec  recognizer.StreamingService
	opts ASROptions

	chunkBytes int

	mu             sync.Mutex
	state          string
	frames         []audioFrame
	dropped        int64
	errors         int64
	consumerCancel context.CancelFunc
	consumerDone   chan struct{}

	baseCtx    context.Context
	baseCancel context.CancelFunc

	logger *zap.Logger
}

func NewASRManager(bus *events.Bus, rec recognizer.StreamingService, opts ASROptions) *ASRManager {
	opts.fillDefaults()

	baseCtx, baseCancel := context.WithCancel(context.Background())
	m := &ASRManager{
		bus:        bus,
		rec:        rec,
		opts:       opts,
		chunkBytes: int(opts.ChunkSeconds*float64(recognizer.TargetSampleRate)) * audio.BytesPerSample,
		state:      ASRStateIdle,
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
		logger:     zap.L(),
	}
	bus.Subscribe(events.VADSpeechStart, m.onSpeechStart)
	bus.Subscribe(events.VADSpeechEnd, m.onSpeechEnd)
	bus.Subscribe(events.AudioFrameReceived, m.onAudioFrame)
	return m
}

// State returns the current manager state.
func (m *ASRManager) State() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// BufferLen returns the number of buffered frames.
func (m *ASRManager) BufferLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.frames)
}

// Errors returns the consumer error count.
func (m *ASRManager) Errors() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors
}

// onAudioFrame buffers a frame regardless of state, dropping the oldest
// past capacity.
func (m *ASRManager) onAudioFrame(event events.Event) error {
	frame := audioFrame{
		data:       event.GetBytes("audio_data"),
		sampleRate: int(event.GetInt64("sample_rate")),
		isFinal:    event.GetBool("is_final"),
		receivedAt: event.Timestamp,
	}

	overflow := 0
	m.mu.Lock()
	if len(m.frames) >= m.opts.BufferCap {
		overflow = len(m.frames) - m.opts.BufferCap + 1
		m.frames = m.frames[overflow:]
		m.dropped += int64(overflow)
	}
	m.frames = append(m.frames, frame)
	dropped := m.dropped
	m.mu.Unlock()

	metrics.RecordDroppedFrames("asr", overflow)
	if dropped > 0 && dropped%100 == 1 {
		m.logger.Warn("audio buffer overflow, oldest frames dropped", zap.Int64("dropped", dropped))
	}
	return nil
}

// onSpeechStart resets the segment state and starts a fresh consumer. A
// consumer still running from an abandoned segment is stopped without
// publishing a final. Only frames older than the start signal are cleared;
// frames of the new segment may already be in the buffer because audio and
// VAD signals ride different subjects.
func (m *ASRManager) onSpeechStart(event events.Event) error {
	if m.baseCtx.Err() != nil {
		return nil
	}
	m.stopConsumer()

	m.mu.Lock()
	kept := m.frames[:0]
	for _, frame := range m.frames {
		if frame.receivedAt.After(event.Timestamp) {
			kept = append(kept, frame)
		}
	}
	m.frames = kept
	m.state = ASRStateListening
	ctx, cancel := context.WithCancel(m.baseCtx)
	done := make(chan struct{})
	m.consumerCancel = cancel
	m.consumerDone = done
	m.mu.Unlock()

	m.logger.Debug("speech segment started", zap.Float64("confidence", event.GetFloat("confidence")))
	go m.consume(ctx, done)
	return nil
}

// onSpeechEnd only observes; the sentinel frame drives finalization so the
// flush order does not depend on cross-subject delivery timing.
func (m *ASRManager) onSpeechEnd(event events.Event) error {
	m.logger.Debug("speech segment ending", zap.Float64("confidence", event.GetFloat("confidence")))
	return nil
}

func (m *ASRManager) popFrame() (audioFrame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.frames) == 0 {
		return audioFrame{}, false
	}
	frame := m.frames[0]
	m.frames = m.frames[1:]
	return frame, true
}

// consume drains the buffer into the recognizer until the final sentinel
// or cancellation.
func (m *ASRManager) consume(ctx context.Context, done chan struct{}) {
	defer close(done)

	turn := &asrTurn{
		manager: m,
		cache:   recognizer.NewCache(),
		srcRate: m.opts.InputSampleRate,
	}

	for {
		frame, ok := m.popFrame()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.opts.PollInterval):
			}
			continue
		}

		turn.append(frame)

		if frame.isFinal {
			turn.flush(true)
			turn.finalize()
			m.mu.Lock()
			m.state = ASRStateIdle
			m.mu.Unlock()
			return
		}
		if turn.pending() >= m.chunkBytes {
			turn.flush(false)
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (m *ASRManager) stopConsumer() {
	m.mu.Lock()
	cancel := m.consumerCancel
	done := m.consumerDone
	m.consumerCancel = nil
	m.consumerDone = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if !waitDone(done, events.DefaultShutdownGrace) {
		m.logger.Warn("asr consumer did not stop in time")
	}
}

// Shutdown stops the consumer and blocks new segments.
func (m *ASRManager) Shutdown(grace time.Duration) error {
	m.baseCancel()

	m.mu.Lock()
	done := m.consumerDone
	m.consumerCancel = nil
	m.consumerDone = nil
	m.frames = nil
	m.state = ASRStateIdle
	m.mu.Unlock()

	if !waitDone(done, grace) {
		return ErrShutdownTimeout
	}
	return nil
}

func (m *ASRManager) reportConsumerError(err error) {
	m.mu.Lock()
	m.errors++
	m.mu.Unlock()

	m.logger.Error("asr consumer error", zap.Error(err))
	m.bus.Publish(events.NewError(asrSource, events.ErrTypeASRConsumer, err.Error(), asrSource, nil))
}

// asrTurn is the consumer-private state of one speech segment.
type asrTurn struct {
	manager     *ASRManager
	cache       *recognizer.Cache
	accumulated []byte
	processed   int
	text        string
	confSum     float64
	chunks      int
	srcRate     int
}

func (t *asrTurn) append(frame audioFrame) {
	if len(frame.data) == 0 {
		return
	}
	t.accumulated = append(t.accumulated, frame.data...)
	if frame.sampleRate > 0 {
		t.srcRate = frame.sampleRate
	}
}

func (t *asrTurn) pending() int {
	return len(t.accumulated) - t.processed
}

// flush feeds buffered bytes to the recognizer. A non-final flush sends
// only whole chunks and leaves the remainder buffered; the final flush
// drains everything and clears the recognizer cache.
func (t *asrTurn) flush(isFinal bool) {
	end := len(t.accumulated)
	if !isFinal {
		end = (len(t.accumulated) / t.manager.chunkBytes) * t.manager.chunkBytes
	}
	if end <= t.processed && !isFinal {
		return
	}

	span := t.accumulated[t.processed:end]
	t.processed = end

	if len(span) > 0 {
		samples := audio.PCM16ToFloat32(span)
		for _, chunk := range recognizer.Chunks(samples, t.srcRate, t.manager.opts.ChunkSeconds) {
			if len(chunk) == 0 {
				continue
			}
			increment, err := t.manager.rec.RecognizeStream(chunk, t.cache, isFinal)
			if err != nil {
				t.manager.reportConsumerError(err)
				continue
			}
			t.confSum += asrChunkConfidence
			t.chunks++
			if increment == "" {
				continue
			}
			t.text += increment
			t.manager.bus.PublishWait(events.NewASRPartial(asrSource, t.text, asrChunkConfidence))
		}
	}

	if isFinal {
		t.cache.Reset()
	}
}

// finalize publishes the segment's one final transcript.
func (t *asrTurn) finalize() {
	text := strings.TrimSpace(t.text)
	confidence := t.confSum / math.Max(float64(t.chunks), 1)

	t.manager.logger.Info("speech segment finalized",
		zap.String("text", text),
		zap.Int("chunks", t.chunks),
		zap.Int("bytes", len(t.accumulated)))
	t.manager.bus.PublishWait(events.NewASRFinal(asrSource, text, confidence))
}

func waitDone(done <-chan struct{}, grace time.Duration) bool {
	if done == nil {
		return true
	}
	select {
	case <-done:
		return true
	case <-time.After(grace):
		return false
	}
}
