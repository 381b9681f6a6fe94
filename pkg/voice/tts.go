package voice

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/code-100-precent/EchoLink/pkg/events"
	"github.com/code-100-precent/EchoLink/pkg/metrics"
	"github.com/code-100-precent/EchoLink/pkg/pipeline"
)

const ttsSource = "tts_manager"

// TTS manager states.
const (
	TTSStateIdle     = "idle"
	TTSStateSpeaking = "speaking"
	TTSStatePaused   = "paused"
)

// PipelineStreamer answers a prompt with streamed speech. *pipeline.Pipeline
// satisfies it.
type PipelineStreamer interface {
	GenerateStream(ctx context.Context, text string) (<-chan pipeline.Output, <-chan error)
}

// TTSOptions tunes the manager.
type TTSOptions struct {
	QueueCap      int           // audio queue bound
	PollInterval  time.Duration // consumer queue poll timeout
	PauseInterval time.Duration // consumer sleep while paused
}

func (o *TTSOptions) fillDefaults() {
	if o.QueueCap <= 0 {
		o.QueueCap = 1024
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 100 * time.Millisecond
	}
	if o.PauseInterval <= 0 {
		o.PauseInterval = 50 * time.Millisecond
	}
}

// ttsQueueItem is one unit of synthesized output. The task id lets the
// consumer drop items produced for a superseded turn.
type ttsQueueItem struct {
	taskID   int64
	audio    []byte
	respText string
	isFinal  bool
}

// TTSManager drives the response pipeline for each final transcript. Every
// turn gets a fresh strictly increasing task id; a generator feeds the
// audio queue and a single consumer forwards items to the bus, dropping
// anything from a superseded task. Barge-in pauses the consumer without
// draining the queue; the next final transcript makes the paused items
// stale.
type TTSManager struct {
	bus      *events.Bus
	pipeline PipelineStreamer
	opts     TTSOptions

	queue chan ttsQueueItem

	mu           sync.Mutex
	state        string
	taskID       int64
	paused       bool
	currentText  string
	accumText    string
	genCancel    context.CancelFunc
	genDone      chan struct{}
	consCancel   context.CancelFunc
	consDone     chan struct{}
	errors       int64

	baseCtx    context.Context
	baseCancel context.CancelFunc

	logger *zap.Logger
}

func NewTTSManager(bus *events.Bus, streamer PipelineStreamer, opts TTSOptions) *TTSManager {
	opts.fillDefaults()

	baseCtx, baseCancel := context.WithCancel(context.Background())
	m := &TTSManager{
		bus:        bus,
		pipeline:   streamer,
		opts:       opts,
		queue:      make(chan ttsQueueItem, opts.QueueCap),
		state:      TTSStateIdle,
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
		logger:     zap.L(),
	}
	bus.Subscribe(events.ASRResultFinal, m.onASRFinal)
	bus.Subscribe(events.VADSpeechStart, m.onSpeechStart)
	bus.Subscribe(events.TTSPlaybackFinished, m.onPlaybackFinished)
	return m
}

// State returns the current manager state.
func (m *TTSManager) State() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// TaskID returns the current turn's task id.
func (m *TTSManager) TaskID() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.taskID
}

// Errors returns the generator and consumer error count.
func (m *TTSManager) Errors() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors
}

// onASRFinal tears down the previous turn and, for a non-blank transcript,
// starts a new one.
func (m *TTSManager) onASRFinal(event events.Event) error {
	if m.baseCtx.Err() != nil {
		return nil
	}
	m.reset()

	text := strings.TrimSpace(event.GetString("text"))
	if text == "" {
		m.logger.Debug("blank transcript, staying idle")
		return nil
	}

	m.mu.Lock()
	m.taskID++
	taskID := m.taskID
	m.state = TTSStateSpeaking
	m.paused = false
	genCtx, genCancel := context.WithCancel(m.baseCtx)
	consCtx, consCancel := context.WithCancel(m.baseCtx)
	genDone := make(chan struct{})
	consDone := make(chan struct{})
	m.genCancel, m.genDone = genCancel, genDone
	m.consCancel, m.consDone = consCancel, consDone
	m.mu.Unlock()

	metrics.RecordTurn()
	m.logger.Info("response turn started", zap.Int64("taskID", taskID), zap.String("prompt", text))
	m.bus.Publish(events.NewTTSStarted(ttsSource, taskID))

	go m.generate(genCtx, genDone, taskID, text)
	go m.consume(consCtx, consDone)
	return nil
}

// onSpeechStart pauses delivery. The generator keeps running; its queued
// output waits until the next final transcript marks it stale.
func (m *TTSManager) onSpeechStart(event events.Event) error {
	m.mu.Lock()
	text := m.currentText
	taskID := m.taskID
	m.paused = true
	if m.state == TTSStateSpeaking {
		m.state = TTSStatePaused
	}
	m.mu.Unlock()

	m.bus.PublishWait(events.NewTTSPaused(ttsSource, text, taskID))
	return nil
}

// onPlaybackFinished is the client's ack that playback drained; the turn
// is complete and state returns to idle.
func (m *TTSManager) onPlaybackFinished(event events.Event) error {
	m.reset()
	return nil
}

// reset cancels the turn's tasks, waits for them, drains the queue and
// returns to idle. Safe to call repeatedly.
func (m *TTSManager) reset() {
	m.mu.Lock()
	genCancel, genDone := m.genCancel, m.genDone
	consCancel, consDone := m.consCancel, m.consDone
	m.genCancel, m.genDone = nil, nil
	m.consCancel, m.consDone = nil, nil
	active := m.state != TTSStateIdle
	taskID := m.taskID
	m.state = TTSStateIdle
	m.paused = false
	m.currentText = ""
	m.accumText = ""
	m.mu.Unlock()

	if genCancel != nil {
		genCancel()
	}
	if consCancel != nil {
		consCancel()
	}
	if !waitDone(genDone, events.DefaultShutdownGrace) {
		m.logger.Warn("tts generator did not stop in time", zap.Int64("taskID", taskID))
	}
	if !waitDone(consDone, events.DefaultShutdownGrace) {
		m.logger.Warn("tts consumer did not stop in time", zap.Int64("taskID", taskID))
	}

	for {
		select {
		case <-m.queue:
		default:
			if active {
				m.bus.Publish(events.NewTTSStopped(ttsSource, taskID))
			}
			return
		}
	}
}

// Shutdown tears down the active turn and blocks new ones.
func (m *TTSManager) Shutdown(grace time.Duration) error {
	m.baseCancel()

	m.mu.Lock()
	genDone, consDone := m.genDone, m.consDone
	m.genCancel, m.genDone = nil, nil
	m.consCancel, m.consDone = nil, nil
	m.state = TTSStateIdle
	m.paused = false
	m.mu.Unlock()

	ok := waitDone(genDone, grace)
	ok = waitDone(consDone, grace) && ok

	for {
		select {
		case <-m.queue:
		default:
			if !ok {
				return ErrShutdownTimeout
			}
			return nil
		}
	}
}

// generate runs the pipeline for one turn and feeds the queue. The yielded
// text snapshots are cumulative per sentence; unchanged suffixes are not
// re-appended. A terminal item is enqueued whenever any text was produced,
// errors included, so the client still sees a completion.
func (m *TTSManager) generate(ctx context.Context, done chan struct{}, taskID int64, prompt string) {
	defer close(done)

	outputs, errs := m.pipeline.GenerateStream(ctx, prompt)

	respText := ""
	for out := range outputs {
		if out.Text != "" && !strings.HasSuffix(respText, out.Text) {
			respText += out.Text
		}
		m.enqueue(ctx, ttsQueueItem{taskID: taskID, audio: out.Audio, respText: respText})
	}
	if err := <-errs; err != nil && ctx.Err() == nil {
		m.reportError(events.ErrTypeTTSGeneration, err, taskID)
	}
	if respText != "" {
		m.enqueue(ctx, ttsQueueItem{taskID: taskID, respText: respText, isFinal: true})
	}
}

func (m *TTSManager) enqueue(ctx context.Context, item ttsQueueItem) {
	select {
	case m.queue <- item:
	case <-ctx.Done():
	}
}

// consume forwards queued items in order. Paused turns sleep instead of
// draining so a resumed or superseded turn decides the items' fate.
func (m *TTSManager) consume(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		m.mu.Lock()
		paused := m.paused
		m.mu.Unlock()

		if paused {
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.opts.PauseInterval):
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case item := <-m.queue:
			m.deliver(item)
		case <-time.After(m.opts.PollInterval):
		}
	}
}

// deliver publishes one queue item, dropping stale tasks.
func (m *TTSManager) deliver(item ttsQueueItem) {
	defer func() {
		if r := recover(); r != nil {
			m.reportError(events.ErrTypeTTSConsumer, fmt.Errorf("deliver panic: %v", r), item.taskID)
		}
	}()

	m.mu.Lock()
	current := m.taskID
	lastText := m.currentText
	m.mu.Unlock()

	if item.taskID != current {
		m.logger.Debug("drop stale tts item",
			zap.Int64("itemTask", item.taskID),
			zap.Int64("currentTask", current))
		return
	}

	if len(item.audio) > 0 {
		m.bus.PublishWait(events.NewTTSChunk(ttsSource, item.audio, item.taskID))
	}
	if item.respText != "" && item.respText != lastText {
		m.bus.PublishWait(events.NewTTSResponseUpdate(ttsSource, item.respText, item.taskID))
		m.mu.Lock()
		m.currentText = item.respText
		m.accumText = item.respText
		m.mu.Unlock()
	}
	if item.isFinal {
		m.bus.PublishWait(events.NewTTSResponseFinish(ttsSource, item.respText, item.taskID))
		m.logger.Info("response turn finished", zap.Int64("taskID", item.taskID))
	}
}

func (m *TTSManager) reportError(errorType string, err error, taskID int64) {
	m.mu.Lock()
	m.errors++
	m.mu.Unlock()

	m.logger.Error("tts turn error",
		zap.String("errorType", errorType),
		zap.Int64("taskID", taskID),
		zap.Error(err))
	m.bus.Publish(events.NewError(ttsSource, errorType, err.Error(), ttsSource, map[string]interface{}{
		"task_id": taskID,
	}))
}
