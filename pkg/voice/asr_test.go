package voice

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/code-100-precent/EchoLink/pkg/events"
	"github.com/code-100-precent/EchoLink/pkg/recognizer"
)

func newASRRig(t *testing.T, rec recognizer.StreamingService, opts ASROptions) (*events.Bus, *ASRManager, *recorder) {
	t.Helper()
	bus := events.NewBus(zap.NewNop())
	m := NewASRManager(bus, rec, opts)
	r := newRecorder(bus, events.ASRResultPartial, events.ASRResultFinal, events.ErrorOccurred)
	t.Cleanup(func() {
		_ = m.Shutdown(time.Second)
		_ = bus.Shutdown(time.Second)
	})
	return bus, m, r
}

func startSegment(t *testing.T, bus *events.Bus, m *ASRManager) {
	t.Helper()
	bus.PublishWait(events.NewVADSpeechStart("test", 0.9))
	require.Equal(t, ASRStateListening, m.State())
}

func pcmFrame(n int) []byte {
	return make([]byte, n)
}

func TestASRManager_BuffersFramesWhileIdle(t *testing.T) {
	rec := &fakeRecognizer{}
	bus, m, _ := newASRRig(t, rec, ASROptions{})

	for i := 0; i < 3; i++ {
		bus.PublishWait(events.NewAudioFrame("test", pcmFrame(320), 16000, false))
	}

	assert.Equal(t, 3, m.BufferLen())
	assert.Equal(t, ASRStateIdle, m.State())
	assert.Zero(t, rec.callCount())
}

func TestASRManager_OverflowDropsOldestFrames(t *testing.T) {
	rec := &fakeRecognizer{}
	bus, m, _ := newASRRig(t, rec, ASROptions{})

	for i := 0; i < 1500; i++ {
		data := []byte{byte(i), byte(i >> 8)}
		bus.PublishWait(events.NewAudioFrame("test", data, 16000, false))
	}

	assert.Equal(t, 1000, m.BufferLen())

	m.mu.Lock()
	first := m.frames[0].data
	dropped := m.dropped
	m.mu.Unlock()
	firstKept := 500
	assert.Equal(t, []byte{byte(firstKept), byte(firstKept >> 8)}, first)
	assert.Equal(t, int64(500), dropped)
}

func TestASRManager_SegmentStreamsPartialsAndOneFinal(t *testing.T) {
	rec := &fakeRecognizer{increments: []string{"你好", "，请继续说"}}
	bus, m, r := newASRRig(t, rec, ASROptions{ChunkSeconds: 0.1, InputSampleRate: 16000})

	startSegment(t, bus, m)
	bus.PublishWait(events.NewAudioFrame("test", pcmFrame(3200), 16000, false))

	partials := r.waitFor(t, events.ASRResultPartial, 1, 2*time.Second)
	assert.Equal(t, "你好", partials[0].GetString("text"))
	assert.InDelta(t, asrChunkConfidence, partials[0].GetFloat("confidence"), 1e-9)
	assert.Positive(t, rec.cache().Size())

	// Half a chunk stays buffered until the final flush drains it.
	bus.PublishWait(events.NewAudioFrame("test", pcmFrame(1600), 16000, false))
	bus.PublishWait(events.NewAudioFrame("test", nil, 16000, true))

	finals := r.waitFor(t, events.ASRResultFinal, 1, 2*time.Second)
	assert.Equal(t, "你好，请继续说", finals[0].GetString("text"))
	assert.InDelta(t, asrChunkConfidence, finals[0].GetFloat("confidence"), 1e-9)

	waitUntil(t, time.Second, func() bool { return m.State() == ASRStateIdle }, "manager did not return to idle")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, r.count(events.ASRResultFinal))
	assert.Equal(t, 2, r.count(events.ASRResultPartial))
	assert.True(t, rec.sawFinal())
	assert.Zero(t, rec.cache().Size())
}

func TestASRManager_EmptySegmentFinalizesWithEmptyText(t *testing.T) {
	rec := &fakeRecognizer{}
	bus, m, r := newASRRig(t, rec, ASROptions{ChunkSeconds: 0.1})

	startSegment(t, bus, m)
	bus.PublishWait(events.NewAudioFrame("test", nil, 48000, true))

	finals := r.waitFor(t, events.ASRResultFinal, 1, 2*time.Second)
	assert.Equal(t, "", finals[0].GetString("text"))
	assert.Zero(t, finals[0].GetFloat("confidence"))
	assert.Zero(t, rec.callCount())
	assert.Zero(t, r.count(events.ASRResultPartial))
}

func TestASRManager_RestartDropsUnfinishedSegment(t *testing.T) {
	rec := &fakeRecognizer{increments: []string{"第一句", "第二句"}}
	bus, m, r := newASRRig(t, rec, ASROptions{ChunkSeconds: 0.1, InputSampleRate: 16000})

	startSegment(t, bus, m)
	bus.PublishWait(events.NewAudioFrame("test", pcmFrame(3200), 16000, false))
	r.waitFor(t, events.ASRResultPartial, 1, 2*time.Second)

	// The user barges again before the first segment finalizes.
	startSegment(t, bus, m)
	bus.PublishWait(events.NewAudioFrame("test", pcmFrame(3200), 16000, false))
	bus.PublishWait(events.NewAudioFrame("test", nil, 16000, true))

	finals := r.waitFor(t, events.ASRResultFinal, 1, 2*time.Second)
	assert.Equal(t, "第二句", finals[0].GetString("text"))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, r.count(events.ASRResultFinal))
}

func TestASRManager_StartKeepsFramesNewerThanSignal(t *testing.T) {
	rec := &fakeRecognizer{increments: []string{"只有新帧"}}
	bus, m, r := newASRRig(t, rec, ASROptions{ChunkSeconds: 0.1, InputSampleRate: 16000})

	// One frame predates the start signal, one races ahead of it.
	bus.PublishWait(events.NewAudioFrame("test", pcmFrame(3200), 16000, false))
	start := events.NewVADSpeechStart("test", 0.9)
	bus.PublishWait(events.NewAudioFrame("test", pcmFrame(3200), 16000, false))
	bus.PublishWait(start)
	require.Equal(t, ASRStateListening, m.State())

	bus.PublishWait(events.NewAudioFrame("test", nil, 16000, true))

	finals := r.waitFor(t, events.ASRResultFinal, 1, 2*time.Second)
	assert.Equal(t, "只有新帧", finals[0].GetString("text"))
	assert.Equal(t, 1, rec.callCount())
}

func TestASRManager_RecognizerErrorsAreContained(t *testing.T) {
	rec := &fakeRecognizer{err: errors.New("engine unavailable"), failOnce: true}
	bus, m, r := newASRRig(t, rec, ASROptions{ChunkSeconds: 0.1, InputSampleRate: 16000})

	startSegment(t, bus, m)
	bus.PublishWait(events.NewAudioFrame("test", pcmFrame(3200), 16000, false))
	bus.PublishWait(events.NewAudioFrame("test", nil, 16000, true))

	errsSeen := r.waitFor(t, events.ErrorOccurred, 1, 2*time.Second)
	assert.Equal(t, events.ErrTypeASRConsumer, errsSeen[0].GetString("error_type"))

	finals := r.waitFor(t, events.ASRResultFinal, 1, 2*time.Second)
	assert.Equal(t, "", finals[0].GetString("text"))
	assert.EqualValues(t, 1, m.Errors())
	assert.Zero(t, r.count(events.ASRResultPartial))
}

func TestASRManager_ShutdownStopsSegments(t *testing.T) {
	rec := &fakeRecognizer{}
	bus, m, r := newASRRig(t, rec, ASROptions{ChunkSeconds: 0.1})

	startSegment(t, bus, m)
	require.NoError(t, m.Shutdown(time.Second))
	assert.Equal(t, ASRStateIdle, m.State())

	bus.PublishWait(events.NewVADSpeechStart("test", 0.9))
	bus.PublishWait(events.NewAudioFrame("test", nil, 48000, true))

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, r.count(events.ASRResultFinal))
	assert.Equal(t, ASRStateIdle, m.State())
}
