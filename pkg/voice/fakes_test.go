package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/code-100-precent/EchoLink/pkg/events"
	"github.com/code-100-precent/EchoLink/pkg/pipeline"
	"github.com/code-100-precent/EchoLink/pkg/recognizer"
)

// recorder subscribes to bus subjects and keeps every received event in
// arrival order.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func newRecorder(bus *events.Bus, subjects ...string) *recorder {
	r := &recorder{}
	for _, subject := range subjects {
		bus.Subscribe(subject, func(event events.Event) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, event)
			return nil
		})
	}
	return r
}

func (r *recorder) all() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) ofType(eventType string) []events.Event {
	var out []events.Event
	for _, e := range r.all() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) count(eventType string) int {
	return len(r.ofType(eventType))
}

// waitFor blocks until at least n events of eventType arrived.
func (r *recorder) waitFor(t *testing.T, eventType string, n int, timeout time.Duration) []events.Event {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if got := r.ofType(eventType); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	got := r.ofType(eventType)
	require.GreaterOrEqual(t, len(got), n, "timed out waiting for %d %s events", n, eventType)
	return got
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, format string, args ...interface{}) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, cond(), fmt.Sprintf(format, args...))
}

// fakeRecognizer returns one scripted increment per chunk. Every call
// writes a cache key so tests can observe cache resets.
type fakeRecognizer struct {
	mu         sync.Mutex
	increments []string
	next       int
	calls      int
	finalSeen  bool
	lastCache  *recognizer.Cache
	err        error
	failOnce   bool
}

func (f *fakeRecognizer) RecognizeStream(chunk []float32, cache *recognizer.Cache, isFinal bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	f.lastCache = cache
	cache.Set("chunks_seen", f.calls)
	if isFinal {
		f.finalSeen = true
	}
	if f.err != nil {
		err := f.err
		if f.failOnce {
			f.err = nil
		}
		return "", err
	}
	if f.next < len(f.increments) {
		inc := f.increments[f.next]
		f.next++
		return inc, nil
	}
	return "", nil
}

func (f *fakeRecognizer) ChunkSeconds() float64 { return 0.1 }

func (f *fakeRecognizer) Close() error { return nil }

func (f *fakeRecognizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeRecognizer) sawFinal() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finalSeen
}

func (f *fakeRecognizer) cache() *recognizer.Cache {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastCache
}

// fakePipeline scripts GenerateStream. With drip > 0 it emits numbered
// segments forever until the context ends; otherwise it emits the scripted
// segments, erroring after failAfter of them when err is set.
type fakePipeline struct {
	mu        sync.Mutex
	segments  []pipeline.Output
	err       error
	failOnce  bool
	failAfter int
	drip      time.Duration
	calls     int
	prompts   []string
	running   int
}

func (f *fakePipeline) GenerateStream(ctx context.Context, text string) (<-chan pipeline.Output, <-chan error) {
	outputs := make(chan pipeline.Output, 8)
	errs := make(chan error, 1)

	f.mu.Lock()
	f.calls++
	f.running++
	f.prompts = append(f.prompts, text)
	segments := append([]pipeline.Output(nil), f.segments...)
	err := f.err
	failAfter := f.failAfter
	if f.failOnce {
		f.err = nil
	}
	drip := f.drip
	f.mu.Unlock()

	go func() {
		defer func() {
			f.mu.Lock()
			f.running--
			f.mu.Unlock()
		}()
		defer close(outputs)
		defer close(errs)

		if drip > 0 {
			for i := 1; ; i++ {
				out := pipeline.Output{
					Audio:   []byte{byte(i)},
					Text:    fmt.Sprintf("句子%d。", i),
					ASRText: text,
				}
				select {
				case outputs <- out:
				case <-ctx.Done():
					return
				}
				select {
				case <-time.After(drip):
				case <-ctx.Done():
					return
				}
			}
		}

		for i, seg := range segments {
			if err != nil && i >= failAfter {
				break
			}
			seg.ASRText = text
			select {
			case outputs <- seg:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			errs <- err
		}
	}()
	return outputs, errs
}

func (f *fakePipeline) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakePipeline) promptAt(i int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.prompts) {
		return ""
	}
	return f.prompts[i]
}

func (f *fakePipeline) runningCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

type connFrame struct {
	messageType int
	data        []byte
}

// chanConn is an in-memory Conn the test feeds frame by frame. Closing the
// inbound channel reads as a clean disconnect; abort injects a read error.
type chanConn struct {
	in        chan connFrame
	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	readErr error
	writes  []connFrame
}

func newChanConn() *chanConn {
	return &chanConn{
		in:     make(chan connFrame, 64),
		closed: make(chan struct{}),
	}
}

func (c *chanConn) send(messageType int, data []byte) {
	c.in <- connFrame{messageType: messageType, data: data}
}

func (c *chanConn) sendText(text string) {
	c.send(websocket.TextMessage, []byte(text))
}

func (c *chanConn) finish() {
	close(c.in)
}

func (c *chanConn) abort(err error) {
	c.mu.Lock()
	c.readErr = err
	c.mu.Unlock()
	c.Close()
}

func (c *chanConn) disconnectErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return c.readErr
	}
	return &websocket.CloseError{Code: websocket.CloseNormalClosure}
}

func (c *chanConn) ReadMessage() (int, []byte, error) {
	select {
	case frame, ok := <-c.in:
		if !ok {
			return 0, nil, c.disconnectErr()
		}
		return frame.messageType, frame.data, nil
	case <-c.closed:
		return 0, nil, c.disconnectErr()
	}
}

func (c *chanConn) WriteMessage(messageType int, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, connFrame{messageType: messageType, data: cp})
	return nil
}

func (c *chanConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *chanConn) frames() []connFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]connFrame, len(c.writes))
	copy(out, c.writes)
	return out
}

func (c *chanConn) binaryCount() int {
	n := 0
	for _, frame := range c.frames() {
		if frame.messageType == websocket.BinaryMessage {
			n++
		}
	}
	return n
}

type textFrame struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

func (c *chanConn) textFrames(t *testing.T) []textFrame {
	t.Helper()
	var out []textFrame
	for _, frame := range c.frames() {
		if frame.messageType != websocket.TextMessage {
			continue
		}
		var decoded textFrame
		require.NoError(t, json.Unmarshal(frame.data, &decoded))
		out = append(out, decoded)
	}
	return out
}

func (c *chanConn) actionCount(t *testing.T, action string) int {
	t.Helper()
	n := 0
	for _, frame := range c.textFrames(t) {
		if frame.Action == action {
			n++
		}
	}
	return n
}
