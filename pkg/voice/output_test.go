package voice

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/code-100-precent/EchoLink/pkg/events"
)

func newOutputRig(t *testing.T) (*events.Bus, *chanConn, *OutputGateway) {
	t.Helper()
	bus := events.NewBus(zap.NewNop())
	t.Cleanup(func() { _ = bus.Shutdown(time.Second) })
	conn := newChanConn()
	g := NewOutputGateway(bus, conn)
	return bus, conn, g
}

func TestOutputGateway_ForwardsEventsAsFrames(t *testing.T) {
	bus, conn, g := newOutputRig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g.Start(ctx)

	bus.PublishWait(events.NewASRPartial("test", "你", 0.85))
	bus.PublishWait(events.NewASRFinal("test", "你好", 0.9))
	bus.PublishWait(events.NewTTSResponseUpdate("test", "回答", 1))
	bus.PublishWait(events.NewTTSResponseFinish("test", "回答。", 1))
	bus.PublishWait(events.NewTTSChunk("test", []byte{9, 9}, 1))
	bus.PublishWait(events.NewTTSChunk("test", nil, 1)) // empty chunks are not forwarded

	waitUntil(t, 2*time.Second, func() bool { return len(conn.frames()) >= 5 }, "frames not written")
	time.Sleep(50 * time.Millisecond)
	framesSeen := conn.frames()
	require.Len(t, framesSeen, 5)

	texts := conn.textFrames(t)
	require.Len(t, texts, 4)
	assert.Equal(t, frameUpdateASR, texts[0].Action)
	var partial asrFrameData
	require.NoError(t, json.Unmarshal(texts[0].Data, &partial))
	assert.Equal(t, "你", partial.Text)
	assert.InDelta(t, 0.85, partial.Confidence, 1e-9)
	assert.False(t, partial.IsFinal)

	assert.Equal(t, frameFinishASR, texts[1].Action)
	var final asrFrameData
	require.NoError(t, json.Unmarshal(texts[1].Data, &final))
	assert.Equal(t, "你好", final.Text)
	assert.True(t, final.IsFinal)

	assert.Equal(t, frameUpdateResp, texts[2].Action)
	assert.Equal(t, frameFinishResp, texts[3].Action)
	var resp respFrameData
	require.NoError(t, json.Unmarshal(texts[3].Data, &resp))
	assert.Equal(t, "回答。", resp.Text)

	last := framesSeen[len(framesSeen)-1]
	assert.Equal(t, websocket.BinaryMessage, last.messageType)
	assert.Equal(t, []byte{9, 9}, last.data)
}

func TestOutputGateway_DropsFramesWhenSaturated(t *testing.T) {
	bus, conn, g := newOutputRig(t)
	// The write loop is never started, so the queue can only fill up.
	for i := 0; i < outFrameCap+10; i++ {
		bus.PublishWait(events.NewTTSChunk("test", []byte{byte(i)}, 1))
	}

	assert.Len(t, g.frames, outFrameCap)
	assert.Empty(t, conn.frames())
}

func TestOutputGateway_StopsWhenContextEnds(t *testing.T) {
	_, _, g := newOutputRig(t)
	ctx, cancel := context.WithCancel(context.Background())
	g.Start(ctx)
	cancel()

	select {
	case <-g.Done():
	case <-time.After(time.Second):
		t.Fatal("write loop did not stop")
	}
}
