package voice

import (
	"context"
	"encoding/json"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/code-100-precent/EchoLink/pkg/events"
	"github.com/code-100-precent/EchoLink/pkg/metrics"
)

const outputSource = "output_gateway"

// outFrameCap bounds the outbound frame queue. A client that stops reading
// gets frames dropped rather than stalling the conversation.
const outFrameCap = 256

// Server frame actions.
const (
	frameUpdateASR  = "update_asr"
	frameFinishASR  = "finish_asr"
	frameUpdateResp = "update_resp"
	frameFinishResp = "finish_resp"
)

type clientFrame struct {
	Action string      `json:"action"`
	Data   interface{} `json:"data"`
}

type asrFrameData struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	IsFinal    bool    `json:"is_final"`
}

type respFrameData struct {
	Text string `json:"text"`
}

type outFrame struct {
	messageType int
	data        []byte
}

// OutputGateway translates outbound events into transport frames. All
// writes go through one loop over a bounded queue, so frame order follows
// enqueue order and the transport never sees concurrent writers.
type OutputGateway struct {
	bus    *events.Bus
	conn   Conn
	frames chan outFrame
	done   chan struct{}
	logger *zap.Logger
}

func NewOutputGateway(bus *events.Bus, conn Conn) *OutputGateway {
	g := &OutputGateway{
		bus:    bus,
		conn:   conn,
		frames: make(chan outFrame, outFrameCap),
		done:   make(chan struct{}),
		logger: zap.L(),
	}
	bus.Subscribe(events.ASRResultPartial, g.onASRPartial)
	bus.Subscribe(events.ASRResultFinal, g.onASRFinal)
	bus.Subscribe(events.TTSResponseUpdate, g.onResponseUpdate)
	bus.Subscribe(events.TTSResponseFinish, g.onResponseFinish)
	bus.Subscribe(events.TTSChunkGenerated, g.onAudioChunk)
	return g
}

// Start launches the write loop. It exits when ctx is cancelled.
func (g *OutputGateway) Start(ctx context.Context) {
	go func() {
		defer close(g.done)
		for {
			select {
			case <-ctx.Done():
				return
			case frame := <-g.frames:
				if err := g.conn.WriteMessage(frame.messageType, frame.data); err != nil {
					g.logger.Warn("write transport frame", zap.Error(err))
				}
			}
		}
	}()
}

// Done closes when the write loop has exited.
func (g *OutputGateway) Done() <-chan struct{} {
	return g.done
}

func (g *OutputGateway) onASRPartial(event events.Event) error {
	g.enqueueText(frameUpdateASR, asrFrameData{
		Text:       event.GetString("text"),
		Confidence: event.GetFloat("confidence"),
		IsFinal:    false,
	})
	return nil
}

func (g *OutputGateway) onASRFinal(event events.Event) error {
	g.enqueueText(frameFinishASR, asrFrameData{
		Text:       event.GetString("text"),
		Confidence: event.GetFloat("confidence"),
		IsFinal:    true,
	})
	return nil
}

func (g *OutputGateway) onResponseUpdate(event events.Event) error {
	g.enqueueText(frameUpdateResp, respFrameData{Text: event.GetString("text")})
	return nil
}

func (g *OutputGateway) onResponseFinish(event events.Event) error {
	g.enqueueText(frameFinishResp, respFrameData{Text: event.GetString("text")})
	return nil
}

func (g *OutputGateway) onAudioChunk(event events.Event) error {
	chunk := event.GetBytes("audio_chunk")
	if len(chunk) == 0 {
		return nil
	}
	g.enqueue(outFrame{messageType: websocket.BinaryMessage, data: chunk})
	return nil
}

func (g *OutputGateway) enqueueText(action string, data interface{}) {
	payload, err := json.Marshal(clientFrame{Action: action, Data: data})
	if err != nil {
		g.logger.Warn("encode transport frame", zap.String("action", action), zap.Error(err))
		return
	}
	g.enqueue(outFrame{messageType: websocket.TextMessage, data: payload})
}

func (g *OutputGateway) enqueue(frame outFrame) {
	select {
	case g.frames <- frame:
	default:
		metrics.RecordDroppedFrames("output", 1)
		g.logger.Warn("outbound frame queue full, dropping frame",
			zap.Int("messageType", frame.messageType),
			zap.Int("size", len(frame.data)))
	}
}
