package voice

import (
	"context"
	"encoding/json"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/code-100-precent/EchoLink/pkg/events"
)

const inputSource = "input_gateway"

// defaultVADConfidence applies when a VAD control message omits confidence.
const defaultVADConfidence = 0.8

// controlMessage is the client's text frame shape. Action is the dispatch
// key, with Type as a fallback for older clients.
type controlMessage struct {
	Action     string   `json:"action"`
	Type       string   `json:"type"`
	Confidence *float64 `json:"confidence"`
}

// Client control actions.
const (
	actionVADSpeechStart      = "vad_speech_start"
	actionVADSpeechEnd        = "vad_speech_end"
	actionTTSPlaybackFinished = "tts_playback_finished"
)

// InputGateway reads transport frames and turns them into bus events.
// Binary frames become audio frames tagged with the client capture rate.
// Text frames are republished as websocket messages and dispatched by the
// gateway's own subscription, so control handling rides the bus like every
// other concern.
type InputGateway struct {
	bus        *events.Bus
	conn       Conn
	sampleRate int
	logger     *zap.Logger
}

// InputOptions tunes the gateway.
type InputOptions struct {
	SampleRate int // client capture rate, 48000 default
}

func NewInputGateway(bus *events.Bus, conn Conn, opts InputOptions) *InputGateway {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 48000
	}
	g := &InputGateway{
		bus:        bus,
		conn:       conn,
		sampleRate: opts.SampleRate,
		logger:     zap.L(),
	}
	bus.Subscribe(events.WebSocketMessageReceived, g.onControlMessage)
	bus.Subscribe(events.ErrorOccurred, g.onError)
	return g
}

// HandleConnection runs once after the transport handshake.
func (g *InputGateway) HandleConnection() {
	g.logger.Info("client connected", zap.Int("sampleRate", g.sampleRate))
}

// HandleMessageLoop reads frames until the client disconnects or ctx is
// cancelled. A clean close returns nil, any other read failure returns the
// error.
func (g *InputGateway) HandleMessageLoop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		messageType, data, err := g.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				g.logger.Info("client disconnected")
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			g.logger.Warn("read transport frame", zap.Error(err))
			return err
		}

		switch messageType {
		case websocket.BinaryMessage:
			g.bus.Publish(events.NewAudioFrame(inputSource, data, g.sampleRate, false))
		case websocket.TextMessage:
			g.bus.Publish(events.NewWebSocketMessage(inputSource, string(data)))
		}
	}
}

// onControlMessage dispatches parsed control frames.
func (g *InputGateway) onControlMessage(event events.Event) error {
	raw := event.GetString("message")

	var msg controlMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		g.logger.Warn("malformed control message", zap.String("message", raw))
		return nil
	}

	action := msg.Action
	if action == "" {
		action = msg.Type
	}
	confidence := defaultVADConfidence
	if msg.Confidence != nil {
		confidence = *msg.Confidence
	}

	switch action {
	case actionVADSpeechStart:
		g.bus.Publish(events.NewVADSpeechStart(inputSource, confidence))
	case actionVADSpeechEnd:
		g.bus.Publish(events.NewVADSpeechEnd(inputSource, confidence))
		// The sentinel unblocks the recognizer flush loop and carries the
		// end-of-segment marker through the audio path.
		g.bus.Publish(events.NewAudioFrame(inputSource, nil, g.sampleRate, true))
	case actionTTSPlaybackFinished:
		g.bus.Publish(events.NewTTSPlaybackFinished(inputSource))
	default:
		g.logger.Warn("unknown control action", zap.String("action", action))
	}
	return nil
}

func (g *InputGateway) onError(event events.Event) error {
	g.logger.Error("conversation error",
		zap.String("errorType", event.GetString("error_type")),
		zap.String("component", event.GetString("component")),
		zap.String("message", event.GetString("error_message")))
	return nil
}
