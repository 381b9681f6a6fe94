package voice

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/code-100-precent/EchoLink/pkg/events"
	"github.com/code-100-precent/EchoLink/pkg/recognizer"
	"github.com/code-100-precent/EchoLink/pkg/utils"
)

// ErrShutdownTimeout reports that a component's workers were still running
// when its shutdown grace expired.
var ErrShutdownTimeout = errors.New("voice component shutdown timed out")

// Options assembles a conversation service.
type Options struct {
	SessionID  string // generated when empty
	Recognizer recognizer.StreamingService
	Pipeline   PipelineStreamer
	ASR        ASROptions
	TTS        TTSOptions
	Input      InputOptions
}

// Service wires one client connection to a full voice conversation: an
// event bus, the inbound gateway, the recognizer and response managers,
// and the outbound gateway. Each connection gets its own Service with its
// own bus; nothing is shared between sessions.
type Service struct {
	id        string
	bus       *events.Bus
	asr       *ASRManager
	tts       *TTSManager
	input     *InputGateway
	output    *OutputGateway
	conn      Conn
	startedAt time.Time
	logger    *zap.Logger
}

// NewService builds the session components around a fresh bus. Managers
// subscribe before the gateways so transcript handlers are in place before
// the first frame can arrive.
func NewService(conn Conn, opts Options) *Service {
	if opts.SessionID == "" {
		opts.SessionID = utils.ShortID(12)
	}
	logger := zap.L().With(zap.String("sessionID", opts.SessionID))

	bus := events.NewBus(logger)
	s := &Service{
		id:        opts.SessionID,
		bus:       bus,
		conn:      conn,
		startedAt: time.Now(),
		logger:    logger,
	}
	s.asr = NewASRManager(bus, opts.Recognizer, opts.ASR)
	s.tts = NewTTSManager(bus, opts.Pipeline, opts.TTS)
	s.input = NewInputGateway(bus, conn, opts.Input)
	s.output = NewOutputGateway(bus, conn)
	return s
}

// ID returns the session id.
func (s *Service) ID() string { return s.id }

// StartedAt returns when the session was created.
func (s *Service) StartedAt() time.Time { return s.startedAt }

// Bus exposes the session's event bus for status endpoints.
func (s *Service) Bus() *events.Bus { return s.bus }

// Run processes the connection until the client disconnects or ctx is
// cancelled, then tears the session down. The returned error is the read
// loop's; clean disconnects return nil.
func (s *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.output.Start(ctx)
	s.input.HandleConnection()

	// Closing the conn is the only way to unblock a pending read.
	go func() {
		<-ctx.Done()
		s.conn.Close()
	}()

	err := s.input.HandleMessageLoop(ctx)
	cancel()
	s.shutdown()

	s.logger.Info("conversation ended",
		zap.Duration("uptime", time.Since(s.startedAt)),
		zap.Error(err))
	return err
}

// shutdown stops components upstream first so nothing publishes into a
// closed bus: recognizer, then response manager, then the bus itself.
func (s *Service) shutdown() {
	if err := s.asr.Shutdown(events.DefaultShutdownGrace); err != nil {
		s.logger.Warn("asr manager shutdown", zap.Error(err))
	}
	if err := s.tts.Shutdown(events.DefaultShutdownGrace); err != nil {
		s.logger.Warn("tts manager shutdown", zap.Error(err))
	}
	if err := s.bus.Shutdown(events.DefaultShutdownGrace); err != nil {
		s.logger.Warn("event bus shutdown", zap.Error(err))
	}
}
