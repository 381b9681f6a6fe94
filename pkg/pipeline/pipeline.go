package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/code-100-precent/EchoLink/pkg/history"
	"github.com/code-100-precent/EchoLink/pkg/llm"
	"github.com/code-100-precent/EchoLink/pkg/synthesizer"
)

// outputBuffer bounds how far synthesis runs ahead of the consumer.
const outputBuffer = 8

// Output is one synthesized audio chunk together with the sentence being
// spoken and the recognized prompt that produced the response. Text stays
// constant across all chunks of one sentence.
type Output struct {
	Audio   []byte
	Text    string
	ASRText string
}

// Config tunes response segmentation.
type Config struct {
	MinSegmentRunes int
	MaxSegmentRunes int
}

// Pipeline turns a recognized prompt into a stream of speech. Completion
// tokens are segmented into sentences and each sentence is synthesized as
// soon as it completes, so playback starts before the model finishes.
type Pipeline struct {
	llm       llm.LLMProvider
	synth     synthesizer.SynthesisService
	history   *history.Store
	sessionID string
	config    Config
	logger    *zap.Logger
}

func New(provider llm.LLMProvider, synth synthesizer.SynthesisService, hist *history.Store, sessionID string, config Config) *Pipeline {
	if config.MinSegmentRunes <= 0 {
		config.MinSegmentRunes = DefaultMinSegmentRunes
	}
	if config.MaxSegmentRunes < config.MinSegmentRunes {
		config.MaxSegmentRunes = DefaultMaxSegmentRunes
	}
	return &Pipeline{
		llm:       provider,
		synth:     synth,
		history:   hist,
		sessionID: sessionID,
		config:    config,
		logger:    zap.L(),
	}
}

// GenerateStream answers text with streamed speech. The output channel
// closes when the response ends. The error channel carries at most one
// error and closes with the output channel. A failure aborts the rest of
// the response. Context cancellation stops the stream without an error.
func (p *Pipeline) GenerateStream(ctx context.Context, text string) (<-chan Output, <-chan error) {
	outputs := make(chan Output, outputBuffer)
	errs := make(chan error, 1)

	// Deriving a context keeps token production from outliving an aborted
	// response.
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(outputs)
		defer close(errs)
		defer cancel()

		tokens, llmErrs := p.llm.StreamCompletion(ctx, p.buildMessages(ctx, text))

		seg := NewSegmenter(p.config.MinSegmentRunes, p.config.MaxSegmentRunes)
		var reply strings.Builder

		for token := range tokens {
			reply.WriteString(token)
			for _, sentence := range seg.Push(token) {
				if err := p.synthesize(ctx, outputs, sentence, text); err != nil {
					if ctx.Err() == nil {
						errs <- fmt.Errorf("synthesize segment: %w", err)
					}
					return
				}
			}
		}
		if err := <-llmErrs; err != nil {
			errs <- fmt.Errorf("stream completion: %w", err)
			return
		}
		if tail := seg.Flush(); tail != "" {
			if err := p.synthesize(ctx, outputs, tail, text); err != nil {
				if ctx.Err() == nil {
					errs <- fmt.Errorf("synthesize segment: %w", err)
				}
				return
			}
		}

		if reply.Len() > 0 && p.history != nil {
			err := p.history.Append(ctx, p.sessionID,
				history.Turn{Role: llm.RoleUser, Content: text},
				history.Turn{Role: llm.RoleAssistant, Content: reply.String()},
			)
			if err != nil {
				p.logger.Warn("record conversation turn", zap.Error(err))
			}
		}
	}()

	return outputs, errs
}

func (p *Pipeline) synthesize(ctx context.Context, outputs chan<- Output, sentence, prompt string) error {
	if strings.TrimSpace(sentence) == "" {
		return nil
	}
	return p.synth.Synthesize(ctx, synthesizer.SynthesisHandlerFunc(func(data []byte) {
		if len(data) == 0 {
			return
		}
		chunk := make([]byte, len(data))
		copy(chunk, data)
		select {
		case outputs <- Output{Audio: chunk, Text: sentence, ASRText: prompt}:
		case <-ctx.Done():
		}
	}), sentence)
}

func (p *Pipeline) buildMessages(ctx context.Context, text string) []llm.Message {
	var turns []history.Turn
	if p.history != nil {
		turns = p.history.Turns(ctx, p.sessionID)
	}
	messages := make([]llm.Message, 0, len(turns)+1)
	for _, turn := range turns {
		messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Content})
	}
	return append(messages, llm.Message{Role: llm.RoleUser, Content: text})
}
