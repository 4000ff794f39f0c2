package services

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
)

// Usage is the token accounting for one model call.
type Usage struct {
	InputTokens  int64 `json:"inputTokens"`
	OutputTokens int64 `json:"outputTokens"`
}

func (u Usage) Add(o Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + o.InputTokens,
		OutputTokens: u.OutputTokens + o.OutputTokens,
	}
}

// EstimatedCost converts token counts to an approximate dollar cost. Rates
// track the flash-tier pricing and only need to be order-of-magnitude
// correct.
func (u Usage) EstimatedCost() float64 {
	const inputPerM, outputPerM = 0.30, 2.50
	return float64(u.InputTokens)/1e6*inputPerM + float64(u.OutputTokens)/1e6*outputPerM
}

// ChatMessage is one prior turn handed to the model.
type ChatMessage struct {
	Role string // models.RoleUser or models.RoleModel
	Text string
}

// AudioInput attaches raw candidate audio to a chat request so the model
// hears the answer instead of reading a transcript.
type AudioInput struct {
	Data []byte
	MIME string
}

// ChatRequest is the uniform request shape for both streaming and
// one-shot calls.
type ChatRequest struct {
	System          string
	History         []ChatMessage
	Message         string
	Audio           *AudioInput
	MaxOutputTokens int32
	Temperature     *float32
	ResponseJSON    bool
}

// ChatStream delivers model output incrementally. Chunks closes when the
// model finishes or fails; Wait reports usage and the terminal error
// afterwards.
type ChatStream struct {
	ch    chan string
	done  chan struct{}
	usage Usage
	err   error
}

func newChatStream() *ChatStream {
	return &ChatStream{ch: make(chan string, 8), done: make(chan struct{})}
}

func (s *ChatStream) Chunks() <-chan string { return s.ch }

// Wait blocks until the stream has closed and returns the final usage and
// error.
func (s *ChatStream) Wait() (Usage, error) {
	<-s.done
	return s.usage, s.err
}

func (s *ChatStream) finish(usage Usage, err error) {
	s.usage = usage
	s.err = err
	close(s.ch)
	close(s.done)
}

// ModelProvider is the uniform call surface over the model vendor.
type ModelProvider interface {
	ChatStream(ctx context.Context, req ChatRequest) (*ChatStream, error)
	ChatOneShotJSON(ctx context.Context, req ChatRequest, schema *jsonschema.Schema, out any) (Usage, error)
	Transcribe(ctx context.Context, data []byte, mime, languageHint string) (string, Usage, error)
}

// SpeechFrame is one length-delimited piece of synthesized audio.
type SpeechFrame struct {
	Data []byte
	Err  error
}

// SpeechVendor synthesizes speech. Implementations stream frames and
// close the channel after the final frame or an error frame.
type SpeechVendor interface {
	Name() string
	Speak(ctx context.Context, text, voice, language string) (<-chan SpeechFrame, error)
}
