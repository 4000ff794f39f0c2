package services

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// openaiVoices maps our deterministic voice names to the vendor's set.
// Unknown names fall back to alloy.
var openaiVoices = map[string]openai.AudioSpeechNewParamsVoice{
	"Kore":    openai.AudioSpeechNewParamsVoiceCoral,
	"Puck":    openai.AudioSpeechNewParamsVoiceEcho,
	"Charon":  openai.AudioSpeechNewParamsVoiceAsh,
	"Fenrir":  openai.AudioSpeechNewParamsVoiceAlloy,
	"Aoede":   openai.AudioSpeechNewParamsVoiceShimmer,
	"default": openai.AudioSpeechNewParamsVoiceAlloy,
}

// OpenAISpeechService is the secondary speech vendor: MP3 TTS and Whisper
// transcription.
type OpenAISpeechService struct {
	client *openai.Client
}

func NewOpenAISpeechService(apiKey string) *OpenAISpeechService {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAISpeechService{client: &client}
}

// Name implements SpeechVendor.
func (s *OpenAISpeechService) Name() string { return "openai" }

// Speak streams MP3 audio in fixed-size frames read off the vendor
// response body.
func (s *OpenAISpeechService) Speak(ctx context.Context, text, voice, language string) (<-chan SpeechFrame, error) {
	v, ok := openaiVoices[voice]
	if !ok {
		v = openaiVoices["default"]
	}
	resp, err := s.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          openai.SpeechModelTTS1,
		Input:          text,
		Voice:          v,
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return nil, E(KindUpstreamUnavailable, "openai tts failed", err)
	}

	frames := make(chan SpeechFrame, 4)
	go func() {
		defer close(frames)
		defer resp.Body.Close()
		buf := make([]byte, 16*1024)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				frame := make([]byte, n)
				copy(frame, buf[:n])
				select {
				case frames <- SpeechFrame{Data: frame}:
				case <-ctx.Done():
					return
				}
			}
			if err == io.EOF {
				return
			}
			if err != nil {
				frames <- SpeechFrame{Err: E(KindUpstreamUnavailable, "openai tts stream broke", err)}
				return
			}
		}
	}()
	return frames, nil
}

// Transcribe runs Whisper over the recording. Used when the primary
// provider cannot transcribe.
func (s *OpenAISpeechService) Transcribe(ctx context.Context, data []byte, mime, languageHint string) (string, Usage, error) {
	filename := "audio." + extensionFor(mime)
	resp, err := s.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model: openai.AudioModelWhisper1,
		File:  openai.File(bytes.NewReader(data), filename, mime),
	})
	if err != nil {
		return "", Usage{}, E(KindUpstreamUnavailable, "openai transcription failed", err)
	}
	return strings.TrimSpace(resp.Text), Usage{}, nil
}

func extensionFor(mime string) string {
	switch {
	case strings.Contains(mime, "webm"):
		return "webm"
	case strings.Contains(mime, "wav"):
		return "wav"
	case strings.Contains(mime, "ogg"):
		return "ogg"
	case strings.Contains(mime, "mp4") || strings.Contains(mime, "m4a"):
		return "m4a"
	default:
		return "mp3"
	}
}
