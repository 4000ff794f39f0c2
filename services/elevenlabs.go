package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// elevenLabsVoices maps our voice names to ElevenLabs voice ids. Unknown
// names fall back to Adam.
var elevenLabsVoices = map[string]string{
	"Kore":    "EXAVITQu4vr4xnSDxMaL", // Sarah
	"Puck":    "pNInz6obpgDQGcFmaJgB", // Adam
	"Charon":  "onwK4e9ZLuTAKqWW03F9", // Daniel
	"Fenrir":  "TxGEqnHWrfWFTfGW9XjX", // Josh
	"Aoede":   "21m00Tcm4TlvDq8ikWAM", // Rachel
	"default": "pNInz6obpgDQGcFmaJgB",
}

// ElevenLabsService is the tertiary speech vendor.
type ElevenLabsService struct {
	apiKey string
	client *http.Client
}

type elevenLabsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

func NewElevenLabsService(apiKey string) *ElevenLabsService {
	return &ElevenLabsService{
		apiKey: apiKey,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Name implements SpeechVendor.
func (e *ElevenLabsService) Name() string { return "elevenlabs" }

// Speak streams MP3 audio from the ElevenLabs API in fixed-size frames.
func (e *ElevenLabsService) Speak(ctx context.Context, text, voice, language string) (<-chan SpeechFrame, error) {
	voiceID, ok := elevenLabsVoices[voice]
	if !ok {
		voiceID = elevenLabsVoices["default"]
	}
	request := elevenLabsRequest{
		Text:    text,
		ModelID: "eleven_turbo_v2", // Fast model for real-time conversation
		VoiceSettings: voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.5,
		},
	}
	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := "https://api.elevenlabs.io/v1/text-to-speech/" + voiceID + "/stream"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, E(KindUpstreamUnavailable, "elevenlabs request failed", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, E(KindRateLimited, "elevenlabs rate limited", fmt.Errorf("%s", body))
		}
		return nil, E(KindUpstreamUnavailable,
			fmt.Sprintf("elevenlabs API error: %d", resp.StatusCode), fmt.Errorf("%s", body))
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
				frames <- SpeechFrame{Err: E(KindUpstreamUnavailable, "elevenlabs stream broke", err)}
				return
			}
		}
	}()
	return frames, nil
}
