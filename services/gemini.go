package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/googleapis/gax-go/v2/apierror"
	"github.com/kaptinlin/jsonrepair"
	"google.golang.org/genai"
)

const (
	// firstChunkTimeout bounds how long a streaming call may sit with no
	// output at all.
	firstChunkTimeout = 60 * time.Second

	// transcribeTimeout bounds one transcription vendor call.
	transcribeTimeout = 15 * time.Second
)

// GeminiService is the primary model provider: chat (streaming and
// one-shot structured JSON), audio-input inference, transcription and TTS
// through the Gemini API.
type GeminiService struct {
	client   *genai.Client
	model    string
	ttsModel string
}

func NewGeminiService(ctx context.Context, cfg ModelConfig, ttsModel string) (*GeminiService, error) {
	clientCfg := &genai.ClientConfig{APIKey: cfg.ProviderKey}
	if cfg.ProviderURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.ProviderURL
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiService{client: client, model: cfg.Name, ttsModel: ttsModel}, nil
}

// buildContents converts history plus the current message into genai
// contents. Audio input rides along as an inline blob on the final user
// content.
func buildContents(req ChatRequest) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, m := range req.History {
		var role genai.Role = genai.RoleUser
		if m.Role == "model" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Text, role))
	}

	parts := []*genai.Part{}
	if strings.TrimSpace(req.Message) != "" {
		parts = append(parts, &genai.Part{Text: req.Message})
	}
	if req.Audio != nil {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{MIMEType: req.Audio.MIME, Data: req.Audio.Data},
		})
	}
	if len(parts) == 0 {
		parts = append(parts, &genai.Part{Text: "[empty answer]"})
	}
	contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: parts})
	return contents
}

func buildConfig(req ChatRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = req.MaxOutputTokens
	}
	if req.Temperature != nil {
		cfg.Temperature = req.Temperature
	}
	if req.ResponseJSON {
		cfg.ResponseMIMEType = "application/json"
	}
	return cfg
}

func usageFrom(meta *genai.GenerateContentResponseUsageMetadata) Usage {
	if meta == nil {
		return Usage{}
	}
	return Usage{
		InputTokens:  int64(meta.PromptTokenCount),
		OutputTokens: int64(meta.CandidatesTokenCount),
	}
}

// classifyVendorErr maps a genai failure onto the service taxonomy.
func classifyVendorErr(err error) error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*apierror.APIError); ok {
		err = e.Unwrap()
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429") || strings.Contains(strings.ToLower(msg), "resource exhausted"):
		return E(KindRateLimited, "model rate limited", err)
	case strings.Contains(msg, "400") || strings.Contains(strings.ToLower(msg), "invalid argument"):
		return E(KindValidation, "model rejected input", err)
	case errors.Is(err, context.Canceled) || strings.Contains(msg, "context canceled"):
		return E(KindCancelled, "model call cancelled", err)
	default:
		return E(KindUpstreamUnavailable, "model unavailable", err)
	}
}

// ChatStream starts a streaming generation. Chunks arrive on the stream's
// channel; usage and the terminal error are available from Wait after the
// channel closes. No chunk within firstChunkTimeout aborts the call.
func (g *GeminiService) ChatStream(ctx context.Context, req ChatRequest) (*ChatStream, error) {
	contents := buildContents(req)
	cfg := buildConfig(req)

	stream := newChatStream()
	callCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer cancel()

		firstChunk := time.AfterFunc(firstChunkTimeout, cancel)
		gotChunk := false
		var usage Usage

		for resp, err := range g.client.Models.GenerateContentStream(callCtx, g.model, contents, cfg) {
			if err != nil {
				if !gotChunk && callCtx.Err() != nil && ctx.Err() == nil {
					stream.finish(usage, E(KindUpstreamUnavailable, "model produced no output in time", err))
					return
				}
				if ctx.Err() != nil {
					stream.finish(usage, E(KindCancelled, "model call cancelled", ctx.Err()))
					return
				}
				stream.finish(usage, classifyVendorErr(err))
				return
			}
			if resp.UsageMetadata != nil {
				usage = usageFrom(resp.UsageMetadata)
			}
			if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
				continue
			}
			var sb strings.Builder
			for _, p := range resp.Candidates[0].Content.Parts {
				if p.Text != "" {
					sb.WriteString(p.Text)
				}
			}
			if sb.Len() > 0 {
				if !gotChunk {
					gotChunk = true
					firstChunk.Stop()
				}
				select {
				case stream.ch <- sb.String():
				case <-ctx.Done():
					stream.finish(usage, E(KindCancelled, "client gone", ctx.Err()))
					return
				}
			}
			switch resp.Candidates[0].FinishReason {
			case genai.FinishReasonUnspecified, "":
				// keep pulling
			case genai.FinishReasonStop, genai.FinishReasonMaxTokens:
				stream.finish(usage, nil)
				return
			default:
				stream.finish(usage, E(KindUpstreamUnavailable,
					fmt.Sprintf("generation stopped: %s", resp.Candidates[0].FinishReason), nil))
				return
			}
		}
		if !gotChunk {
			stream.finish(usage, E(KindUpstreamUnavailable, "empty model stream", nil))
			return
		}
		stream.finish(usage, nil)
	}()

	return stream, nil
}

// ChatOneShotJSON requests a full structured response and validates it
// against schema, retrying the model once on a mismatch.
func (g *GeminiService) ChatOneShotJSON(ctx context.Context, req ChatRequest, schema *jsonschema.Schema, out any) (Usage, error) {
	contents := buildContents(req)
	cfg := buildConfig(req)
	cfg.ResponseMIMEType = "application/json"
	cfg.ResponseSchema = convertSchema(schema)

	var total Usage
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
		if err != nil {
			return total, classifyVendorErr(err)
		}
		total = total.Add(usageFrom(resp.UsageMetadata))

		text := resp.Text()
		if err := decodeValidated(text, schema, out); err != nil {
			lastErr = err
			slog.Warn("structured response mismatch, retrying", "attempt", attempt, "error", err)
			continue
		}
		return total, nil
	}
	return total, E(KindSchemaMismatch, "model response did not match schema", lastErr)
}

// decodeValidated unmarshals (repairing if needed) and validates against
// the schema.
func decodeValidated(text string, schema *jsonschema.Schema, out any) error {
	data := []byte(text)
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		repaired, rerr := jsonrepair.JSONRepair(text)
		if rerr != nil {
			return err
		}
		data = []byte(repaired)
		if err := json.Unmarshal(data, &generic); err != nil {
			return err
		}
	}
	if schema != nil {
		resolved, err := schema.Resolve(nil)
		if err != nil {
			return fmt.Errorf("resolve schema: %w", err)
		}
		if err := resolved.Validate(generic); err != nil {
			return fmt.Errorf("schema validation: %w", err)
		}
	}
	return json.Unmarshal(data, out)
}

// convertSchema maps the jsonschema representation onto the genai one.
// Only the subset the prompts use is carried over.
func convertSchema(schema *jsonschema.Schema) *genai.Schema {
	if schema == nil {
		return nil
	}
	enums := make([]string, 0, len(schema.Enum))
	for _, v := range schema.Enum {
		enums = append(enums, fmt.Sprintf("%v", v))
	}
	gs := genai.Schema{
		Format:      schema.Format,
		Description: schema.Description,
		Enum:        enums,
		Items:       convertSchema(schema.Items),
		Required:    schema.Required,
	}
	if n := len(schema.Properties); n > 0 {
		gs.Properties = make(map[string]*genai.Schema, n)
		for k, prop := range schema.Properties {
			gs.Properties[k] = convertSchema(prop)
		}
	}
	switch schema.Type {
	case "object":
		gs.Type = genai.TypeObject
	case "array":
		gs.Type = genai.TypeArray
	case "string":
		gs.Type = genai.TypeString
	case "number":
		gs.Type = genai.TypeNumber
	case "integer":
		gs.Type = genai.TypeInteger
	case "boolean":
		gs.Type = genai.TypeBoolean
	}
	return &gs
}

// inlineAudioLimit is the largest recording passed inline; bigger ones go
// through the file upload API once and are referenced by URI.
const inlineAudioLimit = 15 << 20

// Transcribe sends candidate audio for speech-to-text. An empty string
// means confirmed silence.
func (g *GeminiService) Transcribe(ctx context.Context, data []byte, mime, languageHint string) (string, Usage, error) {
	callCtx, cancel := context.WithTimeout(ctx, transcribeTimeout)
	defer cancel()

	instruction := "Transcribe this audio recording verbatim. Reply with only the transcript text. If the audio contains no intelligible speech, reply with an empty string."
	if languageHint != "" {
		instruction += " The speaker is using " + languageHint + "."
	}

	audioPart := &genai.Part{InlineData: &genai.Blob{MIMEType: mime, Data: data}}
	if len(data) > inlineAudioLimit {
		file, err := g.client.Files.Upload(ctx, bytes.NewReader(data), &genai.UploadFileConfig{MIMEType: mime})
		if err != nil {
			return "", Usage{}, classifyVendorErr(err)
		}
		audioPart = genai.NewPartFromURI(file.URI, file.MIMEType)
	}

	contents := []*genai.Content{{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			{Text: instruction},
			audioPart,
		},
	}}

	resp, err := g.client.Models.GenerateContent(callCtx, g.model, contents, &genai.GenerateContentConfig{})
	if err != nil {
		return "", Usage{}, classifyVendorErr(err)
	}
	return strings.TrimSpace(resp.Text()), usageFrom(resp.UsageMetadata), nil
}

// Name implements SpeechVendor.
func (g *GeminiService) Name() string { return "gemini" }

// Speak synthesizes text via the Gemini TTS model, streaming audio frames
// as they arrive.
func (g *GeminiService) Speak(ctx context.Context, text, voice, language string) (<-chan SpeechFrame, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	}
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}

	frames := make(chan SpeechFrame, 4)
	go func() {
		defer close(frames)
		for resp, err := range g.client.Models.GenerateContentStream(ctx, g.ttsModel, contents, cfg) {
			if err != nil {
				frames <- SpeechFrame{Err: classifyVendorErr(err)}
				return
			}
			if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
				continue
			}
			for _, p := range resp.Candidates[0].Content.Parts {
				if p.InlineData != nil && len(p.InlineData.Data) > 0 {
					select {
					case frames <- SpeechFrame{Data: p.InlineData.Data}:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return frames, nil
}
