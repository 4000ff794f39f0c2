package services

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmalhotra98/intervue/backend/prompts"
	"github.com/jmalhotra98/intervue/backend/storage"
)

// firstFrameTimeout bounds how long one vendor may take to produce its
// first audio frame before the chain moves on.
const firstFrameTimeout = 15 * time.Second

// TTSService runs the layered synthesis chain with a content-addressed
// cache in front.
type TTSService struct {
	vendors []SpeechVendor
	blobs   storage.BlobStore
	cache   Cache
	catalog *prompts.Catalog
	signTTL time.Duration
}

func NewTTSService(vendors []SpeechVendor, blobs storage.BlobStore, cache Cache, catalog *prompts.Catalog, signTTL time.Duration) *TTSService {
	return &TTSService{
		vendors: vendors,
		blobs:   blobs,
		cache:   cache,
		catalog: catalog,
		signTTL: signTTL,
	}
}

// CacheKey derives the blob key for one synthesis request. The prompts
// version is mixed in so prompt edits never serve stale audio.
func (t *TTSService) CacheKey(text, language, voice string) string {
	return "tts/" + storage.ContentKey(text, language, voice, t.catalog.Version())
}

// signedURL returns a signed link for key, reusing a recently signed one.
func (t *TTSService) signedURL(ctx context.Context, key string) (string, error) {
	if url, ok, _ := t.cache.Get(ctx, cacheNSSignedURL+key); ok {
		return url, nil
	}
	url, err := t.blobs.Sign(ctx, key, t.signTTL)
	if err != nil {
		return "", err
	}
	// Cached for half the signing TTL so handed-out links stay usable.
	if err := t.cache.Set(ctx, cacheNSSignedURL+key, url, t.signTTL/2); err != nil {
		slog.Warn("signed url cache write failed", "error", err)
	}
	return url, nil
}

// cacheHit returns the signed URL when the synthesis is already stored.
func (t *TTSService) cacheHit(ctx context.Context, key string) (string, bool) {
	info, err := t.blobs.Head(ctx, key)
	if err != nil || !info.Exists {
		return "", false
	}
	url, err := t.signedURL(ctx, key)
	if err != nil {
		return "", false
	}
	return url, true
}

// speakFirstVendor walks the chain until a vendor produces its first
// frame, then returns that vendor's stream with the first frame prepended.
func (t *TTSService) speakFirstVendor(ctx context.Context, text, voice, language string) (<-chan SpeechFrame, string, error) {
	var lastErr error
	for _, vendor := range t.vendors {
		frames, err := vendor.Speak(ctx, text, voice, language)
		if err != nil {
			slog.Warn("tts vendor refused", "vendor", vendor.Name(), "error", err)
			lastErr = err
			continue
		}
		select {
		case first, ok := <-frames:
			if !ok || first.Err != nil {
				if first.Err != nil {
					lastErr = first.Err
				}
				slog.Warn("tts vendor failed before first frame", "vendor", vendor.Name(), "error", lastErr)
				continue
			}
			out := make(chan SpeechFrame, 4)
			go func() {
				defer close(out)
				// Sends race the caller abandoning the stream, so every
				// one is guarded or the goroutine never exits.
				select {
				case out <- first:
				case <-ctx.Done():
					return
				}
				for f := range frames {
					select {
					case out <- f:
					case <-ctx.Done():
						return
					}
				}
			}()
			return out, vendor.Name(), nil
		case <-time.After(firstFrameTimeout):
			slog.Warn("tts vendor timed out before first frame", "vendor", vendor.Name())
			lastErr = E(KindUpstreamUnavailable, "tts first frame timeout", nil)
		case <-ctx.Done():
			return nil, "", E(KindCancelled, "client gone", ctx.Err())
		}
	}
	if lastErr == nil {
		lastErr = E(KindUpstreamUnavailable, "no tts vendors configured", nil)
	}
	return nil, "", lastErr
}

// StreamSpeech serves /ai/tts-stream: a cache hit answers with JSON, a
// miss streams length-prefixed frames while teeing bytes for the cache.
// When every vendor fails before the first frame, the response is an empty
// frame stream whose trailer tells the client to fall back locally.
func (t *TTSService) StreamSpeech(ctx context.Context, w http.ResponseWriter, r *http.Request, text, language, voice string) error {
	key := t.CacheKey(text, language, voice)
	if url, ok := t.cacheHit(ctx, key); ok {
		WriteJSON(w, http.StatusOK, map[string]string{"audioUrl": url})
		return nil
	}

	frames, vendorName, err := t.speakFirstVendor(ctx, text, voice, language)
	if err != nil {
		if KindOf(err) == KindCancelled {
			return err
		}
		// Empty stream plus fallback trailer; the client speaks locally.
		fw := NewFrameWriter(w)
		if err := fw.Terminate(); err != nil {
			return E(KindCancelled, "client gone", err)
		}
		trailer, _ := json.Marshal(map[string]string{"fallback": "client-local"})
		w.Write([]byte(trailerSentinel))
		w.Write(trailer)
		w.Write([]byte("\n"))
		return nil
	}

	fw := NewFrameWriter(w)
	var full bytes.Buffer
	for f := range frames {
		if f.Err != nil {
			// Mid-stream vendor failure: drop the connection, commit
			// nothing.
			slog.Error("tts stream broke mid-flight", "vendor", vendorName, "error", f.Err)
			return f.Err
		}
		full.Write(f.Data)
		if err := fw.WriteFrame(f.Data); err != nil {
			return E(KindCancelled, "client gone", err)
		}
	}
	if err := fw.Terminate(); err != nil {
		return E(KindCancelled, "client gone", err)
	}

	// Cache commits only after a clean finish.
	if err := t.blobs.Put(context.WithoutCancel(ctx), key, full.Bytes(), "audio/mpeg"); err != nil {
		slog.Warn("tts cache write failed", "key", key, "error", err)
	}
	return nil
}

// Synthesize serves /ai/tts: returns a signed URL on cache hit, otherwise
// synthesizes fully and returns the raw bytes for the legacy base64 body.
func (t *TTSService) Synthesize(ctx context.Context, text, language, voice string) (audioURL string, audio []byte, err error) {
	key := t.CacheKey(text, language, voice)
	if url, ok := t.cacheHit(ctx, key); ok {
		return url, nil, nil
	}

	frames, _, err := t.speakFirstVendor(ctx, text, voice, language)
	if err != nil {
		return "", nil, err
	}
	var full bytes.Buffer
	for f := range frames {
		if f.Err != nil {
			return "", nil, f.Err
		}
		full.Write(f.Data)
	}
	if err := t.blobs.Put(context.WithoutCancel(ctx), key, full.Bytes(), "audio/mpeg"); err != nil {
		slog.Warn("tts cache write failed", "key", key, "error", err)
	}
	return "", full.Bytes(), nil
}
