package services

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmalhotra98/intervue/backend/prompts"
	"github.com/jmalhotra98/intervue/backend/storage"
)

// fakeVendor plays a scripted frame sequence.
type fakeVendor struct {
	name   string
	frames []SpeechFrame
	refuse error
	calls  int
}

func (v *fakeVendor) Name() string { return v.name }

func (v *fakeVendor) Speak(ctx context.Context, text, voice, language string) (<-chan SpeechFrame, error) {
	v.calls++
	if v.refuse != nil {
		return nil, v.refuse
	}
	ch := make(chan SpeechFrame)
	go func() {
		defer close(ch)
		for _, f := range v.frames {
			select {
			case ch <- f:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func newTestTTS(t *testing.T, vendors ...SpeechVendor) (*TTSService, storage.BlobStore) {
	t.Helper()
	catalog, err := prompts.NewCatalog("")
	require.NoError(t, err)
	blobs := storage.NewMemStore()
	return NewTTSService(vendors, blobs, NewMemCache(), catalog, time.Hour), blobs
}

func readFrames(t *testing.T, body []byte) ([][]byte, []byte) {
	t.Helper()
	var frames [][]byte
	for {
		require.GreaterOrEqual(t, len(body), 4)
		n := binary.BigEndian.Uint32(body[:4])
		body = body[4:]
		if n == 0 {
			return frames, body
		}
		require.GreaterOrEqual(t, len(body), int(n))
		frames = append(frames, body[:n])
		body = body[n:]
	}
}

func TestStreamSpeechStreamsAndCaches(t *testing.T) {
	vendor := &fakeVendor{name: "a", frames: []SpeechFrame{
		{Data: []byte("aaa")},
		{Data: []byte("bbbb")},
	}}
	tts, blobs := newTestTTS(t, vendor)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/ai/tts-stream", nil)
	require.NoError(t, tts.StreamSpeech(req.Context(), rec, req, "hello", "English", "Kore"))

	frames, rest := readFrames(t, rec.Body.Bytes())
	assert.Equal(t, [][]byte{[]byte("aaa"), []byte("bbbb")}, frames)
	assert.Empty(t, rest)

	// A clean finish commits the full audio under the content key.
	data, err := blobs.Get(context.Background(), tts.CacheKey("hello", "English", "Kore"))
	require.NoError(t, err)
	assert.Equal(t, []byte("aaabbbb"), data)
}

func TestStreamSpeechCacheHitAnswersWithURL(t *testing.T) {
	vendor := &fakeVendor{name: "a", frames: []SpeechFrame{{Data: []byte("x")}}}
	tts, blobs := newTestTTS(t, vendor)

	key := tts.CacheKey("hello", "English", "Kore")
	require.NoError(t, blobs.Put(context.Background(), key, []byte("cached"), "audio/mpeg"))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/ai/tts-stream", nil)
	require.NoError(t, tts.StreamSpeech(req.Context(), rec, req, "hello", "English", "Kore"))

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["audioUrl"])
	assert.Zero(t, vendor.calls)
}

func TestStreamSpeechFallsToNextVendor(t *testing.T) {
	broken := &fakeVendor{name: "broken", refuse: errors.New("no quota")}
	emptyStream := &fakeVendor{name: "empty"} // closes without a frame
	good := &fakeVendor{name: "good", frames: []SpeechFrame{{Data: []byte("ok")}}}
	tts, _ := newTestTTS(t, broken, emptyStream, good)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/ai/tts-stream", nil)
	require.NoError(t, tts.StreamSpeech(req.Context(), rec, req, "hi", "English", "Kore"))

	frames, _ := readFrames(t, rec.Body.Bytes())
	assert.Equal(t, [][]byte{[]byte("ok")}, frames)
	assert.Equal(t, 1, broken.calls)
	assert.Equal(t, 1, emptyStream.calls)
	assert.Equal(t, 1, good.calls)
}

func TestStreamSpeechAllVendorsFail(t *testing.T) {
	a := &fakeVendor{name: "a", refuse: errors.New("down")}
	b := &fakeVendor{name: "b", frames: []SpeechFrame{{Err: errors.New("bad voice")}}}
	tts, blobs := newTestTTS(t, a, b)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/ai/tts-stream", nil)
	require.NoError(t, tts.StreamSpeech(req.Context(), rec, req, "hi", "English", "Kore"))

	// Empty frame stream, then the fallback trailer.
	frames, rest := readFrames(t, rec.Body.Bytes())
	assert.Empty(t, frames)
	trailer := string(rest)
	require.True(t, strings.HasPrefix(trailer, trailerSentinel))
	assert.JSONEq(t, `{"fallback":"client-local"}`, strings.TrimPrefix(strings.TrimSuffix(trailer, "\n"), trailerSentinel))

	// Nothing cached on failure.
	_, err := blobs.Get(context.Background(), tts.CacheKey("hi", "English", "Kore"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStreamSpeechMidStreamFailureCommitsNothing(t *testing.T) {
	vendor := &fakeVendor{name: "a", frames: []SpeechFrame{
		{Data: []byte("part")},
		{Err: errors.New("connection reset")},
	}}
	tts, blobs := newTestTTS(t, vendor)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/ai/tts-stream", nil)
	err := tts.StreamSpeech(req.Context(), rec, req, "hi", "English", "Kore")
	require.Error(t, err)

	_, err = blobs.Get(context.Background(), tts.CacheKey("hi", "English", "Kore"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStreamSpeechAbandonedStreamReleasesForwarder(t *testing.T) {
	long := make([]SpeechFrame, 50)
	for i := range long {
		long[i] = SpeechFrame{Data: []byte("chunk")}
	}
	vendor := &fakeVendor{name: "a", frames: long}
	tts, _ := newTestTTS(t, vendor)

	before := runtime.NumGoroutine()
	for i := 0; i < 10; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		out, _, err := tts.speakFirstVendor(ctx, "hi", "Kore", "English")
		require.NoError(t, err)
		// Reader takes one frame and walks away.
		<-out
		cancel()
	}

	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > before && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.LessOrEqual(t, runtime.NumGoroutine(), before)
}

func TestSynthesizeReturnsBytesOnMiss(t *testing.T) {
	vendor := &fakeVendor{name: "a", frames: []SpeechFrame{
		{Data: []byte("mp3")},
		{Data: []byte("data")},
	}}
	tts, _ := newTestTTS(t, vendor)

	url, audio, err := tts.Synthesize(context.Background(), "hello", "English", "Puck")
	require.NoError(t, err)
	assert.Empty(t, url)
	assert.Equal(t, []byte("mp3data"), audio)

	// Second call hits the just-written cache.
	url, audio, err = tts.Synthesize(context.Background(), "hello", "English", "Puck")
	require.NoError(t, err)
	assert.NotEmpty(t, url)
	assert.Nil(t, audio)
	assert.Equal(t, 1, vendor.calls)
}

func TestCacheKeyVariesByInputs(t *testing.T) {
	tts, _ := newTestTTS(t)
	base := tts.CacheKey("hello", "English", "Kore")
	assert.NotEqual(t, base, tts.CacheKey("hello!", "English", "Kore"))
	assert.NotEqual(t, base, tts.CacheKey("hello", "Spanish", "Kore"))
	assert.NotEqual(t, base, tts.CacheKey("hello", "English", "Puck"))
	assert.Equal(t, base, tts.CacheKey("hello", "English", "Kore"))
}
