package services

import (
	"encoding/binary"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamWriterChunksThenTrailer(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := NewStreamWriter(rec)

	require.NoError(t, sw.WriteChunk("Hello, "))
	require.NoError(t, sw.WriteChunk("candidate."))
	require.True(t, sw.WroteChunk())

	usage := Usage{InputTokens: 10, OutputTokens: 20}
	require.NoError(t, sw.WriteTrailer(Trailer{
		Usage:          &usage,
		NewTurnIDs:     []string{"t1", "t2"},
		QuestionNumber: 3,
	}))

	body := rec.Body.String()
	display, rest, found := strings.Cut(body, trailerSentinel)
	require.True(t, found)
	assert.Equal(t, "Hello, candidate.", display)
	require.True(t, strings.HasSuffix(rest, "\n"))

	var tr Trailer
	require.NoError(t, json.Unmarshal([]byte(rest), &tr))
	assert.Equal(t, usage, *tr.Usage)
	assert.Equal(t, []string{"t1", "t2"}, tr.NewTurnIDs)
	assert.Equal(t, 3, tr.QuestionNumber)
	assert.False(t, tr.IsInterviewComplete)

	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))
}

func TestStreamWriterEmptyChunkIsNotSent(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := NewStreamWriter(rec)

	require.NoError(t, sw.WriteChunk(""))
	assert.False(t, sw.WroteChunk())
	assert.Zero(t, rec.Body.Len())
}

func TestStreamWriterTrailerOnlyResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := NewStreamWriter(rec)

	require.NoError(t, sw.WriteTrailer(Trailer{IsInterviewComplete: true, QuestionNumber: 7}))

	body := rec.Body.String()
	require.True(t, strings.HasPrefix(body, trailerSentinel))

	var tr Trailer
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(body, trailerSentinel)), &tr))
	assert.True(t, tr.IsInterviewComplete)
	assert.Equal(t, 7, tr.QuestionNumber)
}

func TestFrameWriterFraming(t *testing.T) {
	rec := httptest.NewRecorder()
	fw := NewFrameWriter(rec)

	require.NoError(t, fw.WriteFrame([]byte("abc")))
	require.NoError(t, fw.WriteFrame(nil)) // ignored, never a terminator
	require.NoError(t, fw.WriteFrame([]byte("defgh")))
	require.NoError(t, fw.Terminate())
	require.True(t, fw.WroteFrame())

	buf := rec.Body.Bytes()

	readFrame := func() []byte {
		require.GreaterOrEqual(t, len(buf), 4)
		n := binary.BigEndian.Uint32(buf[:4])
		buf = buf[4:]
		require.GreaterOrEqual(t, len(buf), int(n))
		frame := buf[:n]
		buf = buf[n:]
		return frame
	}

	assert.Equal(t, []byte("abc"), readFrame())
	assert.Equal(t, []byte("defgh"), readFrame())
	assert.Empty(t, readFrame()) // terminator
	assert.Empty(t, buf)

	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
}

func TestFrameWriterTerminatorOnly(t *testing.T) {
	rec := httptest.NewRecorder()
	fw := NewFrameWriter(rec)

	require.NoError(t, fw.Terminate())
	assert.False(t, fw.WroteFrame())
	assert.Equal(t, []byte{0, 0, 0, 0}, rec.Body.Bytes())
}
