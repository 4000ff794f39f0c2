package services

import (
	"encoding/binary"
	"encoding/json"
	"net/http"
)

// trailerSentinel separates the display stream from the trailer JSON.
// Record separator doubled; never part of displayable UTF-8 text.
const trailerSentinel = "\x1E\x1E"

// Trailer is the metadata object closing a chat stream.
type Trailer struct {
	Usage               *Usage   `json:"usage,omitempty"`
	NewTurnIDs          []string `json:"newTurnIds,omitempty"`
	IsInterviewComplete bool     `json:"isInterviewComplete"`
	QuestionNumber      int      `json:"questionNumber"`
	Error               string   `json:"error,omitempty"`
	Fallback            string   `json:"fallback,omitempty"`
}

// StreamWriter writes a chat response body: raw UTF-8 chunks followed by
// one sentinel-prefixed trailer line.
type StreamWriter struct {
	w          http.ResponseWriter
	flusher    http.Flusher
	wroteChunk bool
}

// NewStreamWriter readies w for a long-lived streaming body.
func NewStreamWriter(w http.ResponseWriter) *StreamWriter {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	flusher, _ := w.(http.Flusher)
	return &StreamWriter{w: w, flusher: flusher}
}

// WriteChunk sends one piece of display text and flushes it out.
func (sw *StreamWriter) WriteChunk(text string) error {
	if text == "" {
		return nil
	}
	if _, err := sw.w.Write([]byte(text)); err != nil {
		return err
	}
	sw.wroteChunk = true
	sw.flush()
	return nil
}

// WroteChunk reports whether any display text has been sent. Errors before
// the first chunk become HTTP errors; after it, they ride in the trailer.
func (sw *StreamWriter) WroteChunk() bool { return sw.wroteChunk }

// WriteTrailer closes the stream with the sentinel-prefixed metadata line.
func (sw *StreamWriter) WriteTrailer(t Trailer) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return err
	}
	if _, err := sw.w.Write([]byte(trailerSentinel)); err != nil {
		return err
	}
	if _, err := sw.w.Write(payload); err != nil {
		return err
	}
	if _, err := sw.w.Write([]byte("\n")); err != nil {
		return err
	}
	sw.flush()
	return nil
}

func (sw *StreamWriter) flush() {
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
}

// FrameWriter writes the TTS framing: a big-endian uint32 length before
// each audio frame, with a zero-length frame as terminator.
type FrameWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	wrote   bool
}

func NewFrameWriter(w http.ResponseWriter) *FrameWriter {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	flusher, _ := w.(http.Flusher)
	return &FrameWriter{w: w, flusher: flusher}
}

// WriteFrame sends one audio frame. Zero-length input is ignored so a
// vendor cannot accidentally emit the terminator.
func (fw *FrameWriter) WriteFrame(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(data)))
	if _, err := fw.w.Write(prefix[:]); err != nil {
		return err
	}
	if _, err := fw.w.Write(data); err != nil {
		return err
	}
	fw.wrote = true
	if fw.flusher != nil {
		fw.flusher.Flush()
	}
	return nil
}

// WroteFrame reports whether any audio has been sent.
func (fw *FrameWriter) WroteFrame() bool { return fw.wrote }

// Terminate sends the zero-length closing frame.
func (fw *FrameWriter) Terminate() error {
	var prefix [4]byte
	if _, err := fw.w.Write(prefix[:]); err != nil {
		return err
	}
	if fw.flusher != nil {
		fw.flusher.Flush()
	}
	return nil
}
