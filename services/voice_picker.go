package services

import (
	"crypto/sha1"
	"encoding/binary"
	"strings"
)

// Stock interviewer voices, keyed by the names the vendors map from.
var interviewerVoices = []string{
	"Kore",
	"Puck",
	"Charon",
	"Fenrir",
	"Aoede",
}

// PickDeterministicVoice returns a stable voice for an interview so the
// interviewer sounds the same across requests and reconnects. The same
// interview id always maps to the same voice.
func PickDeterministicVoice(interviewID string) string {
	if interviewID == "" {
		return interviewerVoices[0]
	}
	h := sha1.New()
	h.Write([]byte(strings.ToLower(interviewID)))
	sum := h.Sum(nil)
	idx := binary.BigEndian.Uint16(sum) % uint16(len(interviewerVoices))
	return interviewerVoices[idx]
}
