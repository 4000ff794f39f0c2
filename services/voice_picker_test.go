package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPickDeterministicVoiceIsStable(t *testing.T) {
	id := "0d7e3c9a-9a4f-4a53-8f1e-2b8a5d4c6e71"
	first := PickDeterministicVoice(id)
	for range 10 {
		assert.Equal(t, first, PickDeterministicVoice(id))
	}
	assert.Contains(t, interviewerVoices, first)
}

func TestPickDeterministicVoiceIgnoresCase(t *testing.T) {
	assert.Equal(t,
		PickDeterministicVoice("ABC-DEF"),
		PickDeterministicVoice("abc-def"),
	)
}

func TestPickDeterministicVoiceEmptyID(t *testing.T) {
	assert.Equal(t, interviewerVoices[0], PickDeterministicVoice(""))
}

func TestPickDeterministicVoiceSpreadsAcrossVoices(t *testing.T) {
	seen := map[string]bool{}
	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}
	for _, id := range ids {
		seen[PickDeterministicVoice(id)] = true
	}
	assert.Greater(t, len(seen), 1)
}
