package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTSRequestNormalize(t *testing.T) {
	req := TTSRequestBody{Text: "hello"}
	require.NoError(t, req.normalize())
	assert.Equal(t, "English", req.Language)
	assert.Equal(t, interviewerVoices[0], req.Voice)
}

func TestTTSRequestNormalizeDerivesVoiceFromInterview(t *testing.T) {
	a := TTSRequestBody{Text: "hi", InterviewID: "iv-1"}
	b := TTSRequestBody{Text: "something else", InterviewID: "iv-1"}
	require.NoError(t, a.normalize())
	require.NoError(t, b.normalize())
	assert.Equal(t, a.Voice, b.Voice)
}

func TestTTSRequestNormalizeKeepsExplicitVoice(t *testing.T) {
	req := TTSRequestBody{Text: "hi", Voice: "Puck", InterviewID: "iv-1"}
	require.NoError(t, req.normalize())
	assert.Equal(t, "Puck", req.Voice)
}

func TestTTSRequestNormalizeRejectsEmptyText(t *testing.T) {
	req := TTSRequestBody{}
	err := req.normalize()
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestFeedbackPatchValidate(t *testing.T) {
	ok := FeedbackPatch{OverallScore: 80, CommunicationScore: 70, TechnicalScore: 90}
	require.NoError(t, ok.validate())

	tooHigh := ok
	tooHigh.OverallScore = 101
	assert.Equal(t, KindValidation, KindOf(tooHigh.validate()))

	negative := ok
	low := -1
	negative.ProblemSolvingScore = &low
	assert.Equal(t, KindValidation, KindOf(negative.validate()))
}

func TestFeedbackPatchToModel(t *testing.T) {
	domain := 55
	p := FeedbackPatch{
		OverallScore:       80,
		CommunicationScore: 70,
		TechnicalScore:     90,
		DomainScore:        &domain,
		Suggestion:         "practice system design",
	}
	fb := p.toModel("iv-1")
	assert.Equal(t, "iv-1", fb.InterviewID)
	assert.Equal(t, 80, fb.OverallScore)
	require.NotNil(t, fb.DomainScore)
	assert.Equal(t, 55, *fb.DomainScore)
	assert.Nil(t, fb.ProblemSolvingScore)
	// Absent lists serialize as [] rather than null.
	assert.NotNil(t, fb.Strengths)
	assert.NotNil(t, fb.Weaknesses)
}

func TestKeyBelongsTo(t *testing.T) {
	assert.True(t, keyBelongsTo("audio/iv-1/rec-2", "iv-1"))
	assert.False(t, keyBelongsTo("audio/iv-2/rec-2", "iv-1"))
	assert.False(t, keyBelongsTo("audio/iv-10/rec-2", "iv-1"))
	assert.False(t, keyBelongsTo("tts/abcdef", "iv-1"))
	assert.False(t, keyBelongsTo("audio/iv-1", "iv-1"))
	assert.False(t, keyBelongsTo("", "iv-1"))
}
