package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterviewerRendering(t *testing.T) {
	c, err := NewCatalog("")
	require.NoError(t, err)

	text := c.Interviewer(InterviewerParams{
		Role:           "Backend Engineer",
		FocusArea:      "Go",
		Level:          "Mid",
		Language:       "English",
		TotalQuestions: 7,
	})
	assert.Contains(t, text, "role of Backend Engineer")
	assert.Contains(t, text, "Focus area: Go")
	assert.Contains(t, text, "exactly 7 questions")
	assert.Contains(t, text, "No resume was provided")
	assert.NotContains(t, text, "{{")
}

func TestInterviewerJobDescriptionReplacesRole(t *testing.T) {
	c, err := NewCatalog("")
	require.NoError(t, err)

	text := c.Interviewer(InterviewerParams{
		JobDescription: "We need a Kafka expert.",
		FocusArea:      "Streaming",
		Level:          "Senior",
		Language:       "English",
		HasResume:      true,
		TotalQuestions: 5,
	})
	assert.Contains(t, text, "We need a Kafka expert.")
	assert.NotContains(t, text, "role of ")
	assert.Contains(t, text, "resume is included")
}

func TestCoordinatorLanguage(t *testing.T) {
	c, err := NewCatalog("")
	require.NoError(t, err)

	assert.Contains(t, c.Coordinator("Spanish"), "Speak Spanish.")
	assert.Contains(t, c.SetupVerifier("German"), "German")
	assert.Contains(t, c.FeedbackJudge("French"), "French")
}

func TestVersionStableAndSensitive(t *testing.T) {
	a, err := NewCatalog("")
	require.NoError(t, err)
	b, err := NewCatalog("")
	require.NoError(t, err)
	assert.Equal(t, a.Version(), b.Version())
	assert.Len(t, a.Version(), 12)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "interviewer.txt"), []byte("ask {{totalQuestions}} things"), 0o644))
	c, err := NewCatalog(dir)
	require.NoError(t, err)
	assert.NotEqual(t, a.Version(), c.Version())
}

func TestOverrideAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "coordinator.txt")
	require.NoError(t, os.WriteFile(path, []byte("v1 in {{language}}"), 0o644))

	c, err := NewCatalog(dir)
	require.NoError(t, err)
	assert.Equal(t, "v1 in English", c.Coordinator("English"))
	v1 := c.Version()

	require.NoError(t, os.WriteFile(path, []byte("v2 in {{language}}"), 0o644))
	require.NoError(t, c.Reload())
	assert.Equal(t, "v2 in English", c.Coordinator("English"))
	assert.NotEqual(t, v1, c.Version())

	// Other prompts keep their compiled text.
	assert.True(t, strings.Contains(c.FeedbackJudge("English"), "evaluator"))
}
