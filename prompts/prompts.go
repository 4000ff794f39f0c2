// Package prompts holds the system instructions for every model role.
// Prompts live server-side and are selected by name; clients only send an
// instruction type plus parameters. The catalog hash feeds the TTS cache
// key so edited prompts never serve stale audio.
package prompts

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Instruction names accepted by the chat endpoints.
const (
	NameCoordinator       = "coordinator"
	NameResumeCoordinator = "resumeCoordinator"
	NameInterviewer       = "interviewer"
	NameSetupVerifier     = "setupVerifier"
	NameFeedbackJudge     = "feedbackJudge"
	NameResumeAnalyzer    = "resumeAnalyzer"
)

var names = []string{
	NameCoordinator,
	NameResumeCoordinator,
	NameInterviewer,
	NameSetupVerifier,
	NameFeedbackJudge,
	NameResumeAnalyzer,
}

// InterviewerParams parameterizes the interviewer instruction. Role and
// JobDescription are alternatives; when JobDescription is set it replaces
// the role line.
type InterviewerParams struct {
	Role           string
	JobDescription string
	FocusArea      string
	Level          string
	Language       string
	HasResume      bool
	TotalQuestions int
}

// Catalog renders named instructions. When dir is non-empty, files named
// <name>.txt under it override the compiled texts and Reload picks up
// edits; production runs with dir empty and the compiled texts only.
type Catalog struct {
	dir string

	mu        sync.RWMutex
	overrides map[string]string
	version   string
}

// NewCatalog builds a catalog, loading overrides from dir when set.
func NewCatalog(dir string) (*Catalog, error) {
	c := &Catalog{dir: dir}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads override files and recomputes the catalog version. A
// no-op when the catalog has no override directory.
func (c *Catalog) Reload() error {
	overrides := make(map[string]string)
	if c.dir != "" {
		for _, name := range names {
			path := filepath.Join(c.dir, name+".txt")
			data, err := os.ReadFile(path)
			if os.IsNotExist(err) {
				continue
			}
			if err != nil {
				return fmt.Errorf("prompt override %s: %w", name, err)
			}
			overrides[name] = string(data)
		}
	}

	h := sha256.New()
	for _, name := range sortedNames() {
		h.Write([]byte(name))
		h.Write([]byte{0})
		if text, ok := overrides[name]; ok {
			h.Write([]byte(text))
		} else {
			h.Write([]byte(builtin[name]))
		}
		h.Write([]byte{0})
	}

	c.mu.Lock()
	c.overrides = overrides
	c.version = hex.EncodeToString(h.Sum(nil))[:12]
	c.mu.Unlock()
	return nil
}

func sortedNames() []string {
	s := append([]string(nil), names...)
	sort.Strings(s)
	return s
}

// Version identifies the current prompt texts. It changes whenever any
// prompt changes and is mixed into content-addressed cache keys.
func (c *Catalog) Version() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

func (c *Catalog) text(name string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if t, ok := c.overrides[name]; ok {
		return t
	}
	return builtin[name]
}

func render(text string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// Coordinator gathers role, focus area and level conversationally.
func (c *Catalog) Coordinator(language string) string {
	return render(c.text(NameCoordinator), map[string]string{
		"language": language,
	})
}

// ResumeCoordinator proposes roles from a resume analysis and emits the
// same READY envelope as Coordinator.
func (c *Catalog) ResumeCoordinator(language, suggestedRoles string) string {
	return render(c.text(NameResumeCoordinator), map[string]string{
		"language":       language,
		"suggestedRoles": suggestedRoles,
	})
}

// Interviewer runs the question/answer loop.
func (c *Catalog) Interviewer(p InterviewerParams) string {
	target := "The candidate is interviewing for the role of " + p.Role + "."
	if p.JobDescription != "" {
		target = "The candidate is interviewing for a position described by this job posting:\n" + p.JobDescription
	}
	resume := "No resume was provided."
	if p.HasResume {
		resume = "The candidate's resume is included earlier in this conversation; draw on it when relevant."
	}
	return render(c.text(NameInterviewer), map[string]string{
		"target":         target,
		"focusArea":      p.FocusArea,
		"level":          p.Level,
		"language":       p.Language,
		"resume":         resume,
		"totalQuestions": fmt.Sprintf("%d", p.TotalQuestions),
	})
}

// SetupVerifier extracts role, focus area and level from one message.
func (c *Catalog) SetupVerifier(language string) string {
	return render(c.text(NameSetupVerifier), map[string]string{
		"language": language,
	})
}

// FeedbackJudge scores a completed transcript.
func (c *Catalog) FeedbackJudge(language string) string {
	return render(c.text(NameFeedbackJudge), map[string]string{
		"language": language,
	})
}

// ResumeAnalyzer summarizes a resume and suggests roles.
func (c *Catalog) ResumeAnalyzer(language string) string {
	return render(c.text(NameResumeAnalyzer), map[string]string{
		"language": language,
	})
}
