package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmalhotra98/intervue/backend/models"
	"github.com/jmalhotra98/intervue/backend/prompts"
	"github.com/jmalhotra98/intervue/backend/repository"
	"github.com/jmalhotra98/intervue/backend/storage"
)

// fakeModelProvider streams a scripted reply.
type fakeModelProvider struct {
	chunks  []string
	usage   Usage
	err     error
	lastReq ChatRequest
	calls   int
}

func (f *fakeModelProvider) ChatStream(ctx context.Context, req ChatRequest) (*ChatStream, error) {
	f.lastReq = req
	f.calls++
	s := newChatStream()
	go func() {
		for _, c := range f.chunks {
			s.ch <- c
		}
		s.finish(f.usage, f.err)
	}()
	return s, nil
}

func (f *fakeModelProvider) ChatOneShotJSON(ctx context.Context, req ChatRequest, schema *jsonschema.Schema, out any) (Usage, error) {
	return f.usage, f.err
}

func (f *fakeModelProvider) Transcribe(ctx context.Context, data []byte, mime, languageHint string) (string, Usage, error) {
	return "", Usage{}, errors.New("not implemented")
}

// fakeStore holds one interview's conversation in memory.
type fakeStore struct {
	mu        sync.Mutex
	interview models.Interview
	turns     []models.Turn
	seq       int
	recs      []*models.AudioRecording
	tokensIn  int
	tokensOut int
}

func newFakeStore(iv models.Interview) *fakeStore {
	if iv.Status == "" {
		iv.Status = models.StatusInProgress
	}
	return &fakeStore{interview: iv}
}

func (s *fakeStore) GetInterview(_ context.Context, id, callerID string, isAdmin bool) (*models.Interview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != s.interview.ID {
		return nil, repository.ErrNotFound
	}
	if s.interview.UserID != callerID && !isAdmin {
		return nil, repository.ErrForbidden
	}
	iv := s.interview
	return &iv, nil
}

func (s *fakeStore) History(_ context.Context, interviewID string) ([]models.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Turn(nil), s.turns...), nil
}

func (s *fakeStore) AppendTurn(_ context.Context, interviewID, role, content string, opts repository.AppendOptions) (*models.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	turn := models.Turn{
		ID:          fmt.Sprintf("t%d", s.seq),
		InterviewID: interviewID,
		Seq:         s.seq,
		Role:        role,
		Content:     content,
		Seed:        opts.Seed,
		AudioKey:    opts.AudioKey,
	}
	s.turns = append(s.turns, turn)
	return &turn, nil
}

func (s *fakeStore) CountQuestions(_ context.Context, interviewID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.turns {
		if t.Role == models.RoleModel && !t.Seed {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) AttachAudioByQuestionIndex(_ context.Context, interviewID string, questionIndex int, rec *models.AudioRecording) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.InterviewID = interviewID
	rec.QuestionIndex = questionIndex
	s.recs = append(s.recs, rec)
	return nil
}

func (s *fakeStore) SetTurnTTSKey(_ context.Context, interviewID, turnID, key string) error {
	return nil
}

func (s *fakeStore) SetStatus(_ context.Context, id string, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interview.Status = status
	return nil
}

func (s *fakeStore) AddTokenUsage(_ context.Context, id string, inputTokens, outputTokens int, cost float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokensIn += inputTokens
	s.tokensOut += outputTokens
	return nil
}

func (s *fakeStore) AddDuration(_ context.Context, id string, seconds int) error {
	return nil
}

func (s *fakeStore) modelTurns() []models.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Turn
	for _, t := range s.turns {
		if t.Role == models.RoleModel && !t.Seed {
			out = append(out, t)
		}
	}
	return out
}

func (s *fakeStore) status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interview.Status
}

func newCoordinatorEngine(t *testing.T, provider ModelProvider) *Engine {
	t.Helper()
	catalog, err := prompts.NewCatalog("")
	require.NoError(t, err)
	cfg := &Config{Interview: InterviewConfig{DefaultTotalQuestions: 7}}
	return NewEngine(nil, provider, catalog, nil, NewMemCache(), nil, cfg)
}

func splitStream(t *testing.T, body string) (string, Trailer) {
	t.Helper()
	display, rest, found := strings.Cut(body, trailerSentinel)
	require.True(t, found, "response has no trailer: %q", body)
	var tr Trailer
	require.NoError(t, json.Unmarshal([]byte(rest), &tr))
	return display, tr
}

func TestCoordinatorStreamsEnvelopeVerbatim(t *testing.T) {
	reply := `{"message": "What role are you preparing for?", "READY": false}`
	provider := &fakeModelProvider{
		chunks: []string{reply[:20], reply[20:]},
		usage:  Usage{InputTokens: 5, OutputTokens: 9},
	}
	engine := newCoordinatorEngine(t, provider)

	rec := httptest.NewRecorder()
	err := engine.HandleChat(context.Background(), Principal{UserID: "u1"}, ChatInput{
		InstructionType: prompts.NameCoordinator,
		Message:         "hi",
	}, NewStreamWriter(rec))
	require.NoError(t, err)

	display, tr := splitStream(t, rec.Body.String())
	assert.Equal(t, reply, display)
	assert.Equal(t, Usage{InputTokens: 5, OutputTokens: 9}, *tr.Usage)
	assert.Empty(t, tr.Error)

	assert.True(t, provider.lastReq.ResponseJSON)
	assert.Contains(t, provider.lastReq.System, "READY")
}

func TestCoordinatorCarriesHistory(t *testing.T) {
	provider := &fakeModelProvider{chunks: []string{`{"message":"ok","READY":true}`}}
	engine := newCoordinatorEngine(t, provider)

	rec := httptest.NewRecorder()
	err := engine.HandleChat(context.Background(), Principal{}, ChatInput{
		InstructionType: prompts.NameSetupVerifier,
		Message:         "backend engineer, senior",
		History: []ChatMessage{
			{Role: models.RoleUser, Text: "hello"},
			{Role: models.RoleModel, Text: "what role?"},
		},
	}, NewStreamWriter(rec))
	require.NoError(t, err)

	assert.Len(t, provider.lastReq.History, 2)
	assert.Equal(t, "backend engineer, senior", provider.lastReq.Message)
}

func TestCoordinatorMidStreamErrorRidesInTrailer(t *testing.T) {
	provider := &fakeModelProvider{
		chunks: []string{"partial "},
		err:    E(KindUpstreamUnavailable, "model unavailable", nil),
	}
	engine := newCoordinatorEngine(t, provider)

	rec := httptest.NewRecorder()
	err := engine.HandleChat(context.Background(), Principal{}, ChatInput{
		InstructionType: prompts.NameCoordinator,
	}, NewStreamWriter(rec))
	require.NoError(t, err)

	display, tr := splitStream(t, rec.Body.String())
	assert.Equal(t, "partial ", display)
	assert.Equal(t, "model unavailable", tr.Error)
}

func TestCoordinatorPreStreamErrorSurfaces(t *testing.T) {
	provider := &fakeModelProvider{err: E(KindRateLimited, "quota exhausted", nil)}
	engine := newCoordinatorEngine(t, provider)

	rec := httptest.NewRecorder()
	err := engine.HandleChat(context.Background(), Principal{}, ChatInput{
		InstructionType: prompts.NameCoordinator,
	}, NewStreamWriter(rec))
	require.Error(t, err)
	assert.Equal(t, KindRateLimited, KindOf(err))
}

func TestHandleChatRejectsUnknownInstruction(t *testing.T) {
	engine := newCoordinatorEngine(t, &fakeModelProvider{})

	rec := httptest.NewRecorder()
	err := engine.HandleChat(context.Background(), Principal{}, ChatInput{
		InstructionType: "jailbreak",
	}, NewStreamWriter(rec))
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestHasResumeBootstrap(t *testing.T) {
	plain := []models.Turn{
		{Role: models.RoleUser, Content: "hi", Seed: true},
		{Role: models.RoleModel, Content: "welcome"},
	}
	assert.False(t, hasResumeBootstrap(plain))

	withResume := []models.Turn{
		{Role: models.RoleUser, Content: "Here is my resume:\n...", Seed: true},
		{Role: models.RoleModel, Content: "Noted.", Seed: true},
		{Role: models.RoleUser, Content: "hi", Seed: true},
	}
	assert.True(t, hasResumeBootstrap(withResume))
}

func TestHasCountedModelTurn(t *testing.T) {
	assert.False(t, hasCountedModelTurn(nil))
	assert.False(t, hasCountedModelTurn([]models.Turn{
		{Role: models.RoleModel, Seed: true},
		{Role: models.RoleUser},
	}))
	assert.True(t, hasCountedModelTurn([]models.Turn{
		{Role: models.RoleModel, Seed: true},
		{Role: models.RoleModel},
	}))
}

func newInterviewEngine(t *testing.T, store ConversationStore, provider ModelProvider) *Engine {
	t.Helper()
	catalog, err := prompts.NewCatalog("")
	require.NoError(t, err)
	cfg := &Config{Interview: InterviewConfig{DefaultTotalQuestions: 7}}
	return NewEngine(store, provider, catalog, storage.NewMemStore(), NewMemCache(), nil, cfg)
}

// seedConversation preloads the kickoff turn and the opening question.
func seedConversation(t *testing.T, store *fakeStore) {
	t.Helper()
	ctx := context.Background()
	_, err := store.AppendTurn(ctx, store.interview.ID, models.RoleUser, kickoffMessage, repository.AppendOptions{Seed: true})
	require.NoError(t, err)
	_, err = store.AppendTurn(ctx, store.interview.ID, models.RoleModel, "Welcome. First question?", repository.AppendOptions{})
	require.NoError(t, err)
}

func TestInterviewTurnServerCountTerminates(t *testing.T) {
	store := newFakeStore(models.Interview{ID: "iv-1", UserID: "u1", TotalQuestions: 2, Language: "English"})
	seedConversation(t, store)
	// The model does not claim completion; the server count reaching the
	// target does.
	provider := &fakeModelProvider{
		chunks: []string{`{"response": "Second question?", "isInterviewComplete": false}`},
		usage:  Usage{InputTokens: 100, OutputTokens: 40},
	}
	engine := newInterviewEngine(t, store, provider)

	rec := httptest.NewRecorder()
	err := engine.HandleChat(context.Background(), Principal{UserID: "u1"}, ChatInput{
		InterviewID: "iv-1",
		Message:     "my answer to question one",
	}, NewStreamWriter(rec))
	require.NoError(t, err)

	display, tr := splitStream(t, rec.Body.String())
	assert.Equal(t, "Second question?", display)
	assert.True(t, tr.IsInterviewComplete)
	assert.Equal(t, 2, tr.QuestionNumber)
	assert.Len(t, tr.NewTurnIDs, 2)

	questions := store.modelTurns()
	require.Len(t, questions, 2)
	assert.Equal(t, "Second question?", questions[1].Content)
	assert.Equal(t, models.StatusCompleted, store.status())
	assert.Equal(t, 100, store.tokensIn)
	assert.Equal(t, 40, store.tokensOut)
}

func TestInterviewTurnModelDeclaresCompletionEarly(t *testing.T) {
	store := newFakeStore(models.Interview{ID: "iv-1", UserID: "u1", TotalQuestions: 7, Language: "English"})
	seedConversation(t, store)
	provider := &fakeModelProvider{
		chunks: []string{`{"response": "That concludes our session.", "isInterviewComplete": true}`},
	}
	engine := newInterviewEngine(t, store, provider)

	rec := httptest.NewRecorder()
	err := engine.HandleChat(context.Background(), Principal{UserID: "u1"}, ChatInput{
		InterviewID: "iv-1",
		Message:     "answer",
	}, NewStreamWriter(rec))
	require.NoError(t, err)

	_, tr := splitStream(t, rec.Body.String())
	assert.True(t, tr.IsInterviewComplete)
	assert.Equal(t, 2, tr.QuestionNumber)
	assert.Equal(t, models.StatusCompleted, store.status())
}

func TestInterviewTurnDuplicateStartReplays(t *testing.T) {
	store := newFakeStore(models.Interview{ID: "iv-1", UserID: "u1", TotalQuestions: 3, Language: "English"})
	seedConversation(t, store)
	provider := &fakeModelProvider{}
	engine := newInterviewEngine(t, store, provider)

	rec := httptest.NewRecorder()
	err := engine.HandleChat(context.Background(), Principal{UserID: "u1"}, ChatInput{
		InterviewID: "iv-1",
	}, NewStreamWriter(rec))
	require.NoError(t, err)

	display, tr := splitStream(t, rec.Body.String())
	assert.Equal(t, "Welcome. First question?", display)
	assert.Equal(t, 1, tr.QuestionNumber)
	assert.False(t, tr.IsInterviewComplete)
	assert.Zero(t, provider.calls)
	assert.Len(t, store.modelTurns(), 1)
}

func TestInterviewTurnClientGoneDropsModelTurn(t *testing.T) {
	store := newFakeStore(models.Interview{ID: "iv-1", UserID: "u1", TotalQuestions: 3, Language: "English"})
	seedConversation(t, store)
	provider := &fakeModelProvider{
		chunks: []string{`{"response": "Next`, ` question?"}`},
	}
	engine := newInterviewEngine(t, store, provider)

	w := &brokenWriter{ResponseRecorder: httptest.NewRecorder()}
	err := engine.HandleChat(context.Background(), Principal{UserID: "u1"}, ChatInput{
		InterviewID: "iv-1",
		Message:     "my answer",
	}, NewStreamWriter(w))
	require.Error(t, err)
	assert.Equal(t, KindCancelled, KindOf(err))

	// The answer persisted; the half-streamed question did not.
	assert.Len(t, store.modelTurns(), 1)
	assert.Equal(t, models.StatusInProgress, store.status())
}

func TestInterviewTurnRetryAfterFailedStream(t *testing.T) {
	store := newFakeStore(models.Interview{ID: "iv-1", UserID: "u1", TotalQuestions: 3, Language: "English"})
	seedConversation(t, store)
	provider := &fakeModelProvider{err: E(KindUpstreamUnavailable, "model unavailable", nil)}
	engine := newInterviewEngine(t, store, provider)

	rec := httptest.NewRecorder()
	err := engine.HandleChat(context.Background(), Principal{UserID: "u1"}, ChatInput{
		InterviewID:   "iv-1",
		Message:       "answer one",
		InteractionID: "click-7",
	}, NewStreamWriter(rec))
	require.Error(t, err)

	// The failed attempt released its claim: the retry is processed fresh
	// and yields the next question, not a replay of the previous one.
	provider.err = nil
	provider.chunks = []string{`{"response": "Second question?"}`}
	rec = httptest.NewRecorder()
	err = engine.HandleChat(context.Background(), Principal{UserID: "u1"}, ChatInput{
		InterviewID:   "iv-1",
		Message:       "answer one",
		InteractionID: "click-7",
	}, NewStreamWriter(rec))
	require.NoError(t, err)

	display, tr := splitStream(t, rec.Body.String())
	assert.Equal(t, "Second question?", display)
	assert.Equal(t, 2, tr.QuestionNumber)
	assert.Equal(t, 2, provider.calls)

	// After a committed turn the same interactionId replays.
	rec = httptest.NewRecorder()
	err = engine.HandleChat(context.Background(), Principal{UserID: "u1"}, ChatInput{
		InterviewID:   "iv-1",
		Message:       "answer one",
		InteractionID: "click-7",
	}, NewStreamWriter(rec))
	require.NoError(t, err)
	display, _ = splitStream(t, rec.Body.String())
	assert.Equal(t, "Second question?", display)
	assert.Equal(t, 2, provider.calls)
	assert.Len(t, store.modelTurns(), 2)
}

func TestInterviewTurnAudioBeforeFirstQuestion(t *testing.T) {
	store := newFakeStore(models.Interview{ID: "iv-1", UserID: "u1", TotalQuestions: 3, Language: "English"})
	engine := newInterviewEngine(t, store, &fakeModelProvider{})

	rec := httptest.NewRecorder()
	err := engine.HandleChat(context.Background(), Principal{UserID: "u1"}, ChatInput{
		InterviewID: "iv-1",
		Audio:       &AudioInput{MIME: "audio/webm", Data: []byte("blob")},
	}, NewStreamWriter(rec))
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Empty(t, store.recs)
}

// brokenWriter fails every body write, like a peer that hung up.
type brokenWriter struct {
	*httptest.ResponseRecorder
}

func (w *brokenWriter) Write([]byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func TestToChatHistoryKeepsSeedTurns(t *testing.T) {
	turns := []models.Turn{
		{Role: models.RoleUser, Content: "resume", Seed: true},
		{Role: models.RoleModel, Content: "ack", Seed: true},
		{Role: models.RoleUser, Content: "answer"},
	}
	msgs := toChatHistory(turns)
	require.Len(t, msgs, 3)
	assert.Equal(t, "resume", msgs[0].Text)
	assert.Equal(t, models.RoleModel, msgs[1].Role)
}
