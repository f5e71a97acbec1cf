package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkobayashi/screenflow/internal/flow"
	"github.com/mkobayashi/screenflow/internal/knowledge"
	"github.com/mkobayashi/screenflow/internal/llm"
	"github.com/mkobayashi/screenflow/internal/store"
)

// scriptScenes is a deterministic SceneClient: structured and free-text
// replies keyed by scene name, plus per-scene injected failures.
type scriptScenes struct {
	json map[string]map[string]any
	text map[string]string
	errs map[string]error
}

func newScriptScenes() *scriptScenes {
	return &scriptScenes{
		json: map[string]map[string]any{
			string(flow.NodeTransferIntent):      {"transfer": "no"},
			string(flow.NodeEmotion):             {"score": float64(0), "reason": "calm"},
			string(flow.NodeWillingness):         {"willing": "yes"},
			string(flow.NodeQuestionDetect):      {"is_question": "no", "question_type": ""},
			string(flow.NodeFallbackAnswer):      {"answer": "Let me check and get back to you."},
			string(flow.NodeRelevance):           {"relevance": "B"},
			string(flow.NodeRequirementMatch):    {"satisfied": "yes"},
			string(flow.NodeQuestionWillingness): {"willing": "yes"},
			string(flow.NodeHighEQ):              {"newReply": "Thanks so much for your time today!"},
		},
		text: map[string]string{
			string(flow.NodeKnowledgeAnswer): "The role is hybrid with two office days a week.",
			string(flow.NodeSmallTalk):       "Great to hear! Anything you'd like to know about the role?",
			string(flow.NodeResumeChat):      "Hi again! Happy to pick up where we left off.",
		},
		errs: map[string]error{},
	}
}

func (s *scriptScenes) CallScene(_ context.Context, scene string, _ map[string]string) (map[string]any, error) {
	if err := s.errs[scene]; err != nil {
		return nil, err
	}
	resp, ok := s.json[scene]
	if !ok {
		return nil, llm.NewTechnicalError(scene, llm.FailureBadOutput, errors.New("unscripted scene"))
	}
	return resp, nil
}

func (s *scriptScenes) CallSceneText(_ context.Context, scene string, _ map[string]string) (string, error) {
	if err := s.errs[scene]; err != nil {
		return "", err
	}
	text, ok := s.text[scene]
	if !ok {
		return "", llm.NewTechnicalError(scene, llm.FailureBadOutput, errors.New("unscripted scene"))
	}
	return text, nil
}

// harness is a fully wired engine over in-memory collaborators.
type harness struct {
	orch   *Orchestrator
	store  *store.MemStore
	scenes *scriptScenes
	exec   *flow.Executor

	tenantID uuid.UUID
	convID   uuid.UUID
	jobID    uuid.UUID
	userID   uuid.UUID
	resumeID uuid.UUID
}

func newHarness(t *testing.T, stage flow.Stage, questions []store.JobQuestion) *harness {
	t.Helper()

	h := &harness{
		scenes:   newScriptScenes(),
		store:    store.NewMemStore(),
		tenantID: uuid.New(),
		convID:   uuid.New(),
		jobID:    uuid.New(),
		userID:   uuid.New(),
		resumeID: uuid.New(),
	}

	h.store.SeedConversation(store.Conversation{
		ID:       h.convID,
		TenantID: h.tenantID,
		UserID:   h.userID,
		JobID:    h.jobID,
		ResumeID: h.resumeID,
		Status:   flow.StatusOngoing,
		Stage:    stage,
		JobTitle: "Backend Engineer",
	})
	for i := range questions {
		questions[i].JobID = h.jobID
	}
	h.store.SeedJobQuestions(h.jobID, questions)

	search := knowledge.NewMemSearcher()
	search.Seed(h.jobID, []flow.KnowledgePassage{
		{Question: "Is the role remote?", Answer: "Hybrid, two office days a week."},
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h.exec = flow.NewExecutor(logger)
	ns := NewNodeSet(h.scenes, h.store, search)
	h.orch = NewOrchestrator(h.exec, ns, h.store, logger)
	return h
}

func (h *harness) context(t *testing.T, message string) *flow.ConversationContext {
	t.Helper()
	conv, err := h.store.GetConversation(context.Background(), h.tenantID, h.convID)
	require.NoError(t, err)
	cc, err := flow.NewConversationContext(
		h.convID, h.tenantID, h.userID, h.jobID, h.resumeID,
		conv.Status, conv.Stage, message, nil,
		flow.Position{ID: h.jobID, Name: conv.JobTitle},
	)
	require.NoError(t, err)
	return cc
}

func (h *harness) conversation(t *testing.T) *store.Conversation {
	t.Helper()
	conv, err := h.store.GetConversation(context.Background(), h.tenantID, h.convID)
	require.NoError(t, err)
	return conv
}

func screeningQuestions() []store.JobQuestion {
	return []store.JobQuestion{
		{ID: uuid.New(), Content: "How many years of Go experience do you have?",
			Requirement: "at least 2 years", Type: flow.QuestionAssessment, SortOrder: 1},
		{ID: uuid.New(), Content: "When could you start?",
			Type: flow.QuestionInformational, SortOrder: 2},
	}
}

func TestExecute_GreetingQuestionGetsAnswerPlusFirstScriptedQuestion(t *testing.T) {
	h := newHarness(t, flow.StageGreeting, screeningQuestions())
	h.scenes.json[string(flow.NodeQuestionDetect)] = map[string]any{"is_question": "yes", "question_type": "job"}

	fr, err := h.orch.Execute(context.Background(), h.context(t, "sounds interesting, is the role remote?"))
	require.NoError(t, err)

	require.Equal(t, flow.ActionSendMessage, fr.Action)
	require.Len(t, fr.Messages, 2)
	assert.Contains(t, fr.Messages[0], "hybrid")
	assert.Equal(t, "How many years of Go experience do you have?", fr.Messages[1])

	conv := h.conversation(t)
	assert.Equal(t, flow.StageQuestioning, conv.Stage)
	ongoing, err := h.store.OngoingQuestion(context.Background(), h.tenantID, h.convID)
	require.NoError(t, err)
	require.NotNil(t, ongoing)
	assert.Equal(t, 1, ongoing.SortOrder)
}

func TestExecute_TransferRequestSuspends(t *testing.T) {
	h := newHarness(t, flow.StageGreeting, screeningQuestions())
	h.scenes.json[string(flow.NodeTransferIntent)] = map[string]any{"transfer": "yes"}

	fr, err := h.orch.Execute(context.Background(), h.context(t, "can I talk to a real person?"))
	require.NoError(t, err)
	assert.Equal(t, flow.ActionSuspend, fr.Action)
	assert.Equal(t, flow.NodeTransferIntent, fr.Node)
	assert.Empty(t, fr.Messages)

	assert.Equal(t, flow.StatusInterrupted, h.conversation(t).Status)
}

func TestExecute_TransferOutranksEmotion(t *testing.T) {
	h := newHarness(t, flow.StageGreeting, nil)
	h.scenes.json[string(flow.NodeTransferIntent)] = map[string]any{"transfer": "yes"}
	h.scenes.json[string(flow.NodeEmotion)] = map[string]any{"score": float64(3), "reason": "furious"}

	fr, err := h.orch.Execute(context.Background(), h.context(t, "get me a human, this is ridiculous"))
	require.NoError(t, err)
	assert.Equal(t, flow.NodeTransferIntent, fr.Node)
	assert.Equal(t, flow.StatusInterrupted, h.conversation(t).Status)
}

func TestExecute_SevereEmotionSuspends(t *testing.T) {
	h := newHarness(t, flow.StageQuestioning, nil)
	h.scenes.json[string(flow.NodeEmotion)] = map[string]any{"score": float64(3), "reason": "threatening"}

	fr, err := h.orch.Execute(context.Background(), h.context(t, "I'm calling my lawyer"))
	require.NoError(t, err)
	assert.Equal(t, flow.ActionSuspend, fr.Action)
	assert.Equal(t, flow.NodeEmotion, fr.Node)
	assert.Equal(t, flow.StatusInterrupted, h.conversation(t).Status)
}

func TestExecute_ModerateEmotionReplacesTurnWithSoothingReply(t *testing.T) {
	h := newHarness(t, flow.StageGreeting, screeningQuestions())
	h.scenes.json[string(flow.NodeEmotion)] = map[string]any{"score": float64(2), "reason": "frustrated"}

	fr, err := h.orch.Execute(context.Background(), h.context(t, "this is getting annoying"))
	require.NoError(t, err)
	require.Equal(t, flow.ActionSendMessage, fr.Action)
	assert.Equal(t, flow.NodeHighEQ, fr.Node)
	require.Len(t, fr.Messages, 1)

	// The detour replaces the whole turn; the question script never ran.
	tracking, err := h.store.ListTracking(context.Background(), h.tenantID, h.convID)
	require.NoError(t, err)
	assert.Empty(t, tracking)
	assert.Equal(t, flow.StatusOngoing, h.conversation(t).Status)
}

func TestExecute_QuestioningGoodAnswerAdvancesToNextQuestion(t *testing.T) {
	h := newHarness(t, flow.StageGreeting, screeningQuestions())

	// First turn initializes the question list and asks the first question.
	_, err := h.orch.Execute(context.Background(), h.context(t, "hello!"))
	require.NoError(t, err)
	require.Equal(t, flow.StageQuestioning, h.conversation(t).Stage)

	fr, err := h.orch.Execute(context.Background(), h.context(t, "about five years"))
	require.NoError(t, err)
	require.Equal(t, flow.ActionSendMessage, fr.Action)
	require.Len(t, fr.Messages, 1)
	assert.Equal(t, "When could you start?", fr.Messages[0])

	tracking, err := h.store.ListTracking(context.Background(), h.tenantID, h.convID)
	require.NoError(t, err)
	require.Len(t, tracking, 2)
	assert.Equal(t, flow.QuestionCompleted, tracking[0].Status)
	assert.Equal(t, flow.QuestionOngoing, tracking[1].Status)
}

func TestExecute_LastQuestionExhaustsListAndMovesToIntention(t *testing.T) {
	h := newHarness(t, flow.StageGreeting, screeningQuestions()[:1])

	_, err := h.orch.Execute(context.Background(), h.context(t, "hello!"))
	require.NoError(t, err)

	fr, err := h.orch.Execute(context.Background(), h.context(t, "about five years"))
	require.NoError(t, err)

	// Nothing left to ask: the response group's reply carries the turn.
	require.Equal(t, flow.ActionSendMessage, fr.Action)
	require.Len(t, fr.Messages, 1)
	assert.Equal(t, flow.NodeSmallTalk, fr.Node)

	assert.Equal(t, flow.StageIntention, h.conversation(t).Stage)
}

func TestExecute_IrrelevantAnswerSuspends(t *testing.T) {
	h := newHarness(t, flow.StageGreeting, screeningQuestions())
	_, err := h.orch.Execute(context.Background(), h.context(t, "hello!"))
	require.NoError(t, err)

	h.scenes.json[string(flow.NodeRelevance)] = map[string]any{"relevance": "A"}
	fr, err := h.orch.Execute(context.Background(), h.context(t, "I won't answer that"))
	require.NoError(t, err)
	assert.Equal(t, flow.ActionSuspend, fr.Action)
	assert.Equal(t, flow.StatusInterrupted, h.conversation(t).Status)
}

func TestExecute_UnwillingCandidateGetsClosing(t *testing.T) {
	h := newHarness(t, flow.StageGreeting, nil)
	h.scenes.json[string(flow.NodeWillingness)] = map[string]any{"willing": "no"}

	fr, err := h.orch.Execute(context.Background(), h.context(t, "not interested, please stop"))
	require.NoError(t, err)
	require.Equal(t, flow.ActionSendMessage, fr.Action)
	assert.Equal(t, flow.NodeHighEQ, fr.Node)
}

func TestExecute_UnwillingOnInformationalQuestionSuspends(t *testing.T) {
	h := newHarness(t, flow.StageGreeting, screeningQuestions()[1:])

	// First turn initializes the list and asks the informational question.
	_, err := h.orch.Execute(context.Background(), h.context(t, "hello!"))
	require.NoError(t, err)
	require.Equal(t, flow.StageQuestioning, h.conversation(t).Stage)

	h.scenes.json[string(flow.NodeQuestionWillingness)] = map[string]any{"willing": "no"}
	fr, err := h.orch.Execute(context.Background(), h.context(t, "I'd rather not say"))
	require.NoError(t, err)

	assert.Equal(t, flow.ActionSuspend, fr.Action)
	assert.Equal(t, flow.NodeQuestionWillingness, fr.Node)
	assert.Contains(t, fr.Reason, "unwilling")
	assert.Empty(t, fr.Messages)
	assert.Equal(t, flow.StatusInterrupted, h.conversation(t).Status)

	// The question stays open for the human who picks the conversation up.
	ongoing, err := h.store.OngoingQuestion(context.Background(), h.tenantID, h.convID)
	require.NoError(t, err)
	require.NotNil(t, ongoing)
	assert.Equal(t, flow.QuestionInformational, ongoing.Type)
}

func TestExecute_KnowledgeAnswerCarriesTurnWithoutQuestionScript(t *testing.T) {
	h := newHarness(t, flow.StageGreeting, nil)
	h.scenes.json[string(flow.NodeQuestionDetect)] = map[string]any{"is_question": "yes", "question_type": "job"}

	fr, err := h.orch.Execute(context.Background(), h.context(t, "is the role remote?"))
	require.NoError(t, err)

	// Nothing configured to ask: the grounded answer carries the turn alone.
	require.Equal(t, flow.ActionSendMessage, fr.Action)
	assert.Equal(t, flow.NodeKnowledgeAnswer, fr.Node)
	require.Len(t, fr.Messages, 1)
	assert.Contains(t, fr.Messages[0], "hybrid")
	assert.Contains(t, fr.Path, flow.NodeKnowledgeAnswer)

	assert.Equal(t, flow.StageGreeting, h.conversation(t).Stage)
	tracking, err := h.store.ListTracking(context.Background(), h.tenantID, h.convID)
	require.NoError(t, err)
	assert.Empty(t, tracking)
}

func TestExecute_TechnicalFailureFallsBackAndStillReplies(t *testing.T) {
	h := newHarness(t, flow.StageGreeting, nil)
	h.exec.MaxAttempts = 1
	h.scenes.errs[string(flow.NodeQuestionDetect)] = llm.NewTechnicalError(
		string(flow.NodeQuestionDetect), llm.FailureTimeout, context.DeadlineExceeded)

	fr, err := h.orch.Execute(context.Background(), h.context(t, "is the role remote?"))
	require.NoError(t, err)

	// The detector's fallback says "no question", so small talk carries the turn.
	require.Equal(t, flow.ActionSendMessage, fr.Action)
	assert.Equal(t, flow.NodeSmallTalk, fr.Node)
	require.Len(t, fr.Messages, 1)
}

func TestExecute_RejectsNonRunnableConversations(t *testing.T) {
	h := newHarness(t, flow.StageGreeting, nil)

	for _, status := range []flow.Status{flow.StatusInterrupted, flow.StatusEnded} {
		cc := h.context(t, "hello?")
		cc.Status = status
		_, err := h.orch.Execute(context.Background(), cc)
		require.ErrorIs(t, err, ErrNotRunnable, "status %s", status)
	}

	_, err := h.orch.Execute(context.Background(), nil)
	assert.Error(t, err)
}

func TestExecute_PathRecordsSpeculativeBranches(t *testing.T) {
	h := newHarness(t, flow.StageGreeting, nil)

	fr, err := h.orch.Execute(context.Background(), h.context(t, "doing well, thanks"))
	require.NoError(t, err)

	// Both prechecks and the discarded knowledge branch show up in the path.
	assert.Contains(t, fr.Path, flow.NodeTransferIntent)
	assert.Contains(t, fr.Path, flow.NodeEmotion)
	assert.Contains(t, fr.Path, flow.NodeQuestionDetect)
	assert.Contains(t, fr.Path, flow.NodeKnowledgeAnswer)
	assert.Contains(t, fr.Path, flow.NodeSmallTalk)
}

func TestReengage(t *testing.T) {
	h := newHarness(t, flow.StageQuestioning, nil)

	fr, err := h.orch.Reengage(context.Background(), h.context(t, "reengage"))
	require.NoError(t, err)
	require.Equal(t, flow.ActionSendMessage, fr.Action)
	assert.Equal(t, flow.NodeResumeChat, fr.Node)

	cc := h.context(t, "reengage")
	cc.Status = flow.StatusEnded
	_, err = h.orch.Reengage(context.Background(), cc)
	assert.ErrorIs(t, err, ErrNotRunnable)
}

func TestReengage_InterruptedConversationAllowed(t *testing.T) {
	h := newHarness(t, flow.StageQuestioning, nil)
	cc := h.context(t, "reengage")
	cc.Status = flow.StatusInterrupted

	fr, err := h.orch.Reengage(context.Background(), cc)
	require.NoError(t, err)
	assert.Equal(t, flow.ActionSendMessage, fr.Action)
}
