package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkobayashi/screenflow/internal/engine"
	"github.com/mkobayashi/screenflow/internal/flow"
	"github.com/mkobayashi/screenflow/internal/knowledge"
	"github.com/mkobayashi/screenflow/internal/llm"
	"github.com/mkobayashi/screenflow/internal/store"
)

// stubScenes returns canned model replies so handler tests run the real
// orchestrator without a model.
type stubScenes struct{}

func (stubScenes) CallScene(_ context.Context, scene string, _ map[string]string) (map[string]any, error) {
	switch scene {
	case string(flow.NodeTransferIntent):
		return map[string]any{"transfer": "no"}, nil
	case string(flow.NodeEmotion):
		return map[string]any{"score": float64(0), "reason": "calm"}, nil
	case string(flow.NodeWillingness), string(flow.NodeQuestionWillingness):
		return map[string]any{"willing": "yes"}, nil
	case string(flow.NodeQuestionDetect):
		return map[string]any{"is_question": "no", "question_type": ""}, nil
	case string(flow.NodeFallbackAnswer):
		return map[string]any{"answer": "Let me check on that."}, nil
	case string(flow.NodeRelevance):
		return map[string]any{"relevance": "B"}, nil
	case string(flow.NodeRequirementMatch):
		return map[string]any{"satisfied": "yes"}, nil
	case string(flow.NodeHighEQ):
		return map[string]any{"newReply": "Thanks for your time!"}, nil
	}
	return nil, llm.NewTechnicalError(scene, llm.FailureBadOutput, errors.New("unscripted scene"))
}

func (stubScenes) CallSceneText(_ context.Context, scene string, _ map[string]string) (string, error) {
	switch scene {
	case string(flow.NodeSmallTalk):
		return "Lovely to hear from you!", nil
	case string(flow.NodeKnowledgeAnswer):
		return "The role is hybrid.", nil
	case string(flow.NodeResumeChat):
		return "Hi again! Shall we continue?", nil
	}
	return "", llm.NewTechnicalError(scene, llm.FailureBadOutput, errors.New("unscripted scene"))
}

type testServer struct {
	srv      *Server
	store    *store.MemStore
	jwt      *JWTService
	tenantID uuid.UUID
	userID   uuid.UUID
	convID   uuid.UUID
	jobID    uuid.UUID
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret-at-least-long-enough")

	ts := &testServer{
		store:    store.NewMemStore(),
		tenantID: uuid.New(),
		userID:   uuid.New(),
		convID:   uuid.New(),
		jobID:    uuid.New(),
	}
	ts.store.SeedConversation(store.Conversation{
		ID:       ts.convID,
		TenantID: ts.tenantID,
		UserID:   ts.userID,
		JobID:    ts.jobID,
		ResumeID: uuid.New(),
		Status:   flow.StatusOngoing,
		Stage:    flow.StageGreeting,
		JobTitle: "Backend Engineer",
	})
	ts.store.SeedJobQuestions(ts.jobID, []store.JobQuestion{
		{ID: uuid.New(), JobID: ts.jobID, Content: "How many years of Go experience do you have?",
			Requirement: "at least 2 years", Type: flow.QuestionAssessment, SortOrder: 1},
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	exec := flow.NewExecutor(logger)
	ns := engine.NewNodeSet(stubScenes{}, ts.store, knowledge.NewMemSearcher())
	orch := engine.NewOrchestrator(exec, ns, ts.store, logger)

	srv, err := New(Config{Port: 0, Store: ts.store, Orchestrator: orch, Logger: logger})
	require.NoError(t, err)
	ts.srv = srv
	ts.jwt = srv.jwtService
	return ts
}

func (ts *testServer) request(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "192.0.2.1:12345"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) token(t *testing.T) string {
	t.Helper()
	token, err := ts.jwt.GenerateToken(ts.tenantID, ts.userID)
	require.NoError(t, err)
	return token
}

func TestHealthEndpointIsPublic(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestConversationEndpointsRequireAuth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodGet, "/conversations/"+ts.convID.String(), nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.request(t, http.MethodGet, "/conversations/"+ts.convID.String(), nil, "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTokenWithoutTenantIsRejected(t *testing.T) {
	ts := newTestServer(t)

	token, err := ts.jwt.GenerateToken(uuid.Nil, ts.userID)
	require.NoError(t, err)

	rec := ts.request(t, http.MethodGet, "/conversations/"+ts.convID.String(), nil, token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetConversation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodGet, "/conversations/"+ts.convID.String(), nil, ts.token(t))
	require.Equal(t, http.StatusOK, rec.Code)

	var conv store.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conv))
	assert.Equal(t, ts.convID, conv.ID)
	assert.Equal(t, "Backend Engineer", conv.JobTitle)
}

func TestGetConversation_NotFound(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodGet, "/conversations/"+uuid.NewString(), nil, ts.token(t))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetConversation_InvalidID(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodGet, "/conversations/not-a-uuid", nil, ts.token(t))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetConversation_OtherTenantSeesNothing(t *testing.T) {
	ts := newTestServer(t)
	foreign, err := ts.jwt.GenerateToken(uuid.New(), uuid.New())
	require.NoError(t, err)

	rec := ts.request(t, http.MethodGet, "/conversations/"+ts.convID.String(), nil, foreign)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCandidateMessage_FullTurn(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodPost, "/conversations/"+ts.convID.String()+"/messages",
		map[string]string{"content": "hello, excited about this role!"}, ts.token(t))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp flowResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, flow.ActionSendMessage, resp.Action)
	require.NotEmpty(t, resp.Messages)
	assert.NotEmpty(t, resp.Path)

	// Both sides of the exchange were persisted.
	msgs, err := ts.store.ListMessages(context.Background(), ts.tenantID, ts.convID, historyLimit)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(msgs), 2)
	assert.Equal(t, flow.SenderCandidate, msgs[0].Sender)
	assert.Equal(t, "hello, excited about this role!", msgs[0].Content)
	assert.Equal(t, flow.SenderRecruiter, msgs[len(msgs)-1].Sender)
}

func TestCandidateMessage_ValidatesBody(t *testing.T) {
	ts := newTestServer(t)
	path := "/conversations/" + ts.convID.String() + "/messages"

	rec := ts.request(t, http.MethodPost, path, map[string]string{"content": ""}, ts.token(t))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte("{broken")))
	req.RemoteAddr = "192.0.2.1:12345"
	req.Header.Set("Authorization", "Bearer "+ts.token(t))
	raw := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestCandidateMessage_InterruptedConversationConflicts(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.store.UpdateStatus(context.Background(), ts.tenantID, ts.convID, flow.StatusInterrupted))

	rec := ts.request(t, http.MethodPost, "/conversations/"+ts.convID.String()+"/messages",
		map[string]string{"content": "hello?"}, ts.token(t))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestReengage(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodPost, "/conversations/"+ts.convID.String()+"/reengage", nil, ts.token(t))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp flowResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, flow.NodeResumeChat, resp.Node)
	require.Len(t, resp.Messages, 1)

	msgs, err := ts.store.ListMessages(context.Background(), ts.tenantID, ts.convID, historyLimit)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "reengage", msgs[0].Type)
}

func TestListMessagesAndQuestions(t *testing.T) {
	ts := newTestServer(t)
	token := ts.token(t)

	// One full turn populates both history and question tracking.
	rec := ts.request(t, http.MethodPost, "/conversations/"+ts.convID.String()+"/messages",
		map[string]string{"content": "hello!"}, token)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.request(t, http.MethodGet, "/conversations/"+ts.convID.String()+"/messages", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	var history struct {
		Messages []flow.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	assert.NotEmpty(t, history.Messages)

	rec = ts.request(t, http.MethodGet, "/conversations/"+ts.convID.String()+"/questions", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	var questions struct {
		Questions []store.QuestionTracking `json:"questions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &questions))
	require.Len(t, questions.Questions, 1)
	assert.Equal(t, flow.QuestionOngoing, questions.Questions[0].Status)
}

func TestCORSPreflights(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/conversations/"+ts.convID.String(), nil)
	req.RemoteAddr = "192.0.2.1:12345"
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}
