package flow

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validContextArgs() (conversationID, tenantID, userID, jobID, resumeID uuid.UUID, position Position) {
	return uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New(),
		Position{ID: uuid.New(), Name: "Backend Engineer"}
}

func TestNewConversationContext_Valid(t *testing.T) {
	convID, tenantID, userID, jobID, resumeID, pos := validContextArgs()

	cc, err := NewConversationContext(convID, tenantID, userID, jobID, resumeID,
		StatusOngoing, StageGreeting, "hello there", nil, pos)
	require.NoError(t, err)
	assert.Equal(t, convID, cc.ConversationID)
	assert.Equal(t, "hello there", cc.LastCandidateMessage)
	assert.Equal(t, StageGreeting, cc.Stage)
}

func TestNewConversationContext_Invalid(t *testing.T) {
	convID, tenantID, userID, jobID, resumeID, pos := validContextArgs()

	tests := []struct {
		name string
		fn   func() (*ConversationContext, error)
	}{
		{"nil conversation id", func() (*ConversationContext, error) {
			return NewConversationContext(uuid.Nil, tenantID, userID, jobID, resumeID, StatusOngoing, StageGreeting, "hi", nil, pos)
		}},
		{"nil tenant id", func() (*ConversationContext, error) {
			return NewConversationContext(convID, uuid.Nil, userID, jobID, resumeID, StatusOngoing, StageGreeting, "hi", nil, pos)
		}},
		{"empty message", func() (*ConversationContext, error) {
			return NewConversationContext(convID, tenantID, userID, jobID, resumeID, StatusOngoing, StageGreeting, "   ", nil, pos)
		}},
		{"unknown stage", func() (*ConversationContext, error) {
			return NewConversationContext(convID, tenantID, userID, jobID, resumeID, StatusOngoing, Stage("limbo"), "hi", nil, pos)
		}},
		{"empty position name", func() (*ConversationContext, error) {
			return NewConversationContext(convID, tenantID, userID, jobID, resumeID, StatusOngoing, StageGreeting, "hi", nil, Position{})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.fn()
			assert.Error(t, err)
		})
	}
}

func TestConversationContext_WithKnowledge_LeavesOriginalUntouched(t *testing.T) {
	convID, tenantID, userID, jobID, resumeID, pos := validContextArgs()
	cc, err := NewConversationContext(convID, tenantID, userID, jobID, resumeID,
		StatusOngoing, StageGreeting, "is the role remote?", nil, pos)
	require.NoError(t, err)

	enriched := cc.WithKnowledge([]KnowledgePassage{{Question: "remote?", Answer: "hybrid"}})

	assert.Nil(t, cc.Knowledge)
	require.Len(t, enriched.Knowledge, 1)
	assert.Equal(t, "hybrid", enriched.Knowledge[0].Answer)
	assert.Equal(t, cc.ConversationID, enriched.ConversationID)
}

func TestConversationContext_WithCurrentQuestion_LeavesOriginalUntouched(t *testing.T) {
	convID, tenantID, userID, jobID, resumeID, pos := validContextArgs()
	cc, err := NewConversationContext(convID, tenantID, userID, jobID, resumeID,
		StatusOngoing, StageQuestioning, "three years", nil, pos)
	require.NoError(t, err)

	q := &CurrentQuestion{TrackingID: uuid.New(), Content: "Years of Go?"}
	enriched := cc.WithCurrentQuestion(q)

	assert.Nil(t, cc.Question)
	require.NotNil(t, enriched.Question)
	assert.Equal(t, "Years of Go?", enriched.Question.Content)
}

func TestConversationContext_TemplateVars(t *testing.T) {
	convID, tenantID, userID, jobID, resumeID, _ := validContextArgs()
	pos := Position{ID: jobID, Name: "Backend Engineer", Description: "Build services", Requirements: "Go"}
	history := []Message{
		{Sender: SenderRecruiter, Content: "Welcome!"},
		{Sender: SenderCandidate, Content: "Thanks"},
	}
	cc, err := NewConversationContext(convID, tenantID, userID, jobID, resumeID,
		StatusOngoing, StageGreeting, "what's the salary?", history, pos)
	require.NoError(t, err)

	vars := cc.TemplateVars()
	assert.Equal(t, "what's the salary?", vars["lastCandidateMessage"])
	assert.Equal(t, "Backend Engineer", vars["jobTitle"])
	assert.Equal(t, "Welcome!", vars["lastRecruiterMessage"])
	assert.Contains(t, vars["chatHistory"], "Recruiter: Welcome!")
	assert.Contains(t, vars["chatHistory"], "Candidate: Thanks")
	assert.Empty(t, vars["currentQuestion"])
	assert.Empty(t, vars["knowledge"])
}

func TestFormatHistory_Window(t *testing.T) {
	cc := &ConversationContext{}
	for i := 0; i < historyWindow+5; i++ {
		sender := SenderCandidate
		if i%2 == 0 {
			sender = SenderRecruiter
		}
		cc.History = append(cc.History, Message{Sender: sender, Content: string(rune('a' + i))})
	}

	rendered := cc.FormatHistory()
	assert.NotContains(t, rendered, ": a")
	assert.Contains(t, rendered, string(rune('a'+historyWindow+4)))
}

func TestLastRecruiterMessage_None(t *testing.T) {
	cc := &ConversationContext{History: []Message{{Sender: SenderCandidate, Content: "hi"}}}
	assert.Empty(t, cc.LastRecruiterMessage())
}

func TestFormatKnowledge(t *testing.T) {
	cc := &ConversationContext{Knowledge: []KnowledgePassage{
		{Question: "remote?", Answer: "hybrid"},
		{Question: "salary?", Answer: "90-120k"},
	}}
	rendered := cc.FormatKnowledge()
	assert.Equal(t, "|remote?|hybrid|\n|salary?|90-120k|", rendered)
}
