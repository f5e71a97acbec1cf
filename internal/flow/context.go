package flow

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// historyWindow bounds how many messages are rendered into prompts.
const historyWindow = 10

// SenderCandidate and SenderRecruiter tag who authored a message.
const (
	SenderCandidate = "candidate"
	SenderRecruiter = "ai"
)

// Message is one entry in the conversation history.
type Message struct {
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Type      string    `json:"type,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Position carries the job metadata nodes render into prompts.
type Position struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Requirements string    `json:"requirements,omitempty"`
}

// KnowledgePassage is one grounding hit from the knowledge-base search.
type KnowledgePassage struct {
	Question string  `json:"question"`
	Answer   string  `json:"answer"`
	Score    float64 `json:"score,omitempty"`
}

// CurrentQuestion is the tracking row currently being discussed, if any.
type CurrentQuestion struct {
	TrackingID  uuid.UUID    `json:"tracking_id"`
	QuestionID  uuid.UUID    `json:"question_id"`
	Content     string       `json:"content"`
	Requirement string       `json:"requirement,omitempty"`
	Type        QuestionType `json:"type"`
}

// ConversationContext is the immutable per-run snapshot handed to every node.
// Nodes that need to inject derived data for a downstream call take a copy via
// WithKnowledge/WithCurrentQuestion; the shared value is never written to, which
// is what makes running nodes concurrently on it safe.
type ConversationContext struct {
	ConversationID uuid.UUID
	TenantID       uuid.UUID
	UserID         uuid.UUID
	JobID          uuid.UUID
	ResumeID       uuid.UUID

	Status Status
	Stage  Stage

	LastCandidateMessage   string
	LastCandidateMessageID uuid.UUID
	History                []Message

	Position Position

	Knowledge []KnowledgePassage
	Question  *CurrentQuestion
}

// NewConversationContext validates the snapshot the caller assembled from
// persisted state. The last candidate message must be non-empty: the engine
// only ever runs in response to an inbound message.
func NewConversationContext(conversationID, tenantID, userID, jobID, resumeID uuid.UUID, status Status, stage Stage, lastMessage string, history []Message, position Position) (*ConversationContext, error) {
	for name, id := range map[string]uuid.UUID{
		"conversation_id": conversationID,
		"tenant_id":       tenantID,
		"user_id":         userID,
		"job_id":          jobID,
		"resume_id":       resumeID,
	} {
		if id == uuid.Nil {
			return nil, fmt.Errorf("conversation context: %s must not be nil", name)
		}
	}
	if strings.TrimSpace(lastMessage) == "" {
		return nil, fmt.Errorf("conversation context: last candidate message must not be empty")
	}
	if stage.Order() < 0 {
		return nil, fmt.Errorf("conversation context: unknown stage %q", stage)
	}
	if position.Name == "" {
		return nil, fmt.Errorf("conversation context: position name must not be empty")
	}

	return &ConversationContext{
		ConversationID:       conversationID,
		TenantID:             tenantID,
		UserID:               userID,
		JobID:                jobID,
		ResumeID:             resumeID,
		Status:               status,
		Stage:                stage,
		LastCandidateMessage: lastMessage,
		History:              history,
		Position:             position,
	}, nil
}

// WithKnowledge returns a copy of the context with search results attached.
// The receiver is left untouched.
func (c *ConversationContext) WithKnowledge(passages []KnowledgePassage) *ConversationContext {
	cp := *c
	cp.Knowledge = passages
	return &cp
}

// WithCurrentQuestion returns a copy of the context with the active question
// attached. The receiver is left untouched.
func (c *ConversationContext) WithCurrentQuestion(q *CurrentQuestion) *ConversationContext {
	cp := *c
	cp.Question = q
	return &cp
}

// TemplateVars projects the context into the named variables prompt templates
// reference. Every scene draws from this one map.
func (c *ConversationContext) TemplateVars() map[string]string {
	questionContent := ""
	questionRequirement := ""
	if c.Question != nil {
		questionContent = c.Question.Content
		questionRequirement = c.Question.Requirement
	}
	return map[string]string{
		"lastCandidateMessage": c.LastCandidateMessage,
		"chatHistory":          c.FormatHistory(),
		"lastRecruiterMessage": c.LastRecruiterMessage(),
		"jobTitle":             c.Position.Name,
		"jobDescription":       c.Position.Description,
		"jobRequirement":       c.Position.Requirements,
		"currentQuestion":      questionContent,
		"questionRequirement":  questionRequirement,
		"knowledge":            c.FormatKnowledge(),
	}
}

// FormatHistory renders the most recent messages as a transcript, capped at
// historyWindow entries.
func (c *ConversationContext) FormatHistory() string {
	msgs := c.History
	if len(msgs) > historyWindow {
		msgs = msgs[len(msgs)-historyWindow:]
	}
	var sb strings.Builder
	for i, m := range msgs {
		if i > 0 {
			sb.WriteByte('\n')
		}
		role := "Recruiter"
		if m.Sender == SenderCandidate {
			role = "Candidate"
		}
		sb.WriteString(role)
		sb.WriteString(": ")
		sb.WriteString(m.Content)
	}
	return sb.String()
}

// LastRecruiterMessage returns the most recent recruiter-side message, or "".
func (c *ConversationContext) LastRecruiterMessage() string {
	for i := len(c.History) - 1; i >= 0; i-- {
		if c.History[i].Sender == SenderRecruiter {
			return c.History[i].Content
		}
	}
	return ""
}

// FormatKnowledge renders attached knowledge passages as a compact table.
func (c *ConversationContext) FormatKnowledge() string {
	if len(c.Knowledge) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, p := range c.Knowledge {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "|%s|%s|", p.Question, p.Answer)
	}
	return sb.String()
}
