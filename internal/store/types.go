package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/mkobayashi/screenflow/internal/flow"
)

// Conversation is the persisted conversation row the engine reads and whose
// stage/status it advances.
type Conversation struct {
	ID       uuid.UUID   `json:"id"`
	TenantID uuid.UUID   `json:"tenant_id"`
	UserID   uuid.UUID   `json:"user_id"`
	JobID    uuid.UUID   `json:"job_id"`
	ResumeID uuid.UUID   `json:"resume_id"`
	Status   flow.Status `json:"status"`
	Stage    flow.Stage  `json:"stage"`

	// Denormalized job metadata for context building.
	JobTitle        string `json:"job_title"`
	JobDescription  string `json:"job_description,omitempty"`
	JobRequirements string `json:"job_requirements,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobQuestion is one HR-configured screening question on a job.
type JobQuestion struct {
	ID          uuid.UUID         `json:"id"`
	JobID       uuid.UUID         `json:"job_id"`
	Content     string            `json:"content"`
	Requirement string            `json:"requirement,omitempty"`
	Type        flow.QuestionType `json:"type"`
	SortOrder   int               `json:"sort_order"`
}

// QuestionTracking is one (conversation, question) row. Rows are created when
// a question set is initialized for a conversation and only ever change
// status afterwards; they are never deleted.
type QuestionTracking struct {
	ID             uuid.UUID           `json:"id"`
	ConversationID uuid.UUID           `json:"conversation_id"`
	QuestionID     uuid.UUID           `json:"question_id"`
	JobID          uuid.UUID           `json:"job_id"`
	ResumeID       uuid.UUID           `json:"resume_id"`
	Content        string              `json:"content"`
	Requirement    string              `json:"requirement,omitempty"`
	Type           flow.QuestionType   `json:"type"`
	Status         flow.QuestionStatus `json:"status"`
	SortOrder      int                 `json:"sort_order"`
}

// AdvanceParams identifies the conversation whose question list should move
// forward one step.
type AdvanceParams struct {
	TenantID       uuid.UUID
	ConversationID uuid.UUID
	JobID          uuid.UUID
	ResumeID       uuid.UUID
	UserID         uuid.UUID

	// Stage the caller observed when the run started. Greeting means the
	// question set may still need initializing; questioning means the current
	// ongoing question is done.
	Stage flow.Stage

	// CurrentTrackingID is the ongoing row to mark completed. Nil when the
	// question set has not been initialized yet.
	CurrentTrackingID uuid.UUID
}

// AdvanceResult reports what one atomic advancement step did.
type AdvanceResult struct {
	// Next is the question now marked ongoing, nil when the list is exhausted.
	Next *QuestionTracking
	// Exhausted means no pending question remained and the conversation stage
	// was moved to intention.
	Exhausted bool
	// Initialized means the tracking rows were created in this step
	// (greeting → questioning transition).
	Initialized bool
}
