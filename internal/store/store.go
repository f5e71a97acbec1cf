// Package store provides the persistence collaborator for the conversation
// engine: conversation snapshots, message history, job questions and the
// per-conversation question tracking rows, with the question-advancement step
// as a single atomic operation.
package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/mkobayashi/screenflow/internal/flow"
)

// ConversationStore reads and advances conversation state. The engine only
// ever moves stage forward and never resurrects an interrupted conversation;
// implementations enforce both.
type ConversationStore interface {
	GetConversation(ctx context.Context, tenantID, conversationID uuid.UUID) (*Conversation, error)
	UpdateStage(ctx context.Context, tenantID, conversationID uuid.UUID, stage flow.Stage) error
	UpdateStatus(ctx context.Context, tenantID, conversationID uuid.UUID, status flow.Status) error
	ListMessages(ctx context.Context, tenantID, conversationID uuid.UUID, limit int) ([]flow.Message, error)
	AppendMessage(ctx context.Context, tenantID, conversationID uuid.UUID, msg flow.Message) error
}

// QuestionStore reads job questions and walks a conversation's tracking rows.
//
// AdvanceQuestion is the one mutating entry point the question-stage nodes
// use. It performs "mark current completed, find next pending, mark it
// ongoing, advance the stage if exhausted" (and, from greeting, the initial
// tracking-row creation) as one all-or-nothing step, so a crash mid-sequence
// can never leave two rows ongoing or a completed row with no successor.
type QuestionStore interface {
	ListJobQuestions(ctx context.Context, tenantID, jobID uuid.UUID) ([]JobQuestion, error)
	ListTracking(ctx context.Context, tenantID, conversationID uuid.UUID) ([]QuestionTracking, error)
	OngoingQuestion(ctx context.Context, tenantID, conversationID uuid.UUID) (*QuestionTracking, error)
	AdvanceQuestion(ctx context.Context, p AdvanceParams) (*AdvanceResult, error)
}

// Store bundles the two collaborator views a fully wired engine needs.
type Store interface {
	ConversationStore
	QuestionStore
}
