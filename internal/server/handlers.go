package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/mkobayashi/screenflow/internal/flow"
	"github.com/mkobayashi/screenflow/internal/server/middleware"
	"github.com/mkobayashi/screenflow/internal/store"
)

// historyLimit bounds how much history is loaded per turn.
const historyLimit = 50

// candidateMessageRequest is the body of POST /conversations/{id}/messages.
type candidateMessageRequest struct {
	Content string `json:"content" validate:"required,min=1,max=4000"`
}

// flowResponse is the wire shape of one processed turn.
type flowResponse struct {
	Action    flow.Action     `json:"action"`
	Node      flow.NodeName   `json:"node,omitempty"`
	Messages  []string        `json:"messages,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Data      map[string]any  `json:"data,omitempty"`
	Path      []flow.NodeName `json:"path"`
	ElapsedMS float64         `json:"elapsed_ms"`
}

// handleCandidateMessage runs one inbound candidate message through the
// engine and persists both sides of the exchange.
func (s *Server) handleCandidateMessage(w http.ResponseWriter, r *http.Request) {
	tenantID, conversationID, ok := s.requestScope(w, r)
	if !ok {
		return
	}

	var req candidateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, (&ErrValidation{Field: "content", Message: "must be 1-4000 characters"}).Error())
		return
	}

	cc, err := s.buildContext(r.Context(), tenantID, conversationID, req.Content)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	inbound := flow.Message{Sender: flow.SenderCandidate, Content: req.Content}
	if err := s.store.AppendMessage(r.Context(), tenantID, conversationID, inbound); err != nil {
		s.logger.Error("append_inbound_failed", "conversation_id", conversationID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to record message")
		return
	}

	result, err := s.orchestrator.Execute(r.Context(), cc)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	for _, msg := range result.Messages {
		outbound := flow.Message{Sender: flow.SenderRecruiter, Content: msg}
		if err := s.store.AppendMessage(r.Context(), tenantID, conversationID, outbound); err != nil {
			s.logger.Error("append_outbound_failed", "conversation_id", conversationID, "error", err)
		}
	}

	s.jsonResponse(w, http.StatusOK, toFlowResponse(result))
}

// handleReengage produces and persists a re-engagement opener for a quiet
// conversation.
func (s *Server) handleReengage(w http.ResponseWriter, r *http.Request) {
	tenantID, conversationID, ok := s.requestScope(w, r)
	if !ok {
		return
	}

	conv, err := s.loadConversation(r.Context(), tenantID, conversationID)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	history, err := s.store.ListMessages(r.Context(), tenantID, conversationID, historyLimit)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	cc := &flow.ConversationContext{
		ConversationID: conv.ID,
		TenantID:       conv.TenantID,
		UserID:         conv.UserID,
		JobID:          conv.JobID,
		ResumeID:       conv.ResumeID,
		Status:         conv.Status,
		Stage:          conv.Stage,
		History:        history,
		Position: flow.Position{
			ID:           conv.JobID,
			Name:         conv.JobTitle,
			Description:  conv.JobDescription,
			Requirements: conv.JobRequirements,
		},
	}

	result, err := s.orchestrator.Reengage(r.Context(), cc)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	for _, msg := range result.Messages {
		outbound := flow.Message{Sender: flow.SenderRecruiter, Content: msg, Type: "reengage"}
		if err := s.store.AppendMessage(r.Context(), tenantID, conversationID, outbound); err != nil {
			s.logger.Error("append_outbound_failed", "conversation_id", conversationID, "error", err)
		}
	}

	s.jsonResponse(w, http.StatusOK, toFlowResponse(result))
}

// handleGetConversation returns the conversation row.
func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	tenantID, conversationID, ok := s.requestScope(w, r)
	if !ok {
		return
	}
	conv, err := s.loadConversation(r.Context(), tenantID, conversationID)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, conv)
}

// handleListMessages returns the conversation history in send order.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	tenantID, conversationID, ok := s.requestScope(w, r)
	if !ok {
		return
	}
	msgs, err := s.store.ListMessages(r.Context(), tenantID, conversationID, historyLimit)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"messages": msgs})
}

// handleListQuestions returns the question tracking rows in ask order.
func (s *Server) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	tenantID, conversationID, ok := s.requestScope(w, r)
	if !ok {
		return
	}
	tracked, err := s.store.ListTracking(r.Context(), tenantID, conversationID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "failed to load question tracking")
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"questions": tracked})
}

// requestScope extracts the tenant from the token and the conversation ID
// from the path. Writes the error response itself on failure.
func (s *Server) requestScope(w http.ResponseWriter, r *http.Request) (tenantID, conversationID uuid.UUID, ok bool) {
	tenantID, err := middleware.GetTenantID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return uuid.Nil, uuid.Nil, false
	}
	conversationID, err = uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid conversation id")
		return uuid.Nil, uuid.Nil, false
	}
	return tenantID, conversationID, true
}

// loadConversation fetches the conversation or a typed not-found error.
func (s *Server) loadConversation(ctx context.Context, tenantID, conversationID uuid.UUID) (*store.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, tenantID, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, &ErrConversationNotFound{ConversationID: conversationID}
	}
	return conv, nil
}

// buildContext assembles the immutable per-run snapshot from persisted state.
func (s *Server) buildContext(ctx context.Context, tenantID, conversationID uuid.UUID, content string) (*flow.ConversationContext, error) {
	conv, err := s.loadConversation(ctx, tenantID, conversationID)
	if err != nil {
		return nil, err
	}

	history, err := s.store.ListMessages(ctx, tenantID, conversationID, historyLimit)
	if err != nil {
		return nil, err
	}

	return flow.NewConversationContext(
		conv.ID, conv.TenantID, conv.UserID, conv.JobID, conv.ResumeID,
		conv.Status, conv.Stage,
		content, history,
		flow.Position{
			ID:           conv.JobID,
			Name:         conv.JobTitle,
			Description:  conv.JobDescription,
			Requirements: conv.JobRequirements,
		},
	)
}

func toFlowResponse(fr *flow.FlowResult) flowResponse {
	return flowResponse{
		Action:    fr.Action,
		Node:      fr.Node,
		Messages:  fr.Messages,
		Reason:    fr.Reason,
		Data:      fr.Data,
		Path:      fr.Path,
		ElapsedMS: float64(fr.Elapsed.Milliseconds()),
	}
}
