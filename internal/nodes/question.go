package nodes

import (
	"context"

	"github.com/google/uuid"

	"github.com/mkobayashi/screenflow/internal/flow"
	"github.com/mkobayashi/screenflow/internal/llm"
	"github.com/mkobayashi/screenflow/internal/store"
)

// DataCurrentQuestion is the data-bag key under which the router hands the
// active question to the group for context enrichment.
const DataCurrentQuestion = "current_question"

// QuestionRouter decides whether and how the question-stage pipeline applies
// to this message. Pure local logic, no model call.
type QuestionRouter struct {
	Store store.QuestionStore
}

// Name implements flow.Node.
func (n *QuestionRouter) Name() flow.NodeName { return flow.NodeQuestionRouter }

// Run routes: greeting with configured questions initializes the list;
// questioning dispatches on the active question's type; anything else means
// there is no question work to do.
func (n *QuestionRouter) Run(ctx context.Context, cc *flow.ConversationContext) (*flow.NodeResult, error) {
	switch cc.Stage {
	case flow.StageGreeting:
		questions, err := n.Store.ListJobQuestions(ctx, cc.TenantID, cc.JobID)
		if err != nil {
			return nil, err
		}
		if len(questions) == 0 {
			return &flow.NodeResult{Node: n.Name(), Action: flow.ActionNone}, nil
		}
		return &flow.NodeResult{
			Node:      n.Name(),
			Action:    flow.ActionNextNode,
			NextNodes: []flow.NodeName{flow.NodeAdvance},
		}, nil

	case flow.StageQuestioning:
		ongoing, err := n.Store.OngoingQuestion(ctx, cc.TenantID, cc.ConversationID)
		if err != nil {
			return nil, err
		}
		if ongoing == nil {
			// Nothing ongoing: either the list is exhausted or a previous
			// advancement was cut short. Advance resolves both.
			return &flow.NodeResult{
				Node:      n.Name(),
				Action:    flow.ActionNextNode,
				NextNodes: []flow.NodeName{flow.NodeAdvance},
			}, nil
		}

		current := &flow.CurrentQuestion{
			TrackingID:  ongoing.ID,
			QuestionID:  ongoing.QuestionID,
			Content:     ongoing.Content,
			Requirement: ongoing.Requirement,
			Type:        ongoing.Type,
		}
		next := flow.NodeQuestionWillingness
		if ongoing.Type == flow.QuestionAssessment {
			next = flow.NodeRelevance
		}
		return &flow.NodeResult{
			Node:      n.Name(),
			Action:    flow.ActionNextNode,
			NextNodes: []flow.NodeName{next},
			Data: map[string]any{
				DataCurrentQuestion: current,
				"question_type":     string(ongoing.Type),
			},
		}, nil

	default:
		return &flow.NodeResult{Node: n.Name(), Action: flow.ActionNone}, nil
	}
}

// Fallback skips question processing for this message.
func (n *QuestionRouter) Fallback(_ *flow.ConversationContext, err error) *flow.NodeResult {
	return &flow.NodeResult{Node: n.Name(), Action: flow.ActionNone}
}

// Relevance grades how the candidate's reply relates to an assessment
// question.
type Relevance struct {
	LLM llm.SceneClient
}

// Name implements flow.Node.
func (n *Relevance) Name() flow.NodeName { return flow.NodeRelevance }

// relevanceReasons explains the escalating grades to the human operator.
var relevanceReasons = map[string]string{
	"A": "candidate refused to answer the screening question",
	"D": "candidate reply abusive or contains sensitive content",
	"E": "candidate reply impossible to grade against the question",
}

// Run maps the grade: A/D/E escalate, B proceeds to the requirement check,
// C skips straight to advancement without penalizing the candidate.
func (n *Relevance) Run(ctx context.Context, cc *flow.ConversationContext) (*flow.NodeResult, error) {
	resp, err := n.LLM.CallScene(ctx, string(n.Name()), cc.TemplateVars())
	if err != nil {
		return nil, err
	}

	grade := stringField(resp, "relevance")
	data := map[string]any{"relevance": grade}

	switch grade {
	case "B":
		return &flow.NodeResult{
			Node:      n.Name(),
			Action:    flow.ActionNextNode,
			NextNodes: []flow.NodeName{flow.NodeRequirementMatch},
			Data:      data,
		}, nil
	case "C":
		return &flow.NodeResult{
			Node:      n.Name(),
			Action:    flow.ActionNextNode,
			NextNodes: []flow.NodeName{flow.NodeAdvance},
			Data:      data,
		}, nil
	default:
		reason, ok := relevanceReasons[grade]
		if !ok {
			reason = "unexpected relevance grade " + grade
		}
		return &flow.NodeResult{
			Node:   n.Name(),
			Action: flow.ActionSuspend,
			Reason: reason,
			Data:   data,
		}, nil
	}
}

// Fallback moves on to the next question rather than escalating on a broken
// model.
func (n *Relevance) Fallback(_ *flow.ConversationContext, err error) *flow.NodeResult {
	return &flow.NodeResult{
		Node:      n.Name(),
		Action:    flow.ActionNextNode,
		NextNodes: []flow.NodeName{flow.NodeAdvance},
	}
}

// RequirementMatch checks whether the candidate's answers satisfy an
// assessment question's explicit requirement.
type RequirementMatch struct {
	LLM llm.SceneClient
}

// Name implements flow.Node.
func (n *RequirementMatch) Name() flow.NodeName { return flow.NodeRequirementMatch }

// Run: satisfied advances the question list, unsatisfied escalates for a
// human judgement call.
func (n *RequirementMatch) Run(ctx context.Context, cc *flow.ConversationContext) (*flow.NodeResult, error) {
	resp, err := n.LLM.CallScene(ctx, string(n.Name()), cc.TemplateVars())
	if err != nil {
		return nil, err
	}

	if yesNo(resp, "satisfied", false) {
		return &flow.NodeResult{
			Node:      n.Name(),
			Action:    flow.ActionNextNode,
			NextNodes: []flow.NodeName{flow.NodeAdvance},
			Data:      map[string]any{"satisfied": true},
		}, nil
	}
	return &flow.NodeResult{
		Node:   n.Name(),
		Action: flow.ActionSuspend,
		Reason: "candidate reply does not satisfy the question requirement",
		Data:   map[string]any{"satisfied": false},
	}, nil
}

// Fallback advances rather than escalating on a technical failure.
func (n *RequirementMatch) Fallback(_ *flow.ConversationContext, err error) *flow.NodeResult {
	return &flow.NodeResult{
		Node:      n.Name(),
		Action:    flow.ActionNextNode,
		NextNodes: []flow.NodeName{flow.NodeAdvance},
	}
}

// QuestionWillingness checks whether the candidate will keep answering an
// informational question.
type QuestionWillingness struct {
	LLM llm.SceneClient
}

// Name implements flow.Node.
func (n *QuestionWillingness) Name() flow.NodeName { return flow.NodeQuestionWillingness }

// Run: willing advances, unwilling escalates.
func (n *QuestionWillingness) Run(ctx context.Context, cc *flow.ConversationContext) (*flow.NodeResult, error) {
	resp, err := n.LLM.CallScene(ctx, string(n.Name()), cc.TemplateVars())
	if err != nil {
		return nil, err
	}

	if yesNo(resp, "willing", true) {
		return &flow.NodeResult{
			Node:      n.Name(),
			Action:    flow.ActionNextNode,
			NextNodes: []flow.NodeName{flow.NodeAdvance},
			Data:      map[string]any{"willing": true},
		}, nil
	}
	return &flow.NodeResult{
		Node:   n.Name(),
		Action: flow.ActionSuspend,
		Reason: "candidate unwilling to keep answering this question",
		Data:   map[string]any{"willing": false},
	}, nil
}

// Fallback advances rather than escalating on a technical failure.
func (n *QuestionWillingness) Fallback(_ *flow.ConversationContext, err error) *flow.NodeResult {
	return &flow.NodeResult{
		Node:      n.Name(),
		Action:    flow.ActionNextNode,
		NextNodes: []flow.NodeName{flow.NodeAdvance},
	}
}

// Advance walks the question list one step: complete the current question,
// surface the next pending one, or move the conversation to the intention
// stage when the list is exhausted. The whole step is one atomic store
// operation. Pure local logic, no model call.
type Advance struct {
	Store store.QuestionStore
}

// Name implements flow.Node.
func (n *Advance) Name() flow.NodeName { return flow.NodeAdvance }

// Run delegates the four-way mutation to the store's transactional advance.
func (n *Advance) Run(ctx context.Context, cc *flow.ConversationContext) (*flow.NodeResult, error) {
	current := uuid.Nil
	if cc.Question != nil {
		current = cc.Question.TrackingID
	}
	result, err := n.Store.AdvanceQuestion(ctx, store.AdvanceParams{
		TenantID:          cc.TenantID,
		ConversationID:    cc.ConversationID,
		JobID:             cc.JobID,
		ResumeID:          cc.ResumeID,
		UserID:            cc.UserID,
		Stage:             cc.Stage,
		CurrentTrackingID: current,
	})
	if err != nil {
		return nil, err
	}

	if result.Next == nil {
		return &flow.NodeResult{
			Node:   n.Name(),
			Action: flow.ActionNone,
			Data: map[string]any{
				"exhausted":   result.Exhausted,
				"initialized": result.Initialized,
			},
		}, nil
	}

	return &flow.NodeResult{
		Node:    n.Name(),
		Action:  flow.ActionSendMessage,
		Message: result.Next.Content,
		Data: map[string]any{
			"tracking_id": result.Next.ID.String(),
			"question_id": result.Next.QuestionID.String(),
			"initialized": result.Initialized,
		},
	}, nil
}

// Fallback leaves the question list untouched; the next inbound message
// retries the same advancement.
func (n *Advance) Fallback(_ *flow.ConversationContext, err error) *flow.NodeResult {
	return &flow.NodeResult{Node: n.Name(), Action: flow.ActionNone}
}
