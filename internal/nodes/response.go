package nodes

import (
	"context"
	"strings"

	"github.com/mkobayashi/screenflow/internal/flow"
	"github.com/mkobayashi/screenflow/internal/knowledge"
	"github.com/mkobayashi/screenflow/internal/llm"
)

// safeFallbackReply is sent when a candidate-facing node cannot reach the
// model at all. It must read as an ordinary recruiter reply and leak nothing.
const safeFallbackReply = "Thanks for your message! Let me double-check that with the team and get back to you shortly."

// Willingness gates the response group: is the candidate still engaged?
type Willingness struct {
	LLM llm.SceneClient
}

// Name implements flow.Node.
func (n *Willingness) Name() flow.NodeName { return flow.NodeWillingness }

// Run maps "no" to a detour through the high-EQ wrap-up.
func (n *Willingness) Run(ctx context.Context, cc *flow.ConversationContext) (*flow.NodeResult, error) {
	resp, err := n.LLM.CallScene(ctx, string(n.Name()), cc.TemplateVars())
	if err != nil {
		return nil, err
	}

	if yesNo(resp, "willing", true) {
		return &flow.NodeResult{
			Node:   n.Name(),
			Action: flow.ActionContinue,
			Data:   map[string]any{"willing": true},
		}, nil
	}
	return &flow.NodeResult{
		Node:      n.Name(),
		Action:    flow.ActionNextNode,
		NextNodes: []flow.NodeName{flow.NodeHighEQ},
		Data:      map[string]any{"willing": false},
	}, nil
}

// Fallback assumes goodwill: a technical failure must not end the chat.
func (n *Willingness) Fallback(_ *flow.ConversationContext, err error) *flow.NodeResult {
	return &flow.NodeResult{
		Node:   n.Name(),
		Action: flow.ActionContinue,
		Data:   map[string]any{"willing": true},
	}
}

// QuestionDetect decides whether the candidate's message asks a question.
type QuestionDetect struct {
	LLM llm.SceneClient
}

// Name implements flow.Node.
func (n *QuestionDetect) Name() flow.NodeName { return flow.NodeQuestionDetect }

// Run records the classification in the data bag; the group branches on it.
func (n *QuestionDetect) Run(ctx context.Context, cc *flow.ConversationContext) (*flow.NodeResult, error) {
	resp, err := n.LLM.CallScene(ctx, string(n.Name()), cc.TemplateVars())
	if err != nil {
		return nil, err
	}

	return &flow.NodeResult{
		Node:   n.Name(),
		Action: flow.ActionContinue,
		Data: map[string]any{
			"is_question":   yesNo(resp, "is_question", false),
			"question_type": stringField(resp, "question_type"),
		},
	}, nil
}

// Fallback assumes no question was asked; small talk is the safest path.
func (n *QuestionDetect) Fallback(_ *flow.ConversationContext, err error) *flow.NodeResult {
	return &flow.NodeResult{
		Node:   n.Name(),
		Action: flow.ActionContinue,
		Data:   map[string]any{"is_question": false, "question_type": ""},
	}
}

// KnowledgeAnswer tries to answer the candidate's question from the job's
// knowledge base. The node owns its own search; results are attached to a
// context copy, never written into the shared snapshot.
type KnowledgeAnswer struct {
	LLM    llm.SceneClient
	Search knowledge.Searcher
}

// Name implements flow.Node.
func (n *KnowledgeAnswer) Name() flow.NodeName { return flow.NodeKnowledgeAnswer }

// Run searches, then lets the model answer strictly from the hits. The model
// signals an ungroundable question with the literal reply "not_found".
func (n *KnowledgeAnswer) Run(ctx context.Context, cc *flow.ConversationContext) (*flow.NodeResult, error) {
	passages, err := n.Search.Search(ctx, cc.TenantID, cc.JobID, cc.LastCandidateMessage, knowledge.DefaultTopK)
	if err != nil {
		return nil, llm.NewTechnicalError(string(n.Name()), llm.FailureTransport, err)
	}
	if len(passages) == 0 {
		return &flow.NodeResult{
			Node:   n.Name(),
			Action: flow.ActionContinue,
			Data:   map[string]any{"found": false, "miss": "no_knowledge_hits"},
		}, nil
	}

	grounded := cc.WithKnowledge(passages)
	reply, err := n.LLM.CallSceneText(ctx, string(n.Name()), grounded.TemplateVars())
	if err != nil {
		return nil, err
	}

	reply = strings.TrimSpace(reply)
	if strings.Contains(strings.ToLower(reply), "not_found") {
		return &flow.NodeResult{
			Node:   n.Name(),
			Action: flow.ActionContinue,
			Data:   map[string]any{"found": false, "miss": "model_not_found"},
		}, nil
	}

	return &flow.NodeResult{
		Node:    n.Name(),
		Action:  flow.ActionSendMessage,
		Message: reply,
		Data:    map[string]any{"found": true, "knowledge_count": len(passages)},
	}, nil
}

// Fallback reports a miss so the group falls through to the ungrounded
// answer node.
func (n *KnowledgeAnswer) Fallback(_ *flow.ConversationContext, err error) *flow.NodeResult {
	return &flow.NodeResult{
		Node:   n.Name(),
		Action: flow.ActionContinue,
		Data:   map[string]any{"found": false, "miss": "technical_failure"},
	}
}

// FallbackAnswer produces the ungrounded holding reply when the knowledge
// base cannot answer the candidate's question.
type FallbackAnswer struct {
	LLM llm.SceneClient
}

// Name implements flow.Node.
func (n *FallbackAnswer) Name() flow.NodeName { return flow.NodeFallbackAnswer }

// Run returns the model's holding reply verbatim.
func (n *FallbackAnswer) Run(ctx context.Context, cc *flow.ConversationContext) (*flow.NodeResult, error) {
	resp, err := n.LLM.CallScene(ctx, string(n.Name()), cc.TemplateVars())
	if err != nil {
		return nil, err
	}
	answer := stringField(resp, "answer")
	if answer == "" {
		return nil, llm.NewTechnicalError(string(n.Name()), llm.FailureBadOutput, errEmptyAnswer)
	}
	return &flow.NodeResult{
		Node:    n.Name(),
		Action:  flow.ActionSendMessage,
		Message: answer,
		Data:    map[string]any{"type": "fallback"},
	}, nil
}

// Fallback sends the fixed safe reply; the candidate always gets an answer.
func (n *FallbackAnswer) Fallback(_ *flow.ConversationContext, err error) *flow.NodeResult {
	return &flow.NodeResult{
		Node:    n.Name(),
		Action:  flow.ActionSendMessage,
		Message: safeFallbackReply,
		Data:    map[string]any{"type": "fallback"},
	}
}

// SmallTalk keeps the conversation warm when the candidate is not asking
// anything.
type SmallTalk struct {
	LLM llm.SceneClient
}

// Name implements flow.Node.
func (n *SmallTalk) Name() flow.NodeName { return flow.NodeSmallTalk }

// Run returns the model's chatty reply verbatim.
func (n *SmallTalk) Run(ctx context.Context, cc *flow.ConversationContext) (*flow.NodeResult, error) {
	reply, err := n.LLM.CallSceneText(ctx, string(n.Name()), cc.TemplateVars())
	if err != nil {
		return nil, err
	}
	return &flow.NodeResult{
		Node:    n.Name(),
		Action:  flow.ActionSendMessage,
		Message: strings.TrimSpace(reply),
		Data:    map[string]any{"type": "casual_chat"},
	}, nil
}

// Fallback sends the fixed safe reply.
func (n *SmallTalk) Fallback(_ *flow.ConversationContext, err error) *flow.NodeResult {
	return &flow.NodeResult{
		Node:    n.Name(),
		Action:  flow.ActionSendMessage,
		Message: safeFallbackReply,
		Data:    map[string]any{"type": "casual_chat"},
	}
}
