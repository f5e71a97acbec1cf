package nodes

import (
	"context"
	"strings"

	"github.com/mkobayashi/screenflow/internal/flow"
	"github.com/mkobayashi/screenflow/internal/llm"
)

// safeClosingReply wraps up gracefully when the high-EQ scene is unreachable.
const safeClosingReply = "Thank you so much for taking the time to chat today! Feel free to reach out whenever suits you — we'd love to keep in touch."

// safeReengageReply restarts a quiet conversation when the model is down.
const safeReengageReply = "Hi again! Just checking in — happy to pick up where we left off whenever you have a moment."

// HighEQ writes the gracious wrap-up sent to a disengaged or mildly negative
// candidate.
type HighEQ struct {
	LLM llm.SceneClient
}

// Name implements flow.Node.
func (n *HighEQ) Name() flow.NodeName { return flow.NodeHighEQ }

// Run returns the model's wrap-up message.
func (n *HighEQ) Run(ctx context.Context, cc *flow.ConversationContext) (*flow.NodeResult, error) {
	resp, err := n.LLM.CallScene(ctx, string(n.Name()), cc.TemplateVars())
	if err != nil {
		return nil, err
	}
	reply := stringField(resp, "newReply")
	if reply == "" {
		return nil, llm.NewTechnicalError(string(n.Name()), llm.FailureBadOutput, errEmptyAnswer)
	}
	return &flow.NodeResult{
		Node:    n.Name(),
		Action:  flow.ActionSendMessage,
		Message: reply,
		Data:    map[string]any{"type": "closing"},
	}, nil
}

// Fallback sends the fixed gracious wrap-up.
func (n *HighEQ) Fallback(_ *flow.ConversationContext, err error) *flow.NodeResult {
	return &flow.NodeResult{
		Node:    n.Name(),
		Action:  flow.ActionSendMessage,
		Message: safeClosingReply,
		Data:    map[string]any{"type": "closing"},
	}
}

// ResumeChat writes the opener that restarts a conversation after an
// interruption or a long silence.
type ResumeChat struct {
	LLM llm.SceneClient
}

// Name implements flow.Node.
func (n *ResumeChat) Name() flow.NodeName { return flow.NodeResumeChat }

// Run returns the model's re-engagement message.
func (n *ResumeChat) Run(ctx context.Context, cc *flow.ConversationContext) (*flow.NodeResult, error) {
	reply, err := n.LLM.CallSceneText(ctx, string(n.Name()), cc.TemplateVars())
	if err != nil {
		return nil, err
	}
	return &flow.NodeResult{
		Node:    n.Name(),
		Action:  flow.ActionSendMessage,
		Message: strings.TrimSpace(reply),
		Data:    map[string]any{"type": "reengage"},
	}, nil
}

// Fallback sends the fixed re-engagement opener.
func (n *ResumeChat) Fallback(_ *flow.ConversationContext, err error) *flow.NodeResult {
	return &flow.NodeResult{
		Node:    n.Name(),
		Action:  flow.ActionSendMessage,
		Message: safeReengageReply,
		Data:    map[string]any{"type": "reengage"},
	}
}
