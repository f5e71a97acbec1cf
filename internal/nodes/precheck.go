package nodes

import (
	"context"
	"fmt"

	"github.com/mkobayashi/screenflow/internal/flow"
	"github.com/mkobayashi/screenflow/internal/llm"
)

// TransferIntent detects an explicit request to talk to a human recruiter.
type TransferIntent struct {
	LLM llm.SceneClient
}

// Name implements flow.Node.
func (n *TransferIntent) Name() flow.NodeName { return flow.NodeTransferIntent }

// Run asks the model whether the candidate wants a human and maps yes to an
// escalation.
func (n *TransferIntent) Run(ctx context.Context, cc *flow.ConversationContext) (*flow.NodeResult, error) {
	resp, err := n.LLM.CallScene(ctx, string(n.Name()), cc.TemplateVars())
	if err != nil {
		return nil, err
	}

	if yesNo(resp, "transfer", false) {
		return &flow.NodeResult{
			Node:   n.Name(),
			Action: flow.ActionSuspend,
			Reason: "candidate asked for a human recruiter",
			Data:   map[string]any{"transfer_intent": true},
		}, nil
	}
	return &flow.NodeResult{
		Node:   n.Name(),
		Action: flow.ActionContinue,
		Data:   map[string]any{"transfer_intent": false},
	}, nil
}

// Fallback assumes no transfer request. A broken model must never be the
// reason a conversation gets handed to a human.
func (n *TransferIntent) Fallback(_ *flow.ConversationContext, err error) *flow.NodeResult {
	return &flow.NodeResult{
		Node:   n.Name(),
		Action: flow.ActionContinue,
		Data:   map[string]any{"transfer_intent": false},
	}
}

// Emotion scores the candidate's emotional state on a 0-3 band.
type Emotion struct {
	LLM llm.SceneClient
}

// Name implements flow.Node.
func (n *Emotion) Name() flow.NodeName { return flow.NodeEmotion }

// Run maps the score bands: 3 escalates, 2 routes to the high-EQ wrap-up,
// 0 and 1 let the main pipeline continue.
func (n *Emotion) Run(ctx context.Context, cc *flow.ConversationContext) (*flow.NodeResult, error) {
	resp, err := n.LLM.CallScene(ctx, string(n.Name()), cc.TemplateVars())
	if err != nil {
		return nil, err
	}

	score, ok := intField(resp, "score")
	if !ok || score < 0 || score > 3 {
		return nil, llm.NewTechnicalError(string(n.Name()), llm.FailureBadOutput,
			fmt.Errorf("emotion score missing or out of band: %v", resp["score"]))
	}
	data := map[string]any{
		"emotion_score":  score,
		"emotion_reason": stringField(resp, "reason"),
	}

	switch score {
	case 3:
		return &flow.NodeResult{
			Node:   n.Name(),
			Action: flow.ActionSuspend,
			Reason: fmt.Sprintf("candidate emotion severely negative (score=%d): %s", score, stringField(resp, "reason")),
			Data:   data,
		}, nil
	case 2:
		return &flow.NodeResult{
			Node:      n.Name(),
			Action:    flow.ActionNextNode,
			NextNodes: []flow.NodeName{flow.NodeHighEQ},
			Data:      data,
		}, nil
	default:
		return &flow.NodeResult{
			Node:   n.Name(),
			Action: flow.ActionContinue,
			Data:   data,
		}, nil
	}
}

// Fallback treats the candidate as neutral and continues.
func (n *Emotion) Fallback(_ *flow.ConversationContext, err error) *flow.NodeResult {
	return &flow.NodeResult{
		Node:   n.Name(),
		Action: flow.ActionContinue,
		Data:   map[string]any{"emotion_score": 1},
	}
}
