// Package engine composes the decision nodes into groups and drives the
// per-message orchestration: the parallel precheck phase, the stage-dependent
// speculative phase, and the arbitration that turns many node results into
// exactly one flow result.
package engine

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/mkobayashi/screenflow/internal/flow"
	"github.com/mkobayashi/screenflow/internal/knowledge"
	"github.com/mkobayashi/screenflow/internal/llm"
	"github.com/mkobayashi/screenflow/internal/nodes"
	"github.com/mkobayashi/screenflow/internal/store"
)

// NodeSet holds one instance of every decision node, wired to its
// collaborators once at startup.
type NodeSet struct {
	TransferIntent      flow.Node
	Emotion             flow.Node
	Willingness         flow.Node
	QuestionDetect      flow.Node
	KnowledgeAnswer     flow.Node
	FallbackAnswer      flow.Node
	SmallTalk           flow.Node
	QuestionRouter      flow.Node
	Relevance           flow.Node
	RequirementMatch    flow.Node
	QuestionWillingness flow.Node
	Advance             flow.Node
	HighEQ              flow.Node
	ResumeChat          flow.Node
}

// NewNodeSet wires the full node inventory.
func NewNodeSet(scenes llm.SceneClient, st store.Store, search knowledge.Searcher) *NodeSet {
	return &NodeSet{
		TransferIntent:      &nodes.TransferIntent{LLM: scenes},
		Emotion:             &nodes.Emotion{LLM: scenes},
		Willingness:         &nodes.Willingness{LLM: scenes},
		QuestionDetect:      &nodes.QuestionDetect{LLM: scenes},
		KnowledgeAnswer:     &nodes.KnowledgeAnswer{LLM: scenes, Search: search},
		FallbackAnswer:      &nodes.FallbackAnswer{LLM: scenes},
		SmallTalk:           &nodes.SmallTalk{LLM: scenes},
		QuestionRouter:      &nodes.QuestionRouter{Store: st},
		Relevance:           &nodes.Relevance{LLM: scenes},
		RequirementMatch:    &nodes.RequirementMatch{LLM: scenes},
		QuestionWillingness: &nodes.QuestionWillingness{LLM: scenes},
		Advance:             &nodes.Advance{Store: st},
		HighEQ:              &nodes.HighEQ{LLM: scenes},
		ResumeChat:          &nodes.ResumeChat{LLM: scenes},
	}
}

// groupOutcome is one group's result plus the nodes it visited, in order.
type groupOutcome struct {
	result *flow.NodeResult
	path   []flow.NodeName
}

// ResponseGroup produces the candidate-facing reply in the general case:
// willingness gate, then speculative question-detection alongside the
// knowledge-base answer, then the branch pick.
type ResponseGroup struct {
	exec   *flow.Executor
	nodes  *NodeSet
	logger *slog.Logger
}

// NewResponseGroup builds the group around a shared executor and node set.
func NewResponseGroup(exec *flow.Executor, ns *NodeSet, logger *slog.Logger) *ResponseGroup {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResponseGroup{exec: exec, nodes: ns, logger: logger}
}

// Execute runs the group to one result.
func (g *ResponseGroup) Execute(ctx context.Context, cc *flow.ConversationContext) *groupOutcome {
	out := &groupOutcome{}

	// The willingness gate only applies before the scripted stages; during
	// questioning and intention engagement is already established.
	if cc.Stage != flow.StageQuestioning && cc.Stage != flow.StageIntention {
		willing := g.exec.Execute(ctx, g.nodes.Willingness, cc)
		out.path = append(out.path, willing.Node)
		if !willing.Bool("willing") {
			g.logger.Info("candidate_unwilling_closing", "conversation_id", cc.ConversationID)
			closing := g.exec.Execute(ctx, g.nodes.HighEQ, cc)
			out.path = append(out.path, closing.Node)
			out.result = closing
			return out
		}
	}

	// Speculative pair: the knowledge answer is only needed if the detector
	// says the candidate asked something, but waiting for the detector first
	// would serialize two model round-trips.
	var detect, grounded *flow.NodeResult
	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		detect = g.exec.Execute(gctx, g.nodes.QuestionDetect, cc)
		return nil
	})
	eg.Go(func() error {
		grounded = g.exec.Execute(gctx, g.nodes.KnowledgeAnswer, cc)
		return nil
	})
	_ = eg.Wait() // the executor absorbs all failures
	out.path = append(out.path, detect.Node, grounded.Node)

	if detect.Bool("is_question") {
		if grounded.Action == flow.ActionSendMessage {
			g.logger.Info("use_knowledge_answer", "conversation_id", cc.ConversationID)
			out.result = grounded
			return out
		}
		g.logger.Info("use_fallback_answer", "conversation_id", cc.ConversationID)
		fallback := g.exec.Execute(ctx, g.nodes.FallbackAnswer, cc)
		out.path = append(out.path, fallback.Node)
		out.result = fallback
		return out
	}

	// Not a question: the speculative knowledge work is discarded.
	chat := g.exec.Execute(ctx, g.nodes.SmallTalk, cc)
	out.path = append(out.path, chat.Node)
	out.result = chat
	return out
}

// QuestionGroup walks the HR question script: route by question type, grade
// the reply, and advance the list.
type QuestionGroup struct {
	exec   *flow.Executor
	nodes  *NodeSet
	logger *slog.Logger
}

// NewQuestionGroup builds the group around a shared executor and node set.
func NewQuestionGroup(exec *flow.Executor, ns *NodeSet, logger *slog.Logger) *QuestionGroup {
	if logger == nil {
		logger = slog.Default()
	}
	return &QuestionGroup{exec: exec, nodes: ns, logger: logger}
}

// Execute runs the group to one result.
func (g *QuestionGroup) Execute(ctx context.Context, cc *flow.ConversationContext) *groupOutcome {
	out := &groupOutcome{}

	routed := g.exec.Execute(ctx, g.nodes.QuestionRouter, cc)
	out.path = append(out.path, routed.Node)

	if routed.Action == flow.ActionNone {
		out.result = routed
		return out
	}

	// Greeting-stage initialization goes straight to advancement.
	if routed.RoutesTo(flow.NodeAdvance) {
		out.result = g.runNode(ctx, out, g.nodes.Advance, cc)
		return out
	}

	// Downstream nodes see the active question through a context copy; the
	// shared snapshot stays untouched.
	qcc := cc
	if current, ok := routed.Data[nodes.DataCurrentQuestion].(*flow.CurrentQuestion); ok {
		qcc = cc.WithCurrentQuestion(current)
	}

	switch {
	case routed.RoutesTo(flow.NodeRelevance):
		graded := g.runNode(ctx, out, g.nodes.Relevance, qcc)
		switch {
		case graded.Action.Terminal():
			out.result = graded
		case graded.RoutesTo(flow.NodeRequirementMatch):
			matched := g.runNode(ctx, out, g.nodes.RequirementMatch, qcc)
			if matched.RoutesTo(flow.NodeAdvance) {
				out.result = g.runNode(ctx, out, g.nodes.Advance, qcc)
			} else {
				out.result = matched
			}
		case graded.RoutesTo(flow.NodeAdvance):
			out.result = g.runNode(ctx, out, g.nodes.Advance, qcc)
		default:
			out.result = graded
		}

	case routed.RoutesTo(flow.NodeQuestionWillingness):
		willing := g.runNode(ctx, out, g.nodes.QuestionWillingness, qcc)
		if willing.RoutesTo(flow.NodeAdvance) {
			out.result = g.runNode(ctx, out, g.nodes.Advance, qcc)
		} else {
			out.result = willing
		}

	default:
		g.logger.Error("question_group_unexpected_route", "next_nodes", routed.NextNodes)
		out.result = &flow.NodeResult{Node: routed.Node, Action: flow.ActionNone}
	}

	return out
}

// runNode executes one node and records it on the outcome path.
func (g *QuestionGroup) runNode(ctx context.Context, out *groupOutcome, n flow.Node, cc *flow.ConversationContext) *flow.NodeResult {
	r := g.exec.Execute(ctx, n, cc)
	out.path = append(out.path, r.Node)
	return r
}
