package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mkobayashi/screenflow/internal/flow"
	"github.com/mkobayashi/screenflow/internal/store"
)

// Orchestrator runs one inbound candidate message through the full decision
// graph and returns exactly one FlowResult. All model and storage failures are
// absorbed below this level; Execute errors only on invalid input or a
// conversation that is no longer runnable.
type Orchestrator struct {
	exec     *flow.Executor
	nodes    *NodeSet
	response *ResponseGroup
	question *QuestionGroup
	store    store.Store
	logger   *slog.Logger
}

// NewOrchestrator wires the orchestrator from its collaborators.
func NewOrchestrator(exec *flow.Executor, ns *NodeSet, st store.Store, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		exec:     exec,
		nodes:    ns,
		response: NewResponseGroup(exec, ns, logger),
		question: NewQuestionGroup(exec, ns, logger),
		store:    st,
		logger:   logger,
	}
}

// ErrNotRunnable is wrapped into Execute's error when the conversation's
// status rules out processing another candidate message.
var ErrNotRunnable = fmt.Errorf("conversation not runnable")

// Execute processes one candidate message: precheck phase, stage-dependent
// group phase, arbitration, then the status side effect of a terminal action.
func (o *Orchestrator) Execute(ctx context.Context, cc *flow.ConversationContext) (*flow.FlowResult, error) {
	if cc == nil {
		return nil, fmt.Errorf("nil conversation context")
	}
	if cc.Status == flow.StatusInterrupted || cc.Status == flow.StatusEnded {
		return nil, fmt.Errorf("%w: status %s", ErrNotRunnable, cc.Status)
	}

	start := time.Now()
	o.logger.Info("flow_started",
		"conversation_id", cc.ConversationID,
		"stage", cc.Stage,
		"status", cc.Status,
	)

	var path []flow.NodeName

	// Phase one: the safety prechecks run concurrently, but their results are
	// applied in fixed priority order so the outcome never depends on timing.
	var transfer, emotion *flow.NodeResult
	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		transfer = o.exec.Execute(gctx, o.nodes.TransferIntent, cc)
		return nil
	})
	eg.Go(func() error {
		emotion = o.exec.Execute(gctx, o.nodes.Emotion, cc)
		return nil
	})
	_ = eg.Wait()
	path = append(path, transfer.Node, emotion.Node)

	if transfer.Action == flow.ActionSuspend {
		return o.finish(ctx, cc, transfer, path, start)
	}
	if emotion.Action == flow.ActionSuspend {
		return o.finish(ctx, cc, emotion, path, start)
	}
	if emotion.RoutesTo(flow.NodeHighEQ) {
		// Negative but recoverable mood: one soothing reply replaces the
		// normal turn entirely.
		soothing := o.exec.Execute(ctx, o.nodes.HighEQ, cc)
		path = append(path, soothing.Node)
		return o.finish(ctx, cc, soothing, path, start)
	}

	// Phase two: the response group always runs; the question group runs
	// speculatively alongside it whenever the stage can have question work.
	var respOut, qOut *groupOutcome
	eg2, gctx2 := errgroup.WithContext(ctx)
	eg2.Go(func() error {
		respOut = o.response.Execute(gctx2, cc)
		return nil
	})
	if o.questionStage(cc.Stage) {
		eg2.Go(func() error {
			qOut = o.question.Execute(gctx2, cc)
			return nil
		})
	}
	_ = eg2.Wait()

	path = append(path, respOut.path...)
	if qOut != nil {
		path = append(path, qOut.path...)
	}

	winner, extra := o.arbitrate(respOut, qOut)
	if extra != nil {
		return o.finishCombined(ctx, cc, winner, extra, path, start)
	}
	return o.finish(ctx, cc, winner, path, start)
}

// Reengage produces the opener that restarts a quiet conversation. It is
// driven by an operator or a scheduler, not by a candidate message.
func (o *Orchestrator) Reengage(ctx context.Context, cc *flow.ConversationContext) (*flow.FlowResult, error) {
	if cc == nil {
		return nil, fmt.Errorf("nil conversation context")
	}
	if cc.Status == flow.StatusEnded {
		return nil, fmt.Errorf("%w: status %s", ErrNotRunnable, cc.Status)
	}

	start := time.Now()
	r := o.exec.Execute(ctx, o.nodes.ResumeChat, cc)
	return flow.FlowResultFrom(r, []flow.NodeName{r.Node}, time.Since(start)), nil
}

// questionStage reports whether the stage can produce question-group work.
func (o *Orchestrator) questionStage(stage flow.Stage) bool {
	return stage == flow.StageGreeting || stage == flow.StageQuestioning
}

// arbitrate merges the two group outcomes into one winner. The second return
// value is non-nil only for the combined answer-plus-next-question turn, where
// it carries the response-group message to send first.
func (o *Orchestrator) arbitrate(resp, q *groupOutcome) (winner, extra *flow.NodeResult) {
	r := resp.result
	if q == nil || q.result == nil || q.result.Action == flow.ActionNone {
		return r, nil
	}
	qr := q.result

	// A terminal decision from the question script outranks any reply.
	if qr.Action.Terminal() {
		return qr, nil
	}
	if qr.Action != flow.ActionSendMessage {
		return r, nil
	}

	// The question script wants to speak. A terminal response-group decision
	// still wins; an answer to the candidate's own question is sent first and
	// the next scripted question rides along.
	if r.Action.Terminal() {
		return r, nil
	}
	if r.Action == flow.ActionSendMessage &&
		(r.Node == flow.NodeKnowledgeAnswer || r.Node == flow.NodeFallbackAnswer) {
		return qr, r
	}
	return qr, nil
}

// finish applies the winning result's status side effect and lifts it into the
// flow result.
func (o *Orchestrator) finish(ctx context.Context, cc *flow.ConversationContext, r *flow.NodeResult, path []flow.NodeName, start time.Time) (*flow.FlowResult, error) {
	if err := o.applyTerminal(ctx, cc, r); err != nil {
		return nil, err
	}
	fr := flow.FlowResultFrom(r, path, time.Since(start))
	o.logFinished(cc, fr)
	return fr, nil
}

// finishCombined builds the two-message turn: the answer to the candidate's
// question first, then the next scripted question. Metadata comes from the
// question side, which is what advanced the conversation.
func (o *Orchestrator) finishCombined(ctx context.Context, cc *flow.ConversationContext, qr, answer *flow.NodeResult, path []flow.NodeName, start time.Time) (*flow.FlowResult, error) {
	fr := &flow.FlowResult{
		Action:   flow.ActionSendMessage,
		Node:     qr.Node,
		Messages: []string{answer.Message, qr.Message},
		Data:     qr.Data,
		Path:     path,
		Elapsed:  time.Since(start),
	}
	o.logFinished(cc, fr)
	return fr, nil
}

// applyTerminal persists the status change implied by a terminal action.
// Suspension waits for a human; termination closes the conversation for good.
func (o *Orchestrator) applyTerminal(ctx context.Context, cc *flow.ConversationContext, r *flow.NodeResult) error {
	switch r.Action {
	case flow.ActionSuspend:
		if err := o.store.UpdateStatus(ctx, cc.TenantID, cc.ConversationID, flow.StatusInterrupted); err != nil {
			return fmt.Errorf("suspend conversation %s: %w", cc.ConversationID, err)
		}
		o.logger.Info("conversation_suspended",
			"conversation_id", cc.ConversationID,
			"node", r.Node,
			"reason", r.Reason,
		)
	case flow.ActionTerminate:
		if err := o.store.UpdateStatus(ctx, cc.TenantID, cc.ConversationID, flow.StatusEnded); err != nil {
			return fmt.Errorf("terminate conversation %s: %w", cc.ConversationID, err)
		}
		o.logger.Info("conversation_terminated",
			"conversation_id", cc.ConversationID,
			"node", r.Node,
			"reason", r.Reason,
		)
	}
	return nil
}

func (o *Orchestrator) logFinished(cc *flow.ConversationContext, fr *flow.FlowResult) {
	o.logger.Info("flow_completed",
		"conversation_id", cc.ConversationID,
		"action", fr.Action,
		"node", fr.Node,
		"messages", len(fr.Messages),
		"path_len", len(fr.Path),
		"elapsed_ms", float64(fr.Elapsed)/float64(time.Millisecond),
	)
}
