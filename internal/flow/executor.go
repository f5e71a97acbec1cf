package flow

import (
	"context"
	"log/slog"
	"time"
)

// defaultMaxAttempts bounds the retry loop for technical failures.
const defaultMaxAttempts = 3

// Node is one decision unit. Run returns an error only for technical failures
// (model timeout, rate limit, malformed structured output, storage error);
// every well-formed business decision, however unexpected, is a NodeResult.
// Fallback supplies the conservative result used once retries are exhausted —
// it must never pick the least reversible action on behalf of a broken model.
type Node interface {
	Name() NodeName
	Run(ctx context.Context, cc *ConversationContext) (*NodeResult, error)
	Fallback(cc *ConversationContext, err error) *NodeResult
}

// Executor drives a node through the retry-on-technical-failure loop. It never
// returns an error: after the configured attempts it downgrades to the node's
// fallback, so callers only ever deal in NodeResult values.
type Executor struct {
	MaxAttempts int
	Logger      *slog.Logger

	// sleep is swapped out in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration)
}

// NewExecutor returns an executor with the default attempt budget.
func NewExecutor(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		MaxAttempts: defaultMaxAttempts,
		Logger:      logger,
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Execute runs the node, retrying technical failures with exponential backoff.
func (e *Executor) Execute(ctx context.Context, node Node, cc *ConversationContext) *NodeResult {
	attempts := e.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	sleep := e.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	start := time.Now()
	e.Logger.Info("node_execution_started",
		"node", node.Name(),
		"conversation_id", cc.ConversationID,
		"stage", cc.Stage,
	)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := node.Run(ctx, cc)
		if err == nil {
			result.ElapsedMS = float64(time.Since(start)) / float64(time.Millisecond)
			e.Logger.Info("node_execution_completed",
				"node", node.Name(),
				"action", result.Action,
				"attempt", attempt,
				"elapsed_ms", result.ElapsedMS,
			)
			return result
		}

		lastErr = err
		if attempt < attempts {
			wait := time.Second << (attempt - 1)
			e.Logger.Warn("node_execution_retrying",
				"node", node.Name(),
				"attempt", attempt,
				"max_attempts", attempts,
				"wait", wait,
				"error", err,
			)
			sleep(ctx, wait)
		}
	}

	e.Logger.Error("node_fallback_triggered",
		"node", node.Name(),
		"conversation_id", cc.ConversationID,
		"attempts", attempts,
		"error", lastErr,
	)

	result := node.Fallback(cc, lastErr)
	result.Fallback = true
	if result.FallbackReason == "" && lastErr != nil {
		result.FallbackReason = lastErr.Error()
	}
	result.ElapsedMS = float64(time.Since(start)) / float64(time.Millisecond)
	return result
}
