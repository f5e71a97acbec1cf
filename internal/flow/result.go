package flow

import (
	"fmt"
	"time"
)

// NodeResult is the uniform output of every node. Whatever happens inside a
// node (including technical failure followed by fallback), its caller only
// ever sees one of these.
type NodeResult struct {
	Node   NodeName `json:"node"`
	Action Action   `json:"action"`

	// Message is the candidate-facing reply. Set iff Action is SEND_MESSAGE.
	Message string `json:"message,omitempty"`

	// NextNodes is meaningful iff Action is NEXT_NODE. An empty list means the
	// group decides from context.
	NextNodes []NodeName `json:"next_nodes,omitempty"`

	// Reason explains a SUSPEND or TERMINATE decision for a human operator.
	Reason string `json:"reason,omitempty"`

	// Data carries parsed model output and other values for downstream nodes.
	Data map[string]any `json:"data,omitempty"`

	// Execution metadata, for observability only.
	ElapsedMS      float64 `json:"elapsed_ms,omitempty"`
	Fallback       bool    `json:"fallback,omitempty"`
	FallbackReason string  `json:"fallback_reason,omitempty"`
}

// Validate enforces the result schema invariant: a message travels only with
// SEND_MESSAGE, a reason only with SUSPEND or TERMINATE.
func (r *NodeResult) Validate() error {
	if r.Node == "" {
		return fmt.Errorf("node result: missing node name")
	}
	if r.Action == ActionSendMessage && r.Message == "" {
		return fmt.Errorf("node result %s: SEND_MESSAGE without a message", r.Node)
	}
	if r.Action != ActionSendMessage && r.Message != "" {
		return fmt.Errorf("node result %s: message set with action %s", r.Node, r.Action)
	}
	if r.Action.Terminal() && r.Reason == "" {
		return fmt.Errorf("node result %s: %s without a reason", r.Node, r.Action)
	}
	if !r.Action.Terminal() && r.Reason != "" {
		return fmt.Errorf("node result %s: reason set with action %s", r.Node, r.Action)
	}
	return nil
}

// Bool reads a boolean out of the data bag, defaulting to false.
func (r *NodeResult) Bool(key string) bool {
	v, ok := r.Data[key].(bool)
	return ok && v
}

// RoutesTo reports whether the result asks for the given next node.
func (r *NodeResult) RoutesTo(name NodeName) bool {
	if r.Action != ActionNextNode {
		return false
	}
	for _, n := range r.NextNodes {
		if n == name {
			return true
		}
	}
	return false
}

// FlowResult is the orchestrator-level outcome, produced exactly once per
// inbound candidate message.
type FlowResult struct {
	Action Action `json:"action"`

	// Node is the node whose result won arbitration.
	Node NodeName `json:"node,omitempty"`

	// Messages holds the outbound replies in send order. The common case is a
	// single entry; answering a candidate question and asking the next scripted
	// question in one turn produces two.
	Messages []string `json:"messages,omitempty"`

	Reason string         `json:"reason,omitempty"`
	Data   map[string]any `json:"data,omitempty"`

	// Path is the ordered list of nodes visited during the run, including
	// speculative branches whose output was discarded.
	Path []NodeName `json:"path"`

	// Elapsed is the total wall-clock time of the run.
	Elapsed time.Duration `json:"elapsed_ns"`
}

// FlowResultFrom lifts a single winning node result into a flow result.
func FlowResultFrom(r *NodeResult, path []NodeName, elapsed time.Duration) *FlowResult {
	fr := &FlowResult{
		Action:  r.Action,
		Node:    r.Node,
		Reason:  r.Reason,
		Data:    r.Data,
		Path:    path,
		Elapsed: elapsed,
	}
	if r.Action == ActionSendMessage {
		fr.Messages = []string{r.Message}
	}
	return fr
}

// Message returns the first outbound message, or "".
func (f *FlowResult) Message() string {
	if len(f.Messages) == 0 {
		return ""
	}
	return f.Messages[0]
}
