package nodes

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkobayashi/screenflow/internal/flow"
	"github.com/mkobayashi/screenflow/internal/llm"
)

func TestTransferIntent_RequestedHuman(t *testing.T) {
	scenes := newFakeScenes()
	scenes.json[string(flow.NodeTransferIntent)] = map[string]any{"transfer": "yes"}
	node := &TransferIntent{LLM: scenes}

	r, err := node.Run(context.Background(), newTestContext(t, flow.StageGreeting, "can I talk to a real person?"))
	require.NoError(t, err)
	assert.Equal(t, flow.ActionSuspend, r.Action)
	assert.NotEmpty(t, r.Reason)
	assert.True(t, r.Bool("transfer_intent"))
}

func TestTransferIntent_NoRequest(t *testing.T) {
	scenes := newFakeScenes()
	scenes.json[string(flow.NodeTransferIntent)] = map[string]any{"transfer": "no"}
	node := &TransferIntent{LLM: scenes}

	r, err := node.Run(context.Background(), newTestContext(t, flow.StageGreeting, "sounds interesting"))
	require.NoError(t, err)
	assert.Equal(t, flow.ActionContinue, r.Action)
	assert.False(t, r.Bool("transfer_intent"))
}

func TestTransferIntent_FallbackNeverEscalates(t *testing.T) {
	node := &TransferIntent{}
	r := node.Fallback(nil, errors.New("model down"))
	assert.Equal(t, flow.ActionContinue, r.Action)
	assert.False(t, r.Bool("transfer_intent"))
}

func TestEmotion_ScoreBands(t *testing.T) {
	tests := []struct {
		score      float64
		wantAction flow.Action
		wantDetour bool
	}{
		{0, flow.ActionContinue, false},
		{1, flow.ActionContinue, false},
		{2, flow.ActionNextNode, true},
		{3, flow.ActionSuspend, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("score_%d", int(tt.score)), func(t *testing.T) {
			scenes := newFakeScenes()
			scenes.json[string(flow.NodeEmotion)] = map[string]any{"score": tt.score, "reason": "tone"}
			node := &Emotion{LLM: scenes}

			r, err := node.Run(context.Background(), newTestContext(t, flow.StageQuestioning, "this is taking forever"))
			require.NoError(t, err)
			assert.Equal(t, tt.wantAction, r.Action)
			if tt.wantDetour {
				assert.True(t, r.RoutesTo(flow.NodeHighEQ))
			}
			if tt.wantAction == flow.ActionSuspend {
				assert.Contains(t, r.Reason, "score=3")
			}
			assert.Equal(t, int(tt.score), r.Data["emotion_score"])
		})
	}
}

func TestEmotion_OutOfBandScoreIsTechnical(t *testing.T) {
	for name, resp := range map[string]map[string]any{
		"too high": {"score": float64(7), "reason": "x"},
		"negative": {"score": float64(-1), "reason": "x"},
		"missing":  {"reason": "x"},
		"wrong type": {"score": "angry"},
	} {
		t.Run(name, func(t *testing.T) {
			scenes := newFakeScenes()
			scenes.json[string(flow.NodeEmotion)] = resp
			node := &Emotion{LLM: scenes}

			_, err := node.Run(context.Background(), newTestContext(t, flow.StageGreeting, "hi"))
			var te *llm.TechnicalError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, llm.FailureBadOutput, te.Kind)
		})
	}
}

func TestEmotion_FallbackNeutral(t *testing.T) {
	node := &Emotion{}
	r := node.Fallback(nil, errors.New("timeout"))
	assert.Equal(t, flow.ActionContinue, r.Action)
	assert.Equal(t, 1, r.Data["emotion_score"])
}
