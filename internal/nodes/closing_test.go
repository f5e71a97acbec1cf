package nodes

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkobayashi/screenflow/internal/flow"
	"github.com/mkobayashi/screenflow/internal/llm"
)

func TestHighEQ_WrapUp(t *testing.T) {
	scenes := newFakeScenes()
	scenes.json[string(flow.NodeHighEQ)] = map[string]any{"newReply": "Totally understand, thanks for your time today!"}
	node := &HighEQ{LLM: scenes}

	r, err := node.Run(context.Background(), newTestContext(t, flow.StageGreeting, "not interested, sorry"))
	require.NoError(t, err)
	assert.Equal(t, flow.ActionSendMessage, r.Action)
	assert.Contains(t, r.Message, "thanks for your time")
}

func TestHighEQ_EmptyReplyIsTechnical(t *testing.T) {
	scenes := newFakeScenes()
	scenes.json[string(flow.NodeHighEQ)] = map[string]any{"newReply": ""}
	node := &HighEQ{LLM: scenes}

	_, err := node.Run(context.Background(), newTestContext(t, flow.StageGreeting, "no thanks"))
	var te *llm.TechnicalError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, llm.FailureBadOutput, te.Kind)
}

func TestHighEQ_FallbackAlwaysReplies(t *testing.T) {
	node := &HighEQ{}
	r := node.Fallback(nil, errors.New("model down"))
	assert.Equal(t, flow.ActionSendMessage, r.Action)
	assert.Equal(t, safeClosingReply, r.Message)
}

func TestResumeChat_Reengagement(t *testing.T) {
	scenes := newFakeScenes()
	scenes.text[string(flow.NodeResumeChat)] = " Hi again! Still interested in the Backend Engineer role? "
	node := &ResumeChat{LLM: scenes}

	r, err := node.Run(context.Background(), newTestContext(t, flow.StageQuestioning, "reengage"))
	require.NoError(t, err)
	assert.Equal(t, flow.ActionSendMessage, r.Action)
	assert.Equal(t, "Hi again! Still interested in the Backend Engineer role?", r.Message)
}

func TestResumeChat_FallbackAlwaysReplies(t *testing.T) {
	node := &ResumeChat{}
	r := node.Fallback(nil, errors.New("model down"))
	assert.Equal(t, flow.ActionSendMessage, r.Action)
	assert.Equal(t, safeReengageReply, r.Message)
}
