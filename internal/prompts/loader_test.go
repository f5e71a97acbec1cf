package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_ValidPrompt(t *testing.T) {
	ClearCache()

	prompt, err := Get("scenes.json", "transfer_human_intent")
	require.NoError(t, err)
	assert.NotEmpty(t, prompt)
	assert.Contains(t, prompt, "{{.lastCandidateMessage}}")
}

func TestGet_InvalidFile(t *testing.T) {
	ClearCache()

	_, err := Get("nonexistent.json", "some-key")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read prompt file")
}

func TestGet_InvalidKey(t *testing.T) {
	ClearCache()

	_, err := Get("scenes.json", "nonexistent-key")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestMustGet_Panics(t *testing.T) {
	ClearCache()

	assert.Panics(t, func() {
		MustGet("nonexistent.json", "some-key")
	})
}

func TestMustGet_ValidPrompt(t *testing.T) {
	ClearCache()

	assert.NotPanics(t, func() {
		prompt := MustGet("scenes.json", "candidate_emotion")
		assert.NotEmpty(t, prompt)
	})
}

func TestList(t *testing.T) {
	ClearCache()

	keys, err := List("scenes.json")
	require.NoError(t, err)
	assert.Contains(t, keys, "relevance_reply_and_question")
	assert.Contains(t, keys, "resume_conversation")
}

func TestCaching(t *testing.T) {
	ClearCache()

	// First call loads from file
	prompt1, err := Get("scenes.json", "casual_conversation")
	require.NoError(t, err)

	// Second call should use cache
	prompt2, err := Get("scenes.json", "casual_conversation")
	require.NoError(t, err)

	assert.Equal(t, prompt1, prompt2)
}
