package nodes

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mkobayashi/screenflow/internal/flow"
	"github.com/mkobayashi/screenflow/internal/llm"
)

// fakeScenes scripts model replies per scene name and records what each scene
// was called with.
type fakeScenes struct {
	json  map[string]map[string]any
	text  map[string]string
	errs  map[string]error
	calls []string
	vars  map[string]map[string]string
}

func newFakeScenes() *fakeScenes {
	return &fakeScenes{
		json: make(map[string]map[string]any),
		text: make(map[string]string),
		errs: make(map[string]error),
		vars: make(map[string]map[string]string),
	}
}

func (f *fakeScenes) record(scene string, vars map[string]string) {
	f.calls = append(f.calls, scene)
	f.vars[scene] = vars
}

func (f *fakeScenes) CallScene(_ context.Context, scene string, vars map[string]string) (map[string]any, error) {
	f.record(scene, vars)
	if err := f.errs[scene]; err != nil {
		return nil, err
	}
	resp, ok := f.json[scene]
	if !ok {
		return nil, llm.NewTechnicalError(scene, llm.FailureBadOutput, errEmptyAnswer)
	}
	return resp, nil
}

func (f *fakeScenes) CallSceneText(_ context.Context, scene string, vars map[string]string) (string, error) {
	f.record(scene, vars)
	if err := f.errs[scene]; err != nil {
		return "", err
	}
	text, ok := f.text[scene]
	if !ok {
		return "", llm.NewTechnicalError(scene, llm.FailureBadOutput, errEmptyAnswer)
	}
	return text, nil
}

func (f *fakeScenes) called(scene string) bool {
	for _, c := range f.calls {
		if c == scene {
			return true
		}
	}
	return false
}

func newTestContext(t *testing.T, stage flow.Stage, message string) *flow.ConversationContext {
	t.Helper()
	cc, err := flow.NewConversationContext(
		uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New(),
		flow.StatusOngoing, stage, message, nil,
		flow.Position{ID: uuid.New(), Name: "Backend Engineer", Description: "Build services", Requirements: "Go"},
	)
	require.NoError(t, err)
	return cc
}
