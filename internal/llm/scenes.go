package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/xeipuuv/gojsonschema"
)

// SceneClient is what the decision nodes see: a scene name plus template
// variables in, a validated structured reply (or plain text) out. Any failure
// it returns is a *TechnicalError.
type SceneClient interface {
	// CallScene renders the scene's prompt, invokes the model and returns the
	// parsed JSON object after schema validation.
	CallScene(ctx context.Context, scene string, vars map[string]string) (map[string]any, error)
	// CallSceneText is for scenes whose reply is free text, not JSON.
	CallSceneText(ctx context.Context, scene string, vars map[string]string) (string, error)
}

// Scene binds a prompt template to the model tier it runs on and the schema
// its structured reply must satisfy.
type Scene struct {
	Name   string
	Tier   ModelTier
	Prompt string
	// Schema is a JSON Schema document for the expected reply. Empty for
	// free-text scenes.
	Schema string
}

// compiledScene is a Scene after template parsing and schema compilation.
type compiledScene struct {
	name   string
	tier   ModelTier
	prompt *template.Template
	schema *gojsonschema.Schema
}

// Registry holds the compiled scenes. It is assembled once at startup and
// never mutated afterwards; swapping prompts means restarting the process.
type Registry struct {
	scenes map[string]*compiledScene
}

// NewRegistry compiles the given scenes. Unknown template variables fail at
// startup, not mid-conversation.
func NewRegistry(scenes []Scene) (*Registry, error) {
	r := &Registry{scenes: make(map[string]*compiledScene, len(scenes))}
	for _, s := range scenes {
		if s.Name == "" {
			return nil, fmt.Errorf("scene with empty name")
		}
		if _, dup := r.scenes[s.Name]; dup {
			return nil, fmt.Errorf("duplicate scene %q", s.Name)
		}
		tmpl, err := template.New(s.Name).Option("missingkey=error").Parse(s.Prompt)
		if err != nil {
			return nil, fmt.Errorf("scene %q: parse prompt: %w", s.Name, err)
		}
		cs := &compiledScene{name: s.Name, tier: s.Tier, prompt: tmpl}
		if s.Schema != "" {
			schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s.Schema))
			if err != nil {
				return nil, fmt.Errorf("scene %q: compile schema: %w", s.Name, err)
			}
			cs.schema = schema
		}
		r.scenes[s.Name] = cs
	}
	return r, nil
}

// lookup returns the compiled scene or an error naming the missing scene.
func (r *Registry) lookup(name string) (*compiledScene, error) {
	s, ok := r.scenes[name]
	if !ok {
		return nil, fmt.Errorf("unknown scene %q", name)
	}
	return s, nil
}

// render fills the scene's prompt template with the given variables.
func (s *compiledScene) render(vars map[string]string) (string, error) {
	var sb strings.Builder
	if err := s.prompt.Execute(&sb, vars); err != nil {
		return "", fmt.Errorf("scene %q: render prompt: %w", s.name, err)
	}
	return sb.String(), nil
}

// Caller implements SceneClient on top of a provider Client and a Registry.
type Caller struct {
	client   Client
	registry *Registry
}

// NewCaller wires a provider client to a scene registry.
func NewCaller(client Client, registry *Registry) *Caller {
	return &Caller{client: client, registry: registry}
}

// CallScene renders the prompt, calls the model in JSON mode, parses the
// reply and validates it against the scene's schema. A reply that fails to
// parse or validate is a technical failure — the model misbehaved, the
// business decision was never made.
func (c *Caller) CallScene(ctx context.Context, scene string, vars map[string]string) (map[string]any, error) {
	s, err := c.registry.lookup(scene)
	if err != nil {
		return nil, NewTechnicalError(scene, FailureBadOutput, err)
	}
	prompt, err := s.render(vars)
	if err != nil {
		return nil, NewTechnicalError(scene, FailureBadOutput, err)
	}

	raw, err := c.client.GenerateJSON(ctx, prompt, s.tier)
	if err != nil {
		return nil, NewTechnicalError(scene, classify(err), err)
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, NewTechnicalError(scene, FailureBadOutput, fmt.Errorf("unparseable model reply: %w", err))
	}

	if s.schema != nil {
		res, err := s.schema.Validate(gojsonschema.NewGoLoader(parsed))
		if err != nil {
			return nil, NewTechnicalError(scene, FailureBadOutput, err)
		}
		if !res.Valid() {
			return nil, NewTechnicalError(scene, FailureBadOutput, fmt.Errorf("model reply violates scene schema: %v", res.Errors()))
		}
	}

	return parsed, nil
}

// CallSceneText renders the prompt and returns the model's raw text reply.
func (c *Caller) CallSceneText(ctx context.Context, scene string, vars map[string]string) (string, error) {
	s, err := c.registry.lookup(scene)
	if err != nil {
		return "", NewTechnicalError(scene, FailureBadOutput, err)
	}
	prompt, err := s.render(vars)
	if err != nil {
		return "", NewTechnicalError(scene, FailureBadOutput, err)
	}

	text, err := c.client.GenerateContent(ctx, prompt, s.tier)
	if err != nil {
		return "", NewTechnicalError(scene, classify(err), err)
	}
	if strings.TrimSpace(text) == "" {
		return "", NewTechnicalError(scene, FailureBadOutput, fmt.Errorf("empty model reply"))
	}
	return text, nil
}
