package llm

import "github.com/mkobayashi/screenflow/internal/prompts"

// sceneFile is the embedded prompt document the default scenes load from.
const sceneFile = "scenes.json"

// yesNoSchema validates the single-field yes/no replies most classifier
// scenes produce.
func yesNoSchema(field string) string {
	return `{
		"type": "object",
		"required": ["` + field + `"],
		"properties": {"` + field + `": {"type": "string", "enum": ["yes", "no"]}}
	}`
}

// DefaultScenes returns the built-in scene set. Prompt copy lives in the
// embedded scenes.json; schemas stay here next to the tier choices.
func DefaultScenes() []Scene {
	return []Scene{
		{
			Name:   "transfer_human_intent",
			Tier:   TierLite,
			Prompt: prompts.MustGet(sceneFile, "transfer_human_intent"),
			Schema: yesNoSchema("transfer"),
		},
		{
			Name:   "candidate_emotion",
			Tier:   TierLite,
			Prompt: prompts.MustGet(sceneFile, "candidate_emotion"),
			Schema: `{
				"type": "object",
				"required": ["score"],
				"properties": {
					"score": {"type": "integer", "minimum": 0, "maximum": 3},
					"reason": {"type": "string"}
				}
			}`,
		},
		{
			Name:   "continue_conversation_with_candidate",
			Tier:   TierLite,
			Prompt: prompts.MustGet(sceneFile, "continue_conversation_with_candidate"),
			Schema: yesNoSchema("willing"),
		},
		{
			Name:   "candidate_ask_question",
			Tier:   TierLite,
			Prompt: prompts.MustGet(sceneFile, "candidate_ask_question"),
			Schema: `{
				"type": "object",
				"required": ["is_question"],
				"properties": {
					"is_question": {"type": "string", "enum": ["yes", "no"]},
					"question_type": {"type": "string"}
				}
			}`,
		},
		{
			Name:   "answer_based_on_knowledge",
			Tier:   TierStandard,
			Prompt: prompts.MustGet(sceneFile, "answer_based_on_knowledge"),
		},
		{
			Name:   "answer_without_knowledge",
			Tier:   TierStandard,
			Prompt: prompts.MustGet(sceneFile, "answer_without_knowledge"),
			Schema: `{
				"type": "object",
				"required": ["answer"],
				"properties": {"answer": {"type": "string", "minLength": 1}}
			}`,
		},
		{
			Name:   "casual_conversation",
			Tier:   TierAdvanced,
			Prompt: prompts.MustGet(sceneFile, "casual_conversation"),
		},
		{
			Name:   "relevance_reply_and_question",
			Tier:   TierStandard,
			Prompt: prompts.MustGet(sceneFile, "relevance_reply_and_question"),
			Schema: `{
				"type": "object",
				"required": ["relevance"],
				"properties": {"relevance": {"type": "string", "enum": ["A", "B", "C", "D", "E"]}}
			}`,
		},
		{
			Name:   "reply_match_question_requirement",
			Tier:   TierStandard,
			Prompt: prompts.MustGet(sceneFile, "reply_match_question_requirement"),
			Schema: yesNoSchema("satisfied"),
		},
		{
			Name:   "candidate_communication_willingness_for_question",
			Tier:   TierLite,
			Prompt: prompts.MustGet(sceneFile, "candidate_communication_willingness_for_question"),
			Schema: yesNoSchema("willing"),
		},
		{
			Name:   "high_eq_response",
			Tier:   TierAdvanced,
			Prompt: prompts.MustGet(sceneFile, "high_eq_response"),
			Schema: `{
				"type": "object",
				"required": ["newReply"],
				"properties": {"newReply": {"type": "string", "minLength": 1}}
			}`,
		},
		{
			Name:   "resume_conversation",
			Tier:   TierAdvanced,
			Prompt: prompts.MustGet(sceneFile, "resume_conversation"),
		},
	}
}
