// Package flow defines the data model for the conversation decision engine:
// actions, stages, node identifiers, the per-run conversation context and the
// uniform node/flow result contract.
package flow

// Action is the decision a node (or the whole flow) hands back to its caller.
type Action string

// Action constants cover every outcome a node may produce.
const (
	// ActionNone means "nothing to do here"; the orchestrator picks another branch.
	ActionNone Action = "NONE"
	// ActionSuspend hands the conversation to a human operator.
	ActionSuspend Action = "SUSPEND"
	// ActionTerminate ends the conversation.
	ActionTerminate Action = "TERMINATE"
	// ActionNextNode routes to another node inside the same group.
	ActionNextNode Action = "NEXT_NODE"
	// ActionSendMessage sends the attached message to the candidate.
	ActionSendMessage Action = "SEND_MESSAGE"
	// ActionContinue lets the enclosing group keep going; internal only.
	ActionContinue Action = "CONTINUE"
)

// Terminal reports whether the action stops flow execution outright.
func (a Action) Terminal() bool {
	return a == ActionSuspend || a == ActionTerminate
}

// Stage is the conversation's position in the screening script.
type Stage string

// Stages in script order. The engine only ever moves a conversation forward.
const (
	StageGreeting    Stage = "greeting"
	StageQuestioning Stage = "questioning"
	StageIntention   Stage = "intention"
	StageMatched     Stage = "matched"
)

var stageOrder = map[Stage]int{
	StageGreeting:    0,
	StageQuestioning: 1,
	StageIntention:   2,
	StageMatched:     3,
}

// Order returns the stage's position in the script, or -1 for an unknown stage.
func (s Stage) Order() int {
	if o, ok := stageOrder[s]; ok {
		return o
	}
	return -1
}

// Before reports whether s precedes other in the script.
func (s Stage) Before(other Stage) bool {
	return s.Order() < other.Order()
}

// Status is the conversation lifecycle state, independent of the stage axis.
type Status string

// Status constants. Interrupted conversations are never resurrected by the engine.
const (
	StatusOpened      Status = "opened"
	StatusOngoing     Status = "ongoing"
	StatusInterrupted Status = "interrupted"
	StatusEnded       Status = "ended"
)

// QuestionStatus tracks one HR-defined question within a conversation.
type QuestionStatus string

// Question tracking states. At most one question per conversation is ongoing.
const (
	QuestionPending   QuestionStatus = "pending"
	QuestionOngoing   QuestionStatus = "ongoing"
	QuestionCompleted QuestionStatus = "completed"
	QuestionSkipped   QuestionStatus = "skipped"
)

// QuestionType distinguishes the two kinds of configured questions.
type QuestionType string

const (
	// QuestionAssessment answers are graded against explicit criteria.
	QuestionAssessment QuestionType = "assessment"
	// QuestionInformational answers are collected free-form.
	QuestionInformational QuestionType = "information"
)

// NodeName identifies a decision node. The set is closed at compile time;
// routing between nodes always goes through these constants, never through
// free-form strings.
type NodeName string

const (
	NodeTransferIntent      NodeName = "transfer_human_intent"
	NodeEmotion             NodeName = "candidate_emotion"
	NodeWillingness         NodeName = "continue_conversation_with_candidate"
	NodeQuestionDetect      NodeName = "candidate_ask_question"
	NodeKnowledgeAnswer     NodeName = "answer_based_on_knowledge"
	NodeFallbackAnswer      NodeName = "answer_without_knowledge"
	NodeSmallTalk           NodeName = "casual_conversation"
	NodeQuestionRouter      NodeName = "information_gathering"
	NodeRelevance           NodeName = "relevance_reply_and_question"
	NodeRequirementMatch    NodeName = "reply_match_question_requirement"
	NodeQuestionWillingness NodeName = "candidate_communication_willingness_for_question"
	NodeAdvance             NodeName = "information_gathering_question"
	NodeHighEQ              NodeName = "high_eq_response"
	NodeResumeChat          NodeName = "resume_conversation"
)
