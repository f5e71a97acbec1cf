package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mkobayashi/screenflow/internal/engine"
	"github.com/mkobayashi/screenflow/internal/flow"
	"github.com/mkobayashi/screenflow/internal/knowledge"
	"github.com/mkobayashi/screenflow/internal/observability"
	"github.com/mkobayashi/screenflow/internal/store"
)

var simulateVerbose bool

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a scripted conversation against an in-memory engine",
	Long: `Run the full decision graph with an in-memory store and a deterministic
keyword-based stand-in for the model. Type candidate messages on stdin; each
one is processed exactly as the server would, minus the model calls.`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().BoolVar(&simulateVerbose, "verbose", false, "Print the execution path for every turn")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(_ *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	tenantID := uuid.New()
	userID := uuid.New()
	jobID := uuid.New()
	resumeID := uuid.New()
	conversationID := uuid.New()

	mem := store.NewMemStore()
	mem.SeedConversation(store.Conversation{
		ID:             conversationID,
		TenantID:       tenantID,
		UserID:         userID,
		JobID:          jobID,
		ResumeID:       resumeID,
		Status:         flow.StatusOngoing,
		Stage:          flow.StageGreeting,
		JobTitle:       "Backend Engineer",
		JobDescription: "Build and operate the services behind our hiring platform.",
	})
	mem.SeedJobQuestions(jobID, []store.JobQuestion{
		{ID: uuid.New(), JobID: jobID, Content: "How many years of Go experience do you have?", Requirement: "At least 2 years", Type: flow.QuestionAssessment, SortOrder: 1},
		{ID: uuid.New(), JobID: jobID, Content: "When could you start?", Type: flow.QuestionInformational, SortOrder: 2},
	})

	search := knowledge.NewMemSearcher()
	search.Seed(jobID, []flow.KnowledgePassage{
		{Question: "Is remote work possible?", Answer: "The role is hybrid: two office days per week."},
		{Question: "What is the salary range?", Answer: "90-120k depending on experience."},
	})

	exec := flow.NewExecutor(logger)
	nodeSet := engine.NewNodeSet(&scriptedScenes{}, mem, search)
	orchestrator := engine.NewOrchestrator(exec, nodeSet, mem, logger)
	printer := observability.NewPrinter(os.Stdout)

	fmt.Println("Simulated screening chat. Type candidate messages; Ctrl-D to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		content := strings.TrimSpace(scanner.Text())
		if content == "" {
			continue
		}

		conv, err := mem.GetConversation(context.Background(), tenantID, conversationID)
		if err != nil || conv == nil {
			return fmt.Errorf("conversation lost from memory store")
		}

		history, _ := mem.ListMessages(context.Background(), tenantID, conversationID, 50)
		cc, err := flow.NewConversationContext(
			conv.ID, conv.TenantID, conv.UserID, conv.JobID, conv.ResumeID,
			conv.Status, conv.Stage, content, history,
			flow.Position{ID: conv.JobID, Name: conv.JobTitle, Description: conv.JobDescription},
		)
		if err != nil {
			return err
		}

		_ = mem.AppendMessage(context.Background(), tenantID, conversationID, flow.Message{Sender: flow.SenderCandidate, Content: content})

		result, err := orchestrator.Execute(context.Background(), cc)
		if err != nil {
			fmt.Printf("conversation closed: %v\n", err)
			return nil
		}
		for _, msg := range result.Messages {
			_ = mem.AppendMessage(context.Background(), tenantID, conversationID, flow.Message{Sender: flow.SenderRecruiter, Content: msg})
		}

		printer.PrintFlowResult(result)
		if simulateVerbose {
			printer.PrintPath(result.Path)
		}
		if result.Action.Terminal() {
			fmt.Println("Conversation handed to a human operator.")
			return nil
		}
	}
	return scanner.Err()
}

// scriptedScenes is a deterministic keyword-driven stand-in for the model so
// the graph can be exercised offline. It only needs to be plausible, not
// smart.
type scriptedScenes struct{}

func (s *scriptedScenes) CallScene(_ context.Context, scene string, vars map[string]string) (map[string]any, error) {
	msg := strings.ToLower(vars["lastCandidateMessage"])

	switch scene {
	case "transfer_human_intent":
		if strings.Contains(msg, "human") || strings.Contains(msg, "real person") {
			return map[string]any{"transfer": "yes"}, nil
		}
		return map[string]any{"transfer": "no"}, nil

	case "candidate_emotion":
		switch {
		case strings.Contains(msg, "furious") || strings.Contains(msg, "lawsuit"):
			return map[string]any{"score": 3, "reason": "hostile wording"}, nil
		case strings.Contains(msg, "annoyed") || strings.Contains(msg, "frustrated"):
			return map[string]any{"score": 2, "reason": "negative wording"}, nil
		default:
			return map[string]any{"score": 0, "reason": "neutral"}, nil
		}

	case "continue_conversation_with_candidate":
		if strings.Contains(msg, "not interested") || strings.Contains(msg, "stop messaging") {
			return map[string]any{"willing": "no"}, nil
		}
		return map[string]any{"willing": "yes"}, nil

	case "candidate_ask_question":
		if strings.Contains(msg, "?") {
			return map[string]any{"is_question": "yes", "question_type": "job"}, nil
		}
		return map[string]any{"is_question": "no", "question_type": ""}, nil

	case "answer_without_knowledge":
		return map[string]any{"answer": "Good question! I'll confirm the details with the hiring team and come back to you."}, nil

	case "relevance_reply_and_question":
		switch {
		case strings.Contains(msg, "won't answer") || strings.Contains(msg, "refuse"):
			return map[string]any{"relevance": "A"}, nil
		case strings.Contains(msg, "weather"):
			return map[string]any{"relevance": "E"}, nil
		default:
			return map[string]any{"relevance": "B"}, nil
		}

	case "reply_match_question_requirement":
		if strings.Contains(msg, "none") || strings.Contains(msg, "zero") {
			return map[string]any{"satisfied": "no"}, nil
		}
		return map[string]any{"satisfied": "yes"}, nil

	case "candidate_communication_willingness_for_question":
		if strings.Contains(msg, "rather not") {
			return map[string]any{"willing": "no"}, nil
		}
		return map[string]any{"willing": "yes"}, nil

	case "high_eq_response":
		return map[string]any{"newReply": "Totally understand! Thanks for your time today, and feel free to reach out whenever."}, nil

	default:
		return nil, fmt.Errorf("scripted scenes: no script for %q", scene)
	}
}

func (s *scriptedScenes) CallSceneText(_ context.Context, scene string, vars map[string]string) (string, error) {
	switch scene {
	case "answer_based_on_knowledge":
		if k := vars["knowledge"]; k != "" {
			parts := strings.Split(k, "|")
			if len(parts) >= 3 {
				return parts[2], nil
			}
		}
		return "not_found", nil
	case "casual_conversation":
		return "Great to hear from you! How are you finding the process so far?", nil
	case "resume_conversation":
		return "Hi again! Just checking in to see if you'd like to continue our chat.", nil
	default:
		return "", fmt.Errorf("scripted scenes: no script for %q", scene)
	}
}
