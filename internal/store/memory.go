package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mkobayashi/screenflow/internal/flow"
)

// MemStore is an in-memory Store with the same semantics as the Postgres
// implementation, including all-or-nothing question advancement. It backs the
// simulate command and the unit tests.
type MemStore struct {
	mu sync.Mutex

	conversations map[uuid.UUID]*Conversation
	messages      map[uuid.UUID][]flow.Message
	jobQuestions  map[uuid.UUID][]JobQuestion
	tracking      map[uuid.UUID][]QuestionTracking

	// AdvanceHook, when set, runs between the individual steps of
	// AdvanceQuestion. Tests use it to inject a failure mid-sequence and
	// assert that nothing was committed.
	AdvanceHook func(step string) error
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		conversations: make(map[uuid.UUID]*Conversation),
		messages:      make(map[uuid.UUID][]flow.Message),
		jobQuestions:  make(map[uuid.UUID][]JobQuestion),
		tracking:      make(map[uuid.UUID][]QuestionTracking),
	}
}

// SeedConversation registers a conversation snapshot.
func (m *MemStore) SeedConversation(c Conversation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := c
	m.conversations[c.ID] = &cp
}

// SeedJobQuestions registers the configured questions for a job.
func (m *MemStore) SeedJobQuestions(jobID uuid.UUID, questions []JobQuestion) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobQuestions[jobID] = append([]JobQuestion(nil), questions...)
}

// GetConversation returns a copy of the stored conversation, or nil.
func (m *MemStore) GetConversation(_ context.Context, tenantID, conversationID uuid.UUID) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[conversationID]
	if !ok || c.TenantID != tenantID {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

// UpdateStage moves the stage forward; regressions are ignored.
func (m *MemStore) UpdateStage(_ context.Context, tenantID, conversationID uuid.UUID, stage flow.Stage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateStageLocked(tenantID, conversationID, stage)
}

func (m *MemStore) updateStageLocked(tenantID, conversationID uuid.UUID, stage flow.Stage) error {
	c, ok := m.conversations[conversationID]
	if !ok || c.TenantID != tenantID {
		return nil
	}
	if c.Stage.Before(stage) {
		c.Stage = stage
		c.UpdatedAt = time.Now()
	}
	return nil
}

// UpdateStatus writes the status; interrupted never goes back to ongoing.
func (m *MemStore) UpdateStatus(_ context.Context, tenantID, conversationID uuid.UUID, status flow.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[conversationID]
	if !ok || c.TenantID != tenantID {
		return nil
	}
	if c.Status == flow.StatusInterrupted && status == flow.StatusOngoing {
		return nil
	}
	c.Status = status
	c.UpdatedAt = time.Now()
	return nil
}

// ListMessages returns up to limit most recent messages, oldest first.
func (m *MemStore) ListMessages(_ context.Context, tenantID, conversationID uuid.UUID, limit int) ([]flow.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[conversationID]
	if !ok || c.TenantID != tenantID {
		return nil, nil
	}
	msgs := m.messages[conversationID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]flow.Message(nil), msgs...), nil
}

// AppendMessage stores one message on the conversation.
func (m *MemStore) AppendMessage(_ context.Context, tenantID, conversationID uuid.UUID, msg flow.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[conversationID]
	if !ok || c.TenantID != tenantID {
		return nil
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	m.messages[conversationID] = append(m.messages[conversationID], msg)
	return nil
}

// ListJobQuestions returns the configured questions in ask order.
func (m *MemStore) ListJobQuestions(_ context.Context, _, jobID uuid.UUID) ([]JobQuestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	qs := append([]JobQuestion(nil), m.jobQuestions[jobID]...)
	sort.SliceStable(qs, func(i, j int) bool { return qs[i].SortOrder < qs[j].SortOrder })
	return qs, nil
}

// ListTracking returns the conversation's tracking rows in ask order.
func (m *MemStore) ListTracking(_ context.Context, _, conversationID uuid.UUID) ([]QuestionTracking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ts := append([]QuestionTracking(nil), m.tracking[conversationID]...)
	sort.SliceStable(ts, func(i, j int) bool { return ts[i].SortOrder < ts[j].SortOrder })
	return ts, nil
}

// OngoingQuestion returns the row currently being discussed, or nil.
func (m *MemStore) OngoingQuestion(_ context.Context, _, conversationID uuid.UUID) (*QuestionTracking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tracking[conversationID] {
		if t.Status == flow.QuestionOngoing {
			cp := t
			return &cp, nil
		}
	}
	return nil, nil
}

// AdvanceQuestion mirrors the Postgres transaction: every mutation is staged
// on copies and only applied once the whole sequence succeeded, so an
// injected failure between steps leaves the store untouched and retryable.
func (m *MemStore) AdvanceQuestion(_ context.Context, p AdvanceParams) (*AdvanceResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hook := func(step string) error {
		if m.AdvanceHook != nil {
			return m.AdvanceHook(step)
		}
		return nil
	}

	staged := append([]QuestionTracking(nil), m.tracking[p.ConversationID]...)
	stagedStage := flow.Stage("")
	result := &AdvanceResult{}

	if p.Stage == flow.StageGreeting {
		questions := append([]JobQuestion(nil), m.jobQuestions[p.JobID]...)
		sort.SliceStable(questions, func(i, j int) bool { return questions[i].SortOrder < questions[j].SortOrder })
		if len(questions) == 0 {
			if err := hook("advance_stage"); err != nil {
				return nil, err
			}
			_ = m.updateStageLocked(p.TenantID, p.ConversationID, flow.StageIntention)
			result.Exhausted = true
			return result, nil
		}
		if err := hook("init_tracking"); err != nil {
			return nil, err
		}
		for _, q := range questions {
			staged = append(staged, QuestionTracking{
				ID:             uuid.New(),
				ConversationID: p.ConversationID,
				QuestionID:     q.ID,
				JobID:          p.JobID,
				ResumeID:       p.ResumeID,
				Content:        q.Content,
				Requirement:    q.Requirement,
				Type:           q.Type,
				Status:         flow.QuestionPending,
				SortOrder:      q.SortOrder,
			})
		}
		stagedStage = flow.StageQuestioning
		result.Initialized = true
	} else if p.CurrentTrackingID != uuid.Nil {
		if err := hook("mark_completed"); err != nil {
			return nil, err
		}
		for i := range staged {
			if staged[i].ID == p.CurrentTrackingID && staged[i].Status == flow.QuestionOngoing {
				staged[i].Status = flow.QuestionCompleted
			}
		}
	}

	if err := hook("find_next"); err != nil {
		return nil, err
	}
	sort.SliceStable(staged, func(i, j int) bool { return staged[i].SortOrder < staged[j].SortOrder })
	nextIdx := -1
	for i := range staged {
		if staged[i].Status == flow.QuestionPending {
			nextIdx = i
			break
		}
	}

	if nextIdx < 0 {
		if err := hook("advance_stage"); err != nil {
			return nil, err
		}
		m.tracking[p.ConversationID] = staged
		_ = m.updateStageLocked(p.TenantID, p.ConversationID, flow.StageIntention)
		result.Exhausted = true
		return result, nil
	}

	if err := hook("mark_ongoing"); err != nil {
		return nil, err
	}
	staged[nextIdx].Status = flow.QuestionOngoing

	// Commit.
	m.tracking[p.ConversationID] = staged
	if stagedStage != "" {
		_ = m.updateStageLocked(p.TenantID, p.ConversationID, stagedStage)
	}
	next := staged[nextIdx]
	result.Next = &next
	return result, nil
}
