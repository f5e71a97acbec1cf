package knowledge

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mkobayashi/screenflow/internal/flow"
)

// MemSearcher is a keyword-overlap Searcher for tests and the simulate
// command. Scoring is deliberately crude; only relative order matters.
type MemSearcher struct {
	mu      sync.RWMutex
	entries map[uuid.UUID][]flow.KnowledgePassage
}

// NewMemSearcher returns an empty in-memory searcher.
func NewMemSearcher() *MemSearcher {
	return &MemSearcher{entries: make(map[uuid.UUID][]flow.KnowledgePassage)}
}

// Seed registers knowledge entries for a job.
func (s *MemSearcher) Seed(jobID uuid.UUID, passages []flow.KnowledgePassage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[jobID] = append(s.entries[jobID], passages...)
}

// Search scores entries by shared lowercase terms with the query.
func (s *MemSearcher) Search(_ context.Context, _, jobID uuid.UUID, query string, topK int) ([]flow.KnowledgePassage, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	terms := strings.Fields(strings.ToLower(query))
	var hits []flow.KnowledgePassage
	for _, p := range s.entries[jobID] {
		text := strings.ToLower(p.Question + " " + p.Answer)
		score := 0.0
		for _, t := range terms {
			if strings.Contains(text, t) {
				score++
			}
		}
		if score > 0 {
			p.Score = score
			hits = append(hits, p)
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}
