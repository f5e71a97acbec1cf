// Package knowledge provides the knowledge-base search collaborator used by
// the knowledge-answer node: given a job and the candidate's message, return
// the grounding passages the model may answer from.
package knowledge

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkobayashi/screenflow/internal/flow"
)

// DefaultTopK bounds how many passages a single answer is grounded on.
const DefaultTopK = 3

// Searcher finds grounding passages for a candidate question.
type Searcher interface {
	Search(ctx context.Context, tenantID, jobID uuid.UUID, query string, topK int) ([]flow.KnowledgePassage, error)
}

// PGSearcher implements Searcher with PostgreSQL full-text search over the
// job_knowledge table.
type PGSearcher struct {
	pool *pgxpool.Pool
}

// NewPGSearcher wraps an existing connection pool.
func NewPGSearcher(pool *pgxpool.Pool) *PGSearcher {
	return &PGSearcher{pool: pool}
}

// Search ranks knowledge entries against the query and returns the top hits.
func (s *PGSearcher) Search(ctx context.Context, tenantID, jobID uuid.UUID, query string, topK int) ([]flow.KnowledgePassage, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	rows, err := s.pool.Query(ctx,
		`SELECT question, answer,
		        ts_rank(search_vector, websearch_to_tsquery('simple', $3)) AS rank
		 FROM job_knowledge
		 WHERE job_id = $1 AND tenant_id = $2
		   AND search_vector @@ websearch_to_tsquery('simple', $3)
		 ORDER BY rank DESC
		 LIMIT $4`,
		jobID, tenantID, query, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search knowledge base: %w", err)
	}
	defer rows.Close()

	var passages []flow.KnowledgePassage
	for rows.Next() {
		var p flow.KnowledgePassage
		if err := rows.Scan(&p.Question, &p.Answer, &p.Score); err != nil {
			return nil, fmt.Errorf("failed to scan knowledge passage: %w", err)
		}
		passages = append(passages, p)
	}
	return passages, nil
}
