package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkobayashi/screenflow/internal/flow"
)

// DB implements Store on a PostgreSQL connection pool.
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Pool exposes the underlying connection pool for collaborators that run
// their own queries, such as the knowledge searcher.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// GetConversation loads one conversation with its denormalized job metadata.
func (db *DB) GetConversation(ctx context.Context, tenantID, conversationID uuid.UUID) (*Conversation, error) {
	var c Conversation
	err := db.pool.QueryRow(ctx,
		`SELECT c.id, c.tenant_id, c.user_id, c.job_id, c.resume_id, c.status, c.stage,
		        j.title, COALESCE(j.description, ''), COALESCE(j.requirements, ''),
		        c.created_at, c.updated_at
		 FROM conversations c
		 JOIN jobs j ON j.id = c.job_id
		 WHERE c.id = $1 AND c.tenant_id = $2`,
		conversationID, tenantID,
	).Scan(&c.ID, &c.TenantID, &c.UserID, &c.JobID, &c.ResumeID, &c.Status, &c.Stage,
		&c.JobTitle, &c.JobDescription, &c.JobRequirements, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &c, nil
}

// UpdateStage moves the conversation's stage forward. A write that would
// regress the stage is ignored, not an error: a losing speculative branch may
// observe stale state.
func (db *DB) UpdateStage(ctx context.Context, tenantID, conversationID uuid.UUID, stage flow.Stage) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin stage update: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := updateStageTx(ctx, tx, tenantID, conversationID, stage); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit stage update: %w", err)
	}
	return nil
}

// updateStageTx applies the forward-only stage write inside a transaction.
func updateStageTx(ctx context.Context, tx pgx.Tx, tenantID, conversationID uuid.UUID, stage flow.Stage) error {
	var current flow.Stage
	err := tx.QueryRow(ctx,
		`SELECT stage FROM conversations WHERE id = $1 AND tenant_id = $2 FOR UPDATE`,
		conversationID, tenantID,
	).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to lock conversation for stage update: %w", err)
	}
	if !current.Before(stage) {
		return nil
	}
	_, err = tx.Exec(ctx,
		`UPDATE conversations SET stage = $1, updated_at = NOW() WHERE id = $2 AND tenant_id = $3`,
		stage, conversationID, tenantID,
	)
	if err != nil {
		return fmt.Errorf("failed to update stage: %w", err)
	}
	return nil
}

// UpdateStatus writes the conversation status. An interrupted conversation is
// never moved back to ongoing.
func (db *DB) UpdateStatus(ctx context.Context, tenantID, conversationID uuid.UUID, status flow.Status) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE conversations SET status = $1, updated_at = NOW()
		 WHERE id = $2 AND tenant_id = $3 AND NOT (status = 'interrupted' AND $1 = 'ongoing')`,
		status, conversationID, tenantID,
	)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	return nil
}

// ListMessages returns the most recent messages in chronological order.
func (db *DB) ListMessages(ctx context.Context, tenantID, conversationID uuid.UUID, limit int) ([]flow.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx,
		`SELECT sender, content, COALESCE(message_type, 'text'), created_at
		 FROM chat_messages
		 WHERE conversation_id = $1 AND tenant_id = $2
		 ORDER BY created_at DESC LIMIT $3`,
		conversationID, tenantID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var msgs []flow.Message
	for rows.Next() {
		var m flow.Message
		if err := rows.Scan(&m.Sender, &m.Content, &m.Type, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	// Reverse into chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// AppendMessage persists one message on the conversation.
func (db *DB) AppendMessage(ctx context.Context, tenantID, conversationID uuid.UUID, msg flow.Message) error {
	msgType := msg.Type
	if msgType == "" {
		msgType = "text"
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO chat_messages (conversation_id, tenant_id, sender, content, message_type)
		 VALUES ($1, $2, $3, $4, $5)`,
		conversationID, tenantID, msg.Sender, msg.Content, msgType,
	)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// ListJobQuestions returns the configured screening questions for a job.
func (db *DB) ListJobQuestions(ctx context.Context, tenantID, jobID uuid.UUID) ([]JobQuestion, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, job_id, content, COALESCE(requirement, ''), question_type, sort_order
		 FROM job_questions
		 WHERE job_id = $1 AND tenant_id = $2
		 ORDER BY sort_order ASC`,
		jobID, tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list job questions: %w", err)
	}
	defer rows.Close()

	var questions []JobQuestion
	for rows.Next() {
		var q JobQuestion
		if err := rows.Scan(&q.ID, &q.JobID, &q.Content, &q.Requirement, &q.Type, &q.SortOrder); err != nil {
			return nil, fmt.Errorf("failed to scan job question: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, nil
}

// listJobQuestionsTx reads the configured questions inside a transaction.
func listJobQuestionsTx(ctx context.Context, tx pgx.Tx, tenantID, jobID uuid.UUID) ([]JobQuestion, error) {
	rows, err := tx.Query(ctx,
		`SELECT id, job_id, content, COALESCE(requirement, ''), question_type, sort_order
		 FROM job_questions
		 WHERE job_id = $1 AND tenant_id = $2
		 ORDER BY sort_order ASC`,
		jobID, tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list job questions: %w", err)
	}
	defer rows.Close()

	var questions []JobQuestion
	for rows.Next() {
		var q JobQuestion
		if err := rows.Scan(&q.ID, &q.JobID, &q.Content, &q.Requirement, &q.Type, &q.SortOrder); err != nil {
			return nil, fmt.Errorf("failed to scan job question: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, nil
}

const trackingColumns = `id, conversation_id, question_id, job_id, resume_id,
	content, COALESCE(requirement, ''), question_type, status, sort_order`

func scanTracking(row pgx.Row) (*QuestionTracking, error) {
	var t QuestionTracking
	err := row.Scan(&t.ID, &t.ConversationID, &t.QuestionID, &t.JobID, &t.ResumeID,
		&t.Content, &t.Requirement, &t.Type, &t.Status, &t.SortOrder)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTracking returns all tracking rows for a conversation in ask order.
func (db *DB) ListTracking(ctx context.Context, tenantID, conversationID uuid.UUID) ([]QuestionTracking, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+trackingColumns+`
		 FROM conversation_question_tracking
		 WHERE conversation_id = $1 AND tenant_id = $2
		 ORDER BY sort_order ASC`,
		conversationID, tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list question tracking: %w", err)
	}
	defer rows.Close()

	var tracked []QuestionTracking
	for rows.Next() {
		t, err := scanTracking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan question tracking: %w", err)
		}
		tracked = append(tracked, *t)
	}
	return tracked, nil
}

// OngoingQuestion returns the row currently being discussed, or nil.
func (db *DB) OngoingQuestion(ctx context.Context, tenantID, conversationID uuid.UUID) (*QuestionTracking, error) {
	t, err := scanTracking(db.pool.QueryRow(ctx,
		`SELECT `+trackingColumns+`
		 FROM conversation_question_tracking
		 WHERE conversation_id = $1 AND tenant_id = $2 AND status = 'ongoing'
		 ORDER BY sort_order ASC LIMIT 1`,
		conversationID, tenantID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get ongoing question: %w", err)
	}
	return t, nil
}

// AdvanceQuestion performs one question-advancement step in a single
// transaction: initialize-or-complete, pick the next pending row, mark it
// ongoing, and move the conversation stage when the list is exhausted.
func (db *DB) AdvanceQuestion(ctx context.Context, p AdvanceParams) (*AdvanceResult, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin question advance: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	result := &AdvanceResult{}

	if p.Stage == flow.StageGreeting {
		questions, err := listJobQuestionsTx(ctx, tx, p.TenantID, p.JobID)
		if err != nil {
			return nil, err
		}
		if len(questions) == 0 {
			if err := updateStageTx(ctx, tx, p.TenantID, p.ConversationID, flow.StageIntention); err != nil {
				return nil, err
			}
			if err := tx.Commit(ctx); err != nil {
				return nil, fmt.Errorf("failed to commit question advance: %w", err)
			}
			result.Exhausted = true
			return result, nil
		}

		for _, q := range questions {
			_, err := tx.Exec(ctx,
				`INSERT INTO conversation_question_tracking
				   (conversation_id, tenant_id, user_id, question_id, job_id, resume_id,
				    content, requirement, question_type, status, sort_order)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'pending', $10)`,
				p.ConversationID, p.TenantID, p.UserID, q.ID, p.JobID, p.ResumeID,
				q.Content, q.Requirement, q.Type, q.SortOrder,
			)
			if err != nil {
				return nil, fmt.Errorf("failed to initialize question tracking: %w", err)
			}
		}
		if err := updateStageTx(ctx, tx, p.TenantID, p.ConversationID, flow.StageQuestioning); err != nil {
			return nil, err
		}
		result.Initialized = true
	} else if p.CurrentTrackingID != uuid.Nil {
		_, err := tx.Exec(ctx,
			`UPDATE conversation_question_tracking
			 SET status = 'completed', updated_at = NOW()
			 WHERE id = $1 AND tenant_id = $2 AND status = 'ongoing'`,
			p.CurrentTrackingID, p.TenantID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to complete current question: %w", err)
		}
	}

	next, err := scanTracking(tx.QueryRow(ctx,
		`SELECT `+trackingColumns+`
		 FROM conversation_question_tracking
		 WHERE conversation_id = $1 AND tenant_id = $2 AND status = 'pending'
		 ORDER BY sort_order ASC LIMIT 1
		 FOR UPDATE`,
		p.ConversationID, p.TenantID,
	))
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("failed to find next pending question: %w", err)
		}
		if err := updateStageTx(ctx, tx, p.TenantID, p.ConversationID, flow.StageIntention); err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("failed to commit question advance: %w", err)
		}
		result.Exhausted = true
		return result, nil
	}

	_, err = tx.Exec(ctx,
		`UPDATE conversation_question_tracking
		 SET status = 'ongoing', updated_at = NOW()
		 WHERE id = $1 AND tenant_id = $2`,
		next.ID, p.TenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to mark next question ongoing: %w", err)
	}
	next.Status = flow.QuestionOngoing

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit question advance: %w", err)
	}
	result.Next = next
	return result, nil
}
