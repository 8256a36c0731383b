package postgres

import (
	"context"
	"fmt"

	"github.com/Strob0t/TaskPilot/internal/domain/session"
	"github.com/Strob0t/TaskPilot/internal/domain/worker"
)

const sessionColumns = `id, COALESCE(task_id::text, ''), runner_type,
	COALESCE(executed_by_worker_type, ''), created_at, updated_at`

func scanSession(row scannable) (*session.Session, error) {
	var sess session.Session
	err := row.Scan(&sess.ID, &sess.TaskID, &sess.RunnerType, &sess.ExecutedBy,
		&sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// GetSession returns a session by ID.
func (s *Store) GetSession(ctx context.Context, id string) (*session.Session, error) {
	sess, err := scanSession(s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundWrap(err, "get session %s", id)
	}
	return sess, nil
}

// CreateSession inserts a new session.
func (s *Store) CreateSession(ctx context.Context, req session.CreateRequest) (*session.Session, error) {
	sess, err := scanSession(s.pool.QueryRow(ctx,
		`INSERT INTO sessions (task_id, runner_type) VALUES ($1, $2)
		 RETURNING `+sessionColumns,
		nullIfEmpty(req.TaskID), req.RunnerType))
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// UpdateSessionWorkerType records the routing decision on the session.
func (s *Store) UpdateSessionWorkerType(ctx context.Context, id string, wt worker.Type) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET executed_by_worker_type = $2, updated_at = NOW() WHERE id = $1`, id, wt)
	return execExpectOne(tag, err, "update session %s worker type", id)
}

// AppendMessage appends one runner chunk to the session's message stream.
// Seq is assigned from the current stream length so ordering follows arrival.
func (s *Store) AppendMessage(ctx context.Context, sessionID, kind string, payload []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO session_messages (session_id, seq, kind, payload)
		 VALUES ($1,
		         (SELECT COALESCE(MAX(seq), -1) + 1 FROM session_messages WHERE session_id = $1),
		         $2, $3)`,
		sessionID, kind, payload)
	if err != nil {
		return fmt.Errorf("append message to session %s: %w", sessionID, err)
	}
	return nil
}

// ListMessages returns a session's message stream in arrival order.
func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]session.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, seq, kind, payload, created_at
		 FROM session_messages WHERE session_id = $1 ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var result []session.Message
	for rows.Next() {
		var m session.Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Seq, &m.Kind, &m.Payload, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}
