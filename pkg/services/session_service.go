package services

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/swarmhq/hive/pkg/events"
	"github.com/swarmhq/hive/pkg/models"
)

// SessionService manages agent host sessions. Session IDs are supplied by the
// client; creation is strict, but the ingest path upserts.
type SessionService struct {
	pool *pgxpool.Pool
	pub  *events.Publisher
}

// NewSessionService creates a new SessionService.
func NewSessionService(pool *pgxpool.Pool, pub *events.Publisher) *SessionService {
	return &SessionService{pool: pool, pub: pub}
}

const sessionColumns = `id, project_id, started_at, ended_at, total_tools_used, total_success, total_errors, metadata`

func scanSession(row pgx.Row) (*models.Session, error) {
	var s models.Session
	var metadataJSON []byte
	err := row.Scan(&s.ID, &s.ProjectID, &s.StartedAt, &s.EndedAt,
		&s.TotalToolsUsed, &s.TotalSuccess, &s.TotalErrors, &metadataJSON)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSONB(metadataJSON, &s.Metadata); err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSession registers a new session. A duplicate session id is a
// conflict, unlike project creation which upserts.
func (s *SessionService) CreateSession(ctx context.Context, req models.CreateSessionRequest) (*models.Session, error) {
	if req.SessionID == "" {
		return nil, NewValidationError("session_id", "required")
	}

	metadataJSON, err := marshalJSONB(req.Metadata)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var projectID *string
	switch {
	case req.ProjectID != "":
		projectID = &req.ProjectID
	case req.ProjectPath != "":
		id, err := upsertProjectTx(ctx, tx, req.ProjectPath)
		if err != nil {
			return nil, err
		}
		projectID = &id
	}

	session, err := scanSession(tx.QueryRow(ctx, `
		INSERT INTO sessions (id, project_id, metadata)
		VALUES ($1, $2, $3)
		RETURNING `+sessionColumns,
		req.SessionID, projectID, metadataJSON))
	if err != nil {
		if isPgError(err, pgUniqueViolation) {
			return nil, fmt.Errorf("session %s: %w", req.SessionID, ErrAlreadyExists)
		}
		if isPgError(err, pgForeignKeyViolation) {
			return nil, NewNotFoundError("project", req.ProjectID)
		}
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	err = s.pub.PublishAll(ctx, tx, events.EventSessionStarted, map[string]any{
		"session_id": session.ID,
		"project_id": session.ProjectID,
	}, events.ChannelGlobal, events.SessionChannel(session.ID))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit session: %w", err)
	}
	return session, nil
}

// GetSession returns one session by id.
func (s *SessionService) GetSession(ctx context.Context, id string) (*models.Session, error) {
	session, err := scanSession(s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, NewNotFoundError("session", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// ListSessions returns a page of sessions, optionally filtered by project.
func (s *SessionService) ListSessions(ctx context.Context, projectID string, params models.ListParams) ([]models.Session, error) {
	limit := clampLimit(params.Limit, 100, 100)

	query := `SELECT ` + sessionColumns + ` FROM sessions`
	args := []any{limit, params.Offset}
	if projectID != "" {
		query += ` WHERE project_id = $3`
		args = append(args, projectID)
	}
	query += ` ORDER BY started_at DESC LIMIT $1 OFFSET $2`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []models.Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

// UpdateSession patches a session. Setting ended stamps ended_at exactly
// once; metadata is shallow-merged.
func (s *SessionService) UpdateSession(ctx context.Context, id string, req models.UpdateSessionRequest) (*models.Session, error) {
	metadataJSON, err := marshalJSONB(req.Metadata)
	if err != nil {
		return nil, err
	}
	ending := req.Ended != nil && *req.Ended

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	session, err := scanSession(tx.QueryRow(ctx, `
		UPDATE sessions SET
			ended_at = CASE WHEN $2 THEN COALESCE(ended_at, now()) ELSE ended_at END,
			metadata = metadata || $3
		WHERE id = $1
		RETURNING `+sessionColumns,
		id, ending, metadataJSON))
	if err == pgx.ErrNoRows {
		return nil, NewNotFoundError("session", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}

	if ending {
		err = s.pub.PublishAll(ctx, tx, events.EventSessionEnded, map[string]any{
			"session_id": session.ID,
		}, events.ChannelGlobal, events.SessionChannel(session.ID))
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit session update: %w", err)
	}
	return session, nil
}

// DeleteSession removes a session and cascades to its requests and actions.
func (s *SessionService) DeleteSession(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return NewNotFoundError("session", id)
	}
	return nil
}

// MarkCompacted records a compaction marker in the session's metadata. The
// session row is created if the restore arrives before any other write for
// that session id.
func (s *SessionService) MarkCompacted(ctx context.Context, sessionID, summary, agentID string) error {
	marker, err := marshalJSONB(map[string]any{
		"compacted":       true,
		"compacted_at":    time.Now().UTC().Format(time.RFC3339),
		"compact_summary": summary,
		"compact_agent":   agentID,
	})
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO sessions (id, metadata)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET metadata = sessions.metadata || EXCLUDED.metadata`,
		sessionID, marker)
	if err != nil {
		return fmt.Errorf("failed to mark session compacted: %w", err)
	}
	return nil
}

// SessionStats returns the aggregate rollup for GET /sessions/stats.
func (s *SessionService) SessionStats(ctx context.Context) (*models.SessionStats, error) {
	var st models.SessionStats
	err := s.pool.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE ended_at IS NULL),
		       count(*) FILTER (WHERE ended_at IS NOT NULL),
		       COALESCE(avg(total_tools_used), 0),
		       COALESCE(sum(total_tools_used), 0),
		       COALESCE(sum(total_errors), 0)
		FROM sessions`).Scan(
		&st.Total, &st.Active, &st.Ended, &st.AvgToolsUsed, &st.TotalToolsUsed, &st.TotalErrors)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate session stats: %w", err)
	}
	return &st, nil
}

// ActiveSessions lists sessions without an ended_at, annotated with their
// project path and a count of in-flight subtasks.
func (s *SessionService) ActiveSessions(ctx context.Context) ([]models.ActiveSession, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT s.id, s.project_id, s.started_at, s.ended_at,
		       s.total_tools_used, s.total_success, s.total_errors, s.metadata,
		       p.path,
		       (SELECT count(*)
		        FROM subtasks st
		        JOIN tasks t ON t.id = st.task_id
		        JOIN requests r ON r.id = t.request_id
		        WHERE r.session_id = s.id
		          AND st.status IN ('running', 'paused', 'blocked'))
		FROM sessions s
		LEFT JOIN projects p ON p.id = s.project_id
		WHERE s.ended_at IS NULL
		ORDER BY s.started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}
	defer rows.Close()

	sessions := []models.ActiveSession{}
	for rows.Next() {
		var as models.ActiveSession
		var metadataJSON []byte
		err := rows.Scan(&as.ID, &as.ProjectID, &as.StartedAt, &as.EndedAt,
			&as.TotalToolsUsed, &as.TotalSuccess, &as.TotalErrors, &metadataJSON,
			&as.ProjectPath, &as.ActiveSubtasks)
		if err != nil {
			return nil, fmt.Errorf("failed to scan active session: %w", err)
		}
		if err := unmarshalJSONB(metadataJSON, &as.Metadata); err != nil {
			return nil, err
		}
		sessions = append(sessions, as)
	}
	return sessions, rows.Err()
}

// upsertSessionForIngestTx upserts the session row for one ingested action
// and bumps its counters atomically with the action insert. A missing
// project_id is backfilled but never overwritten.
func upsertSessionForIngestTx(ctx context.Context, tx pgx.Tx, sessionID string, projectID *string, success bool) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO sessions (id, project_id, total_tools_used, total_success, total_errors)
		VALUES ($1, $2, 1, CASE WHEN $3 THEN 1 ELSE 0 END, CASE WHEN $3 THEN 0 ELSE 1 END)
		ON CONFLICT (id) DO UPDATE SET
			project_id       = COALESCE(sessions.project_id, EXCLUDED.project_id),
			total_tools_used = sessions.total_tools_used + 1,
			total_success    = sessions.total_success + CASE WHEN $3 THEN 1 ELSE 0 END,
			total_errors     = sessions.total_errors + CASE WHEN $3 THEN 0 ELSE 1 END`,
		sessionID, projectID, success)
	if err != nil {
		return fmt.Errorf("failed to upsert session %s: %w", sessionID, err)
	}
	return nil
}
