package services

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/swarmhq/hive/pkg/events"
	"github.com/swarmhq/hive/pkg/models"
)

// RequestService manages user prompts within a session.
type RequestService struct {
	pool *pgxpool.Pool
	pub  *events.Publisher
}

// NewRequestService creates a new RequestService.
func NewRequestService(pool *pgxpool.Pool, pub *events.Publisher) *RequestService {
	return &RequestService{pool: pool, pub: pub}
}

const requestColumns = `id, project_id, session_id, prompt, prompt_type, status, metadata, created_at, completed_at`

func scanRequest(row pgx.Row) (*models.Request, error) {
	var r models.Request
	var metadataJSON []byte
	err := row.Scan(&r.ID, &r.ProjectID, &r.SessionID, &r.Prompt, &r.PromptType,
		&r.Status, &metadataJSON, &r.CreatedAt, &r.CompletedAt)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSONB(metadataJSON, &r.Metadata); err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRequest records one user prompt. The session is upserted so hooks can
// report prompts before a session-start event lands; the project comes from
// project_id or is upserted from project_path.
func (s *RequestService) CreateRequest(ctx context.Context, req models.CreateRequestRequest) (*models.Request, error) {
	if req.SessionID == "" {
		return nil, NewValidationError("session_id", "required")
	}
	if req.Prompt == "" {
		return nil, NewValidationError("prompt", "required")
	}
	if req.ProjectID == "" && req.ProjectPath == "" {
		return nil, NewValidationError("project_id", "project_id or project_path required")
	}
	promptType := req.PromptType
	if promptType == "" {
		promptType = "other"
	}
	if !models.PromptTypes[promptType] {
		return nil, NewValidationError("prompt_type", fmt.Sprintf("unknown prompt type %q", promptType))
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

	projectID := req.ProjectID
	if projectID == "" {
		projectID, err = upsertProjectTx(ctx, tx, req.ProjectPath)
		if err != nil {
			return nil, err
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO sessions (id, project_id)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET
			project_id = COALESCE(sessions.project_id, EXCLUDED.project_id)`,
		req.SessionID, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert session for request: %w", err)
	}

	request, err := scanRequest(tx.QueryRow(ctx, `
		INSERT INTO requests (project_id, session_id, prompt, prompt_type, metadata)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+requestColumns,
		projectID, req.SessionID, req.Prompt, promptType, metadataJSON))
	if err != nil {
		if isPgError(err, pgForeignKeyViolation) {
			return nil, NewNotFoundError("project", projectID)
		}
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	err = s.pub.PublishAll(ctx, tx, events.EventRequestCreated, map[string]any{
		"request_id":  request.ID,
		"session_id":  request.SessionID,
		"prompt_type": request.PromptType,
	}, events.ChannelGlobal, events.SessionChannel(request.SessionID))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit request: %w", err)
	}
	return request, nil
}

// GetRequest returns one request by id.
func (s *RequestService) GetRequest(ctx context.Context, id string) (*models.Request, error) {
	request, err := scanRequest(s.pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, NewNotFoundError("request", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return request, nil
}

// ListRequests returns a page of requests, filtered by session and/or project.
func (s *RequestService) ListRequests(ctx context.Context, sessionID, projectID string, params models.ListParams) ([]models.Request, error) {
	limit := clampLimit(params.Limit, 100, 100)

	query := `SELECT ` + requestColumns + ` FROM requests WHERE 1=1`
	args := []any{limit, params.Offset}
	if sessionID != "" {
		args = append(args, sessionID)
		query += fmt.Sprintf(` AND session_id = $%d`, len(args))
	}
	if projectID != "" {
		args = append(args, projectID)
		query += fmt.Sprintf(` AND project_id = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	requests := []models.Request{}
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		requests = append(requests, *r)
	}
	return requests, rows.Err()
}

// UpdateRequest patches a request. A terminal status stamps completed_at
// exactly once; metadata is shallow-merged.
func (s *RequestService) UpdateRequest(ctx context.Context, id string, req models.UpdateRequestRequest) (*models.Request, error) {
	status := ""
	if req.Status != nil {
		status = *req.Status
		if !models.RequestStatuses[status] {
			return nil, NewValidationError("status", fmt.Sprintf("unknown request status %q", status))
		}
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

	request, err := scanRequest(tx.QueryRow(ctx, `
		UPDATE requests SET
			status = CASE WHEN $2 <> '' THEN $2 ELSE status END,
			completed_at = CASE WHEN $3 THEN COALESCE(completed_at, now()) ELSE completed_at END,
			metadata = metadata || $4
		WHERE id = $1
		RETURNING `+requestColumns,
		id, status, models.IsTerminalStatus(status), metadataJSON))
	if err == pgx.ErrNoRows {
		return nil, NewNotFoundError("request", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update request: %w", err)
	}

	if models.IsTerminalStatus(status) {
		err = s.pub.PublishAll(ctx, tx, events.EventRequestCompleted, map[string]any{
			"request_id": request.ID,
			"session_id": request.SessionID,
			"status":     request.Status,
		}, events.ChannelGlobal, events.SessionChannel(request.SessionID))
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit request update: %w", err)
	}
	return request, nil
}

// DeleteRequest removes a request and cascades to its tasks and subtasks.
func (s *RequestService) DeleteRequest(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM requests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return NewNotFoundError("request", id)
	}
	return nil
}
