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

// ActionService handles the fire-and-forget hook ingest path and action
// queries. One ingested action atomically upserts its project and session,
// bumps the session counters, stores the (possibly compressed) blobs, feeds
// the routing store and emits one notification.
type ActionService struct {
	pool *pgxpool.Pool
	pub  *events.Publisher
}

// NewActionService creates a new ActionService.
func NewActionService(pool *pgxpool.Pool, pub *events.Publisher) *ActionService {
	return &ActionService{pool: pool, pub: pub}
}

const actionColumns = `id, subtask_id, session_id, tool_name, tool_type, input, output, file_paths, exit_code, duration_ms, metadata, created_at`

func scanAction(row pgx.Row) (*models.Action, error) {
	var a models.Action
	var input, output []byte
	var metadataJSON []byte
	err := row.Scan(&a.ID, &a.SubtaskID, &a.SessionID, &a.ToolName, &a.ToolType,
		&input, &output, &a.FilePaths, &a.ExitCode, &a.DurationMS, &metadataJSON, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	if a.Input, err = decompressBlob(input); err != nil {
		return nil, err
	}
	if a.Output, err = decompressBlob(output); err != nil {
		return nil, err
	}
	if err := unmarshalJSONB(metadataJSON, &a.Metadata); err != nil {
		return nil, err
	}
	return &a, nil
}

// ingestWriteTimeout bounds the ingest transaction so hook clients never wait
// on a slow database.
const ingestWriteTimeout = time.Second

// CreateAction ingests one tool invocation.
func (s *ActionService) CreateAction(ctx context.Context, req models.CreateActionRequest) (*models.Action, error) {
	if req.ToolName == "" {
		return nil, NewValidationError("tool_name", "required")
	}
	toolType := req.ToolType
	if toolType == "" {
		toolType = "builtin"
	}
	if !models.ToolTypes[toolType] {
		return nil, NewValidationError("tool_type", fmt.Sprintf("unknown tool type %q", toolType))
	}

	success := req.ExitCode == nil || *req.ExitCode == 0

	inputBlob, inputCompressed, err := compressBlob(req.Input)
	if err != nil {
		return nil, err
	}
	outputBlob, outputCompressed, err := compressBlob(req.Output)
	if err != nil {
		return nil, err
	}
	metadata := req.Metadata
	if inputCompressed || outputCompressed {
		if metadata == nil {
			metadata = map[string]any{}
		}
		if inputCompressed {
			metadata["input_compressed"] = true
		}
		if outputCompressed {
			metadata["output_compressed"] = true
		}
	}
	metadataJSON, err := marshalJSONB(metadata)
	if err != nil {
		return nil, err
	}
	filePaths := req.FilePaths
	if filePaths == nil {
		filePaths = []string{}
	}

	writeCtx, cancel := context.WithTimeout(ctx, ingestWriteTimeout)
	defer cancel()

	tx, err := s.pool.Begin(writeCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(writeCtx) }()

	var projectID *string
	if req.ProjectPath != "" {
		id, err := upsertProjectTx(writeCtx, tx, req.ProjectPath)
		if err != nil {
			return nil, err
		}
		projectID = &id
	}

	var sessionID *string
	if req.SessionID != "" {
		if err := upsertSessionForIngestTx(writeCtx, tx, req.SessionID, projectID, success); err != nil {
			return nil, err
		}
		sessionID = &req.SessionID
	}

	var subtaskID *string
	if req.SubtaskID != "" {
		subtaskID = &req.SubtaskID
	}

	action, err := scanAction(tx.QueryRow(writeCtx, `
		INSERT INTO actions (subtask_id, session_id, tool_name, tool_type, input, output, file_paths, exit_code, duration_ms, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+actionColumns,
		subtaskID, sessionID, req.ToolName, toolType, inputBlob, outputBlob,
		filePaths, req.ExitCode, req.DurationMS, metadataJSON))
	if err != nil {
		if isPgError(err, pgForeignKeyViolation) {
			return nil, NewValidationError("subtask_id", "references a non-existent subtask")
		}
		return nil, fmt.Errorf("failed to insert action: %w", err)
	}

	if err := upsertKeywordScoresTx(writeCtx, tx, req.ToolName, toolType, req.Input, success); err != nil {
		return nil, err
	}

	channels := []string{events.ChannelGlobal}
	if sessionID != nil {
		channels = append(channels, events.SessionChannel(*sessionID))
	}
	err = s.pub.PublishAll(writeCtx, tx, events.EventActionCreated, map[string]any{
		"action_id":  action.ID,
		"session_id": action.SessionID,
		"tool_name":  action.ToolName,
		"tool_type":  action.ToolType,
		"exit_code":  action.ExitCode,
	}, channels...)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(writeCtx); err != nil {
		return nil, fmt.Errorf("failed to commit action: %w", err)
	}
	return action, nil
}

// ActionListParams filters GET /actions.
type ActionListParams struct {
	SessionID string
	SubtaskID string
	ToolName  string
	Limit     int
	Offset    int
}

// ListActions returns a page of actions, newest first. The cap is higher
// than other resources because dashboards replay full sessions.
func (s *ActionService) ListActions(ctx context.Context, params ActionListParams) ([]models.Action, error) {
	limit := clampLimit(params.Limit, 100, 5000)

	query := `SELECT ` + actionColumns + ` FROM actions WHERE 1=1`
	args := []any{limit, params.Offset}
	if params.SessionID != "" {
		args = append(args, params.SessionID)
		query += fmt.Sprintf(` AND session_id = $%d`, len(args))
	}
	if params.SubtaskID != "" {
		args = append(args, params.SubtaskID)
		query += fmt.Sprintf(` AND subtask_id = $%d`, len(args))
	}
	if params.ToolName != "" {
		args = append(args, params.ToolName)
		query += fmt.Sprintf(` AND tool_name = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	defer rows.Close()

	actions := []models.Action{}
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		actions = append(actions, *a)
	}
	return actions, rows.Err()
}

// HourlyActionCounts buckets the last 24 hours of actions per hour.
func (s *ActionService) HourlyActionCounts(ctx context.Context) ([]models.HourlyActionCount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT date_trunc('hour', created_at) AS hour,
		       count(*),
		       count(*) FILTER (WHERE exit_code IS NOT NULL AND exit_code <> 0),
		       COALESCE(avg(duration_ms), 0),
		       count(DISTINCT tool_name)
		FROM actions
		WHERE created_at > now() - interval '24 hours'
		GROUP BY 1
		ORDER BY 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate hourly actions: %w", err)
	}
	defer rows.Close()

	buckets := []models.HourlyActionCount{}
	for rows.Next() {
		var b models.HourlyActionCount
		if err := rows.Scan(&b.Hour, &b.Count, &b.Errors, &b.AvgMS, &b.Distinct); err != nil {
			return nil, fmt.Errorf("failed to scan hourly bucket: %w", err)
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// DeleteAction removes one action by id.
func (s *ActionService) DeleteAction(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM actions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete action: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return NewNotFoundError("action", id)
	}
	return nil
}

// DeleteActionsBySession removes all actions of one session and reports how
// many were deleted.
func (s *ActionService) DeleteActionsBySession(ctx context.Context, sessionID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM actions WHERE session_id = $1`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete actions for session %s: %w", sessionID, err)
	}
	return tag.RowsAffected(), nil
}
