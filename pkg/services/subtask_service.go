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

// SubtaskService manages units of agent work and their lifecycle events.
type SubtaskService struct {
	pool *pgxpool.Pool
	pub  *events.Publisher
}

// NewSubtaskService creates a new SubtaskService.
func NewSubtaskService(pool *pgxpool.Pool, pub *events.Publisher) *SubtaskService {
	return &SubtaskService{pool: pool, pub: pub}
}

const subtaskColumns = `id, task_id, agent_type, agent_id, description, status, blocked_by, context_snapshot, result, created_at, started_at, completed_at`

func scanSubtask(row pgx.Row) (*models.Subtask, error) {
	var st models.Subtask
	var snapshotJSON, resultJSON []byte
	err := row.Scan(&st.ID, &st.TaskID, &st.AgentType, &st.AgentID, &st.Description,
		&st.Status, &st.BlockedBy, &snapshotJSON, &resultJSON,
		&st.CreatedAt, &st.StartedAt, &st.CompletedAt)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSONB(snapshotJSON, &st.ContextSnapshot); err != nil {
		return nil, err
	}
	if err := unmarshalJSONB(resultJSON, &st.Result); err != nil {
		return nil, err
	}
	return &st, nil
}

// validateBlockedBy rejects blocked_by entries that do not name existing
// subtasks.
func validateBlockedBy(ctx context.Context, tx pgx.Tx, blockedBy []string) error {
	if len(blockedBy) == 0 {
		return nil
	}
	var found int
	err := tx.QueryRow(ctx,
		`SELECT count(*) FROM subtasks WHERE id::text = ANY($1)`, blockedBy).Scan(&found)
	if err != nil {
		return fmt.Errorf("failed to validate blocked_by: %w", err)
	}
	if found != len(blockedBy) {
		return NewValidationError("blocked_by", "references a non-existent subtask")
	}
	return nil
}

// CreateSubtask creates a unit of agent work under a task.
func (s *SubtaskService) CreateSubtask(ctx context.Context, req models.CreateSubtaskRequest) (*models.Subtask, error) {
	if req.TaskID == "" {
		return nil, NewValidationError("task_id", "required")
	}
	if req.Description == "" {
		return nil, NewValidationError("description", "required")
	}
	status := req.Status
	if status == "" {
		status = "pending"
	}
	if !models.SubtaskStatuses[status] {
		return nil, NewValidationError("status", fmt.Sprintf("unknown subtask status %q", status))
	}

	snapshotJSON, err := marshalJSONB(req.ContextSnapshot)
	if err != nil {
		return nil, err
	}
	blockedBy := req.BlockedBy
	if blockedBy == nil {
		blockedBy = []string{}
	}

	var agentType, agentID *string
	if req.AgentType != "" {
		agentType = &req.AgentType
	}
	if req.AgentID != "" {
		agentID = &req.AgentID
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := validateBlockedBy(ctx, tx, blockedBy); err != nil {
		return nil, err
	}

	subtask, err := scanSubtask(tx.QueryRow(ctx, `
		INSERT INTO subtasks (task_id, agent_type, agent_id, description, status, blocked_by, context_snapshot)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+subtaskColumns,
		req.TaskID, agentType, agentID, req.Description, status, blockedBy, snapshotJSON))
	if err != nil {
		if isPgError(err, pgForeignKeyViolation) {
			return nil, NewNotFoundError("task", req.TaskID)
		}
		return nil, fmt.Errorf("failed to create subtask: %w", err)
	}

	err = s.pub.PublishAll(ctx, tx, events.EventSubtaskCreated, map[string]any{
		"subtask_id": subtask.ID,
		"task_id":    subtask.TaskID,
		"agent_type": subtask.AgentType,
		"status":     subtask.Status,
	}, subtaskChannels(subtask)...)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit subtask: %w", err)
	}
	return subtask, nil
}

// subtaskChannels routes subtask events to global and, when the subtask is
// assigned, the agent's channel keyed on agent_type (falling back to agent_id).
func subtaskChannels(st *models.Subtask) []string {
	channels := []string{events.ChannelGlobal}
	switch {
	case st.AgentType != nil && *st.AgentType != "":
		channels = append(channels, events.AgentChannel(*st.AgentType))
	case st.AgentID != nil && *st.AgentID != "":
		channels = append(channels, events.AgentChannel(*st.AgentID))
	}
	return channels
}

// GetSubtask returns one subtask by id.
func (s *SubtaskService) GetSubtask(ctx context.Context, id string) (*models.Subtask, error) {
	subtask, err := scanSubtask(s.pool.QueryRow(ctx,
		`SELECT `+subtaskColumns+` FROM subtasks WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, NewNotFoundError("subtask", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subtask: %w", err)
	}
	return subtask, nil
}

// ListSubtasks returns a page of subtasks, filtered by task, agent and/or
// status.
func (s *SubtaskService) ListSubtasks(ctx context.Context, taskID, agentID, status string, params models.ListParams) ([]models.Subtask, error) {
	limit := clampLimit(params.Limit, 100, 100)

	query := `SELECT ` + subtaskColumns + ` FROM subtasks WHERE 1=1`
	args := []any{limit, params.Offset}
	if taskID != "" {
		args = append(args, taskID)
		query += fmt.Sprintf(` AND task_id = $%d`, len(args))
	}
	if agentID != "" {
		args = append(args, agentID)
		query += fmt.Sprintf(` AND agent_id = $%d`, len(args))
	}
	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	query += ` ORDER BY created_at ASC LIMIT $1 OFFSET $2`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list subtasks: %w", err)
	}
	defer rows.Close()

	subtasks := []models.Subtask{}
	for rows.Next() {
		st, err := scanSubtask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subtask: %w", err)
		}
		subtasks = append(subtasks, *st)
	}
	return subtasks, rows.Err()
}

// UpdateSubtask patches a subtask. Transition side effects run in the same
// transaction: running stamps started_at once and announces the agent;
// a terminal status stamps completed_at once, announces the disconnect, and
// broadcasts an agent.completed message carrying the result.
func (s *SubtaskService) UpdateSubtask(ctx context.Context, id string, req models.UpdateSubtaskRequest) (*models.Subtask, error) {
	status := ""
	if req.Status != nil {
		status = *req.Status
		if !models.SubtaskStatuses[status] {
			return nil, NewValidationError("status", fmt.Sprintf("unknown subtask status %q", status))
		}
	}

	var snapshotJSON []byte
	var err error
	if req.ContextSnapshot != nil {
		snapshotJSON, err = marshalJSONB(req.ContextSnapshot)
		if err != nil {
			return nil, err
		}
	}
	var resultJSON []byte
	if req.Result != nil {
		resultJSON, err = marshalJSONB(req.Result)
		if err != nil {
			return nil, err
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if req.BlockedBy != nil {
		if err := validateBlockedBy(ctx, tx, req.BlockedBy); err != nil {
			return nil, err
		}
	}

	terminal := status == "completed" || status == "failed"

	subtask, err := scanSubtask(tx.QueryRow(ctx, `
		UPDATE subtasks SET
			status = CASE WHEN $2 <> '' THEN $2 ELSE status END,
			agent_type = COALESCE($3, agent_type),
			agent_id = COALESCE($4, agent_id),
			description = COALESCE($5, description),
			blocked_by = COALESCE($6, blocked_by),
			context_snapshot = CASE WHEN $7::jsonb IS NOT NULL THEN context_snapshot || $7 ELSE context_snapshot END,
			result = COALESCE($8, result),
			started_at = CASE WHEN $2 = 'running' THEN COALESCE(started_at, now()) ELSE started_at END,
			completed_at = CASE WHEN $9 THEN COALESCE(completed_at, now()) ELSE completed_at END
		WHERE id = $1
		RETURNING `+subtaskColumns,
		id, status, req.AgentType, req.AgentID, req.Description, req.BlockedBy,
		snapshotJSON, resultJSON, terminal))
	if err == pgx.ErrNoRows {
		return nil, NewNotFoundError("subtask", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update subtask: %w", err)
	}

	switch {
	case status == "running":
		if err := s.publishRunning(ctx, tx, subtask); err != nil {
			return nil, err
		}
	case terminal:
		if err := s.publishTerminal(ctx, tx, subtask, status); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit subtask update: %w", err)
	}
	return subtask, nil
}

func (s *SubtaskService) publishRunning(ctx context.Context, tx pgx.Tx, st *models.Subtask) error {
	data := map[string]any{
		"subtask_id": st.ID,
		"task_id":    st.TaskID,
		"agent_type": st.AgentType,
		"agent_id":   st.AgentID,
	}
	if err := s.pub.PublishAll(ctx, tx, events.EventSubtaskRunning, data, subtaskChannels(st)...); err != nil {
		return err
	}
	return s.pub.PublishAll(ctx, tx, events.EventAgentConnected, data, events.ChannelGlobal)
}

func (s *SubtaskService) publishTerminal(ctx context.Context, tx pgx.Tx, st *models.Subtask, status string) error {
	data := map[string]any{
		"subtask_id": st.ID,
		"task_id":    st.TaskID,
		"agent_type": st.AgentType,
		"agent_id":   st.AgentID,
		"status":     status,
		"result":     st.Result,
	}

	event := events.EventSubtaskCompleted
	if status == "failed" {
		event = events.EventSubtaskFailed
	}
	if err := s.pub.PublishAll(ctx, tx, event, data, subtaskChannels(st)...); err != nil {
		return err
	}
	if err := s.pub.PublishAll(ctx, tx, events.EventAgentDisconnected, data, events.ChannelGlobal); err != nil {
		return err
	}

	// Broadcast agent.completed so the orchestrator learns the outcome even
	// for untyped one-off agents.
	fromAgent := "subtask:" + st.ID
	if st.AgentID != nil && *st.AgentID != "" {
		fromAgent = *st.AgentID
	}
	payloadJSON, err := marshalJSONB(map[string]any{
		"subtask_id":  st.ID,
		"task_id":     st.TaskID,
		"agent_type":  st.AgentType,
		"status":      status,
		"description": st.Description,
		"result":      st.Result,
	})
	if err != nil {
		return err
	}

	var msgID string
	err = tx.QueryRow(ctx, `
		INSERT INTO agent_messages (from_agent, to_agent, topic, payload, priority, expires_at)
		VALUES ($1, NULL, 'agent.completed', $2, 5, now() + interval '1 hour')
		RETURNING id`,
		fromAgent, payloadJSON).Scan(&msgID)
	if err != nil {
		return fmt.Errorf("failed to insert agent.completed message: %w", err)
	}

	return s.pub.PublishAll(ctx, tx, events.EventMessageCreated, map[string]any{
		"message_id": msgID,
		"from_agent": fromAgent,
		"topic":      "agent.completed",
		"subtask_id": st.ID,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}, events.TopicChannel("agent.completed"))
}

// DeleteSubtask removes a subtask. Its actions survive with subtask_id NULL.
func (s *SubtaskService) DeleteSubtask(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM subtasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete subtask: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return NewNotFoundError("subtask", id)
	}
	return nil
}
