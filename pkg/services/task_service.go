package services

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/swarmhq/hive/pkg/events"
	"github.com/swarmhq/hive/pkg/models"
)

// TaskService manages waves of work under a request.
type TaskService struct {
	pool *pgxpool.Pool
	pub  *events.Publisher
}

// NewTaskService creates a new TaskService.
func NewTaskService(pool *pgxpool.Pool, pub *events.Publisher) *TaskService {
	return &TaskService{pool: pool, pub: pub}
}

const taskColumns = `id, request_id, name, wave_number, status, created_at, completed_at`

func scanTask(row pgx.Row) (*models.Task, error) {
	var t models.Task
	err := row.Scan(&t.ID, &t.RequestID, &t.Name, &t.WaveNumber, &t.Status, &t.CreatedAt, &t.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTask creates a wave. An omitted wave_number takes the next number
// within the request, computed in the same statement to stay atomic.
func (s *TaskService) CreateTask(ctx context.Context, req models.CreateTaskRequest) (*models.Task, error) {
	if req.RequestID == "" {
		return nil, NewValidationError("request_id", "required")
	}
	if req.Name == "" {
		return nil, NewValidationError("name", "required")
	}
	if req.WaveNumber != nil && *req.WaveNumber < 0 {
		return nil, NewValidationError("wave_number", "must be >= 0")
	}
	status := req.Status
	if status == "" {
		status = "pending"
	}
	if !models.TaskStatuses[status] {
		return nil, NewValidationError("status", fmt.Sprintf("unknown task status %q", status))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	task, err := scanTask(tx.QueryRow(ctx, `
		INSERT INTO tasks (request_id, name, wave_number, status)
		VALUES ($1, $2,
			COALESCE($3, (SELECT COALESCE(MAX(wave_number) + 1, 0) FROM tasks WHERE request_id = $1)),
			$4)
		RETURNING `+taskColumns,
		req.RequestID, req.Name, req.WaveNumber, status))
	if err != nil {
		if isPgError(err, pgForeignKeyViolation) {
			return nil, NewNotFoundError("request", req.RequestID)
		}
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	err = s.pub.PublishAll(ctx, tx, events.EventTaskCreated, map[string]any{
		"task_id":     task.ID,
		"request_id":  task.RequestID,
		"name":        task.Name,
		"wave_number": task.WaveNumber,
	}, events.ChannelGlobal)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit task: %w", err)
	}
	return task, nil
}

// GetTask returns one task by id.
func (s *TaskService) GetTask(ctx context.Context, id string) (*models.Task, error) {
	task, err := scanTask(s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, NewNotFoundError("task", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// ListTasks returns a page of tasks, filtered by request and/or status.
func (s *TaskService) ListTasks(ctx context.Context, requestID, status string, params models.ListParams) ([]models.Task, error) {
	limit := clampLimit(params.Limit, 100, 100)

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`
	args := []any{limit, params.Offset}
	if requestID != "" {
		args = append(args, requestID)
		query += fmt.Sprintf(` AND request_id = $%d`, len(args))
	}
	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	query += ` ORDER BY wave_number ASC, created_at ASC LIMIT $1 OFFSET $2`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// UpdateTask patches a task. A terminal status stamps completed_at exactly
// once and emits task.completed or task.failed.
func (s *TaskService) UpdateTask(ctx context.Context, id string, req models.UpdateTaskRequest) (*models.Task, error) {
	status := ""
	if req.Status != nil {
		status = *req.Status
		if !models.TaskStatuses[status] {
			return nil, NewValidationError("status", fmt.Sprintf("unknown task status %q", status))
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	task, err := scanTask(tx.QueryRow(ctx, `
		UPDATE tasks SET
			name = COALESCE($2, name),
			status = CASE WHEN $3 <> '' THEN $3 ELSE status END,
			completed_at = CASE WHEN $4 THEN COALESCE(completed_at, now()) ELSE completed_at END
		WHERE id = $1
		RETURNING `+taskColumns,
		id, req.Name, status, models.IsTerminalStatus(status)))
	if err == pgx.ErrNoRows {
		return nil, NewNotFoundError("task", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	if models.IsTerminalStatus(status) {
		event := events.EventTaskCompleted
		if status == "failed" {
			event = events.EventTaskFailed
		}
		err = s.pub.PublishAll(ctx, tx, event, map[string]any{
			"task_id":    task.ID,
			"request_id": task.RequestID,
			"name":       task.Name,
			"status":     task.Status,
		}, events.ChannelGlobal)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit task update: %w", err)
	}
	return task, nil
}

// DeleteTask removes a task and cascades to its subtasks.
func (s *TaskService) DeleteTask(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return NewNotFoundError("task", id)
	}
	return nil
}
