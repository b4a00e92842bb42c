package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/swarmhq/hive/pkg/events"
	"github.com/swarmhq/hive/pkg/models"
)

// ProjectService manages the project roots of the work hierarchy.
// Project creation is idempotent on path.
type ProjectService struct {
	pool *pgxpool.Pool
	pub  *events.Publisher
}

// NewProjectService creates a new ProjectService.
func NewProjectService(pool *pgxpool.Pool, pub *events.Publisher) *ProjectService {
	return &ProjectService{pool: pool, pub: pub}
}

const projectColumns = `id, path, name, metadata, created_at, updated_at`

func scanProject(row pgx.Row) (*models.Project, error) {
	var p models.Project
	var metadataJSON []byte
	err := row.Scan(&p.ID, &p.Path, &p.Name, &metadataJSON, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSONB(metadataJSON, &p.Metadata); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateProject upserts a project by path. On conflict the name is updated
// when supplied and the metadata map is shallow-merged.
func (s *ProjectService) CreateProject(ctx context.Context, req models.CreateProjectRequest) (*models.Project, error) {
	if req.Path == "" {
		return nil, NewValidationError("path", "required")
	}
	if !strings.HasPrefix(req.Path, "/") && !strings.HasPrefix(req.Path, "\\") {
		return nil, NewValidationError("path", "must be absolute")
	}

	path := normalizeProjectPath(req.Path)
	metadataJSON, err := marshalJSONB(req.Metadata)
	if err != nil {
		return nil, err
	}

	var name *string
	if req.Name != "" {
		name = &req.Name
	}

	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	project, err := scanProject(s.pool.QueryRow(writeCtx, `
		INSERT INTO projects (path, name, metadata)
		VALUES ($1, $2, $3)
		ON CONFLICT (path) DO UPDATE SET
			name = COALESCE(EXCLUDED.name, projects.name),
			metadata = projects.metadata || EXCLUDED.metadata
		RETURNING `+projectColumns,
		path, name, metadataJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert project: %w", err)
	}

	s.pub.BestEffort(ctx, events.NewEnvelope(events.ChannelGlobal, events.EventProjectCreated, map[string]any{
		"project_id": project.ID,
		"path":       project.Path,
	}))

	return project, nil
}

// GetProject returns one project by id.
func (s *ProjectService) GetProject(ctx context.Context, id string) (*models.Project, error) {
	project, err := scanProject(s.pool.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, NewNotFoundError("project", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return project, nil
}

// GetProjectByPath returns one project by its normalized path.
func (s *ProjectService) GetProjectByPath(ctx context.Context, path string) (*models.Project, error) {
	project, err := scanProject(s.pool.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE path = $1`, normalizeProjectPath(path)))
	if err == pgx.ErrNoRows {
		return nil, NewNotFoundError("project", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project by path: %w", err)
	}
	return project, nil
}

// ListProjects returns a page of projects ordered by creation time.
func (s *ProjectService) ListProjects(ctx context.Context, params models.ListParams) ([]models.Project, error) {
	limit := clampLimit(params.Limit, 100, 100)

	rows, err := s.pool.Query(ctx,
		`SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, params.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects := []models.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

// DeleteProject removes a project; the foreign-key model cascades to every
// descendant session, request, task, subtask and action.
func (s *ProjectService) DeleteProject(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return NewNotFoundError("project", id)
	}

	s.pub.BestEffort(ctx, events.NewEnvelope(events.ChannelGlobal, events.EventProjectDeleted, map[string]any{
		"project_id": id,
	}))
	return nil
}

// upsertProjectTx upserts a project by path inside a caller transaction and
// returns its id. Shared by the ingest paths that carry project_path.
func upsertProjectTx(ctx context.Context, tx pgx.Tx, path string) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO projects (path, metadata)
		VALUES ($1, '{}'::jsonb)
		ON CONFLICT (path) DO UPDATE SET metadata = projects.metadata
		RETURNING id`,
		normalizeProjectPath(path)).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to upsert project %q: %w", path, err)
	}
	return id, nil
}
