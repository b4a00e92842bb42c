package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmhq/hive/pkg/models"
)

func TestCreateProjectUpsertsByPath(t *testing.T) {
	pool, pub := newTestPool(t)
	svc := NewProjectService(pool, pub)
	ctx := context.Background()

	first, err := svc.CreateProject(ctx, models.CreateProjectRequest{
		Path:     "/work/app",
		Name:     "app",
		Metadata: map[string]any{"lang": "go"},
	})
	require.NoError(t, err)
	require.NotNil(t, first.Name)
	assert.Equal(t, "app", *first.Name)

	// Same path with a trailing slash hits the same row. The name survives,
	// metadata merges.
	second, err := svc.CreateProject(ctx, models.CreateProjectRequest{
		Path:     "/work/app/",
		Metadata: map[string]any{"ci": true},
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	require.NotNil(t, second.Name)
	assert.Equal(t, "app", *second.Name)
	assert.Equal(t, "go", second.Metadata["lang"])
	assert.Equal(t, true, second.Metadata["ci"])
}

func TestCreateProjectValidation(t *testing.T) {
	pool, pub := newTestPool(t)
	svc := NewProjectService(pool, pub)
	ctx := context.Background()

	_, err := svc.CreateProject(ctx, models.CreateProjectRequest{})
	assert.True(t, IsValidationError(err))

	_, err = svc.CreateProject(ctx, models.CreateProjectRequest{Path: "work/app"})
	assert.True(t, IsValidationError(err))
}

func TestGetProjectByPathNormalizes(t *testing.T) {
	pool, pub := newTestPool(t)
	svc := NewProjectService(pool, pub)
	ctx := context.Background()

	created, err := svc.CreateProject(ctx, models.CreateProjectRequest{Path: "/work/app"})
	require.NoError(t, err)

	got, err := svc.GetProjectByPath(ctx, "/work/app/")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = svc.GetProjectByPath(ctx, "/no/such/project")
	assert.True(t, IsNotFound(err))
}

func TestGetProjectNotFound(t *testing.T) {
	pool, pub := newTestPool(t)
	svc := NewProjectService(pool, pub)

	_, err := svc.GetProject(context.Background(), uuid.NewString())
	assert.True(t, IsNotFound(err))
}

func TestListProjects(t *testing.T) {
	pool, pub := newTestPool(t)
	svc := NewProjectService(pool, pub)
	ctx := context.Background()

	for _, path := range []string{"/work/a", "/work/b", "/work/c"} {
		_, err := svc.CreateProject(ctx, models.CreateProjectRequest{Path: path})
		require.NoError(t, err)
	}

	projects, err := svc.ListProjects(ctx, models.ListParams{})
	require.NoError(t, err)
	assert.Len(t, projects, 3)

	page, err := svc.ListProjects(ctx, models.ListParams{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page, 2)
}

func TestDeleteProjectCascades(t *testing.T) {
	pool, pub := newTestPool(t)
	projects := NewProjectService(pool, pub)
	sessions := NewSessionService(pool, pub)
	ctx := context.Background()

	project, err := projects.CreateProject(ctx, models.CreateProjectRequest{Path: "/work/app"})
	require.NoError(t, err)

	_, err = sessions.CreateSession(ctx, models.CreateSessionRequest{
		SessionID: "sess-cascade",
		ProjectID: project.ID,
	})
	require.NoError(t, err)

	require.NoError(t, projects.DeleteProject(ctx, project.ID))

	_, err = sessions.GetSession(ctx, "sess-cascade")
	assert.True(t, IsNotFound(err))

	assert.True(t, IsNotFound(projects.DeleteProject(ctx, project.ID)))
}
