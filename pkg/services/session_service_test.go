package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmhq/hive/pkg/models"
)

func boolPtr(v bool) *bool { return &v }

func TestCreateSessionStrict(t *testing.T) {
	pool, pub := newTestPool(t)
	svc := NewSessionService(pool, pub)
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, models.CreateSessionRequest{
		SessionID: "sess-1",
		Metadata:  map[string]any{"host": "laptop"},
	})
	require.NoError(t, err)
	assert.Equal(t, "sess-1", session.ID)
	assert.Nil(t, session.EndedAt)
	assert.Equal(t, "laptop", session.Metadata["host"])

	// Unlike projects, the same session id is a conflict.
	_, err = svc.CreateSession(ctx, models.CreateSessionRequest{SessionID: "sess-1"})
	assert.True(t, errors.Is(err, ErrAlreadyExists))
}

func TestCreateSessionUpsertsProjectFromPath(t *testing.T) {
	pool, pub := newTestPool(t)
	sessions := NewSessionService(pool, pub)
	projects := NewProjectService(pool, pub)
	ctx := context.Background()

	session, err := sessions.CreateSession(ctx, models.CreateSessionRequest{
		SessionID:   "sess-1",
		ProjectPath: "/work/app",
	})
	require.NoError(t, err)
	require.NotNil(t, session.ProjectID)

	project, err := projects.GetProjectByPath(ctx, "/work/app")
	require.NoError(t, err)
	assert.Equal(t, project.ID, *session.ProjectID)
}

func TestCreateSessionUnknownProject(t *testing.T) {
	pool, pub := newTestPool(t)
	svc := NewSessionService(pool, pub)

	_, err := svc.CreateSession(context.Background(), models.CreateSessionRequest{
		SessionID: "sess-1",
		ProjectID: "00000000-0000-0000-0000-000000000000",
	})
	assert.True(t, IsNotFound(err))
}

func TestUpdateSessionEndStampsOnce(t *testing.T) {
	pool, pub := newTestPool(t)
	svc := NewSessionService(pool, pub)
	ctx := context.Background()

	_, err := svc.CreateSession(ctx, models.CreateSessionRequest{SessionID: "sess-1"})
	require.NoError(t, err)

	first, err := svc.UpdateSession(ctx, "sess-1", models.UpdateSessionRequest{Ended: boolPtr(true)})
	require.NoError(t, err)
	require.NotNil(t, first.EndedAt)

	// Ending an ended session keeps the original timestamp.
	second, err := svc.UpdateSession(ctx, "sess-1", models.UpdateSessionRequest{
		Ended:    boolPtr(true),
		Metadata: map[string]any{"exit": "clean"},
	})
	require.NoError(t, err)
	require.NotNil(t, second.EndedAt)
	assert.Equal(t, *first.EndedAt, *second.EndedAt)
	assert.Equal(t, "clean", second.Metadata["exit"])
}

func TestUpdateSessionNotFound(t *testing.T) {
	pool, pub := newTestPool(t)
	svc := NewSessionService(pool, pub)

	_, err := svc.UpdateSession(context.Background(), "ghost", models.UpdateSessionRequest{})
	assert.True(t, IsNotFound(err))
}

func TestSessionStats(t *testing.T) {
	pool, pub := newTestPool(t)
	svc := NewSessionService(pool, pub)
	ctx := context.Background()

	_, err := svc.CreateSession(ctx, models.CreateSessionRequest{SessionID: "sess-1"})
	require.NoError(t, err)
	_, err = svc.CreateSession(ctx, models.CreateSessionRequest{SessionID: "sess-2"})
	require.NoError(t, err)
	_, err = svc.UpdateSession(ctx, "sess-2", models.UpdateSessionRequest{Ended: boolPtr(true)})
	require.NoError(t, err)

	stats, err := svc.SessionStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, 1, stats.Ended)
}

func TestActiveSessions(t *testing.T) {
	pool, pub := newTestPool(t)
	svc := NewSessionService(pool, pub)
	ctx := context.Background()

	_, err := svc.CreateSession(ctx, models.CreateSessionRequest{
		SessionID:   "sess-live",
		ProjectPath: "/work/app",
	})
	require.NoError(t, err)
	_, err = svc.CreateSession(ctx, models.CreateSessionRequest{SessionID: "sess-done"})
	require.NoError(t, err)
	_, err = svc.UpdateSession(ctx, "sess-done", models.UpdateSessionRequest{Ended: boolPtr(true)})
	require.NoError(t, err)

	active, err := svc.ActiveSessions(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "sess-live", active[0].ID)
	require.NotNil(t, active[0].ProjectPath)
	assert.Equal(t, "/work/app", *active[0].ProjectPath)
	assert.Equal(t, 0, active[0].ActiveSubtasks)
}

func TestMarkCompactedCreatesSessionRow(t *testing.T) {
	pool, pub := newTestPool(t)
	svc := NewSessionService(pool, pub)
	ctx := context.Background()

	// Restore can land before any other write for the session id.
	require.NoError(t, svc.MarkCompacted(ctx, "sess-new", "summary text", "dev-1"))

	session, err := svc.GetSession(ctx, "sess-new")
	require.NoError(t, err)
	assert.Equal(t, true, session.Metadata["compacted"])
	assert.Equal(t, "summary text", session.Metadata["compact_summary"])
	assert.Equal(t, "dev-1", session.Metadata["compact_agent"])
}

func TestListSessionsByProject(t *testing.T) {
	pool, pub := newTestPool(t)
	sessions := NewSessionService(pool, pub)
	projects := NewProjectService(pool, pub)
	ctx := context.Background()

	project, err := projects.CreateProject(ctx, models.CreateProjectRequest{Path: "/work/app"})
	require.NoError(t, err)

	_, err = sessions.CreateSession(ctx, models.CreateSessionRequest{SessionID: "sess-a", ProjectID: project.ID})
	require.NoError(t, err)
	_, err = sessions.CreateSession(ctx, models.CreateSessionRequest{SessionID: "sess-b"})
	require.NoError(t, err)

	scoped, err := sessions.ListSessions(ctx, project.ID, models.ListParams{})
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "sess-a", scoped[0].ID)

	all, err := sessions.ListSessions(ctx, "", models.ListParams{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
