package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmhq/hive/pkg/models"
)

func TestServerStats(t *testing.T) {
	pool, pub := newTestPool(t)
	stats := NewStatsService(pool)
	ctx := context.Background()

	empty, err := stats.ServerStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Projects)
	assert.Equal(t, 0, empty.Actions)

	_, err = NewRequestService(pool, pub).CreateRequest(ctx, models.CreateRequestRequest{
		SessionID:   "sess-1",
		Prompt:      "ship it",
		ProjectPath: "/work/app",
	})
	require.NoError(t, err)
	_, err = NewActionService(pool, pub).CreateAction(ctx, models.CreateActionRequest{
		SessionID: "sess-1",
		ToolName:  "Bash",
	})
	require.NoError(t, err)
	_, err = NewMessageService(pool, pub).Publish(ctx, models.PublishMessageRequest{
		FromAgent: "dev-1",
		Topic:     "agent.heartbeat",
	})
	require.NoError(t, err)

	st, err := stats.ServerStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Projects)
	assert.Equal(t, 1, st.Sessions)
	assert.Equal(t, 1, st.Requests)
	assert.Equal(t, 1, st.Actions)
	assert.Equal(t, 1, st.Messages)
}

func TestToolsSummary(t *testing.T) {
	pool, pub := newTestPool(t)
	stats := NewStatsService(pool)
	actions := NewActionService(pool, pub)
	ctx := context.Background()

	for _, tc := range []struct {
		tool string
		exit int
	}{
		{"Bash", 0}, {"Bash", 1}, {"Bash", 0}, {"Edit", 0},
	} {
		exit := tc.exit
		_, err := actions.CreateAction(ctx, models.CreateActionRequest{
			ToolName: tc.tool,
			ExitCode: &exit,
		})
		require.NoError(t, err)
	}

	summary, err := stats.ToolsSummary(ctx)
	require.NoError(t, err)
	require.Len(t, summary, 2)
	// Busiest tool first.
	assert.Equal(t, "Bash", summary[0].ToolName)
	assert.Equal(t, 3, summary[0].Calls)
	assert.Equal(t, 2, summary[0].Successes)
	assert.Equal(t, "Edit", summary[1].ToolName)
	assert.Equal(t, 1, summary[1].Calls)
}

func TestDashboardKPIs(t *testing.T) {
	pool, pub := newTestPool(t)
	stats := NewStatsService(pool)
	ctx := context.Background()

	request, err := NewRequestService(pool, pub).CreateRequest(ctx, models.CreateRequestRequest{
		SessionID:   "sess-1",
		Prompt:      "ship it",
		ProjectPath: "/work/app",
	})
	require.NoError(t, err)
	task, err := NewTaskService(pool, pub).CreateTask(ctx, models.CreateTaskRequest{
		RequestID: request.ID,
		Name:      "wave 0",
	})
	require.NoError(t, err)

	subtasks := NewSubtaskService(pool, pub)
	subtask, err := subtasks.CreateSubtask(ctx, models.CreateSubtaskRequest{
		TaskID:      task.ID,
		AgentID:     "dev-1",
		Description: "work",
	})
	require.NoError(t, err)
	_, err = subtasks.UpdateSubtask(ctx, subtask.ID, models.UpdateSubtaskRequest{Status: strPtr("running")})
	require.NoError(t, err)

	_, err = NewMessageService(pool, pub).Publish(ctx, models.PublishMessageRequest{
		FromAgent: "dev-1",
		Topic:     "agent.heartbeat",
	})
	require.NoError(t, err)

	k, err := stats.DashboardKPIs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, k.ActiveSessions)
	assert.Equal(t, 1, k.ActiveAgents)
	assert.Equal(t, 1, k.PendingTasks)
	assert.Equal(t, 0, k.RunningTasks)
	assert.Equal(t, 1, k.MessagesLastHr)
	assert.Equal(t, 0.0, k.ActionsPerMin)
}

func TestHierarchy(t *testing.T) {
	pool, pub := newTestPool(t)
	stats := NewStatsService(pool)
	ctx := context.Background()

	_, err := stats.Hierarchy(ctx, uuid.NewString())
	assert.True(t, IsNotFound(err))

	request, err := NewRequestService(pool, pub).CreateRequest(ctx, models.CreateRequestRequest{
		SessionID:   "sess-1",
		Prompt:      "ship it",
		ProjectPath: "/work/app",
	})
	require.NoError(t, err)

	tasks := NewTaskService(pool, pub)
	task, err := tasks.CreateTask(ctx, models.CreateTaskRequest{RequestID: request.ID, Name: "wave 0"})
	require.NoError(t, err)
	later, err := tasks.CreateTask(ctx, models.CreateTaskRequest{RequestID: request.ID, Name: "wave 1"})
	require.NoError(t, err)

	subtask, err := NewSubtaskService(pool, pub).CreateSubtask(ctx, models.CreateSubtaskRequest{
		TaskID:      task.ID,
		AgentID:     "dev-1",
		Description: "write the code",
	})
	require.NoError(t, err)

	node, err := stats.Hierarchy(ctx, request.ProjectID)
	require.NoError(t, err)
	assert.Equal(t, "/work/app", node.Project.Path)
	require.Len(t, node.Sessions, 1)
	assert.Equal(t, "sess-1", node.Sessions[0].ID)

	require.Len(t, node.Requests, 1)
	assert.Equal(t, request.ID, node.Requests[0].ID)
	require.Len(t, node.Requests[0].Tasks, 2)
	// Waves come back in order.
	assert.Equal(t, task.ID, node.Requests[0].Tasks[0].ID)
	assert.Equal(t, later.ID, node.Requests[0].Tasks[1].ID)
	require.Len(t, node.Requests[0].Tasks[0].Subtasks, 1)
	assert.Equal(t, subtask.ID, node.Requests[0].Tasks[0].Subtasks[0].ID)
	assert.Empty(t, node.Requests[0].Tasks[1].Subtasks)
}
