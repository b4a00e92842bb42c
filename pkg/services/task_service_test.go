package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmhq/hive/pkg/models"
)

// newTaskFixture creates a request to hang tasks off of.
func newTaskFixture(t *testing.T) (*TaskService, *models.Request, *SubtaskService) {
	t.Helper()
	pool, pub := newTestPool(t)
	requests := NewRequestService(pool, pub)

	request, err := requests.CreateRequest(context.Background(), models.CreateRequestRequest{
		SessionID:   "sess-1",
		Prompt:      "ship the feature",
		ProjectPath: "/work/app",
	})
	require.NoError(t, err)
	return NewTaskService(pool, pub), request, NewSubtaskService(pool, pub)
}

func TestCreateTaskValidation(t *testing.T) {
	svc, request, _ := newTaskFixture(t)
	ctx := context.Background()

	_, err := svc.CreateTask(ctx, models.CreateTaskRequest{Name: "wave 0"})
	assert.True(t, IsValidationError(err))

	_, err = svc.CreateTask(ctx, models.CreateTaskRequest{RequestID: request.ID})
	assert.True(t, IsValidationError(err))

	_, err = svc.CreateTask(ctx, models.CreateTaskRequest{
		RequestID:  request.ID,
		Name:       "wave 0",
		WaveNumber: intPtr(-1),
	})
	assert.True(t, IsValidationError(err))

	_, err = svc.CreateTask(ctx, models.CreateTaskRequest{
		RequestID: request.ID,
		Name:      "wave 0",
		Status:    "galloping",
	})
	assert.True(t, IsValidationError(err))
}

func TestCreateTaskUnknownRequest(t *testing.T) {
	svc, _, _ := newTaskFixture(t)

	_, err := svc.CreateTask(context.Background(), models.CreateTaskRequest{
		RequestID: uuid.NewString(),
		Name:      "wave 0",
	})
	assert.True(t, IsNotFound(err))
}

func TestCreateTaskAutoIncrementsWave(t *testing.T) {
	svc, request, _ := newTaskFixture(t)
	ctx := context.Background()

	first, err := svc.CreateTask(ctx, models.CreateTaskRequest{RequestID: request.ID, Name: "scaffold"})
	require.NoError(t, err)
	assert.Equal(t, 0, first.WaveNumber)
	assert.Equal(t, "pending", first.Status)

	second, err := svc.CreateTask(ctx, models.CreateTaskRequest{RequestID: request.ID, Name: "implement"})
	require.NoError(t, err)
	assert.Equal(t, 1, second.WaveNumber)

	// An explicit wave number wins, and numbering resumes after it.
	third, err := svc.CreateTask(ctx, models.CreateTaskRequest{
		RequestID:  request.ID,
		Name:       "verify",
		WaveNumber: intPtr(5),
	})
	require.NoError(t, err)
	assert.Equal(t, 5, third.WaveNumber)

	fourth, err := svc.CreateTask(ctx, models.CreateTaskRequest{RequestID: request.ID, Name: "cleanup"})
	require.NoError(t, err)
	assert.Equal(t, 6, fourth.WaveNumber)
}

func TestUpdateTaskTerminalStampsOnce(t *testing.T) {
	svc, request, _ := newTaskFixture(t)
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, models.CreateTaskRequest{RequestID: request.ID, Name: "scaffold"})
	require.NoError(t, err)

	running, err := svc.UpdateTask(ctx, task.ID, models.UpdateTaskRequest{Status: strPtr("running")})
	require.NoError(t, err)
	assert.Nil(t, running.CompletedAt)

	first, err := svc.UpdateTask(ctx, task.ID, models.UpdateTaskRequest{Status: strPtr("completed")})
	require.NoError(t, err)
	require.NotNil(t, first.CompletedAt)

	second, err := svc.UpdateTask(ctx, task.ID, models.UpdateTaskRequest{
		Status: strPtr("completed"),
		Name:   strPtr("scaffolding"),
	})
	require.NoError(t, err)
	require.NotNil(t, second.CompletedAt)
	assert.Equal(t, *first.CompletedAt, *second.CompletedAt)
	assert.Equal(t, "scaffolding", second.Name)
}

func TestUpdateTaskNotFound(t *testing.T) {
	svc, _, _ := newTaskFixture(t)

	_, err := svc.UpdateTask(context.Background(), uuid.NewString(), models.UpdateTaskRequest{})
	assert.True(t, IsNotFound(err))
}

func TestListTasksOrdersByWave(t *testing.T) {
	svc, request, _ := newTaskFixture(t)
	ctx := context.Background()

	for _, wave := range []int{2, 0, 1} {
		_, err := svc.CreateTask(ctx, models.CreateTaskRequest{
			RequestID:  request.ID,
			Name:       "wave",
			WaveNumber: intPtr(wave),
		})
		require.NoError(t, err)
	}

	tasks, err := svc.ListTasks(ctx, request.ID, "", models.ListParams{})
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, 0, tasks[0].WaveNumber)
	assert.Equal(t, 1, tasks[1].WaveNumber)
	assert.Equal(t, 2, tasks[2].WaveNumber)

	pending, err := svc.ListTasks(ctx, request.ID, "pending", models.ListParams{})
	require.NoError(t, err)
	assert.Len(t, pending, 3)

	completed, err := svc.ListTasks(ctx, request.ID, "completed", models.ListParams{})
	require.NoError(t, err)
	assert.Empty(t, completed)
}

func TestDeleteTaskCascadesToSubtasks(t *testing.T) {
	svc, request, subtasks := newTaskFixture(t)
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, models.CreateTaskRequest{RequestID: request.ID, Name: "wave 0"})
	require.NoError(t, err)

	subtask, err := subtasks.CreateSubtask(ctx, models.CreateSubtaskRequest{
		TaskID:      task.ID,
		Description: "write the migration",
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteTask(ctx, task.ID))

	_, err = subtasks.GetSubtask(ctx, subtask.ID)
	assert.True(t, IsNotFound(err))
	assert.True(t, IsNotFound(svc.DeleteTask(ctx, task.ID)))
}
