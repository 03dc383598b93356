package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/lesson-ledger/internal/progress"
)

type mockManager struct {
	mock.Mock
}

func (m *mockManager) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	args := m.Called(ctx, task)
	info, _ := args.Get(0).(*asynq.TaskInfo)
	return info, args.Error(1)
}

func (m *mockManager) Close() error {
	return m.Called().Error(0)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProjectTask_RoundTrip(t *testing.T) {
	address := solana.PublicKey{7}.String()

	task, err := NewProjectTask(address)
	require.NoError(t, err)
	assert.Equal(t, TaskTypeProject, task.Type())

	payload, err := DecodeProjectPayload(task)
	require.NoError(t, err)
	assert.Equal(t, address, payload.Address)

	_, err = DecodeProjectPayload(asynq.NewTask(TaskTypeProject, []byte(`{}`)))
	assert.Error(t, err)
}

func TestProjectionHook_EnqueuesTask(t *testing.T) {
	m := &mockManager{}
	address := solana.PublicKey{3}

	m.On("Enqueue", mock.Anything, mock.MatchedBy(func(task *asynq.Task) bool {
		payload, err := DecodeProjectPayload(task)
		return err == nil && task.Type() == TaskTypeProject && payload.Address == address.String()
	})).Return(&asynq.TaskInfo{ID: "1"}, nil).Once()

	hook := ProjectionHook(m, testLogger())
	hook(context.Background(), &progress.UserProgress{Address: address})

	m.AssertExpectations(t)
}

func TestProjectionHook_SwallowsEnqueueErrors(t *testing.T) {
	m := &mockManager{}
	m.On("Enqueue", mock.Anything, mock.Anything).Return(nil, errors.New("redis down")).Once()

	hook := ProjectionHook(m, testLogger())
	assert.NotPanics(t, func() {
		hook(context.Background(), &progress.UserProgress{Address: solana.PublicKey{1}})
	})

	m.AssertExpectations(t)
}
