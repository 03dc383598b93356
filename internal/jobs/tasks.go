package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	TaskTypeProject   = "progress:project"
	TaskTypeReconcile = "progress:reconcile"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

const projectMaxRetry = 10

// ProjectPayload names the account whose latest state must be projected.
type ProjectPayload struct {
	Address string `json:"address"`
}

// NewProjectTask builds a projection task for one account.
func NewProjectTask(address string) (*asynq.Task, error) {
	payload, err := json.Marshal(ProjectPayload{Address: address})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(TaskTypeProject, payload, asynq.Queue(QueueCritical), asynq.MaxRetry(projectMaxRetry)), nil
}

// NewReconcileTask builds the task that re-projects every account.
func NewReconcileTask() *asynq.Task {
	return asynq.NewTask(TaskTypeReconcile, nil, asynq.Queue(QueueLow), asynq.MaxRetry(1))
}

// DecodeProjectPayload parses a projection task payload.
func DecodeProjectPayload(t *asynq.Task) (ProjectPayload, error) {
	var payload ProjectPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return ProjectPayload{}, fmt.Errorf("decode %s payload: %w", t.Type(), err)
	}
	if payload.Address == "" {
		return ProjectPayload{}, fmt.Errorf("%s payload has no address", t.Type())
	}
	return payload, nil
}
