package repository

import (
	"context"
	"time"

	"github.com/taskmesh/syncserver/internal/model"
)

// TaskRepository provides sync access to tasks and their assignments.
type TaskRepository interface {
	// ChangedSince returns tasks in the given projects whose updated_at is
	// at or after since, with author summaries and aggregated assignees.
	// Callers must not pass an empty project set.
	ChangedSince(ctx context.Context, projectIDs []string, since time.Time) ([]model.Task, error)

	// Apply runs one task change row in a single transaction, including the
	// replace of task_assignments when the change carries an assignee list.
	Apply(ctx context.Context, caller model.Identity, ch model.TaskChange) (*model.TaskRejection, error)
}
