package repository

import (
	"context"
	"time"

	"github.com/taskmesh/syncserver/internal/model"
)

// ProjectRepository provides sync access to projects.
type ProjectRepository interface {
	// ChangedSince returns the given projects when their updated_at is at or
	// after since. Callers must not pass an empty project set.
	ChangedSince(ctx context.Context, projectIDs []string, since time.Time) ([]model.Project, error)

	// Apply runs one project change row in a single transaction. Creating a
	// project also grants the caller an owner membership so the project is
	// visible to their next pull.
	Apply(ctx context.Context, caller model.Identity, ch model.ProjectChange) (*model.ProjectRejection, error)
}
