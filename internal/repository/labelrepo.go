// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/taskmesh/syncserver/internal/model"
)

// LabelRepository provides sync access to labels.
type LabelRepository interface {
	// ChangedSince returns labels in the given projects whose updated_at is
	// at or after since, with author summaries joined in. Callers must not
	// pass an empty project set.
	ChangedSince(ctx context.Context, projectIDs []string, since time.Time) ([]model.Label, error)

	// Apply runs the fetch/authorize/conflict-check/apply sequence for one
	// change row inside a single transaction. A non-nil rejection means the
	// row was refused; a nil rejection means the write landed.
	Apply(ctx context.Context, caller model.Identity, ch model.LabelChange) (*model.LabelRejection, error)
}
