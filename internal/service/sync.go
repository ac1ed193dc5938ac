// Package service implements the pull/push replication pipeline per
// entity family on top of the repository layer.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/taskmesh/syncserver/internal/errs"
	"github.com/taskmesh/syncserver/internal/model"
	"github.com/taskmesh/syncserver/internal/repository"
)

// validate checks outgoing wire documents against their schema tags.
// A failure here means the server's own data is broken, not the client's.
var validate = validator.New()

func validateDocs[T any](docs []T) error {
	for i := range docs {
		if err := validate.Struct(&docs[i]); err != nil {
			return fmt.Errorf("document[%d]: %v: %w", i, err, errs.ErrIntegrity)
		}
	}
	return nil
}

// resolveScope returns the set of project ids visible to the caller.
// Super admins see everything.
func resolveScope(ctx context.Context, members repository.MembershipRepository, caller model.Identity) ([]string, error) {
	if caller.ID == "" {
		return nil, errs.ErrUnauthorized
	}
	if caller.IsSuperAdmin {
		return members.AllProjectIDs(ctx)
	}
	return members.ProjectIDs(ctx, caller.ID)
}

// checkpointAfter derives the pull checkpoint: the maximum updated_at
// observed in the returned set, or the wall clock when nothing matched.
// Using the observed maximum instead of "now" keeps a write that lands
// between query execution and response from being skipped by the next pull.
func checkpointAfter(maxUpdated time.Time) model.Checkpoint {
	if maxUpdated.IsZero() {
		return model.Checkpoint{UpdatedAt: time.Now().UnixMilli()}
	}
	return model.Checkpoint{UpdatedAt: maxUpdated.UnixMilli()}
}

// missingIDConflict rejects a change row whose document carries no id.
// The submitted state, if any, is echoed back; a typed nil must not leak
// into the conflict as a JSON null.
func missingIDConflict[T any](submitted *T) model.Conflict {
	c := model.Conflict{Error: "Invalid document format: missing id"}
	if submitted != nil {
		c.Document = submitted
	}
	return c
}

func emptyPull[T any]() *model.PullResponse[T] {
	return &model.PullResponse[T]{
		Documents:  []T{},
		Checkpoint: model.Checkpoint{UpdatedAt: time.Now().UnixMilli()},
	}
}
