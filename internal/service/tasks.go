package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/taskmesh/syncserver/internal/convert"
	"github.com/taskmesh/syncserver/internal/errs"
	"github.com/taskmesh/syncserver/internal/model"
	"github.com/taskmesh/syncserver/internal/repository"
)

// TaskService replicates tasks between clients and the server of record.
type TaskService interface {
	Pull(ctx context.Context, caller model.Identity, since time.Time) (*model.PullResponse[model.TaskDoc], error)
	Push(ctx context.Context, caller model.Identity, rows []model.ChangeRow[model.TaskDoc]) ([]model.Conflict, error)
}

// TaskSync is the production TaskService.
type TaskSync struct {
	repo     repository.TaskRepository
	members  repository.MembershipRepository
	maxBatch int
}

// NewTaskSync constructs a task sync service with batch limits.
func NewTaskSync(repo repository.TaskRepository, members repository.MembershipRepository, maxBatch int) *TaskSync {
	if maxBatch <= 0 {
		maxBatch = 1000
	}
	return &TaskSync{repo: repo, members: members, maxBatch: maxBatch}
}

// Pull returns tasks in the caller's member projects changed at or after
// since, assignees aggregated.
func (s *TaskSync) Pull(ctx context.Context, caller model.Identity, since time.Time) (*model.PullResponse[model.TaskDoc], error) {
	scope, err := resolveScope(ctx, s.members, caller)
	if err != nil {
		return nil, err
	}
	if len(scope) == 0 {
		return emptyPull[model.TaskDoc](), nil
	}

	tasks, err := s.repo.ChangedSince(ctx, scope, since)
	if err != nil {
		return nil, fmt.Errorf("tasks changed since: %w", err)
	}

	docs := convert.TasksToWire(tasks)
	if err := validateDocs(docs); err != nil {
		return nil, err
	}

	var maxUpdated time.Time
	if len(tasks) > 0 {
		maxUpdated = tasks[len(tasks)-1].UpdatedAt
	}
	return &model.PullResponse[model.TaskDoc]{
		Documents:  docs,
		Checkpoint: checkpointAfter(maxUpdated),
	}, nil
}

// Push applies task change rows sequentially. Rows are processed in order
// because later rows may reference state created by earlier ones.
func (s *TaskSync) Push(ctx context.Context, caller model.Identity, rows []model.ChangeRow[model.TaskDoc]) ([]model.Conflict, error) {
	if caller.ID == "" {
		return nil, errs.ErrUnauthorized
	}
	if len(rows) > s.maxBatch {
		return nil, fmt.Errorf("batch too large (%d > %d): %w", len(rows), s.maxBatch, errs.ErrBadRequest)
	}

	conflicts := make([]model.Conflict, 0)
	for _, row := range rows {
		if row.NewDocumentState == nil || row.NewDocumentState.ID == "" {
			conflicts = append(conflicts, missingIDConflict(row.NewDocumentState))
			continue
		}
		rej, err := s.repo.Apply(ctx, caller, convert.TaskChangeFromWire(row))
		switch {
		case err == nil:
		case errors.Is(err, errs.ErrAlreadyExists):
			conflicts = append(conflicts, model.Conflict{
				Error:    "Conflict: task was created concurrently",
				Document: row.NewDocumentState,
			})
			continue
		case errors.Is(err, errs.ErrInvalidReference):
			conflicts = append(conflicts, model.Conflict{
				Error:    fmt.Sprintf("Invalid reference in task %s", row.NewDocumentState.ID),
				Document: row.NewDocumentState,
			})
			continue
		default:
			return nil, fmt.Errorf("apply task %s: %w", row.NewDocumentState.ID, err)
		}
		if rej != nil {
			conflicts = append(conflicts, taskConflict(rej, row.NewDocumentState))
		}
	}
	return conflicts, nil
}

func taskConflict(rej *model.TaskRejection, submitted *model.TaskDoc) model.Conflict {
	if rej.Master != nil {
		return model.Conflict{Error: rej.Reason, Document: convert.TaskToWire(*rej.Master)}
	}
	return model.Conflict{Error: rej.Reason, Document: submitted}
}
