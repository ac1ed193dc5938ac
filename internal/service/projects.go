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

// ProjectService replicates projects between clients and the server of record.
type ProjectService interface {
	Pull(ctx context.Context, caller model.Identity, since time.Time) (*model.PullResponse[model.ProjectDoc], error)
	Push(ctx context.Context, caller model.Identity, rows []model.ChangeRow[model.ProjectDoc]) ([]model.Conflict, error)
}

// ProjectSync is the production ProjectService.
type ProjectSync struct {
	repo     repository.ProjectRepository
	members  repository.MembershipRepository
	maxBatch int
}

// NewProjectSync constructs a project sync service with batch limits.
func NewProjectSync(repo repository.ProjectRepository, members repository.MembershipRepository, maxBatch int) *ProjectSync {
	if maxBatch <= 0 {
		maxBatch = 1000
	}
	return &ProjectSync{repo: repo, members: members, maxBatch: maxBatch}
}

// Pull returns the caller's member projects changed at or after since.
func (s *ProjectSync) Pull(ctx context.Context, caller model.Identity, since time.Time) (*model.PullResponse[model.ProjectDoc], error) {
	scope, err := resolveScope(ctx, s.members, caller)
	if err != nil {
		return nil, err
	}
	if len(scope) == 0 {
		return emptyPull[model.ProjectDoc](), nil
	}

	projects, err := s.repo.ChangedSince(ctx, scope, since)
	if err != nil {
		return nil, fmt.Errorf("projects changed since: %w", err)
	}

	docs := convert.ProjectsToWire(projects)
	if err := validateDocs(docs); err != nil {
		return nil, err
	}

	var maxUpdated time.Time
	if len(projects) > 0 {
		maxUpdated = projects[len(projects)-1].UpdatedAt
	}
	return &model.PullResponse[model.ProjectDoc]{
		Documents:  docs,
		Checkpoint: checkpointAfter(maxUpdated),
	}, nil
}

// Push applies project change rows sequentially.
func (s *ProjectSync) Push(ctx context.Context, caller model.Identity, rows []model.ChangeRow[model.ProjectDoc]) ([]model.Conflict, error) {
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
		rej, err := s.repo.Apply(ctx, caller, convert.ProjectChangeFromWire(row))
		switch {
		case err == nil:
		case errors.Is(err, errs.ErrAlreadyExists):
			conflicts = append(conflicts, model.Conflict{
				Error:    "Conflict: project was created concurrently",
				Document: row.NewDocumentState,
			})
			continue
		case errors.Is(err, errs.ErrInvalidReference):
			conflicts = append(conflicts, model.Conflict{
				Error:    fmt.Sprintf("Invalid reference in project %s", row.NewDocumentState.ID),
				Document: row.NewDocumentState,
			})
			continue
		default:
			return nil, fmt.Errorf("apply project %s: %w", row.NewDocumentState.ID, err)
		}
		if rej != nil {
			conflicts = append(conflicts, projectConflict(rej, row.NewDocumentState))
		}
	}
	return conflicts, nil
}

func projectConflict(rej *model.ProjectRejection, submitted *model.ProjectDoc) model.Conflict {
	if rej.Master != nil {
		return model.Conflict{Error: rej.Reason, Document: convert.ProjectToWire(*rej.Master)}
	}
	return model.Conflict{Error: rej.Reason, Document: submitted}
}
