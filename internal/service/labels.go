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

// LabelService replicates labels between clients and the server of record.
type LabelService interface {
	// Pull returns labels visible to the caller changed at or after since.
	Pull(ctx context.Context, caller model.Identity, since time.Time) (*model.PullResponse[model.LabelDoc], error)
	// Push applies a batch of client changes and returns the conflicts.
	Push(ctx context.Context, caller model.Identity, rows []model.ChangeRow[model.LabelDoc]) ([]model.Conflict, error)
}

// LabelSync is the production LabelService.
type LabelSync struct {
	repo     repository.LabelRepository
	members  repository.MembershipRepository
	maxBatch int
}

// NewLabelSync constructs a label sync service with batch limits.
func NewLabelSync(repo repository.LabelRepository, members repository.MembershipRepository, maxBatch int) *LabelSync {
	if maxBatch <= 0 {
		maxBatch = 1000
	}
	return &LabelSync{repo: repo, members: members, maxBatch: maxBatch}
}

// Pull resolves the caller's scope and returns the changed documents with
// a new checkpoint. An empty scope short-circuits without touching storage.
func (s *LabelSync) Pull(ctx context.Context, caller model.Identity, since time.Time) (*model.PullResponse[model.LabelDoc], error) {
	scope, err := resolveScope(ctx, s.members, caller)
	if err != nil {
		return nil, err
	}
	if len(scope) == 0 {
		return emptyPull[model.LabelDoc](), nil
	}

	labels, err := s.repo.ChangedSince(ctx, scope, since)
	if err != nil {
		return nil, fmt.Errorf("labels changed since: %w", err)
	}

	docs := convert.LabelsToWire(labels)
	if err := validateDocs(docs); err != nil {
		return nil, err
	}

	var maxUpdated time.Time
	if len(labels) > 0 {
		maxUpdated = labels[len(labels)-1].UpdatedAt
	}
	return &model.PullResponse[model.LabelDoc]{
		Documents:  docs,
		Checkpoint: checkpointAfter(maxUpdated),
	}, nil
}

// Push applies change rows sequentially. Per-row refusals become conflict
// entries; only storage failures abort the batch.
func (s *LabelSync) Push(ctx context.Context, caller model.Identity, rows []model.ChangeRow[model.LabelDoc]) ([]model.Conflict, error) {
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
		rej, err := s.repo.Apply(ctx, caller, convert.LabelChangeFromWire(row))
		switch {
		case err == nil:
		case errors.Is(err, errs.ErrAlreadyExists):
			conflicts = append(conflicts, model.Conflict{
				Error:    "Conflict: label was created concurrently",
				Document: row.NewDocumentState,
			})
			continue
		case errors.Is(err, errs.ErrInvalidReference):
			conflicts = append(conflicts, model.Conflict{
				Error:    fmt.Sprintf("Invalid reference in label %s", row.NewDocumentState.ID),
				Document: row.NewDocumentState,
			})
			continue
		default:
			return nil, fmt.Errorf("apply label %s: %w", row.NewDocumentState.ID, err)
		}
		if rej != nil {
			conflicts = append(conflicts, labelConflict(rej, row.NewDocumentState))
		}
	}
	return conflicts, nil
}

func labelConflict(rej *model.LabelRejection, submitted *model.LabelDoc) model.Conflict {
	if rej.Master != nil {
		return model.Conflict{Error: rej.Reason, Document: convert.LabelToWire(*rej.Master)}
	}
	return model.Conflict{Error: rej.Reason, Document: submitted}
}
