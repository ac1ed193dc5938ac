package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/taskmesh/syncserver/internal/errs"
	"github.com/taskmesh/syncserver/internal/model"
)

// LabelRepo implements LabelRepository using PostgreSQL.
type LabelRepo struct{ db *DB }

// NewLabelRepo constructs a label repository.
func NewLabelRepo(db *DB) *LabelRepo { return &LabelRepo{db: db} }

type scanner interface{ Scan(dest ...any) error }

func scanLabel(row scanner) (model.Label, error) {
	var l model.Label
	err := row.Scan(
		&l.ID, &l.ProjectID, &l.Type, &l.Name, &l.Color, &l.Order,
		&l.CreatedAt, &l.UpdatedAt,
		&l.CreatedBy.ID, &l.CreatedBy.Name, &l.CreatedBy.Image,
		&l.UpdatedBy.ID, &l.UpdatedBy.Name, &l.UpdatedBy.Image,
	)
	return l, err
}

// ChangedSince returns labels visible through the given projects whose
// updated_at is at or after since, joined with author summaries.
func (r *LabelRepo) ChangedSince(ctx context.Context, projectIDs []string, since time.Time) ([]model.Label, error) {
	const q = `
SELECT l.id, l.project_id, l.type, l.name, l.color, l.ord,
       l.created_at, l.updated_at,
       cu.id, cu.name, cu.image,
       uu.id, uu.name, uu.image
FROM labels l
JOIN users cu ON cu.id = l.created_by
JOIN users uu ON uu.id = l.updated_by
WHERE l.project_id = ANY($1) AND l.updated_at >= $2
ORDER BY l.updated_at, l.id`
	rows, err := r.db.Pool.Query(ctx, q, projectIDs, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Label
	for rows.Next() {
		l, err := scanLabel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Apply runs the fetch/authorize/conflict-check/apply sequence for a single
// label change inside one transaction. The FOR UPDATE fetch serializes
// concurrent pushes touching the same document id.
func (r *LabelRepo) Apply(
	ctx context.Context, caller model.Identity, ch model.LabelChange,
) (rej *model.LabelRejection, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const sel = `
SELECT l.id, l.project_id, l.type, l.name, l.color, l.ord,
       l.created_at, l.updated_at,
       cu.id, cu.name, cu.image,
       uu.id, uu.name, uu.image
FROM labels l
JOIN users cu ON cu.id = l.created_by
JOIN users uu ON uu.id = l.updated_by
WHERE l.id=$1
FOR UPDATE OF l`
	const upd = `
UPDATE labels SET project_id=$2, type=$3, name=$4, color=$5, ord=$6, updated_at=$7, updated_by=$8
WHERE id=$1`
	const ins = `
INSERT INTO labels (id, project_id, type, name, color, ord, created_at, updated_at, created_by, updated_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

	cur, scanErr := scanLabel(tx.QueryRow(ctx, sel, ch.New.ID))
	switch {
	case scanErr == nil:
		if !caller.IsSuperAdmin && caller.ID != cur.CreatedBy.ID {
			return &model.LabelRejection{Reason: "Unauthorized to modify this label", Master: &cur}, nil
		}
		if ch.Assumed == nil || ch.Assumed.UpdatedAt.Before(cur.UpdatedAt) {
			return &model.LabelRejection{Master: &cur}, nil
		}
		if _, err = tx.Exec(ctx, upd,
			ch.New.ID, ch.New.ProjectID, ch.New.Type, ch.New.Name, ch.New.Color, ch.New.Order,
			ch.New.UpdatedAt, caller.ID,
		); err != nil {
			if isForeignKeyViolation(err) {
				err = fmt.Errorf("label %s: %w", ch.New.ID, errs.ErrInvalidReference)
			}
			return nil, err
		}
		return nil, nil

	case errors.Is(scanErr, pgx.ErrNoRows):
		if !caller.IsSuperAdmin {
			var member bool
			if err = tx.QueryRow(ctx, memberQ, ch.New.ProjectID, caller.ID).Scan(&member); err != nil {
				return nil, err
			}
			if !member {
				return &model.LabelRejection{
					Reason: fmt.Sprintf("Cannot create label: no access to project %s", ch.New.ProjectID),
				}, nil
			}
		}
		if _, err = tx.Exec(ctx, ins,
			ch.New.ID, ch.New.ProjectID, ch.New.Type, ch.New.Name, ch.New.Color, ch.New.Order,
			ch.New.CreatedAt, ch.New.UpdatedAt, caller.ID, caller.ID,
		); err != nil {
			if isUniqueViolation(err) {
				err = fmt.Errorf("label %s: %w", ch.New.ID, errs.ErrAlreadyExists)
			}
			if isForeignKeyViolation(err) {
				err = fmt.Errorf("label %s: %w", ch.New.ID, errs.ErrInvalidReference)
			}
			return nil, err
		}
		return nil, nil

	default:
		return nil, scanErr
	}
}

// memberQ is shared by the Apply implementations for creation-scope checks.
const memberQ = `SELECT EXISTS (SELECT 1 FROM project_members WHERE project_id=$1 AND user_id=$2)`
