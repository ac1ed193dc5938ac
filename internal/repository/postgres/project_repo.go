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

// ProjectRepo implements ProjectRepository using PostgreSQL.
type ProjectRepo struct{ db *DB }

// NewProjectRepo constructs a project repository.
func NewProjectRepo(db *DB) *ProjectRepo { return &ProjectRepo{db: db} }

func scanProject(row scanner) (model.Project, error) {
	var p model.Project
	err := row.Scan(
		&p.ID, &p.OrgID, &p.Name, &p.Description, &p.Status,
		&p.CreatedAt, &p.UpdatedAt,
		&p.CreatedBy.ID, &p.CreatedBy.Name, &p.CreatedBy.Image,
		&p.UpdatedBy.ID, &p.UpdatedBy.Name, &p.UpdatedBy.Image,
	)
	return p, err
}

// ChangedSince returns the given projects when their updated_at is at or
// after since, joined with author summaries.
func (r *ProjectRepo) ChangedSince(ctx context.Context, projectIDs []string, since time.Time) ([]model.Project, error) {
	const q = `
SELECT p.id, p.org_id, p.name, p.description, p.status,
       p.created_at, p.updated_at,
       cu.id, cu.name, cu.image,
       uu.id, uu.name, uu.image
FROM projects p
JOIN users cu ON cu.id = p.created_by
JOIN users uu ON uu.id = p.updated_by
WHERE p.id = ANY($1) AND p.updated_at >= $2
ORDER BY p.updated_at, p.id`
	rows, err := r.db.Pool.Query(ctx, q, projectIDs, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Apply runs a single project change inside one transaction. Creating a
// project also grants the caller an owner membership row so the new
// project is visible to their next pull.
func (r *ProjectRepo) Apply(
	ctx context.Context, caller model.Identity, ch model.ProjectChange,
) (rej *model.ProjectRejection, err error) {
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
SELECT p.id, p.org_id, p.name, p.description, p.status,
       p.created_at, p.updated_at,
       cu.id, cu.name, cu.image,
       uu.id, uu.name, uu.image
FROM projects p
JOIN users cu ON cu.id = p.created_by
JOIN users uu ON uu.id = p.updated_by
WHERE p.id=$1
FOR UPDATE OF p`
	const upd = `
UPDATE projects SET org_id=$2, name=$3, description=$4, status=$5, updated_at=$6, updated_by=$7
WHERE id=$1`
	const ins = `
INSERT INTO projects (id, org_id, name, description, status, created_at, updated_at, created_by, updated_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	const insMember = `INSERT INTO project_members (project_id, user_id, role) VALUES ($1,$2,'owner')`

	cur, scanErr := scanProject(tx.QueryRow(ctx, sel, ch.New.ID))
	switch {
	case scanErr == nil:
		if !caller.IsSuperAdmin && caller.ID != cur.CreatedBy.ID {
			return &model.ProjectRejection{Reason: "Unauthorized to modify this project", Master: &cur}, nil
		}
		if ch.Assumed == nil || ch.Assumed.UpdatedAt.Before(cur.UpdatedAt) {
			return &model.ProjectRejection{Master: &cur}, nil
		}
		if _, err = tx.Exec(ctx, upd,
			ch.New.ID, ch.New.OrgID, ch.New.Name, ch.New.Description, ch.New.Status,
			ch.New.UpdatedAt, caller.ID,
		); err != nil {
			if isForeignKeyViolation(err) {
				err = fmt.Errorf("project %s: %w", ch.New.ID, errs.ErrInvalidReference)
			}
			return nil, err
		}
		return nil, nil

	case errors.Is(scanErr, pgx.ErrNoRows):
		if _, err = tx.Exec(ctx, ins,
			ch.New.ID, ch.New.OrgID, ch.New.Name, ch.New.Description, ch.New.Status,
			ch.New.CreatedAt, ch.New.UpdatedAt, caller.ID, caller.ID,
		); err != nil {
			if isUniqueViolation(err) {
				err = fmt.Errorf("project %s: %w", ch.New.ID, errs.ErrAlreadyExists)
			}
			if isForeignKeyViolation(err) {
				err = fmt.Errorf("project %s: %w", ch.New.ID, errs.ErrInvalidReference)
			}
			return nil, err
		}
		if _, err = tx.Exec(ctx, insMember, ch.New.ID, caller.ID); err != nil {
			if isForeignKeyViolation(err) {
				err = fmt.Errorf("project %s member: %w", caller.ID, errs.ErrInvalidReference)
			}
			return nil, err
		}
		return nil, nil

	default:
		return nil, scanErr
	}
}
