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

// TaskRepo implements TaskRepository using PostgreSQL.
type TaskRepo struct{ db *DB }

// NewTaskRepo constructs a task repository.
func NewTaskRepo(db *DB) *TaskRepo { return &TaskRepo{db: db} }

func scanTask(row scanner) (model.Task, error) {
	var t model.Task
	err := row.Scan(
		&t.ID, &t.ProjectID, &t.Name, &t.Description, &t.StatusID, &t.PriorityID,
		&t.Checklist, &t.StartAt, &t.DueAt,
		&t.CreatedAt, &t.UpdatedAt,
		&t.CreatedBy.ID, &t.CreatedBy.Name, &t.CreatedBy.Image,
		&t.UpdatedBy.ID, &t.UpdatedBy.Name, &t.UpdatedBy.Image,
	)
	return t, err
}

const assigneesQ = `
SELECT ta.task_id, u.id, u.name, u.image
FROM task_assignments ta
JOIN users u ON u.id = ta.user_id
WHERE ta.task_id = ANY($1)
ORDER BY ta.task_id, u.id`

// ChangedSince returns tasks in the given projects whose updated_at is at
// or after since, with author summaries joined and assignees aggregated
// per task in a second query.
func (r *TaskRepo) ChangedSince(ctx context.Context, projectIDs []string, since time.Time) ([]model.Task, error) {
	const q = `
SELECT t.id, t.project_id, t.name, t.description, t.status_id, t.priority_id,
       t.checklist, t.start_at, t.due_at,
       t.created_at, t.updated_at,
       cu.id, cu.name, cu.image,
       uu.id, uu.name, uu.image
FROM tasks t
JOIN users cu ON cu.id = t.created_by
JOIN users uu ON uu.id = t.updated_by
WHERE t.project_id = ANY($1) AND t.updated_at >= $2
ORDER BY t.updated_at, t.id`
	rows, err := r.db.Pool.Query(ctx, q, projectIDs, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Task
	ids := make([]string, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
		ids = append(ids, t.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	byTask, err := r.assignees(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].AssignedTo = byTask[out[i].ID]
	}
	return out, nil
}

func (r *TaskRepo) assignees(ctx context.Context, taskIDs []string) (map[string][]model.UserRef, error) {
	rows, err := r.db.Pool.Query(ctx, assigneesQ, taskIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byTask := make(map[string][]model.UserRef)
	for rows.Next() {
		var taskID string
		var u model.UserRef
		if err := rows.Scan(&taskID, &u.ID, &u.Name, &u.Image); err != nil {
			return nil, err
		}
		byTask[taskID] = append(byTask[taskID], u)
	}
	return byTask, rows.Err()
}

// Apply runs a single task change inside one transaction: FOR UPDATE
// fetch with current assignees, creator-or-assignee authorization,
// optimistic-concurrency check, then update or referentially-checked
// insert, and a full replace of task_assignments when the change carries
// an assignee list.
func (r *TaskRepo) Apply(
	ctx context.Context, caller model.Identity, ch model.TaskChange,
) (rej *model.TaskRejection, err error) {
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
SELECT t.id, t.project_id, t.name, t.description, t.status_id, t.priority_id,
       t.checklist, t.start_at, t.due_at,
       t.created_at, t.updated_at,
       cu.id, cu.name, cu.image,
       uu.id, uu.name, uu.image
FROM tasks t
JOIN users cu ON cu.id = t.created_by
JOIN users uu ON uu.id = t.updated_by
WHERE t.id=$1
FOR UPDATE OF t`

	cur, scanErr := scanTask(tx.QueryRow(ctx, sel, ch.New.ID))
	switch {
	case scanErr == nil:
		return r.applyUpdate(ctx, tx, caller, ch, cur)
	case errors.Is(scanErr, pgx.ErrNoRows):
		return r.applyInsert(ctx, tx, caller, ch)
	default:
		return nil, scanErr
	}
}

func (r *TaskRepo) applyUpdate(
	ctx context.Context, tx pgx.Tx, caller model.Identity, ch model.TaskChange, cur model.Task,
) (rej *model.TaskRejection, err error) {
	// current assignees are needed both for the conflict payload and for
	// the creator-or-assignee authorization check
	byTask, err := r.txAssignees(ctx, tx, cur.ID)
	if err != nil {
		return nil, err
	}
	cur.AssignedTo = byTask

	if !caller.IsSuperAdmin && !canModifyTask(caller.ID, cur) {
		return &model.TaskRejection{Reason: "Unauthorized to modify this task", Master: &cur}, nil
	}
	if ch.Assumed == nil || ch.Assumed.UpdatedAt.Before(cur.UpdatedAt) {
		return &model.TaskRejection{Master: &cur}, nil
	}

	const upd = `
UPDATE tasks SET project_id=$2, name=$3, description=$4, status_id=$5, priority_id=$6,
       checklist=$7, start_at=$8, due_at=$9, updated_at=$10, updated_by=$11
WHERE id=$1`
	if _, err = tx.Exec(ctx, upd,
		ch.New.ID, ch.New.ProjectID, ch.New.Name, ch.New.Description,
		ch.New.StatusID, ch.New.PriorityID, ch.New.Checklist,
		ch.New.StartAt, ch.New.DueAt, ch.New.UpdatedAt, caller.ID,
	); err != nil {
		if isForeignKeyViolation(err) {
			err = fmt.Errorf("task %s: %w", ch.New.ID, errs.ErrInvalidReference)
		}
		return nil, err
	}
	if ch.ReplaceAssignees {
		if err = r.replaceAssignees(ctx, tx, ch.New.ID, ch.New.AssignedTo); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (r *TaskRepo) applyInsert(
	ctx context.Context, tx pgx.Tx, caller model.Identity, ch model.TaskChange,
) (rej *model.TaskRejection, err error) {
	if rej, err = r.checkTaskRefs(ctx, tx, caller, ch.New); rej != nil || err != nil {
		return rej, err
	}

	const ins = `
INSERT INTO tasks (id, project_id, name, description, status_id, priority_id,
                   checklist, start_at, due_at, created_at, updated_at, created_by, updated_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`
	if _, err = tx.Exec(ctx, ins,
		ch.New.ID, ch.New.ProjectID, ch.New.Name, ch.New.Description,
		ch.New.StatusID, ch.New.PriorityID, ch.New.Checklist,
		ch.New.StartAt, ch.New.DueAt, ch.New.CreatedAt, ch.New.UpdatedAt,
		caller.ID, caller.ID,
	); err != nil {
		if isUniqueViolation(err) {
			err = fmt.Errorf("task %s: %w", ch.New.ID, errs.ErrAlreadyExists)
		}
		return nil, err
	}
	if ch.ReplaceAssignees {
		if err = r.replaceAssignees(ctx, tx, ch.New.ID, ch.New.AssignedTo); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// checkTaskRefs validates the required references of a new task: the
// caller's access to the target project and the existence of the status
// and priority labels.
func (r *TaskRepo) checkTaskRefs(
	ctx context.Context, tx pgx.Tx, caller model.Identity, t model.Task,
) (*model.TaskRejection, error) {
	const projectQ = `SELECT EXISTS (SELECT 1 FROM projects WHERE id=$1)`
	const labelTypeQ = `SELECT EXISTS (SELECT 1 FROM labels WHERE id=$1 AND type=$2)`

	var ok bool
	if caller.IsSuperAdmin {
		if err := tx.QueryRow(ctx, projectQ, t.ProjectID).Scan(&ok); err != nil {
			return nil, err
		}
	} else {
		if err := tx.QueryRow(ctx, memberQ, t.ProjectID, caller.ID).Scan(&ok); err != nil {
			return nil, err
		}
	}
	if !ok {
		return &model.TaskRejection{
			Reason: fmt.Sprintf("Cannot create task: no access to project %s", t.ProjectID),
		}, nil
	}

	if err := tx.QueryRow(ctx, labelTypeQ, t.StatusID, "status").Scan(&ok); err != nil {
		return nil, err
	}
	if !ok {
		return &model.TaskRejection{
			Reason: fmt.Sprintf("Cannot create task: unknown status %s", t.StatusID),
		}, nil
	}

	if err := tx.QueryRow(ctx, labelTypeQ, t.PriorityID, "priority").Scan(&ok); err != nil {
		return nil, err
	}
	if !ok {
		return &model.TaskRejection{
			Reason: fmt.Sprintf("Cannot create task: unknown priority %s", t.PriorityID),
		}, nil
	}
	return nil, nil
}

// replaceAssignees applies replace-delete-then-insert semantics for the
// task_assignments sub-resource.
func (r *TaskRepo) replaceAssignees(ctx context.Context, tx pgx.Tx, taskID string, assignees []model.UserRef) error {
	const del = `DELETE FROM task_assignments WHERE task_id=$1`
	const ins = `INSERT INTO task_assignments (task_id, user_id) VALUES ($1,$2)`

	if _, err := tx.Exec(ctx, del, taskID); err != nil {
		return err
	}
	for _, a := range assignees {
		if _, err := tx.Exec(ctx, ins, taskID, a.ID); err != nil {
			if isForeignKeyViolation(err) {
				return fmt.Errorf("assignee %s: %w", a.ID, errs.ErrInvalidReference)
			}
			return err
		}
	}
	return nil
}

func (r *TaskRepo) txAssignees(ctx context.Context, tx pgx.Tx, taskID string) ([]model.UserRef, error) {
	rows, err := tx.Query(ctx, assigneesQ, []string{taskID})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.UserRef
	for rows.Next() {
		var id string
		var u model.UserRef
		if err := rows.Scan(&id, &u.ID, &u.Name, &u.Image); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// canModifyTask reports whether the user created the task or is one of
// its current assignees.
func canModifyTask(userID string, t model.Task) bool {
	if userID == t.CreatedBy.ID {
		return true
	}
	for _, a := range t.AssignedTo {
		if a.ID == userID {
			return true
		}
	}
	return false
}
