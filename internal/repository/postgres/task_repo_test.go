package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/taskmesh/syncserver/internal/errs"
	"github.com/taskmesh/syncserver/internal/model"
)

var taskCols = []string{
	"id", "project_id", "name", "description", "status_id", "priority_id",
	"checklist", "start_at", "due_at",
	"created_at", "updated_at",
	"cu_id", "cu_name", "cu_image",
	"uu_id", "uu_name", "uu_image",
}

func taskRow(id, creator string, updated time.Time) *pgxmock.Rows {
	return pgxmock.NewRows(taskCols).AddRow(
		id, "P1", "Ship it", "", "S1", "PR1",
		nil, nil, nil,
		time.UnixMilli(1000).UTC(), updated,
		creator, "Alice", nil,
		creator, "Alice", nil,
	)
}

func assigneeRows(taskID string, userIDs ...string) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{"task_id", "id", "name", "image"})
	for _, id := range userIDs {
		rows.AddRow(taskID, id, "User "+id, nil)
	}
	return rows
}

func TestTaskRepo_Apply_Update_AssigneeAllowed(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTaskRepo(db)

	updated := time.UnixMilli(2000).UTC()
	assumed := model.Task{UpdatedAt: updated}
	ch := model.TaskChange{
		New: model.Task{
			ID: "T1", ProjectID: "P1", Name: "Ship it now", StatusID: "S1", PriorityID: "PR1",
			UpdatedAt: time.UnixMilli(3000).UTC(),
		},
		Assumed: &assumed,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE OF t`).
		WithArgs("T1").
		WillReturnRows(taskRow("T1", "U9", updated))
	// caller U2 is not the creator but is assigned
	mock.ExpectQuery(`FROM task_assignments ta`).
		WithArgs([]string{"T1"}).
		WillReturnRows(assigneeRows("T1", "U2"))
	mock.ExpectExec(`UPDATE tasks SET`).
		WithArgs("T1", "P1", "Ship it now", "", "S1", "PR1",
			[]byte(nil), (*time.Time)(nil), (*time.Time)(nil), ch.New.UpdatedAt, "U2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	rej, err := r.Apply(context.Background(), model.Identity{ID: "U2"}, ch)
	require.NoError(t, err)
	require.Nil(t, rej)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepo_Apply_Update_Unauthorized(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTaskRepo(db)

	updated := time.UnixMilli(2000).UTC()
	assumed := model.Task{UpdatedAt: updated}
	ch := model.TaskChange{
		New:     model.Task{ID: "T1", ProjectID: "P1"},
		Assumed: &assumed,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE OF t`).
		WithArgs("T1").
		WillReturnRows(taskRow("T1", "UB", updated))
	mock.ExpectQuery(`FROM task_assignments ta`).
		WithArgs([]string{"T1"}).
		WillReturnRows(assigneeRows("T1", "UB"))
	mock.ExpectCommit()

	rej, err := r.Apply(context.Background(), model.Identity{ID: "UA"}, ch)
	require.NoError(t, err)
	require.NotNil(t, rej)
	require.Equal(t, "Unauthorized to modify this task", rej.Reason)
	require.NotNil(t, rej.Master)
	// the conflict payload carries the authoritative row with its assignees
	require.Len(t, rej.Master.AssignedTo, 1)
	require.Equal(t, "UB", rej.Master.AssignedTo[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepo_Apply_Update_StaleAssumption(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTaskRepo(db)

	serverUpdated := time.UnixMilli(5000).UTC()
	assumed := model.Task{UpdatedAt: time.UnixMilli(2000).UTC()}
	ch := model.TaskChange{
		New:     model.Task{ID: "T1", ProjectID: "P1"},
		Assumed: &assumed,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE OF t`).
		WithArgs("T1").
		WillReturnRows(taskRow("T1", "U1", serverUpdated))
	mock.ExpectQuery(`FROM task_assignments ta`).
		WithArgs([]string{"T1"}).
		WillReturnRows(assigneeRows("T1"))
	mock.ExpectCommit()

	rej, err := r.Apply(context.Background(), model.Identity{ID: "U1"}, ch)
	require.NoError(t, err)
	require.NotNil(t, rej)
	require.Empty(t, rej.Reason)
	require.Equal(t, serverUpdated, rej.Master.UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepo_Apply_Create_WithAssignees(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTaskRepo(db)

	ch := model.TaskChange{
		New: model.Task{
			ID: "T1", ProjectID: "P1", Name: "Ship it", StatusID: "S1", PriorityID: "PR1",
			AssignedTo: []model.UserRef{{ID: "U2"}},
			CreatedAt:  time.UnixMilli(1000).UTC(), UpdatedAt: time.UnixMilli(1000).UTC(),
		},
		ReplaceAssignees: true,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE OF t`).
		WithArgs("T1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM project_members`).
		WithArgs("P1", "U1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM labels`).
		WithArgs("S1", "status").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM labels`).
		WithArgs("PR1", "priority").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec(`INSERT INTO tasks`).
		WithArgs("T1", "P1", "Ship it", "", "S1", "PR1",
			[]byte(nil), (*time.Time)(nil), (*time.Time)(nil),
			ch.New.CreatedAt, ch.New.UpdatedAt, "U1", "U1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`DELETE FROM task_assignments`).
		WithArgs("T1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`INSERT INTO task_assignments`).
		WithArgs("T1", "U2").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	rej, err := r.Apply(context.Background(), model.Identity{ID: "U1"}, ch)
	require.NoError(t, err)
	require.Nil(t, rej)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepo_Apply_Create_UnknownStatus(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTaskRepo(db)

	ch := model.TaskChange{New: model.Task{
		ID: "T1", ProjectID: "P1", StatusID: "nope", PriorityID: "PR1",
	}}

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE OF t`).
		WithArgs("T1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM project_members`).
		WithArgs("P1", "U1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM labels`).
		WithArgs("nope", "status").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectCommit()

	rej, err := r.Apply(context.Background(), model.Identity{ID: "U1"}, ch)
	require.NoError(t, err)
	require.NotNil(t, rej)
	require.Equal(t, "Cannot create task: unknown status nope", rej.Reason)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepo_Apply_Update_UnknownAssignee(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTaskRepo(db)

	updated := time.UnixMilli(2000).UTC()
	assumed := model.Task{UpdatedAt: updated}
	ch := model.TaskChange{
		New: model.Task{
			ID: "T1", ProjectID: "P1", Name: "Ship it", StatusID: "S1", PriorityID: "PR1",
			AssignedTo: []model.UserRef{{ID: "ghost"}},
			UpdatedAt:  time.UnixMilli(3000).UTC(),
		},
		Assumed:          &assumed,
		ReplaceAssignees: true,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE OF t`).
		WithArgs("T1").
		WillReturnRows(taskRow("T1", "U1", updated))
	mock.ExpectQuery(`FROM task_assignments ta`).
		WithArgs([]string{"T1"}).
		WillReturnRows(assigneeRows("T1"))
	mock.ExpectExec(`UPDATE tasks SET`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`DELETE FROM task_assignments`).
		WithArgs("T1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`INSERT INTO task_assignments`).
		WithArgs("T1", "ghost").
		WillReturnError(fkViolation())
	mock.ExpectRollback()

	_, err := r.Apply(context.Background(), model.Identity{ID: "U1"}, ch)
	require.ErrorIs(t, err, errs.ErrInvalidReference)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepo_ChangedSince_AggregatesAssignees(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTaskRepo(db)

	since := time.UnixMilli(0).UTC()
	scope := []string{"P1"}

	mock.ExpectQuery(`WHERE t\.project_id = ANY`).
		WithArgs(scope, since).
		WillReturnRows(taskRow("T1", "U1", time.UnixMilli(2000).UTC()))
	mock.ExpectQuery(`FROM task_assignments ta`).
		WithArgs([]string{"T1"}).
		WillReturnRows(assigneeRows("T1", "U2", "U3"))

	out, err := r.ChangedSince(context.Background(), scope, since)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Len(t, out[0].AssignedTo, 2)
	require.Equal(t, "U2", out[0].AssignedTo[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepo_ChangedSince_NoRows_SkipsAssigneeQuery(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTaskRepo(db)

	since := time.UnixMilli(0).UTC()
	mock.ExpectQuery(`WHERE t\.project_id = ANY`).
		WithArgs([]string{"P1"}, since).
		WillReturnRows(pgxmock.NewRows(taskCols))

	out, err := r.ChangedSince(context.Background(), []string{"P1"}, since)
	require.NoError(t, err)
	require.Empty(t, out)
	require.NoError(t, mock.ExpectationsWereMet())
}
