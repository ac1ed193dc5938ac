package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taskmesh/syncserver/internal/errs"
	"github.com/taskmesh/syncserver/internal/model"
	"github.com/taskmesh/syncserver/internal/repository"
)

type fakeTaskRepo struct {
	changedInScope []string
	changedOut     []model.Task
	changedErr     error
	changedCalls   int

	applyIn  []model.TaskChange
	applyOut []*model.TaskRejection
	applyErr []error
}

var _ repository.TaskRepository = (*fakeTaskRepo)(nil)

func (f *fakeTaskRepo) ChangedSince(_ context.Context, scope []string, _ time.Time) ([]model.Task, error) {
	f.changedCalls++
	f.changedInScope = scope
	return f.changedOut, f.changedErr
}

func (f *fakeTaskRepo) Apply(_ context.Context, _ model.Identity, ch model.TaskChange) (*model.TaskRejection, error) {
	i := len(f.applyIn)
	f.applyIn = append(f.applyIn, ch)
	var rej *model.TaskRejection
	var err error
	if i < len(f.applyOut) {
		rej = f.applyOut[i]
	}
	if i < len(f.applyErr) {
		err = f.applyErr[i]
	}
	return rej, err
}

func validTask(id string, updated int64) model.Task {
	return model.Task{
		ID: id, ProjectID: "P1", Name: "Ship it", StatusID: "S1", PriorityID: "PR1",
		AssignedTo: []model.UserRef{{ID: "U2", Name: "Bob"}},
		CreatedAt:  time.UnixMilli(1000).UTC(),
		UpdatedAt:  time.UnixMilli(updated).UTC(),
		CreatedBy:  model.UserRef{ID: "U1", Name: "Alice"},
		UpdatedBy:  model.UserRef{ID: "U1", Name: "Alice"},
	}
}

func TestTaskSync_Pull_EmptyScope_NoStorageQuery(t *testing.T) {
	repo := &fakeTaskRepo{}
	s := NewTaskSync(repo, &fakeMembers{}, 0)

	resp, err := s.Pull(context.Background(), model.Identity{ID: "stranger"}, time.UnixMilli(0))
	require.NoError(t, err)
	require.Empty(t, resp.Documents)
	require.Zero(t, repo.changedCalls)
}

func TestTaskSync_Pull_IncludesAssignees(t *testing.T) {
	repo := &fakeTaskRepo{changedOut: []model.Task{validTask("T1", 2000)}}
	s := NewTaskSync(repo, &fakeMembers{projectsOut: []string{"P1"}}, 0)

	resp, err := s.Pull(context.Background(), model.Identity{ID: "U1"}, time.UnixMilli(0))
	require.NoError(t, err)
	require.Len(t, resp.Documents, 1)
	require.Len(t, resp.Documents[0].AssignedTo, 1)
	require.Equal(t, "U2", resp.Documents[0].AssignedTo[0].ID)
	require.Equal(t, int64(2000), resp.Documents[0].UpdatedAt)
	require.Equal(t, int64(2000), resp.Checkpoint.UpdatedAt)
}

func TestTaskSync_Pull_CorruptAssigneeIsIntegrityError(t *testing.T) {
	broken := validTask("T1", 2000)
	broken.AssignedTo = []model.UserRef{{ID: "U9"}} // name lost

	repo := &fakeTaskRepo{changedOut: []model.Task{broken}}
	s := NewTaskSync(repo, &fakeMembers{projectsOut: []string{"P1"}}, 0)

	_, err := s.Pull(context.Background(), model.Identity{ID: "U1"}, time.UnixMilli(0))
	require.ErrorIs(t, err, errs.ErrIntegrity)
}

func TestTaskSync_Push_InvalidReference_BecomesConflict(t *testing.T) {
	repo := &fakeTaskRepo{applyErr: []error{errs.ErrInvalidReference}}
	s := NewTaskSync(repo, &fakeMembers{}, 0)

	rows := []model.ChangeRow[model.TaskDoc]{
		{NewDocumentState: &model.TaskDoc{ID: "T1", ProjectID: "P1"}},
	}
	conflicts, err := s.Push(context.Background(), model.Identity{ID: "U1"}, rows)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	require.Equal(t, "Invalid reference in task T1", conflicts[0].Error)
}

func TestTaskSync_Push_UnauthorizedRejection_CarriesMaster(t *testing.T) {
	master := validTask("T1", 8000)
	repo := &fakeTaskRepo{applyOut: []*model.TaskRejection{
		{Reason: "Unauthorized to modify this task", Master: &master},
	}}
	s := NewTaskSync(repo, &fakeMembers{}, 0)

	rows := []model.ChangeRow[model.TaskDoc]{
		{NewDocumentState: &model.TaskDoc{ID: "T1", ProjectID: "P1"}},
	}
	conflicts, err := s.Push(context.Background(), model.Identity{ID: "UA"}, rows)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	require.Contains(t, conflicts[0].Error, "Unauthorized")

	doc, ok := conflicts[0].Document.(model.TaskDoc)
	require.True(t, ok)
	require.Equal(t, int64(8000), doc.UpdatedAt)
}

func TestTaskSync_Push_AssigneePresencePropagates(t *testing.T) {
	repo := &fakeTaskRepo{}
	s := NewTaskSync(repo, &fakeMembers{}, 0)

	rows := []model.ChangeRow[model.TaskDoc]{
		{NewDocumentState: &model.TaskDoc{ID: "T1", AssignedTo: []model.Author{}}},
		{NewDocumentState: &model.TaskDoc{ID: "T2"}},
	}
	_, err := s.Push(context.Background(), model.Identity{ID: "U1"}, rows)
	require.NoError(t, err)
	require.Len(t, repo.applyIn, 2)
	require.True(t, repo.applyIn[0].ReplaceAssignees)
	require.False(t, repo.applyIn[1].ReplaceAssignees)
}
