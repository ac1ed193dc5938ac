// Package convert translates between domain entities and their sync-wire
// representations (epoch-millisecond timestamps, embedded author summaries).
package convert

import (
	"time"

	"github.com/taskmesh/syncserver/internal/model"
)

// --- timestamps ---

// ToMillis converts a timestamp to epoch milliseconds.
func ToMillis(t time.Time) int64 { return t.UnixMilli() }

// FromMillis converts epoch milliseconds back to a UTC timestamp.
// The round trip t -> ToMillis -> FromMillis preserves millisecond precision.
func FromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func toMillisPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func fromMillisPtr(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := time.UnixMilli(*ms).UTC()
	return &t
}

// --- authors ---

func authorToWire(u model.UserRef) *model.Author {
	return &model.Author{ID: u.ID, Name: u.Name, Image: u.Image}
}

func authorsToWire(us []model.UserRef) []model.Author {
	if us == nil {
		return nil
	}
	out := make([]model.Author, 0, len(us))
	for _, u := range us {
		out = append(out, model.Author{ID: u.ID, Name: u.Name, Image: u.Image})
	}
	return out
}

func refsFromWire(as []model.Author) []model.UserRef {
	if as == nil {
		return nil
	}
	out := make([]model.UserRef, 0, len(as))
	for _, a := range as {
		out = append(out, model.UserRef{ID: a.ID, Name: a.Name, Image: a.Image})
	}
	return out
}

// --- labels ---

// LabelToWire converts a stored label to its wire document.
func LabelToWire(l model.Label) model.LabelDoc {
	return model.LabelDoc{
		ID:        l.ID,
		ProjectID: l.ProjectID,
		Type:      l.Type,
		Name:      l.Name,
		Color:     l.Color,
		Order:     l.Order,
		CreatedAt: ToMillis(l.CreatedAt),
		UpdatedAt: ToMillis(l.UpdatedAt),
		CreatedBy: authorToWire(l.CreatedBy),
		UpdatedBy: authorToWire(l.UpdatedBy),
	}
}

// LabelsToWire converts a batch of stored labels.
func LabelsToWire(ls []model.Label) []model.LabelDoc {
	out := make([]model.LabelDoc, 0, len(ls))
	for _, l := range ls {
		out = append(out, LabelToWire(l))
	}
	return out
}

// LabelFromWire converts a client-submitted label document. Author
// summaries are carried through as bare ids only; the server re-stamps
// ownership on apply and never trusts client-sent authors.
func LabelFromWire(d model.LabelDoc) model.Label {
	l := model.Label{
		ID:        d.ID,
		ProjectID: d.ProjectID,
		Type:      d.Type,
		Name:      d.Name,
		Color:     d.Color,
		Order:     d.Order,
		CreatedAt: FromMillis(d.CreatedAt),
		UpdatedAt: FromMillis(d.UpdatedAt),
	}
	if d.CreatedBy != nil {
		l.CreatedBy = model.UserRef{ID: d.CreatedBy.ID}
	}
	if d.UpdatedBy != nil {
		l.UpdatedBy = model.UserRef{ID: d.UpdatedBy.ID}
	}
	return l
}

// LabelChangeFromWire converts a change row into a domain change.
func LabelChangeFromWire(row model.ChangeRow[model.LabelDoc]) model.LabelChange {
	ch := model.LabelChange{New: LabelFromWire(*row.NewDocumentState)}
	if row.AssumedMasterState != nil {
		assumed := LabelFromWire(*row.AssumedMasterState)
		ch.Assumed = &assumed
	}
	return ch
}

// --- projects ---

// ProjectToWire converts a stored project to its wire document.
func ProjectToWire(p model.Project) model.ProjectDoc {
	return model.ProjectDoc{
		ID:          p.ID,
		OrgID:       p.OrgID,
		Name:        p.Name,
		Description: p.Description,
		Status:      p.Status,
		CreatedAt:   ToMillis(p.CreatedAt),
		UpdatedAt:   ToMillis(p.UpdatedAt),
		CreatedBy:   authorToWire(p.CreatedBy),
		UpdatedBy:   authorToWire(p.UpdatedBy),
	}
}

// ProjectsToWire converts a batch of stored projects.
func ProjectsToWire(ps []model.Project) []model.ProjectDoc {
	out := make([]model.ProjectDoc, 0, len(ps))
	for _, p := range ps {
		out = append(out, ProjectToWire(p))
	}
	return out
}

// ProjectFromWire converts a client-submitted project document.
func ProjectFromWire(d model.ProjectDoc) model.Project {
	p := model.Project{
		ID:          d.ID,
		OrgID:       d.OrgID,
		Name:        d.Name,
		Description: d.Description,
		Status:      d.Status,
		CreatedAt:   FromMillis(d.CreatedAt),
		UpdatedAt:   FromMillis(d.UpdatedAt),
	}
	if d.CreatedBy != nil {
		p.CreatedBy = model.UserRef{ID: d.CreatedBy.ID}
	}
	if d.UpdatedBy != nil {
		p.UpdatedBy = model.UserRef{ID: d.UpdatedBy.ID}
	}
	return p
}

// ProjectChangeFromWire converts a change row into a domain change.
func ProjectChangeFromWire(row model.ChangeRow[model.ProjectDoc]) model.ProjectChange {
	ch := model.ProjectChange{New: ProjectFromWire(*row.NewDocumentState)}
	if row.AssumedMasterState != nil {
		assumed := ProjectFromWire(*row.AssumedMasterState)
		ch.Assumed = &assumed
	}
	return ch
}

// --- tasks ---

// TaskToWire converts a stored task to its wire document.
func TaskToWire(t model.Task) model.TaskDoc {
	return model.TaskDoc{
		ID:          t.ID,
		ProjectID:   t.ProjectID,
		Name:        t.Name,
		Description: t.Description,
		StatusID:    t.StatusID,
		PriorityID:  t.PriorityID,
		Checklist:   t.Checklist,
		StartAt:     toMillisPtr(t.StartAt),
		DueAt:       toMillisPtr(t.DueAt),
		AssignedTo:  authorsToWire(t.AssignedTo),
		CreatedAt:   ToMillis(t.CreatedAt),
		UpdatedAt:   ToMillis(t.UpdatedAt),
		CreatedBy:   authorToWire(t.CreatedBy),
		UpdatedBy:   authorToWire(t.UpdatedBy),
	}
}

// TasksToWire converts a batch of stored tasks.
func TasksToWire(ts []model.Task) []model.TaskDoc {
	out := make([]model.TaskDoc, 0, len(ts))
	for _, t := range ts {
		out = append(out, TaskToWire(t))
	}
	return out
}

// TaskFromWire converts a client-submitted task document.
func TaskFromWire(d model.TaskDoc) model.Task {
	t := model.Task{
		ID:          d.ID,
		ProjectID:   d.ProjectID,
		Name:        d.Name,
		Description: d.Description,
		StatusID:    d.StatusID,
		PriorityID:  d.PriorityID,
		Checklist:   d.Checklist,
		StartAt:     fromMillisPtr(d.StartAt),
		DueAt:       fromMillisPtr(d.DueAt),
		AssignedTo:  refsFromWire(d.AssignedTo),
		CreatedAt:   FromMillis(d.CreatedAt),
		UpdatedAt:   FromMillis(d.UpdatedAt),
	}
	if d.CreatedBy != nil {
		t.CreatedBy = model.UserRef{ID: d.CreatedBy.ID}
	}
	if d.UpdatedBy != nil {
		t.UpdatedBy = model.UserRef{ID: d.UpdatedBy.ID}
	}
	return t
}

// TaskChangeFromWire converts a change row into a domain change. An
// assignee list present on the wire, even when empty, requests a full
// replace of the task's assignments.
func TaskChangeFromWire(row model.ChangeRow[model.TaskDoc]) model.TaskChange {
	ch := model.TaskChange{
		New:              TaskFromWire(*row.NewDocumentState),
		ReplaceAssignees: row.NewDocumentState.AssignedTo != nil,
	}
	if row.AssumedMasterState != nil {
		assumed := TaskFromWire(*row.AssumedMasterState)
		ch.Assumed = &assumed
	}
	return ch
}
