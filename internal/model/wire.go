package model

import "encoding/json"

// Wire representations of sync documents. Timestamps are epoch
// milliseconds; author foreign keys are replaced by embedded Author
// summaries. The validate tags describe the shape every document must
// satisfy before the server is allowed to return it from a pull.

// Author is the wire form of a user summary.
type Author struct {
	ID    string  `json:"id" validate:"required"`
	Name  string  `json:"name" validate:"required"`
	Image *string `json:"image,omitempty"`
}

// LabelDoc is the wire form of a label.
type LabelDoc struct {
	ID        string  `json:"id" validate:"required"`
	ProjectID string  `json:"projectId" validate:"required"`
	Type      string  `json:"type" validate:"required,oneof=status priority label"`
	Name      string  `json:"name" validate:"required"`
	Color     string  `json:"color"`
	Order     int     `json:"order"`
	CreatedAt int64   `json:"createdAt" validate:"required,gt=0"`
	UpdatedAt int64   `json:"updatedAt" validate:"required,gt=0"`
	CreatedBy *Author `json:"createdBy,omitempty" validate:"required"`
	UpdatedBy *Author `json:"updatedBy,omitempty" validate:"required"`
}

// ProjectDoc is the wire form of a project.
type ProjectDoc struct {
	ID          string  `json:"id" validate:"required"`
	OrgID       string  `json:"orgId" validate:"required"`
	Name        string  `json:"name" validate:"required"`
	Description string  `json:"description"`
	Status      string  `json:"status"`
	CreatedAt   int64   `json:"createdAt" validate:"required,gt=0"`
	UpdatedAt   int64   `json:"updatedAt" validate:"required,gt=0"`
	CreatedBy   *Author `json:"createdBy,omitempty" validate:"required"`
	UpdatedBy   *Author `json:"updatedBy,omitempty" validate:"required"`
}

// TaskDoc is the wire form of a task. AssignedTo aggregates the
// task_assignments rows for the task; a nil slice on push means the
// client did not touch the assignment list.
type TaskDoc struct {
	ID          string          `json:"id" validate:"required"`
	ProjectID   string          `json:"projectId" validate:"required"`
	Name        string          `json:"name" validate:"required"`
	Description string          `json:"description"`
	StatusID    string          `json:"statusId" validate:"required"`
	PriorityID  string          `json:"priorityId" validate:"required"`
	Checklist   json.RawMessage `json:"checklist,omitempty"`
	StartAt     *int64          `json:"startAt,omitempty"`
	DueAt       *int64          `json:"dueAt,omitempty"`
	AssignedTo  []Author        `json:"assignedTo,omitempty" validate:"omitempty,dive"`
	CreatedAt   int64           `json:"createdAt" validate:"required,gt=0"`
	UpdatedAt   int64           `json:"updatedAt" validate:"required,gt=0"`
	CreatedBy   *Author         `json:"createdBy,omitempty" validate:"required"`
	UpdatedBy   *Author         `json:"updatedBy,omitempty" validate:"required"`
}

// ChangeRow pairs a proposed document state with the client's belief of
// the server's last-known state. A nil AssumedMasterState signals the
// client thinks the document does not yet exist server-side.
type ChangeRow[T any] struct {
	ID                 string `json:"id,omitempty"`
	NewDocumentState   *T     `json:"newDocumentState"`
	AssumedMasterState *T     `json:"assumedMasterState,omitempty"`
}

// PushRequest is the body of every push endpoint.
type PushRequest[T any] struct {
	ChangeRows []ChangeRow[T] `json:"changeRows"`
}

// Checkpoint is the opaque pull cursor handed back to the client.
type Checkpoint struct {
	UpdatedAt int64 `json:"updatedAt"`
}

// PullResponse is the body of every pull endpoint.
type PullResponse[T any] struct {
	Documents  []T        `json:"documents"`
	Checkpoint Checkpoint `json:"checkpoint"`
}

// Conflict is a single rejected change row communicated back to the
// client. A rejection with a reason serializes as {error, document};
// a pure optimistic-concurrency conflict serializes as the authoritative
// document itself so the client can rebase against it.
type Conflict struct {
	Error    string
	Document any
}

// MarshalJSON renders the two conflict shapes described above.
func (c Conflict) MarshalJSON() ([]byte, error) {
	if c.Error == "" {
		return json.Marshal(c.Document)
	}
	return json.Marshal(struct {
		Error    string `json:"error"`
		Document any    `json:"document,omitempty"`
	}{Error: c.Error, Document: c.Document})
}
