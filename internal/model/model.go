// Package model defines domain entities used by services and repositories.
package model

import "time"

// Identity is the authenticated caller as reported by the auth collaborator.
type Identity struct {
	ID           string
	Email        string
	IsSuperAdmin bool
}

// UserRef is a denormalized author/assignee summary. On write paths only
// ID is meaningful; read paths populate Name and Image from the users table.
type UserRef struct {
	ID    string
	Name  string
	Image *string
}

// Label is a project-scoped tag. Task statuses and priorities are labels
// with the corresponding Type, referenced by tasks through StatusID/PriorityID.
type Label struct {
	ID        string
	ProjectID string
	Type      string // "status", "priority" or "label"
	Name      string
	Color     string
	Order     int
	CreatedAt time.Time
	UpdatedAt time.Time
	CreatedBy UserRef
	UpdatedBy UserRef
}

// Project groups tasks and labels under an organization.
type Project struct {
	ID          string
	OrgID       string
	Name        string
	Description string
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CreatedBy   UserRef
	UpdatedBy   UserRef
}

// Task is a unit of work inside a project. Checklist is stored and
// transported as opaque JSON.
type Task struct {
	ID          string
	ProjectID   string
	Name        string
	Description string
	StatusID    string
	PriorityID  string
	Checklist   []byte // raw JSON, may be nil
	StartAt     *time.Time
	DueAt       *time.Time
	AssignedTo  []UserRef
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CreatedBy   UserRef
	UpdatedBy   UserRef
}

// LabelChange is a client-proposed label mutation with the client's
// assumed server-side state for optimistic concurrency.
type LabelChange struct {
	New     Label
	Assumed *Label
}

// ProjectChange is a client-proposed project mutation.
type ProjectChange struct {
	New     Project
	Assumed *Project
}

// TaskChange is a client-proposed task mutation. ReplaceAssignees reports
// whether the payload carried an assignee list (present but empty still
// clears the assignments).
type TaskChange struct {
	New              Task
	Assumed          *Task
	ReplaceAssignees bool
}

// Rejection is the outcome of a change row the server refused to apply.
// When Reason is empty the rejection is a pure state conflict and Master
// carries the authoritative row; when Reason is set, Master (if non-nil)
// is the row the client is not allowed to touch.
type Rejection[T any] struct {
	Reason string
	Master *T
}

// LabelRejection, ProjectRejection and TaskRejection are the per-family
// rejection results returned by repository Apply methods.
type (
	LabelRejection   = Rejection[Label]
	ProjectRejection = Rejection[Project]
	TaskRejection    = Rejection[Task]
)
