package repository

import (
	"time"

	"github.com/pesio-ai/be-exp-cases/internal/auth"
	"github.com/pesio-ai/be-exp-cases/internal/stage"
)

// ── Domain types for the case engine ─────────────────────────────────────────

// CaseStatus is derived from the case's stage on every accepted transition.
type CaseStatus string

// Case statuses.
const (
	StatusPending    CaseStatus = "PENDING"
	StatusInProgress CaseStatus = "IN_PROGRESS"
	StatusCompleted  CaseStatus = "COMPLETED"
	StatusSuspended  CaseStatus = "SUSPENDED"
	StatusCancelled  CaseStatus = "CANCELLED"
)

// Case is an expropriation case file.
type Case struct {
	ID                 string
	FileNumber         string // human-readable, unique
	CurrentStage       stage.ID
	Status             CaseStatus
	ProgressPercentage int
	AssignedUserID     *string
	SupervisorUserID   *string
	DepartmentID       string
	PropertyAddress    *string
	Description        *string
	CreatedBy          *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	DeletedAt          *time.Time
}

// StageAssignment records who owns a case while it sits in a stage, and by
// when. Exactly one assignment per case is active at any time.
type StageAssignment struct {
	ID             string
	CaseID         string
	Stage          stage.ID
	AssignedUserID *string
	AssignedAt     time.Time
	DueAt          *time.Time
	IsActive       bool
	Notes          *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ChecklistCompletion ties a checklist template item to a specific stage
// assignment. A required item without a completed record blocks forward
// progression.
type ChecklistCompletion struct {
	ID           string
	AssignmentID string
	ItemID       string
	Completed    bool
	CompletedBy  *string
	CompletedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// StageProgression is one immutable record of an accepted stage transition.
// FromStage is nil only for the record written at case creation.
type StageProgression struct {
	ID           string
	CaseID       string
	FromStage    *stage.ID
	ToStage      stage.ID
	Type         stage.ProgressionType
	Reason       string
	Observations *string
	ApprovedBy   string
	DurationDays *int // whole days spent in the prior stage
	RequestIP    *string
	RequestAgent *string
	CreatedAt    time.Time
}

// CaseHistory is a general audit log entry written in lockstep with every
// progression (and also by non-stage field edits elsewhere in the system).
type CaseHistory struct {
	ID            string
	CaseID        string
	Field         string
	PreviousValue *string
	NewValue      *string
	Reason        *string
	Notes         *string
	PerformedBy   string
	PerformedAt   time.Time
}

// User is one entry of the assignable-user directory.
type User struct {
	ID           string
	Role         auth.Role
	DepartmentID string
	IsActive     bool
	OpenCases    int // currently assigned open cases, for workload balancing
}
