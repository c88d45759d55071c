package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-exp-cases/internal/auth"
	"github.com/pesio-ai/be-exp-cases/internal/errors"
	"github.com/pesio-ai/be-exp-cases/internal/repository"
	"github.com/pesio-ai/be-exp-cases/internal/stage"
)

func TestCreateCase(t *testing.T) {
	_, svc, store, notifier := testFixture(t)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	withFixedNow(t, now)

	store.users = []*repository.User{
		{ID: "avaluador-1", Role: auth.RoleAnalyst, DepartmentID: "AVALUOS", IsActive: true, OpenCases: 3},
		{ID: "avaluador-2", Role: auth.RoleAnalyst, DepartmentID: "AVALUOS", IsActive: true, OpenCases: 1},
	}

	actor := auth.Actor{UserID: "da-1", Role: auth.RoleDepartmentAdmin, DepartmentID: "JURIDICA", IP: "10.0.0.2"}
	result, err := svc.CreateCase(context.Background(), actor, CreateCaseRequest{
		FileNumber:      "EXP-2026-0001",
		DepartmentID:    "JURIDICA",
		PropertyAddress: strPtr("Calle 10 # 4-21"),
	})
	require.NoError(t, err)

	c := result.Case
	assert.Equal(t, "EXP-2026-0001", c.FileNumber)
	assert.Equal(t, stage.Avaluo, c.CurrentStage)
	assert.Equal(t, repository.StatusPending, c.Status)
	assert.Equal(t, 0, c.ProgressPercentage)
	require.NotNil(t, c.CreatedBy)
	assert.Equal(t, "da-1", *c.CreatedBy)

	// The first stage's assignment rule picked the least loaded appraiser.
	require.NotNil(t, c.AssignedUserID)
	assert.Equal(t, "avaluador-2", *c.AssignedUserID)
	assert.Empty(t, result.Warnings)

	active := store.activeAssignments(c.ID)
	require.Len(t, active, 1)
	assert.Equal(t, stage.Avaluo, active[0].Stage)
	require.NotNil(t, active[0].DueAt)
	assert.Equal(t, now.AddDate(0, 0, 30), *active[0].DueAt)

	// The opening progression has no origin stage.
	progressions, err := store.ListProgressions(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, progressions, 1)
	assert.Nil(t, progressions[0].FromStage)
	assert.Equal(t, stage.Avaluo, progressions[0].ToStage)
	assert.Equal(t, stage.Forward, progressions[0].Type)
	assert.Equal(t, "case opened", progressions[0].Reason)

	history, err := store.ListHistory(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "current_stage", history[0].Field)
	assert.Nil(t, history[0].PreviousValue)

	event := notifier.last(t)
	assert.Equal(t, EventCaseCreated, event.eventType)
	assert.Equal(t, c.ID, event.event.CaseID)
}

func TestCreateCaseValidation(t *testing.T) {
	_, svc, _, _ := testFixture(t)

	_, err := svc.CreateCase(context.Background(), adminActor, CreateCaseRequest{DepartmentID: "JURIDICA"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.Code(err))

	_, err = svc.CreateCase(context.Background(), adminActor, CreateCaseRequest{FileNumber: "EXP-2026-0002"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.Code(err))
}

func TestCreateCaseDuplicateFileNumber(t *testing.T) {
	_, svc, _, _ := testFixture(t)

	req := CreateCaseRequest{FileNumber: "EXP-2026-0003", DepartmentID: "JURIDICA"}
	_, err := svc.CreateCase(context.Background(), adminActor, req)
	require.NoError(t, err)

	_, err = svc.CreateCase(context.Background(), adminActor, req)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConflict, errors.Code(err))
}

func TestGetCase(t *testing.T) {
	_, svc, store, _ := testFixture(t)

	caseID, asgID := store.seed(caseSeed{stage: stage.Avaluo, status: repository.StatusPending})

	c, a, err := svc.GetCase(context.Background(), caseID)
	require.NoError(t, err)
	assert.Equal(t, caseID, c.ID)
	assert.Equal(t, asgID, a.ID)

	c, a, err = svc.GetCaseByFileNumber(context.Background(), c.FileNumber)
	require.NoError(t, err)
	assert.Equal(t, caseID, c.ID)
	assert.Equal(t, asgID, a.ID)

	_, _, err = svc.GetCase(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeNotFound, errors.Code(err))
}

func TestChecklistStatus(t *testing.T) {
	_, svc, store, _ := testFixture(t)

	caseID, asgID := store.seed(caseSeed{stage: stage.Avaluo, status: repository.StatusInProgress})
	store.markDone(asgID, "avaluo-informe")

	statuses, err := svc.ChecklistStatus(context.Background(), caseID)
	require.NoError(t, err)
	require.Len(t, statuses, 3)

	byID := make(map[string]ChecklistItemStatus, len(statuses))
	for _, s := range statuses {
		byID[s.Item.ID] = s
	}
	assert.True(t, byID["avaluo-informe"].Completed)
	assert.False(t, byID["avaluo-certificado"].Completed)
	assert.False(t, byID["avaluo-fotos"].Completed)
	assert.True(t, byID["avaluo-certificado"].Item.Required)
	assert.False(t, byID["avaluo-fotos"].Item.Required)
}

func TestMarkChecklistItem(t *testing.T) {
	_, svc, store, _ := testFixture(t)
	withFixedNow(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))

	analyst := auth.Actor{UserID: "analyst-1", Role: auth.RoleAnalyst}
	caseID, asgID := store.seed(caseSeed{
		stage:    stage.Avaluo,
		status:   repository.StatusInProgress,
		assignee: strPtr("analyst-1"),
	})

	completion, err := svc.MarkChecklistItem(context.Background(), analyst, caseID, "avaluo-informe", true)
	require.NoError(t, err)
	assert.Equal(t, asgID, completion.AssignmentID)
	assert.True(t, completion.Completed)
	require.NotNil(t, completion.CompletedBy)
	assert.Equal(t, "analyst-1", *completion.CompletedBy)

	done, err := store.CompletedItemIDs(context.Background(), asgID)
	require.NoError(t, err)
	assert.True(t, done["avaluo-informe"])

	// Unmarking removes the item from the completed set.
	completion, err = svc.MarkChecklistItem(context.Background(), analyst, caseID, "avaluo-informe", false)
	require.NoError(t, err)
	assert.False(t, completion.Completed)
	assert.Nil(t, completion.CompletedBy)
	done, err = store.CompletedItemIDs(context.Background(), asgID)
	require.NoError(t, err)
	assert.False(t, done["avaluo-informe"])
}

func TestMarkChecklistItemRejections(t *testing.T) {
	_, svc, store, _ := testFixture(t)

	caseID, _ := store.seed(caseSeed{
		stage:    stage.Avaluo,
		status:   repository.StatusInProgress,
		assignee: strPtr("analyst-1"),
	})

	// An item from a different stage's template is unknown here.
	_, err := svc.MarkChecklistItem(context.Background(),
		auth.Actor{UserID: "analyst-1", Role: auth.RoleAnalyst}, caseID, "legal-estudio", true)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeNotFound, errors.Code(err))

	_, err = svc.MarkChecklistItem(context.Background(),
		auth.Actor{UserID: "analyst-2", Role: auth.RoleAnalyst}, caseID, "avaluo-informe", true)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodePermissionDenied, errors.Code(err))
}

func TestDeleteCase(t *testing.T) {
	_, svc, store, _ := testFixture(t)

	caseID, _ := store.seed(caseSeed{
		stage:    stage.Avaluo,
		status:   repository.StatusPending,
		assignee: strPtr("analyst-1"),
	})

	// Working the case does not grant deletion rights.
	err := svc.DeleteCase(context.Background(),
		auth.Actor{UserID: "analyst-1", Role: auth.RoleAnalyst}, caseID)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodePermissionDenied, errors.Code(err))

	err = svc.DeleteCase(context.Background(),
		auth.Actor{UserID: "da-1", Role: auth.RoleDepartmentAdmin, DepartmentID: "FINANCIERA"}, caseID)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodePermissionDenied, errors.Code(err))

	err = svc.DeleteCase(context.Background(),
		auth.Actor{UserID: "da-2", Role: auth.RoleDepartmentAdmin, DepartmentID: "JURIDICA"}, caseID)
	require.NoError(t, err)

	err = svc.DeleteCase(context.Background(), adminActor, caseID)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeNotFound, errors.Code(err))
}

func TestListCases(t *testing.T) {
	_, svc, store, _ := testFixture(t)

	store.seed(caseSeed{stage: stage.Avaluo, status: repository.StatusPending})
	store.seed(caseSeed{stage: stage.Negociacion, status: repository.StatusInProgress})
	store.seed(caseSeed{stage: stage.Cancelled, status: repository.StatusCancelled})

	all, err := svc.ListCases(context.Background(), nil, nil, 50, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	cancelled := "CANCELLED"
	filtered, err := svc.ListCases(context.Background(), nil, &cancelled, 50, 0)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, stage.Cancelled, filtered[0].CurrentStage)
}

func TestListProgressionsUnknownCase(t *testing.T) {
	_, svc, _, _ := testFixture(t)

	_, err := svc.ListProgressions(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeNotFound, errors.Code(err))

	_, err = svc.ListHistory(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeNotFound, errors.Code(err))
}
