package models_test

import (
	"testing"

	"github.com/kiranshivaraju/contractsentinel/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestJobStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to models.JobStatus
		want     bool
	}{
		{models.JobStatusQueued, models.JobStatusProcessing, true},
		{models.JobStatusQueued, models.JobStatusFailed, true},
		{models.JobStatusProcessing, models.JobStatusNeedsReview, true},
		{models.JobStatusProcessing, models.JobStatusFailed, true},
		{models.JobStatusProcessing, models.JobStatusProcessing, false},
		{models.JobStatusQueued, models.JobStatusNeedsReview, false},
		{models.JobStatusFailed, models.JobStatusProcessing, false},
		{models.JobStatusNeedsReview, models.JobStatusFailed, false},
		{models.JobStatusProcessing, models.JobStatusCompleted, false},
		{models.JobStatusCompleted, models.JobStatusProcessing, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestTransitionSources(t *testing.T) {
	assert.ElementsMatch(t,
		[]models.JobStatus{models.JobStatusQueued, models.JobStatusProcessing},
		models.TransitionSources(models.JobStatusFailed))
	assert.ElementsMatch(t,
		[]models.JobStatus{models.JobStatusQueued},
		models.TransitionSources(models.JobStatusProcessing))
	assert.Empty(t, models.TransitionSources(models.JobStatusCompleted))
}

func TestStatusChangedAction(t *testing.T) {
	assert.Equal(t, "STATUS_CHANGED_TO_NEEDS_REVIEW", models.StatusChangedAction(models.JobStatusNeedsReview))
}

func TestNewAuditEntry(t *testing.T) {
	e := models.NewAuditEntry(models.ActionJobCreated, map[string]any{"file_path": "ref://doc"})
	assert.Equal(t, "system", e.Actor)
	assert.Equal(t, "JOB_CREATED", e.Action)
	assert.False(t, e.Timestamp.IsZero())
}

func TestAnyFlagged(t *testing.T) {
	assert.False(t, models.AnyFlagged(nil))
	assert.False(t, models.AnyFlagged([]models.ClauseFinding{{Status: models.ClauseStatusPass}}))
	assert.True(t, models.AnyFlagged([]models.ClauseFinding{
		{Status: models.ClauseStatusPass},
		{Status: models.ClauseStatusFlagged},
	}))
}
