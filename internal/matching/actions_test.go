package matching

import (
	"testing"

	"gstrecon/internal/models"

	"github.com/stretchr/testify/assert"
)

func resultWith(matchType models.MatchType, status models.MatchStatus) models.MatchResult {
	return models.MatchResult{
		ID:        "27AABCU9603R1ZN-INV-1",
		MatchType: matchType,
		Status:    status,
		Score:     0.9,
	}
}

func TestDeriveAction_StatusMapping(t *testing.T) {
	policy := models.DefaultMatchingPolicy()

	tests := []struct {
		name     string
		result   models.MatchResult
		expected models.ActionType
	}{
		{"exact matched auto-accepts", resultWith(models.MatchTypeExact, models.StatusMatched), models.ActionAcceptMatch},
		{"partial matched reconciles", resultWith(models.MatchTypePartial, models.StatusMatched), models.ActionMarkReconciled},
		{"mismatched flags", resultWith(models.MatchTypeNoMatch, models.StatusMismatched), models.ActionFlagMismatch},
		{"pending review goes manual", resultWith(models.MatchTypeFuzzy, models.StatusPendingReview), models.ActionManualReview},
		{"missing in books follows up", resultWith(models.MatchTypeNoMatch, models.StatusMissingInBooks), models.ActionVendorFollowUp},
		{"missing in authority data follows up", resultWith(models.MatchTypeNoMatch, models.StatusMissingInGSTR2A), models.ActionVendorFollowUp},
		{"unknown status defaults to manual review", resultWith(models.MatchTypePartial, models.MatchStatus("SOMETHING_NEW")), models.ActionManualReview},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action := DeriveAction(tt.result, policy, "system")
			assert.Equal(t, tt.expected, action.ActionType)
			assert.Equal(t, tt.result.ID, action.MatchID)
			assert.Equal(t, "system", action.Actor)
			assert.NotEmpty(t, action.Reason)
			assert.False(t, action.Timestamp.IsZero())
		})
	}
}

func TestDeriveAction_ExactWithoutAutoAccept(t *testing.T) {
	policy := models.DefaultMatchingPolicy()
	policy.AutoAcceptExactMatches = false

	action := DeriveAction(resultWith(models.MatchTypeExact, models.StatusMatched), policy, "system")
	assert.Equal(t, models.ActionMarkReconciled, action.ActionType)
}

func TestDeriveAction_ExactAutoAcceptReason(t *testing.T) {
	action := DeriveAction(resultWith(models.MatchTypeExact, models.StatusMatched), models.DefaultMatchingPolicy(), "system")
	assert.Equal(t, "exact match auto-accepted", action.Reason)
}

func TestDeriveActions_FillsCountersAndRunID(t *testing.T) {
	result := &models.ReconciliationProcessResult{
		ActionCounts: make(map[models.ActionType]int),
		Matches: []models.MatchResult{
			resultWith(models.MatchTypeExact, models.StatusMatched),
			resultWith(models.MatchTypeNoMatch, models.StatusMissingInBooks),
			resultWith(models.MatchTypeNoMatch, models.StatusMissingInBooks),
		},
	}

	DeriveActions(result, models.DefaultMatchingPolicy(), "scheduler")

	assert.Len(t, result.Actions, 3)
	assert.Equal(t, 1, result.ActionCounts[models.ActionAcceptMatch])
	assert.Equal(t, 2, result.ActionCounts[models.ActionVendorFollowUp])
	for _, action := range result.Actions {
		assert.Equal(t, result.RunID, action.RunID)
	}
}
