package matching

import (
	"fmt"
	"time"

	"gstrecon/internal/models"

	"github.com/google/uuid"
)

// DeriveAction maps a completed match's status and type onto the recommended
// workflow action, with an audit-trail entry. Unrecognized statuses fall back
// to manual review rather than guessing.
func DeriveAction(result models.MatchResult, policy models.MatchingPolicy, actor string) models.ReconciliationAction {
	action := models.ReconciliationAction{
		ID:        uuid.New(),
		MatchID:   result.ID,
		Actor:     actor,
		Timestamp: time.Now(),
	}

	switch result.Status {
	case models.StatusMatched:
		if result.MatchType == models.MatchTypeExact && policy.AutoAcceptExactMatches {
			action.ActionType = models.ActionAcceptMatch
			action.Reason = "exact match auto-accepted"
		} else {
			action.ActionType = models.ActionMarkReconciled
			action.Reason = fmt.Sprintf("%s match within tolerances (score %.2f)", result.MatchType, result.Score)
		}

	case models.StatusMismatched:
		action.ActionType = models.ActionFlagMismatch
		action.Reason = fmt.Sprintf("%d field mismatch(es) with high severity", len(result.Mismatches))

	case models.StatusPendingReview:
		action.ActionType = models.ActionManualReview
		if result.MatchType == models.MatchTypeFuzzy && policy.RequireManualReviewForFuzzy {
			action.Reason = fmt.Sprintf("fuzzy match (score %.2f) requires manual review", result.Score)
		} else {
			action.Reason = fmt.Sprintf("match pending review (score %.2f)", result.Score)
		}

	case models.StatusMissingInBooks:
		action.ActionType = models.ActionVendorFollowUp
		action.Reason = "supplier-reported invoice not found in books"

	case models.StatusMissingInGSTR2A:
		action.ActionType = models.ActionVendorFollowUp
		action.Reason = "booked invoice not reported by supplier"

	default:
		action.ActionType = models.ActionManualReview
		action.Reason = fmt.Sprintf("unrecognized match status %q", result.Status)
	}

	return action
}

// DeriveActions derives one action per match result and tags each with the
// run id. It also fills the result's action counters.
func DeriveActions(result *models.ReconciliationProcessResult, policy models.MatchingPolicy, actor string) {
	for _, match := range result.Matches {
		action := DeriveAction(match, policy, actor)
		action.RunID = result.RunID
		result.Actions = append(result.Actions, action)
		result.ActionCounts[action.ActionType]++
	}
}
