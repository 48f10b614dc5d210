package domain

// NeedsReview is the "needs review" signal: a completion entered by someone
// other than the athlete that the athlete has not yet approved or amended.
// Such numbers must not be treated as self-reported downstream.
func NeedsReview(a *WorkoutAssignment) bool {
	return a.Status == StatusCompleted &&
		a.CompletedBy != nil &&
		*a.CompletedBy != a.AssignedTo &&
		a.ReviewStatus == ReviewPending
}

// IsTrusted reports whether the logged numbers may be used as the athlete's
// own, i.e. the record is completed and no review is outstanding.
func IsTrusted(a *WorkoutAssignment) bool {
	if a.Status != StatusCompleted {
		return false
	}
	switch a.ReviewStatus {
	case ReviewSelf, ReviewApproved, ReviewEdited:
		return true
	}
	return false
}
