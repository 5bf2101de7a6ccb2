package selection

import "studyquiz_backend/internal/quiz"

// IsApproved applies the quality gate with the default quorum.
func IsApproved(q quiz.Question, memberCount int) bool {
	return IsApprovedWithQuorum(q, memberCount, DefaultQuorum)
}

// IsApprovedWithQuorum requires votes/members to exceed quorum and upvotes to
// outnumber downvotes. Archived questions and empty groups never pass.
func IsApprovedWithQuorum(q quiz.Question, memberCount int, quorum float64) bool {
	if q.Archived || memberCount <= 0 {
		return false
	}
	totalVotes := q.Upvotes + q.Downvotes
	if float64(totalVotes)/float64(memberCount) <= quorum {
		return false
	}
	return q.Upvotes > q.Downvotes
}
