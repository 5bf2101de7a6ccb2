package selection

import (
	"context"
	"fmt"

	"studyquiz_backend/internal/grading"
	"studyquiz_backend/internal/quiz"
)

// PoolBuilder gathers candidate questions across group scopes.
type PoolBuilder struct {
	groups   GroupRegistry
	messages MessageRegistry
	stats    StatSource
	quorum   float64
}

// NewPoolBuilder creates a builder; quorum <= 0 falls back to DefaultQuorum.
func NewPoolBuilder(groups GroupRegistry, messages MessageRegistry, stats StatSource, quorum float64) *PoolBuilder {
	if quorum <= 0 {
		quorum = DefaultQuorum
	}
	return &PoolBuilder{groups: groups, messages: messages, stats: stats, quorum: quorum}
}

// Build returns the quality-gated pool for the given scopes. Group ids are
// deduplicated, and the quorum is computed against each question's owning group.
func (b *PoolBuilder) Build(ctx context.Context, groupIDs []string, allowedTypes []quiz.QuestionType, tagFilter []string) ([]quiz.Question, error) {
	questions, err := b.gather(ctx, groupIDs)
	if err != nil {
		return nil, err
	}

	allowed := typeSet(allowedTypes)
	memberCounts := map[string]int{}
	pool := make([]quiz.Question, 0, len(questions))
	for _, q := range questions {
		if q.Archived {
			continue
		}
		if _, ok := allowed[q.Type]; !ok {
			continue
		}
		count, ok := memberCounts[q.GroupID]
		if !ok {
			count, err = b.groups.MemberCount(ctx, q.GroupID)
			if err != nil {
				return nil, fmt.Errorf("member count for group %s: %w", q.GroupID, err)
			}
			memberCounts[q.GroupID] = count
		}
		if !IsApprovedWithQuorum(q, count, b.quorum) {
			continue
		}
		if !grading.IsGradable(q) {
			continue
		}
		if len(tagFilter) > 0 && !q.HasAnyTag(tagFilter) {
			continue
		}
		pool = append(pool, q)
	}
	return pool, nil
}

// BuildSpacedRepetition selects, across every group the user has ever seen,
// the questions the user has missed more often than answered correctly. The
// vote gate and the requested scope do not apply; an empty allowedTypes keeps
// every gradable type.
func (b *PoolBuilder) BuildSpacedRepetition(ctx context.Context, userID string, allowedTypes []quiz.QuestionType, tagFilter []string) ([]quiz.Question, error) {
	groupIDs, err := b.groups.GroupsSeenBy(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("groups seen by %s: %w", userID, err)
	}
	stats, err := b.stats.StatsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("stats for %s: %w", userID, err)
	}
	questions, err := b.gather(ctx, groupIDs)
	if err != nil {
		return nil, err
	}

	allowed := typeSet(allowedTypes)
	pool := make([]quiz.Question, 0)
	for _, q := range questions {
		st, ok := stats[q.ID]
		if !ok || !st.NeedsReview() {
			continue
		}
		if q.Archived || !grading.IsGradable(q) {
			continue
		}
		if len(allowed) > 0 {
			if _, ok := allowed[q.Type]; !ok {
				continue
			}
		}
		if len(tagFilter) > 0 && !q.HasAnyTag(tagFilter) {
			continue
		}
		pool = append(pool, q)
	}
	return pool, nil
}

// BuildCustom resolves an explicit question id list inside the given scopes.
// Unknown, archived or ungradable ids are dropped; the sampler reports any
// shortfall.
func (b *PoolBuilder) BuildCustom(ctx context.Context, groupIDs []string, questionIDs []string) ([]quiz.Question, error) {
	questions, err := b.gather(ctx, groupIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]quiz.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	pool := make([]quiz.Question, 0, len(questionIDs))
	seen := map[string]bool{}
	for _, id := range questionIDs {
		q, ok := byID[id]
		if !ok || seen[id] || q.Archived || !grading.IsGradable(q) {
			continue
		}
		seen[id] = true
		pool = append(pool, q)
	}
	return pool, nil
}

// gather unions the question messages of the given groups, deduplicating both
// group ids and question ids.
func (b *PoolBuilder) gather(ctx context.Context, groupIDs []string) ([]quiz.Question, error) {
	seenGroups := map[string]bool{}
	seenQuestions := map[string]bool{}
	out := make([]quiz.Question, 0)
	for _, gid := range groupIDs {
		if seenGroups[gid] {
			continue
		}
		seenGroups[gid] = true
		msgs, err := b.messages.MessagesByGroup(ctx, gid)
		if err != nil {
			return nil, fmt.Errorf("messages for group %s: %w", gid, err)
		}
		for _, m := range msgs {
			if m.Kind != KindQuestion || m.Question == nil {
				continue
			}
			if seenQuestions[m.Question.ID] {
				continue
			}
			seenQuestions[m.Question.ID] = true
			q := *m.Question
			if q.GroupID == "" {
				q.GroupID = m.GroupID
			}
			out = append(out, q)
		}
	}
	return out, nil
}

func typeSet(types []quiz.QuestionType) map[quiz.QuestionType]struct{} {
	m := make(map[quiz.QuestionType]struct{}, len(types))
	for _, t := range types {
		m[t] = struct{}{}
	}
	return m
}
