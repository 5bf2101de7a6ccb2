package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyquiz_backend/internal/quiz"
)

func TestProgressService_ApplyAwardsOnce(t *testing.T) {
	stats, badges, board, notifier := newMemStats(), newMemBadges(), newMemLeaderboard(), newRecordingNotifier()
	svc := NewProgressService(stats, badges, board, notifier, nil)
	ctx := context.Background()

	awards, err := svc.Apply(ctx, "u1", map[quiz.Metric]int{quiz.MetricTestsCompleted: 1})
	require.NoError(t, err)
	require.Len(t, awards, 1)
	assert.Equal(t, "test_taker", awards[0].DefinitionKey)
	assert.Equal(t, 1, awards[0].Level)

	awards, err = svc.Apply(ctx, "u1", map[quiz.Metric]int{quiz.MetricTestsCompleted: 1})
	require.NoError(t, err)
	assert.Empty(t, awards)

	metrics, _ := stats.Metrics(ctx, "u1")
	assert.Equal(t, 2, metrics[quiz.MetricTestsCompleted])
	assert.Len(t, notifier.types("u1"), 1)
	assert.Equal(t, 5, board.points["u1"])
}

func TestProgressService_ConcurrentApplyKeepsEveryDelta(t *testing.T) {
	stats := newMemStats()
	svc := NewProgressService(stats, newMemBadges(), nil, nil, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Apply(ctx, "u1", map[quiz.Metric]int{quiz.MetricQuestionsAnswered: 1})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	metrics, _ := stats.Metrics(ctx, "u1")
	assert.Equal(t, 20, metrics[quiz.MetricQuestionsAnswered])
}

func TestProgressService_RisingStarFollowsUpvotes(t *testing.T) {
	badges := newMemBadges()
	svc := NewProgressService(newMemStats(), badges, nil, nil, nil)
	ctx := context.Background()

	awards, err := svc.ApplyRisingStar(ctx, "author", 4)
	require.NoError(t, err)
	assert.Empty(t, awards)

	awards, err = svc.ApplyRisingStar(ctx, "author", 5)
	require.NoError(t, err)
	require.Len(t, awards, 1)
	assert.Equal(t, quiz.RisingStarKey, awards[0].DefinitionKey)

	awards, err = svc.ApplyRisingStar(ctx, "author", 6)
	require.NoError(t, err)
	assert.Empty(t, awards)
}
