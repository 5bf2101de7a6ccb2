package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"studyquiz_backend/internal/session"

	"github.com/go-redis/redis/v8"
)

// LeaderboardEntry 排行榜条目
type LeaderboardEntry struct {
	UserID string `json:"userId"`
	Points int    `json:"points"`
	Rank   int    `json:"rank"`
}

// LeaderboardRepository 基于 Redis 有序集合的积分排行
type LeaderboardRepository struct {
	Redis *redis.Client
	Key   string
}

func NewLeaderboardRepository(rdb *redis.Client, key string) *LeaderboardRepository {
	if key == "" {
		key = "studyquiz:leaderboard"
	}
	return &LeaderboardRepository{Redis: rdb, Key: key}
}

func (r *LeaderboardRepository) AddPoints(ctx context.Context, userID string, points int) error {
	if points == 0 {
		return nil
	}
	return r.Redis.ZIncrBy(ctx, r.Key, float64(points), userID).Err()
}

func (r *LeaderboardRepository) Top(ctx context.Context, n int) ([]LeaderboardEntry, error) {
	if n <= 0 {
		n = 10
	}
	zs, err := r.Redis.ZRevRangeWithScores(ctx, r.Key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]LeaderboardEntry, 0, len(zs))
	for i, z := range zs {
		id, _ := z.Member.(string)
		out = append(out, LeaderboardEntry{UserID: id, Points: int(z.Score), Rank: i + 1})
	}
	return out, nil
}

// RankOf 用户名次，未上榜时 ok 为 false
func (r *LeaderboardRepository) RankOf(ctx context.Context, userID string) (LeaderboardEntry, bool, error) {
	rank, err := r.Redis.ZRevRank(ctx, r.Key, userID).Result()
	if errors.Is(err, redis.Nil) {
		return LeaderboardEntry{}, false, nil
	}
	if err != nil {
		return LeaderboardEntry{}, false, err
	}
	score, err := r.Redis.ZScore(ctx, r.Key, userID).Result()
	if err != nil {
		return LeaderboardEntry{}, false, err
	}
	return LeaderboardEntry{UserID: userID, Points: int(score), Rank: int(rank) + 1}, true, nil
}

// SnapshotRepository 进行中会话的快照，进程重启后可恢复
type SnapshotRepository struct {
	Redis *redis.Client
	TTL   time.Duration
}

func NewSnapshotRepository(rdb *redis.Client, ttl time.Duration) *SnapshotRepository {
	return &SnapshotRepository{Redis: rdb, TTL: ttl}
}

func snapshotKey(sessionID string) string {
	return fmt.Sprintf("studyquiz:session:%s", sessionID)
}

func (r *SnapshotRepository) SaveSnapshot(ctx context.Context, s session.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.Redis.Set(ctx, snapshotKey(s.ID), data, r.TTL).Err()
}

func (r *SnapshotRepository) LoadSnapshot(ctx context.Context, sessionID string) (session.Session, bool, error) {
	data, err := r.Redis.Get(ctx, snapshotKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return session.Session{}, false, nil
	}
	if err != nil {
		return session.Session{}, false, err
	}
	var s session.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return session.Session{}, false, err
	}
	return s, true, nil
}

func (r *SnapshotRepository) DeleteSnapshot(ctx context.Context, sessionID string) error {
	return r.Redis.Del(ctx, snapshotKey(sessionID)).Err()
}
