package service

import (
	"sync"
	"time"

	"studyquiz_backend/internal/config"
	"studyquiz_backend/internal/game"
	"studyquiz_backend/pkg/logger"

	"go.uber.org/zap"
)

// Settings 持有可热更新的 quiz 配置
type Settings struct {
	mu  sync.RWMutex
	cfg config.QuizConfig
}

func NewSettings(cfg config.QuizConfig) *Settings {
	return &Settings{cfg: cfg}
}

func (s *Settings) Get() config.QuizConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Update 可直接作为 configwatcher.QuizReloader 传入
func (s *Settings) Update(cfg config.QuizConfig) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	logger.Log.Info("Quiz settings reloaded",
		zap.Float64("quorum_ratio", cfg.QuorumRatio),
		zap.Float64("opponent_accuracy", cfg.OpponentAccuracy))
}

func (s *Settings) Opponent() game.OpponentProfile {
	cfg := s.Get()
	return game.OpponentProfile{
		Accuracy: cfg.OpponentAccuracy,
		MinDelay: msDuration(cfg.OpponentMinDelayMs),
		MaxDelay: msDuration(cfg.OpponentMaxDelayMs),
	}
}

func msDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
