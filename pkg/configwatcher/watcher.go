package configwatcher

import (
	"context"
	"path/filepath"
	"time"

	"studyquiz_backend/internal/config"
	"studyquiz_backend/pkg/logger"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// QuizReloader 接收热更新后的 quiz 配置
type QuizReloader func(cfg config.QuizConfig)

// WatchQuizConfig 监听配置文件，写入后防抖 1 秒重新加载 quiz 段。ctx 取消时退出。
func WatchQuizConfig(ctx context.Context, configFile string, reload QuizReloader) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	absPath, err := filepath.Abs(configFile)
	if err != nil {
		return err
	}
	// 监听目录，编辑器保存时常以 rename 方式替换文件
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return err
	}

	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != absPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				// 防抖处理
				timer.Stop()
				timer.Reset(1 * time.Second)
			}
		case <-timer.C:
			quizCfg, err := config.ReloadQuiz()
			if err != nil {
				logger.Log.Error("Failed to reload quiz config", zap.Error(err))
				continue
			}
			logger.Log.Info("Quiz config reloaded",
				zap.Float64("quorum_ratio", quizCfg.QuorumRatio),
				zap.Float64("opponent_accuracy", quizCfg.OpponentAccuracy))
			reload(quizCfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Log.Error("Config watcher error", zap.Error(err))
		}
	}
}
