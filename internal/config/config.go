package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Storage   StorageConfig
	Tracing   TracingConfig `mapstructure:"tracing"`
	Redis     RedisConfig
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Quiz      QuizConfig      `mapstructure:"quiz"`
	Log       LogConfig       `mapstructure:"log"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	MigrateOnly  bool `mapstructure:"-"`
	ForceMigrate bool `mapstructure:"-"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

type StorageConfig struct {
	Type          string `mapstructure:"type"`
	LocalPath     string `mapstructure:"local_path"`
	PublicURL     string `mapstructure:"public_url"`
	MinioEndpoint string `mapstructure:"minio_endpoint"`
	MinioAccessID string `mapstructure:"minio_access_key"`
	MinioSecret   string `mapstructure:"minio_secret_key"`
	MinioBucket   string `mapstructure:"minio_bucket"`
	MinioUseSSL   bool   `mapstructure:"minio_use_ssl"`
	OSSEndpoint   string `mapstructure:"oss_endpoint"`
	OSSAccessKey  string `mapstructure:"oss_access_key"`
	OSSSecretKey  string `mapstructure:"oss_secret_key"`
	OSSBucket     string `mapstructure:"oss_bucket"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type LogConfig struct {
	Level    string `mapstructure:"level"`
	File     string `mapstructure:"file"`
	MaxSize  int    `mapstructure:"max_size"`
	MaxAge   int    `mapstructure:"max_age"`
	Backups  int    `mapstructure:"max_backups"`
	Compress bool   `mapstructure:"compress"`
}

// QuizConfig 题库与练习引擎参数，支持热更新
type QuizConfig struct {
	QuorumRatio        float64       `mapstructure:"quorum_ratio"`
	TickSeconds        int           `mapstructure:"tick_seconds"`
	OpponentAccuracy   float64       `mapstructure:"opponent_accuracy"`
	OpponentMinDelayMs int           `mapstructure:"opponent_min_delay_ms"`
	OpponentMaxDelayMs int           `mapstructure:"opponent_max_delay_ms"`
	SnapshotTTLMinutes int           `mapstructure:"snapshot_ttl_minutes"`
	LeaderboardKey     string        `mapstructure:"leaderboard_key"`
	MaxQuestionCount   int           `mapstructure:"max_question_count"`
	MaxTimer           time.Duration `mapstructure:"max_timer_minutes"`
}

func (q QuizConfig) Tick() time.Duration {
	if q.TickSeconds <= 0 {
		return time.Second
	}
	return time.Duration(q.TickSeconds) * time.Second
}

func (q QuizConfig) SnapshotTTL() time.Duration {
	if q.SnapshotTTLMinutes <= 0 {
		return 2 * time.Hour
	}
	return time.Duration(q.SnapshotTTLMinutes) * time.Minute
}

func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.file", "logs/app.log")
	viper.SetDefault("log.max_size", 100)
	viper.SetDefault("log.max_age", 30)
	viper.SetDefault("log.max_backups", 7)
	viper.SetDefault("quiz.quorum_ratio", 0.20)
	viper.SetDefault("quiz.tick_seconds", 1)
	viper.SetDefault("quiz.opponent_accuracy", 0.6)
	viper.SetDefault("quiz.opponent_min_delay_ms", 3000)
	viper.SetDefault("quiz.opponent_max_delay_ms", 12000)
	viper.SetDefault("quiz.snapshot_ttl_minutes", 120)
	viper.SetDefault("quiz.leaderboard_key", "studyquiz:leaderboard")
	viper.SetDefault("quiz.max_question_count", 100)
	viper.SetDefault("quiz.max_timer_minutes", 180)
	viper.SetDefault("rate_limit.max_requests", 300)
	viper.SetDefault("rate_limit.window_minutes", 1)
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("STUDYQUIZ")
	viper.AutomaticEnv()
	setDefaults()

	// Database
	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	viper.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	viper.BindEnv("server.mode", "SERVER_MODE")

	// Storage
	viper.BindEnv("storage.type", "STORAGE_TYPE")
	viper.BindEnv("storage.oss_endpoint", "OSS_ENDPOINT")
	viper.BindEnv("storage.oss_access_key", "OSS_ACCESS_KEY")
	viper.BindEnv("storage.oss_secret_key", "OSS_SECRET_KEY")
	viper.BindEnv("storage.oss_bucket", "OSS_BUCKET")
	viper.BindEnv("storage.minio_endpoint", "MINIO_ENDPOINT")
	viper.BindEnv("storage.minio_access_key", "MINIO_ACCESS_KEY")
	viper.BindEnv("storage.minio_secret_key", "MINIO_SECRET_KEY")
	viper.BindEnv("storage.minio_bucket", "MINIO_BUCKET")

	// Tracing
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	// Quiz
	viper.BindEnv("quiz.quorum_ratio", "QUIZ_QUORUM_RATIO")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour
	cfg.Quiz.MaxTimer = cfg.Quiz.MaxTimer * time.Minute

	if err := cfg.Quiz.Validate(); err != nil {
		return nil, err
	}

	// 生产环境校验 JWT Secret 强度
	if cfg.Server.Mode == "release" && len(cfg.JWT.Secret) < 32 {
		return nil, fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(cfg.JWT.Secret))
	}

	if cfg.Storage.Type == "local" {
		if _, err := os.Stat(cfg.Storage.LocalPath); os.IsNotExist(err) {
			os.MkdirAll(cfg.Storage.LocalPath, 0755)
		}
	}

	return &cfg, nil
}

// ReloadQuiz 重新读取配置文件中的 quiz 段
func ReloadQuiz() (QuizConfig, error) {
	if err := viper.ReadInConfig(); err != nil {
		return QuizConfig{}, err
	}
	var q QuizConfig
	if err := viper.UnmarshalKey("quiz", &q); err != nil {
		return QuizConfig{}, err
	}
	q.MaxTimer = q.MaxTimer * time.Minute
	if err := q.Validate(); err != nil {
		return QuizConfig{}, err
	}
	return q, nil
}

func (q QuizConfig) Validate() error {
	if q.QuorumRatio < 0 || q.QuorumRatio >= 1 {
		return fmt.Errorf("quiz.quorum_ratio must be in [0,1), got %v", q.QuorumRatio)
	}
	if q.OpponentAccuracy < 0 || q.OpponentAccuracy > 1 {
		return fmt.Errorf("quiz.opponent_accuracy must be in [0,1], got %v", q.OpponentAccuracy)
	}
	if q.OpponentMaxDelayMs < q.OpponentMinDelayMs {
		return fmt.Errorf("quiz.opponent_max_delay_ms (%d) below min (%d)", q.OpponentMaxDelayMs, q.OpponentMinDelayMs)
	}
	return nil
}
