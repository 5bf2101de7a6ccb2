package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// 练习会话
	SessionsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_sessions_started_total",
			Help: "Practice sessions started, by mode and sampling policy",
		},
		[]string{"mode", "policy"},
	)

	SessionsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_sessions_finished_total",
			Help: "Practice sessions finished, by mode and how they ended",
		},
		[]string{"mode", "outcome"},
	)

	SessionScore = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quiz_session_score_percent",
			Help:    "Score distribution of submitted sessions",
			Buckets: []float64{0, 20, 40, 60, 80, 100},
		},
		[]string{"mode"},
	)

	InsufficientPool = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quiz_insufficient_pool_total",
			Help: "Session requests rejected because the candidate pool was too small",
		},
	)

	LiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quiz_live_sessions",
			Help: "Sessions currently held in memory",
		},
	)

	// 对战
	GamesFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_games_finished_total",
			Help: "Head-to-head games finished, by result for the user",
		},
		[]string{"result"},
	)

	// 成就
	BadgesAwarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_badges_awarded_total",
			Help: "Badge levels awarded",
		},
		[]string{"badge"},
	)

	// WebSocket
	WSMessageCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ws_messages_total",
			Help: "WebSocket messages by type and direction",
		},
		[]string{"type", "direction"},
	)

	WSOnlineUsers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_online_users",
			Help: "Users with an open WebSocket on this instance",
		},
	)
)

var initOnce sync.Once

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			SessionsStarted,
			SessionsFinished,
			SessionScore,
			InsufficientPool,
			LiveSessions,
			GamesFinished,
			BadgesAwarded,
			WSMessageCounter,
			WSOnlineUsers,
		)
	})
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
