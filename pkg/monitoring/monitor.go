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
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	XPAwarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mathpulse_xp_awarded_total",
			Help: "XP awarded, by activity type",
		},
		[]string{"activity_type"},
	)

	LevelUps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mathpulse_level_ups_total",
			Help: "Number of levels gained across all users",
		},
	)

	AchievementsUnlocked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mathpulse_achievements_unlocked_total",
			Help: "Achievements unlocked, by achievement id",
		},
		[]string{"achievement_id"},
	)

	QuizAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mathpulse_quiz_attempts_total",
			Help: "Quiz attempts recorded",
		},
	)

	RankIndexFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mathpulse_rank_index_fallbacks_total",
			Help: "Rank lookups served from the database because the redis index was unavailable",
		},
	)

	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mathpulse_rate_limited_requests_total",
			Help: "Requests rejected with 429 by the per-client rate limiter",
		},
	)
)

var initOnce sync.Once

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			XPAwarded,
			LevelUps,
			AchievementsUnlocked,
			QuizAttempts,
			RankIndexFallbacks,
			RateLimited,
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
