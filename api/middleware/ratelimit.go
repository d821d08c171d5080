package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/adsaver/config"
	"github.com/use-agent/adsaver/models"
	"golang.org/x/time/rate"
)

const (
	limiterIdle  = time.Hour
	sweepEvery   = 5 * time.Minute
	rateLimitMsg = "rate limit exceeded, please slow down"
)

// buckets holds one token bucket per caller. Idle buckets are swept lazily
// on the request path, so no goroutine outlives the router.
type buckets struct {
	rps   rate.Limit
	burst int
	now   func() time.Time

	mu        sync.Mutex
	byCaller  map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func newBuckets(cfg config.RateLimitConfig) *buckets {
	return &buckets{
		rps:      rate.Limit(cfg.RequestsPerSecond),
		burst:    cfg.Burst,
		now:      time.Now,
		byCaller: make(map[string]*bucket),
	}
}

func (b *buckets) allow(caller string) bool {
	now := b.now()

	b.mu.Lock()
	if now.Sub(b.lastSweep) >= sweepEvery {
		for k, bk := range b.byCaller {
			if now.Sub(bk.seen) > limiterIdle {
				delete(b.byCaller, k)
			}
		}
		b.lastSweep = now
	}
	bk, ok := b.byCaller[caller]
	if !ok {
		bk = &bucket{lim: rate.NewLimiter(b.rps, b.burst)}
		b.byCaller[caller] = bk
	}
	bk.seen = now
	b.mu.Unlock()

	return bk.lim.AllowN(now, 1)
}

// RateLimit throttles each caller with a token bucket. The caller is the
// API key accepted by Auth, or the client IP when auth is off. It protects
// the browser engine from bursts; daily quotas are a separate concern.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	b := newBuckets(cfg)
	return func(c *gin.Context) {
		caller := c.GetString(APIKeyKey)
		if caller == "" {
			caller = c.ClientIP()
		}
		if !b.allow(caller) {
			c.Header("Retry-After", "1")
			Abort(c, http.StatusTooManyRequests, models.ErrCodeRateLimited, rateLimitMsg)
			return
		}
		c.Next()
	}
}
