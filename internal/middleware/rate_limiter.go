package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"farmacaixa/internal/apierror"
	"farmacaixa/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	rateLimitKeyPrefix  = "ratelimit:"
	rateLimitRedisLimit = 200 * time.Millisecond
)

// RateLimiter is a fixed-window limiter shared by all replicas through Redis:
// INCR on ratelimit:{ip}:{window} with an expiry of one window. When Redis
// is unreachable the request is let through.
func RateLimiter(rdb *redis.Client, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rdb == nil || limit <= 0 {
			c.Next()
			return
		}

		now := time.Now()
		slot := now.Truncate(window)
		key := rateLimitKeyPrefix + c.ClientIP() + ":" + strconv.FormatInt(slot.Unix(), 10)

		ctx, cancel := context.WithTimeout(c.Request.Context(), rateLimitRedisLimit)
		defer cancel()

		pipe := rdb.TxPipeline()
		incr := pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, window)
		if _, err := pipe.Exec(ctx); err != nil {
			log.Debug().Err(err).Msg("rate limiter unavailable, allowing request")
			c.Next()
			return
		}

		if incr.Val() > int64(limit) {
			retry := slot.Add(window).Sub(now)
			c.Header("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
			apierror.Abort(c, http.StatusTooManyRequests, apierror.New(model.CodeRateLimited, "too many requests, try again shortly"))
			return
		}
		c.Next()
	}
}
