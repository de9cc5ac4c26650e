package interceptors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	apiutil "github.com/tipline/go-tipline-server/api/util"
	"github.com/tipline/go-tipline-server/global"
)

const (
	LimitRequestsPerSecond = 5
)

// RateLimitMiddleware limits the authenticated surfaces per client
// fingerprint. It must never be mounted on the anonymous intake route; use
// IntakeRateLimitMiddleware there.
func RateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip, _ := apiutil.GetIPFromContext(c)
		if ip == nil {
			unkn := "unknown"
			ip = &unkn
		}
		userAgent := c.GetHeader("User-Agent")
		acceptLanguage := c.GetHeader("Accept-Language")
		all := fmt.Sprintf("%s%s%s", *ip, userAgent, acceptLanguage)

		hash := xxhash.Sum64String(all)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()

		result, err := global.RateLimiter.Allow(ctx, strconv.FormatUint(hash, 10), redis_rate.PerSecond(LimitRequestsPerSecond))
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, errors.New("failed to perform rate limit check"))
			return
		}
		if result.Allowed <= 0 {
			c.AbortWithError(http.StatusTooManyRequests, errors.New("too many requests"))
			return
		}

		c.Writer.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit.Rate))
		c.Writer.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Writer.Header().Set("X-RateLimit-Reset", strconv.Itoa(int(result.ResetAfter.Milliseconds())))
		c.Next()
	}
}

// IntakeRateLimitMiddleware limits the anonymous intake surface with a single
// shared bucket. No header, address or cookie is inspected, so nothing about
// a submitter can end up in the limiter state.
func IntakeRateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := global.Conf.Intake.RequestsPerSecond
		if limit <= 0 {
			limit = 10
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()

		result, err := global.RateLimiter.Allow(ctx, "intake:global", redis_rate.PerSecond(limit))
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, errors.New("failed to perform rate limit check"))
			return
		}
		if result.Allowed <= 0 {
			c.AbortWithError(http.StatusTooManyRequests, errors.New("too many requests"))
			return
		}
		c.Next()
	}
}
