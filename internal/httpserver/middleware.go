package httpserver

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"pawmarket/internal/domain"
)

const userIDKey = "user_id"

type authenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

// authMiddleware resolves the bearer token to a user id and stores it on the
// gin context.
func authMiddleware(auth authenticator, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeError(c, logger, domain.ErrNotSignedIn)
			return
		}
		userID, err := auth.Authenticate(c.Request.Context(), strings.TrimSpace(token))
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

func currentUser(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// userLimiter hands out one token bucket per user.
type userLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

func newUserLimiter(r rate.Limit, burst int) *userLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &userLimiter{limiters: map[string]*rate.Limiter{}, rate: r, burst: burst}
}

func (l *userLimiter) get(userID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.limiters[userID]; ok {
		return lim
	}
	lim := rate.NewLimiter(l.rate, l.burst)
	l.limiters[userID] = lim
	return lim
}

// rateLimit must run after authMiddleware.
func (l *userLimiter) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.get(currentUser(c)).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Error: errorBody{
				Code:    "rate_limited",
				Message: "Too many checkout attempts. Please wait a moment.",
			}})
			return
		}
		c.Next()
	}
}
