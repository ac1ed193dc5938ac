package httpserver

import (
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taskmesh/syncserver/internal/auth"
	"github.com/taskmesh/syncserver/internal/model"
)

const identityKey = "sync.identity"

// IdentityFromContext fetches the authenticated caller set by RequireAuth.
func IdentityFromContext(c *gin.Context) (model.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return model.Identity{}, false
	}
	id, ok := v.(model.Identity)
	return id, ok && id.ID != ""
}

// RequireAuth verifies the bearer token and stores the caller identity on
// the request context. Requests without a valid identity never reach a
// handler.
func RequireAuth(signKey []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortError(c, http.StatusUnauthorized, "missing or invalid authorization")
			return
		}
		id, err := auth.Verify(strings.TrimSpace(parts[1]), signKey)
		if err != nil {
			abortError(c, http.StatusUnauthorized, "missing or invalid authorization")
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// Logging emits one structured entry per request; metadata only, no payloads.
func Logging(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("dur", time.Since(start)),
			zap.String("client", c.ClientIP()),
		)
	}
}

// Recover converts handler panics into a generic 500.
func Recover(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("path", c.Request.URL.Path),
				)
				abortError(c, http.StatusInternalServerError, "internal server error")
			}
		}()
		c.Next()
	}
}

func abortError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"message": message, "success": false})
}
