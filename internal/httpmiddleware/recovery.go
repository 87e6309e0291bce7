package httpmiddleware

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"workclock/internal/audit"
)

// AuditRequestKey is the gin context key under which handlers store the
// decoded request body so a panic can still be audited with it.
const AuditRequestKey = "audit.request"

// Auditor records failures.
type Auditor interface {
	Record(ctx context.Context, c audit.Context)
}

// Recovery turns a panic into a 500 and audits it with the goroutine stack.
func Recovery(a Auditor, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if r == http.ErrAbortHandler {
				panic(r)
			}
			stack := string(debug.Stack())
			log.Error("panic recovered", zap.Any("panic", r), zap.String("path", c.Request.URL.Path))

			var req map[string]any
			if v, ok := c.Get(AuditRequestKey); ok {
				req, _ = v.(map[string]any)
			}
			status := http.StatusInternalServerError
			a.Record(c.Request.Context(), audit.Context{
				Endpoint:   c.Request.URL.Path,
				Method:     c.Request.Method,
				Request:    req,
				Err:        fmt.Errorf("panic: %v", r),
				StatusCode: &status,
				Trace:      stack,
			})
			c.AbortWithStatusJSON(status, gin.H{"message": "Internal server error", "code": "STORE_ERROR"})
		}()
		c.Next()
	}
}
