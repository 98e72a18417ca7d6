package httpx

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"smartid-backend/internal/platform/logging"
)

const (
	HeaderRequestID = "X-Request-ID"
	CtxRequestIDKey = "request_id"
)

// RequestID: クライアント指定の X-Request-ID を引き継ぎ、無ければ採番する
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(CtxRequestIDKey, id)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), id))
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// RequestIDFrom: ハンドラ内でログに載せる用
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(CtxRequestIDKey)
}
