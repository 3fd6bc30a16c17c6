package api

import (
	"io"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"lms-agent/service"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderSessionID = "X-Session-ID"
)

// ChatHandler serves POST /chat. The body is read raw, one byte past the limit,
// so oversize payloads reach the validator and get its itemised error.
func ChatHandler(chatSvc *service.ChatService, maxBodyBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		// A failed read leaves raw short or empty; the validator reports it.
		raw, _ := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes+1))

		out := chatSvc.HandleMessage(c.Request.Context(), service.Inbound{
			Body:          raw,
			ClientIP:      c.ClientIP(),
			Authorization: c.GetHeader("Authorization"),
			SessionHeader: c.GetHeader(HeaderSessionID),
			RequestID:     RequestID(c),
		})

		if adm := out.Admission; adm != nil {
			c.Header("X-RateLimit-Limit", strconv.Itoa(adm.Capacity))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(adm.Remaining))
			if !adm.Allowed {
				c.Header("X-RateLimit-Reset", strconv.FormatInt(adm.ResetAt.Unix(), 10))
				c.Header("Retry-After", strconv.FormatInt(retryAfterSeconds(adm.RetryAfterMs), 10))
			}
		}
		if out.SessionID != "" {
			c.Header(HeaderSessionID, out.SessionID)
		}
		c.JSON(out.Status, out.Result)
	}
}

func retryAfterSeconds(ms int64) int64 {
	secs := (time.Duration(ms)*time.Millisecond + time.Second - 1) / time.Second
	return max(int64(secs), 1)
}
