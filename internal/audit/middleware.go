package audit

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxBodyBytes caps how much of a request/response body is stored per entry
const maxBodyBytes = 32 * 1024

// skipPaths are operational endpoints not worth recording
var skipPaths = map[string]bool{
	"/health":  true,
	"/ready":   true,
	"/metrics": true,
}

// redactedHeaders are never stored verbatim
var redactedHeaders = map[string]bool{
	"authorization": true,
	"cookie":        true,
}

// bodyCapture tees the response body while it is written
type bodyCapture struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *bodyCapture) Write(b []byte) (int, error) {
	if w.buf.Len() < maxBodyBytes {
		w.buf.Write(b)
	}
	return w.ResponseWriter.Write(b)
}

func (w *bodyCapture) WriteString(s string) (int, error) {
	if w.buf.Len() < maxBodyBytes {
		w.buf.WriteString(s)
	}
	return w.ResponseWriter.WriteString(s)
}

// Middleware records every request/response exchange to the log store.
// Recording happens after the response is sent and never affects it: store
// failures are logged and dropped.
func Middleware(store Store, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if skipPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		var requestBody []byte
		if c.Request.Body != nil {
			requestBody, _ = io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes+1))
			c.Request.Body = io.NopCloser(io.MultiReader(bytes.NewReader(requestBody), c.Request.Body))
		}

		capture := &bodyCapture{ResponseWriter: c.Writer}
		c.Writer = capture

		start := time.Now()
		c.Next()

		entry := &RequestLog{
			ID:           uuid.NewString(),
			Method:       c.Request.Method,
			URL:          c.Request.URL.RequestURI(),
			Status:       c.Writer.Status(),
			DurationMS:   int(time.Since(start).Milliseconds()),
			Headers:      captureHeaders(c),
			RequestBody:  truncate(string(requestBody)),
			ResponseBody: truncate(capture.buf.String()),
			CreatedAt:    start.UTC(),
		}
		if clientID, exists := c.Get("client_id"); exists {
			entry.ClientID, _ = clientID.(string)
		}
		if entry.Status >= 400 {
			entry.ErrorDetail = truncate(capture.buf.String())
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := store.Insert(ctx, entry); err != nil {
				logger.Warn("Failed to record request log",
					zap.String("url", entry.URL),
					zap.Error(err))
			}
		}()
	}
}

func captureHeaders(c *gin.Context) map[string]string {
	headers := map[string]string{}
	for name, values := range c.Request.Header {
		if redactedHeaders[strings.ToLower(name)] {
			headers[name] = "[REDACTED]"
			continue
		}
		headers[name] = strings.Join(values, ", ")
	}
	return headers
}

func truncate(s string) string {
	if len(s) > maxBodyBytes {
		return s[:maxBodyBytes]
	}
	return s
}
