package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/scambio/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/scambio/internal/observability/metrics"
	"go.uber.org/zap"
)

const (
	rateLimitReasonSourceRate = "source-rate"
	rateLimitReasonFileClaim  = "file-claim"
)

type notificationRateLimitKey struct {
	FileName string `json:"file_name"`
}

// NotificationRateLimit throttles webhook deliveries per transmitter
// and takes a short-lived claim on the notified file so concurrent
// redeliveries of the same file are processed once.
func (s *Server) NotificationRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.notifLimiter == nil || !s.notifLimiter.Enabled() {
			c.Next()
			return
		}

		fileName, err := readNotificationFileName(c)
		if err != nil {
			logger.FromContext(c.Request.Context()).Warn("notification rate limit read body failed", zap.Error(err))
			AbortWithError(c, invalidRequestError())
			return
		}
		if fileName == "" {
			// The handler rejects nameless bodies with a field error.
			c.Next()
			return
		}

		endpoint := normalizeRateLimitEndpoint(c)
		source := notificationSource(fileName)
		ctx := c.Request.Context()

		result, err := s.notifLimiter.AllowSource(ctx, source)
		if err != nil {
			logger.FromContext(ctx).Warn("notification source rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !result.Allowed {
			if result.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter/time.Second)+1))
			} else {
				c.Header("Retry-After", "1")
			}
			denyNotification(c, endpoint, source, rateLimitReasonSourceRate, s.obsMetrics)
			return
		}

		token, ok, err := s.notifLimiter.TryClaimFile(ctx, fileName)
		if err != nil {
			logger.FromContext(ctx).Warn("notification file claim failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !ok {
			c.Header("Retry-After", "1")
			denyNotification(c, endpoint, source, rateLimitReasonFileClaim, s.obsMetrics)
			return
		}
		defer func() {
			if err := s.notifLimiter.ReleaseFile(ctx, fileName, token); err != nil {
				logger.FromContext(ctx).Warn("notification file claim release failed", zap.Error(err))
			}
		}()

		recordNotificationAllowed(ctx, endpoint, source, s.obsMetrics)
		c.Next()
	}
}

func denyNotification(c *gin.Context, endpoint, source, reason string, metrics *obsmetrics.Metrics) {
	ctx := c.Request.Context()
	logger.FromContext(ctx).Warn("notification rate limit exceeded",
		zap.String("reason", reason),
		zap.String("source", source),
		zap.String("endpoint", endpoint),
	)
	if metrics != nil {
		metrics.RecordRateLimitDenied(ctx, source, endpoint, reason)
	}

	c.Header("X-Rate-Limited-Reason", reason)
	AbortWithError(c, ErrRateLimited)
}

func recordNotificationAllowed(ctx context.Context, endpoint, source string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitAllowed(ctx, source, endpoint)
}

// readNotificationFileName extracts the notified file name without
// consuming the body the handler still has to read.
func readNotificationFileName(c *gin.Context) (string, error) {
	if isXMLContentType(c.ContentType()) {
		return strings.TrimSpace(c.GetHeader(HeaderSDIFileName)), nil
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return "", err
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
	if len(body) == 0 {
		return "", nil
	}

	var payload notificationRateLimitKey
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", nil
	}
	return strings.TrimSpace(payload.FileName), nil
}

// notificationSource keys the limiter by the transmitter identifier,
// the country and VAT prefix every SdI file name starts with.
func notificationSource(fileName string) string {
	if idx := strings.Index(fileName, "_"); idx > 0 {
		return fileName[:idx]
	}
	return fileName
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
