package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nitesh/meal_service/internal/apperr"
	"github.com/nitesh/meal_service/internal/logging"
	"github.com/nitesh/meal_service/internal/metrics"
	"github.com/nitesh/meal_service/internal/service"
	"github.com/nitesh/meal_service/pkg/models"
)

const (
	// HeaderUserID carries the caller identity set by the auth gateway.
	HeaderUserID    = "X-User-ID"
	HeaderRequestID = "X-Request-ID"

	actorKey = "actor"
)

// RequestID tags the request context with the incoming X-Request-ID or a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = logging.NewRequestID()
		}
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), id))
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// RequestLogger logs one line per request through zerolog.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		log := logging.Ctx(c.Request.Context())
		ev := log.Info()
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}

// Metrics records request counts and latency by route template.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

// Timeout bounds the request context; storage calls inherit the deadline.
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// Identity resolves X-User-ID to a stored user and aborts with 401 when the
// header is missing or names nobody.
func Identity(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderUserID)
		if id == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody(string(apperr.CodeUnauthorized), "missing "+HeaderUserID+" header"))
			return
		}
		u, err := svc.User(c.Request.Context(), id)
		switch {
		case apperr.IsNotFound(err), apperr.IsCode(err, apperr.CodeInvalidArgument):
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody(string(apperr.CodeUnauthorized), "unknown user"))
			return
		case err != nil:
			writeError(c, err)
			c.Abort()
			return
		}
		c.Set(actorKey, u)
		c.Next()
	}
}

// actor returns the user set by Identity.
func actor(c *gin.Context) *models.User {
	u, _ := c.MustGet(actorKey).(*models.User)
	return u
}

func errorBody(code, message string) gin.H {
	return gin.H{"error": gin.H{"code": code, "message": message}}
}

func statusFor(code apperr.Code) int {
	switch code {
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeInvalidArgument:
		return http.StatusBadRequest
	case apperr.CodeForbidden:
		return http.StatusForbidden
	case apperr.CodeUnauthorized:
		return http.StatusUnauthorized
	case apperr.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status and a client-safe body. Server side
// failures are logged with their cause.
func writeError(c *gin.Context, err error) {
	code := apperr.CodeOf(err)
	status := statusFor(code)
	if status >= 500 {
		_ = c.Error(err)
		logging.Ctx(c.Request.Context()).Error().Err(err).Str("code", string(code)).Msg("request failed")
	}
	c.JSON(status, errorBody(string(code), apperr.MessageOf(err)))
}
