package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/LeeDev428/marcher-hospital-management-system-sub001/internal/platform/auth"
)

// AuditEntry records one state-changing API call.
type AuditEntry struct {
	ID           uuid.UUID
	UserID       string
	Action       string // create, update, delete
	ResourceType string
	ResourceID   string
	StatusCode   int
	RequestID    string
	IPAddress    string
	Path         string
	Method       string
	Timestamp    time.Time
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	RecordAccess(ctx context.Context, entry AuditEntry) error
}

type AuditRecorderFunc func(ctx context.Context, entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(ctx context.Context, entry AuditEntry) error {
	return f(ctx, entry)
}

// Audit records every mutating request under /api/v1/ after the handler
// has run. Reads are not audited. A nil recorder leaves only the log line.
func Audit(logger zerolog.Logger, recorder AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path
			action := methodToAction(req.Method)
			if action == "" || !strings.HasPrefix(path, "/api/v1/") {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else {
					status = http.StatusInternalServerError
				}
			}

			entry := AuditEntry{
				ID:           uuid.New(),
				UserID:       auth.UserIDFromContext(req.Context()),
				Action:       action,
				ResourceType: resourceType(path),
				ResourceID:   resourceID(c),
				StatusCode:   status,
				IPAddress:    c.RealIP(),
				Path:         path,
				Method:       req.Method,
				Timestamp:    time.Now().UTC(),
			}
			entry.RequestID, _ = c.Get("request_id").(string)

			if recorder != nil {
				// The request context may already be past its deadline.
				ctx := context.WithoutCancel(req.Context())
				if recErr := recorder.RecordAccess(ctx, entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Str("action", entry.Action).
				Str("resource_type", entry.ResourceType).
				Str("resource_id", entry.ResourceID).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Int("status", entry.StatusCode).
				Msg("api_mutation")

			return err
		}
	}
}

func methodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return ""
	}
}

// resourceType returns the first path segment after /api/v1/, e.g.
// "appointments" for /api/v1/appointments/<id>/cancel.
func resourceType(path string) string {
	seg, _, _ := strings.Cut(strings.TrimPrefix(path, "/api/v1/"), "/")
	if seg == "" {
		return "unknown"
	}
	return seg
}

// resourceID prefers an id the handler stored under "resource_id", which
// is how creates report the row they made.
func resourceID(c echo.Context) string {
	if v, _ := c.Get("resource_id").(string); v != "" {
		return v
	}
	for _, name := range []string{"id", "staffId"} {
		if v := c.Param(name); v != "" {
			return v
		}
	}
	return ""
}
