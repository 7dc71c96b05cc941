package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medisched/medisched/internal/platform/auth"
)

// AuditEntry describes one access to patient-identifying data.
type AuditEntry struct {
	UserID       string
	Role         string
	ResourceType string
	ResourceID   string
	PatientID    string
	Action       string
	IPAddress    string
	UserAgent    string
	Path         string
	Method       string
	Timestamp    time.Time
	RequestID    string
	StatusCode   int
}

// AuditRecorder persists audit entries somewhere other than the log stream.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// auditedResources are the /api/v1 collections whose responses carry PHI.
var auditedResources = map[string]bool{
	"patients":              true,
	"medical-records":       true,
	"appointments":          true,
	"appointment-reminders": true,
}

// Audit emits a "phi_access" event for every request touching patient data
// and hands the entry to recorder when one is given.
func Audit(logger zerolog.Logger, recorder AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			resource, id := splitResourcePath(req.URL.Path)
			if !auditedResources[resource] {
				return next(c)
			}

			err := next(c)

			entry := AuditEntry{
				Timestamp:    time.Now().UTC(),
				Path:         req.URL.Path,
				Method:       req.Method,
				IPAddress:    c.RealIP(),
				UserAgent:    req.UserAgent(),
				StatusCode:   ResponseStatus(c, err),
				Action:       actionFor(req.Method),
				ResourceType: resource,
				ResourceID:   id,
				PatientID:    c.QueryParam("patient"),
			}
			if resource == "patients" {
				entry.PatientID = id
			}
			if actor := auth.ActorFromContext(c.Request().Context()); actor != nil {
				entry.UserID = actor.UserID
				entry.Role = string(actor.Role)
			} else {
				entry.UserID = auth.UserIDFromContext(c.Request().Context())
			}
			entry.RequestID, _ = c.Get("request_id").(string)

			if recorder != nil {
				if recErr := recorder.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).Str("request_id", entry.RequestID).Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "phi_access").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Str("role", entry.Role).
				Str("resource_type", entry.ResourceType).
				Str("resource_id", entry.ResourceID).
				Str("patient_id", entry.PatientID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("phi_access")

			return err
		}
	}
}

func actionFor(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// splitResourcePath returns the collection under /api/v1 and, when the next
// segment is a UUID, the resource id.
func splitResourcePath(path string) (resource, id string) {
	rest, ok := strings.CutPrefix(path, "/api/v1/")
	if !ok {
		return "", ""
	}
	segments := strings.Split(rest, "/")
	resource = segments[0]
	if len(segments) > 1 {
		if _, err := uuid.Parse(segments[1]); err == nil {
			id = segments[1]
		}
	}
	return resource, id
}
