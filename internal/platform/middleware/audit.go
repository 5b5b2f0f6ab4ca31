package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/therapy/therapy/internal/platform/auth"
)

// AuditEntry records who touched which practice record, and how.
type AuditEntry struct {
	UserID     string
	UserRoles  []string
	Resource   string
	ResourceID int64
	PatientID  int64
	Action     string // read, create, update, delete
	IPAddress  string
	UserAgent  string
	Path       string
	Method     string
	Timestamp  time.Time
	RequestID  string
	StatusCode int
}

type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// auditedResources are the /api/v1 collections holding patient data.
var auditedResources = map[string]bool{
	"patients":      true,
	"appointments":  true,
	"session-notes": true,
	"payments":      true,
}

// Audit logs every access to patient-bearing resources under /api/v1 after
// the handler runs, and hands the entry to an optional recorder.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			resource, segments := splitAPIPath(req.URL.Path)
			if !auditedResources[resource] {
				return next(c)
			}

			err := next(c)

			ctx := req.Context()
			entry := AuditEntry{
				UserID:     auth.UserIDFromContext(ctx),
				UserRoles:  auth.RolesFromContext(ctx),
				Resource:   resource,
				Action:     httpMethodToAction(req.Method),
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				Path:       req.URL.Path,
				Method:     req.Method,
				Timestamp:  time.Now().UTC(),
				RequestID:  requestID(c),
				StatusCode: c.Response().Status,
			}
			if err != nil {
				entry.StatusCode = statusOf(err, entry.StatusCode)
			}
			entry.ResourceID, entry.PatientID = extractIDs(c, resource, segments)

			if len(recorders) > 0 && recorders[0] != nil {
				if recErr := recorders[0].RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Str("resource", entry.Resource).
				Int64("resource_id", entry.ResourceID).
				Int64("patient_id", entry.PatientID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("record_access")

			return err
		}
	}
}

// splitAPIPath returns the collection name and the remaining segments of an
// /api/v1 path, or "" when the path is outside the API.
func splitAPIPath(path string) (string, []string) {
	if !strings.HasPrefix(path, "/api/v1/") {
		return "", nil
	}
	segments := strings.Split(strings.Trim(strings.TrimPrefix(path, "/api/v1/"), "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return "", nil
	}
	return segments[0], segments[1:]
}

func httpMethodToAction(method string) string {
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

// extractIDs pulls the record id from /<resource>/<id> and the patient id
// from /patients/<id>, /payments/patient/<id> or a patient_id query param.
func extractIDs(c echo.Context, resource string, rest []string) (resourceID, patientID int64) {
	if len(rest) > 0 {
		resourceID = parseID(rest[0])
	}
	switch {
	case resource == "patients":
		patientID = resourceID
	case resource == "payments" && len(rest) > 1 && rest[0] == "patient":
		patientID = parseID(rest[1])
	}
	if patientID == 0 {
		patientID = parseID(c.QueryParam("patient_id"))
	}
	return resourceID, patientID
}

func parseID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}
