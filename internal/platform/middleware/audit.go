package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hrvault/hrvault/internal/platform/auth"
)

// Context keys handlers set when the accessed patient or file is only known
// after the body is decoded.
const (
	AuditPatientIDKey = "audit_patient_id"
	AuditFileIDKey    = "audit_file_id"
)

// AuditEntry records one access to patient health data.
type AuditEntry struct {
	UserID     string
	Role       string
	Resource   string
	PatientID  string
	FileID     string
	Action     string
	IPAddress  string
	UserAgent  string
	Path       string
	Method     string
	Timestamp  time.Time
	RequestID  string
	StatusCode int
}

// AuditRecorder persists audit entries somewhere other than the log.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc adapts a function to AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// auditedRoutes maps route templates that touch patient data to a resource
// name.
var auditedRoutes = map[string]string{
	"/patients":                       "patient",
	"/patients/:id":                   "patient",
	"/upload":                         "heart_rate_file",
	"/list-files":                     "heart_rate_file",
	"/list-patient-files/:patient_id": "heart_rate_file",
	"/heart-rate-data":                "heart_rate_data",
	"/heart-rate-data-clinician":      "heart_rate_data",
}

// Audit logs every request to a patient-data route after the handler ran,
// and forwards the entry to recorder when one is given.
func Audit(logger zerolog.Logger, recorder AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			resource, ok := auditedRoutes[c.Path()]
			if !ok {
				return next(c)
			}

			err := next(c)

			req := c.Request()
			ctx := req.Context()
			entry := AuditEntry{
				UserID:     auth.UserIDFromContext(ctx),
				Role:       auth.RoleFromContext(ctx),
				Resource:   resource,
				PatientID:  auditPatientID(c),
				FileID:     auditFileID(c),
				Action:     auditAction(req.Method, c.Path()),
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				Path:       req.URL.Path,
				Method:     req.Method,
				Timestamp:  time.Now().UTC(),
				StatusCode: statusOf(c, err),
			}
			entry.RequestID, _ = c.Get("request_id").(string)

			if recorder != nil {
				if recErr := recorder.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Str("role", entry.Role).
				Str("resource", entry.Resource).
				Str("patient_id", entry.PatientID).
				Str("file_id", entry.FileID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("health_data_access")

			return err
		}
	}
}

// auditAction maps a request to an audit action. The clinician heart-rate
// query is a read even though it is a POST.
func auditAction(method, route string) string {
	if route == "/heart-rate-data-clinician" {
		return "read"
	}
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	}
	return "read"
}

// auditPatientID prefers a handler-supplied patient, then route or query
// parameters. A patient reading their own data is their own subject.
func auditPatientID(c echo.Context) string {
	if id, ok := c.Get(AuditPatientIDKey).(string); ok && id != "" {
		return id
	}
	if id := c.Param("patient_id"); id != "" {
		return id
	}
	if c.Path() == "/patients/:id" {
		return c.Param("id")
	}
	if auth.RoleFromContext(c.Request().Context()) == auth.RolePatient {
		return auth.UserIDFromContext(c.Request().Context())
	}
	return ""
}

func auditFileID(c echo.Context) string {
	if id, ok := c.Get(AuditFileIDKey).(string); ok && id != "" {
		return id
	}
	return c.QueryParam("file_id")
}
