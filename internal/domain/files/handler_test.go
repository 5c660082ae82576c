package files

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrvault/hrvault/internal/platform/auth"
	"github.com/hrvault/hrvault/internal/platform/middleware"
)

func asUser(req *http.Request, id uuid.UUID, role string) *http.Request {
	claims := &auth.Claims{Role: role}
	claims.Subject = id.String()
	return req.WithContext(auth.WithClaims(req.Context(), claims))
}

func multipartUpload(t *testing.T, field, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func requireHTTPError(t *testing.T, err error, code int, msg string) {
	t.Helper()
	var he *echo.HTTPError
	require.True(t, errors.As(err, &he), "expected *echo.HTTPError, got %v", err)
	assert.Equal(t, code, he.Code)
	if msg != "" {
		assert.Equal(t, msg, he.Message)
	}
}

func TestHandler_Upload(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)
	e := echo.New()

	rec := httptest.NewRecorder()
	req := asUser(multipartUpload(t, "file", "day.json", sampleExport), f.patient.ID, auth.RolePatient)
	c := e.NewContext(req, rec)

	require.NoError(t, h.Upload(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp UploadResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "File uploaded successfully", resp.Message)
	assert.Equal(t, "day.json", resp.Filename)
	assert.Equal(t, "2024-01-02 03:04:05", resp.CreatedAt)
	assert.Equal(t, resp.FileID.String(), c.Get(middleware.AuditFileIDKey))
}

func TestHandler_Upload_Rejections(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)
	e := echo.New()

	tests := []struct {
		name    string
		req     *http.Request
		code    int
		message string
	}{
		{"wrong extension", multipartUpload(t, "file", "day.csv", sampleExport), http.StatusBadRequest, invalidFileTypeMessage},
		{"missing field", multipartUpload(t, "other", "day.json", sampleExport), http.StatusBadRequest, invalidFileTypeMessage},
		{"malformed export", multipartUpload(t, "file", "day.json", `{"not":"a list"}`), http.StatusUnprocessableEntity, "error processing file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := e.NewContext(asUser(tt.req, f.patient.ID, auth.RolePatient), httptest.NewRecorder())
			requireHTTPError(t, h.Upload(c), tt.code, tt.message)
		})
	}
	assert.Zero(t, f.blobs.Count())
}

func TestHandler_Upload_Unauthenticated(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)
	c := echo.New().NewContext(multipartUpload(t, "file", "day.json", sampleExport), httptest.NewRecorder())
	requireHTTPError(t, h.Upload(c), http.StatusUnauthorized, "")
}

func TestHandler_ListFiles(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)
	e := echo.New()

	newCtx := func() (echo.Context, *httptest.ResponseRecorder) {
		rec := httptest.NewRecorder()
		req := asUser(httptest.NewRequest(http.MethodGet, "/list-files", nil), f.patient.ID, auth.RolePatient)
		return e.NewContext(req, rec), rec
	}

	c, rec := newCtx()
	require.NoError(t, h.ListFiles(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"message":"No files found"}`, rec.Body.String())

	uploadN(t, f, 2)
	c, rec = newCtx()
	require.NoError(t, h.ListFiles(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp fileListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Files, 2)
	assert.Equal(t, "Jane Doe", resp.Files[0].UploadedBy)
	assert.Equal(t, "json", resp.Files[0].FileType)
	assert.Equal(t, "2024-01-01 00:00:00", resp.Files[0].CreatedAt)
}

func TestHandler_ListPatientFiles(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)
	e := echo.New()
	uploadN(t, f, 1)

	call := func(id string) (*httptest.ResponseRecorder, error) {
		rec := httptest.NewRecorder()
		req := asUser(httptest.NewRequest(http.MethodGet, "/", nil), f.clinician.ID, auth.RoleClinician)
		c := e.NewContext(req, rec)
		c.SetParamNames("patient_id")
		c.SetParamValues(id)
		return rec, h.ListPatientFiles(c)
	}

	rec, err := call(f.patient.ID.String())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"uploaded_by":"Jane Doe"`)

	_, err = call("17")
	requireHTTPError(t, err, http.StatusBadRequest, "Invalid ID format")

	_, err = call(uuid.NewString())
	requireHTTPError(t, err, http.StatusNotFound, "Patient not found")

	rec, err = call(f.clinician.ID.String())
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_HeartRateData(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)
	e := echo.New()
	meta := uploadN(t, f, 1)[0]

	call := func(query string) (*httptest.ResponseRecorder, error) {
		rec := httptest.NewRecorder()
		req := asUser(httptest.NewRequest(http.MethodGet, "/heart-rate-data"+query, nil), f.patient.ID, auth.RolePatient)
		return rec, h.HeartRateData(e.NewContext(req, rec))
	}

	rec, err := call("?file_id=" + meta.ID.String())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":`+meta.HRData+`}`, rec.Body.String())

	_, err = call("")
	requireHTTPError(t, err, http.StatusBadRequest, "File ID is required")

	_, err = call("?file_id=abc")
	requireHTTPError(t, err, http.StatusBadRequest, "Invalid file ID format")

	_, err = call("?file_id=" + uuid.NewString())
	requireHTTPError(t, err, http.StatusNotFound, "File not found")
}

func TestHandler_HeartRateDataForClinician(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)
	e := echo.New()
	meta := uploadN(t, f, 1)[0]

	call := func(body string) (echo.Context, *httptest.ResponseRecorder, error) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/heart-rate-data-clinician", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		c := e.NewContext(asUser(req, f.clinician.ID, auth.RoleClinician), rec)
		return c, rec, h.HeartRateDataForClinician(c)
	}

	body := `{"file_id":"` + meta.ID.String() + `","patient_id":"` + f.patient.ID.String() + `"}`
	c, rec, err := call(body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"patient_name":"Jane Doe","data":`+meta.HRData+`}`, rec.Body.String())
	assert.Equal(t, f.patient.ID.String(), c.Get(middleware.AuditPatientIDKey))

	tests := []struct {
		name string
		body string
		code int
		msg  string
	}{
		{"no file id", `{"patient_id":"x"}`, http.StatusBadRequest, "File ID is required"},
		{"no patient id", `{"file_id":"x"}`, http.StatusBadRequest, "Patient ID is required"},
		{"bad ids", `{"file_id":"1","patient_id":"2"}`, http.StatusBadRequest, "Invalid ID format"},
		{"unknown patient", `{"file_id":"` + meta.ID.String() + `","patient_id":"` + uuid.NewString() + `"}`, http.StatusNotFound, "Patient not found"},
		{"other patient's file", `{"file_id":"` + meta.ID.String() + `","patient_id":"` + f.clinician.ID.String() + `"}`, http.StatusNotFound, "File not found for this patient"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := call(tt.body)
			requireHTTPError(t, err, tt.code, tt.msg)
		})
	}
}

func TestHandler_ClinicianRoutesRejectPatients(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)
	e := echo.New()
	h.RegisterRoutes(e.Group(""))

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/list-patient-files/" + f.patient.ID.String()},
		{http.MethodPost, "/heart-rate-data-clinician"},
	} {
		req := asUser(httptest.NewRequest(tc.method, tc.path, nil), f.patient.ID, auth.RolePatient)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code, tc.path)
		assert.Contains(t, rec.Body.String(), auth.ClinicianOnlyMessage)
	}
}
