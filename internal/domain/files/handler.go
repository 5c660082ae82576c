package files

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hrvault/hrvault/internal/platform/auth"
	"github.com/hrvault/hrvault/internal/platform/blobstore"
	"github.com/hrvault/hrvault/internal/platform/middleware"
)

const invalidFileTypeMessage = "Invalid file type. Only .json files allowed."

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/upload", h.Upload)
	api.GET("/list-files", h.ListFiles)
	api.GET("/heart-rate-data", h.HeartRateData)

	clinicianOnly := auth.RequireClinician()
	api.GET("/list-patient-files/:patient_id", h.ListPatientFiles, clinicianOnly)
	api.POST("/heart-rate-data-clinician", h.HeartRateDataForClinician, clinicianOnly)
}

type messageResponse struct {
	Message string `json:"message"`
}

type fileListResponse struct {
	Files []FileSummary `json:"files"`
}

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type clinicianDataResponse struct {
	PatientName string          `json:"patient_name"`
	Data        json.RawMessage `json:"data"`
}

func callerID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	return id, nil
}

func (h *Handler) Upload(c echo.Context) error {
	owner, err := callerID(c)
	if err != nil {
		return err
	}

	fh, err := c.FormFile("file")
	if err != nil || !HasAllowedExtension(fh.Filename) {
		return echo.NewHTTPError(http.StatusBadRequest, invalidFileTypeMessage)
	}
	src, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "could not read uploaded file").SetInternal(err)
	}
	defer src.Close()

	f, err := h.svc.Upload(c.Request().Context(), owner, fh.Filename, src)
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidFileType):
		return echo.NewHTTPError(http.StatusBadRequest, invalidFileTypeMessage)
	case errors.Is(err, ErrPatientNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Patient not found")
	case errors.Is(err, blobstore.ErrFileTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "file exceeds maximum allowed size")
	case errors.Is(err, ErrProcessing):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "error processing file").SetInternal(err)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "Error saving file metadata").SetInternal(err)
	}

	c.Set(middleware.AuditFileIDKey, f.ID.String())
	return c.JSON(http.StatusOK, UploadResult{
		Message:   "File uploaded successfully",
		FileID:    f.ID,
		Filename:  f.Filename,
		CreatedAt: f.CreatedAt.Format(CreatedAtLayout),
	})
}

func (h *Handler) ListFiles(c echo.Context) error {
	owner, err := callerID(c)
	if err != nil {
		return err
	}
	return h.listFor(c, owner)
}

func (h *Handler) ListPatientFiles(c echo.Context) error {
	raw := strings.TrimSpace(c.Param("patient_id"))
	if raw == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Patient ID is required")
	}
	patientID, err := uuid.Parse(raw)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid ID format")
	}
	return h.listFor(c, patientID)
}

func (h *Handler) listFor(c echo.Context, patientID uuid.UUID) error {
	list, err := h.svc.ListFiles(c.Request().Context(), patientID)
	switch {
	case err == nil:
	case errors.Is(err, ErrPatientNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Patient not found")
	case errors.Is(err, ErrNoFiles):
		return c.JSON(http.StatusNotFound, messageResponse{Message: "No files found"})
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "list files failed").SetInternal(err)
	}

	out := make([]FileSummary, 0, len(list))
	for _, f := range list {
		out = append(out, f.Summary())
	}
	return c.JSON(http.StatusOK, fileListResponse{Files: out})
}

func (h *Handler) HeartRateData(c echo.Context) error {
	owner, err := callerID(c)
	if err != nil {
		return err
	}

	raw := strings.TrimSpace(c.QueryParam("file_id"))
	if raw == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "File ID is required")
	}
	fileID, err := uuid.Parse(raw)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid file ID format")
	}

	data, err := h.svc.HeartRateData(c.Request().Context(), owner, fileID)
	if errors.Is(err, ErrFileNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "File not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "read heart rate data failed").SetInternal(err)
	}
	return c.JSON(http.StatusOK, dataResponse{Data: data})
}

func (h *Handler) HeartRateDataForClinician(c echo.Context) error {
	var req ClinicianDataRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid ID format")
	}
	req.FileID = strings.TrimSpace(req.FileID)
	req.PatientID = strings.TrimSpace(req.PatientID)
	if req.FileID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "File ID is required")
	}
	if req.PatientID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Patient ID is required")
	}
	fileID, err := uuid.Parse(req.FileID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid ID format")
	}
	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid ID format")
	}
	c.Set(middleware.AuditPatientIDKey, patientID.String())
	c.Set(middleware.AuditFileIDKey, fileID.String())

	name, data, err := h.svc.PatientHeartRateData(c.Request().Context(), patientID, fileID)
	switch {
	case err == nil:
	case errors.Is(err, ErrPatientNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Patient not found")
	case errors.Is(err, ErrFileNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "File not found for this patient")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "read heart rate data failed").SetInternal(err)
	}
	return c.JSON(http.StatusOK, clinicianDataResponse{PatientName: name, Data: data})
}
