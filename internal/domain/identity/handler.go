package identity

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hrvault/hrvault/internal/platform/auth"
	"github.com/hrvault/hrvault/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the account and patient routes. authMW wraps the
// unauthenticated /auth endpoints, typically with a rate limiter.
func (h *Handler) RegisterRoutes(api *echo.Group, authMW ...echo.MiddlewareFunc) {
	authGroup := api.Group("/auth")
	authGroup.POST("/register/patient", h.RegisterPatient, authMW...)
	authGroup.POST("/register/clinician", h.RegisterClinician, authMW...)
	authGroup.POST("/login", h.Login, authMW...)
	authGroup.POST("/logout", h.Logout)

	clinicianOnly := auth.RequireClinician()
	api.GET("/patients", h.ListPatients, clinicianOnly)
	api.GET("/patients/:id", h.GetPatient, clinicianOnly)
}

type messageResponse struct {
	Message string `json:"message"`
}

func (h *Handler) RegisterPatient(c echo.Context) error {
	var req RegisterPatientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if _, err := h.svc.RegisterPatient(c.Request().Context(), req); err != nil {
		return registrationError(err)
	}
	return c.JSON(http.StatusCreated, messageResponse{Message: "Person registered successfully"})
}

func (h *Handler) RegisterClinician(c echo.Context) error {
	var req RegisterClinicianRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if _, err := h.svc.RegisterClinician(c.Request().Context(), req); err != nil {
		return registrationError(err)
	}
	return c.JSON(http.StatusCreated, messageResponse{Message: "Clinician registered successfully"})
}

func registrationError(err error) error {
	var v *ValidationError
	switch {
	case errors.As(err, &v):
		return echo.NewHTTPError(http.StatusBadRequest, v.Message)
	case errors.Is(err, ErrEmailTaken):
		return echo.NewHTTPError(http.StatusBadRequest, "Email already registered")
	case errors.Is(err, ErrInvalidClinicianType):
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid clinician type")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "registration failed").SetInternal(err)
	}
}

func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	resp, err := h.svc.Login(c.Request().Context(), req)
	if err != nil {
		var v *ValidationError
		switch {
		case errors.As(err, &v):
			return echo.NewHTTPError(http.StatusBadRequest, v.Message)
		case errors.Is(err, ErrUnknownEmail):
			return echo.NewHTTPError(http.StatusUnauthorized, "Unknown email address")
		case errors.Is(err, ErrInvalidPassword):
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid password")
		case errors.Is(err, ErrAlreadyLoggedIn):
			return echo.NewHTTPError(http.StatusUnauthorized, "User already logged in")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "login failed").SetInternal(err)
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) Logout(c echo.Context) error {
	claims := auth.ClaimsFromContext(c.Request().Context())
	err := h.svc.Logout(c.Request().Context(), claims)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, messageResponse{Message: "Successfully logged out"})
	case errors.Is(err, ErrAlreadyLoggedOut):
		return echo.NewHTTPError(http.StatusUnauthorized, "User already logged out")
	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrInvalidToken), errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "logout failed").SetInternal(err)
	}
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	filter := PatientFilter{
		Name:   c.QueryParam("name"),
		Email:  c.QueryParam("email"),
		Gender: c.QueryParam("gender"),
	}

	people, total, err := h.svc.ListPatients(c.Request().Context(), filter, pg.Limit, pg.Offset())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "list patients failed").SetInternal(err)
	}

	data := make([]PatientSummary, 0, len(people))
	for _, p := range people {
		data = append(data, p.Summary())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(data, total, pg))
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid ID format")
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Patient not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "get patient failed").SetInternal(err)
	}
	return c.JSON(http.StatusOK, p.Detail())
}
