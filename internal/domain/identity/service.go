package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hrvault/hrvault/internal/platform/auth"
	"github.com/hrvault/hrvault/internal/platform/metrics"
)

// bcrypt ignores input past this length.
const maxPasswordBytes = 72

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+$`)

// TokenIssuer signs bearer tokens for logged-in accounts.
type TokenIssuer interface {
	Issue(subject, email, role string) (string, *auth.Claims, error)
}

// TokenRevoker invalidates a token ID until its expiry.
type TokenRevoker interface {
	Revoke(jti string, expiresAt time.Time)
}

type Service struct {
	persons   PersonRepository
	userTypes UserTypeRepository
	hasher    auth.PasswordHasher
	tokens    TokenIssuer
	revoker   TokenRevoker
}

func NewService(persons PersonRepository, userTypes UserTypeRepository, hasher auth.PasswordHasher, tokens TokenIssuer, revoker TokenRevoker) *Service {
	return &Service{
		persons:   persons,
		userTypes: userTypes,
		hasher:    hasher,
		tokens:    tokens,
		revoker:   revoker,
	}
}

// -- Registration --

func (s *Service) RegisterPatient(ctx context.Context, req RegisterPatientRequest) (*Person, error) {
	if err := requireNames(req.FirstName, req.LastName, req.Email, req.Password); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.DOB) == "" {
		return nil, invalid("Date of birth is required")
	}
	if !emailPattern.MatchString(req.Email) {
		return nil, invalid("Invalid email address")
	}
	if err := s.ensureEmailFree(ctx, req.Email); err != nil {
		return nil, err
	}
	dob, err := time.Parse(BirthDateLayout, strings.TrimSpace(req.DOB))
	if err != nil {
		return nil, invalid("Invalid date format. Use MM/DD/YYYY")
	}

	ut, err := s.userTypes.GetByName(ctx, UserTypePatient)
	if err != nil {
		return nil, fmt.Errorf("resolve patient user type: %w", err)
	}

	p := &Person{
		Email:      req.Email,
		NameGiven:  req.FirstName,
		NameFamily: req.LastName,
		BirthDate:  &dob,
		UserTypeID: ut.ID,
		Role:       auth.RolePatient,
	}
	if req.Gender != "" {
		g := req.Gender
		p.Gender = &g
	}
	if err := s.create(ctx, p, req.Password); err != nil {
		return nil, err
	}
	p.UserTypeName = ut.Name
	return p, nil
}

// RegisterClinician creates a clinician account. Type is the SNOMED code of
// one of the seeded user types.
func (s *Service) RegisterClinician(ctx context.Context, req RegisterClinicianRequest) (*Person, error) {
	ut, err := s.userTypes.GetBySnomedCode(ctx, strings.TrimSpace(req.Type))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidClinicianType
	}
	if err != nil {
		return nil, fmt.Errorf("resolve clinician type: %w", err)
	}

	if err := requireNames(req.FirstName, req.LastName, req.Email, req.Password); err != nil {
		return nil, err
	}
	if !emailPattern.MatchString(req.Email) {
		return nil, invalid("Invalid email address")
	}
	if err := s.ensureEmailFree(ctx, req.Email); err != nil {
		return nil, err
	}

	p := &Person{
		Email:      req.Email,
		NameGiven:  req.FirstName,
		NameFamily: req.LastName,
		UserTypeID: ut.ID,
		Role:       auth.RoleClinician,
	}
	if err := s.create(ctx, p, req.Password); err != nil {
		return nil, err
	}
	p.UserTypeName = ut.Name
	return p, nil
}

func requireNames(first, last, email, password string) error {
	switch {
	case strings.TrimSpace(first) == "":
		return invalid("First name is required")
	case strings.TrimSpace(last) == "":
		return invalid("Last name is required")
	case strings.TrimSpace(email) == "":
		return invalid("Email is required")
	case password == "":
		return invalid("Password is required")
	case len(password) > maxPasswordBytes:
		return invalid(fmt.Sprintf("Password must be at most %d bytes", maxPasswordBytes))
	}
	return nil
}

func (s *Service) ensureEmailFree(ctx context.Context, email string) error {
	_, err := s.persons.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return ErrEmailTaken
	case errors.Is(err, ErrNotFound):
		return nil
	default:
		return fmt.Errorf("lookup email: %w", err)
	}
}

func (s *Service) create(ctx context.Context, p *Person, password string) error {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}
	p.PasswordHash = hash
	p.TelecomSystem = "email"
	p.TelecomValue = p.Email
	p.Active = false
	// The unique index still catches a registration racing the lookup above.
	return s.persons.Create(ctx, p)
}

// -- Session --

// Login verifies credentials, marks the account logged in and issues a
// token. An account that is already logged in is rejected.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	if req.Email == "" {
		return nil, invalid("Email is required")
	}
	if req.Password == "" {
		return nil, invalid("Password is required")
	}

	p, err := s.persons.GetByEmail(ctx, req.Email)
	if errors.Is(err, ErrNotFound) {
		metrics.RecordLogin("unknown_email")
		return nil, ErrUnknownEmail
	}
	if err != nil {
		return nil, fmt.Errorf("lookup email: %w", err)
	}

	if err := s.hasher.Compare(p.PasswordHash, req.Password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			metrics.RecordLogin("invalid_password")
			return nil, ErrInvalidPassword
		}
		return nil, err
	}

	changed, err := s.persons.SetActive(ctx, p.ID, true)
	if err != nil {
		return nil, err
	}
	if !changed {
		metrics.RecordLogin("already_logged_in")
		return nil, ErrAlreadyLoggedIn
	}

	token, _, err := s.tokens.Issue(p.ID.String(), p.Email, p.Role)
	if err != nil {
		if _, rbErr := s.persons.SetActive(ctx, p.ID, false); rbErr != nil {
			err = errors.Join(err, rbErr)
		}
		metrics.RecordLogin(metrics.OutcomeFailed)
		return nil, err
	}

	metrics.RecordLogin(metrics.OutcomeSuccess)
	return &LoginResponse{
		AccessToken: token,
		FirstName:   p.NameGiven,
		LastName:    p.NameFamily,
		UserType:    p.Role,
	}, nil
}

// Logout marks the token's owner logged out and revokes the token until it
// would have expired anyway.
func (s *Service) Logout(ctx context.Context, claims *auth.Claims) error {
	if claims == nil {
		return auth.ErrMissingToken
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return auth.ErrInvalidToken
	}

	changed, err := s.persons.SetActive(ctx, id, false)
	if err != nil {
		return err
	}
	if !changed {
		return ErrAlreadyLoggedOut
	}

	expiresAt := time.Now().Add(time.Hour)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	s.revoker.Revoke(claims.ID, expiresAt)
	return nil
}

// -- Patients --

func (s *Service) ListPatients(ctx context.Context, f PatientFilter, limit, offset int) ([]*Person, int, error) {
	return s.persons.SearchPatients(ctx, PatientFilter{
		Name:   strings.TrimSpace(f.Name),
		Email:  strings.TrimSpace(f.Email),
		Gender: strings.TrimSpace(f.Gender),
	}, limit, offset)
}

// GetPatient returns a patient account that is currently logged in.
// Inactive accounts and non-patients are reported as ErrNotFound.
func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Person, error) {
	p, err := s.persons.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Active || p.Role != auth.RolePatient {
		return nil, ErrNotFound
	}
	return p, nil
}

// GetPerson looks up any account by id.
func (s *Service) GetPerson(ctx context.Context, id uuid.UUID) (*Person, error) {
	return s.persons.GetByID(ctx, id)
}
