package identity

import (
	"time"

	"github.com/google/uuid"
)

// User type names seeded by the 003 migration.
const (
	UserTypePatient      = "patient"
	UserTypePractitioner = "practitioner"
	UserTypeRadiologist  = "radiologist"
	UserTypeCardiologist = "cardiologist"
)

// BirthDateLayout is the MM/DD/YYYY format accepted at registration.
const BirthDateLayout = "01/02/2006"

type UserType struct {
	ID         int    `db:"id" json:"id"`
	SnomedCode string `db:"snomed_code" json:"snomed_code"`
	Name       string `db:"name" json:"name"`
}

// Person is a patient or clinician account. Active tracks the logged-in
// state, not whether the account is enabled.
type Person struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	Email         string     `db:"email" json:"email"`
	NameGiven     string     `db:"name_given" json:"name_given"`
	NameFamily    string     `db:"name_family" json:"name_family"`
	BirthDate     *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Gender        *string    `db:"gender" json:"gender,omitempty"`
	PasswordHash  string     `db:"password_hash" json:"-"`
	TelecomSystem string     `db:"telecom_system" json:"telecom_system"`
	TelecomValue  string     `db:"telecom_value" json:"telecom_value"`
	Active        bool       `db:"active" json:"active"`
	UserTypeID    int        `db:"user_type_id" json:"user_type_id"`
	UserTypeName  string     `db:"user_type_name" json:"user_type"`
	Role          string     `db:"role" json:"role"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// FullName returns "given family".
func (p *Person) FullName() string {
	return p.NameGiven + " " + p.NameFamily
}

type Telecom struct {
	System string `json:"system"`
	Value  string `json:"value"`
}

// PatientSummary is one row of the patient listing.
type PatientSummary struct {
	ID         uuid.UUID `json:"id"`
	NameGiven  string    `json:"name_given"`
	NameFamily string    `json:"name_family"`
	BirthDate  *string   `json:"birth_date"`
	Gender     *string   `json:"gender"`
	Telecom    Telecom   `json:"telecom"`
	Active     bool      `json:"active"`
}

// PatientDetail is the single-patient view.
type PatientDetail struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	BirthDate *string   `json:"birth_date"`
	Gender    *string   `json:"gender"`
	Telecom   Telecom   `json:"telecom"`
	Active    bool      `json:"active"`
}

func isoDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format("2006-01-02")
	return &s
}

func (p *Person) Summary() PatientSummary {
	return PatientSummary{
		ID:         p.ID,
		NameGiven:  p.NameGiven,
		NameFamily: p.NameFamily,
		BirthDate:  isoDate(p.BirthDate),
		Gender:     p.Gender,
		Telecom:    Telecom{System: p.TelecomSystem, Value: p.TelecomValue},
		Active:     p.Active,
	}
}

func (p *Person) Detail() PatientDetail {
	return PatientDetail{
		ID:        p.ID,
		Name:      p.FullName(),
		BirthDate: isoDate(p.BirthDate),
		Gender:    p.Gender,
		Telecom:   Telecom{System: p.TelecomSystem, Value: p.TelecomValue},
		Active:    p.Active,
	}
}

// PatientFilter narrows ListPatients. Empty fields are ignored.
type PatientFilter struct {
	Name   string
	Email  string
	Gender string
}

type RegisterPatientRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Gender    string `json:"gender"`
	DOB       string `json:"dob"`
}

type RegisterClinicianRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Type      string `json:"type"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	UserType    string `json:"user_type"`
}
