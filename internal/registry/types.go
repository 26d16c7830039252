// Package registry integrates with the clinic's patient portal, the system
// of record for patient identity and demographic data.
package registry

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no patient matches the given identifier.
var ErrNotFound = errors.New("registry: patient not found")

// Client is the contract every patient registry integration must implement.
type Client interface {
	// FindIDByNationalID resolves a CPF to the portal's patient id.
	// Returns ErrNotFound when no record matches.
	FindIDByNationalID(ctx context.Context, nationalID string) (string, error)

	// GetProfile fetches the full demographic record for a patient.
	GetProfile(ctx context.Context, patientID string) (*PatientProfile, error)

	// UpsertProfile creates a new record when existingID is empty, otherwise
	// updates the existing one. Returns the patient id.
	UpsertProfile(ctx context.Context, existingID string, form ProfileForm) (string, error)

	// RequestCredentialReset triggers the portal's first-access password
	// reset notification. Best effort: callers log failures and move on.
	RequestCredentialReset(ctx context.Context, nationalID, birthDate string) error
}

// PatientProfile is the demographic record as stored by the portal.
// The two-letter region code is carried inside Complement as a tagged
// substring ("REGION:SP"), a quirk of the portal's address schema.
type PatientProfile struct {
	PatientID    string `json:"patient_id"`
	FullName     string `json:"full_name"`
	NationalID   string `json:"cpf"`
	Email        string `json:"email"`
	MobileNumber string `json:"mobile_number"`
	PostalCode   string `json:"postal_code"`
	Street       string `json:"street"`
	Number       string `json:"number"`
	Complement   string `json:"complement"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	BirthDate    string `json:"birth_date"`
	Sex          string `json:"sex,omitempty"`
}

// ProfileForm accumulates the fields collected by the registration wizard.
type ProfileForm struct {
	NationalID   string `json:"cpf"`
	FullName     string `json:"full_name,omitempty"`
	BirthDate    string `json:"birth_date,omitempty"`
	Sex          string `json:"sex,omitempty"`
	Plan         string `json:"plan,omitempty"`
	Email        string `json:"email,omitempty"`
	MobileNumber string `json:"mobile_number,omitempty"`
	PostalCode   string `json:"postal_code,omitempty"`
	Street       string `json:"street,omitempty"`
	Number       string `json:"number,omitempty"`
	Complement   string `json:"complement,omitempty"`
	Neighborhood string `json:"neighborhood,omitempty"`
	City         string `json:"city,omitempty"`
	Region       string `json:"region,omitempty"`
	// TempPassword ("Senha") is set only when creating a brand-new record,
	// so the patient can complete the portal's first access afterwards.
	TempPassword string `json:"senha,omitempty"`
}

// Field names one wizard-collectable profile field.
type Field string

const (
	FieldName         Field = "name"
	FieldBirthDate    Field = "birth_date"
	FieldSex          Field = "sex"
	FieldPlan         Field = "plan"
	FieldEmail        Field = "email"
	FieldPostalCode   Field = "postal_code"
	FieldStreet       Field = "street"
	FieldNumber       Field = "number"
	FieldComplement   Field = "complement"
	FieldNeighborhood Field = "neighborhood"
	FieldCity         Field = "city"
	FieldRegion       Field = "region"
)

// WizardOrder is the fixed priority order in which the wizard collects
// fields. Resumptions always start at the first missing entry of this list.
var WizardOrder = []Field{
	FieldName,
	FieldBirthDate,
	FieldSex,
	FieldPlan,
	FieldEmail,
	FieldPostalCode,
	FieldStreet,
	FieldNumber,
	FieldComplement,
	FieldNeighborhood,
	FieldCity,
	FieldRegion,
}
