package registry

import (
	"regexp"
	"strings"
)

const regionTag = "REGION:"

var (
	nationalIDPattern = regexp.MustCompile(`^\d{11}$`)
	postalCodePattern = regexp.MustCompile(`^\d{8}$`)
	regionPattern     = regexp.MustCompile(`^[A-Za-z]{2}$`)
)

// IsValidNationalID reports whether id is a well-formed CPF (11 digits).
func IsValidNationalID(id string) bool {
	return nationalIDPattern.MatchString(OnlyDigits(id))
}

// IsValidEmail applies the portal's minimal email check: at least 6
// characters containing both "@" and ".".
func IsValidEmail(email string) bool {
	email = strings.TrimSpace(email)
	return len(email) >= 6 && strings.Contains(email, "@") && strings.Contains(email, ".")
}

// IsValidPostalCode reports whether cep is exactly 8 digits.
func IsValidPostalCode(cep string) bool {
	return postalCodePattern.MatchString(OnlyDigits(cep))
}

// IsValidRegion reports whether code is a two-letter state/region code.
func IsValidRegion(code string) bool {
	return regionPattern.MatchString(strings.TrimSpace(code))
}

// OnlyDigits strips every non-digit rune from s.
func OnlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// RegionFromComplement extracts the tagged region code from a complement
// value, or "" when the tag is absent or malformed.
func RegionFromComplement(complement string) string {
	idx := strings.Index(strings.ToUpper(complement), regionTag)
	if idx < 0 {
		return ""
	}
	rest := complement[idx+len(regionTag):]
	rest = strings.TrimSpace(rest)
	if len(rest) < 2 {
		return ""
	}
	code := rest[:2]
	if !IsValidRegion(code) {
		return ""
	}
	return strings.ToUpper(code)
}

// AppendRegionTag returns the user-entered complement with the portal's
// region tag appended.
func AppendRegionTag(complement, region string) string {
	complement = strings.TrimSpace(complement)
	tag := regionTag + strings.ToUpper(strings.TrimSpace(region))
	if complement == "" {
		return tag
	}
	return complement + " " + tag
}

// Validation is the result of checking a profile for booking completeness.
type Validation struct {
	// Missing lists required fields that are absent or malformed, ordered by
	// WizardOrder. Optional fields (sex, plan, bare complement) never appear.
	Missing []Field
}

// Complete reports whether the profile has everything billing and
// scheduling need.
func (v Validation) Complete() bool {
	return len(v.Missing) == 0
}

// Has reports whether field is among the missing ones.
func (v Validation) Has(field Field) bool {
	for _, f := range v.Missing {
		if f == field {
			return true
		}
	}
	return false
}

// Validate checks a portal profile against the booking requirements:
// name, street, number, neighborhood and city non-empty, birth date present,
// well-formed email and postal code, and the region tag present in the
// complement field.
func Validate(p *PatientProfile) Validation {
	var v Validation
	if p == nil {
		v.Missing = requiredFields()
		return v
	}

	missing := map[Field]bool{
		FieldName:         strings.TrimSpace(p.FullName) == "",
		FieldBirthDate:    strings.TrimSpace(p.BirthDate) == "",
		FieldEmail:        !IsValidEmail(p.Email),
		FieldPostalCode:   !IsValidPostalCode(p.PostalCode),
		FieldStreet:       strings.TrimSpace(p.Street) == "",
		FieldNumber:       strings.TrimSpace(p.Number) == "",
		FieldNeighborhood: strings.TrimSpace(p.Neighborhood) == "",
		FieldCity:         strings.TrimSpace(p.City) == "",
		FieldRegion:       RegionFromComplement(p.Complement) == "",
	}

	for _, f := range WizardOrder {
		if missing[f] {
			v.Missing = append(v.Missing, f)
		}
	}
	return v
}

func requiredFields() []Field {
	fields := make([]Field, 0, len(WizardOrder))
	for _, f := range WizardOrder {
		switch f {
		case FieldSex, FieldPlan, FieldComplement:
			continue
		}
		fields = append(fields, f)
	}
	return fields
}

// FormFromProfile pre-seeds a wizard form with the values already present in
// an existing record, so resumptions never re-ask known fields.
func FormFromProfile(p *PatientProfile) ProfileForm {
	if p == nil {
		return ProfileForm{}
	}
	return ProfileForm{
		NationalID:   p.NationalID,
		FullName:     p.FullName,
		BirthDate:    p.BirthDate,
		Sex:          p.Sex,
		Email:        p.Email,
		MobileNumber: p.MobileNumber,
		PostalCode:   p.PostalCode,
		Street:       p.Street,
		Number:       p.Number,
		Complement:   p.Complement,
		Neighborhood: p.Neighborhood,
		City:         p.City,
		Region:       RegionFromComplement(p.Complement),
	}
}
