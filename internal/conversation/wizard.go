package conversation

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/veraclinic/agendabot/internal/registry"
	"github.com/veraclinic/agendabot/internal/session"
)

// stateForField maps a wizard field to the conversation state that collects
// it.
var stateForField = map[registry.Field]session.State{
	registry.FieldName:         session.StateWizardName,
	registry.FieldBirthDate:    session.StateWizardBirthDate,
	registry.FieldSex:          session.StateWizardSex,
	registry.FieldPlan:         session.StateWizardPlan,
	registry.FieldEmail:        session.StateWizardEmail,
	registry.FieldPostalCode:   session.StateWizardPostalCode,
	registry.FieldStreet:       session.StateWizardStreet,
	registry.FieldNumber:       session.StateWizardNumber,
	registry.FieldComplement:   session.StateWizardComplement,
	registry.FieldNeighborhood: session.StateWizardNeighborhood,
	registry.FieldCity:         session.StateWizardCity,
	registry.FieldRegion:       session.StateWizardRegion,
}

// handleWizardNationalID resolves the CPF the user typed: existing complete
// record skips the wizard, existing incomplete record resumes at the first
// missing field, unknown CPF starts a full registration.
func (e *Engine) handleWizardNationalID(ctx context.Context, f *flow, _ string) error {
	cpf := registry.OnlyDigits(f.raw)
	if !registry.IsValidNationalID(cpf) {
		return e.sendText(ctx, f, msgInvalidNationalID)
	}

	if f.sess.Portal == nil {
		f.sess.Portal = &session.PortalWizardContext{
			Form: registry.ProfileForm{MobileNumber: f.userID},
		}
	}
	p := f.sess.Portal
	p.Form.NationalID = cpf

	id, err := e.registry.FindIDByNationalID(ctx, cpf)
	if errors.Is(err, registry.ErrNotFound) {
		p.RecordExists = false
		p.MatchedPatientID = ""
		p.Missing = append([]registry.Field(nil), registry.WizardOrder...)
		if err := e.sendText(ctx, f, msgNewPatient); err != nil {
			return err
		}
		return e.promptNextField(ctx, f)
	}
	if err != nil {
		e.logger.Warn("registry lookup failed", "user_id", f.userID, "error", err)
		return e.sendText(ctx, f, msgRegistryUnavailable)
	}

	p.MatchedPatientID = id
	p.RecordExists = true

	profile, err := e.registry.GetProfile(ctx, id)
	if err != nil {
		e.logger.Warn("registry profile fetch failed", "user_id", f.userID, "patient_id", id, "error", err)
		return e.sendText(ctx, f, msgRegistryUnavailable)
	}

	v := registry.Validate(profile)
	if v.Complete() {
		plan := p.Form.Plan
		f.sess.Portal = nil
		return e.beginBooking(ctx, f, id, plan)
	}

	form := registry.FormFromProfile(profile)
	form.NationalID = cpf
	form.Plan = p.Form.Plan
	if form.MobileNumber == "" {
		form.MobileNumber = f.userID
	}
	p.Form = form
	p.Missing = v.Missing

	if err := e.sendText(ctx, f, msgResumeWizard(v.Missing)); err != nil {
		return err
	}
	return e.promptNextField(ctx, f)
}

// promptNextField asks for the head of the missing-field list.
func (e *Engine) promptNextField(ctx context.Context, f *flow) error {
	field := f.sess.Portal.Missing[0]
	f.sess.State = stateForField[field]
	return e.sendText(ctx, f, fieldPrompt(field))
}

// handleWizardField stores one answered field and advances; when nothing is
// left to collect it commits the record. A session whose Missing list is
// already empty got here after a failed commit, so any input retries it.
func (e *Engine) handleWizardField(ctx context.Context, f *flow, input string) error {
	p := f.sess.Portal
	if p == nil {
		// Wizard state without wizard context: the session was partially
		// reset elsewhere. Start over.
		return e.toMain(ctx, f)
	}
	if len(p.Missing) == 0 {
		return e.finishWizard(ctx, f)
	}

	field := p.Missing[0]
	value, ok := parseFieldValue(field, f.raw, input)
	if !ok {
		return e.sendText(ctx, f, fieldValidationError(field))
	}
	setFormField(&p.Form, field, value)
	p.Missing = p.Missing[1:]

	if len(p.Missing) > 0 {
		return e.promptNextField(ctx, f)
	}
	return e.finishWizard(ctx, f)
}

// parseFieldValue validates one user answer. raw keeps the original casing
// for free-text fields; input is the normalized form used for choices.
func parseFieldValue(field registry.Field, raw, input string) (string, bool) {
	text := strings.TrimSpace(raw)
	switch field {
	case registry.FieldName, registry.FieldStreet, registry.FieldNumber,
		registry.FieldNeighborhood, registry.FieldCity:
		return text, text != ""
	case registry.FieldBirthDate:
		return parseBirthDate(text)
	case registry.FieldSex:
		switch input {
		case "1":
			return "M", true
		case "2":
			return "F", true
		case "3":
			return "", true
		}
		return "", false
	case registry.FieldPlan:
		switch input {
		case "1":
			return string(session.PlanSelfPay), true
		case "2":
			return string(session.PlanMedSenior), true
		}
		return "", false
	case registry.FieldEmail:
		if !registry.IsValidEmail(text) {
			return "", false
		}
		return strings.ToLower(text), true
	case registry.FieldPostalCode:
		cep := registry.OnlyDigits(text)
		if !registry.IsValidPostalCode(cep) {
			return "", false
		}
		return cep, true
	case registry.FieldComplement:
		if text == "-" {
			return "", true
		}
		return text, true
	case registry.FieldRegion:
		if !registry.IsValidRegion(text) {
			return "", false
		}
		return strings.ToUpper(text), true
	}
	return "", false
}

func setFormField(form *registry.ProfileForm, field registry.Field, value string) {
	switch field {
	case registry.FieldName:
		form.FullName = value
	case registry.FieldBirthDate:
		form.BirthDate = value
	case registry.FieldSex:
		form.Sex = value
	case registry.FieldPlan:
		form.Plan = value
	case registry.FieldEmail:
		form.Email = value
	case registry.FieldPostalCode:
		form.PostalCode = value
	case registry.FieldStreet:
		form.Street = value
	case registry.FieldNumber:
		form.Number = value
	case registry.FieldComplement:
		form.Complement = value
	case registry.FieldNeighborhood:
		form.Neighborhood = value
	case registry.FieldCity:
		form.City = value
	case registry.FieldRegion:
		form.Region = value
	}
}

// finishWizard commits the collected form to the registry, re-validates the
// stored record and either hands off to slot selection or re-enters the
// wizard at whatever the portal still reports missing.
func (e *Engine) finishWizard(ctx context.Context, f *flow) error {
	p := f.sess.Portal
	form := p.Form
	if registry.RegionFromComplement(form.Complement) == "" && form.Region != "" {
		form.Complement = registry.AppendRegionTag(form.Complement, form.Region)
	}

	var (
		patientID string
		err       error
	)
	isNew := !p.RecordExists
	if isNew {
		form.TempPassword = tempPassword()
		patientID, err = e.registry.UpsertProfile(ctx, "", form)
	} else {
		patientID, err = e.registry.UpsertProfile(ctx, p.MatchedPatientID, form)
	}
	if err != nil {
		e.logger.Warn("registry upsert failed", "user_id", f.userID, "error", err)
		return e.sendText(ctx, f, msgRegistryUnavailable)
	}

	if isNew {
		// First access only: existing patients may already hold an active
		// password and must not be locked out.
		if rerr := e.registry.RequestCredentialReset(ctx, form.NationalID, form.BirthDate); rerr != nil {
			e.logger.Warn("credential reset request failed", "user_id", f.userID, "error", rerr)
		}
	}

	// The upsert response is not trusted on its own: re-fetch and
	// re-validate before booking anything against this record.
	profile, err := e.registry.GetProfile(ctx, patientID)
	if err != nil {
		e.logger.Warn("post-upsert profile fetch failed", "user_id", f.userID, "patient_id", patientID, "error", err)
		return e.sendText(ctx, f, msgRegistryUnavailable)
	}
	if v := registry.Validate(profile); !v.Complete() {
		p.MatchedPatientID = patientID
		p.RecordExists = true
		refreshed := registry.FormFromProfile(profile)
		refreshed.Plan = form.Plan
		if refreshed.MobileNumber == "" {
			refreshed.MobileNumber = f.userID
		}
		p.Form = refreshed
		p.Missing = v.Missing
		if err := e.sendText(ctx, f, msgResumeWizard(v.Missing)); err != nil {
			return err
		}
		return e.promptNextField(ctx, f)
	}

	if isNew {
		if err := e.sendText(ctx, f, msgRegistrationDone); err != nil {
			return err
		}
	}

	plan := form.Plan
	f.sess.Portal = nil
	return e.beginBooking(ctx, f, patientID, plan)
}

// tempPassword generates the throwaway portal password set on brand-new
// records; the patient replaces it on first access.
func tempPassword() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
