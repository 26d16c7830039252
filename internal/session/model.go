// Package session defines the per-user conversation state record and its
// Redis-backed store.
package session

import (
	"time"

	"github.com/veraclinic/agendabot/internal/registry"
	"github.com/veraclinic/agendabot/internal/scheduling"
)

// State identifies where a user currently is in the conversation.
type State string

const (
	StateMain               State = "MAIN"
	StatePrivatePayInfo     State = "PRIVATE_PAY_INFO"
	StateInsuranceMenu      State = "INSURANCE_MENU"
	StateInsuranceDetail    State = "INSURANCE_DETAIL"
	StateNamedPlan          State = "NAMED_PLAN"
	StatePostOpMenu         State = "POSTOP_MENU"
	StatePostOpRecent       State = "POSTOP_RECENT"
	StatePostOpLate         State = "POSTOP_LATE"
	StateAgent              State = "AGENT"
	StateAwaitingHelpReason State = "AWAITING_HELP_REASON"

	StateWizardNationalID   State = "WZ_NATIONAL_ID"
	StateWizardName         State = "WZ_NAME"
	StateWizardBirthDate    State = "WZ_BIRTH_DATE"
	StateWizardSex          State = "WZ_SEX"
	StateWizardPlan         State = "WZ_PLAN"
	StateWizardEmail        State = "WZ_EMAIL"
	StateWizardPostalCode   State = "WZ_POSTAL_CODE"
	StateWizardStreet       State = "WZ_STREET"
	StateWizardNumber       State = "WZ_NUMBER"
	StateWizardComplement   State = "WZ_COMPLEMENT"
	StateWizardNeighborhood State = "WZ_NEIGHBORHOOD"
	StateWizardCity         State = "WZ_CITY"
	StateWizardRegion       State = "WZ_REGION"

	StateAwaitingDateChoice       State = "AWAITING_DATE_CHOICE"
	StateAwaitingSlotChoice       State = "AWAITING_SLOT_CHOICE"
	StateAwaitingSlotConfirmation State = "AWAITING_SLOT_CONFIRMATION"
)

// IsWizard reports whether the state belongs to the registration wizard.
func (s State) IsWizard() bool {
	switch s {
	case StateWizardNationalID, StateWizardName, StateWizardBirthDate,
		StateWizardSex, StateWizardPlan, StateWizardEmail,
		StateWizardPostalCode, StateWizardStreet, StateWizardNumber,
		StateWizardComplement, StateWizardNeighborhood, StateWizardCity,
		StateWizardRegion:
		return true
	}
	return false
}

// IsBooking reports whether the state belongs to the slot selection and
// confirmation sub-flow.
func (s State) IsBooking() bool {
	switch s {
	case StateAwaitingDateChoice, StateAwaitingSlotChoice, StateAwaitingSlotConfirmation:
		return true
	}
	return false
}

// PlanKey identifies the billing/coverage plan a booking is made under.
type PlanKey string

const (
	PlanSelfPay    PlanKey = "particular"
	PlanGoCare     PlanKey = "gocare"
	PlanSamaritano PlanKey = "samaritano"
	PlanSalusmed   PlanKey = "salusmed"
	PlanProasa     PlanKey = "proasa"
	PlanMedSenior  PlanKey = "medsenior"
)

// BookingContext carries the data accumulated while a user works toward a
// confirmed appointment.
type BookingContext struct {
	PlanKey            PlanKey                    `json:"plan_key"`
	ProviderID         string                     `json:"provider_id"`
	PatientID          string                     `json:"patient_id"`
	SelectedDate       string                     `json:"selected_date,omitempty"` // "2006-01-02"
	DateChoices        []string                   `json:"date_choices,omitempty"`
	CandidateSlots     []scheduling.SlotCandidate `json:"candidate_slots,omitempty"`
	PageIndex          int                        `json:"page_index"`
	IsReturningPatient bool                       `json:"is_returning_patient"`
}

// PendingSelection holds the single slot awaiting user confirmation.
type PendingSelection struct {
	Slot scheduling.SlotCandidate `json:"slot"`
	Date string                   `json:"date"`
}

// PortalWizardContext tracks the registration completeness wizard.
type PortalWizardContext struct {
	MatchedPatientID string               `json:"matched_patient_id,omitempty"`
	RecordExists     bool                 `json:"record_exists"`
	Form             registry.ProfileForm `json:"form"`
	// Missing lists the registry fields still to be collected, in priority
	// order. The head of the list is always the field currently prompted.
	Missing []registry.Field `json:"missing,omitempty"`
}

// Session is the sole unit of durable per-user state.
type Session struct {
	State          State                `json:"state"`
	LastActivityAt time.Time            `json:"last_activity_at"`
	ChannelRouting string               `json:"channel_routing,omitempty"`
	Booking        *BookingContext      `json:"booking,omitempty"`
	Portal         *PortalWizardContext `json:"portal,omitempty"`
	Pending        *PendingSelection    `json:"pending,omitempty"`
	// PlanDetail remembers which insurance line the detail screen showed,
	// so an unrecognized choice can re-display it.
	PlanDetail PlanKey `json:"plan_detail,omitempty"`
}

// New returns a fresh session resting at the main menu.
func New(now time.Time) *Session {
	return &Session{
		State:          StateMain,
		LastActivityAt: now,
	}
}

// Reset clears every sub-flow and returns the session to the main menu.
func (s *Session) Reset(now time.Time) {
	s.State = StateMain
	s.LastActivityAt = now
	s.Booking = nil
	s.Portal = nil
	s.Pending = nil
	s.PlanDetail = ""
}
