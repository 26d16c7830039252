// Package scheduling integrates with the external agenda service, the system
// of record for provider availability and booking confirmation.
package scheduling

import (
	"context"
	"errors"
)

// ErrSlotUnavailable is returned when the agenda service rejects a booking
// because the slot was taken or withdrawn between listing and confirmation.
var ErrSlotUnavailable = errors.New("scheduling: slot no longer available")

// Client is the contract every scheduling integration must implement.
type Client interface {
	// ListSlots returns the raw slot list for a provider on a calendar date
	// ("2006-01-02"). The result includes non-bookable entries; callers run
	// them through the eligibility engine before showing anything to a user.
	ListSlots(ctx context.Context, providerID, patientID, date string) ([]RawSlot, error)

	// ConfirmBooking commits an appointment for the given slot.
	ConfirmBooking(ctx context.Context, providerID, patientID, planCode, slotID string) (*Confirmation, error)

	// GetBookingHistory returns the patient's past and upcoming bookings.
	GetBookingHistory(ctx context.Context, patientID string) ([]Booking, error)
}

// RawSlot is a slot exactly as the agenda service reports it.
type RawSlot struct {
	ID       string `json:"id"`
	Time     string `json:"time"` // time of day, e.g. "07:30" or "7:30:00"
	Bookable bool   `json:"available"`
}

// SlotCandidate is a slot that passed eligibility filtering.
type SlotCandidate struct {
	SlotID    string `json:"slot_id"`
	TimeOfDay string `json:"time_of_day"` // normalized "HH:MM"
}

// Confirmation is the agenda service's answer to a committed booking.
type Confirmation struct {
	Code    string `json:"confirmation_code"`
	Message string `json:"message"`
}

// Booking is one entry of a patient's booking history.
type Booking struct {
	ID         string `json:"id"`
	ProviderID string `json:"provider_id"`
	Date       string `json:"date"` // "2006-01-02"
	Status     string `json:"status"`
}
