package conversation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/veraclinic/agendabot/internal/scheduling"
	"github.com/veraclinic/agendabot/internal/session"
)

// returningPatientWindow is how far back a booking with this provider counts
// as "returning".
const returningPatientWindow = 30 * 24 * time.Hour

// beginBooking populates the booking context for a verified patient and
// starts date selection.
func (e *Engine) beginBooking(ctx context.Context, f *flow, patientID, plan string) error {
	planKey := session.PlanKey(plan)
	if planKey == "" {
		planKey = session.PlanMedSenior
	}
	f.sess.Booking = &session.BookingContext{
		PlanKey:            planKey,
		ProviderID:         e.opts.ProviderID,
		PatientID:          patientID,
		IsReturningPatient: e.isReturningPatient(ctx, patientID),
	}
	return e.startDateSelection(ctx, f)
}

// isReturningPatient checks the booking history for a recent appointment
// with this provider. Best effort: history failures only cost the flag.
func (e *Engine) isReturningPatient(ctx context.Context, patientID string) bool {
	history, err := e.agenda.GetBookingHistory(ctx, patientID)
	if err != nil {
		e.logger.Warn("booking history fetch failed", "patient_id", patientID, "error", err)
		return false
	}
	cutoff := e.now().Add(-returningPatientWindow)
	for _, b := range history {
		if b.ProviderID != e.opts.ProviderID {
			continue
		}
		day, err := time.Parse(scheduling.DateFormat, b.Date)
		if err != nil {
			continue
		}
		if day.After(cutoff) && day.Before(e.now()) {
			return true
		}
	}
	return false
}

// startDateSelection scans for the next dates with eligible slots and offers
// them as choices.
func (e *Engine) startDateSelection(ctx context.Context, f *flow) error {
	b := f.sess.Booking
	dates, err := e.slots.NextAvailableDates(ctx, e.agenda, b.ProviderID, b.PatientID, e.now())
	if err != nil {
		e.logger.Warn("date scan failed", "user_id", f.userID, "error", err)
		f.sess.Reset(e.now())
		if serr := e.sendText(ctx, f, msgSchedulingUnavailable); serr != nil {
			return serr
		}
		return e.sendText(ctx, f, msgMenu)
	}
	if len(dates) == 0 {
		f.sess.Reset(e.now())
		if serr := e.sendText(ctx, f, msgNoDatesAvailable); serr != nil {
			return serr
		}
		return e.sendText(ctx, f, msgMenu)
	}

	b.DateChoices = dates
	b.SelectedDate = ""
	b.CandidateSlots = nil
	b.PageIndex = 0
	f.sess.State = session.StateAwaitingDateChoice

	choices := make([]Choice, 0, len(dates)+1)
	for i, d := range dates {
		choices = append(choices, Choice{ID: strconv.Itoa(i + 1), Label: formatDateBR(d)})
	}
	choices = append(choices, Choice{ID: "0", Label: "Voltar ao menu inicial"})
	return e.sendChoices(ctx, f, msgDatePrompt, choices)
}

func (e *Engine) handleDateChoice(ctx context.Context, f *flow, input string) error {
	b := f.sess.Booking
	if b == nil {
		return e.toMain(ctx, f)
	}
	if input == "0" {
		return e.toMain(ctx, f)
	}
	if idx, err := strconv.Atoi(input); err == nil && idx >= 1 && idx <= len(b.DateChoices) {
		return e.selectDate(ctx, f, b.DateChoices[idx-1])
	}
	if isDigits(input) {
		return e.resendDateChoices(ctx, f)
	}
	return e.toMain(ctx, f)
}

func (e *Engine) resendDateChoices(ctx context.Context, f *flow) error {
	b := f.sess.Booking
	choices := make([]Choice, 0, len(b.DateChoices)+1)
	for i, d := range b.DateChoices {
		choices = append(choices, Choice{ID: strconv.Itoa(i + 1), Label: formatDateBR(d)})
	}
	choices = append(choices, Choice{ID: "0", Label: "Voltar ao menu inicial"})
	return e.sendChoices(ctx, f, msgDatePrompt, choices)
}

// selectDate fetches and caches the eligible slot list for a chosen date.
// Changing the date always refetches: cached slots are only ever valid for
// the date they were fetched for.
func (e *Engine) selectDate(ctx context.Context, f *flow, date string) error {
	b := f.sess.Booking
	raw, err := e.agenda.ListSlots(ctx, b.ProviderID, b.PatientID, date)
	if err != nil {
		e.logger.Warn("slot list failed", "user_id", f.userID, "date", date, "error", err)
		if serr := e.sendText(ctx, f, msgSchedulingUnavailable); serr != nil {
			return serr
		}
		return e.resendDateChoices(ctx, f)
	}

	eligible := e.slots.EligibleSlots(raw, date, e.now())
	if len(eligible) == 0 {
		if serr := e.sendText(ctx, f, msgNoSlotsForDate); serr != nil {
			return serr
		}
		return e.startDateSelection(ctx, f)
	}

	b.SelectedDate = date
	b.CandidateSlots = eligible
	b.PageIndex = 0
	f.sess.State = session.StateAwaitingSlotChoice
	return e.presentSlotPage(ctx, f)
}

// presentSlotPage shows the current page of cached slots plus the paging
// controls.
func (e *Engine) presentSlotPage(ctx context.Context, f *flow) error {
	b := f.sess.Booking
	page, hasMore := e.slots.Page(b.CandidateSlots, b.PageIndex)
	if len(page) == 0 {
		b.PageIndex = 0
		page, hasMore = e.slots.Page(b.CandidateSlots, 0)
		if len(page) == 0 {
			if serr := e.sendText(ctx, f, msgNoSlotsForDate); serr != nil {
				return serr
			}
			return e.startDateSelection(ctx, f)
		}
	}

	choices := make([]Choice, 0, len(page)+2)
	for i, c := range page {
		choices = append(choices, Choice{ID: strconv.Itoa(i + 1), Label: c.TimeOfDay})
	}
	if hasMore {
		choices = append(choices, Choice{ID: "9", Label: "Ver mais horários"})
	}
	choices = append(choices, Choice{ID: "8", Label: "Escolher outra data"})

	body := fmt.Sprintf("%s\n🗓 %s", msgSlotPrompt, formatDateBR(b.SelectedDate))
	return e.sendChoices(ctx, f, body, choices)
}

func (e *Engine) handleSlotChoice(ctx context.Context, f *flow, input string) error {
	b := f.sess.Booking
	if b == nil {
		return e.toMain(ctx, f)
	}

	page, hasMore := e.slots.Page(b.CandidateSlots, b.PageIndex)

	switch input {
	case "9":
		if hasMore {
			b.PageIndex++
			return e.presentSlotPage(ctx, f)
		}
	case "8":
		b.SelectedDate = ""
		b.CandidateSlots = nil
		b.PageIndex = 0
		return e.startDateSelection(ctx, f)
	}

	if idx, err := strconv.Atoi(input); err == nil && idx >= 1 && idx <= len(page) {
		slot := page[idx-1]
		f.sess.Pending = &session.PendingSelection{Slot: slot, Date: b.SelectedDate}
		f.sess.State = session.StateAwaitingSlotConfirmation
		return e.sendChoices(ctx, f, msgConfirmPrompt(b.SelectedDate, slot.TimeOfDay), confirmChoices())
	}
	if isDigits(input) {
		return e.presentSlotPage(ctx, f)
	}
	return e.toMain(ctx, f)
}

func confirmChoices() []Choice {
	return []Choice{
		{ID: "1", Label: "Confirmar"},
		{ID: "2", Label: "Escolher outro horário"},
	}
}

// handleSlotConfirmation finalizes or abandons the pending selection. The
// pending slot is always re-validated against the lead-time rule before the
// external commit: real time passed since selection, staleness here is
// expected.
func (e *Engine) handleSlotConfirmation(ctx context.Context, f *flow, input string) error {
	b := f.sess.Booking
	pending := f.sess.Pending
	if b == nil || pending == nil {
		return e.toMain(ctx, f)
	}

	switch input {
	case "2":
		f.sess.Pending = nil
		b.PageIndex = 0
		f.sess.State = session.StateAwaitingSlotChoice
		return e.presentSlotPage(ctx, f)
	case "1":
		return e.confirmPending(ctx, f)
	}
	if isDigits(input) {
		return e.sendChoices(ctx, f, msgConfirmPrompt(pending.Date, pending.Slot.TimeOfDay), confirmChoices())
	}
	return e.toMain(ctx, f)
}

func (e *Engine) confirmPending(ctx context.Context, f *flow) error {
	b := f.sess.Booking
	pending := f.sess.Pending

	if !e.slots.SlotStillEligible(pending.Slot, pending.Date, e.now()) {
		f.sess.Pending = nil
		e.metrics.ObserveBooking("stale")
		if serr := e.sendText(ctx, f, msgSlotGone); serr != nil {
			return serr
		}
		return e.refreshSlots(ctx, f)
	}

	conf, err := e.agenda.ConfirmBooking(ctx, b.ProviderID, b.PatientID, string(b.PlanKey), pending.Slot.SlotID)
	if err != nil {
		e.logger.Warn("booking confirm failed",
			"user_id", f.userID,
			"slot_id", pending.Slot.SlotID,
			"error", err,
		)
		e.metrics.ObserveBooking("failed")
		f.sess.Pending = nil
		f.sess.State = session.StateAwaitingSlotChoice
		if serr := e.sendText(ctx, f, msgBookingFailed); serr != nil {
			return serr
		}
		return e.presentSlotPage(ctx, f)
	}

	e.metrics.ObserveBooking("confirmed")
	e.logger.Info("booking confirmed",
		"user_id", f.userID,
		"patient_id", b.PatientID,
		"date", pending.Date,
		"time", pending.Slot.TimeOfDay,
	)

	date, timeOfDay := pending.Date, pending.Slot.TimeOfDay
	f.sess.Pending = nil
	f.sess.Booking = nil
	f.sess.State = session.StateMain

	if serr := e.sendText(ctx, f, msgBookingConfirmed(date, timeOfDay, conf.Code, conf.Message)); serr != nil {
		return serr
	}
	return e.sendText(ctx, f, msgMenu)
}

// refreshSlots refetches the selected date after a staleness hit and puts
// the user back at the first page.
func (e *Engine) refreshSlots(ctx context.Context, f *flow) error {
	b := f.sess.Booking
	raw, err := e.agenda.ListSlots(ctx, b.ProviderID, b.PatientID, b.SelectedDate)
	if err != nil {
		e.logger.Warn("slot refresh failed", "user_id", f.userID, "date", b.SelectedDate, "error", err)
		f.sess.Reset(e.now())
		if serr := e.sendText(ctx, f, msgSchedulingUnavailable); serr != nil {
			return serr
		}
		return e.sendText(ctx, f, msgMenu)
	}

	eligible := e.slots.EligibleSlots(raw, b.SelectedDate, e.now())
	if len(eligible) == 0 {
		if serr := e.sendText(ctx, f, msgNoSlotsForDate); serr != nil {
			return serr
		}
		return e.startDateSelection(ctx, f)
	}

	b.CandidateSlots = eligible
	b.PageIndex = 0
	f.sess.State = session.StateAwaitingSlotChoice
	return e.presentSlotPage(ctx, f)
}
