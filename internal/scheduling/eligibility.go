package scheduling

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DateFormat is the calendar-date wire format used throughout the booking
// flow.
const DateFormat = "2006-01-02"

// Eligibility computes which slots are bookable and slices them into pages.
// All methods are pure given the supplied "now"; the engine holds only
// configuration.
type Eligibility struct {
	// MinLeadTime is the minimum gap between now and a slot's start for the
	// slot to be offered.
	MinLeadTime time.Duration
	// Location anchors date+time-of-day to an absolute instant. Slot times
	// from the agenda service carry no offset of their own.
	Location *time.Location
	// LookaheadDays bounds the forward scan for available dates.
	LookaheadDays int
	// DateCount is how many dates with availability the scan collects.
	DateCount int
	// PageSize is how many slots each choice page shows.
	PageSize int
}

// NewEligibility returns an engine with the given lead time and location and
// the standard scan/page settings.
func NewEligibility(minLeadTime time.Duration, loc *time.Location, lookaheadDays, dateCount, pageSize int) *Eligibility {
	if loc == nil {
		loc = time.UTC
	}
	if lookaheadDays <= 0 {
		lookaheadDays = 60
	}
	if dateCount <= 0 {
		dateCount = 3
	}
	if pageSize <= 0 {
		pageSize = 3
	}
	return &Eligibility{
		MinLeadTime:   minLeadTime,
		Location:      loc,
		LookaheadDays: lookaheadDays,
		DateCount:     dateCount,
		PageSize:      pageSize,
	}
}

// ParseUTCOffset converts an offset like "-03:00" into a fixed location.
func ParseUTCOffset(offset string) (*time.Location, error) {
	offset = strings.TrimSpace(offset)
	if offset == "" || strings.EqualFold(offset, "UTC") {
		return time.UTC, nil
	}
	sign := 1
	switch offset[0] {
	case '-':
		sign = -1
		offset = offset[1:]
	case '+':
		offset = offset[1:]
	}
	parts := strings.SplitN(offset, ":", 2)
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, fmt.Errorf("scheduling: invalid utc offset %q", offset)
	}
	minutes := 0
	if len(parts) == 2 {
		minutes, err = strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("scheduling: invalid utc offset %q", offset)
		}
	}
	seconds := sign * (hours*3600 + minutes*60)
	name := fmt.Sprintf("UTC%+03d:%02d", sign*hours, minutes)
	return time.FixedZone(name, seconds), nil
}

// NormalizeTimeOfDay converts an agenda time value ("7:30", "07:30:00") to
// canonical "HH:MM". Returns "" when the value cannot be parsed.
func NormalizeTimeOfDay(value string) string {
	value = strings.TrimSpace(value)
	for _, layout := range []string{"15:04", "15:04:05", "3:04 PM", "3:04PM"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format("15:04")
		}
	}
	return ""
}

// EligibleSlots runs the full pipeline over a raw slot list for one date:
// drop non-bookable entries, normalize times, sort ascending, and drop slots
// starting less than MinLeadTime after now.
func (e *Eligibility) EligibleSlots(raw []RawSlot, date string, now time.Time) []SlotCandidate {
	day, err := time.ParseInLocation(DateFormat, date, e.Location)
	if err != nil {
		return nil
	}

	var out []SlotCandidate
	for _, s := range raw {
		if !s.Bookable {
			continue
		}
		tod := NormalizeTimeOfDay(s.Time)
		if tod == "" {
			continue
		}
		out = append(out, SlotCandidate{SlotID: s.ID, TimeOfDay: tod})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].TimeOfDay < out[j].TimeOfDay })

	filtered := out[:0]
	for _, c := range out {
		if e.slotStart(day, c.TimeOfDay).Sub(now) >= e.MinLeadTime {
			filtered = append(filtered, c)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	return filtered
}

// SlotStillEligible re-checks a single previously selected slot against the
// lead-time rule. Selection and confirmation happen at different instants,
// so a slot passing at selection time can legitimately fail here.
func (e *Eligibility) SlotStillEligible(c SlotCandidate, date string, now time.Time) bool {
	day, err := time.ParseInLocation(DateFormat, date, e.Location)
	if err != nil {
		return false
	}
	return e.slotStart(day, c.TimeOfDay).Sub(now) >= e.MinLeadTime
}

func (e *Eligibility) slotStart(day time.Time, timeOfDay string) time.Time {
	t, err := time.Parse("15:04", timeOfDay)
	if err != nil {
		return time.Time{}
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, e.Location)
}

// Page returns the pageIndex'th fixed-size page of slots and whether more
// pages follow. An out-of-range index yields an empty page.
func (e *Eligibility) Page(slots []SlotCandidate, pageIndex int) ([]SlotCandidate, bool) {
	if pageIndex < 0 {
		return nil, false
	}
	start := pageIndex * e.PageSize
	if start >= len(slots) {
		return nil, false
	}
	end := start + e.PageSize
	if end > len(slots) {
		end = len(slots)
	}
	return slots[start:end], end < len(slots)
}

// SlotLister is the slice of Client the date scan needs.
type SlotLister interface {
	ListSlots(ctx context.Context, providerID, patientID, date string) ([]RawSlot, error)
}

// NextAvailableDates scans forward from now, one day at a time, and returns
// the first DateCount dates with at least one eligible slot. The scan is
// bounded at LookaheadDays; fewer dates (possibly none) may be returned.
func (e *Eligibility) NextAvailableDates(ctx context.Context, lister SlotLister, providerID, patientID string, now time.Time) ([]string, error) {
	var dates []string
	day := now.In(e.Location)
	for i := 0; i < e.LookaheadDays && len(dates) < e.DateCount; i++ {
		date := day.AddDate(0, 0, i).Format(DateFormat)
		raw, err := lister.ListSlots(ctx, providerID, patientID, date)
		if err != nil {
			return nil, fmt.Errorf("scheduling: scan %s: %w", date, err)
		}
		if len(e.EligibleSlots(raw, date, now)) > 0 {
			dates = append(dates, date)
		}
	}
	return dates, nil
}
