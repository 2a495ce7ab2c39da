package rebooking

import (
	"sort"
	"strconv"
	"strings"
)

// Match describes how Reconcile located the original appointment.
type Match string

const (
	MatchNone     Match = "none"
	MatchByID     Match = "id"
	MatchByTime   Match = "time"
	MatchInjected Match = "injected"
)

// Reconcile merges freshly computed availability with the original slot of
// the appointment under edit. The input order is preserved and the input
// slice is never modified.
func Reconcile(available []Slot, original *OriginalSlot) []DisplaySlot {
	display, _ := ReconcileWithMatch(available, original)
	return display
}

// ReconcileWithMatch is Reconcile that also reports which rule fired.
func ReconcileWithMatch(available []Slot, original *OriginalSlot) ([]DisplaySlot, Match) {
	display := make([]DisplaySlot, 0, len(available)+1)
	for _, s := range available {
		display = append(display, DisplaySlot{Slot: s})
	}
	if original == nil {
		return display, MatchNone
	}

	if original.SlotID != "" {
		for i := range display {
			if display[i].ID == original.SlotID {
				display[i].IsOriginalAppointment = true
				return display, MatchByID
			}
		}
	}

	for i := range display {
		if MatchesTime(display[i].Slot, original) {
			display[i].IsOriginalAppointment = true
			return display, MatchByTime
		}
	}

	if _, ok := truncateHHMM(original.StartTime); !ok {
		return display, MatchNone
	}
	if _, ok := truncateHHMM(original.EndTime); !ok {
		return display, MatchNone
	}

	id := original.SlotID
	if id == "" {
		id = "original-" + original.AppointmentID
	}
	display = append(display, DisplaySlot{
		Slot: Slot{
			ID:        id,
			StartTime: original.StartTime,
			EndTime:   original.EndTime,
		},
		IsOriginalAppointment: true,
		IsInjected:            true,
	})
	return display, MatchInjected
}

// MatchesTime reports whether the slot covers the original time, comparing
// both ends at minute precision. Malformed times never match.
func MatchesTime(s Slot, original *OriginalSlot) bool {
	if original == nil {
		return false
	}
	os, ok := truncateHHMM(original.StartTime)
	if !ok {
		return false
	}
	oe, ok := truncateHHMM(original.EndTime)
	if !ok {
		return false
	}
	ss, ok := truncateHHMM(s.StartTime)
	if !ok {
		return false
	}
	se, ok := truncateHHMM(s.EndTime)
	if !ok {
		return false
	}
	return ss == os && se == oe
}

// SortByStart orders a display list by start time. Zero-padded clock strings
// sort correctly under lexical comparison.
func SortByStart(display []DisplaySlot) {
	sort.SliceStable(display, func(i, j int) bool {
		return display[i].StartTime < display[j].StartTime
	})
}

// truncateHHMM returns the "HH:MM" prefix of a "HH:MM[:SS[.ffffff]]" string.
func truncateHHMM(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 5 || s[2] != ':' {
		return "", false
	}
	if len(s) > 5 && s[5] != ':' {
		return "", false
	}
	h, err := strconv.Atoi(s[0:2])
	if err != nil || h < 0 || h > 24 {
		return "", false
	}
	m, err := strconv.Atoi(s[3:5])
	if err != nil || m < 0 || m > 59 {
		return "", false
	}
	return s[:5], true
}
