package rebooking

import (
	"strings"
	"sync"
)

// EffectiveSelection resolves which slot counts as chosen. An explicit id
// always wins, even if it no longer appears in display. Without one, the
// slot whose time matches the original appointment is used.
func EffectiveSelection(display []DisplaySlot, explicitSlotID *string, original *OriginalSlot) (string, bool) {
	if explicitSlotID != nil {
		return *explicitSlotID, true
	}
	for _, d := range display {
		if MatchesTime(d.Slot, original) {
			return d.ID, true
		}
	}
	return "", false
}

// IsHighlighted reports whether d should render as selected for the given
// effective id.
func IsHighlighted(d DisplaySlot, effectiveSlotID string, ok bool) bool {
	return ok && effectiveSlotID != "" && d.ID == effectiveSlotID
}

// Selection owns the explicit slot choice for one appointment under edit.
// It is the only writer of the explicit id; the display list lives elsewhere.
type Selection struct {
	mu          sync.Mutex
	explicit    *string
	autoApplied map[string]struct{}
}

// NewSelection returns an empty Selection.
func NewSelection() *Selection {
	return &Selection{autoApplied: make(map[string]struct{})}
}

// Select records an explicit user pick.
func (s *Selection) Select(slotID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := slotID
	s.explicit = &id
}

// Explicit returns the explicit slot id, if any.
func (s *Selection) Explicit() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.explicit == nil {
		return "", false
	}
	return *s.explicit, true
}

// Effective is EffectiveSelection against the current explicit id.
func (s *Selection) Effective(display []DisplaySlot, original *OriginalSlot) (string, bool) {
	s.mu.Lock()
	var explicit *string
	if s.explicit != nil {
		id := *s.explicit
		explicit = &id
	}
	s.mu.Unlock()
	return EffectiveSelection(display, explicit, original)
}

// AutoSelect runs the auto-selection pass for one (available, original)
// pair. It fires at most once per distinct pair and never overwrites an
// explicit id. It returns true when it set the explicit id.
//
// Only slots that came from availability are pinned. An injected original
// is left unpinned so explicit_slot_id stays null while it is shown; the
// time fallback in EffectiveSelection still selects it, and the approval
// carries the same times. Pinning it would stick once a later list offers a
// real slot at the original time, because a pin is never overwritten.
func (s *Selection) AutoSelect(available []Slot, original *OriginalSlot, display []DisplaySlot) bool {
	key := fingerprint(available, original)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.autoApplied[key]; seen {
		return false
	}
	s.autoApplied[key] = struct{}{}

	if s.explicit != nil {
		return false
	}
	for _, d := range display {
		if !d.IsInjected && MatchesTime(d.Slot, original) {
			id := d.ID
			s.explicit = &id
			return true
		}
	}
	return false
}

func fingerprint(available []Slot, original *OriginalSlot) string {
	var b strings.Builder
	for _, sl := range available {
		b.WriteString(sl.ID)
		b.WriteByte('|')
		b.WriteString(sl.StartTime)
		b.WriteByte('|')
		b.WriteString(sl.EndTime)
		b.WriteByte(';')
	}
	b.WriteString("#")
	if original != nil {
		b.WriteString(original.AppointmentID)
		b.WriteByte('|')
		b.WriteString(original.SlotID)
		b.WriteByte('|')
		b.WriteString(original.StartTime)
		b.WriteByte('|')
		b.WriteString(original.EndTime)
	}
	return b.String()
}
