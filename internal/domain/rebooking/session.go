package rebooking

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/rebook/internal/domain/patientsearch"
	"github.com/ehr/rebook/internal/platform/metrics"
)

// Session is the edit state of one pending appointment: the current inputs,
// the reconciled display list, the explicit selection and the host form.
//
// Availability refreshes are tokened. A fetch result is applied only when
// no newer refresh started and the session is still open.
type Session struct {
	ID string

	appt     OriginalAppointment
	original *OriginalSlot
	source   AvailabilitySource
	logger   zerolog.Logger
	metrics  *metrics.RebookMetrics

	selection *Selection
	resolver  *patientsearch.Resolver

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	token       uint64
	closed      bool
	loading     bool
	inputs      Inputs
	available   []Slot
	display     []DisplaySlot
	lastTouched time.Time
	now         func() time.Time

	formMu sync.Mutex
	form   Form
}

// SlotView is a display slot with its rendered selection state.
type SlotView struct {
	DisplaySlot
	Selected bool `json:"selected"`
}

// View is a snapshot of a session for rendering.
type View struct {
	SessionID       string              `json:"session_id"`
	AppointmentID   string              `json:"appointment_id"`
	Inputs          Inputs              `json:"inputs"`
	Loading         bool                `json:"loading"`
	Slots           []SlotView          `json:"slots"`
	ExplicitSlotID  *string             `json:"explicit_slot_id"`
	EffectiveSlotID string              `json:"effective_slot_id,omitempty"`
	Form            Form                `json:"form"`
	PatientSearch   patientsearch.State `json:"patient_search"`
}

func newSession(id string, appt OriginalAppointment, source AvailabilitySource, dir patientsearch.Directory,
	searchOpts patientsearch.Options, logger zerolog.Logger, m *metrics.RebookMetrics, now func() time.Time) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:        id,
		appt:      appt,
		original:  appt.Original(),
		source:    source,
		logger:    logger.With().Str("session_id", id).Str("appointment_id", appt.ID).Logger(),
		metrics:   m,
		selection: NewSelection(),
		ctx:       ctx,
		cancel:    cancel,
		now:       now,
		form: Form{
			ClinicID:       appt.ClinicID,
			VeterinarianID: appt.VeterinarianID,
			RoomID:         appt.RoomID,
			Reason:         appt.Reason,
			Notes:          appt.Notes,
			PatientID:      appt.PatientID,
			ClientID:       appt.ClientID,
		},
	}
	s.lastTouched = now()
	if appt.CompanyID != "" {
		searchOpts.CompanyID = appt.CompanyID
	}
	s.resolver = patientsearch.NewResolver(dir, s, searchOpts, s.logger, m)
	if appt.PatientID != "" {
		s.resolver.Preselect(patientsearch.Patient{ID: appt.PatientID, Name: appt.PatientName, ClientID: appt.ClientID})
	}
	s.display, _ = ReconcileWithMatch(nil, s.original)
	return s
}

// SetPatient implements patientsearch.FormWriter. The resolver is the only
// caller, so the two patient fields have a single writer.
func (s *Session) SetPatient(patientID, clientID string) {
	s.formMu.Lock()
	defer s.formMu.Unlock()
	s.form.PatientID = patientID
	s.form.ClientID = clientID
}

// Refresh recomputes the display list for new inputs. Incomplete inputs
// clear the availability and invalidate any fetch still in flight. A failed
// fetch counts as no slots. The explicit selection is never reset here.
func (s *Session) Refresh(ctx context.Context, in Inputs) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.token++
	tok := s.token
	s.inputs = in
	s.lastTouched = s.now()
	if !in.Complete() {
		s.loading = false
		s.applyLocked(nil)
		s.mu.Unlock()
		return nil
	}
	s.loading = true
	s.mu.Unlock()

	fetchCtx, stop := context.WithCancel(ctx)
	defer stop()
	unlink := context.AfterFunc(s.ctx, stop)
	defer unlink()

	start := time.Now()
	slots, err := s.source.FetchAvailableSlots(fetchCtx, in.ProviderID, in.ClinicID, in.Date)
	s.metrics.ObserveLatency("availability", time.Since(start).Seconds())
	if err != nil {
		s.metrics.ObserveAvailabilityError()
		s.logger.Warn().Err(err).
			Str("provider_id", in.ProviderID).
			Str("clinic_id", in.ClinicID).
			Str("date", in.Date.Format("2006-01-02")).
			Msg("availability fetch failed, treating as no slots")
		slots = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || tok != s.token {
		s.metrics.ObserveStaleDropped("availability")
		s.logger.Debug().Uint64("token", tok).Msg("discarding stale availability result")
		return nil
	}
	s.loading = false
	s.applyLocked(dedupeSlots(slots))
	return nil
}

func (s *Session) applyLocked(available []Slot) {
	s.available = available
	display, match := ReconcileWithMatch(available, s.original)
	SortByStart(display)
	s.display = display
	s.metrics.ObserveReconcile(string(match))
	if s.selection.AutoSelect(available, s.original, display) {
		id, _ := s.selection.Explicit()
		s.logger.Debug().Str("slot_id", id).Msg("auto-selected original appointment slot")
	}
}

// Select records an explicit slot pick.
func (s *Session) Select(slotID string) error {
	if slotID == "" {
		return ErrMissingSlotID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.lastTouched = s.now()
	s.selection.Select(slotID)
	return nil
}

// SearchPatients forwards a keystroke to the debounced patient resolver.
func (s *Session) SearchPatients(term string) error {
	if err := s.touch(); err != nil {
		return err
	}
	s.resolver.Search(term)
	return nil
}

// SelectPatient picks a patient record and writes its ids to the form.
func (s *Session) SelectPatient(rec patientsearch.Record) (patientsearch.Patient, error) {
	if err := s.touch(); err != nil {
		return patientsearch.Patient{}, err
	}
	return s.resolver.Select(rec), nil
}

// ClearPatient empties the patient fields and reopens the search box.
func (s *Session) ClearPatient() error {
	if err := s.touch(); err != nil {
		return err
	}
	s.resolver.Clear()
	return nil
}

// View returns a snapshot of the session.
func (s *Session) View() View {
	s.mu.Lock()
	display := make([]DisplaySlot, len(s.display))
	copy(display, s.display)
	inputs := s.inputs
	loading := s.loading
	s.mu.Unlock()

	effective, ok := s.selection.Effective(display, s.original)
	v := View{
		SessionID:     s.ID,
		AppointmentID: s.appt.ID,
		Inputs:        inputs,
		Loading:       loading,
		Slots:         make([]SlotView, 0, len(display)),
		Form:          s.currentForm(),
		PatientSearch: s.resolver.State(),
	}
	if ok {
		v.EffectiveSlotID = effective
	}
	if id, explicit := s.selection.Explicit(); explicit {
		v.ExplicitSlotID = &id
	}
	for _, d := range display {
		v.Slots = append(v.Slots, SlotView{DisplaySlot: d, Selected: IsHighlighted(d, effective, ok)})
	}
	return v
}

// Approval builds the approval payload from the effective selection and the
// form. The original appointment time is the fallback when nothing resolves.
func (s *Session) Approval(overrides Form) (ApprovalPayload, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ApprovalPayload{}, ErrSessionClosed
	}
	display := make([]DisplaySlot, len(s.display))
	copy(display, s.display)
	inputs := s.inputs
	s.mu.Unlock()

	effective, ok := s.selection.Effective(display, s.original)
	if !ok {
		effective = ""
	}
	times := Assemble(effective, display, s.appt.StartTime, s.appt.EndTime)

	form := s.currentForm()
	form.ClinicID = firstNonEmpty(overrides.ClinicID, form.ClinicID)
	form.VeterinarianID = firstNonEmpty(overrides.VeterinarianID, form.VeterinarianID)
	form.RoomID = firstNonEmpty(overrides.RoomID, form.RoomID)
	form.Reason = firstNonEmpty(overrides.Reason, form.Reason)
	form.Notes = firstNonEmpty(overrides.Notes, form.Notes)

	payload := BuildApproval(form, times)
	for _, d := range display {
		if d.ID != effective {
			continue
		}
		// An injected original only carries a real id when the appointment
		// already holds that slot; the synthetic id is never sent.
		if !d.IsInjected || (s.appt.SlotID != "" && d.ID == s.appt.SlotID) {
			payload.SlotID = d.ID
		}
		break
	}
	switch {
	case !inputs.Date.IsZero():
		date := inputs.Date
		payload.AppointmentDate = &date
	case s.appt.Date != nil:
		date := *s.appt.Date
		payload.AppointmentDate = &date
	}
	return payload, nil
}

// Close tears the session down. Pending fetches and patient lookups are
// cancelled and their results ignored.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.token++
	s.mu.Unlock()

	s.cancel()
	s.resolver.Close()
}

// IdleSince reports when the session was last used.
func (s *Session) IdleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTouched
}

func (s *Session) touch() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.lastTouched = s.now()
	return nil
}

func (s *Session) currentForm() Form {
	s.formMu.Lock()
	defer s.formMu.Unlock()
	return s.form
}

// dedupeSlots drops repeated slot ids, keeping the first occurrence.
func dedupeSlots(slots []Slot) []Slot {
	if len(slots) == 0 {
		return slots
	}
	seen := make(map[string]struct{}, len(slots))
	out := make([]Slot, 0, len(slots))
	for _, sl := range slots {
		if _, dup := seen[sl.ID]; dup {
			continue
		}
		seen[sl.ID] = struct{}{}
		out = append(out, sl)
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
