package rebooking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/rebook/internal/domain/patientsearch"
	"github.com/ehr/rebook/internal/platform/metrics"
)

// DefaultIdleTimeout is how long an untouched session survives.
const DefaultIdleTimeout = 30 * time.Minute

// Options configures a Service.
type Options struct {
	PatientSearch patientsearch.Options
	IdleTimeout   time.Duration
}

// Service owns the open rebooking sessions and wires them to their
// collaborators.
type Service struct {
	appointments AppointmentSource
	availability AvailabilitySource
	submitter    ApprovalSubmitter
	directory    patientsearch.Directory
	opts         Options
	logger       zerolog.Logger
	metrics      *metrics.RebookMetrics
	now          func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewService(appts AppointmentSource, avail AvailabilitySource, submitter ApprovalSubmitter,
	dir patientsearch.Directory, opts Options, logger zerolog.Logger, m *metrics.RebookMetrics) *Service {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	return &Service{
		appointments: appts,
		availability: avail,
		submitter:    submitter,
		directory:    dir,
		opts:         opts,
		logger:       logger.With().Str("component", "rebooking").Logger(),
		metrics:      m,
		now:          time.Now,
		sessions:     make(map[string]*Session),
	}
}

// Open loads the appointment and starts a session for it.
func (s *Service) Open(ctx context.Context, appointmentID string) (*Session, error) {
	if appointmentID == "" {
		return nil, ErrMissingAppointmentID
	}
	appt, err := s.appointments.FetchOriginalAppointment(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("load appointment %s: %w", appointmentID, err)
	}
	if appt == nil {
		return nil, fmt.Errorf("load appointment %s: %w", appointmentID, ErrAppointmentNotFound)
	}

	id := uuid.New().String()
	sess := newSession(id, *appt, s.availability, s.directory, s.opts.PatientSearch, s.logger, s.metrics, s.now)

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	s.metrics.SessionOpened()

	s.logger.Info().Str("session_id", id).Str("appointment_id", appointmentID).Msg("rebook session opened")
	return sess, nil
}

// Get returns an open session.
func (s *Service) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Close tears a session down and forgets it.
func (s *Service) Close(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	sess.Close()
	s.metrics.SessionClosed()
	s.logger.Info().Str("session_id", id).Msg("rebook session closed")
	return nil
}

// Approve assembles the payload for a session and submits it. The session
// is closed after a successful submission. Failures are returned to the
// caller untouched by retries.
func (s *Service) Approve(ctx context.Context, id string, overrides Form) (ApprovalPayload, error) {
	sess, err := s.Get(id)
	if err != nil {
		return ApprovalPayload{}, err
	}
	payload, err := sess.Approval(overrides)
	if err != nil {
		return ApprovalPayload{}, err
	}
	if err := s.submitter.SubmitApproval(ctx, sess.appt.ID, payload); err != nil {
		if errors.Is(err, ErrSlotTaken) {
			s.invalidate(ctx, sess)
		}
		s.metrics.ObserveSubmission("error")
		s.logger.Error().Err(err).Str("session_id", id).Str("appointment_id", sess.appt.ID).Msg("approval rejected")
		return payload, fmt.Errorf("submit approval: %w", err)
	}
	s.metrics.ObserveSubmission("ok")
	s.logger.Info().
		Str("session_id", id).
		Str("appointment_id", sess.appt.ID).
		Str("time_from", payload.AppointmentTimeFrom).
		Str("time_to", payload.AppointmentTimeTo).
		Msg("appointment approved")

	s.invalidate(ctx, sess)

	_ = s.Close(id)
	return payload, nil
}

// invalidate drops cached availability for the session's current inputs.
func (s *Service) invalidate(ctx context.Context, sess *Session) {
	inv, ok := s.availability.(AvailabilityInvalidator)
	if !ok {
		return
	}
	in := sess.View().Inputs
	if !in.Complete() {
		return
	}
	if err := inv.InvalidateAvailability(ctx, in.ProviderID, in.ClinicID, in.Date); err != nil {
		s.logger.Warn().Err(err).Msg("failed to invalidate cached availability")
	}
}

// SweepIdle closes sessions untouched for longer than the idle timeout and
// returns how many were closed.
func (s *Service) SweepIdle() int {
	cutoff := s.now().Add(-s.opts.IdleTimeout)

	s.mu.RLock()
	var expired []string
	for id, sess := range s.sessions {
		if sess.IdleSince().Before(cutoff) {
			expired = append(expired, id)
		}
	}
	s.mu.RUnlock()

	closed := 0
	for _, id := range expired {
		if err := s.Close(id); err == nil {
			closed++
		}
	}
	return closed
}

// RunJanitor sweeps idle sessions every interval until ctx is done.
func (s *Service) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.SweepIdle(); n > 0 {
				s.logger.Info().Int("closed", n).Msg("expired idle rebook sessions")
			}
		}
	}
}

// CloseAll tears down every open session.
func (s *Service) CloseAll() {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	for _, id := range ids {
		_ = s.Close(id)
	}
}
