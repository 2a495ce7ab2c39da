package rebooking

import (
	"context"
	"errors"
	"time"
)

var (
	ErrSessionNotFound       = errors.New("rebook session not found")
	ErrSessionClosed         = errors.New("rebook session is closed")
	ErrAppointmentNotFound   = errors.New("appointment not found")
	ErrAppointmentNotPending = errors.New("appointment is not pending approval")
	ErrMissingAppointmentID  = errors.New("appointment_id is required")
	ErrMissingSlotID         = errors.New("slot_id is required")
	ErrMissingTime           = errors.New("appointment time is required")
	ErrSlotTaken             = errors.New("slot is already booked")
)

// AvailabilitySource produces candidate slots for a provider at a clinic on
// a date. It may return an empty list.
type AvailabilitySource interface {
	FetchAvailableSlots(ctx context.Context, providerID, clinicID string, date time.Time) ([]Slot, error)
}

// AvailabilityInvalidator is implemented by availability sources that cache.
type AvailabilityInvalidator interface {
	InvalidateAvailability(ctx context.Context, providerID, clinicID string, date time.Time) error
}

// AppointmentSource loads the appointment being rebooked.
type AppointmentSource interface {
	FetchOriginalAppointment(ctx context.Context, appointmentID string) (*OriginalAppointment, error)
}

// ApprovalSubmitter is the approval mutation.
type ApprovalSubmitter interface {
	SubmitApproval(ctx context.Context, appointmentID string, payload ApprovalPayload) error
}

// Inputs are the provider, clinic and date the display list is computed for.
type Inputs struct {
	ProviderID string    `json:"provider_id"`
	ClinicID   string    `json:"clinic_id"`
	Date       time.Time `json:"date"`
}

// Complete reports whether all three inputs are set.
func (in Inputs) Complete() bool {
	return in.ProviderID != "" && in.ClinicID != "" && !in.Date.IsZero()
}
