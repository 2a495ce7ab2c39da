package rebooking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ehr/rebook/internal/domain/patientsearch"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type txBeginner interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// SlotRepoPG reads open provider slots.
type SlotRepoPG struct {
	db querier
}

func NewSlotRepoPG(db querier) *SlotRepoPG {
	return &SlotRepoPG{db: db}
}

// FetchAvailableSlots implements AvailabilitySource.
func (r *SlotRepoPG) FetchAvailableSlots(ctx context.Context, providerID, clinicID string, date time.Time) ([]Slot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id::text, to_char(start_time, 'HH24:MI:SS'), to_char(end_time, 'HH24:MI:SS')
		FROM provider_slots
		WHERE provider_id = $1 AND clinic_id = $2 AND slot_date = $3 AND NOT is_booked
		ORDER BY start_time`,
		providerID, clinicID, date.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("query provider slots: %w", err)
	}
	defer rows.Close()

	var slots []Slot
	for rows.Next() {
		var sl Slot
		if err := rows.Scan(&sl.ID, &sl.StartTime, &sl.EndTime); err != nil {
			return nil, fmt.Errorf("scan provider slot: %w", err)
		}
		slots = append(slots, sl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate provider slots: %w", err)
	}
	return slots, nil
}

// AppointmentRepoPG loads pending appointments and applies approvals.
type AppointmentRepoPG struct {
	db txBeginner
}

func NewAppointmentRepoPG(db txBeginner) *AppointmentRepoPG {
	return &AppointmentRepoPG{db: db}
}

// FetchOriginalAppointment implements AppointmentSource.
func (r *AppointmentRepoPG) FetchOriginalAppointment(ctx context.Context, appointmentID string) (*OriginalAppointment, error) {
	var (
		a                                                OriginalAppointment
		companyID, slotID, timeFrom, timeTo              *string
		clientID, clinicID, vetID, roomID, reason, notes *string
		pName, pCode, pSpecies, pFirst, pLast            *string
		patientID                                        *string
	)
	err := r.db.QueryRow(ctx, `
		SELECT a.id::text, a.company_id::text, a.slot_id::text,
		       to_char(a.time_from, 'HH24:MI:SS'), to_char(a.time_to, 'HH24:MI:SS'), a.appointment_date,
		       a.patient_id::text, a.client_id::text, a.clinic_id::text, a.veterinarian_id::text, a.room_id::text,
		       a.reason, a.notes,
		       p.name, p.patient_code, p.species, p.first_name, p.last_name
		FROM appointments a
		LEFT JOIN patients p ON p.id = a.patient_id
		WHERE a.id = $1`, appointmentID).Scan(
		&a.ID, &companyID, &slotID, &timeFrom, &timeTo, &a.Date,
		&patientID, &clientID, &clinicID, &vetID, &roomID,
		&reason, &notes,
		&pName, &pCode, &pSpecies, &pFirst, &pLast,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("query appointment: %w", err)
	}

	a.CompanyID = deref(companyID)
	a.SlotID = deref(slotID)
	a.StartTime = deref(timeFrom)
	a.EndTime = deref(timeTo)
	a.PatientID = deref(patientID)
	a.ClientID = deref(clientID)
	a.ClinicID = deref(clinicID)
	a.VeterinarianID = deref(vetID)
	a.RoomID = deref(roomID)
	a.Reason = deref(reason)
	a.Notes = deref(notes)
	if a.PatientID != "" {
		a.PatientName = patientsearch.Label(patientsearch.Record{
			ID:        a.PatientID,
			Name:      deref(pName),
			PatientID: deref(pCode),
			Species:   deref(pSpecies),
			FirstName: deref(pFirst),
			LastName:  deref(pLast),
		})
	}
	return &a, nil
}

// SubmitApproval implements ApprovalSubmitter. The appointment must still be
// pending. A payload without a slot id keeps the appointment's current slot.
// Moving to another slot books it only if it is still free and releases the
// slot previously held, all in one transaction.
func (r *AppointmentRepoPG) SubmitApproval(ctx context.Context, appointmentID string, p ApprovalPayload) error {
	if appointmentID == "" {
		return ErrMissingAppointmentID
	}
	if p.AppointmentTimeFrom == "" || p.AppointmentTimeTo == "" {
		return ErrMissingTime
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var current *string
	err = tx.QueryRow(ctx,
		"SELECT slot_id::text FROM appointments WHERE id = $1 AND status = 'pending' FOR UPDATE",
		appointmentID,
	).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAppointmentNotPending
		}
		return fmt.Errorf("lock appointment: %w", err)
	}
	held := deref(current)

	if p.SlotID != "" && p.SlotID != held {
		tag, err := tx.Exec(ctx,
			"UPDATE provider_slots SET is_booked = TRUE WHERE id = $1 AND NOT is_booked",
			p.SlotID,
		)
		if err != nil {
			return fmt.Errorf("book provider slot: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrSlotTaken
		}
		if held != "" {
			if _, err := tx.Exec(ctx,
				"UPDATE provider_slots SET is_booked = FALSE WHERE id = $1",
				held,
			); err != nil {
				return fmt.Errorf("release provider slot: %w", err)
			}
		}
	}

	tag, err := tx.Exec(ctx, `
		UPDATE appointments SET
			status = 'approved',
			time_from = $2::time, time_to = $3::time,
			appointment_date = COALESCE($4, appointment_date),
			slot_id = COALESCE(NULLIF($5, '')::uuid, slot_id),
			clinic_id = NULLIF($6, '')::uuid,
			veterinarian_id = NULLIF($7, '')::uuid,
			room_id = NULLIF($8, '')::uuid,
			reason = $9, notes = $10,
			patient_id = NULLIF($11, '')::uuid,
			client_id = NULLIF($12, '')::uuid,
			updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`,
		appointmentID, p.AppointmentTimeFrom, p.AppointmentTimeTo, p.AppointmentDate,
		p.SlotID, p.ClinicID, p.VeterinarianID, p.RoomID, p.Reason, p.Notes,
		p.PatientID, p.ClientID)
	if err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotPending
	}

	return tx.Commit(ctx)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
