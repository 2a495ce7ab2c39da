package rebooking

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sp(s string) *string { return &s }

func TestSlotRepoPG_FetchAvailableSlots(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM provider_slots").
		WithArgs("prov-1", "clinic-1", "2026-03-10").
		WillReturnRows(pgxmock.NewRows([]string{"id", "start_time", "end_time"}).
			AddRow("s1", "09:00:00", "09:15:00").
			AddRow("s2", "09:15:00", "09:30:00"))

	repo := NewSlotRepoPG(mock)
	slots, err := repo.FetchAvailableSlots(context.Background(), "prov-1", "clinic-1", time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, Slot{ID: "s2", StartTime: "09:15:00", EndTime: "09:30:00"}, slots[1])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepoPG_FetchOriginalAppointment(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM appointments a").
		WithArgs("appt-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "company_id", "slot_id", "time_from", "time_to", "appointment_date",
			"patient_id", "client_id", "clinic_id", "veterinarian_id", "room_id",
			"reason", "notes",
			"name", "patient_code", "species", "first_name", "last_name",
		}).AddRow(
			"appt-1", sp("co-1"), sp("slot-9"), sp("09:15:00"), sp("09:30:00"), &date,
			sp("p1"), sp("c1"), sp("clinic-1"), sp("vet-1"), nil,
			sp("checkup"), nil,
			nil, sp("PT-42"), sp("Dog"), nil, nil,
		))

	repo := NewAppointmentRepoPG(mock)
	a, err := repo.FetchOriginalAppointment(context.Background(), "appt-1")
	require.NoError(t, err)
	assert.Equal(t, "slot-9", a.SlotID)
	assert.Equal(t, "co-1", a.CompanyID)
	assert.Equal(t, "09:15:00", a.StartTime)
	assert.Equal(t, "PT-42 (Dog)", a.PatientName)
	assert.Equal(t, "", a.RoomID)
	require.NotNil(t, a.Date)
	assert.True(t, a.Date.Equal(date))

	orig := a.Original()
	require.NotNil(t, orig)
	assert.Equal(t, "appt-1", orig.AppointmentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepoPG_FetchNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM appointments a").WithArgs("nope").WillReturnError(pgx.ErrNoRows)

	_, err = NewAppointmentRepoPG(mock).FetchOriginalAppointment(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func lockedSlotRows(slotID interface{}) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"slot_id"}).AddRow(slotID)
}

func TestAppointmentRepoPG_SubmitApproval_MovesSlot(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT slot_id::text FROM appointments").
		WithArgs("appt-1").
		WillReturnRows(lockedSlotRows(sp("slot-1")))
	mock.ExpectExec("UPDATE provider_slots SET is_booked = TRUE WHERE id = \\$1 AND NOT is_booked").
		WithArgs("slot-2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE provider_slots SET is_booked = FALSE").
		WithArgs("slot-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE appointments SET").
		WithArgs("appt-1", "09:15", "09:30", pgxmock.AnyArg(),
			"slot-2", "clinic-1", "vet-1", "", "checkup", "", "p1", "c1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err = NewAppointmentRepoPG(mock).SubmitApproval(context.Background(), "appt-1", ApprovalPayload{
		AppointmentTimeFrom: "09:15",
		AppointmentTimeTo:   "09:30",
		SlotID:              "slot-2",
		ClinicID:            "clinic-1",
		VeterinarianID:      "vet-1",
		Reason:              "checkup",
		PatientID:           "p1",
		ClientID:            "c1",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepoPG_SubmitApproval_SlotTaken(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT slot_id::text FROM appointments").
		WithArgs("appt-1").
		WillReturnRows(lockedSlotRows(nil))
	mock.ExpectExec("UPDATE provider_slots SET is_booked = TRUE").
		WithArgs("slot-2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err = NewAppointmentRepoPG(mock).SubmitApproval(context.Background(), "appt-1", ApprovalPayload{
		AppointmentTimeFrom: "09:15",
		AppointmentTimeTo:   "09:30",
		SlotID:              "slot-2",
	})
	assert.ErrorIs(t, err, ErrSlotTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepoPG_SubmitApproval_HeldSlotNotRebooked(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT slot_id::text FROM appointments").
		WithArgs("appt-1").
		WillReturnRows(lockedSlotRows(sp("slot-1")))
	mock.ExpectExec("UPDATE appointments SET").
		WithArgs("appt-1", "09:15", "09:30", pgxmock.AnyArg(),
			"slot-1", "", "", "", "", "", "", "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err = NewAppointmentRepoPG(mock).SubmitApproval(context.Background(), "appt-1", ApprovalPayload{
		AppointmentTimeFrom: "09:15",
		AppointmentTimeTo:   "09:30",
		SlotID:              "slot-1",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepoPG_SubmitApproval_NoSlotKeepsCurrent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT slot_id::text FROM appointments").
		WithArgs("appt-1").
		WillReturnRows(lockedSlotRows(sp("slot-1")))
	mock.ExpectExec("slot_id = COALESCE\\(NULLIF\\(\\$5, ''\\)::uuid, slot_id\\)").
		WithArgs("appt-1", "09:15", "09:30", pgxmock.AnyArg(),
			"", "", "", "", "", "", "", "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err = NewAppointmentRepoPG(mock).SubmitApproval(context.Background(), "appt-1", ApprovalPayload{
		AppointmentTimeFrom: "09:15",
		AppointmentTimeTo:   "09:30",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepoPG_SubmitApproval_NotPending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT slot_id::text FROM appointments").
		WithArgs("appt-1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	err = NewAppointmentRepoPG(mock).SubmitApproval(context.Background(), "appt-1", ApprovalPayload{
		AppointmentTimeFrom: "09:15",
		AppointmentTimeTo:   "09:30",
	})
	assert.ErrorIs(t, err, ErrAppointmentNotPending)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepoPG_SubmitApproval_MissingTime(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	err = NewAppointmentRepoPG(mock).SubmitApproval(context.Background(), "appt-1", ApprovalPayload{})
	assert.ErrorIs(t, err, ErrMissingTime)
	assert.NoError(t, mock.ExpectationsWereMet())
}
