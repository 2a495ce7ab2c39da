package rebooking

import "time"

// Slot is a bookable interval offered by a provider on a given date.
// Times are wall-clock strings in "HH:MM" or "HH:MM:SS" form.
type Slot struct {
	ID        string `json:"id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// DisplaySlot is a Slot annotated for rendering and selection.
type DisplaySlot struct {
	Slot
	IsOriginalAppointment bool `json:"is_original_appointment"`
	IsInjected            bool `json:"is_injected"`
}

// OriginalSlot is the read-only time reference of the appointment under edit.
type OriginalSlot struct {
	AppointmentID string `json:"appointment_id"`
	SlotID        string `json:"slot_id,omitempty"`
	StartTime     string `json:"start_time,omitempty"`
	EndTime       string `json:"end_time,omitempty"`
}

// OriginalAppointment is what the appointment collaborator returns for a
// pending appointment. Every field other than ID is optional.
type OriginalAppointment struct {
	ID             string     `json:"id"`
	CompanyID      string     `json:"company_id,omitempty"`
	SlotID         string     `json:"slot_id,omitempty"`
	StartTime      string     `json:"start_time,omitempty"`
	EndTime        string     `json:"end_time,omitempty"`
	Date           *time.Time `json:"date,omitempty"`
	PatientID      string     `json:"patient_id,omitempty"`
	PatientName    string     `json:"patient_name,omitempty"`
	ClientID       string     `json:"client_id,omitempty"`
	ClinicID       string     `json:"clinic_id,omitempty"`
	VeterinarianID string     `json:"veterinarian_id,omitempty"`
	RoomID         string     `json:"room_id,omitempty"`
	Reason         string     `json:"reason,omitempty"`
	Notes          string     `json:"notes,omitempty"`
}

// Original returns the slot reference used for reconciliation, or nil when
// the appointment carries neither a slot id nor a time.
func (a *OriginalAppointment) Original() *OriginalSlot {
	if a == nil {
		return nil
	}
	if a.SlotID == "" && a.StartTime == "" && a.EndTime == "" {
		return nil
	}
	return &OriginalSlot{
		AppointmentID: a.ID,
		SlotID:        a.SlotID,
		StartTime:     a.StartTime,
		EndTime:       a.EndTime,
	}
}

// TimeRange is the resolved appointment time sent with an approval.
type TimeRange struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// Form holds the host form fields of an approval. Only PatientID and ClientID
// are written by the patient resolver; the rest are opaque to the engine.
type Form struct {
	ClinicID       string `json:"clinic_id,omitempty"`
	VeterinarianID string `json:"veterinarian_id,omitempty"`
	RoomID         string `json:"room_id,omitempty"`
	Reason         string `json:"reason,omitempty"`
	Notes          string `json:"notes,omitempty"`
	PatientID      string `json:"patient_id"`
	ClientID       string `json:"client_id"`
}

// ApprovalPayload is the body handed to the approval mutation.
type ApprovalPayload struct {
	AppointmentTimeFrom string     `json:"appointment_time_from"`
	AppointmentTimeTo   string     `json:"appointment_time_to"`
	AppointmentDate     *time.Time `json:"appointment_date,omitempty"`
	SlotID              string     `json:"slot_id,omitempty"`
	ClinicID            string     `json:"clinic_id,omitempty"`
	VeterinarianID      string     `json:"veterinarian_id,omitempty"`
	RoomID              string     `json:"room_id,omitempty"`
	Reason              string     `json:"reason,omitempty"`
	Notes               string     `json:"notes,omitempty"`
	PatientID           string     `json:"patient_id,omitempty"`
	ClientID            string     `json:"client_id,omitempty"`
}
