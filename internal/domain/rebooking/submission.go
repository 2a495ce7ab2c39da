package rebooking

// Assemble resolves the times to submit. A selection that matches a display
// slot uses that slot's times; anything else passes the fallbacks through
// unchanged, empty strings included.
func Assemble(effectiveSlotID string, display []DisplaySlot, fallbackStart, fallbackEnd string) TimeRange {
	if effectiveSlotID != "" {
		for _, d := range display {
			if d.ID == effectiveSlotID {
				return TimeRange{StartTime: d.StartTime, EndTime: d.EndTime}
			}
		}
	}
	return TimeRange{StartTime: fallbackStart, EndTime: fallbackEnd}
}

// BuildApproval combines the resolved times with the form values.
func BuildApproval(form Form, times TimeRange) ApprovalPayload {
	return ApprovalPayload{
		AppointmentTimeFrom: times.StartTime,
		AppointmentTimeTo:   times.EndTime,
		ClinicID:            form.ClinicID,
		VeterinarianID:      form.VeterinarianID,
		RoomID:              form.RoomID,
		Reason:              form.Reason,
		Notes:               form.Notes,
		PatientID:           form.PatientID,
		ClientID:            form.ClientID,
	}
}
