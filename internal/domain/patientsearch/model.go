package patientsearch

import (
	"fmt"
	"strings"
)

// ClientRef is the nested client object some directory results carry.
type ClientRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Record is a raw search result. Directory backends return different
// layouts; each populates only the fields it has.
type Record struct {
	ID        string     `json:"id"`
	Name      string     `json:"name,omitempty"`
	PatientID string     `json:"patientId,omitempty"`
	Species   string     `json:"species,omitempty"`
	FirstName string     `json:"firstName,omitempty"`
	LastName  string     `json:"lastName,omitempty"`
	ClientID  string     `json:"clientId,omitempty"`
	Client    *ClientRef `json:"client,omitempty"`
}

// Patient is the canonical selection shape.
type Patient struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ClientID string `json:"client_id,omitempty"`
}

// Normalize converts a raw record into the canonical Patient.
func Normalize(r Record) Patient {
	return Patient{
		ID:       r.ID,
		Name:     Label(r),
		ClientID: clientID(r),
	}
}

// Label builds the display name using the first rule that yields a
// non-empty string: name, patient code with optional species, first and
// last name, then a fixed fallback built from the id.
func Label(r Record) string {
	if name := strings.TrimSpace(r.Name); name != "" {
		return name
	}
	if code := strings.TrimSpace(r.PatientID); code != "" {
		if species := strings.TrimSpace(r.Species); species != "" {
			return fmt.Sprintf("%s (%s)", code, species)
		}
		return code
	}
	if full := strings.TrimSpace(strings.TrimSpace(r.FirstName) + " " + strings.TrimSpace(r.LastName)); full != "" {
		return full
	}
	short := r.ID
	if runes := []rune(short); len(runes) > 8 {
		short = string(runes[:8])
	}
	return fmt.Sprintf("Patient (ID: %s...)", short)
}

func clientID(r Record) string {
	if r.ClientID != "" {
		return r.ClientID
	}
	if r.Client != nil {
		return r.Client.ID
	}
	return ""
}
