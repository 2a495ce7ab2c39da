package rebooking

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *echo.Echo, *fakeSource) {
	src := newFakeSource()
	src.slots["prov-1"] = twoSlots()
	svc := newTestService(src, &fakeSubmitter{})
	return NewHandler(svc), echo.New(), src
}

func jsonContext(e *echo.Echo, method, body string, rec *httptest.ResponseRecorder) echo.Context {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return e.NewContext(req, rec)
}

func withID(c echo.Context, id string) echo.Context {
	c.SetParamNames("id")
	c.SetParamValues(id)
	return c
}

func openSession(t *testing.T, h *Handler, e *echo.Echo) View {
	t.Helper()
	rec := httptest.NewRecorder()
	c := jsonContext(e, http.MethodPost, `{"appointment_id":"appt-1"}`, rec)
	if err := h.OpenSession(c); err != nil {
		t.Fatalf("open session: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var v View
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	return v
}

func TestHandler_Reconcile(t *testing.T) {
	h, e, _ := newTestHandler()
	body := `{"available_slots":[{"id":"b","start_time":"09:15","end_time":"09:30"},{"id":"a","start_time":"09:00","end_time":"09:15"}],
		"original":{"appointment_id":"x","start_time":"10:00","end_time":"10:15"}}`
	rec := httptest.NewRecorder()
	c := jsonContext(e, http.MethodPost, body, rec)

	if err := h.Reconcile(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp reconcileResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Match != MatchInjected || len(resp.Slots) != 3 {
		t.Fatalf("expected 3 slots with injection, got %q %d", resp.Match, len(resp.Slots))
	}
	if resp.Slots[0].ID != "a" || resp.Slots[2].ID != "original-x" {
		t.Errorf("expected sorted output, got %s..%s", resp.Slots[0].ID, resp.Slots[2].ID)
	}
}

func TestHandler_OpenSession_NotFound(t *testing.T) {
	h, e, _ := newTestHandler()
	rec := httptest.NewRecorder()
	c := jsonContext(e, http.MethodPost, `{"appointment_id":"missing"}`, rec)

	err := h.OpenSession(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_GetSession_NotFound(t *testing.T) {
	h, e, _ := newTestHandler()
	rec := httptest.NewRecorder()
	c := withID(jsonContext(e, http.MethodGet, "", rec), "nope")

	err := h.GetSession(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_SetInputsAndSelect(t *testing.T) {
	h, e, _ := newTestHandler()
	v := openSession(t, h, e)
	defer h.svc.CloseAll()

	rec := httptest.NewRecorder()
	c := withID(jsonContext(e, http.MethodPut, `{"provider_id":"prov-1","clinic_id":"clinic-1","date":"2026-03-10"}`, rec), v.SessionID)
	if err := h.SetInputs(c); err != nil {
		t.Fatalf("set inputs: %v", err)
	}
	var after View
	_ = json.Unmarshal(rec.Body.Bytes(), &after)
	if after.EffectiveSlotID != "b" {
		t.Errorf("expected auto-selected b, got %q", after.EffectiveSlotID)
	}

	rec = httptest.NewRecorder()
	c = withID(jsonContext(e, http.MethodPost, `{"slot_id":"a"}`, rec), v.SessionID)
	if err := h.SelectSlot(c); err != nil {
		t.Fatalf("select: %v", err)
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &after)
	if after.EffectiveSlotID != "a" {
		t.Errorf("expected a, got %q", after.EffectiveSlotID)
	}
}

func TestHandler_SetInputs_BadDate(t *testing.T) {
	h, e, _ := newTestHandler()
	v := openSession(t, h, e)
	defer h.svc.CloseAll()

	rec := httptest.NewRecorder()
	c := withID(jsonContext(e, http.MethodPut, `{"provider_id":"p","clinic_id":"c","date":"10/03/2026"}`, rec), v.SessionID)
	err := h.SetInputs(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_SelectSlot_Missing(t *testing.T) {
	h, e, _ := newTestHandler()
	v := openSession(t, h, e)
	defer h.svc.CloseAll()

	rec := httptest.NewRecorder()
	c := withID(jsonContext(e, http.MethodPost, `{}`, rec), v.SessionID)
	err := h.SelectSlot(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_PatientEndpoints(t *testing.T) {
	h, e, _ := newTestHandler()
	v := openSession(t, h, e)
	defer h.svc.CloseAll()

	rec := httptest.NewRecorder()
	c := withID(jsonContext(e, http.MethodPost, `{"id":"p2","patientId":"PT-42","species":"Dog","clientId":"c2"}`, rec), v.SessionID)
	if err := h.SelectPatient(c); err != nil {
		t.Fatalf("select patient: %v", err)
	}
	var after View
	_ = json.Unmarshal(rec.Body.Bytes(), &after)
	if after.Form.PatientID != "p2" || after.Form.ClientID != "c2" {
		t.Errorf("form not updated: %+v", after.Form)
	}
	if after.PatientSearch.Selected == nil || after.PatientSearch.Selected.Name != "PT-42 (Dog)" {
		t.Errorf("unexpected selection %+v", after.PatientSearch.Selected)
	}

	rec = httptest.NewRecorder()
	c = withID(jsonContext(e, http.MethodDelete, "", rec), v.SessionID)
	if err := h.ClearPatient(c); err != nil {
		t.Fatalf("clear patient: %v", err)
	}
	after = View{}
	_ = json.Unmarshal(rec.Body.Bytes(), &after)
	if after.Form.PatientID != "" {
		t.Errorf("expected patient cleared, got %q", after.Form.PatientID)
	}

	rec = httptest.NewRecorder()
	c = withID(jsonContext(e, http.MethodPost, `{"term":"rex"}`, rec), v.SessionID)
	if err := h.SearchPatients(c); err != nil {
		t.Fatalf("search: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Errorf("expected 202, got %d", rec.Code)
	}
}

func TestHandler_Approve(t *testing.T) {
	h, e, _ := newTestHandler()
	v := openSession(t, h, e)

	rec := httptest.NewRecorder()
	c := withID(jsonContext(e, http.MethodPost, `{"reason":"rescheduled"}`, rec), v.SessionID)
	if err := h.Approve(c); err != nil {
		t.Fatalf("approve: %v", err)
	}
	var p ApprovalPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.AppointmentTimeFrom != "09:15" || p.Reason != "rescheduled" {
		t.Errorf("unexpected payload %+v", p)
	}

	rec = httptest.NewRecorder()
	c = withID(jsonContext(e, http.MethodGet, "", rec), v.SessionID)
	err := h.GetSession(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected session gone after approval, got %v", err)
	}
}

func TestHandler_CloseSession(t *testing.T) {
	h, e, _ := newTestHandler()
	v := openSession(t, h, e)

	rec := httptest.NewRecorder()
	c := withID(jsonContext(e, http.MethodDelete, "", rec), v.SessionID)
	if err := h.CloseSession(c); err != nil {
		t.Fatalf("close: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

func TestHTTPError_Mapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{ErrSessionNotFound, http.StatusNotFound},
		{ErrSessionClosed, http.StatusGone},
		{ErrAppointmentNotPending, http.StatusConflict},
		{fmt.Errorf("submit approval: %w", ErrSlotTaken), http.StatusConflict},
		{ErrMissingTime, http.StatusBadRequest},
	}
	for _, tc := range cases {
		he, ok := httpError(tc.err).(*echo.HTTPError)
		if !ok || he.Code != tc.code {
			t.Errorf("%v: expected %d, got %v", tc.err, tc.code, he)
		}
	}
}
