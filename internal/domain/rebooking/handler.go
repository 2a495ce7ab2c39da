package rebooking

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ehr/rebook/internal/domain/patientsearch"
)

const dateLayout = "2006-01-02"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/reconcile", h.Reconcile)

	g := api.Group("/rebook-sessions")
	g.POST("", h.OpenSession)
	g.GET("/:id", h.GetSession)
	g.DELETE("/:id", h.CloseSession)
	g.PUT("/:id/inputs", h.SetInputs)
	g.POST("/:id/select", h.SelectSlot)
	g.POST("/:id/patient-search", h.SearchPatients)
	g.POST("/:id/patient", h.SelectPatient)
	g.DELETE("/:id/patient", h.ClearPatient)
	g.POST("/:id/approve", h.Approve)
}

type reconcileRequest struct {
	AvailableSlots []Slot        `json:"available_slots"`
	Original       *OriginalSlot `json:"original"`
}

type reconcileResponse struct {
	Slots []DisplaySlot `json:"slots"`
	Match Match         `json:"match"`
}

// Reconcile is the stateless form of the display-list computation.
func (h *Handler) Reconcile(c echo.Context) error {
	var req reconcileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	display, match := ReconcileWithMatch(req.AvailableSlots, req.Original)
	SortByStart(display)
	return c.JSON(http.StatusOK, reconcileResponse{Slots: display, Match: match})
}

type openRequest struct {
	AppointmentID string `json:"appointment_id"`
}

func (h *Handler) OpenSession(c echo.Context) error {
	var req openRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sess, err := h.svc.Open(c.Request().Context(), strings.TrimSpace(req.AppointmentID))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, sess.View())
}

func (h *Handler) GetSession(c echo.Context) error {
	sess, err := h.svc.Get(c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sess.View())
}

func (h *Handler) CloseSession(c echo.Context) error {
	if err := h.svc.Close(c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type inputsRequest struct {
	ProviderID string `json:"provider_id"`
	ClinicID   string `json:"clinic_id"`
	Date       string `json:"date"`
}

// SetInputs refreshes availability for the new provider, clinic and date.
// Any of them may be blank, which clears the slot list.
func (h *Handler) SetInputs(c echo.Context) error {
	sess, err := h.svc.Get(c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	var req inputsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	in := Inputs{ProviderID: strings.TrimSpace(req.ProviderID), ClinicID: strings.TrimSpace(req.ClinicID)}
	if req.Date != "" {
		d, err := time.Parse(dateLayout, req.Date)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "date must be YYYY-MM-DD")
		}
		in.Date = d
	}
	if err := sess.Refresh(c.Request().Context(), in); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sess.View())
}

type selectRequest struct {
	SlotID string `json:"slot_id"`
}

func (h *Handler) SelectSlot(c echo.Context) error {
	sess, err := h.svc.Get(c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	var req selectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := sess.Select(req.SlotID); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sess.View())
}

type patientSearchRequest struct {
	Term string `json:"term"`
}

// SearchPatients schedules a debounced lookup. Results show up in the
// session view once the lookup lands.
func (h *Handler) SearchPatients(c echo.Context) error {
	sess, err := h.svc.Get(c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	var req patientSearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := sess.SearchPatients(req.Term); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusAccepted, sess.View().PatientSearch)
}

func (h *Handler) SelectPatient(c echo.Context) error {
	sess, err := h.svc.Get(c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	var rec patientsearch.Record
	if err := c.Bind(&rec); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if rec.ID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "id is required")
	}
	if _, err := sess.SelectPatient(rec); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sess.View())
}

func (h *Handler) ClearPatient(c echo.Context) error {
	sess, err := h.svc.Get(c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	if err := sess.ClearPatient(); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sess.View())
}

// Approve submits the assembled payload. The body carries the host form
// fields; blank fields keep the session's values.
func (h *Handler) Approve(c echo.Context) error {
	var overrides Form
	if err := c.Bind(&overrides); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payload, err := h.svc.Approve(c.Request().Context(), c.Param("id"), overrides)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, payload)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrAppointmentNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrSessionClosed):
		return echo.NewHTTPError(http.StatusGone, err.Error())
	case errors.Is(err, ErrAppointmentNotPending), errors.Is(err, ErrSlotTaken):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrMissingAppointmentID), errors.Is(err, ErrMissingSlotID), errors.Is(err, ErrMissingTime):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
