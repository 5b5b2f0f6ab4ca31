package scheduling

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/therapy/therapy/internal/domain/clinical"
	"github.com/therapy/therapy/internal/domain/identity"
	"github.com/therapy/therapy/internal/platform/auth"
	"github.com/therapy/therapy/pkg/calendar"
	"github.com/therapy/therapy/pkg/money"
	"github.com/therapy/therapy/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/appointments", auth.RequireRole(auth.RolePractitioner))
	g.GET("", h.ListAppointments)
	g.POST("", h.CreateAppointment)
	g.GET("/summary", h.GetSummary)
	g.GET("/slots", h.GetSlots)
	g.GET("/:id", h.GetAppointment)
	g.PUT("/:id", h.UpdateAppointment)
	g.DELETE("/:id", h.DeleteAppointment)
	g.PUT("/:id/session-note", h.RecordSessionNote)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrPatientNotFound), errors.Is(err, clinical.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrOverlap), errors.Is(err, ErrAppointmentPaid):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}

func queryDate(c echo.Context, name string) (*calendar.Date, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	d, err := calendar.ParseDate(v)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name+": "+err.Error())
	}
	return &d, nil
}

type appointmentRequest struct {
	PatientID int64          `json:"patient_id"`
	Date      calendar.Date  `json:"date"`
	StartTime calendar.Clock `json:"start_time"`
	EndTime   calendar.Clock `json:"end_time"`
	Notes     *string        `json:"notes"`
	Price     money.Price    `json:"price"`
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	var req appointmentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a := &Appointment{
		PatientID: req.PatientID,
		Date:      req.Date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Notes:     req.Notes,
		Price:     req.Price,
	}
	if err := h.svc.CreateAppointment(c.Request().Context(), a); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := identity.ParseID(c, "id")
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) UpdateAppointment(c echo.Context) error {
	id, err := identity.ParseID(c, "id")
	if err != nil {
		return err
	}
	var in AppointmentPatch
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.UpdateAppointment(c.Request().Context(), id, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) DeleteAppointment(c echo.Context) error {
	id, err := identity.ParseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteAppointment(c.Request().Context(), id); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		case errors.Is(err, ErrAppointmentPaid):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"detail": "appointment deleted"})
}

// ListAppointments filters by patient_id and date_from/date_to. A view
// (day, week or month) with an anchor date replaces the explicit range.
func (h *Handler) ListAppointments(c echo.Context) error {
	pg, err := pagination.Parse(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	f := ListFilter{Skip: pg.Skip, Limit: pg.Limit}

	if v := c.QueryParam("patient_id"); v != "" {
		pid, err := strconv.ParseInt(v, 10, 64)
		if err != nil || pid <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		f.PatientID = pid
	}
	if f.From, err = queryDate(c, "date_from"); err != nil {
		return err
	}
	if f.To, err = queryDate(c, "date_to"); err != nil {
		return err
	}
	if view := c.QueryParam("view"); view != "" {
		anchor, err := queryDate(c, "date")
		if err != nil {
			return err
		}
		if anchor == nil {
			today := h.svc.today()
			anchor = &today
		}
		w, err := calendar.ViewWindow(calendar.View(view), *anchor)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		f.From, f.To = &w.From, &w.To
	}

	appts, err := h.svc.ListAppointments(c.Request().Context(), f)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, appts)
}

func (h *Handler) GetSummary(c echo.Context) error {
	d, err := queryDate(c, "date")
	if err != nil {
		return err
	}
	var date calendar.Date
	if d != nil {
		date = *d
	}
	sum, err := h.svc.Summary(c.Request().Context(), date)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, sum)
}

func (h *Handler) GetSlots(c echo.Context) error {
	var start *calendar.Clock
	if v := c.QueryParam("start"); v != "" {
		s, err := calendar.ParseClock(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		start = &s
	}
	return c.JSON(http.StatusOK, h.svc.Slots(start))
}

type sessionNoteRequest struct {
	Content string `json:"content"`
}

func (h *Handler) RecordSessionNote(c echo.Context) error {
	id, err := identity.ParseID(c, "id")
	if err != nil {
		return err
	}
	var req sessionNoteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	note, created, err := h.svc.RecordSessionNote(c.Request().Context(), id, req.Content)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, clinical.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		if strings.TrimSpace(req.Content) == "" {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.JSON(status, note)
}
