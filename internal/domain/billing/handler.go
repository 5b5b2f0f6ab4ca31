package billing

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/therapy/therapy/internal/domain/identity"
	"github.com/therapy/therapy/internal/platform/auth"
	"github.com/therapy/therapy/pkg/calendar"
	"github.com/therapy/therapy/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/payments", auth.RequireRole(auth.RolePractitioner))
	g.POST("", h.CreatePayment)
	g.GET("", h.ListPayments)
	g.GET("/statistics/summary", h.GetStatistics)
	g.GET("/patient/:patient_id/unpaid-appointments", h.ListUnpaidAppointments)
	g.GET("/:id", h.GetPayment)
	g.PATCH("/:id", h.UpdatePayment)
	g.DELETE("/:id", h.DeletePayment)
}

func httpError(err error) error {
	var paid *AlreadyPaidError
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrPatientNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.As(err, &paid):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}

func dateParams(c echo.Context) (from, to *calendar.Date, err error) {
	for _, p := range []struct {
		name string
		dst  **calendar.Date
	}{{"date_from", &from}, {"date_to", &to}} {
		v := c.QueryParam(p.name)
		if v == "" {
			continue
		}
		d, perr := calendar.ParseDate(v)
		if perr != nil {
			return nil, nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+p.name+": "+perr.Error())
		}
		*p.dst = &d
	}
	return from, to, nil
}

func (h *Handler) CreatePayment(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.CreatePayment(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPayment(c echo.Context) error {
	id, err := identity.ParseID(c, "id")
	if err != nil {
		return err
	}
	p, err := h.svc.GetPayment(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdatePayment(c echo.Context) error {
	id, err := identity.ParseID(c, "id")
	if err != nil {
		return err
	}
	var in PaymentPatch
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.UpdatePayment(c.Request().Context(), id, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePayment(c echo.Context) error {
	id, err := identity.ParseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeletePayment(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListPayments(c echo.Context) error {
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
	if f.From, f.To, err = dateParams(c); err != nil {
		return err
	}
	if v := c.QueryParam("payment_method"); v != "" {
		m, err := ParseMethod(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		f.Method = m
	}

	res, err := h.svc.ListPayments(c.Request().Context(), f)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) ListUnpaidAppointments(c echo.Context) error {
	pid, err := identity.ParseID(c, "patient_id")
	if err != nil {
		return err
	}
	ids, err := h.svc.UnpaidAppointmentIDs(c.Request().Context(), pid)
	if errors.Is(err, ErrPatientNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, ids)
}

func (h *Handler) GetStatistics(c echo.Context) error {
	from, to, err := dateParams(c)
	if err != nil {
		return err
	}
	stats, err := h.svc.Statistics(c.Request().Context(), from, to)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}
