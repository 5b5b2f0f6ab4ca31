package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/therapy/therapy/internal/domain/billing"
	"github.com/therapy/therapy/internal/domain/clinical"
	"github.com/therapy/therapy/internal/domain/identity"
	"github.com/therapy/therapy/internal/domain/scheduling"
	"github.com/therapy/therapy/pkg/calendar"
	"github.com/therapy/therapy/pkg/money"
)

func pageQuery(skip, limit int) url.Values {
	q := url.Values{}
	if skip > 0 {
		q.Set("skip", strconv.Itoa(skip))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return q
}

func setDate(q url.Values, key string, d *calendar.Date) {
	if d != nil {
		q.Set(key, d.String())
	}
}

// Patients

func (c *Client) ListPatients(ctx context.Context, skip, limit int) ([]identity.Patient, error) {
	var out []identity.Patient
	err := c.do(ctx, http.MethodGet, "/patients", pageQuery(skip, limit), nil, &out)
	return out, err
}

func (c *Client) CreatePatient(ctx context.Context, p identity.Patient) (*identity.Patient, error) {
	var out identity.Patient
	if err := c.do(ctx, http.MethodPost, "/patients", nil, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetPatient(ctx context.Context, id int64) (*identity.Patient, error) {
	var out identity.Patient
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/patients/%d", id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeletePatient(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/patients/%d", id), nil, nil, nil)
}

// Appointments

type AppointmentQuery struct {
	PatientID int64
	From      *calendar.Date
	To        *calendar.Date
	View      calendar.View
	Date      *calendar.Date
	Skip      int
	Limit     int
}

func (q AppointmentQuery) values() url.Values {
	v := pageQuery(q.Skip, q.Limit)
	if q.PatientID > 0 {
		v.Set("patient_id", strconv.FormatInt(q.PatientID, 10))
	}
	setDate(v, "date_from", q.From)
	setDate(v, "date_to", q.To)
	if q.View != "" {
		v.Set("view", string(q.View))
		setDate(v, "date", q.Date)
	}
	return v
}

type AppointmentInput struct {
	PatientID int64          `json:"patient_id"`
	Date      calendar.Date  `json:"date"`
	StartTime calendar.Clock `json:"start_time"`
	EndTime   calendar.Clock `json:"end_time"`
	Notes     *string        `json:"notes,omitempty"`
	Price     money.Price    `json:"price"`
}

func (c *Client) ListAppointments(ctx context.Context, q AppointmentQuery) ([]scheduling.Appointment, error) {
	var out []scheduling.Appointment
	err := c.do(ctx, http.MethodGet, "/appointments", q.values(), nil, &out)
	return out, err
}

func (c *Client) GetAppointment(ctx context.Context, id int64) (*scheduling.Appointment, error) {
	var out scheduling.Appointment
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/appointments/%d", id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateAppointment(ctx context.Context, in AppointmentInput) (*scheduling.Appointment, error) {
	var out scheduling.Appointment
	if err := c.do(ctx, http.MethodPost, "/appointments", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateAppointment(ctx context.Context, id int64, in scheduling.AppointmentPatch) (*scheduling.Appointment, error) {
	var out scheduling.Appointment
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/appointments/%d", id), nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteAppointment(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/appointments/%d", id), nil, nil, nil)
}

func (c *Client) AppointmentSlots(ctx context.Context, start string) (*scheduling.Slots, error) {
	q := url.Values{}
	if start != "" {
		q.Set("start", start)
	}
	var out scheduling.Slots
	if err := c.do(ctx, http.MethodGet, "/appointments/slots", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RecordAppointmentNote writes an appointment's session note in one server
// transaction.
func (c *Client) RecordAppointmentNote(ctx context.Context, appointmentID int64, content string) (*clinical.SessionNote, error) {
	var out clinical.SessionNote
	body := map[string]string{"content": content}
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/appointments/%d/session-note", appointmentID), nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Session notes

func (c *Client) CreateSessionNote(ctx context.Context, patientID int64, content string) (*clinical.SessionNote, error) {
	var out clinical.SessionNote
	body := map[string]any{"patient_id": patientID, "content": content}
	if err := c.do(ctx, http.MethodPost, "/session-notes", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateSessionNote(ctx context.Context, id int64, content string) (*clinical.SessionNote, error) {
	var out clinical.SessionNote
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/session-notes/%d", id), nil, map[string]string{"content": content}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteSessionNote(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/session-notes/%d", id), nil, nil, nil)
}

// Payments

type PaymentQuery struct {
	PatientID int64
	From      *calendar.Date
	To        *calendar.Date
	Method    billing.Method
	Skip      int
	Limit     int
}

func (c *Client) ListUnpaidAppointmentIDs(ctx context.Context, patientID int64) ([]int64, error) {
	var out []int64
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/payments/patient/%d/unpaid-appointments", patientID), nil, nil, &out)
	return out, err
}

func (c *Client) CreatePayment(ctx context.Context, in billing.CreateInput) (*billing.Payment, error) {
	var out billing.Payment
	if err := c.do(ctx, http.MethodPost, "/payments", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdatePayment(ctx context.Context, id int64, in billing.PaymentPatch) (*billing.Payment, error) {
	var out billing.Payment
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/payments/%d", id), nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeletePayment(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/payments/%d", id), nil, nil, nil)
}

func (c *Client) GetPayment(ctx context.Context, id int64) (*billing.Payment, error) {
	var out billing.Payment
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/payments/%d", id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListPayments(ctx context.Context, q PaymentQuery) (*billing.ListResult, error) {
	v := pageQuery(q.Skip, q.Limit)
	if q.PatientID > 0 {
		v.Set("patient_id", strconv.FormatInt(q.PatientID, 10))
	}
	setDate(v, "date_from", q.From)
	setDate(v, "date_to", q.To)
	if q.Method != "" {
		v.Set("payment_method", string(q.Method))
	}
	var out billing.ListResult
	if err := c.do(ctx, http.MethodGet, "/payments", v, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetStatistics(ctx context.Context, from, to *calendar.Date) (*billing.Statistics, error) {
	v := url.Values{}
	setDate(v, "date_from", from)
	setDate(v, "date_to", to)
	var out billing.Statistics
	if err := c.do(ctx, http.MethodGet, "/payments/statistics/summary", v, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AppointmentSummary returns dashboard counters for the given day, or for
// today on the server when date is nil.
func (c *Client) AppointmentSummary(ctx context.Context, date *calendar.Date) (*scheduling.Summary, error) {
	v := url.Values{}
	setDate(v, "date", date)
	var out scheduling.Summary
	if err := c.do(ctx, http.MethodGet, "/appointments/summary", v, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
