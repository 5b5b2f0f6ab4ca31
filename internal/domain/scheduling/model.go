package scheduling

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/therapy/therapy/pkg/calendar"
	"github.com/therapy/therapy/pkg/money"
)

var (
	ErrNotFound        = errors.New("appointment not found")
	ErrPatientNotFound = errors.New("patient not found")
	ErrOverlap         = errors.New("appointment overlaps another appointment at this time")
	ErrInvalidRange    = errors.New("end_time must be after start_time")
	// ErrAppointmentPaid guards changes that would break the payment
	// covering an appointment.
	ErrAppointmentPaid = errors.New("appointment is paid; delete the payment first")
)

type Appointment struct {
	ID            int64          `db:"id" json:"id"`
	PatientID     int64          `db:"patient_id" json:"patient_id"`
	Date          calendar.Date  `db:"date" json:"date"`
	StartTime     calendar.Clock `db:"start_time" json:"start_time"`
	EndTime       calendar.Clock `db:"end_time" json:"end_time"`
	Notes         *string        `db:"notes" json:"notes"`
	Price         money.Price    `db:"price" json:"price"`
	IsPaid        bool           `db:"is_paid" json:"is_paid"`
	SessionNoteID *int64         `db:"session_note_id" json:"session_note_id"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
}

// Overlaps reports whether a and o share any time on the same day.
// Touching ends do not overlap.
func (a *Appointment) Overlaps(o *Appointment) bool {
	if a.Date != o.Date {
		return false
	}
	return a.StartTime.Before(o.EndTime) && a.EndTime.After(o.StartTime)
}

// ListFilter narrows an appointment listing. Zero members are ignored; a
// zero Limit returns every match.
type ListFilter struct {
	PatientID int64
	From      *calendar.Date
	To        *calendar.Date
	Skip      int
	Limit     int
}

// Summary is the dashboard view of appointments around a date.
type Summary struct {
	Date     calendar.Date   `json:"date"`
	Today    int             `json:"today"`
	Week     int             `json:"week"`
	Month    int             `json:"month"`
	Paid     int             `json:"paid"`
	Unpaid   int             `json:"unpaid"`
	Unpriced int             `json:"unpriced"`
	Revenue  decimal.Decimal `json:"revenue"`
}

// Slots lists the bookable start and end times of a day.
type Slots struct {
	StartOptions []calendar.Clock `json:"start_options"`
	EndOptions   []calendar.Clock `json:"end_options"`
	DefaultEnd   *calendar.Clock  `json:"default_end"`
}
