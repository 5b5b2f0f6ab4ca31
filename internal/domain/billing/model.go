package billing

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/therapy/therapy/pkg/calendar"
	"github.com/therapy/therapy/pkg/money"
	"github.com/therapy/therapy/pkg/patch"
)

var (
	ErrNotFound           = errors.New("payment not found")
	ErrPatientNotFound    = errors.New("patient not found")
	ErrForeignAppointment = errors.New("some appointments do not exist or do not belong to this patient")
)

// AlreadyPaidError lists appointments that another payment already covers.
type AlreadyPaidError struct {
	IDs []int64
}

func (e *AlreadyPaidError) Error() string {
	ids := make([]string, len(e.IDs))
	for i, id := range e.IDs {
		ids[i] = fmt.Sprint(id)
	}
	return "appointments already paid: " + strings.Join(ids, ", ")
}

// Method is how a payment was made.
type Method string

const (
	MethodCash     Method = "CASH"
	MethodTransfer Method = "TRANSFER"
)

func (m Method) Valid() bool {
	return m == MethodCash || m == MethodTransfer
}

func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToUpper(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("invalid payment_method %q: must be CASH or TRANSFER", s)
	}
	return m, nil
}

// AppointmentSummary is the view of an appointment embedded in a payment.
type AppointmentSummary struct {
	ID        int64          `json:"id"`
	PatientID int64          `json:"patient_id"`
	Date      calendar.Date  `json:"date"`
	StartTime calendar.Clock `json:"start_time"`
	EndTime   calendar.Clock `json:"end_time"`
	Price     money.Price    `json:"price"`
	IsPaid    bool           `json:"is_paid"`
}

type Payment struct {
	ID            int64                `json:"id"`
	PatientID     int64                `json:"patient_id"`
	Amount        decimal.Decimal      `json:"amount"`
	PaymentDate   time.Time            `json:"payment_date"`
	PaymentMethod Method               `json:"payment_method"`
	Description   *string              `json:"description"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     *time.Time           `json:"updated_at"`
	Appointments  []AppointmentSummary `json:"appointments"`

	PatientName  string  `json:"patient_name,omitempty"`
	PatientEmail *string `json:"patient_email,omitempty"`
	PatientPhone *string `json:"patient_phone,omitempty"`
}

// AppointmentIDs returns the ids of the covered appointments.
func (p *Payment) AppointmentIDs() []int64 {
	ids := make([]int64, len(p.Appointments))
	for i, a := range p.Appointments {
		ids[i] = a.ID
	}
	return ids
}

// CreateInput is the body of a new payment.
type CreateInput struct {
	PatientID      int64           `json:"patient_id"`
	Amount         decimal.Decimal `json:"amount"`
	PaymentMethod  Method          `json:"payment_method"`
	AppointmentIDs []int64         `json:"appointment_ids"`
	PaymentDate    *time.Time      `json:"payment_date,omitempty"`
	Description    *string         `json:"description,omitempty"`
}

// PaymentPatch is a partial update. The covered appointments cannot be
// changed; delete and re-record the payment instead.
type PaymentPatch struct {
	Amount        patch.Field[decimal.Decimal] `json:"amount,omitzero"`
	PaymentMethod patch.Field[Method]          `json:"payment_method,omitzero"`
	Description   patch.Field[*string]         `json:"description,omitzero"`
	PaymentDate   patch.Field[time.Time]       `json:"payment_date,omitzero"`
}

type ListFilter struct {
	PatientID int64
	From      *calendar.Date
	To        *calendar.Date
	Method    Method
	Skip      int
	Limit     int
}

type ListResult struct {
	Total    int        `json:"total"`
	Payments []*Payment `json:"payments"`
}

type Statistics struct {
	TotalPayments  int             `json:"total_payments"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	CashAmount     decimal.Decimal `json:"cash_amount"`
	TransferAmount decimal.Decimal `json:"transfer_amount"`
	CashCount      int             `json:"cash_count"`
	TransferCount  int             `json:"transfer_count"`
}

func validAmount(d decimal.Decimal) error {
	if !d.Equal(d.Round(2)) {
		return fmt.Errorf("amount must have at most 2 decimal places")
	}
	return nil
}
