package billing

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/therapy/therapy/pkg/money"
)

// Reconciliation failures, reported in the order Reconcile checks them.
var (
	ErrNoPatientSelected            = errors.New("no patient selected")
	ErrNoAppointmentsSelected       = errors.New("select at least one appointment")
	ErrInvalidAmount                = errors.New("amount must be greater than zero")
	ErrAmountBelowAppointmentsTotal = errors.New("amount is below the total of the selected appointments")

	// ErrMissingPrice blocks a quick payment for an appointment with no
	// price or a zero price.
	ErrMissingPrice = errors.New("appointment has no price; edit the appointment and set a price above zero before recording a payment")
)

// OverpaymentRatio is the multiple of the appointment total above which an
// amount needs explicit confirmation.
var OverpaymentRatio = decimal.New(12, -1)

// Line is one selected appointment and its price.
type Line struct {
	AppointmentID int64       `json:"appointment_id"`
	Price         money.Price `json:"price"`
}

// DeriveAmount sums the set prices of lines. Unpriced lines add nothing.
func DeriveAmount(lines []Line) decimal.Decimal {
	total, _ := sumLines(lines)
	return total
}

func sumLines(lines []Line) (decimal.Decimal, int) {
	prices := make([]money.Price, len(lines))
	for i, l := range lines {
		prices[i] = l.Price
	}
	total, unset := money.Sum(prices...)
	return money.Round(total), unset
}

// Candidate is a payment about to be submitted.
type Candidate struct {
	PatientID int64
	Amount    decimal.Decimal
	Lines     []Line
}

// Verdict describes a candidate that passed the blocking checks.
type Verdict struct {
	Total    decimal.Decimal `json:"total"`
	Unpriced int             `json:"unpriced"`
	// NeedsConfirmation is set when the amount exceeds the total by more
	// than OverpaymentRatio. It is a prompt, not an error.
	NeedsConfirmation bool `json:"needs_confirmation"`
}

// Reconcile runs the blocking checks in order and returns the first failure.
func Reconcile(c Candidate) (Verdict, error) {
	if c.PatientID <= 0 {
		return Verdict{}, ErrNoPatientSelected
	}
	if len(c.Lines) == 0 {
		return Verdict{}, ErrNoAppointmentsSelected
	}
	if !c.Amount.IsPositive() {
		return Verdict{}, ErrInvalidAmount
	}
	total, unpriced := sumLines(c.Lines)
	v := Verdict{Total: total, Unpriced: unpriced}
	if money.Less(c.Amount, total) {
		return v, ErrAmountBelowAppointmentsTotal
	}
	v.NeedsConfirmation = money.Greater(c.Amount, total.Mul(OverpaymentRatio))
	return v, nil
}

// QuickPay is the amount for paying a single appointment directly: exactly
// its price, which must be set and above zero.
func QuickPay(price money.Price) (decimal.Decimal, error) {
	p, ok := price.Get()
	if !ok || !p.IsPositive() {
		return decimal.Zero, ErrMissingPrice
	}
	return p, nil
}

// RejectionReason labels a reconciliation error for metrics.
func RejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrNoPatientSelected):
		return "no_patient"
	case errors.Is(err, ErrNoAppointmentsSelected):
		return "no_appointments"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrAmountBelowAppointmentsTotal):
		return "below_total"
	case errors.Is(err, ErrMissingPrice):
		return "missing_price"
	}
	return "other"
}
