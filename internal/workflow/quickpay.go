package workflow

import (
	"context"
	"errors"

	"github.com/therapy/therapy/internal/domain/billing"
	"github.com/therapy/therapy/internal/domain/scheduling"
)

var ErrAppointmentPaid = errors.New("appointment is already paid")

type PaymentCreator interface {
	CreatePayment(ctx context.Context, in billing.CreateInput) (*billing.Payment, error)
}

// QuickPay records a payment for one appointment at exactly its price. An
// appointment without a positive price is refused before any request is made.
func QuickPay(ctx context.Context, store PaymentCreator, appt scheduling.Appointment, method billing.Method) (*billing.Payment, error) {
	if appt.IsPaid {
		return nil, ErrAppointmentPaid
	}
	amount, err := billing.QuickPay(appt.Price)
	if err != nil {
		return nil, err
	}
	if !method.Valid() {
		return nil, ErrInvalidPaymentMethod
	}
	return store.CreatePayment(ctx, billing.CreateInput{
		PatientID:      appt.PatientID,
		Amount:         amount,
		PaymentMethod:  method,
		AppointmentIDs: []int64{appt.ID},
	})
}
