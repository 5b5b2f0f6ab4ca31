package billing

import (
	"context"

	"github.com/therapy/therapy/pkg/calendar"
)

type PaymentRepository interface {
	// Create inserts p, links it to appointmentIDs and marks them paid.
	Create(ctx context.Context, p *Payment, appointmentIDs []int64) error
	GetByID(ctx context.Context, id int64) (*Payment, error)
	Update(ctx context.Context, p *Payment) error
	// Delete removes the payment and returns the appointments it reverted
	// to unpaid.
	Delete(ctx context.Context, id int64) ([]int64, error)
	List(ctx context.Context, f ListFilter) ([]*Payment, int, error)
	// LockAppointments loads the given appointments, locking their rows for
	// the rest of the transaction.
	LockAppointments(ctx context.Context, ids []int64) ([]AppointmentSummary, error)
	UnpaidAppointmentIDs(ctx context.Context, patientID int64) ([]int64, error)
	Statistics(ctx context.Context, from, to *calendar.Date) (*Statistics, error)
}

type PatientChecker interface {
	PatientExists(ctx context.Context, id int64) (bool, error)
}
