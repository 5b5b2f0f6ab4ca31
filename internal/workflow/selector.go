package workflow

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/therapy/therapy/internal/client"
	"github.com/therapy/therapy/internal/domain/billing"
	"github.com/therapy/therapy/internal/domain/scheduling"
)

// selectorPageSize is the largest page the appointments endpoint serves.
const selectorPageSize = 500

type AppointmentLister interface {
	ListAppointments(ctx context.Context, q client.AppointmentQuery) ([]scheduling.Appointment, error)
}

type UnpaidLister interface {
	ListUnpaidAppointmentIDs(ctx context.Context, patientID int64) ([]int64, error)
}

// Selection is the set of a patient's appointments that no payment covers
// yet, in store order.
type Selection struct {
	PatientID    int64
	Appointments []scheduling.Appointment
	// Unpriced counts appointments without a price. They add nothing to a
	// derived amount.
	Unpriced int
}

// Lines converts the selection into reconciliation lines.
func (s Selection) Lines() []billing.Line {
	lines := make([]billing.Line, len(s.Appointments))
	for i, a := range s.Appointments {
		lines[i] = billing.Line{AppointmentID: a.ID, Price: a.Price}
	}
	return lines
}

func (s Selection) Empty() bool {
	return len(s.Appointments) == 0
}

type Selector struct {
	appts  AppointmentLister
	unpaid UnpaidLister
	logger zerolog.Logger
}

func NewSelector(appts AppointmentLister, unpaid UnpaidLister, logger zerolog.Logger) *Selector {
	return &Selector{appts: appts, unpaid: unpaid, logger: logger}
}

// Unpaid loads the patient's unpaid appointments. Both reads run
// concurrently and must succeed. On failure the selection is empty and the
// error is returned so the caller can report it and carry on.
func (s *Selector) Unpaid(ctx context.Context, patientID int64) (Selection, error) {
	sel := Selection{PatientID: patientID}
	if patientID == 0 {
		return sel, nil
	}

	var (
		appts  []scheduling.Appointment
		unpaid []int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		appts, err = s.appts.ListAppointments(gctx, client.AppointmentQuery{PatientID: patientID, Limit: selectorPageSize})
		if err != nil {
			return fmt.Errorf("list appointments: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		unpaid, err = s.unpaid.ListUnpaidAppointmentIDs(gctx, patientID)
		if err != nil {
			return fmt.Errorf("list unpaid appointments: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		s.logger.Warn().Err(err).Int64("patient_id", patientID).Msg("unpaid selection unavailable")
		return sel, err
	}

	open := make(map[int64]struct{}, len(unpaid))
	for _, id := range unpaid {
		open[id] = struct{}{}
	}
	for _, a := range appts {
		if a.PatientID != patientID {
			continue
		}
		if _, ok := open[a.ID]; !ok {
			continue
		}
		sel.Appointments = append(sel.Appointments, a)
		if !a.Price.IsSet() {
			sel.Unpriced++
		}
	}
	return sel, nil
}
