package billing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/therapy/therapy/internal/platform/cache"
	"github.com/therapy/therapy/internal/platform/db"
	"github.com/therapy/therapy/internal/platform/metrics"
	"github.com/therapy/therapy/pkg/calendar"
)

type Service struct {
	payments PaymentRepository
	patients PatientChecker
	tx       db.Beginner
	cache    cache.Cache
	metrics  *metrics.BillingMetrics
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService wires the payment service. A nil cache disables statistics
// caching.
func NewService(payments PaymentRepository, patients PatientChecker, tx db.Beginner, c cache.Cache, m *metrics.BillingMetrics, logger zerolog.Logger) *Service {
	if c == nil {
		c = cache.Nop{}
	}
	return &Service{
		payments: payments,
		patients: patients,
		tx:       tx,
		cache:    c,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *Service) requirePatient(ctx context.Context, id int64) error {
	ok, err := s.patients.PatientExists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPatientNotFound
	}
	return nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// CreatePayment records a payment for a patient's unpaid appointments. The
// appointments are locked, checked and marked paid in the same transaction
// as the insert.
func (s *Service) CreatePayment(ctx context.Context, in CreateInput) (*Payment, error) {
	if in.PatientID <= 0 {
		return nil, s.reject(ErrNoPatientSelected)
	}
	if err := s.requirePatient(ctx, in.PatientID); err != nil {
		return nil, err
	}
	if !in.PaymentMethod.Valid() {
		return nil, fmt.Errorf("invalid payment_method %q: must be CASH or TRANSFER", in.PaymentMethod)
	}
	if err := validAmount(in.Amount); err != nil {
		return nil, err
	}
	ids := dedupe(in.AppointmentIDs)

	p := &Payment{
		PatientID:     in.PatientID,
		Amount:        in.Amount,
		PaymentMethod: in.PaymentMethod,
		Description:   normalizeText(in.Description),
	}
	if in.PaymentDate != nil {
		p.PaymentDate = *in.PaymentDate
	}

	err := db.WithTx(ctx, s.tx, func(ctx context.Context) error {
		var appts []AppointmentSummary
		if len(ids) > 0 {
			var err error
			if appts, err = s.payments.LockAppointments(ctx, ids); err != nil {
				return err
			}
		}
		if len(appts) != len(ids) {
			return ErrForeignAppointment
		}
		lines := make([]Line, 0, len(appts))
		var paid []int64
		for _, a := range appts {
			if a.PatientID != in.PatientID {
				return ErrForeignAppointment
			}
			if a.IsPaid {
				paid = append(paid, a.ID)
			}
			lines = append(lines, Line{AppointmentID: a.ID, Price: a.Price})
		}
		if len(paid) > 0 {
			sort.Slice(paid, func(i, j int) bool { return paid[i] < paid[j] })
			return &AlreadyPaidError{IDs: paid}
		}
		if _, err := Reconcile(Candidate{PatientID: in.PatientID, Amount: in.Amount, Lines: lines}); err != nil {
			return s.reject(err)
		}
		if err := s.payments.Create(ctx, p, ids); err != nil {
			return err
		}
		p.Appointments = appts
		for i := range p.Appointments {
			p.Appointments[i].IsPaid = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	f, _ := p.Amount.Float64()
	s.metrics.ObservePayment("create", string(p.PaymentMethod), f)
	s.logger.Info().
		Int64("payment_id", p.ID).
		Int64("patient_id", p.PatientID).
		Str("amount", p.Amount.StringFixed(2)).
		Ints64("appointment_ids", ids).
		Msg("payment recorded")
	return p, nil
}

func (s *Service) reject(err error) error {
	s.metrics.ObserveRejection(RejectionReason(err))
	return err
}

func (s *Service) GetPayment(ctx context.Context, id int64) (*Payment, error) {
	return s.payments.GetByID(ctx, id)
}

// UpdatePayment applies a partial update. A new amount must still cover the
// linked appointments.
func (s *Service) UpdatePayment(ctx context.Context, id int64, in PaymentPatch) (*Payment, error) {
	var p *Payment
	err := db.WithTx(ctx, s.tx, func(ctx context.Context) error {
		var err error
		if p, err = s.payments.GetByID(ctx, id); err != nil {
			return err
		}
		if in.PaymentMethod.Set && !in.PaymentMethod.Value.Valid() {
			return fmt.Errorf("invalid payment_method %q: must be CASH or TRANSFER", in.PaymentMethod.Value)
		}
		if in.PaymentDate.Set && in.PaymentDate.Value.IsZero() {
			return fmt.Errorf("payment_date must not be empty")
		}
		if in.Amount.Apply(&p.Amount) {
			if err := validAmount(p.Amount); err != nil {
				return err
			}
			lines := make([]Line, len(p.Appointments))
			for i, a := range p.Appointments {
				lines[i] = Line{AppointmentID: a.ID, Price: a.Price}
			}
			if _, err := Reconcile(Candidate{PatientID: p.PatientID, Amount: p.Amount, Lines: lines}); err != nil {
				return s.reject(err)
			}
		}
		in.PaymentMethod.Apply(&p.PaymentMethod)
		in.PaymentDate.Apply(&p.PaymentDate)
		if in.Description.Apply(&p.Description) {
			p.Description = normalizeText(p.Description)
		}
		return s.payments.Update(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	s.metrics.ObservePayment("update", string(p.PaymentMethod), 0)
	return p, nil
}

// DeletePayment removes a payment; its appointments become unpaid again.
func (s *Service) DeletePayment(ctx context.Context, id int64) error {
	var reverted []int64
	err := db.WithTx(ctx, s.tx, func(ctx context.Context) error {
		var err error
		reverted, err = s.payments.Delete(ctx, id)
		return err
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx)
	s.metrics.ObservePayment("delete", "", 0)
	s.logger.Info().Int64("payment_id", id).Ints64("reverted_appointment_ids", reverted).Msg("payment deleted")
	return nil
}

func (s *Service) ListPayments(ctx context.Context, f ListFilter) (*ListResult, error) {
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return nil, fmt.Errorf("date_from must not be after date_to")
	}
	if f.Method != "" && !f.Method.Valid() {
		return nil, fmt.Errorf("invalid payment_method %q: must be CASH or TRANSFER", f.Method)
	}
	payments, total, err := s.payments.List(ctx, f)
	if err != nil {
		return nil, err
	}
	return &ListResult{Total: total, Payments: payments}, nil
}

// UnpaidAppointmentIDs lists a patient's unpaid appointments by date and
// start time.
func (s *Service) UnpaidAppointmentIDs(ctx context.Context, patientID int64) ([]int64, error) {
	if err := s.requirePatient(ctx, patientID); err != nil {
		return nil, err
	}
	return s.payments.UnpaidAppointmentIDs(ctx, patientID)
}

// Statistics totals payments in the optional date range. Results are cached
// until the next payment mutation.
func (s *Service) Statistics(ctx context.Context, from, to *calendar.Date) (*Statistics, error) {
	if from != nil && to != nil && from.After(*to) {
		return nil, fmt.Errorf("date_from must not be after date_to")
	}
	key := "stats:" + dateKey(from) + ":" + dateKey(to)

	var cached Statistics
	gen, hit, cacheErr := s.cache.Get(ctx, key, &cached)
	if cacheErr != nil {
		s.logger.Warn().Err(cacheErr).Msg("statistics cache read failed")
	}
	s.metrics.ObserveCache(hit)
	if hit {
		return &cached, nil
	}

	stats, err := s.payments.Statistics(ctx, from, to)
	if err != nil {
		return nil, err
	}
	// Stored under the pre-query generation; a concurrent invalidation drops it.
	if cacheErr == nil {
		if err := s.cache.Set(ctx, gen, key, stats); err != nil {
			s.logger.Warn().Err(err).Msg("statistics cache write failed")
		}
	}
	return stats, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("statistics cache invalidation failed")
	}
}

func dateKey(d *calendar.Date) string {
	if d == nil {
		return "-"
	}
	return d.String()
}

func normalizeText(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}
