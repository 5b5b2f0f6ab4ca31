package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/therapy/therapy/internal/domain/clinical"
	"github.com/therapy/therapy/internal/platform/db"
	"github.com/therapy/therapy/internal/platform/metrics"
	"github.com/therapy/therapy/pkg/calendar"
	"github.com/therapy/therapy/pkg/money"
	"github.com/therapy/therapy/pkg/patch"
)

type Service struct {
	appts    AppointmentRepository
	notes    NoteWriter
	patients PatientChecker
	tx       db.Beginner
	hours    calendar.BusinessHours
	metrics  *metrics.BillingMetrics
	logger   zerolog.Logger
	today    func() calendar.Date
}

func NewService(appts AppointmentRepository, notes NoteWriter, patients PatientChecker, tx db.Beginner, m *metrics.BillingMetrics, logger zerolog.Logger) *Service {
	return &Service{
		appts:    appts,
		notes:    notes,
		patients: patients,
		tx:       tx,
		hours:    calendar.DefaultBusinessHours,
		metrics:  m,
		logger:   logger,
		today:    calendar.Today,
	}
}

// AppointmentPatch is a partial update. is_paid is not editable; it follows
// the payments that cover the appointment.
type AppointmentPatch struct {
	PatientID     patch.Field[int64]          `json:"patient_id,omitzero"`
	Date          patch.Field[calendar.Date]  `json:"date,omitzero"`
	StartTime     patch.Field[calendar.Clock] `json:"start_time,omitzero"`
	EndTime       patch.Field[calendar.Clock] `json:"end_time,omitzero"`
	Notes         patch.Field[*string]        `json:"notes,omitzero"`
	Price         patch.Field[money.Price]    `json:"price,omitzero"`
	SessionNoteID patch.Field[*int64]         `json:"session_note_id,omitzero"`
}

func (s *Service) validate(ctx context.Context, a *Appointment) error {
	if a.PatientID <= 0 {
		return fmt.Errorf("patient_id is required")
	}
	if a.Date.IsZero() {
		return fmt.Errorf("date is required")
	}
	if !a.EndTime.After(a.StartTime) {
		return ErrInvalidRange
	}
	if p, ok := a.Price.Get(); ok && p.IsNegative() {
		return fmt.Errorf("price must not be negative")
	}
	if a.Notes != nil && strings.TrimSpace(*a.Notes) == "" {
		a.Notes = nil
	}
	ok, err := s.patients.PatientExists(ctx, a.PatientID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPatientNotFound
	}
	other, err := s.appts.FindOverlap(ctx, a.Date, a.StartTime, a.EndTime, a.ID)
	if err != nil {
		return err
	}
	if other != 0 {
		return fmt.Errorf("%w (appointment %d)", ErrOverlap, other)
	}
	return nil
}

func (s *Service) CreateAppointment(ctx context.Context, a *Appointment) error {
	a.ID = 0
	a.IsPaid = false
	if err := s.validate(ctx, a); err != nil {
		return err
	}
	return s.appts.Create(ctx, a)
}

func (s *Service) GetAppointment(ctx context.Context, id int64) (*Appointment, error) {
	return s.appts.GetByID(ctx, id)
}

func (s *Service) UpdateAppointment(ctx context.Context, id int64, in AppointmentPatch) (*Appointment, error) {
	a, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.IsPaid {
		if in.PatientID.Set && in.PatientID.Value != a.PatientID {
			return nil, fmt.Errorf("cannot move to another patient: %w", ErrAppointmentPaid)
		}
		if in.Price.Set && !samePrice(in.Price.Value, a.Price) {
			return nil, fmt.Errorf("cannot change the price: %w", ErrAppointmentPaid)
		}
	}
	in.PatientID.Apply(&a.PatientID)
	in.Date.Apply(&a.Date)
	in.StartTime.Apply(&a.StartTime)
	in.EndTime.Apply(&a.EndTime)
	in.Notes.Apply(&a.Notes)
	in.Price.Apply(&a.Price)
	in.SessionNoteID.Apply(&a.SessionNoteID)
	if err := s.validate(ctx, a); err != nil {
		return nil, err
	}
	if err := s.appts.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// DeleteAppointment refuses paid appointments; their payment must be
// deleted first so it never covers fewer appointments than it was taken for.
func (s *Service) DeleteAppointment(ctx context.Context, id int64) error {
	a, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if a.IsPaid {
		return ErrAppointmentPaid
	}
	return s.appts.Delete(ctx, id)
}

func samePrice(a, b money.Price) bool {
	av, aok := a.Get()
	bv, bok := b.Get()
	if aok != bok {
		return false
	}
	return !aok || av.Equal(bv)
}

func (s *Service) ListAppointments(ctx context.Context, f ListFilter) ([]*Appointment, error) {
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return nil, fmt.Errorf("date_from must not be after date_to")
	}
	return s.appts.List(ctx, f)
}

// Summary counts appointments for the day, Monday-start week and calendar
// month around date. Paid, unpaid and revenue cover the month.
func (s *Service) Summary(ctx context.Context, date calendar.Date) (*Summary, error) {
	if date.IsZero() {
		date = s.today()
	}
	week := calendar.WeekWindow(date)
	month := calendar.CalendarMonth(date)
	from, to := month.From, month.To
	if week.From.Before(from) {
		from = week.From
	}
	if week.To.After(to) {
		to = week.To
	}

	appts, err := s.appts.List(ctx, ListFilter{From: &from, To: &to})
	if err != nil {
		return nil, err
	}

	sum := &Summary{Date: date, Revenue: decimal.Zero}
	for _, a := range appts {
		if a.Date == date {
			sum.Today++
		}
		if week.Contains(a.Date) {
			sum.Week++
		}
		if !month.Contains(a.Date) {
			continue
		}
		sum.Month++
		if !a.Price.IsSet() {
			sum.Unpriced++
		}
		if a.IsPaid {
			sum.Paid++
			if p, ok := a.Price.Get(); ok {
				sum.Revenue = sum.Revenue.Add(p)
			}
		} else {
			sum.Unpaid++
		}
	}
	return sum, nil
}

// Slots returns the bookable times and, when start is given, the default end
// one appointment length later.
func (s *Service) Slots(start *calendar.Clock) Slots {
	out := Slots{
		StartOptions: s.hours.StartOptions(),
		EndOptions:   s.hours.EndOptions(),
	}
	if start != nil {
		if end, ok := s.hours.DefaultEnd(*start); ok {
			out.DefaultEnd = &end
		}
	}
	return out
}

// RecordSessionNote writes the session note of an appointment. A linked note
// is updated in place; otherwise a note is created and linked. Both writes
// share one transaction so a note is never left without its appointment.
func (s *Service) RecordSessionNote(ctx context.Context, apptID int64, content string) (*clinical.SessionNote, bool, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, false, fmt.Errorf("content is required")
	}

	var (
		note    *clinical.SessionNote
		created bool
	)
	err := db.WithTx(ctx, s.tx, func(ctx context.Context) error {
		a, err := s.appts.GetByID(ctx, apptID)
		if err != nil {
			return err
		}
		if a.SessionNoteID != nil {
			note, err = s.notes.UpdateContent(ctx, *a.SessionNoteID, content)
			return err
		}
		note = &clinical.SessionNote{PatientID: a.PatientID, Content: content}
		if err := s.notes.Create(ctx, note); err != nil {
			return err
		}
		created = true
		return s.appts.SetSessionNote(ctx, a.ID, note.ID)
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.metrics.ObserveNoteLink("failed")
			s.logger.Error().Err(err).Int64("appointment_id", apptID).Msg("session note linkage rolled back")
		}
		return nil, false, err
	}

	if created {
		s.metrics.ObserveNoteLink("created")
		s.logger.Info().Int64("appointment_id", apptID).Int64("note_id", note.ID).Msg("session note linked")
	} else {
		s.metrics.ObserveNoteLink("updated")
	}
	return note, created, nil
}
