package workflow

import (
	"context"
	"errors"
	"sync"

	"github.com/therapy/therapy/internal/client"
	"github.com/therapy/therapy/internal/domain/billing"
	"github.com/therapy/therapy/internal/domain/clinical"
	"github.com/therapy/therapy/internal/domain/scheduling"
	"github.com/therapy/therapy/pkg/calendar"
	"github.com/therapy/therapy/pkg/money"
)

var errStoreDown = errors.New("connection refused")

// fakeStore stands in for the REST client.
type fakeStore struct {
	mu sync.Mutex

	appointments []scheduling.Appointment
	unpaid       []int64
	listErr      error
	unpaidErr    error

	created []billing.CreateInput
	updated map[int64]billing.PaymentPatch
	payErr  error
	// gate, when set, blocks payment calls until closed; entered is
	// signalled first.
	gate    chan struct{}
	entered chan struct{}

	notes       map[int64]*clinical.SessionNote
	nextNoteID  int64
	deleted     []int64
	apptUpdates []scheduling.AppointmentPatch
	linkErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		updated: map[int64]billing.PaymentPatch{},
		notes:   map[int64]*clinical.SessionNote{},
	}
}

func priced(id, patientID int64, price string) scheduling.Appointment {
	a := scheduling.Appointment{
		ID:        id,
		PatientID: patientID,
		Date:      calendar.MustParseDate("2024-03-04"),
		StartTime: calendar.MustParseClock("10:00:00"),
		EndTime:   calendar.MustParseClock("11:00:00"),
	}
	if price != "" {
		a.Price = money.MustParsePrice(price)
	}
	return a
}

func (s *fakeStore) ListAppointments(_ context.Context, q client.AppointmentQuery) ([]scheduling.Appointment, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.appointments, nil
}

func (s *fakeStore) ListUnpaidAppointmentIDs(_ context.Context, _ int64) ([]int64, error) {
	if s.unpaidErr != nil {
		return nil, s.unpaidErr
	}
	return s.unpaid, nil
}

func (s *fakeStore) wait() {
	if s.gate == nil {
		return
	}
	s.entered <- struct{}{}
	<-s.gate
}

func (s *fakeStore) CreatePayment(_ context.Context, in billing.CreateInput) (*billing.Payment, error) {
	s.wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.payErr != nil {
		return nil, s.payErr
	}
	s.created = append(s.created, in)
	p := &billing.Payment{ID: int64(len(s.created)), PatientID: in.PatientID, Amount: in.Amount, PaymentMethod: in.PaymentMethod}
	for _, id := range in.AppointmentIDs {
		p.Appointments = append(p.Appointments, billing.AppointmentSummary{ID: id, PatientID: in.PatientID, IsPaid: true})
	}
	return p, nil
}

func (s *fakeStore) UpdatePayment(_ context.Context, id int64, in billing.PaymentPatch) (*billing.Payment, error) {
	s.wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.payErr != nil {
		return nil, s.payErr
	}
	s.updated[id] = in
	return &billing.Payment{ID: id, Amount: in.Amount.Value}, nil
}

func (s *fakeStore) CreateSessionNote(_ context.Context, patientID int64, content string) (*clinical.SessionNote, error) {
	s.nextNoteID++
	n := &clinical.SessionNote{ID: s.nextNoteID, PatientID: patientID, Content: content}
	s.notes[n.ID] = n
	return n, nil
}

func (s *fakeStore) UpdateSessionNote(_ context.Context, id int64, content string) (*clinical.SessionNote, error) {
	n, ok := s.notes[id]
	if !ok {
		return nil, &client.APIError{Status: 404, Detail: "session note not found"}
	}
	n.Content = content
	return n, nil
}

func (s *fakeStore) DeleteSessionNote(_ context.Context, id int64) error {
	delete(s.notes, id)
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *fakeStore) UpdateAppointment(_ context.Context, id int64, in scheduling.AppointmentPatch) (*scheduling.Appointment, error) {
	if s.linkErr != nil {
		return nil, s.linkErr
	}
	s.apptUpdates = append(s.apptUpdates, in)
	return &scheduling.Appointment{ID: id, SessionNoteID: in.SessionNoteID.Value}, nil
}
