package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/therapy/therapy/pkg/calendar"
)

var apptColumns = []string{"id", "patient_id", "date", "start_time", "end_time", "notes", "price", "is_paid", "session_note_id", "created_at"}

func TestAppointmentRepo_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery("SELECT id, patient_id, date, start_time, end_time").
		WithArgs(int64(4)).
		WillReturnRows(pgxmock.NewRows(apptColumns).
			AddRow(int64(4), int64(1), "2024-03-04", "10:00:00", "11:00:00", nil, "150.00", true, nil, time.Now()))

	a, err := NewAppointmentRepo(mock).GetByID(context.Background(), 4)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if a.Date.String() != "2024-03-04" || a.StartTime.String() != "10:00:00" || !a.IsPaid {
		t.Errorf("unexpected appointment %+v", a)
	}
	if a.Price.String() != "150.00" {
		t.Errorf("expected price 150.00, got %s", a.Price)
	}
}

func TestAppointmentRepo_GetByID_NullPriceIsUnset(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery("SELECT id, patient_id").
		WithArgs(int64(4)).
		WillReturnRows(pgxmock.NewRows(apptColumns).
			AddRow(int64(4), int64(1), "2024-03-04", "10:00:00", "11:00:00", nil, nil, false, nil, time.Now()))

	a, err := NewAppointmentRepo(mock).GetByID(context.Background(), 4)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if a.Price.IsSet() {
		t.Error("NULL price must scan as unset")
	}
}

func TestAppointmentRepo_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery("SELECT id, patient_id").WithArgs(int64(4)).WillReturnError(pgx.ErrNoRows)
	if _, err := NewAppointmentRepo(mock).GetByID(context.Background(), 4); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAppointmentRepo_FindOverlap(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	d := calendar.MustParseDate("2024-03-04")
	start, end := calendar.MustParseClock("10:00"), calendar.MustParseClock("11:00")

	mock.ExpectQuery("SELECT id FROM appointments").
		WithArgs(d, start, end, int64(0)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(8)))
	mock.ExpectQuery("SELECT id FROM appointments").
		WithArgs(d, start, end, int64(8)).
		WillReturnError(pgx.ErrNoRows)

	repo := NewAppointmentRepo(mock)
	if id, err := repo.FindOverlap(context.Background(), d, start, end, 0); err != nil || id != 8 {
		t.Errorf("expected overlap with 8, got %d (%v)", id, err)
	}
	if id, err := repo.FindOverlap(context.Background(), d, start, end, 8); err != nil || id != 0 {
		t.Errorf("expected no overlap excluding itself, got %d (%v)", id, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAppointmentRepo_ListBuildsFilters(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	from := calendar.MustParseDate("2024-03-04")
	mock.ExpectQuery(`WHERE patient_id = \$1 AND date >= \$2 ORDER BY date, start_time, id LIMIT \$3`).
		WithArgs(int64(3), from, 10).
		WillReturnRows(pgxmock.NewRows(apptColumns))

	out, err := NewAppointmentRepo(mock).List(context.Background(), ListFilter{PatientID: 3, From: &from, Limit: 10})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if out == nil || len(out) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", out)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAppointmentRepo_SetSessionNote(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec("UPDATE appointments SET session_note_id").
		WithArgs(int64(4), int64(9)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := NewAppointmentRepo(mock).SetSessionNote(context.Background(), 4, 9); err != nil {
		t.Errorf("SetSessionNote: %v", err)
	}
}

func TestAppointmentRepo_Delete_LinkedToPayment(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec("DELETE FROM appointments").
		WithArgs(int64(7)).
		WillReturnError(&pgconn.PgError{Code: "23503"})
	mock.ExpectExec("DELETE FROM appointments").
		WithArgs(int64(8)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	repo := NewAppointmentRepo(mock)
	if err := repo.Delete(context.Background(), 7); !errors.Is(err, ErrAppointmentPaid) {
		t.Errorf("expected ErrAppointmentPaid, got %v", err)
	}
	if err := repo.Delete(context.Background(), 8); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
