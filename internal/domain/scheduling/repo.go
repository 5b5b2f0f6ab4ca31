package scheduling

import (
	"context"

	"github.com/therapy/therapy/internal/domain/clinical"
	"github.com/therapy/therapy/pkg/calendar"
)

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id int64) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, f ListFilter) ([]*Appointment, error)
	// FindOverlap returns the id of an appointment on date that overlaps
	// [start, end), ignoring excludeID. It returns 0 when the slot is free.
	FindOverlap(ctx context.Context, date calendar.Date, start, end calendar.Clock, excludeID int64) (int64, error)
	SetSessionNote(ctx context.Context, id, noteID int64) error
}

// NoteWriter is the part of the session-note store the linkage needs.
type NoteWriter interface {
	Create(ctx context.Context, n *clinical.SessionNote) error
	UpdateContent(ctx context.Context, id int64, content string) (*clinical.SessionNote, error)
}

type PatientChecker interface {
	PatientExists(ctx context.Context, id int64) (bool, error)
}
