package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/therapy/therapy/internal/domain/clinical"
	"github.com/therapy/therapy/internal/domain/scheduling"
	"github.com/therapy/therapy/pkg/patch"
)

var (
	ErrNoteLinkFailed = errors.New("note saved, but linking it to the appointment failed")
	ErrEmptyNote      = errors.New("note content is required")
)

type NoteStore interface {
	CreateSessionNote(ctx context.Context, patientID int64, content string) (*clinical.SessionNote, error)
	UpdateSessionNote(ctx context.Context, id int64, content string) (*clinical.SessionNote, error)
	DeleteSessionNote(ctx context.Context, id int64) error
}

type AppointmentUpdater interface {
	UpdateAppointment(ctx context.Context, id int64, in scheduling.AppointmentPatch) (*scheduling.Appointment, error)
}

// LinkError reports a note that was created but could not be attached to
// its appointment. The note is kept.
type LinkError struct {
	NoteID        int64
	AppointmentID int64
	Err           error

	notes NoteStore
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("%v (note %d, appointment %d): %v", ErrNoteLinkFailed, e.NoteID, e.AppointmentID, e.Err)
}

func (e *LinkError) Unwrap() []error {
	return []error{ErrNoteLinkFailed, e.Err}
}

// Compensate deletes the orphaned note. It is never called automatically.
func (e *LinkError) Compensate(ctx context.Context) error {
	if e.notes == nil {
		return errors.New("no note store to compensate with")
	}
	if err := e.notes.DeleteSessionNote(ctx, e.NoteID); err != nil {
		return fmt.Errorf("delete orphan note %d: %w", e.NoteID, err)
	}
	return nil
}

// NoteLinker writes an appointment's session note with two separate calls.
// Use the appointment session-note endpoint when a single transaction is
// needed.
type NoteLinker struct {
	notes  NoteStore
	appts  AppointmentUpdater
	logger zerolog.Logger
}

func NewNoteLinker(notes NoteStore, appts AppointmentUpdater, logger zerolog.Logger) *NoteLinker {
	return &NoteLinker{notes: notes, appts: appts, logger: logger}
}

// Record updates the appointment's linked note in place, or creates a note
// and points the appointment at it. A failed link returns *LinkError.
func (l *NoteLinker) Record(ctx context.Context, appt scheduling.Appointment, content string) (*clinical.SessionNote, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyNote
	}

	if appt.SessionNoteID != nil {
		note, err := l.notes.UpdateSessionNote(ctx, *appt.SessionNoteID, content)
		if err != nil {
			return nil, fmt.Errorf("update session note: %w", err)
		}
		return note, nil
	}

	note, err := l.notes.CreateSessionNote(ctx, appt.PatientID, content)
	if err != nil {
		return nil, fmt.Errorf("create session note: %w", err)
	}
	noteID := note.ID
	if _, err := l.appts.UpdateAppointment(ctx, appt.ID, scheduling.AppointmentPatch{
		SessionNoteID: patch.Some(&noteID),
	}); err != nil {
		l.logger.Warn().Err(err).
			Int64("note_id", note.ID).
			Int64("appointment_id", appt.ID).
			Msg("session note left unlinked")
		return note, &LinkError{NoteID: note.ID, AppointmentID: appt.ID, Err: err, notes: l.notes}
	}
	return note, nil
}
