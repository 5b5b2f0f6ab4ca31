package clinical

import "context"

type NoteRepository interface {
	Create(ctx context.Context, n *SessionNote) error
	GetByID(ctx context.Context, id int64) (*SessionNote, error)
	UpdateContent(ctx context.Context, id int64, content string) (*SessionNote, error)
	Delete(ctx context.Context, id int64) error
	// List returns notes newest first; patientID 0 lists every patient.
	List(ctx context.Context, patientID int64, skip, limit int) ([]*SessionNote, error)
}

// PatientChecker reports whether a patient exists.
type PatientChecker interface {
	PatientExists(ctx context.Context, id int64) (bool, error)
}
