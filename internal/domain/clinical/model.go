package clinical

import (
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("session note not found")
	ErrPatientNotFound = errors.New("patient not found")
)

// SessionNote is free text about one session. Appointments point at notes;
// a note does not know which appointment references it.
type SessionNote struct {
	ID        int64      `db:"id" json:"id"`
	PatientID int64      `db:"patient_id" json:"patient_id"`
	Content   string     `db:"content" json:"content"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}
