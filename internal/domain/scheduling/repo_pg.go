package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/therapy/therapy/internal/platform/db"
	"github.com/therapy/therapy/pkg/calendar"
)

type appointmentRepoPG struct {
	pool db.Pool
}

func NewAppointmentRepo(pool db.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

const apptCols = `id, patient_id, date, start_time, end_time, notes, price, is_paid, session_note_id, created_at`

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO appointments (patient_id, date, start_time, end_time, notes, price, session_note_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, is_paid, created_at`,
		a.PatientID, a.Date, a.StartTime, a.EndTime, a.Notes, a.Price, a.SessionNoteID,
	).Scan(&a.ID, &a.IsPaid, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("create appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id int64) (*Appointment, error) {
	a, err := scanAppointment(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+apptCols+` FROM appointments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment %d: %w", id, err)
	}
	return a, nil
}

// Update writes the editable columns. is_paid belongs to payments and is
// never written here.
func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE appointments
		SET patient_id = $2, date = $3, start_time = $4, end_time = $5,
		    notes = $6, price = $7, session_note_id = $8
		WHERE id = $1`,
		a.ID, a.PatientID, a.Date, a.StartTime, a.EndTime, a.Notes, a.Price, a.SessionNoteID,
	)
	if err != nil {
		return fmt.Errorf("update appointment %d: %w", a.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *appointmentRepoPG) Delete(ctx context.Context, id int64) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		// 23503: a payment link still references the appointment.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrAppointmentPaid
		}
		return fmt.Errorf("delete appointment %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *appointmentRepoPG) List(ctx context.Context, f ListFilter) ([]*Appointment, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.PatientID > 0 {
		add("patient_id = $%d", f.PatientID)
	}
	if f.From != nil {
		add("date >= $%d", *f.From)
	}
	if f.To != nil {
		add("date <= $%d", *f.To)
	}

	query := `SELECT ` + apptCols + ` FROM appointments`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY date, start_time, id`
	if f.Skip > 0 {
		args = append(args, f.Skip)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	out := []*Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *appointmentRepoPG) FindOverlap(ctx context.Context, date calendar.Date, start, end calendar.Clock, excludeID int64) (int64, error) {
	var id int64
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT id FROM appointments
		WHERE date = $1 AND start_time < $3 AND end_time > $2 AND id <> $4
		LIMIT 1`,
		date, start, end, excludeID,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("check overlap: %w", err)
	}
	return id, nil
}

func (r *appointmentRepoPG) SetSessionNote(ctx context.Context, id, noteID int64) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE appointments SET session_note_id = $2 WHERE id = $1`, id, noteID)
	if err != nil {
		return fmt.Errorf("link session note to appointment %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.Date, &a.StartTime, &a.EndTime,
		&a.Notes, &a.Price, &a.IsPaid, &a.SessionNoteID, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
