package clinical

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/therapy/therapy/internal/platform/db"
	"github.com/therapy/therapy/internal/platform/hipaa"
)

type noteRepoPG struct {
	pool      db.Pool
	encryptor hipaa.FieldEncryptor
}

// NewNoteRepo stores note content sealed with enc. A nil enc stores
// plaintext.
func NewNoteRepo(pool db.Pool, enc hipaa.FieldEncryptor) NoteRepository {
	return &noteRepoPG{pool: pool, encryptor: enc}
}

const noteCols = `id, patient_id, content, created_at, updated_at`

func (r *noteRepoPG) seal(content string) (string, error) {
	if r.encryptor == nil {
		return content, nil
	}
	sealed, err := r.encryptor.Encrypt(content)
	if err != nil {
		return "", fmt.Errorf("encrypt note: %w", err)
	}
	return sealed, nil
}

func (r *noteRepoPG) open(n *SessionNote) error {
	if r.encryptor == nil {
		return nil
	}
	plain, err := r.encryptor.Decrypt(n.Content)
	if err != nil {
		return fmt.Errorf("decrypt note %d: %w", n.ID, err)
	}
	n.Content = plain
	return nil
}

func (r *noteRepoPG) Create(ctx context.Context, n *SessionNote) error {
	stored, err := r.seal(n.Content)
	if err != nil {
		return err
	}
	err = db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO session_notes (patient_id, content)
		VALUES ($1, $2)
		RETURNING id, created_at`,
		n.PatientID, stored,
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("create session note: %w", err)
	}
	return nil
}

func (r *noteRepoPG) GetByID(ctx context.Context, id int64) (*SessionNote, error) {
	n, err := scanNote(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+noteCols+` FROM session_notes WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session note %d: %w", id, err)
	}
	if err := r.open(n); err != nil {
		return nil, err
	}
	return n, nil
}

func (r *noteRepoPG) UpdateContent(ctx context.Context, id int64, content string) (*SessionNote, error) {
	stored, err := r.seal(content)
	if err != nil {
		return nil, err
	}
	n, err := scanNote(db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE session_notes SET content = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+noteCols, id, stored))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update session note %d: %w", id, err)
	}
	n.Content = content
	return n, nil
}

// Delete removes the note. Appointments that referenced it are unlinked by
// ON DELETE SET NULL.
func (r *noteRepoPG) Delete(ctx context.Context, id int64) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM session_notes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session note %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *noteRepoPG) List(ctx context.Context, patientID int64, skip, limit int) ([]*SessionNote, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if patientID > 0 {
		rows, err = db.Conn(ctx, r.pool).Query(ctx, `SELECT `+noteCols+` FROM session_notes
			WHERE patient_id = $1 ORDER BY created_at DESC, id DESC OFFSET $2 LIMIT $3`, patientID, skip, limit)
	} else {
		rows, err = db.Conn(ctx, r.pool).Query(ctx, `SELECT `+noteCols+` FROM session_notes
			ORDER BY created_at DESC, id DESC OFFSET $1 LIMIT $2`, skip, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list session notes: %w", err)
	}
	defer rows.Close()

	notes := []*SessionNote{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		if err := r.open(n); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func scanNote(row pgx.Row) (*SessionNote, error) {
	var n SessionNote
	if err := row.Scan(&n.ID, &n.PatientID, &n.Content, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	return &n, nil
}
