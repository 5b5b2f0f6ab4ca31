package clinical

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/therapy/therapy/internal/platform/hipaa"
)

func testKeyring(t *testing.T) *hipaa.Keyring {
	t.Helper()
	k, err := hipaa.NewKeyring([]byte("0123456789abcdef0123456789abcdef"), 1)
	if err != nil {
		t.Fatalf("keyring: %v", err)
	}
	return k
}

func TestNoteRepo_CreateEncrypts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery("INSERT INTO session_notes").
		WithArgs(int64(1), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(5), time.Now()))

	n := &SessionNote{PatientID: 1, Content: "private"}
	if err := NewNoteRepo(mock, testKeyring(t)).Create(context.Background(), n); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if n.ID != 5 || n.Content != "private" {
		t.Errorf("unexpected note %+v", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestNoteRepo_GetByID_Decrypts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	kr := testKeyring(t)
	sealed, err := kr.Encrypt("private")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if !strings.HasPrefix(sealed, "enc:v1:") {
		t.Fatalf("unexpected sealed form %q", sealed)
	}
	mock.ExpectQuery("SELECT id, patient_id, content, created_at, updated_at FROM session_notes").
		WithArgs(int64(5)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "patient_id", "content", "created_at", "updated_at"}).
			AddRow(int64(5), int64(1), sealed, time.Now(), nil))

	n, err := NewNoteRepo(mock, kr).GetByID(context.Background(), 5)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if n.Content != "private" {
		t.Errorf("expected decrypted content, got %q", n.Content)
	}
}

func TestNoteRepo_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery("SELECT id, patient_id").WithArgs(int64(9)).WillReturnError(pgx.ErrNoRows)
	if _, err := NewNoteRepo(mock, nil).GetByID(context.Background(), 9); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestNoteRepo_Delete_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec("DELETE FROM session_notes").WithArgs(int64(9)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	if err := NewNoteRepo(mock, nil).Delete(context.Background(), 9); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
