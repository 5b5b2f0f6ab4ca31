package clinical

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type mockNoteRepo struct {
	mu     sync.Mutex
	store  map[int64]*SessionNote
	nextID int64
}

func newMockNoteRepo() *mockNoteRepo {
	return &mockNoteRepo{store: make(map[int64]*SessionNote)}
}

func (m *mockNoteRepo) Create(_ context.Context, n *SessionNote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	n.ID = m.nextID
	n.CreatedAt = time.Now().Add(time.Duration(m.nextID) * time.Second)
	cp := *n
	m.store[n.ID] = &cp
	return nil
}

func (m *mockNoteRepo) GetByID(_ context.Context, id int64) (*SessionNote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (m *mockNoteRepo) UpdateContent(_ context.Context, id int64, content string) (*SessionNote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	now := time.Now()
	n.Content = content
	n.UpdatedAt = &now
	cp := *n
	return &cp, nil
}

func (m *mockNoteRepo) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[id]; !ok {
		return ErrNotFound
	}
	delete(m.store, id)
	return nil
}

func (m *mockNoteRepo) List(_ context.Context, patientID int64, skip, limit int) ([]*SessionNote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*SessionNote{}
	for _, n := range m.store {
		if patientID == 0 || n.PatientID == patientID {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if skip >= len(out) {
		return []*SessionNote{}, nil
	}
	out = out[skip:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

type patientSet map[int64]bool

func (p patientSet) PatientExists(_ context.Context, id int64) (bool, error) {
	return p[id], nil
}

func newTestService() (*Service, *mockNoteRepo) {
	repo := newMockNoteRepo()
	return NewService(repo, patientSet{1: true, 2: true}, zerolog.Nop()), repo
}

func TestService_CreateNote(t *testing.T) {
	svc, _ := newTestService()
	n := &SessionNote{PatientID: 1, Content: "  worked on sleep hygiene  "}
	if err := svc.CreateNote(context.Background(), n); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.ID == 0 {
		t.Error("expected ID to be assigned")
	}
	if n.Content != "worked on sleep hygiene" {
		t.Errorf("expected trimmed content, got %q", n.Content)
	}
}

func TestService_CreateNote_Validation(t *testing.T) {
	svc, _ := newTestService()
	tests := []struct {
		name string
		note SessionNote
		want error
	}{
		{"empty content", SessionNote{PatientID: 1, Content: "   "}, nil},
		{"missing patient id", SessionNote{Content: "x"}, nil},
		{"unknown patient", SessionNote{PatientID: 99, Content: "x"}, ErrPatientNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := tt.note
			err := svc.CreateNote(context.Background(), &n)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestService_UpdateNote(t *testing.T) {
	svc, _ := newTestService()
	n := &SessionNote{PatientID: 1, Content: "first"}
	svc.CreateNote(context.Background(), n)

	updated, err := svc.UpdateNote(context.Background(), n.ID, "second")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Content != "second" || updated.PatientID != 1 || updated.UpdatedAt == nil {
		t.Errorf("unexpected note %+v", updated)
	}

	if _, err := svc.UpdateNote(context.Background(), 42, "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.UpdateNote(context.Background(), n.ID, ""); err == nil {
		t.Error("expected error for empty content")
	}
}

func TestService_ListPatientNotes(t *testing.T) {
	svc, _ := newTestService()
	for _, pid := range []int64{1, 2, 1} {
		svc.CreateNote(context.Background(), &SessionNote{PatientID: pid, Content: "note"})
	}

	notes, err := svc.ListPatientNotes(context.Background(), 1, 0, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notes) != 2 {
		t.Fatalf("expected 2 notes, got %d", len(notes))
	}
	if !notes[0].CreatedAt.After(notes[1].CreatedAt) {
		t.Error("expected newest note first")
	}

	if _, err := svc.ListPatientNotes(context.Background(), 7, 0, 100); !errors.Is(err, ErrPatientNotFound) {
		t.Errorf("expected ErrPatientNotFound, got %v", err)
	}

	all, _ := svc.ListNotes(context.Background(), 0, 100)
	if len(all) != 3 {
		t.Errorf("expected 3 notes overall, got %d", len(all))
	}
}

func TestService_DeleteNote(t *testing.T) {
	svc, _ := newTestService()
	n := &SessionNote{PatientID: 1, Content: "x"}
	svc.CreateNote(context.Background(), n)

	if err := svc.DeleteNote(context.Background(), n.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.GetNote(context.Background(), n.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := svc.DeleteNote(context.Background(), n.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}
