package clinical

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

type Service struct {
	notes    NoteRepository
	patients PatientChecker
	logger   zerolog.Logger
}

func NewService(notes NoteRepository, patients PatientChecker, logger zerolog.Logger) *Service {
	return &Service{notes: notes, patients: patients, logger: logger}
}

func validateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("content is required")
	}
	return content, nil
}

func (s *Service) requirePatient(ctx context.Context, patientID int64) error {
	if patientID <= 0 {
		return fmt.Errorf("patient_id is required")
	}
	ok, err := s.patients.PatientExists(ctx, patientID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPatientNotFound
	}
	return nil
}

func (s *Service) CreateNote(ctx context.Context, n *SessionNote) error {
	content, err := validateContent(n.Content)
	if err != nil {
		return err
	}
	if err := s.requirePatient(ctx, n.PatientID); err != nil {
		return err
	}
	n.Content = content
	if err := s.notes.Create(ctx, n); err != nil {
		return err
	}
	s.logger.Info().Int64("note_id", n.ID).Int64("patient_id", n.PatientID).Msg("session note created")
	return nil
}

func (s *Service) GetNote(ctx context.Context, id int64) (*SessionNote, error) {
	return s.notes.GetByID(ctx, id)
}

func (s *Service) UpdateNote(ctx context.Context, id int64, content string) (*SessionNote, error) {
	content, err := validateContent(content)
	if err != nil {
		return nil, err
	}
	return s.notes.UpdateContent(ctx, id, content)
}

func (s *Service) DeleteNote(ctx context.Context, id int64) error {
	if err := s.notes.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Int64("note_id", id).Msg("session note deleted")
	return nil
}

func (s *Service) ListNotes(ctx context.Context, skip, limit int) ([]*SessionNote, error) {
	return s.notes.List(ctx, 0, skip, limit)
}

func (s *Service) ListPatientNotes(ctx context.Context, patientID int64, skip, limit int) ([]*SessionNote, error) {
	if err := s.requirePatient(ctx, patientID); err != nil {
		return nil, err
	}
	return s.notes.List(ctx, patientID, skip, limit)
}
