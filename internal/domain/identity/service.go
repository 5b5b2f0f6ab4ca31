package identity

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/therapy/therapy/pkg/patch"
)

type Service struct {
	patients PatientRepository
}

func NewService(patients PatientRepository) *Service {
	return &Service{patients: patients}
}

// PatientPatch is a partial update; only members present in the request
// body are applied.
type PatientPatch struct {
	Name  patch.Field[string]  `json:"name,omitzero"`
	Phone patch.Field[*string] `json:"phone,omitzero"`
	Email patch.Field[*string] `json:"email,omitzero"`
	Notes patch.Field[*string] `json:"notes,omitzero"`
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if err := normalize(p); err != nil {
		return err
	}
	return s.patients.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id int64) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) UpdatePatient(ctx context.Context, id int64, in PatientPatch) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	in.Name.Apply(&p.Name)
	in.Phone.Apply(&p.Phone)
	in.Email.Apply(&p.Email)
	in.Notes.Apply(&p.Notes)
	if err := normalize(p); err != nil {
		return nil, err
	}
	if err := s.patients.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) DeletePatient(ctx context.Context, id int64) error {
	return s.patients.Delete(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, skip, limit int) ([]*Patient, error) {
	return s.patients.List(ctx, skip, limit)
}

// PatientExists backs the patient checks of the other domains.
func (s *Service) PatientExists(ctx context.Context, id int64) (bool, error) {
	return s.patients.Exists(ctx, id)
}

func normalize(p *Patient) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	p.Phone = trimOptional(p.Phone)
	p.Notes = trimOptional(p.Notes)
	p.Email = trimOptional(p.Email)
	if p.Email != nil {
		addr, err := mail.ParseAddress(*p.Email)
		if err != nil || addr.Address != *p.Email {
			return fmt.Errorf("invalid email: %s", *p.Email)
		}
	}
	return nil
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
