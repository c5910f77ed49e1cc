package assessment

import (
	"context"

	"github.com/google/uuid"
)

type TemplateRepository interface {
	Create(ctx context.Context, t *Template) error
	GetByID(ctx context.Context, id uuid.UUID) (*Template, error)
	List(ctx context.Context, limit, offset int) ([]*Template, int, error)
}

type ResponseRepository interface {
	Create(ctx context.Context, r *Response) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Response, int, error)
}
