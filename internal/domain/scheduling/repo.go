package scheduling

import (
	"context"

	"github.com/google/uuid"
)

type AppointmentRepository interface {
	// Create inserts a single appointment in one statement. An overlap with
	// another active appointment of the professional returns ErrSlotTaken.
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
	// Delete removes the appointment only while it still has status.
	Delete(ctx context.Context, id uuid.UUID, status Status) error
	List(ctx context.Context, f AppointmentFilter) ([]*Appointment, int, error)
}

type AvailabilityRepository interface {
	ListByProfessional(ctx context.Context, professionalID uuid.UUID) ([]AvailabilitySlot, error)
	// Replace swaps the professional's whole weekly slot set.
	Replace(ctx context.Context, professionalID uuid.UUID, slots []AvailabilitySlot) error
}

type HolidayRepository interface {
	Create(ctx context.Context, h *Holiday) error
	Delete(ctx context.Context, id uuid.UUID) error
	// List returns holidays between from and to inclusive ("YYYY-MM-DD");
	// empty bounds are open.
	List(ctx context.Context, from, to string) ([]Holiday, error)
}
