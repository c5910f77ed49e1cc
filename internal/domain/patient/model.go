package patient

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

type Patient struct {
	ID             uuid.UUID  `json:"id"`
	FullName       string     `json:"full_name"`
	Email          string     `json:"email,omitempty"`
	Phone          string     `json:"phone,omitempty"`
	BirthDate      string     `json:"birth_date,omitempty"`
	Document       string     `json:"document,omitempty"`
	PriceTableID   *uuid.UUID `json:"price_table_id,omitempty"`
	Notes          string     `json:"notes,omitempty"`
	MarketingOptIn bool       `json:"marketing_opt_in"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Contact is where a campaign message for a patient goes.
type Contact struct {
	PatientID   uuid.UUID `json:"patient_id"`
	FullName    string    `json:"full_name"`
	Destination string    `json:"destination"`
}

type SearchParams struct {
	Query  string
	Limit  int
	Offset int
}
