package campaign

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/notification"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrNotDraft     = errors.New("campaign already launched")
	ErrNoRecipients = errors.New("no opted-in recipients for channel")
	ErrNotQueued    = errors.New("campaign is not queued")
	ErrPollTimeout  = errors.New("campaign did not finish before the poll deadline")
)

type Status string

const (
	StatusDraft      Status = "draft"
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further progress will happen.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

type RecipientStatus string

const (
	RecipientPending RecipientStatus = "pending"
	RecipientSent    RecipientStatus = "sent"
	RecipientFailed  RecipientStatus = "failed"
)

// Keys a campaign body may reference.
var templateKeys = map[string]bool{"patient_name": true, "first_name": true}

type Campaign struct {
	ID         uuid.UUID            `json:"id"`
	Name       string               `json:"name"`
	Channel    notification.Channel `json:"channel"`
	Subject    string               `json:"subject,omitempty"`
	Body       string               `json:"body"`
	Status     Status               `json:"status"`
	Total      int                  `json:"total"`
	Sent       int                  `json:"sent"`
	Failed     int                  `json:"failed"`
	CreatedAt  time.Time            `json:"created_at"`
	StartedAt  *time.Time           `json:"started_at,omitempty"`
	FinishedAt *time.Time           `json:"finished_at,omitempty"`
}

func (c *Campaign) Validate() error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if !c.Channel.Valid() {
		return fmt.Errorf("%w: channel must be sms or email", ErrInvalidInput)
	}
	if strings.TrimSpace(c.Body) == "" {
		return fmt.Errorf("%w: body is required", ErrInvalidInput)
	}
	if c.Channel == notification.ChannelEmail && strings.TrimSpace(c.Subject) == "" {
		return fmt.Errorf("%w: subject is required for email", ErrInvalidInput)
	}
	for _, key := range notification.Placeholders(c.Subject + " " + c.Body) {
		if !templateKeys[key] {
			return fmt.Errorf("%w: unknown placeholder {{%s}}", ErrInvalidInput, key)
		}
	}
	return nil
}

// Progress is the pollable view of a campaign.
type Progress struct {
	ID      uuid.UUID `json:"id"`
	Status  Status    `json:"status"`
	Total   int       `json:"total"`
	Sent    int       `json:"sent"`
	Failed  int       `json:"failed"`
	Pending int       `json:"pending"`
	Percent float64   `json:"percent"`
}

func (c *Campaign) Progress() Progress {
	p := Progress{ID: c.ID, Status: c.Status, Total: c.Total, Sent: c.Sent, Failed: c.Failed}
	p.Pending = max(c.Total-c.Sent-c.Failed, 0)
	if c.Total > 0 {
		p.Percent = float64(c.Sent+c.Failed) * 100 / float64(c.Total)
	} else if c.Status.Terminal() {
		p.Percent = 100
	}
	return p
}

// Recipient is one pending delivery.
type Recipient struct {
	ID          uuid.UUID
	PatientID   uuid.UUID
	FullName    string
	Destination string
}

func (r Recipient) templateData() map[string]string {
	first, _, _ := strings.Cut(strings.TrimSpace(r.FullName), " ")
	return map[string]string{"patient_name": r.FullName, "first_name": first}
}

func topic(id uuid.UUID) string { return "campaign:" + id.String() }
