package campaign

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/domain/patient"
)

type recipientRow struct {
	Recipient
	status RecipientStatus
	err    string
}

// memRepo is an in-memory Repository. onGet runs before every GetByID.
type memRepo struct {
	mu         sync.Mutex
	campaigns  map[uuid.UUID]*Campaign
	recipients map[uuid.UUID][]*recipientRow
	onGet      func(c *Campaign)
	pendingErr error
}

func newMemRepo() *memRepo {
	return &memRepo{campaigns: map[uuid.UUID]*Campaign{}, recipients: map[uuid.UUID][]*recipientRow{}}
}

func (m *memRepo) Create(_ context.Context, c *Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = uuid.New()
	c.Status = StatusDraft
	c.CreatedAt = time.Now()
	cp := *c
	m.campaigns[c.ID] = &cp
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id uuid.UUID) (*Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, ErrNotFound
	}
	if m.onGet != nil {
		m.onGet(c)
	}
	cp := *c
	return &cp, nil
}

func (m *memRepo) List(_ context.Context, limit, offset int) ([]*Campaign, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Campaign
	for _, c := range m.campaigns {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := len(out)
	out = out[min(offset, total):]
	return out[:min(limit, len(out))], total, nil
}

func (m *memRepo) ListByStatus(_ context.Context, status Status) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for id, c := range m.campaigns {
		if c.Status == status {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *memRepo) Enqueue(_ context.Context, id uuid.UUID, contacts []patient.Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return ErrNotFound
	}
	if c.Status != StatusDraft {
		return ErrNotDraft
	}
	for _, ct := range contacts {
		m.recipients[id] = append(m.recipients[id], &recipientRow{
			Recipient: Recipient{ID: uuid.New(), PatientID: ct.PatientID, FullName: ct.FullName, Destination: ct.Destination},
			status:    RecipientPending,
		})
	}
	c.Status = StatusQueued
	c.Total = len(contacts)
	return nil
}

func (m *memRepo) Claim(_ context.Context, id uuid.UUID) (*Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.Status != StatusQueued {
		return nil, ErrNotQueued
	}
	now := time.Now()
	c.Status = StatusProcessing
	c.StartedAt = &now
	cp := *c
	return &cp, nil
}

func (m *memRepo) Pending(_ context.Context, id uuid.UUID, limit int) ([]Recipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pendingErr != nil {
		return nil, m.pendingErr
	}
	var out []Recipient
	for _, r := range m.recipients[id] {
		if r.status == RecipientPending && len(out) < limit {
			out = append(out, r.Recipient)
		}
	}
	return out, nil
}

func (m *memRepo) MarkRecipient(_ context.Context, campaignID, recipientID uuid.UUID, sendErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.recipients[campaignID] {
		if r.ID != recipientID || r.status != RecipientPending {
			continue
		}
		if sendErr != nil {
			r.status, r.err = RecipientFailed, sendErr.Error()
			m.campaigns[campaignID].Failed++
		} else {
			r.status = RecipientSent
			m.campaigns[campaignID].Sent++
		}
	}
	return nil
}

func (m *memRepo) Finish(_ context.Context, id uuid.UUID, status Status) (*Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, ErrNotFound
	}
	now := time.Now()
	c.Status = status
	c.FinishedAt = &now
	cp := *c
	return &cp, nil
}

// status reads a campaign's status without triggering onGet.
func (m *memRepo) status(id uuid.UUID) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.campaigns[id].Status
}

type stubAudience struct {
	contacts map[string][]patient.Contact
}

func (a stubAudience) Recipients(_ context.Context, channel string) ([]patient.Contact, error) {
	return a.contacts[channel], nil
}

// chanQueue is an in-process Queue.
type chanQueue struct{ ch chan uuid.UUID }

func newChanQueue() *chanQueue { return &chanQueue{ch: make(chan uuid.UUID, 16)} }

func (q *chanQueue) Push(_ context.Context, id uuid.UUID) error {
	q.ch <- id
	return nil
}

func (q *chanQueue) Pop(ctx context.Context, timeout time.Duration) (uuid.UUID, error) {
	select {
	case id := <-q.ch:
		return id, nil
	case <-time.After(timeout):
		return uuid.Nil, ErrQueueEmpty
	case <-ctx.Done():
		return uuid.Nil, ctx.Err()
	}
}
