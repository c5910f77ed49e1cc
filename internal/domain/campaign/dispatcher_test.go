package campaign

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinic/clinic/internal/platform/metrics"
	"github.com/clinic/clinic/internal/platform/notification"
	"github.com/clinic/clinic/internal/platform/websocket"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []websocket.Event
}

func (p *capturePublisher) Publish(_ context.Context, e websocket.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func launched(t *testing.T, f *fixture) *Campaign {
	t.Helper()
	c := f.draft(t, notification.ChannelSMS)
	_, err := f.svc.Launch(context.Background(), c.ID)
	require.NoError(t, err)
	<-f.queue.ch
	return c
}

func TestDispatcher_ProcessPartialFailure(t *testing.T) {
	f := newFixture()
	c := launched(t, f)
	rec := &notification.Recorder{Fail: map[string]error{"+5511922220000": errors.New("carrier rejected")}}
	pub := &capturePublisher{}
	reg := prometheus.NewRegistry()
	m := metrics.NewCampaignMetrics(reg)
	d := NewDispatcher(f.repo, f.queue, notification.NewDispatcher(rec, rec, 1, 0), DispatcherOptions{
		BatchSize: 2, Logger: zerolog.Nop(), Publisher: pub, Metrics: m,
	})

	require.NoError(t, d.Process(context.Background(), c.ID))

	got, _ := f.repo.GetByID(context.Background(), c.ID)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 2, got.Sent)
	assert.Equal(t, 1, got.Failed)
	assert.NotNil(t, got.FinishedAt)

	sent := rec.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "Hi Ana, time for a check-up.", sent[0].Body)

	// Two batches plus the final frame.
	assert.Equal(t, 3, pub.count())
	assert.Equal(t, "campaign:"+c.ID.String(), pub.events[0].Topic)

	n, err := testutil.GatherAndCount(reg, "clinic_campaign_messages_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestDispatcher_AllFailedMarksCampaignFailed(t *testing.T) {
	f := newFixture()
	c := launched(t, f)
	boom := errors.New("gateway down")
	rec := &notification.Recorder{Fail: map[string]error{
		"+5511911110000": boom, "+5511922220000": boom, "+5511933330000": boom,
	}}
	d := NewDispatcher(f.repo, f.queue, notification.NewDispatcher(rec, rec, 1, 0), DispatcherOptions{Logger: zerolog.Nop()})

	require.NoError(t, d.Process(context.Background(), c.ID))
	got, _ := f.repo.GetByID(context.Background(), c.ID)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, 3, got.Failed)
}

func TestDispatcher_StorageErrorFailsCampaign(t *testing.T) {
	f := newFixture()
	c := launched(t, f)
	f.repo.pendingErr = errors.New("connection reset")
	rec := &notification.Recorder{}
	d := NewDispatcher(f.repo, f.queue, notification.NewDispatcher(rec, rec, 1, 0), DispatcherOptions{Logger: zerolog.Nop()})

	require.Error(t, d.Process(context.Background(), c.ID))
	assert.Equal(t, StatusFailed, f.repo.status(c.ID))
}

func TestDispatcher_SkipsUnqueued(t *testing.T) {
	f := newFixture()
	c := f.draft(t, notification.ChannelSMS)
	rec := &notification.Recorder{}
	d := NewDispatcher(f.repo, f.queue, notification.NewDispatcher(rec, rec, 1, 0), DispatcherOptions{Logger: zerolog.Nop()})

	assert.ErrorIs(t, d.Process(context.Background(), c.ID), ErrNotQueued)
	assert.Equal(t, StatusDraft, f.repo.status(c.ID))
}

func TestDispatcher_RunEndToEnd(t *testing.T) {
	f := newFixture()
	q, _ := newRedisQueue(t)
	f.svc.queue = q
	rec := &notification.Recorder{}
	d := NewDispatcher(f.repo, q, notification.NewDispatcher(rec, rec, 1, 0), DispatcherOptions{
		PopTimeout: time.Second, Logger: zerolog.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	c := f.draft(t, notification.ChannelSMS)
	_, err := f.svc.Launch(ctx, c.ID)
	require.NoError(t, err)

	p, err := f.svc.WaitForTerminal(ctx, c.ID, 10*time.Millisecond, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, p.Status)
	assert.Equal(t, 3, p.Sent)
	assert.Len(t, rec.Sent(), 3)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
}
