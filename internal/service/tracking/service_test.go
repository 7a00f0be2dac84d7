package tracking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/mailflow/internal/domain"
)

// memEvents is an in-memory Repository with the same upsert semantics as the
// Postgres implementation.
type memEvents struct {
	records map[string]*domain.DeliveryRecord
	err     error
}

func newMemEvents() *memEvents {
	return &memEvents{records: make(map[string]*domain.DeliveryRecord)}
}

func (m *memEvents) RecordEvent(ctx context.Context, newsletterID string, typ domain.DeliveryEventType, detail domain.EventDetail) error {
	if m.err != nil {
		return m.err
	}
	rec, ok := m.records[newsletterID]
	if !ok {
		rec = &domain.DeliveryRecord{NewsletterID: newsletterID}
		m.records[newsletterID] = rec
	}
	switch typ {
	case domain.EventOpen:
		rec.Opens++
		rec.OpenDetails = append(rec.OpenDetails, detail)
	case domain.EventClick:
		rec.Clicks++
		rec.ClickDetails = append(rec.ClickDetails, detail)
	case domain.EventBounce:
		rec.Bounces++
		rec.BounceDetails = append(rec.BounceDetails, detail)
	case domain.EventUnsubscribe:
		rec.Unsubscribes++
		rec.UnsubscribeDetails = append(rec.UnsubscribeDetails, detail)
	}
	return nil
}

func (m *memEvents) EnsureRecord(ctx context.Context, newsletterID string) error {
	if _, ok := m.records[newsletterID]; !ok {
		m.records[newsletterID] = &domain.DeliveryRecord{NewsletterID: newsletterID}
	}
	return nil
}

func (m *memEvents) Get(ctx context.Context, newsletterID string) (*domain.DeliveryRecord, error) {
	rec, ok := m.records[newsletterID]
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

type memStatus struct {
	statuses map[string]domain.SubscriberStatus
	err      error
}

func (m *memStatus) UpdateStatus(ctx context.Context, id string, status domain.SubscriberStatus) error {
	if m.err != nil {
		return m.err
	}
	if m.statuses == nil {
		m.statuses = make(map[string]domain.SubscriberStatus)
	}
	m.statuses[id] = status
	return nil
}

func newTestService(events *memEvents, subs *memStatus) *Service {
	svc := NewService(events, subs, testTokens())
	svc.now = func() time.Time { return time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC) }
	return svc
}

func TestTrackOpenAccumulates(t *testing.T) {
	events := newMemEvents()
	svc := newTestService(events, &memStatus{})

	require.NoError(t, svc.TrackOpen(context.Background(), "nl-1", "sub-1"))
	require.NoError(t, svc.TrackOpen(context.Background(), "nl-1", "sub-1"))
	require.NoError(t, svc.TrackOpen(context.Background(), "nl-1", "sub-2"))

	rec, err := svc.Record(context.Background(), "nl-1")
	require.NoError(t, err)

	// Repeat events from the same subscriber all count.
	assert.Equal(t, 3, rec.Opens)
	require.Len(t, rec.OpenDetails, 3)
	assert.Equal(t, "sub-1", rec.OpenDetails[0].SubscriberID)
	assert.Equal(t, "sub-2", rec.OpenDetails[2].SubscriberID)
	assert.False(t, rec.OpenDetails[0].At.IsZero())
}

func TestTrackClickStoresURL(t *testing.T) {
	events := newMemEvents()
	svc := newTestService(events, &memStatus{})

	require.NoError(t, svc.TrackClick(context.Background(), "nl-1", "sub-1", "https://example.com/a"))

	rec, err := svc.Record(context.Background(), "nl-1")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Clicks)
	assert.Equal(t, "https://example.com/a", rec.ClickDetails[0].URL)
}

func TestTrackBounceStoresReason(t *testing.T) {
	events := newMemEvents()
	svc := newTestService(events, &memStatus{})

	require.NoError(t, svc.TrackBounce(context.Background(), "nl-1", "sub-1", "mailbox full"))

	rec, err := svc.Record(context.Background(), "nl-1")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Bounces)
	assert.Equal(t, "mailbox full", rec.BounceDetails[0].Reason)
}

func TestUnsubscribeFlow(t *testing.T) {
	events := newMemEvents()
	subs := &memStatus{}
	svc := newTestService(events, subs)

	token := svc.Tokens().UnsubscribeToken("sub-7")
	id, err := svc.Unsubscribe(context.Background(), token, "nl-1", "link")
	require.NoError(t, err)
	assert.Equal(t, "sub-7", id)

	assert.Equal(t, domain.SubscriberUnsubscribed, subs.statuses["sub-7"])

	rec, err := svc.Record(context.Background(), "nl-1")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Unsubscribes)
	assert.Equal(t, "sub-7", rec.UnsubscribeDetails[0].SubscriberID)
}

func TestUnsubscribeInvalidToken(t *testing.T) {
	subs := &memStatus{}
	svc := newTestService(newMemEvents(), subs)

	_, err := svc.Unsubscribe(context.Background(), "garbage", "nl-1", "")
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Empty(t, subs.statuses)
}

func TestUnsubscribeWithoutNewsletterSkipsEvent(t *testing.T) {
	events := newMemEvents()
	svc := newTestService(events, &memStatus{})

	token := svc.Tokens().UnsubscribeToken("sub-7")
	_, err := svc.Unsubscribe(context.Background(), token, "", "")
	require.NoError(t, err)

	_, err = svc.Record(context.Background(), "nl-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUnsubscribeEventFailureIsNotFatal(t *testing.T) {
	events := newMemEvents()
	events.err = errors.New("storage down")
	subs := &memStatus{}
	svc := newTestService(events, subs)

	// The status transition is what matters; event recording is best-effort.
	token := svc.Tokens().UnsubscribeToken("sub-7")
	_, err := svc.Unsubscribe(context.Background(), token, "nl-1", "")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriberUnsubscribed, subs.statuses["sub-7"])
}

func TestUnsubscribeStatusUpdateFailurePropagates(t *testing.T) {
	subs := &memStatus{err: errors.New("db down")}
	svc := newTestService(newMemEvents(), subs)

	token := svc.Tokens().UnsubscribeToken("sub-7")
	_, err := svc.Unsubscribe(context.Background(), token, "nl-1", "")
	assert.Error(t, err)
}
