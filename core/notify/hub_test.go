package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHubDeliversToSubscribers(t *testing.T) {
	hub := NewHub(4, zap.NewNop())
	ch, cancel := hub.Subscribe()
	defer cancel()

	hub.RecordChanged(42)

	select {
	case change := <-ch:
		require.Equal(t, int64(42), change.RecordID)
		require.False(t, change.At.IsZero())
	case <-time.After(time.Second):
		t.Fatal("no change signal received")
	}
}

func TestHubDropsWhenSubscriberFull(t *testing.T) {
	hub := NewHub(1, zap.NewNop())
	ch, cancel := hub.Subscribe()
	defer cancel()

	hub.RecordChanged(1)
	hub.RecordChanged(2) // buffer full, dropped

	change := <-ch
	require.Equal(t, int64(1), change.RecordID)
	select {
	case unexpected := <-ch:
		t.Fatalf("expected drop, got %+v", unexpected)
	default:
	}
}

func TestHubCancelClosesChannel(t *testing.T) {
	hub := NewHub(4, zap.NewNop())
	ch, cancel := hub.Subscribe()
	cancel()
	cancel() // idempotent

	_, open := <-ch
	require.False(t, open)

	// publishing after cancel must not panic
	hub.RecordChanged(7)
}

type failingSender struct{ calls chan struct{} }

func (s *failingSender) Send(RecordChange) error {
	s.calls <- struct{}{}
	return errSendFailed
}

var errSendFailed = errTest("send failed")

type errTest string

func (e errTest) Error() string { return string(e) }

func TestHubSenderFailureIsBestEffort(t *testing.T) {
	sender := &failingSender{calls: make(chan struct{}, 1)}
	hub := NewHub(4, zap.NewNop(), sender)

	hub.RecordChanged(9)

	select {
	case <-sender.calls:
	case <-time.After(time.Second):
		t.Fatal("sender was not invoked")
	}
}
