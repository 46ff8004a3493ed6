package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/erp/syncd/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu   sync.Mutex
	seen []Notification
}

func (s *recordingSink) Publish(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, n)
}

func (s *recordingSink) all() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notification(nil), s.seen...)
}

func change(domain shared.Domain, action shared.Action) shared.ChangeDescriptor {
	return shared.ChangeDescriptor{Domain: domain, Action: action, At: time.Now()}
}

func TestDispatcher_Notify(t *testing.T) {
	t.Run("first change publishes immediately", func(t *testing.T) {
		sink := &recordingSink{}
		d := NewDispatcher(sink, WithWindow(time.Hour))

		d.Notify(change(shared.DomainProduct, shared.ActionUpdated))

		seen := sink.all()
		require.Len(t, seen, 1)
		assert.Equal(t, LevelInfo, seen[0].Level)
		assert.Equal(t, 1, seen[0].Count)
		assert.Equal(t, "1 product update", seen[0].Message)
	})

	t.Run("a burst collapses into one aggregate", func(t *testing.T) {
		sink := &recordingSink{}
		d := NewDispatcher(sink, WithWindow(time.Hour))

		for i := 0; i < 13; i++ {
			d.Notify(change(shared.DomainStock, shared.ActionUpdated))
		}
		require.Len(t, sink.all(), 1)

		d.Flush()
		seen := sink.all()
		require.Len(t, seen, 2)
		assert.Equal(t, 12, seen[1].Count)
		assert.Equal(t, "12 stock updates", seen[1].Message)
	})

	t.Run("distinct domain and action pairs do not collapse together", func(t *testing.T) {
		sink := &recordingSink{}
		d := NewDispatcher(sink, WithWindow(time.Hour))

		d.Notify(change(shared.DomainOrder, shared.ActionCreated))
		d.Notify(change(shared.DomainOrder, shared.ActionUpdated))
		d.Notify(change(shared.DomainStock, shared.ActionUpdated))

		assert.Len(t, sink.all(), 3)
	})

	t.Run("window expiry publishes the aggregate", func(t *testing.T) {
		sink := &recordingSink{}
		d := NewDispatcher(sink, WithWindow(20*time.Millisecond))

		d.Notify(change(shared.DomainOrder, shared.ActionCreated))
		d.Notify(change(shared.DomainOrder, shared.ActionCreated))
		d.Notify(change(shared.DomainOrder, shared.ActionCreated))

		assert.Eventually(t, func() bool {
			return len(sink.all()) == 2
		}, time.Second, 5*time.Millisecond)

		seen := sink.all()
		assert.Equal(t, 2, seen[1].Count)
		assert.Equal(t, "2 order creations", seen[1].Message)
	})

	t.Run("an empty window publishes nothing more", func(t *testing.T) {
		sink := &recordingSink{}
		d := NewDispatcher(sink, WithWindow(time.Hour))

		d.Notify(change(shared.DomainReview, shared.ActionDeleted))
		d.Flush()

		assert.Len(t, sink.all(), 1)
	})
}

func TestDispatcher_DirectChannels(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(sink, WithWindow(time.Hour))

	d.Message("end-of-day report is ready")
	d.Conflict(shared.ChangeDescriptor{Domain: shared.DomainProduct, Action: shared.ActionUpdated})
	d.WriteTimedOut(shared.DomainStock, "p-1")
	d.ConnectionDown("realtime connection lost")

	seen := sink.all()
	require.Len(t, seen, 4)
	assert.Equal(t, LevelInfo, seen[0].Level)
	assert.Equal(t, "end-of-day report is ready", seen[0].Message)
	assert.Equal(t, LevelWarn, seen[1].Level)
	assert.Equal(t, LevelWarn, seen[2].Level)
	assert.Equal(t, LevelWarn, seen[3].Level)
}

func TestChangeMessage(t *testing.T) {
	assert.Equal(t, "1 category creation", changeMessage(shared.DomainCategory, shared.ActionCreated, 1))
	assert.Equal(t, "5 review deletions", changeMessage(shared.DomainReview, shared.ActionDeleted, 5))
	assert.Equal(t, "order data refreshed", changeMessage(shared.DomainOrder, shared.ActionSnapshot, 3))
}

func TestFanout(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}
	Fanout(a, b).Publish(Notification{Message: "hi", Count: 1})

	assert.Len(t, a.all(), 1)
	assert.Len(t, b.all(), 1)
}
