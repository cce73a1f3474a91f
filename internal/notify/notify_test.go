package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueue_NoticesExpire(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	q := NewQueue(3*time.Second, nil).WithClock(func() time.Time { return now })

	q.Notify(LevelError, "failed to load products")
	now = now.Add(time.Second)
	q.Notify(LevelSuccess, "added to cart")

	require.Len(t, q.Active(), 2)

	now = now.Add(2500 * time.Millisecond)
	active := q.Active()
	require.Len(t, active, 1)
	require.Equal(t, "added to cart", active[0].Message)

	now = now.Add(time.Second)
	require.Empty(t, q.Active())
}

func TestQueue_Dismiss(t *testing.T) {
	q := NewQueue(time.Minute, nil)
	q.Notify(LevelInfo, "hello")
	q.Dismiss()
	require.Empty(t, q.Active())
}

func TestQueue_NotifyDropsExpiredNotices(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	q := NewQueue(time.Second, nil).WithClock(func() time.Time { return now })

	for i := 0; i < 100; i++ {
		q.Notify(LevelInfo, "tick")
		now = now.Add(2 * time.Second)
	}

	q.mu.Lock()
	held := len(q.notices)
	q.mu.Unlock()
	require.Equal(t, 1, held, "expired notices must not accumulate when nothing reads the queue")
}
