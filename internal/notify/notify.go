// Package notify delivers transient, auto-dismissing notices to the user.
package notify

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Level is the severity of a notice
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is a transient message shown to the user
type Notice struct {
	Level     Level
	Message   string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Notifier receives notices
type Notifier interface {
	Notify(level Level, message string)
}

// Queue keeps notices until their TTL passes
type Queue struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	notices []Notice
	logger  *zap.Logger
}

// NewQueue creates a queue whose notices dismiss themselves after ttl
func NewQueue(ttl time.Duration, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{ttl: ttl, now: time.Now, logger: logger}
}

// WithClock replaces the time source; used by tests
func (q *Queue) WithClock(now func() time.Time) *Queue {
	q.now = now
	return q
}

func (q *Queue) Notify(level Level, message string) {
	now := q.now()

	q.mu.Lock()
	q.pruneLocked(now)
	q.notices = append(q.notices, Notice{
		Level:     level,
		Message:   message,
		CreatedAt: now,
		ExpiresAt: now.Add(q.ttl),
	})
	q.mu.Unlock()

	fields := []zap.Field{zap.String("level", string(level)), zap.String("notice", message)}
	if level == LevelError || level == LevelWarning {
		q.logger.Warn("Notice raised", fields...)
		return
	}
	q.logger.Debug("Notice raised", fields...)
}

// Active returns the notices that have not yet expired and drops the rest
func (q *Queue) Active() []Notice {
	now := q.now()

	q.mu.Lock()
	defer q.mu.Unlock()

	q.pruneLocked(now)
	return append([]Notice(nil), q.notices...)
}

func (q *Queue) pruneLocked(now time.Time) {
	kept := q.notices[:0]
	for _, n := range q.notices {
		if now.Before(n.ExpiresAt) {
			kept = append(kept, n)
		}
	}
	for i := len(kept); i < len(q.notices); i++ {
		q.notices[i] = Notice{}
	}
	q.notices = kept
}

// Dismiss removes every notice
func (q *Queue) Dismiss() {
	q.mu.Lock()
	q.notices = nil
	q.mu.Unlock()
}

// Discard is a Notifier that drops every notice
type Discard struct{}

func (Discard) Notify(Level, string) {}
