package queue

import (
	"sync"
	"time"
)

const statsWindow = 24 * time.Hour

// Stats holds transient processing diagnostics for the operator view: the
// maximum pass duration observed over a rolling window and the last
// transport-level warning. Values expire on their own; nothing here is
// persisted.
type Stats struct {
	mu sync.Mutex

	maxDelay        time.Duration
	maxDelayExpires time.Time

	notice        string
	noticeExpires time.Time
}

func NewStats() *Stats {
	return &Stats{}
}

// RecordDelay notes the duration of a completed pass. It only replaces the
// stored maximum when the new value is larger or the window lapsed.
func (s *Stats) RecordDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if now.After(s.maxDelayExpires) || d > s.maxDelay {
		s.maxDelay = d
		s.maxDelayExpires = now.Add(statsWindow)
	}
}

// MaxDelay returns the largest pass duration seen in the current window.
func (s *Stats) MaxDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if time.Now().After(s.maxDelayExpires) {
		return 0
	}
	return s.maxDelay
}

// RecordNotice stores a transient processing warning, e.g. the message of a
// transport error.
func (s *Stats) RecordNotice(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notice = msg
	s.noticeExpires = time.Now().Add(statsWindow)
}

// Notice returns the current warning, empty once expired.
func (s *Stats) Notice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if time.Now().After(s.noticeExpires) {
		return ""
	}
	return s.notice
}
