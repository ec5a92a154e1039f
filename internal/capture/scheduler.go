package capture

import (
	"sync"
	"time"
)

// Handle identifies a scheduled frame callback.
type Handle uint64

// Scheduler delivers frame callbacks, the way a display's vsync would.
// Callbacks must run asynchronously: never from inside ScheduleFrame.
type Scheduler interface {
	ScheduleFrame(cb func(now time.Time)) Handle
	Cancel(h Handle)
}

// TimerScheduler fires each callback Interval after it was scheduled.
// A zero Interval fires as soon as the runtime can run it.
type TimerScheduler struct {
	Interval time.Duration

	mu     sync.Mutex
	next   Handle
	timers map[Handle]*time.Timer
}

func NewTimerScheduler(interval time.Duration) *TimerScheduler {
	return &TimerScheduler{Interval: interval, timers: make(map[Handle]*time.Timer)}
}

// FrameInterval returns the callback interval for a frame rate.
func FrameInterval(fps int) time.Duration {
	if fps <= 0 {
		return 0
	}
	return time.Second / time.Duration(fps)
}

func (s *TimerScheduler) ScheduleFrame(cb func(now time.Time)) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	h := s.next
	s.timers[h] = time.AfterFunc(s.Interval, func() {
		s.mu.Lock()
		_, live := s.timers[h]
		delete(s.timers, h)
		s.mu.Unlock()
		if live {
			cb(time.Now())
		}
	})
	return h
}

func (s *TimerScheduler) Cancel(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[h]; ok {
		t.Stop()
		delete(s.timers, h)
	}
}

// Pending reports how many callbacks have not fired yet.
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
