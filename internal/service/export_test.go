package service

import "time"

// SetClock replaces the limiter's time source.
func (l *UploadLimiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}
