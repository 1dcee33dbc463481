package tracker

import "time"

// RealClock returns a Clock backed by the real time package.
func RealClock() Clock {
	return realClock{}
}

// realClock implements Clock using the real time package.
type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) Timer(d time.Duration) Timer {
	return &realTimer{t: time.NewTimer(d)}
}

type realTimer struct {
	t *time.Timer
}

func (r *realTimer) Chan() <-chan time.Time {
	return r.t.C
}

func (r *realTimer) Stop() {
	r.t.Stop()
}
