package coord

import "time"

// Clock is the time source for registration and heartbeat timestamps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}
