package coord

import "time"

// MaxHeartbeats bounds the per-connection heartbeat history.
const MaxHeartbeats = 100

// heartbeatLog keeps the most recent heartbeat timestamps, oldest first.
// It relies on the coordinator lock for synchronization.
type heartbeatLog struct {
	limit int
	data  []time.Time
}

func newHeartbeatLog(limit int) *heartbeatLog {
	if limit <= 0 {
		limit = MaxHeartbeats
	}
	return &heartbeatLog{
		limit: limit,
		data:  make([]time.Time, 0, limit),
	}
}

// Append records t, evicting the oldest entry once the limit is exceeded.
func (l *heartbeatLog) Append(t time.Time) {
	if len(l.data) == l.limit {
		copy(l.data, l.data[1:])
		l.data = l.data[:l.limit-1]
	}
	l.data = append(l.data, t)
}

func (l *heartbeatLog) Len() int {
	return len(l.data)
}

func (l *heartbeatLog) Snapshot() []time.Time {
	return append([]time.Time(nil), l.data...)
}

func (l *heartbeatLog) Millis() []int64 {
	out := make([]int64, len(l.data))
	for i, t := range l.data {
		out[i] = t.UnixMilli()
	}
	return out
}
