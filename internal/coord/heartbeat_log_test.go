package coord

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHeartbeatLogBasicOperations(t *testing.T) {
	log := newHeartbeatLog(2)
	base := time.Unix(1000, 0)

	log.Append(base)
	log.Append(base.Add(time.Second))
	require.Equal(t, []time.Time{base, base.Add(time.Second)}, log.Snapshot())

	log.Append(base.Add(2 * time.Second))
	require.Equal(t, 2, log.Len())
	require.Equal(t, []time.Time{base.Add(time.Second), base.Add(2 * time.Second)}, log.Snapshot())
	require.Equal(t, []int64{1001000, 1002000}, log.Millis())
}

func TestHeartbeatLogDefaultsLimit(t *testing.T) {
	log := newHeartbeatLog(0)
	base := time.Unix(0, 0)
	for i := 0; i < 150; i++ {
		log.Append(base.Add(time.Duration(i) * time.Millisecond))
	}

	snap := log.Snapshot()
	require.Len(t, snap, MaxHeartbeats)
	require.Equal(t, base.Add(50*time.Millisecond), snap[0])
	require.Equal(t, base.Add(149*time.Millisecond), snap[len(snap)-1])
}
