package pending

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_Lifecycle(t *testing.T) {
	tr := NewTracker()
	key := "content://ecmdocs/document/f1/children"

	assert.Equal(t, Absent, tr.Status(key))
	require.True(t, tr.Begin(key))
	assert.Equal(t, Pending, tr.Status(key))
	assert.Equal(t, 1, tr.InFlight())

	require.True(t, tr.End(key, nil))
	assert.Equal(t, Settled, tr.Status(key))
	assert.Equal(t, 0, tr.InFlight())

	out, ok := tr.Drain(key)
	require.True(t, ok)
	assert.NoError(t, out.Err)
	assert.False(t, out.SettledAt.Before(out.StartedAt))
	assert.Equal(t, Absent, tr.Status(key))
}

func TestTracker_BeginIsSingleFlight(t *testing.T) {
	tr := NewTracker()
	assert.True(t, tr.Begin("k"))
	assert.False(t, tr.Begin("k"), "pending key must not restart")

	tr.End("k", nil)
	assert.False(t, tr.Begin("k"), "settled key must be drained before restarting")

	tr.Clear("k")
	assert.True(t, tr.Begin("k"))
}

func TestTracker_ConcurrentBegin(t *testing.T) {
	tr := NewTracker()
	var started int32
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tr.Begin("same") {
				atomic.AddInt32(&started, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), started)
}

func TestTracker_ErrorSurfacesOnce(t *testing.T) {
	tr := NewTracker()
	boom := errors.New("remote failure")

	tr.Begin("k")
	tr.End("k", boom)

	out, ok := tr.Drain("k")
	require.True(t, ok)
	assert.ErrorIs(t, out.Err, boom)

	_, ok = tr.Drain("k")
	assert.False(t, ok, "a drained outcome must not be delivered twice")
}

func TestTracker_ErrorsAreScoped(t *testing.T) {
	tr := NewTracker()
	tr.Begin("a")
	tr.Begin("b")
	tr.End("a", errors.New("a failed"))
	tr.End("b", nil)

	outB, _ := tr.Drain("b")
	assert.NoError(t, outB.Err)
	outA, _ := tr.Drain("a")
	assert.EqualError(t, outA.Err, "a failed")
}

func TestTracker_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name string
		run  func(tr *Tracker) bool
	}{
		{"end absent", func(tr *Tracker) bool { return tr.End("k", nil) }},
		{"end settled", func(tr *Tracker) bool { tr.Begin("k"); tr.End("k", nil); return tr.End("k", nil) }},
		{"clear pending", func(tr *Tracker) bool { tr.Begin("k"); return tr.Clear("k") }},
		{"drain absent", func(tr *Tracker) bool { _, ok := tr.Drain("k"); return ok }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, tt.run(NewTracker()))
		})
	}
}
