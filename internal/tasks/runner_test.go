package tasks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dl-alexandre/ecmdocs/internal/notify"
	"github.com/dl-alexandre/ecmdocs/internal/pending"
	"github.com/dl-alexandre/ecmdocs/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner() (*Runner, *pending.Tracker, *notify.Broadcaster) {
	tracker := pending.NewTracker()
	notifier := notify.NewBroadcaster()
	return NewRunner(tracker, notifier, Options{Timeout: 5 * time.Second}), tracker, notifier
}

func waitFor(t *testing.T, ch <-chan string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
}

func TestRunner_PendingUntilFetchReturns(t *testing.T) {
	r, tracker, notifier := newTestRunner()
	task := Task{URI: "uri-1", Routine: "folder"}
	changed, unsubscribe := notifier.SubscribeChan(task.URI)
	defer unsubscribe()

	release := make(chan struct{})
	started := r.Start(task, func(ctx context.Context) error {
		<-release
		return nil
	})

	require.True(t, started)
	assert.Equal(t, pending.Pending, tracker.Status("uri-1"), "scope must be pending before the fetch runs")

	close(release)
	waitFor(t, changed)
	assert.Equal(t, pending.Settled, tracker.Status("uri-1"))

	out, ok := tracker.Drain("uri-1")
	require.True(t, ok)
	assert.NoError(t, out.Err)
}

func TestRunner_SingleFlight(t *testing.T) {
	r, _, _ := newTestRunner()
	task := Task{URI: "uri-1"}
	var runs int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Start(task, func(ctx context.Context) error {
				atomic.AddInt32(&runs, 1)
				<-release
				return nil
			})
		}()
	}
	wg.Wait()
	close(release)
	r.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
}

func TestRunner_ErrorIsSettledOnScope(t *testing.T) {
	r, tracker, _ := newTestRunner()
	boom := errors.New("remote failure")

	r.Start(Task{URI: "uri-1"}, func(ctx context.Context) error { return boom })
	r.Wait()

	out, ok := tracker.Drain("uri-1")
	require.True(t, ok)
	assert.ErrorIs(t, out.Err, boom)
}

func TestRunner_KeyDefaultsToURI(t *testing.T) {
	r, tracker, _ := newTestRunner()

	r.Start(Task{URI: "uri-1", Key: "scope-1"}, func(ctx context.Context) error { return nil })
	r.Wait()

	assert.Equal(t, pending.Settled, tracker.Status("scope-1"))
	assert.Equal(t, pending.Absent, tracker.Status("uri-1"))
}

func TestRunner_DeferredThenResumed(t *testing.T) {
	r, tracker, notifier := newTestRunner()
	task := Task{URI: "uri-1", Routine: "account-root"}
	var notified int32
	notifier.Subscribe(task.URI, func(string) { atomic.AddInt32(&notified, 1) })

	r.Start(task, func(ctx context.Context) error { return ErrDeferred })
	r.Wait()

	assert.Equal(t, pending.Pending, tracker.Status("uri-1"), "deferred fetch keeps the scope pending")
	assert.Equal(t, int32(0), atomic.LoadInt32(&notified))
	assert.False(t, r.Start(task, func(ctx context.Context) error { return nil }), "no duplicate fetch while deferred")

	r.Resume(task, func(ctx context.Context) error { return nil })
	r.Wait()

	assert.Equal(t, pending.Settled, tracker.Status("uri-1"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&notified))
}

func TestRunner_SettleDeferred(t *testing.T) {
	r, tracker, _ := newTestRunner()
	task := Task{URI: "uri-1"}
	denied := errors.New("authorization denied")

	r.Start(task, func(ctx context.Context) error { return ErrDeferred })
	r.Wait()
	r.Settle(task, denied)

	out, ok := tracker.Drain("uri-1")
	require.True(t, ok)
	assert.ErrorIs(t, out.Err, denied)
}

func TestRunner_ResumeIgnoredWhenNotPending(t *testing.T) {
	r, tracker, _ := newTestRunner()
	ran := false

	r.Resume(Task{URI: "uri-1"}, func(ctx context.Context) error { ran = true; return nil })
	r.Wait()

	assert.False(t, ran)
	assert.Equal(t, pending.Absent, tracker.Status("uri-1"))
}

func TestRunner_PanicSettlesWithInternalError(t *testing.T) {
	r, tracker, _ := newTestRunner()

	r.Start(Task{URI: "uri-1"}, func(ctx context.Context) error { panic("nil folder") })
	r.Wait()

	out, ok := tracker.Drain("uri-1")
	require.True(t, ok)
	assert.True(t, utils.IsCode(out.Err, utils.ErrCodeInternalError))
}

func TestRunner_FetchContextCarriesTimeout(t *testing.T) {
	tracker := pending.NewTracker()
	r := NewRunner(tracker, notify.NewBroadcaster(), Options{Timeout: 20 * time.Millisecond})

	r.Start(Task{URI: "uri-1"}, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	r.Wait()

	out, _ := tracker.Drain("uri-1")
	assert.ErrorIs(t, out.Err, context.DeadlineExceeded)
}
