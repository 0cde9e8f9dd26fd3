package notify

import (
	"testing"
	"time"
)

func TestBroadcaster_PublishReachesSubscribersOfURI(t *testing.T) {
	b := NewBroadcaster()
	var got []string

	b.Subscribe("a", func(uri string) { got = append(got, "first:"+uri) })
	b.Subscribe("a", func(uri string) { got = append(got, "second:"+uri) })
	b.Subscribe("b", func(uri string) { got = append(got, "other:"+uri) })

	b.Publish("a")

	if len(got) != 2 || got[0] != "first:a" || got[1] != "second:a" {
		t.Errorf("unexpected deliveries: %v", got)
	}
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := NewBroadcaster()
	calls := 0
	unsubscribe := b.Subscribe("a", func(string) { calls++ })

	b.Publish("a")
	unsubscribe()
	unsubscribe()
	b.Publish("a")

	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if b.Count("a") != 0 {
		t.Errorf("expected no subscribers, got %d", b.Count("a"))
	}
}

func TestBroadcaster_CallbackMaySubscribe(t *testing.T) {
	b := NewBroadcaster()
	done := make(chan struct{})

	b.Subscribe("a", func(string) {
		b.Subscribe("b", func(string) {})
		close(done)
	})
	b.Publish("a")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback deadlocked")
	}
}

func TestBroadcaster_SubscribeChan(t *testing.T) {
	b := NewBroadcaster()
	ch, unsubscribe := b.SubscribeChan("a")
	defer unsubscribe()

	b.Publish("a")
	b.Publish("a")

	select {
	case uri := <-ch:
		if uri != "a" {
			t.Errorf("got %q", uri)
		}
	case <-time.After(time.Second):
		t.Fatal("no notification received")
	}

	select {
	case <-ch:
		t.Error("expected the second signal to be coalesced")
	default:
	}
}
