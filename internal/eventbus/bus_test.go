package eventbus

import (
	"fmt"
	"slices"
	"testing"
)

type ping struct{ n int }

type pong struct{ n int }

func (p pong) String() string { return fmt.Sprintf("pong-%d", p.n) }

func TestPublish_DeliversByDynamicType(t *testing.T) {
	b := New(nil)
	var pings []int
	var pongs []int
	Subscribe(b, func(p ping) { pings = append(pings, p.n) })
	Subscribe(b, func(p pong) { pongs = append(pongs, p.n) })

	b.Publish(ping{1})
	b.Publish(pong{2})
	b.Publish(ping{3})

	if !slices.Equal(pings, []int{1, 3}) {
		t.Errorf("pings = %v, want [1 3]", pings)
	}
	if !slices.Equal(pongs, []int{2}) {
		t.Errorf("pongs = %v, want [2]", pongs)
	}
}

func TestPublish_InterfaceSubscriberMatchesImplementers(t *testing.T) {
	b := New(nil)
	var got []string
	Subscribe(b, func(s fmt.Stringer) { got = append(got, s.String()) })

	if n := b.Publish(ping{1}); n != 0 {
		t.Errorf("Publish(ping) delivered to %d, want 0", n)
	}
	if n := b.Publish(pong{7}); n != 1 {
		t.Errorf("Publish(pong) delivered to %d, want 1", n)
	}
	if !slices.Equal(got, []string{"pong-7"}) {
		t.Errorf("got = %v, want [pong-7]", got)
	}
}

func TestPublish_NoReplayForLateSubscribers(t *testing.T) {
	b := New(nil)
	b.Publish(ping{1})

	var got []int
	Subscribe(b, func(p ping) { got = append(got, p.n) })
	if len(got) != 0 {
		t.Fatalf("late subscriber saw %v", got)
	}
	b.Publish(ping{2})
	if !slices.Equal(got, []int{2}) {
		t.Fatalf("got = %v, want [2]", got)
	}
}

func TestUnsubscribe(t *testing.T) {
	var b Bus
	calls := 0
	unsubscribe := Subscribe(&b, func(ping) { calls++ })
	b.Publish(ping{})
	unsubscribe()
	unsubscribe()
	b.Publish(ping{})

	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if b.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", b.Len())
	}
}

func TestPublish_SurvivesPanickingSubscriber(t *testing.T) {
	b := New(nil)
	Subscribe(b, func(ping) { panic("boom") })
	reached := false
	Subscribe(b, func(ping) { reached = true })

	if n := b.Publish(ping{}); n != 1 {
		t.Errorf("delivered = %d, want 1", n)
	}
	if !reached {
		t.Fatal("subscriber after panicking one not called")
	}
}

func TestPublish_SubscriberMayUnsubscribeDuringDelivery(t *testing.T) {
	b := New(nil)
	var unsubscribe func()
	calls := 0
	unsubscribe = Subscribe(b, func(ping) {
		calls++
		unsubscribe()
	})
	b.Publish(ping{})
	b.Publish(ping{})
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}
