package event

import (
	"sync"
	"testing"
)

type testEvent struct {
	Cancel
	n int
}

type plainEvent struct {
	n int
}

func TestFirePriorityOrder(t *testing.T) {
	b := NewBus()
	var order []string

	Subscribe[testEvent](b, "t", Low, false, func(*testEvent) { order = append(order, "low") })
	Subscribe[testEvent](b, "t", Monitor, false, func(*testEvent) { order = append(order, "monitor") })
	Subscribe[testEvent](b, "t", High, false, func(*testEvent) { order = append(order, "high") })
	Subscribe[testEvent](b, "t", Normal, false, func(*testEvent) { order = append(order, "normal") })

	b.Fire(&testEvent{})

	want := []string{"high", "normal", "low", "monitor"}
	if len(order) != len(want) {
		t.Fatalf("ran %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("ran %v, want %v", order, want)
		}
	}
}

func TestFireRegistrationOrderWithinPriority(t *testing.T) {
	b := NewBus()
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		Subscribe[testEvent](b, "t", Normal, false, func(*testEvent) { order = append(order, i) })
	}
	b.Fire(&testEvent{})
	for i, got := range order {
		if got != i {
			t.Fatalf("order %v not stable", order)
		}
	}
}

func TestCancellationSkipsLaterBindings(t *testing.T) {
	b := NewBus()
	var ran []string

	Subscribe[testEvent](b, "t", High, false, func(ev *testEvent) {
		ran = append(ran, "canceller")
		ev.SetCancelled(true)
	})
	Subscribe[testEvent](b, "t", Normal, false, func(*testEvent) {
		ran = append(ran, "skipped")
	})
	Subscribe[testEvent](b, "t", Monitor, true, func(*testEvent) {
		ran = append(ran, "observer")
	})

	ev := &testEvent{}
	b.Fire(ev)

	if !ev.Cancelled() {
		t.Fatal("event not cancelled")
	}
	if len(ran) != 2 || ran[0] != "canceller" || ran[1] != "observer" {
		t.Fatalf("ran %v, want [canceller observer]", ran)
	}
}

func TestUncancellation(t *testing.T) {
	b := NewBus()
	var ran []string

	Subscribe[testEvent](b, "t", High, false, func(ev *testEvent) { ev.SetCancelled(true) })
	Subscribe[testEvent](b, "t", Normal, true, func(ev *testEvent) { ev.SetCancelled(false) })
	Subscribe[testEvent](b, "t", Low, false, func(*testEvent) { ran = append(ran, "low") })

	ev := &testEvent{}
	b.Fire(ev)

	if ev.Cancelled() {
		t.Fatal("event still cancelled after uncancel")
	}
	if len(ran) != 1 {
		t.Fatalf("low binding did not run after uncancel: %v", ran)
	}
}

func TestFireNonCancellableEvent(t *testing.T) {
	b := NewBus()
	ran := 0
	Subscribe[plainEvent](b, "t", Normal, false, func(*plainEvent) { ran++ })
	b.Fire(&plainEvent{n: 1})
	if ran != 1 {
		t.Fatalf("ran %d times", ran)
	}
}

func TestFireExactTypeMatch(t *testing.T) {
	b := NewBus()
	ran := 0
	Subscribe[testEvent](b, "t", Normal, false, func(*testEvent) { ran++ })
	b.Fire(&plainEvent{})
	if ran != 0 {
		t.Fatal("binding ran for a different event type")
	}
}

func TestUnregister(t *testing.T) {
	b := NewBus()
	var ran []string

	Subscribe[testEvent](b, "keep", Normal, false, func(*testEvent) { ran = append(ran, "keep") })
	Subscribe[testEvent](b, "drop", Normal, false, func(*testEvent) { ran = append(ran, "drop") })
	SubscribePacket[plainEvent](b, "drop", Normal, false, func(*PacketEvent) { ran = append(ran, "drop-pkt") })

	b.Unregister("drop")
	b.Fire(&testEvent{})
	b.FirePacket(nil, &plainEvent{})

	if len(ran) != 1 || ran[0] != "keep" {
		t.Fatalf("ran %v, want [keep]", ran)
	}
}

type fakeSession struct{ id int }

func TestFirePacketCancellation(t *testing.T) {
	b := NewBus()
	sess := &fakeSession{id: 7}

	SubscribePacket[plainEvent](b, "t", High, false, func(ev *PacketEvent) {
		if ev.Session.(*fakeSession).id != 7 {
			t.Error("wrong session")
		}
		if ev.Packet.(*plainEvent).n != 3 {
			t.Error("wrong packet")
		}
		ev.SetCancelled(true)
	})

	if !b.FirePacket(sess, &plainEvent{n: 3}) {
		t.Fatal("cancellation not reported")
	}
	if b.FirePacket(sess, &testEvent{}) {
		t.Fatal("packet with no bindings reported cancelled")
	}
}

func TestBusConcurrentSubscribeAndFire(t *testing.T) {
	b := NewBus()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			Subscribe[plainEvent](b, i, Normal, false, func(*plainEvent) {})
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Fire(&plainEvent{})
			}
		}()
	}
	wg.Wait()
}
