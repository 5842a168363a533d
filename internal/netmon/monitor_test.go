package netmon

import (
	"testing"
	"time"
)

func TestMonitor_StartsOnline(t *testing.T) {
	m := New(0)
	if !m.IsOnline() {
		t.Error("Expected monitor to start online")
	}
}

func TestMonitor_EmitsOnlyOnFlips(t *testing.T) {
	m := New(10 * time.Millisecond)

	var events []bool
	m.Subscribe(func(online bool) {
		events = append(events, online)
	})

	m.SetOnline(true)  // no-op, already online
	m.SetOnline(false) // flip
	m.SetOnline(false) // no-op

	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	if events[0] != false {
		t.Errorf("Expected offline event, got online")
	}
}

func TestMonitor_HoldWindowSuppressesPromotion(t *testing.T) {
	m := New(time.Hour)

	m.SetOnline(false)
	m.SetOnline(true) // inside hold window

	if m.IsOnline() {
		t.Error("Expected promotion inside hold window to be suppressed")
	}
}

func TestMonitor_ConfirmOnlineBypassesHoldWindow(t *testing.T) {
	m := New(time.Hour)

	var events []bool
	m.Subscribe(func(online bool) {
		events = append(events, online)
	})

	m.SetOnline(false)
	m.ConfirmOnline() // proof of connectivity, hold window does not apply

	if !m.IsOnline() {
		t.Error("Expected confirmed promotion inside the hold window to take effect")
	}
	if len(events) != 2 || events[1] != true {
		t.Errorf("Expected offline then online events, got %v", events)
	}

	m.ConfirmOnline() // no-op, already online
	if len(events) != 2 {
		t.Errorf("Expected no event for a confirmed non-flip, got %d", len(events))
	}
}

func TestMonitor_PromotionAfterHoldWindow(t *testing.T) {
	m := New(10 * time.Millisecond)

	m.SetOnline(false)
	time.Sleep(20 * time.Millisecond)
	m.SetOnline(true)

	if !m.IsOnline() {
		t.Error("Expected promotion after hold window to take effect")
	}
}

func TestMonitor_SubscribersFireInOrder(t *testing.T) {
	m := New(time.Millisecond)

	var order []int
	m.Subscribe(func(bool) { order = append(order, 1) })
	m.Subscribe(func(bool) { order = append(order, 2) })

	m.SetOnline(false)

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("Expected callbacks in subscription order, got %v", order)
	}
}

func TestMonitor_Unsubscribe(t *testing.T) {
	m := New(time.Millisecond)

	calls := 0
	unsub := m.Subscribe(func(bool) { calls++ })

	m.SetOnline(false)
	unsub()
	time.Sleep(5 * time.Millisecond)
	m.SetOnline(true)

	if calls != 1 {
		t.Errorf("Expected 1 call after unsubscribe, got %d", calls)
	}
}
