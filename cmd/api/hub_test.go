package main

import (
	"testing"
)

func signalled(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestSubscriptionHub_RegisterAndBroadcast(t *testing.T) {
	hub := NewSubscriptionHub()

	idA, chA := hub.Register("alice@example.com")
	_, chB := hub.Register("alice@example.com") // second connection
	_, chC := hub.Register("bob@example.com")

	if n := hub.Broadcast(); n != 3 {
		t.Fatalf("expected 3 subscribers signalled, got %d", n)
	}
	if !signalled(chA) || !signalled(chB) || !signalled(chC) {
		t.Fatalf("every subscriber should have been signalled")
	}

	// Unregister A and ensure it no longer receives signals
	hub.Unregister("alice@example.com", idA)
	if n := hub.Broadcast(); n != 2 {
		t.Fatalf("expected 2 subscribers after unregister, got %d", n)
	}
	if signalled(chA) {
		t.Fatalf("subscriber A should not be signalled after unregister")
	}
	if !hub.Connected("alice@example.com") {
		t.Fatalf("alice still has a second subscription")
	}
}

func TestSubscriptionHub_BroadcastCoalesces(t *testing.T) {
	hub := NewSubscriptionHub()
	_, ch := hub.Register("d@example.com")

	// A slow subscriber must not block broadcasts; pending signals collapse.
	for i := 0; i < 5; i++ {
		hub.Broadcast()
	}
	if !signalled(ch) {
		t.Fatalf("expected a pending signal")
	}
	if signalled(ch) {
		t.Fatalf("expected signals to collapse into one")
	}
}

func TestSubscriptionHub_UnregisterUnknown(t *testing.T) {
	hub := NewSubscriptionHub()
	id, _ := hub.Register("e@example.com")

	hub.Unregister("nobody@example.com", id)
	hub.Unregister("e@example.com", id+100)
	if !hub.Connected("e@example.com") {
		t.Fatalf("unknown unregister removed a live subscription")
	}

	hub.Unregister("e@example.com", id)
	hub.Unregister("e@example.com", id)
	if hub.Connected("e@example.com") {
		t.Fatalf("expected no subscription left")
	}
	if n := hub.Broadcast(); n != 0 {
		t.Fatalf("expected no subscribers, got %d", n)
	}
}
