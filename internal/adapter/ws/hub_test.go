package ws

import (
	"context"
	"testing"
)

func TestNewHub(t *testing.T) {
	hub := NewHub()
	if hub == nil {
		t.Fatal("expected non-nil hub")
	}
	if hub.ConnectionCount() != 0 {
		t.Fatalf("expected 0 connections, got %d", hub.ConnectionCount())
	}
}

func TestHubBroadcastNoConnections(t *testing.T) {
	hub := NewHub()

	// Broadcast with no connections should not panic.
	hub.Broadcast(context.Background(), "live_transcript", "call-1", map[string]string{
		"text": "hello",
	})
}

func TestHubBroadcastMarshalError(t *testing.T) {
	hub := NewHub()

	// A channel cannot be marshaled to JSON; must log, not panic.
	hub.Broadcast(context.Background(), "bad", "call-1", make(chan int))
}

func TestHubRemoveNonexistent(t *testing.T) {
	hub := NewHub()

	// Removing a connection that was never added should not panic.
	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := &conn{ws: nil, cancel: cancel, callID: "call-1"}
	hub.remove(c)
}
