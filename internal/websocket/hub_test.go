// Gridfleet - Fleet Operations Live Data Synchronization
// Copyright 2026 Gridfleet Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridfleet/gridfleet

package websocket

import (
	"context"
	"testing"
	"time"
)

func newHubForTest(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub
}

func testClient(hub *Hub) *Client {
	return &Client{
		id:   clientIDCounter.Add(1),
		hub:  hub,
		send: make(chan Message, 256),
	}
}

func TestHubRegisterAndBroadcast(t *testing.T) {
	hub := newHubForTest(t)

	c1 := testClient(hub)
	c2 := testClient(hub)
	hub.Register <- c1
	hub.Register <- c2

	waitCount(t, hub, 2)

	hub.Broadcast(MessageTypeTripUpdate, map[string]string{"trip_id": "t1"})

	for _, c := range []*Client{c1, c2} {
		select {
		case msg := <-c.send:
			if msg.Type != MessageTypeTripUpdate {
				t.Errorf("type = %s, want trip_update", msg.Type)
			}
		case <-time.After(time.Second):
			t.Fatal("client did not receive broadcast")
		}
	}
}

func TestHubUnregisterStopsDelivery(t *testing.T) {
	hub := newHubForTest(t)

	c := testClient(hub)
	hub.Register <- c
	waitCount(t, hub, 1)

	hub.Unregister <- c
	waitCount(t, hub, 0)

	// The send channel is closed on unregister.
	select {
	case _, ok := <-c.send:
		if ok {
			t.Error("send channel received a message, want closed")
		}
	case <-time.After(time.Second):
		t.Fatal("send channel not closed")
	}
}

func TestHubDropsClientWithFullBuffer(t *testing.T) {
	hub := newHubForTest(t)

	stuck := &Client{id: clientIDCounter.Add(1), hub: hub, send: make(chan Message)} // unbuffered, never drained
	healthy := testClient(hub)
	hub.Register <- stuck
	hub.Register <- healthy
	waitCount(t, hub, 2)

	hub.Broadcast(MessageTypeAlert, nil)

	select {
	case msg := <-healthy.send:
		if msg.Type != MessageTypeAlert {
			t.Errorf("type = %s", msg.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("healthy client starved by stuck client")
	}
	waitCount(t, hub, 1)
}

func waitCount(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("ClientCount() = %d, want %d", hub.ClientCount(), want)
}
