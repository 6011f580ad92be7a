package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/lash-studio/backoffice/internal/apperror"
	"github.com/lash-studio/backoffice/internal/storage/models"
)

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case raw, ok := <-c.Send():
		if !ok {
			t.Fatal("client channel closed")
		}
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("decoding message: %v", err)
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Message{}
}

func TestBroadcastReachesClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)

	client := NewClient(hub)
	if !hub.Register(client) {
		t.Fatal("Register() on running hub = false")
	}

	b := NewEventBroadcaster(hub)
	b.AppointmentChanged(&models.Appointment{ID: "a1", Status: models.StatusDismissed}, "dismiss")

	msg := receive(t, client)
	if msg.Type != TypeAppointmentChanged {
		t.Errorf("type = %s", msg.Type)
	}
	payload, _ := msg.Payload.(map[string]any)
	if payload["appointmentId"] != "a1" || payload["status"] != "dismissed" {
		t.Errorf("payload = %v", msg.Payload)
	}

	b.SyncFailed(apperror.Internal("sync", errors.New("graph down")))
	msg = receive(t, client)
	payload, _ = msg.Payload.(map[string]any)
	if msg.Type != TypeSyncError || payload["code"] != "INTERNAL_ERROR" || payload["message"] != "Unerwarteter Fehler" {
		t.Errorf("sync error message = %+v", msg)
	}
}

func TestRunClosesClientsOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	client := NewClient(hub)
	hub.Register(client)
	cancel()
	<-stopped

	if _, ok := <-client.Send(); ok {
		t.Error("client channel still open after shutdown")
	}
	if hub.Register(NewClient(hub)) {
		t.Error("Register() after shutdown = true")
	}
	hub.Unregister(client) // must not block
}

func TestNilBroadcasterIsSafe(t *testing.T) {
	var b *EventBroadcaster
	b.SyncStarted()
	b.SyncCompleted(models.SyncResult{Imported: 1})
}
