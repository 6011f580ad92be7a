package websocket

import (
	"go.uber.org/zap"

	"github.com/lash-studio/backoffice/internal/apperror"
	"github.com/lash-studio/backoffice/internal/logging"
	"github.com/lash-studio/backoffice/internal/storage/models"
)

// EventBroadcaster turns domain events into WebSocket messages.
// A nil *EventBroadcaster is valid and drops everything.
type EventBroadcaster struct {
	hub *Hub
}

// NewEventBroadcaster creates a new event broadcaster.
func NewEventBroadcaster(hub *Hub) *EventBroadcaster {
	return &EventBroadcaster{hub: hub}
}

// SyncStarted announces a sync run.
func (b *EventBroadcaster) SyncStarted() {
	b.broadcast(NewMessage(TypeSyncStarted, nil))
}

// SyncCompleted sends the counts of a finished sync run.
func (b *EventBroadcaster) SyncCompleted(result models.SyncResult) {
	b.broadcast(NewMessage(TypeSyncCompleted, SyncPayload{
		Imported: result.Imported,
		Updated:  result.Updated,
		Deleted:  result.Deleted,
		Total:    result.Total,
	}))
}

// SyncFailed sends the user-facing message of a failed sync run.
func (b *EventBroadcaster) SyncFailed(err error) {
	b.broadcast(NewMessage(TypeSyncError, SyncErrorPayload{
		Code:    string(apperror.CodeOf(err)),
		Message: apperror.MessageOf(err),
	}))
}

// AppointmentChanged announces a state transition of an appointment.
func (b *EventBroadcaster) AppointmentChanged(a *models.Appointment, action string) {
	if a == nil {
		return
	}
	b.broadcast(NewMessage(TypeAppointmentChanged, AppointmentPayload{
		AppointmentID: a.ID,
		Action:        action,
		Status:        string(a.Status),
		Cancelled:     a.Cancelled,
	}))
}

// IncomeChanged announces a created, updated or deleted income entry.
func (b *EventBroadcaster) IncomeChanged(entryID string, appointmentID *string, action string) {
	b.broadcast(NewMessage(TypeIncomeChanged, IncomePayload{
		IncomeEntryID: entryID,
		AppointmentID: appointmentID,
		Action:        action,
	}))
}

func (b *EventBroadcaster) broadcast(msg Message) {
	if b == nil || b.hub == nil {
		return
	}

	data, err := msg.JSON()
	if err != nil {
		logging.Log.Error("encoding websocket message", zap.String("type", string(msg.Type)), zap.Error(err))
		return
	}

	b.hub.Broadcast(data)
}
