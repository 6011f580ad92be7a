package websocket

import (
	"encoding/json"
	"time"
)

// MessageType identifies the type of WebSocket message.
type MessageType string

const (
	// Server -> Client event types
	TypeAppointmentChanged MessageType = "appointment.changed"
	TypeIncomeChanged      MessageType = "income.changed"
	TypeSyncStarted        MessageType = "sync.started"
	TypeSyncCompleted      MessageType = "sync.completed"
	TypeSyncError          MessageType = "sync.error"

	// Client -> Server
	TypePing MessageType = "ping"

	// Server -> Client responses
	TypePong  MessageType = "pong"
	TypeError MessageType = "error"
)

// Message represents a WebSocket message envelope.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload,omitempty"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(msgType MessageType, payload any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// JSON serializes the message to JSON bytes.
func (m Message) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// AppointmentPayload is the payload for appointment.changed events.
type AppointmentPayload struct {
	AppointmentID string `json:"appointmentId"`
	Action        string `json:"action"`
	Status        string `json:"status"`
	Cancelled     bool   `json:"cancelled"`
}

// IncomePayload is the payload for income.changed events.
type IncomePayload struct {
	IncomeEntryID string  `json:"incomeEntryId"`
	AppointmentID *string `json:"appointmentId,omitempty"`
	Action        string  `json:"action"`
}

// SyncPayload is the payload for sync.completed events.
type SyncPayload struct {
	Imported int `json:"imported"`
	Updated  int `json:"updated"`
	Deleted  int `json:"deleted"`
	Total    int `json:"total"`
}

// SyncErrorPayload is the payload for sync.error events.
type SyncErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
