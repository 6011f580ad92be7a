// Package appointment implements the triage lifecycle of synced appointments
// and the confirmation workflow that books them as income.
package appointment

import (
	"fmt"

	"github.com/lash-studio/backoffice/internal/storage/models"
)

// Action is a user or system operation on an appointment.
type Action string

const (
	ActionConfirm   Action = "confirm"
	ActionDismiss   Action = "dismiss"
	ActionReconcile Action = "sync_dismiss"
	ActionRevert    Action = "revert"
	ActionCancel    Action = "cancel"
	ActionUncancel  Action = "uncancel"

	// ActionConfirmUpdate edits the income entry of a confirmed appointment.
	ActionConfirmUpdate Action = "confirm_update"
)

// statusTransitions lists every allowed status change. cancel and uncancel
// do not appear because they never change the status.
var statusTransitions = map[models.AppointmentStatus]map[Action]models.AppointmentStatus{
	models.StatusPending: {
		ActionConfirm:   models.StatusConfirmed,
		ActionDismiss:   models.StatusDismissed,
		ActionReconcile: models.StatusDismissed,
	},
	models.StatusConfirmed: {
		ActionRevert: models.StatusPending,
	},
	models.StatusDismissed: {
		ActionRevert: models.StatusPending,
	},
}

// Next returns the status reached by applying action in status from.
func Next(from models.AppointmentStatus, action Action) (models.AppointmentStatus, bool) {
	switch action {
	case ActionCancel, ActionUncancel:
		return from, from.Valid()
	}
	to, ok := statusTransitions[from][action]
	return to, ok
}

// SourcesOf returns the statuses from which action changes the status.
func SourcesOf(action Action) []models.AppointmentStatus {
	var out []models.AppointmentStatus
	for _, from := range []models.AppointmentStatus{models.StatusPending, models.StatusConfirmed, models.StatusDismissed} {
		if _, ok := statusTransitions[from][action]; ok {
			out = append(out, from)
		}
	}
	return out
}

var statusLabels = map[models.AppointmentStatus]string{
	models.StatusPending:   "offen",
	models.StatusConfirmed: "bestätigt",
	models.StatusDismissed: "verworfen",
}

var actionLabels = map[Action]string{
	ActionConfirm:  "bestätigt",
	ActionDismiss:  "verworfen",
	ActionRevert:   "zurückgesetzt",
	ActionCancel:   "abgesagt",
	ActionUncancel: "reaktiviert",
}

func transitionMessage(from models.AppointmentStatus, action Action) string {
	return fmt.Sprintf("Termin ist %s und kann nicht %s werden", statusLabels[from], actionLabels[action])
}
