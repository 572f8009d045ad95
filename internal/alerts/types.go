package alerts

import (
	"time"

	"github.com/shopspring/decimal"
)

// Task type constants
const (
	TaskTransition = "notify:transition"
)

// QueueAlerts is the asynq queue transition notices are enqueued on.
const QueueAlerts = "alerts"

// TransitionPayload is the task body for a lifecycle notice sent to the
// other party of a service request.
type TransitionPayload struct {
	Event       string          `json:"event"`
	ServiceID   string          `json:"service_id"`
	Title       string          `json:"title"`
	ActorID     string          `json:"actor_id"`
	RecipientID string          `json:"recipient_id"`
	Status      string          `json:"status"`
	Price       decimal.Decimal `json:"price"`
	SentAt      time.Time       `json:"sent_at"`
}

// Summary is the one-line text a delivery channel would show the recipient.
func (p TransitionPayload) Summary() string {
	switch p.Event {
	case "accept":
		return "Your request \"" + p.Title + "\" was accepted at " + p.Price.StringFixed(2)
	case "propose_counter_offer":
		return "A provider proposed " + p.Price.StringFixed(2) + " for \"" + p.Title + "\""
	case "approve_proposal":
		return "Your proposal for \"" + p.Title + "\" was approved"
	case "reject_proposal":
		return "Your proposal for \"" + p.Title + "\" was declined"
	case "finish":
		return "\"" + p.Title + "\" was marked as finished"
	default:
		return "\"" + p.Title + "\" changed to " + p.Status
	}
}
