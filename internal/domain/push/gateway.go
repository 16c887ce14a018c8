package push

import "context"

// Action values carried in Data.Action.
const ActionOpenClient = "open_client"

// Data is the structured part of a notification used by clients to deep-link.
type Data struct {
	ClientID   string `json:"clientId"`
	ClientName string `json:"clientName"`
	Action     string `json:"action"`
	Link       string `json:"link"`
}

// Notification is a single follow-up alert for one user.
type Notification struct {
	ReminderID string `json:"reminderId"`
	UserID     string `json:"userId"`
	Title      string `json:"title"`
	Body       string `json:"body"`
	Data       Data   `json:"data"`
}

// Gateway delivers notifications over some channel.
type Gateway interface {
	Send(ctx context.Context, n Notification) error
}
