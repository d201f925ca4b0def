package domain

import "time"

// NotificationType classifies notification records.
type NotificationType string

const (
	NotificationTypeTicket NotificationType = "TICKET"
	NotificationTypeSystem NotificationType = "SYSTEM"
	NotificationTypeInfo   NotificationType = "INFO"
)

// Notification is an immutable record of a triggering fact. Only the Read
// flag is ever mutated after creation.
type Notification struct {
	ID        string
	Title     string
	Message   string
	Type      NotificationType
	TicketID  *string
	Read      bool
	CreatedAt time.Time
}
