package domain

import "time"

// TicketMessage captures one entry in a ticket's conversation thread.
type TicketMessage struct {
	ID        string
	TicketID  string
	SenderID  string
	Body      string
	CreatedAt time.Time
}

// TicketViewState records one viewer's read position on one ticket. Unread
// flags are derived from this per viewer, never stored on the ticket itself.
type TicketViewState struct {
	TicketID   string
	ViewerID   string
	LastReadAt *time.Time
	Viewed     bool
}
