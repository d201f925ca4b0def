package domain

import "time"

// EventType differentiates single-ticket visits from grouped ones.
type EventType string

const (
	EventTypeSingle EventType = "SINGLE"
	EventTypeGroup  EventType = "GROUP"
)

// Event is one scheduled occurrence of work against zero or more tickets.
// For grouped events ProjectName and Location carry the de-duplicated union
// of the member tickets' values. Resolving an event never changes member
// ticket status.
type Event struct {
	ID                  string
	Title               string
	StartDate           time.Time
	EndDate             time.Time
	TeamName            string
	ProjectName         string
	Location            string
	TicketIDs           []string
	EventType           EventType
	ResponsibleEngineer *string
	Resolved            bool
	ReportURL           *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
