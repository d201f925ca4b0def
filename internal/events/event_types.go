package events

import (
	"time"

	"github.com/fieldserve/visit-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated           EventType = "ticket_created"
	EventTicketStatusChanged     EventType = "ticket_status_changed"
	EventTicketSeverityChanged   EventType = "ticket_severity_changed"
	EventTicketNoteStatusChanged EventType = "ticket_note_status_changed"
	EventTicketTransferRequested EventType = "ticket_transfer_requested"
	EventTicketTransferRejected  EventType = "ticket_transfer_rejected"
	EventTicketTransferAccepted  EventType = "ticket_transfer_accepted"
	EventTicketAssigned          EventType = "ticket_assigned"
	EventTicketDateSet           EventType = "ticket_date_set"
	EventTicketMessageAdded      EventType = "ticket_message_added"
	EventVisitCreated            EventType = "visit_created"
	EventVisitResolved           EventType = "visit_resolved"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	AccountID string      `json:"account_id"`
	Role      domain.Role `json:"role"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id,omitempty"`
	VisitID   string      `json:"visit_id,omitempty"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Title               string                `json:"title"`
	Company             string                `json:"company"`
	Severity            domain.TicketSeverity `json:"severity"`
	ResponsibleEngineer *string               `json:"responsible_engineer,omitempty"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// TicketSeverityChangedPayload payload.
type TicketSeverityChangedPayload struct {
	OldSeverity domain.TicketSeverity `json:"old_severity"`
	NewSeverity domain.TicketSeverity `json:"new_severity"`
}

// TicketNoteStatusChangedPayload payload.
type TicketNoteStatusChangedPayload struct {
	OldNoteStatus domain.NoteStatus `json:"old_note_status"`
	NewNoteStatus domain.NoteStatus `json:"new_note_status"`
}

// TicketTransferPayload payload for transfer request/reject/accept.
type TicketTransferPayload struct {
	ResponsibleEngineer *string `json:"responsible_engineer,omitempty"`
	TransferEngineer    *string `json:"transfer_engineer,omitempty"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	OldEngineer *string `json:"old_engineer,omitempty"`
	NewEngineer *string `json:"new_engineer,omitempty"`
}

// TicketDateSetPayload payload.
type TicketDateSetPayload struct {
	ScheduledDate time.Time `json:"scheduled_date"`
}

// TicketMessageAddedPayload payload.
type TicketMessageAddedPayload struct {
	MessageID   string    `json:"message_id"`
	SenderID    string    `json:"sender_id"`
	SentAt      time.Time `json:"sent_at"`
	BodyPreview string    `json:"body_preview"`
}

// VisitCreatedPayload payload.
type VisitCreatedPayload struct {
	Title     string           `json:"title"`
	EventType domain.EventType `json:"event_type"`
	StartDate time.Time        `json:"start_date"`
	TicketIDs []string         `json:"ticket_ids,omitempty"`
}

// VisitResolvedPayload payload.
type VisitResolvedPayload struct {
	ReportURL *string `json:"report_url,omitempty"`
}
