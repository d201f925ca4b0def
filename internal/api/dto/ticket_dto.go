package dto

import (
	"time"

	"github.com/fieldserve/visit-service/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title               string                `json:"title"`
	Description         string                `json:"description"`
	Company             string                `json:"company"`
	Location            string                `json:"location"`
	Severity            domain.TicketSeverity `json:"severity"`
	ResponsibleEngineer *string               `json:"responsible_engineer,omitempty"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status domain.TicketStatus `json:"status"`
}

// UpdateSeverityRequest payload.
type UpdateSeverityRequest struct {
	Severity domain.TicketSeverity `json:"severity"`
}

// UpdateNoteStatusRequest payload.
type UpdateNoteStatusRequest struct {
	NoteStatus domain.NoteStatus `json:"note_status"`
}

// TransferRequest names the engineer a ticket should move to.
type TransferRequest struct {
	EngineerID string `json:"engineer_id"`
}

// SetDateRequest payload.
type SetDateRequest struct {
	ScheduledDate time.Time `json:"scheduled_date"`
}

// AssignRequest payload.
type AssignRequest struct {
	EngineerID string `json:"engineer_id"`
}

// CreateMessageRequest payload.
type CreateMessageRequest struct {
	Body string `json:"body"`
}

// TicketSummary response.
type TicketSummary struct {
	ID                  string                `json:"id"`
	ReadableID          *string               `json:"readable_id,omitempty"`
	Title               string                `json:"title"`
	Company             string                `json:"company"`
	Location            string                `json:"location"`
	Severity            domain.TicketSeverity `json:"severity"`
	Status              domain.TicketStatus   `json:"status"`
	NoteStatus          domain.NoteStatus     `json:"note_status"`
	ResponsibleEngineer *string               `json:"responsible_engineer,omitempty"`
	TransferEngineer    *string               `json:"transfer_engineer,omitempty"`
	IsDateSet           bool                  `json:"is_date_set"`
	ScheduledDate       *time.Time            `json:"scheduled_date,omitempty"`
	CreatedAt           time.Time             `json:"created_at"`
	UpdatedAt           time.Time             `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info with the message thread.
type TicketDetailResponse struct {
	TicketSummary
	Description string                  `json:"description"`
	CreatedBy   string                  `json:"created_by"`
	Messages    []TicketMessageResponse `json:"messages"`
}

// TicketMessageResponse represents a thread message.
type TicketMessageResponse struct {
	ID        string    `json:"id"`
	SenderID  string    `json:"sender_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}
