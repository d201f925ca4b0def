package domain

import "time"

// TicketStatus enumerates lifecycle states for maintenance tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusResolved   TicketStatus = "RESOLVED"
)

// TicketSeverity enumerates reported urgency.
type TicketSeverity string

const (
	SeverityLow      TicketSeverity = "LOW"
	SeverityMedium   TicketSeverity = "MEDIUM"
	SeverityHigh     TicketSeverity = "HIGH"
	SeverityCritical TicketSeverity = "CRITICAL"
)

// NoteStatus is the engineer-only annotation tracking quotation/material
// progress alongside the primary status.
type NoteStatus string

const (
	NoteStatusNone                NoteStatus = "NONE"
	NoteStatusQuotationSent       NoteStatus = "QUOTATION_SENT"
	NoteStatusMaterialNotComplete NoteStatus = "MATERIAL_NOT_COMPLETE"
	NoteStatusMaterialComplete    NoteStatus = "MATERIAL_COMPLETE"
)

// Ticket is the aggregate for a reported maintenance issue.
//
// TransferEngineer, when set, designates a pending reassignment: the ticket
// stays under ResponsibleEngineer's authority for every mutation except
// acceptance or rejection of the transfer.
type Ticket struct {
	ID                  string
	ReadableID          *string
	Title               string
	Description         string
	Company             string
	Location            string
	Severity            TicketSeverity
	Status              TicketStatus
	NoteStatus          NoteStatus
	ResponsibleEngineer *string
	TransferEngineer    *string
	IsDateSet           bool
	ScheduledDate       *time.Time
	CreatedBy           string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// ValidStatus reports whether s is one of the enumerated statuses.
func ValidStatus(s TicketStatus) bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved:
		return true
	}
	return false
}

// ValidSeverity reports whether s is one of the enumerated severities.
func ValidSeverity(s TicketSeverity) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// ValidNoteStatus reports whether s is one of the enumerated note statuses.
func ValidNoteStatus(s NoteStatus) bool {
	switch s {
	case NoteStatusNone, NoteStatusQuotationSent, NoteStatusMaterialNotComplete, NoteStatusMaterialComplete:
		return true
	}
	return false
}
