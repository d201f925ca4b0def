package dto

import (
	"time"

	"github.com/fieldserve/visit-service/internal/domain"
)

// ContractPlanRequest describes a contract's recurring visit plan.
type ContractPlanRequest struct {
	ClientCompany       string    `json:"client_company"`
	TeamName            string    `json:"team_name"`
	ResponsibleEngineer *string   `json:"responsible_engineer,omitempty"`
	ContractStart       time.Time `json:"contract_start"`
	ContractEnd         time.Time `json:"contract_end"`
	NumberOfVisits      int       `json:"number_of_visits"`
}

// GroupEventRequest composes one visit out of selected tickets.
type GroupEventRequest struct {
	TicketIDs []string  `json:"ticket_ids"`
	TeamName  string    `json:"team_name"`
	VisitDate time.Time `json:"visit_date"`
}

// ResolveVisitRequest payload.
type ResolveVisitRequest struct {
	ReportURL *string `json:"report_url,omitempty"`
}

// VisitResponse is the visit/event projection.
type VisitResponse struct {
	ID                  string           `json:"id"`
	Title               string           `json:"title"`
	StartDate           time.Time        `json:"start_date"`
	EndDate             time.Time        `json:"end_date"`
	TeamName            string           `json:"team_name,omitempty"`
	ProjectName         string           `json:"project_name"`
	Location            string           `json:"location"`
	TicketIDs           []string         `json:"ticket_ids,omitempty"`
	EventType           domain.EventType `json:"event_type"`
	ResponsibleEngineer *string          `json:"responsible_engineer,omitempty"`
	Resolved            bool             `json:"resolved"`
	ReportURL           *string          `json:"report_url,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// NotificationResponse is the notification feed projection.
type NotificationResponse struct {
	ID        string                  `json:"id"`
	Title     string                  `json:"title"`
	Message   string                  `json:"message"`
	Type      domain.NotificationType `json:"type"`
	TicketID  *string                 `json:"ticket_id,omitempty"`
	Read      bool                    `json:"read"`
	CreatedAt time.Time               `json:"created_at"`
}
