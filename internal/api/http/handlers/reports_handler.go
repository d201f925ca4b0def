package handlers

import (
	"bytes"
	"encoding/csv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/fieldserve/visit-service/internal/api/dto"
	"github.com/fieldserve/visit-service/internal/auth"
	"github.com/fieldserve/visit-service/internal/domain"
	"github.com/fieldserve/visit-service/internal/service"
	apperrors "github.com/fieldserve/visit-service/pkg/util"
)

// ReportsHandler exports stable, filtered ticket listings for reporting.
type ReportsHandler struct {
	service *service.TicketService
}

// NewReportsHandler constructs handler.
func NewReportsHandler(ticketService *service.TicketService) *ReportsHandler {
	return &ReportsHandler{service: ticketService}
}

// Tickets GET /reports/tickets. Returns JSON by default, CSV with
// ?format=csv. Rows keep the listing order so repeated exports line up.
func (h *ReportsHandler) Tickets(c *fiber.Ctx) error {
	actor, ok := auth.AccountFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	tickets, err := h.service.ReportTickets(c.UserContext(), actor, parseTicketQuery(c))
	if err != nil {
		return err
	}

	if strings.EqualFold(c.Query("format"), "csv") {
		return writeTicketCSV(c, tickets)
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items, "count": len(items)})
}

func writeTicketCSV(c *fiber.Ctx, tickets []domain.Ticket) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := []string{"id", "readable_id", "title", "company", "location", "severity", "status", "note_status", "responsible_engineer", "scheduled_date", "created_at"}
	if err := w.Write(header); err != nil {
		return apperrors.NewInternalError(err)
	}
	for i := range tickets {
		t := &tickets[i]
		row := []string{
			t.ID,
			orEmpty(t.ReadableID),
			t.Title,
			t.Company,
			t.Location,
			string(t.Severity),
			string(t.Status),
			string(t.NoteStatus),
			orEmpty(t.ResponsibleEngineer),
			formatDate(t.ScheduledDate),
			t.CreatedAt.Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return apperrors.NewInternalError(err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return apperrors.NewInternalError(err)
	}

	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="tickets.csv"`)
	return c.Send(buf.Bytes())
}

func orEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
