package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/fieldserve/visit-service/internal/api/dto"
	"github.com/fieldserve/visit-service/internal/auth"
	"github.com/fieldserve/visit-service/internal/domain"
	"github.com/fieldserve/visit-service/internal/service"
	apperrors "github.com/fieldserve/visit-service/pkg/util"
)

// VisitsHandler manages visit planning and event endpoints.
type VisitsHandler struct {
	service *service.VisitService
}

// NewVisitsHandler constructs handler.
func NewVisitsHandler(visitService *service.VisitService) *VisitsHandler {
	return &VisitsHandler{service: visitService}
}

// PlanContract POST /contracts/plan.
func (h *VisitsHandler) PlanContract(c *fiber.Ctx) error {
	actor, ok := auth.AccountFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.ContractPlanRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	visits, err := h.service.PlanContractVisits(c.UserContext(), actor, service.ContractPlanInput{
		ClientCompany:       req.ClientCompany,
		TeamName:            req.TeamName,
		ResponsibleEngineer: req.ResponsibleEngineer,
		ContractStart:       req.ContractStart,
		ContractEnd:         req.ContractEnd,
		NumberOfVisits:      req.NumberOfVisits,
	})
	if err != nil {
		return err
	}
	items := make([]dto.VisitResponse, 0, len(visits))
	for i := range visits {
		items = append(items, visitResponse(&visits[i]))
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": items})
}

// ComposeGroup POST /events/group.
func (h *VisitsHandler) ComposeGroup(c *fiber.Ctx) error {
	actor, ok := auth.AccountFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.GroupEventRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	visit, err := h.service.ComposeGroupEvent(c.UserContext(), actor, service.GroupEventInput{
		TicketIDs: req.TicketIDs,
		TeamName:  req.TeamName,
		VisitDate: req.VisitDate,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": visitResponse(visit)})
}

// ListVisits GET /events.
func (h *VisitsHandler) ListVisits(c *fiber.Ctx) error {
	actor, ok := auth.AccountFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	visits, err := h.service.ListVisits(c.UserContext(), actor, parseVisitQuery(c))
	if err != nil {
		return err
	}
	items := make([]dto.VisitResponse, 0, len(visits))
	for i := range visits {
		items = append(items, visitResponse(&visits[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Resolve PATCH /events/:id/resolve.
func (h *VisitsHandler) Resolve(c *fiber.Ctx) error {
	actor, ok := auth.AccountFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.ResolveVisitRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	visit, err := h.service.ResolveVisit(c.UserContext(), actor, c.Params("id"), req.ReportURL)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": visitResponse(visit)})
}

func parseVisitQuery(c *fiber.Ctx) service.VisitListFilter {
	filter := service.VisitListFilter{}
	if resolvedStr := c.Query("resolved"); resolvedStr != "" {
		resolved := strings.EqualFold(resolvedStr, "true")
		filter.Resolved = &resolved
	}
	if team := strings.TrimSpace(c.Query("team")); team != "" {
		filter.TeamName = &team
	}
	if from := parseTime(c.Query("start_from")); from != nil {
		filter.StartFrom = from
	}
	if to := parseTime(c.Query("start_to")); to != nil {
		filter.StartTo = to
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 50)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func visitResponse(visit *domain.Event) dto.VisitResponse {
	return dto.VisitResponse{
		ID:                  visit.ID,
		Title:               visit.Title,
		StartDate:           visit.StartDate,
		EndDate:             visit.EndDate,
		TeamName:            visit.TeamName,
		ProjectName:         visit.ProjectName,
		Location:            visit.Location,
		TicketIDs:           visit.TicketIDs,
		EventType:           visit.EventType,
		ResponsibleEngineer: visit.ResponsibleEngineer,
		Resolved:            visit.Resolved,
		ReportURL:           visit.ReportURL,
		CreatedAt:           visit.CreatedAt,
		UpdatedAt:           visit.UpdatedAt,
	}
}
