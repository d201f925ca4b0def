package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fieldserve/visit-service/internal/domain"
	"github.com/fieldserve/visit-service/internal/events"
	"github.com/fieldserve/visit-service/internal/repository"
	"github.com/fieldserve/visit-service/internal/schedule"
	apperrors "github.com/fieldserve/visit-service/pkg/util"
)

const (
	unknownLocation = "Unknown Location"
	unknownProject  = "Unknown Project"
)

// VisitService creates and manages visit events: recurring contract visits
// distributed by the scheduler, and grouped visits composed from selected
// tickets.
type VisitService struct {
	visits     repository.EventRepository
	tickets    repository.TicketRepository
	accounts   repository.AccountRepository
	dispatcher events.Dispatcher
	locker     *EntityLocker

	Now func() time.Time
}

// VisitDependencies bundles repositories for the visit service.
type VisitDependencies struct {
	EventRepo   repository.EventRepository
	TicketRepo  repository.TicketRepository
	AccountRepo repository.AccountRepository
	Dispatcher  events.Dispatcher

	// Locker must be the same instance the ticket service writes under:
	// grouping mutates member tickets and races direct ticket mutations
	// otherwise. Left nil, the service runs on a private one.
	Locker *EntityLocker
}

// ContractPlanInput is the ephemeral visit-plan payload. It is consumed once
// to produce events and is not persisted as its own entity.
type ContractPlanInput struct {
	ClientCompany       string
	TeamName            string
	ResponsibleEngineer *string
	ContractStart       time.Time
	ContractEnd         time.Time
	NumberOfVisits      int
}

// GroupEventInput describes a grouped visit composition.
type GroupEventInput struct {
	TicketIDs []string
	TeamName  string
	VisitDate time.Time
}

// VisitListFilter mirrors repository.EventFilter for the handler layer.
type VisitListFilter struct {
	Resolved  *bool
	TeamName  *string
	StartFrom *time.Time
	StartTo   *time.Time
	Limit     int
	Offset    int
}

// NewVisitService constructs the service.
func NewVisitService(deps VisitDependencies) *VisitService {
	locker := deps.Locker
	if locker == nil {
		locker = NewEntityLocker()
	}
	return &VisitService{
		visits:     deps.EventRepo,
		tickets:    deps.TicketRepo,
		accounts:   deps.AccountRepo,
		dispatcher: deps.Dispatcher,
		locker:     locker,
		Now:        time.Now,
	}
}

// PlanContractVisits distributes a contract's visits across its window and
// persists one event per produced date, each with the working-hours window.
// A create failure after the first visit is reported as a partial failure
// naming the visits that do exist.
func (s *VisitService) PlanContractVisits(ctx context.Context, actor *domain.Account, input ContractPlanInput) ([]domain.Event, error) {
	if actor == nil || !actor.IsAdmin() {
		return nil, apperrors.NewUnauthorized("admin required")
	}
	if strings.TrimSpace(input.ClientCompany) == "" {
		return nil, apperrors.NewValidationError("client company required", nil)
	}

	dates, err := schedule.Schedule(input.ContractStart, input.ContractEnd, input.NumberOfVisits)
	if err != nil {
		switch {
		case errors.Is(err, schedule.ErrInvalidRange):
			return nil, apperrors.NewInvalidRange(err.Error())
		case errors.Is(err, schedule.ErrInvalidCount):
			return nil, apperrors.NewInvalidCount(err.Error())
		}
		return nil, apperrors.MapError(err)
	}

	var engineer *string
	if input.ResponsibleEngineer != nil {
		account, err := s.accounts.GetByID(ctx, *input.ResponsibleEngineer)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NewNotFound("engineer", map[string]any{"account_id": *input.ResponsibleEngineer})
			}
			return nil, apperrors.MapError(err)
		}
		if !account.IsEngineer() {
			return nil, apperrors.NewValidationError("responsible account is not an engineer", nil)
		}
		engineer = &account.ID
	}

	created := make([]domain.Event, 0, len(dates))
	for i, date := range dates {
		start, end := schedule.VisitWindow(date)
		visit := domain.Event{
			Title:               fmt.Sprintf("Maintenance Visit %d/%d - %s", i+1, len(dates), input.ClientCompany),
			StartDate:           start,
			EndDate:             end,
			TeamName:            input.TeamName,
			ProjectName:         input.ClientCompany,
			EventType:           domain.EventTypeSingle,
			ResponsibleEngineer: engineer,
		}
		if err := s.visits.Create(ctx, &visit); err != nil {
			if len(created) == 0 {
				return nil, apperrors.MapError(err)
			}
			ids := make([]string, len(created))
			for j := range created {
				ids[j] = created[j].ID
			}
			return created, apperrors.NewPartialFailure("plan stopped before all visits were created",
				map[string]any{"created_visit_ids": ids, "planned_visits": len(dates)})
		}
		s.publish(ctx, actor, events.Event{
			Type:    events.EventVisitCreated,
			VisitID: visit.ID,
			Payload: events.VisitCreatedPayload{
				Title:     visit.Title,
				EventType: visit.EventType,
				StartDate: visit.StartDate,
			},
		})
		created = append(created, visit)
	}
	return created, nil
}

// ComposeGroupEvent aggregates the selected tickets into one scheduled
// visit, merging their locations and companies, then updates every member
// ticket's date. The event is created first; ticket updates that fail are
// reported as a partial failure naming the tickets to retry.
func (s *VisitService) ComposeGroupEvent(ctx context.Context, actor *domain.Account, input GroupEventInput) (*domain.Event, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	if !actor.IsAdmin() && !actor.IsEngineer() {
		return nil, apperrors.NewForbidden("only admins and engineers compose visits")
	}
	if len(input.TicketIDs) == 0 {
		return nil, apperrors.NewEmptySelection("no tickets selected")
	}
	if input.VisitDate.IsZero() {
		return nil, apperrors.NewValidationError("visit date required", nil)
	}

	selected := make([]*domain.Ticket, 0, len(input.TicketIDs))
	for _, id := range input.TicketIDs {
		ticket, err := s.tickets.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
			}
			return nil, apperrors.MapError(err)
		}
		selected = append(selected, ticket)
	}

	date := schedule.FridayAdjust(input.VisitDate)
	start, end := schedule.VisitWindow(date)

	visit := &domain.Event{
		Title:       groupTitle(selected),
		StartDate:   start,
		EndDate:     end,
		TeamName:    input.TeamName,
		ProjectName: mergeField(selected, func(t *domain.Ticket) string { return t.Company }, unknownProject),
		Location:    mergeField(selected, func(t *domain.Ticket) string { return t.Location }, unknownLocation),
		TicketIDs:   input.TicketIDs,
		EventType:   eventTypeFor(len(selected)),
	}
	if actor.IsEngineer() {
		id := actor.ID
		visit.ResponsibleEngineer = &id
	}

	if err := s.visits.Create(ctx, visit); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publish(ctx, actor, events.Event{
		Type:    events.EventVisitCreated,
		VisitID: visit.ID,
		Payload: events.VisitCreatedPayload{
			Title:     visit.Title,
			EventType: visit.EventType,
			StartDate: visit.StartDate,
			TicketIDs: visit.TicketIDs,
		},
	})

	var failed []string
	for _, ticket := range selected {
		if err := s.scheduleMemberTicket(ctx, actor, ticket.ID, date); err != nil {
			failed = append(failed, ticket.ID)
		}
	}
	if len(failed) > 0 {
		return visit, apperrors.NewPartialFailure("event created but some ticket updates did not apply",
			map[string]any{"event_id": visit.ID, "failed_ticket_ids": failed})
	}
	return visit, nil
}

// scheduleMemberTicket applies the group side effect to one ticket under its
// entity lock: date set, and the acting engineer takes responsibility unless
// a transfer is pending on the ticket.
func (s *VisitService) scheduleMemberTicket(ctx context.Context, actor *domain.Account, ticketID string, date time.Time) error {
	s.locker.Lock(ticketID)
	defer s.locker.Unlock(ticketID)

	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return err
	}
	ticket.IsDateSet = true
	d := date
	ticket.ScheduledDate = &d
	if actor.IsEngineer() && ticket.TransferEngineer == nil {
		id := actor.ID
		ticket.ResponsibleEngineer = &id
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return err
	}
	s.publish(ctx, actor, events.Event{
		Type:     events.EventTicketDateSet,
		TicketID: ticket.ID,
		Payload:  events.TicketDateSetPayload{ScheduledDate: date},
	})
	return nil
}

// ResolveVisit marks the visit resolved and records the report url. Member
// ticket status is deliberately untouched; tickets resolve through their own
// state machine.
func (s *VisitService) ResolveVisit(ctx context.Context, actor *domain.Account, visitID string, reportURL *string) (*domain.Event, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	visit, err := s.visits.GetByID(ctx, visitID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("visit", map[string]any{"visit_id": visitID})
		}
		return nil, apperrors.MapError(err)
	}
	if !actor.IsAdmin() && (visit.ResponsibleEngineer == nil || *visit.ResponsibleEngineer != actor.ID) {
		return nil, apperrors.NewUnauthorized("not authorized to resolve this visit")
	}
	if visit.Resolved && equalURL(visit.ReportURL, reportURL) {
		return visit, nil
	}
	visit.Resolved = true
	if reportURL != nil {
		visit.ReportURL = reportURL
	}
	if err := s.visits.Update(ctx, visit); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publish(ctx, actor, events.Event{
		Type:    events.EventVisitResolved,
		VisitID: visit.ID,
		Payload: events.VisitResolvedPayload{ReportURL: visit.ReportURL},
	})
	return visit, nil
}

// ListVisits returns visits scoped to the actor's authority.
func (s *VisitService) ListVisits(ctx context.Context, actor *domain.Account, filter VisitListFilter) ([]domain.Event, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	repoFilter := repository.EventFilter{
		Resolved:  filter.Resolved,
		TeamName:  filter.TeamName,
		StartFrom: filter.StartFrom,
		StartTo:   filter.StartTo,
		Limit:     filter.Limit,
		Offset:    filter.Offset,
	}
	if actor.IsEngineer() {
		id := actor.ID
		repoFilter.ResponsibleEngineer = &id
	}
	visits, err := s.visits.ListWithFilter(ctx, repoFilter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return visits, nil
}

func (s *VisitService) publish(ctx context.Context, actor *domain.Account, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.Now()
	}
	if actor != nil {
		event.Actor = events.Actor{AccountID: actor.ID, Role: actor.Role}
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func groupTitle(tickets []*domain.Ticket) string {
	if len(tickets) == 1 {
		return tickets[0].Title
	}
	return fmt.Sprintf("Group Event - %d Tickets", len(tickets))
}

func eventTypeFor(n int) domain.EventType {
	if n == 1 {
		return domain.EventTypeSingle
	}
	return domain.EventTypeGroup
}

// mergeField joins the de-duplicated non-empty values in first-occurrence
// order, falling back to the given default.
func mergeField(tickets []*domain.Ticket, get func(*domain.Ticket) string, fallback string) string {
	seen := make(map[string]struct{}, len(tickets))
	var values []string
	for _, ticket := range tickets {
		value := strings.TrimSpace(get(ticket))
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		values = append(values, value)
	}
	if len(values) == 0 {
		return fallback
	}
	return strings.Join(values, ", ")
}

func equalURL(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
