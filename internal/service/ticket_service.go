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
	apperrors "github.com/fieldserve/visit-service/pkg/util"
)

// ReadableSequence issues the monotonically increasing numbers behind
// human-friendly ticket codes.
type ReadableSequence interface {
	NextTicketNumber(ctx context.Context) (int64, error)
}

// TicketService owns the ticket state machine: status, severity, note
// status, assignment and the transfer workflow, with actor-based authority.
type TicketService struct {
	tickets    repository.TicketRepository
	messages   repository.MessageRepository
	viewStates repository.ViewStateRepository
	accounts   repository.AccountRepository
	sequence   ReadableSequence
	dispatcher events.Dispatcher
	locker     *EntityLocker

	// Now is replaceable in tests.
	Now func() time.Time
}

// TicketDependencies bundles repositories for the ticket service.
type TicketDependencies struct {
	TicketRepo    repository.TicketRepository
	MessageRepo   repository.MessageRepository
	ViewStateRepo repository.ViewStateRepository
	AccountRepo   repository.AccountRepository
	Sequence      ReadableSequence
	Dispatcher    events.Dispatcher

	// Locker is the per-ticket write lock shared with every other service
	// that mutates tickets. Left nil, the service runs on a private one.
	Locker *EntityLocker
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title               string
	Description         string
	Company             string
	Location            string
	Severity            domain.TicketSeverity
	ResponsibleEngineer *string
}

// TicketListFilter describes listing filters before authority scoping.
type TicketListFilter struct {
	Statuses    []domain.TicketStatus
	Severities  []domain.TicketSeverity
	SearchTerm  *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	locker := deps.Locker
	if locker == nil {
		locker = NewEntityLocker()
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		messages:   deps.MessageRepo,
		viewStates: deps.ViewStateRepo,
		accounts:   deps.AccountRepo,
		sequence:   deps.Sequence,
		dispatcher: deps.Dispatcher,
		locker:     locker,
		Now:        time.Now,
	}
}

// CreateTicket opens a new ticket. Engineers become responsible for tickets
// they create; admins may pick any engineer or leave the ticket unassigned.
func (s *TicketService) CreateTicket(ctx context.Context, actor *domain.Account, input TicketCreateInput) (*domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	if !actor.IsAdmin() && !actor.IsEngineer() {
		return nil, apperrors.NewForbidden("only admins and engineers create tickets")
	}
	if strings.TrimSpace(input.Title) == "" {
		return nil, apperrors.NewValidationError("title required", nil)
	}
	if input.Severity == "" {
		input.Severity = domain.SeverityMedium
	}
	if !domain.ValidSeverity(input.Severity) {
		return nil, apperrors.NewValidationError("invalid severity", map[string]any{"severity": input.Severity})
	}

	ticket := &domain.Ticket{
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		Company:     strings.TrimSpace(input.Company),
		Location:    strings.TrimSpace(input.Location),
		Severity:    input.Severity,
		Status:      domain.TicketStatusOpen,
		NoteStatus:  domain.NoteStatusNone,
		CreatedBy:   actor.ID,
	}
	if actor.IsEngineer() {
		id := actor.ID
		ticket.ResponsibleEngineer = &id
	} else if input.ResponsibleEngineer != nil {
		engineer, err := s.requireEngineer(ctx, *input.ResponsibleEngineer)
		if err != nil {
			return nil, err
		}
		ticket.ResponsibleEngineer = &engineer.ID
	}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publish(ctx, actor, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Payload: events.TicketCreatedPayload{
			Title:               ticket.Title,
			Company:             ticket.Company,
			Severity:            ticket.Severity,
			ResponsibleEngineer: ticket.ResponsibleEngineer,
		},
	})
	return ticket, nil
}

// GetTicket fetches a ticket with its message thread, lazily generating the
// readable id and recording that this viewer has read up to now.
func (s *TicketService) GetTicket(ctx context.Context, actor *domain.Account, ticketID string) (*domain.Ticket, []domain.TicketMessage, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	if !CanViewTicket(actor, ticket) {
		return nil, nil, apperrors.NewForbidden("access denied")
	}
	if ticket.ReadableID == nil {
		if err := s.generateReadableID(ctx, ticket); err != nil {
			return nil, nil, err
		}
	}
	msgs, err := s.messages.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	if err := s.viewStates.MarkViewed(ctx, ticket.ID, actor.ID, s.Now()); err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	return ticket, msgs, nil
}

// ListTickets returns tickets scoped to the actor's authority.
func (s *TicketService) ListTickets(ctx context.Context, actor *domain.Account, filter TicketListFilter) ([]domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	repoFilter := repository.TicketFilter{
		Statuses:    filter.Statuses,
		Severities:  filter.Severities,
		SearchTerm:  filter.SearchTerm,
		CreatedFrom: filter.CreatedFrom,
		CreatedTo:   filter.CreatedTo,
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	}
	ApplyTicketScope(&repoFilter, actor)
	tickets, err := s.tickets.ListWithFilter(ctx, repoFilter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// ChangeStatus updates the primary status. Allowed for admins and the
// responsible engineer; re-setting the current status is a no-op.
func (s *TicketService) ChangeStatus(ctx context.Context, actor *domain.Account, ticketID string, newStatus domain.TicketStatus) (*domain.Ticket, error) {
	if !domain.ValidStatus(newStatus) {
		return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": newStatus})
	}
	return s.mutate(ctx, actor, ticketID, func(ticket *domain.Ticket) ([]events.Event, error) {
		if !canMutateTicket(actor, ticket) {
			return nil, apperrors.NewUnauthorized("not authorized to change status")
		}
		if ticket.Status == newStatus {
			return nil, nil
		}
		oldStatus := ticket.Status
		ticket.Status = newStatus
		return []events.Event{{
			Type:     events.EventTicketStatusChanged,
			TicketID: ticket.ID,
			Payload:  events.TicketStatusChangedPayload{OldStatus: oldStatus, NewStatus: newStatus},
		}}, nil
	})
}

// ChangeSeverity updates severity, same authority as status.
func (s *TicketService) ChangeSeverity(ctx context.Context, actor *domain.Account, ticketID string, newSeverity domain.TicketSeverity) (*domain.Ticket, error) {
	if !domain.ValidSeverity(newSeverity) {
		return nil, apperrors.NewValidationError("invalid severity", map[string]any{"severity": newSeverity})
	}
	return s.mutate(ctx, actor, ticketID, func(ticket *domain.Ticket) ([]events.Event, error) {
		if !canMutateTicket(actor, ticket) {
			return nil, apperrors.NewUnauthorized("not authorized to change severity")
		}
		if ticket.Severity == newSeverity {
			return nil, nil
		}
		oldSeverity := ticket.Severity
		ticket.Severity = newSeverity
		return []events.Event{{
			Type:     events.EventTicketSeverityChanged,
			TicketID: ticket.ID,
			Payload:  events.TicketSeverityChangedPayload{OldSeverity: oldSeverity, NewSeverity: newSeverity},
		}}, nil
	})
}

// SetNoteStatus updates the engineer-only annotation. Non-engineers are
// rejected outright; an engineer who is not responsible lacks authority.
func (s *TicketService) SetNoteStatus(ctx context.Context, actor *domain.Account, ticketID string, newNote domain.NoteStatus) (*domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	if !actor.IsEngineer() {
		return nil, apperrors.NewForbidden("note status is engineer-only")
	}
	if !domain.ValidNoteStatus(newNote) {
		return nil, apperrors.NewValidationError("invalid note status", map[string]any{"note_status": newNote})
	}
	return s.mutate(ctx, actor, ticketID, func(ticket *domain.Ticket) ([]events.Event, error) {
		if !isResponsible(actor, ticket) {
			return nil, apperrors.NewUnauthorized("only the responsible engineer sets note status")
		}
		if ticket.NoteStatus == newNote {
			return nil, nil
		}
		oldNote := ticket.NoteStatus
		ticket.NoteStatus = newNote
		return []events.Event{{
			Type:     events.EventTicketNoteStatusChanged,
			TicketID: ticket.ID,
			Payload:  events.TicketNoteStatusChangedPayload{OldNoteStatus: oldNote, NewNoteStatus: newNote},
		}}, nil
	})
}

// RequestTransfer marks a pending reassignment to the target engineer. The
// current responsible engineer keeps authority until the target accepts.
func (s *TicketService) RequestTransfer(ctx context.Context, actor *domain.Account, ticketID, targetEngineerID string) (*domain.Ticket, error) {
	target, err := s.requireEngineer(ctx, targetEngineerID)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, actor, ticketID, func(ticket *domain.Ticket) ([]events.Event, error) {
		if !canMutateTicket(actor, ticket) {
			return nil, apperrors.NewUnauthorized("not authorized to request transfer")
		}
		if ticket.TransferEngineer != nil && *ticket.TransferEngineer == target.ID {
			return nil, nil
		}
		ticket.TransferEngineer = &target.ID
		return []events.Event{{
			Type:     events.EventTicketTransferRequested,
			TicketID: ticket.ID,
			Payload: events.TicketTransferPayload{
				ResponsibleEngineer: ticket.ResponsibleEngineer,
				TransferEngineer:    ticket.TransferEngineer,
			},
		}}, nil
	})
}

// RejectTransfer clears a pending transfer. Only the target engineer or an
// admin may reject; rejecting when no transfer is pending conflicts.
func (s *TicketService) RejectTransfer(ctx context.Context, actor *domain.Account, ticketID string) (*domain.Ticket, error) {
	return s.mutate(ctx, actor, ticketID, func(ticket *domain.Ticket) ([]events.Event, error) {
		if actor == nil {
			return nil, apperrors.NewUnauthorized("authentication required")
		}
		if ticket.TransferEngineer == nil {
			return nil, apperrors.NewConflictingTransfer("no transfer pending", map[string]any{"ticket_id": ticket.ID})
		}
		if !actor.IsAdmin() && actor.ID != *ticket.TransferEngineer {
			return nil, apperrors.NewUnauthorized("only the transfer target or an admin rejects")
		}
		ticket.TransferEngineer = nil
		return []events.Event{{
			Type:     events.EventTicketTransferRejected,
			TicketID: ticket.ID,
			Payload: events.TicketTransferPayload{
				ResponsibleEngineer: ticket.ResponsibleEngineer,
			},
		}}, nil
	})
}

// SetVisitDate confirms the visit date. When the actor is the pending
// transfer target this doubles as transfer acceptance: they become the
// responsible engineer and the pending transfer clears. A responsible
// engineer or admin setting the date while a transfer is outstanding leaves
// the assignment untouched.
func (s *TicketService) SetVisitDate(ctx context.Context, actor *domain.Account, ticketID string, date time.Time) (*domain.Ticket, error) {
	if date.IsZero() {
		return nil, apperrors.NewValidationError("scheduled date required", nil)
	}
	return s.mutate(ctx, actor, ticketID, func(ticket *domain.Ticket) ([]events.Event, error) {
		if actor == nil {
			return nil, apperrors.NewUnauthorized("authentication required")
		}
		accepting := ticket.TransferEngineer != nil && actor.ID == *ticket.TransferEngineer
		if !accepting && !canMutateTicket(actor, ticket) {
			return nil, apperrors.NewUnauthorized("not authorized to set visit date")
		}

		var pending []events.Event
		if accepting {
			ticket.ResponsibleEngineer = ticket.TransferEngineer
			ticket.TransferEngineer = nil
			pending = append(pending, events.Event{
				Type:     events.EventTicketTransferAccepted,
				TicketID: ticket.ID,
				Payload: events.TicketTransferPayload{
					ResponsibleEngineer: ticket.ResponsibleEngineer,
				},
			})
		}

		ticket.IsDateSet = true
		d := date
		ticket.ScheduledDate = &d
		return append(pending, events.Event{
			Type:     events.EventTicketDateSet,
			TicketID: ticket.ID,
			Payload:  events.TicketDateSetPayload{ScheduledDate: date},
		}), nil
	})
}

// AssignEngineer sets the responsible engineer directly, bypassing the
// transfer workflow. Admin only. Any pending transfer is cleared so it can
// never point at a superseded assignment.
func (s *TicketService) AssignEngineer(ctx context.Context, actor *domain.Account, ticketID, engineerID string) (*domain.Ticket, error) {
	if actor == nil || !actor.IsAdmin() {
		return nil, apperrors.NewUnauthorized("admin required")
	}
	engineer, err := s.requireEngineer(ctx, engineerID)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, actor, ticketID, func(ticket *domain.Ticket) ([]events.Event, error) {
		if ticket.ResponsibleEngineer != nil && *ticket.ResponsibleEngineer == engineer.ID && ticket.TransferEngineer == nil {
			return nil, nil
		}
		oldEngineer := ticket.ResponsibleEngineer
		ticket.ResponsibleEngineer = &engineer.ID
		ticket.TransferEngineer = nil
		return []events.Event{{
			Type:     events.EventTicketAssigned,
			TicketID: ticket.ID,
			Payload:  events.TicketAssignedPayload{OldEngineer: oldEngineer, NewEngineer: ticket.ResponsibleEngineer},
		}}, nil
	})
}

// AddMessage appends to the ticket thread.
func (s *TicketService) AddMessage(ctx context.Context, actor *domain.Account, ticketID, body string) (*domain.TicketMessage, error) {
	if strings.TrimSpace(body) == "" {
		return nil, apperrors.NewValidationError("body required", nil)
	}
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !CanViewTicket(actor, ticket) {
		return nil, apperrors.NewForbidden("access denied")
	}

	msg := &domain.TicketMessage{
		TicketID: ticket.ID,
		SenderID: actor.ID,
		Body:     strings.TrimSpace(body),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publish(ctx, actor, events.Event{
		Type:     events.EventTicketMessageAdded,
		TicketID: ticket.ID,
		Payload: events.TicketMessageAddedPayload{
			MessageID:   msg.ID,
			SenderID:    msg.SenderID,
			SentAt:      msg.CreatedAt,
			BodyPreview: stringPreview(msg.Body, 120),
		},
	})
	return msg, nil
}

// ReportTickets returns the stable filtered, sorted list consumed by the
// report generators. Admin only; ordering matches the list endpoint.
func (s *TicketService) ReportTickets(ctx context.Context, actor *domain.Account, filter TicketListFilter) ([]domain.Ticket, error) {
	if actor == nil || !actor.IsAdmin() {
		return nil, apperrors.NewUnauthorized("admin required")
	}
	repoFilter := repository.TicketFilter{
		Statuses:    filter.Statuses,
		Severities:  filter.Severities,
		SearchTerm:  filter.SearchTerm,
		CreatedFrom: filter.CreatedFrom,
		CreatedTo:   filter.CreatedTo,
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	}
	if repoFilter.Limit <= 0 {
		repoFilter.Limit = 1000
	}
	tickets, err := s.tickets.ListWithFilter(ctx, repoFilter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// mutate serializes a read-modify-write on one ticket. The mutator returns
// the events to publish, in order, once the write commits; none when the
// write was a field-level no-op. A failed write publishes nothing, so
// subscribers and notifications only ever observe persisted transitions.
func (s *TicketService) mutate(ctx context.Context, actor *domain.Account, ticketID string, fn func(*domain.Ticket) ([]events.Event, error)) (*domain.Ticket, error) {
	s.locker.Lock(ticketID)
	defer s.locker.Unlock(ticketID)

	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	pending, err := fn(ticket)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		// idempotent re-set: no write, no notification
		return ticket, nil
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	for _, event := range pending {
		s.publish(ctx, actor, event)
	}
	return ticket, nil
}

func (s *TicketService) loadTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

func (s *TicketService) requireEngineer(ctx context.Context, accountID string) (*domain.Account, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("engineer", map[string]any{"account_id": accountID})
		}
		return nil, apperrors.MapError(err)
	}
	if !account.IsEngineer() || !account.Active {
		return nil, apperrors.NewValidationError("account is not an active engineer", map[string]any{"account_id": accountID})
	}
	return account, nil
}

func (s *TicketService) generateReadableID(ctx context.Context, ticket *domain.Ticket) error {
	if s.sequence == nil {
		return nil
	}
	n, err := s.sequence.NextTicketNumber(ctx)
	if err != nil {
		return apperrors.MapError(err)
	}
	readable := fmt.Sprintf("TKT-%05d", n)
	if err := s.tickets.SetReadableID(ctx, ticket.ID, readable); err != nil {
		return apperrors.MapError(err)
	}
	// re-read in case a concurrent viewer generated one first
	fresh, err := s.tickets.GetByID(ctx, ticket.ID)
	if err != nil {
		return apperrors.MapError(err)
	}
	ticket.ReadableID = fresh.ReadableID
	return nil
}

func (s *TicketService) publish(ctx context.Context, actor *domain.Account, event events.Event) {
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

// canMutateTicket covers the standard mutation authority: admin, or the
// responsible engineer. A pending transfer target has no mutation authority
// until acceptance.
func canMutateTicket(actor *domain.Account, ticket *domain.Ticket) bool {
	if actor == nil {
		return false
	}
	if actor.IsAdmin() {
		return true
	}
	return isResponsible(actor, ticket)
}

func isResponsible(actor *domain.Account, ticket *domain.Ticket) bool {
	return actor != nil && actor.IsEngineer() &&
		ticket.ResponsibleEngineer != nil && *ticket.ResponsibleEngineer == actor.ID
}

// CanViewTicket reports whether the account may observe the ticket: admins
// see everything, engineers see their own tickets plus pending transfers to
// them, clients see their company's tickets.
func CanViewTicket(account *domain.Account, ticket *domain.Ticket) bool {
	if account == nil {
		return false
	}
	switch account.Role {
	case domain.RoleAdmin:
		return true
	case domain.RoleEngineer:
		if ticket.ResponsibleEngineer != nil && *ticket.ResponsibleEngineer == account.ID {
			return true
		}
		return ticket.TransferEngineer != nil && *ticket.TransferEngineer == account.ID
	case domain.RoleClient:
		return account.Company != "" && ticket.Company == account.Company
	}
	return false
}

// ApplyTicketScope narrows a repository filter to the account's authority.
func ApplyTicketScope(filter *repository.TicketFilter, account *domain.Account) {
	if account == nil || account.IsAdmin() {
		return
	}
	if account.IsEngineer() {
		id := account.ID
		filter.ResponsibleEngineer = &id
		filter.TransferEngineer = &id
		return
	}
	company := account.Company
	filter.Company = &company
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	if max <= 3 {
		return body[:max]
	}
	return body[:max-3] + "..."
}
