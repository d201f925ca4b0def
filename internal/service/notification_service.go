package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fieldserve/visit-service/internal/domain"
	"github.com/fieldserve/visit-service/internal/events"
	"github.com/fieldserve/visit-service/internal/repository"
	apperrors "github.com/fieldserve/visit-service/pkg/util"
)

// UnreadCounter mirrors the unread notification count in a fast store.
type UnreadCounter interface {
	IncrUnreadNotifications(ctx context.Context)
	DecrUnreadNotifications(ctx context.Context)
	ResetUnreadNotifications(ctx context.Context)
}

// NotificationService turns domain events into persisted notification
// records. Rapid identical triggers each produce their own record; there is
// no coalescing.
type NotificationService struct {
	notifications repository.NotificationRepository
	dispatcher    events.Dispatcher
	counter       UnreadCounter
	logger        *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(notifications repository.NotificationRepository, dispatcher events.Dispatcher, counter UnreadCounter, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		notifications: notifications,
		dispatcher:    dispatcher,
		counter:       counter,
		logger:        logger,
	}
}

// RegisterHandlers subscribes to the triggering events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handle)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.handle)
	n.dispatcher.Subscribe(events.EventTicketSeverityChanged, n.handle)
	n.dispatcher.Subscribe(events.EventTicketNoteStatusChanged, n.handle)
	n.dispatcher.Subscribe(events.EventTicketTransferRequested, n.handle)
	n.dispatcher.Subscribe(events.EventTicketTransferRejected, n.handle)
}

func (n *NotificationService) handle(ctx context.Context, event events.Event) error {
	record := n.compose(event)
	if record == nil {
		return nil
	}
	if err := n.notifications.Create(ctx, record); err != nil {
		n.logger.Error("persist notification", zap.String("event_type", string(event.Type)), zap.Error(err))
		return err
	}
	if n.counter != nil {
		n.counter.IncrUnreadNotifications(ctx)
	}
	n.logger.Info("notification created",
		zap.String("notification_id", record.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("ticket_id", event.TicketID))
	return nil
}

func (n *NotificationService) compose(event events.Event) *domain.Notification {
	record := &domain.Notification{Type: domain.NotificationTypeTicket}
	if event.TicketID != "" {
		id := event.TicketID
		record.TicketID = &id
	}

	switch event.Type {
	case events.EventTicketCreated:
		record.Title = "New Ticket"
		if p, ok := event.Payload.(events.TicketCreatedPayload); ok {
			record.Message = fmt.Sprintf("Ticket %q opened for %s with severity %s", p.Title, orUnknown(p.Company), p.Severity)
		} else {
			record.Message = "A new ticket was opened"
		}
	case events.EventTicketStatusChanged:
		record.Title = "Status Changed"
		if p, ok := event.Payload.(events.TicketStatusChangedPayload); ok {
			record.Message = fmt.Sprintf("Status moved from %s to %s", p.OldStatus, p.NewStatus)
		} else {
			record.Message = "Ticket status changed"
		}
	case events.EventTicketSeverityChanged:
		record.Title = "Severity Changed"
		if p, ok := event.Payload.(events.TicketSeverityChangedPayload); ok {
			record.Message = fmt.Sprintf("Severity moved from %s to %s", p.OldSeverity, p.NewSeverity)
		} else {
			record.Message = "Ticket severity changed"
		}
	case events.EventTicketNoteStatusChanged:
		record.Title = "Note Status Changed"
		if p, ok := event.Payload.(events.TicketNoteStatusChangedPayload); ok {
			record.Message = fmt.Sprintf("Note status moved from %s to %s", p.OldNoteStatus, p.NewNoteStatus)
		} else {
			record.Message = "Ticket note status changed"
		}
	case events.EventTicketTransferRequested:
		record.Title = "Transfer Requested"
		record.Message = "A ticket transfer is awaiting acceptance"
	case events.EventTicketTransferRejected:
		record.Title = "Transfer Rejected"
		record.Message = "A pending ticket transfer was rejected"
	default:
		return nil
	}
	return record
}

// List returns notification records, newest first.
func (n *NotificationService) List(ctx context.Context, unreadOnly bool, limit, offset int) ([]domain.Notification, error) {
	records, err := n.notifications.List(ctx, unreadOnly, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return records, nil
}

// MarkRead flips one notification's read flag. Repeating the call is a
// no-op; content and createdAt are never touched.
func (n *NotificationService) MarkRead(ctx context.Context, id string) error {
	if _, err := n.notifications.GetByID(ctx, id); err != nil {
		return apperrors.ToDomainError(err)
	}
	flipped, err := n.notifications.MarkRead(ctx, id)
	if err != nil {
		return apperrors.MapError(err)
	}
	if flipped && n.counter != nil {
		n.counter.DecrUnreadNotifications(ctx)
	}
	return nil
}

// MarkAllRead flips every unread notification.
func (n *NotificationService) MarkAllRead(ctx context.Context) error {
	if _, err := n.notifications.MarkAllRead(ctx); err != nil {
		return apperrors.MapError(err)
	}
	if n.counter != nil {
		n.counter.ResetUnreadNotifications(ctx)
	}
	return nil
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown Project"
	}
	return s
}
