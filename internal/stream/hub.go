// Package stream maintains per-subscriber live views of tickets and visits.
package stream

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldserve/visit-service/internal/config"
	"github.com/fieldserve/visit-service/internal/domain"
	"github.com/fieldserve/visit-service/internal/events"
	"github.com/fieldserve/visit-service/internal/repository"
	"github.com/fieldserve/visit-service/internal/service"
	apperrors "github.com/fieldserve/visit-service/pkg/util"
)

// State tracks a subscription's lifecycle.
type State string

const (
	StateConnecting State = "CONNECTING"
	StateStreaming  State = "STREAMING"
	StateError      State = "ERROR"
	StateClosed     State = "CLOSED"
)

// FrameKind discriminates stream frames.
type FrameKind string

const (
	FrameSnapshot FrameKind = "snapshot"
	FrameDiff     FrameKind = "diff"
	FrameError    FrameKind = "error"
)

// TicketView is a ticket projected for one viewer, with the derived
// per-viewer flags.
type TicketView struct {
	domain.Ticket
	HasUnreadMessages bool `json:"has_unread_messages"`
	IsViewed          bool `json:"is_viewed"`
}

// Frame is one delivery unit on a subscription.
type Frame struct {
	Kind    FrameKind     `json:"kind"`
	Tickets []TicketView  `json:"tickets,omitempty"`
	Ticket  *TicketView   `json:"ticket,omitempty"`
	Visit   *domain.Event `json:"visit,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// Subscription is one viewer's live stream. Frames carries the initial
// snapshot followed by diffs in mutation commit order.
type Subscription struct {
	ID      string
	account *domain.Account

	mu      sync.Mutex
	state   State
	closed  bool
	frames  chan Frame
	pending []Frame

	hub *Hub
}

// Frames returns the delivery channel. It is closed when the subscription
// ends, either by Close or after a delivery failure.
func (s *Subscription) Frames() <-chan Frame {
	return s.frames
}

// State reports the current lifecycle state.
func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close ends the subscription and releases its resources. Other
// subscriptions are unaffected.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s.ID, StateClosed, "")
}

// send delivers one frame without blocking. A frame arriving while the
// snapshot is still being read is parked and flushed right after the
// snapshot frame, so mutations committing in that window are not lost. A
// subscriber whose buffer is full is dropped rather than allowed to stall
// other deliveries.
func (s *Subscription) send(frame Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	if s.state == StateConnecting {
		s.pending = append(s.pending, frame)
		return true
	}
	select {
	case s.frames <- frame:
		return true
	default:
		return false
	}
}

// activate queues the snapshot frame, flushes any frames parked during the
// snapshot read, and switches the subscription to streaming. It reports
// false when the subscription is already closed or its buffer cannot hold
// the parked backlog.
func (s *Subscription) activate(snapshot Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	// nothing is written to the channel while connecting, so the buffered
	// snapshot send cannot block
	s.frames <- snapshot
	for _, frame := range s.pending {
		select {
		case s.frames <- frame:
		default:
			return false
		}
	}
	s.pending = nil
	s.state = StateStreaming
	return true
}

func (s *Subscription) terminate(state State, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if state == StateError && message != "" {
		select {
		case s.frames <- Frame{Kind: FrameError, Error: message}:
		default:
		}
	}
	s.state = state
	s.closed = true
	close(s.frames)
}

// Hub fans domain events out to subscribers. It holds one dispatcher
// subscription total, not one store listener per ticket, and joins messages
// and view states server-side when deriving per-viewer flags.
type Hub struct {
	tickets    repository.TicketRepository
	visits     repository.EventRepository
	messages   repository.MessageRepository
	viewStates repository.ViewStateRepository
	logger     *zap.Logger
	cfg        config.StreamConfig

	mu   sync.RWMutex
	subs map[string]*Subscription
}

// NewHub constructs the hub.
func NewHub(tickets repository.TicketRepository, visits repository.EventRepository, messages repository.MessageRepository, viewStates repository.ViewStateRepository, cfg config.StreamConfig, logger *zap.Logger) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64
	}
	if cfg.SnapshotLimit <= 0 {
		cfg.SnapshotLimit = 500
	}
	return &Hub{
		tickets:    tickets,
		visits:     visits,
		messages:   messages,
		viewStates: viewStates,
		logger:     logger,
		cfg:        cfg,
		subs:       make(map[string]*Subscription),
	}
}

// Register wires the hub into the event bus.
func (h *Hub) Register(dispatcher events.Dispatcher) {
	dispatcher.SubscribeAll(h.handleEvent)
}

// Subscribe opens a stream for the account: the frames channel receives the
// full authority-filtered snapshot first, then incremental diffs.
func (h *Hub) Subscribe(ctx context.Context, account *domain.Account) (*Subscription, error) {
	sub := &Subscription{
		ID:      uuid.NewString(),
		account: account,
		state:   StateConnecting,
		frames:  make(chan Frame, h.cfg.BufferSize),
		hub:     h,
	}

	// Register before reading the snapshot: a mutation committing while the
	// snapshot query runs parks on the subscription and is flushed after
	// the snapshot frame, instead of fanning out to nobody and leaving the
	// new view stale until the same entity mutates again.
	h.mu.Lock()
	h.subs[sub.ID] = sub
	h.mu.Unlock()

	snapshot, err := h.snapshotFor(ctx, account)
	if err != nil {
		h.unsubscribe(sub.ID, StateError, "")
		return nil, err
	}
	if !sub.activate(Frame{Kind: FrameSnapshot, Tickets: snapshot}) {
		h.unsubscribe(sub.ID, StateError, "subscriber too slow")
		return nil, apperrors.NewInternalError(errors.New("stream backlog overflow during snapshot"))
	}

	h.logger.Info("stream subscribed",
		zap.String("subscription_id", sub.ID),
		zap.String("account_id", account.ID),
		zap.Int("snapshot_size", len(snapshot)))
	return sub, nil
}

// SubscriberCount reports open subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// CloseAll terminates every subscription, used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	subs := make([]*Subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.subs = make(map[string]*Subscription)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.terminate(StateClosed, "")
	}
}

func (h *Hub) unsubscribe(id string, state State, message string) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()
	if ok {
		sub.terminate(state, message)
	}
}

// handleEvent projects a committed mutation onto every authorized
// subscriber. The dispatcher invokes handlers synchronously, so each
// subscriber's channel receives diffs in commit order.
func (h *Hub) handleEvent(ctx context.Context, event events.Event) error {
	switch {
	case event.TicketID != "":
		return h.pushTicket(ctx, event.TicketID)
	case event.VisitID != "":
		return h.pushVisit(ctx, event.VisitID)
	}
	return nil
}

func (h *Hub) pushTicket(ctx context.Context, ticketID string) error {
	ticket, err := h.tickets.GetByID(ctx, ticketID)
	if err != nil {
		h.logger.Warn("stream ticket reload failed", zap.String("ticket_id", ticketID), zap.Error(err))
		return err
	}
	latest, err := h.messages.LatestByTickets(ctx, []string{ticket.ID})
	if err != nil {
		return err
	}

	var dropped []string
	h.mu.RLock()
	for id, sub := range h.subs {
		if !service.CanViewTicket(sub.account, ticket) {
			continue
		}
		view, err := h.viewFor(ctx, sub.account, *ticket, latest)
		if err != nil {
			h.logger.Warn("stream view derivation failed",
				zap.String("subscription_id", id), zap.Error(err))
			continue
		}
		if !sub.send(Frame{Kind: FrameDiff, Ticket: &view}) {
			dropped = append(dropped, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range dropped {
		h.logger.Warn("dropping slow stream subscriber", zap.String("subscription_id", id))
		h.unsubscribe(id, StateError, "subscriber too slow")
	}
	return nil
}

func (h *Hub) pushVisit(ctx context.Context, visitID string) error {
	visit, err := h.visits.GetByID(ctx, visitID)
	if err != nil {
		h.logger.Warn("stream visit reload failed", zap.String("visit_id", visitID), zap.Error(err))
		return err
	}

	var dropped []string
	h.mu.RLock()
	for id, sub := range h.subs {
		if !canViewVisit(sub.account, visit) {
			continue
		}
		if !sub.send(Frame{Kind: FrameDiff, Visit: visit}) {
			dropped = append(dropped, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range dropped {
		h.logger.Warn("dropping slow stream subscriber", zap.String("subscription_id", id))
		h.unsubscribe(id, StateError, "subscriber too slow")
	}
	return nil
}

// snapshotFor builds the initial ordered projection for one viewer,
// resolving unread flags in two batched queries rather than per ticket.
func (h *Hub) snapshotFor(ctx context.Context, account *domain.Account) ([]TicketView, error) {
	filter := repository.TicketFilter{Limit: h.cfg.SnapshotLimit}
	service.ApplyTicketScope(&filter, account)
	tickets, err := h.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(tickets))
	for i := range tickets {
		ids[i] = tickets[i].ID
	}
	latest, err := h.messages.LatestByTickets(ctx, ids)
	if err != nil {
		return nil, err
	}
	states, err := h.viewStates.GetForViewer(ctx, account.ID, ids)
	if err != nil {
		return nil, err
	}

	views := make([]TicketView, 0, len(tickets))
	for _, ticket := range tickets {
		views = append(views, deriveView(account.ID, ticket, latest, states))
	}
	return views, nil
}

func (h *Hub) viewFor(ctx context.Context, account *domain.Account, ticket domain.Ticket, latest map[string]domain.TicketMessage) (TicketView, error) {
	states, err := h.viewStates.GetForViewer(ctx, account.ID, []string{ticket.ID})
	if err != nil {
		return TicketView{}, err
	}
	return deriveView(account.ID, ticket, latest, states), nil
}

// deriveView computes the per-viewer flags: a ticket is unread for a viewer
// iff the newest message was sent by someone else and lands after the
// viewer's read watermark.
func deriveView(viewerID string, ticket domain.Ticket, latest map[string]domain.TicketMessage, states map[string]domain.TicketViewState) TicketView {
	view := TicketView{Ticket: ticket}
	state, hasState := states[ticket.ID]
	view.IsViewed = hasState && state.Viewed

	msg, hasMsg := latest[ticket.ID]
	if !hasMsg || msg.SenderID == viewerID {
		return view
	}
	if !hasState || state.LastReadAt == nil || msg.CreatedAt.After(*state.LastReadAt) {
		view.HasUnreadMessages = true
	}
	return view
}

func canViewVisit(account *domain.Account, visit *domain.Event) bool {
	if account == nil {
		return false
	}
	switch account.Role {
	case domain.RoleAdmin:
		return true
	case domain.RoleEngineer:
		return visit.ResponsibleEngineer != nil && *visit.ResponsibleEngineer == account.ID
	}
	return false
}
