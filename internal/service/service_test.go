package service

// In-memory fakes shared by the service tests. They mirror the repository
// contracts, including returning pgx.ErrNoRows for missing rows.

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fieldserve/visit-service/internal/domain"
	"github.com/fieldserve/visit-service/internal/events"
	"github.com/fieldserve/visit-service/internal/repository"
)

type memTicketRepo struct {
	mu         sync.Mutex
	seq        int
	tickets    map[string]domain.Ticket
	order      []string
	updates    int
	failUpdate map[string]bool
}

func newMemTicketRepo() *memTicketRepo {
	return &memTicketRepo{tickets: make(map[string]domain.Ticket)}
}

func (r *memTicketRepo) add(t domain.Ticket) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.ID == "" {
		r.seq++
		t.ID = fmt.Sprintf("ticket-%d", r.seq)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	}
	r.tickets[t.ID] = t
	r.order = append(r.order, t.ID)
	return t.ID
}

func (r *memTicketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	r.seq++
	ticket.ID = fmt.Sprintf("ticket-%d", r.seq)
	ticket.CreatedAt = time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	ticket.UpdatedAt = ticket.CreatedAt
	r.tickets[ticket.ID] = *ticket
	r.order = append(r.order, ticket.ID)
	r.mu.Unlock()
	return nil
}

func (r *memTicketRepo) Update(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tickets[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	if r.failUpdate[ticket.ID] {
		return fmt.Errorf("simulated write failure on %s", ticket.ID)
	}
	r.updates++
	r.tickets[ticket.ID] = *ticket
	return nil
}

func (r *memTicketRepo) updateCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates
}

func (r *memTicketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := t
	return &copied, nil
}

func (r *memTicketRepo) SetReadableID(ctx context.Context, id, readableID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if t.ReadableID == nil {
		t.ReadableID = &readableID
		r.tickets[id] = t
	}
	return nil
}

func (r *memTicketRepo) ListWithFilter(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Ticket
	for _, id := range r.order {
		t := r.tickets[id]
		if filter.ResponsibleEngineer != nil {
			responsible := t.ResponsibleEngineer != nil && *t.ResponsibleEngineer == *filter.ResponsibleEngineer
			transfer := filter.TransferEngineer != nil && t.TransferEngineer != nil && *t.TransferEngineer == *filter.TransferEngineer
			if !responsible && !transfer {
				continue
			}
		}
		if filter.Company != nil && t.Company != *filter.Company {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

type memAccountRepo struct {
	accounts map[string]domain.Account
}

func newMemAccountRepo(accounts ...domain.Account) *memAccountRepo {
	r := &memAccountRepo{accounts: make(map[string]domain.Account)}
	for _, a := range accounts {
		r.accounts[a.ID] = a
	}
	return r
}

func (r *memAccountRepo) Create(ctx context.Context, account *domain.Account) error {
	if account.ID == "" {
		account.ID = fmt.Sprintf("account-%d", len(r.accounts)+1)
	}
	r.accounts[account.ID] = *account
	return nil
}

func (r *memAccountRepo) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	a, ok := r.accounts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := a
	return &copied, nil
}

func (r *memAccountRepo) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	for _, a := range r.accounts {
		if a.Email == email {
			copied := a
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memAccountRepo) ListByRole(ctx context.Context, role domain.Role) ([]domain.Account, error) {
	var out []domain.Account
	for _, a := range r.accounts {
		if a.Role == role {
			out = append(out, a)
		}
	}
	return out, nil
}

type memMessageRepo struct {
	seq      int
	messages []domain.TicketMessage
}

func (r *memMessageRepo) Create(ctx context.Context, msg *domain.TicketMessage) error {
	r.seq++
	msg.ID = fmt.Sprintf("message-%d", r.seq)
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)
	}
	r.messages = append(r.messages, *msg)
	return nil
}

func (r *memMessageRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketMessage, error) {
	var out []domain.TicketMessage
	for _, m := range r.messages {
		if m.TicketID == ticketID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memMessageRepo) LatestByTickets(ctx context.Context, ticketIDs []string) (map[string]domain.TicketMessage, error) {
	latest := make(map[string]domain.TicketMessage)
	for _, id := range ticketIDs {
		for _, m := range r.messages {
			if m.TicketID != id {
				continue
			}
			if cur, ok := latest[id]; !ok || m.CreatedAt.After(cur.CreatedAt) {
				latest[id] = m
			}
		}
	}
	return latest, nil
}

type memViewStateRepo struct {
	states map[string]domain.TicketViewState
}

func newMemViewStateRepo() *memViewStateRepo {
	return &memViewStateRepo{states: make(map[string]domain.TicketViewState)}
}

func (r *memViewStateRepo) MarkViewed(ctx context.Context, ticketID, viewerID string, at time.Time) error {
	readAt := at
	r.states[ticketID+"|"+viewerID] = domain.TicketViewState{
		TicketID:   ticketID,
		ViewerID:   viewerID,
		LastReadAt: &readAt,
		Viewed:     true,
	}
	return nil
}

func (r *memViewStateRepo) GetForViewer(ctx context.Context, viewerID string, ticketIDs []string) (map[string]domain.TicketViewState, error) {
	out := make(map[string]domain.TicketViewState)
	for _, id := range ticketIDs {
		if st, ok := r.states[id+"|"+viewerID]; ok {
			out[id] = st
		}
	}
	return out, nil
}

type memEventRepo struct {
	seq     int
	creates int
	visits  map[string]domain.Event
	order   []string
	updates int

	// failCreateAt makes the nth Create call fail, 1-based; zero disables.
	failCreateAt int
}

func newMemEventRepo() *memEventRepo {
	return &memEventRepo{visits: make(map[string]domain.Event)}
}

func (r *memEventRepo) Create(ctx context.Context, event *domain.Event) error {
	r.creates++
	if r.failCreateAt != 0 && r.creates == r.failCreateAt {
		return fmt.Errorf("simulated create failure")
	}
	r.seq++
	event.ID = fmt.Sprintf("visit-%d", r.seq)
	event.CreatedAt = time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	event.UpdatedAt = event.CreatedAt
	r.visits[event.ID] = *event
	r.order = append(r.order, event.ID)
	return nil
}

func (r *memEventRepo) Update(ctx context.Context, event *domain.Event) error {
	if _, ok := r.visits[event.ID]; !ok {
		return pgx.ErrNoRows
	}
	r.updates++
	r.visits[event.ID] = *event
	return nil
}

func (r *memEventRepo) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	v, ok := r.visits[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := v
	return &copied, nil
}

func (r *memEventRepo) ListWithFilter(ctx context.Context, filter repository.EventFilter) ([]domain.Event, error) {
	var out []domain.Event
	for _, id := range r.order {
		v := r.visits[id]
		if filter.ResponsibleEngineer != nil &&
			(v.ResponsibleEngineer == nil || *v.ResponsibleEngineer != *filter.ResponsibleEngineer) {
			continue
		}
		if filter.Resolved != nil && v.Resolved != *filter.Resolved {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

type memNotificationRepo struct {
	seq     int
	records []domain.Notification
}

func (r *memNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	r.seq++
	n.ID = fmt.Sprintf("notification-%d", r.seq)
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Date(2026, 1, 3, 10, 0, 0, 0, time.UTC)
	}
	r.records = append(r.records, *n)
	return nil
}

func (r *memNotificationRepo) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	for _, n := range r.records {
		if n.ID == id {
			copied := n
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memNotificationRepo) List(ctx context.Context, unreadOnly bool, limit, offset int) ([]domain.Notification, error) {
	var out []domain.Notification
	for _, n := range r.records {
		if unreadOnly && n.Read {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (r *memNotificationRepo) MarkRead(ctx context.Context, id string) (bool, error) {
	for i, n := range r.records {
		if n.ID == id {
			if n.Read {
				return false, nil
			}
			r.records[i].Read = true
			return true, nil
		}
	}
	return false, pgx.ErrNoRows
}

func (r *memNotificationRepo) MarkAllRead(ctx context.Context) (int64, error) {
	var flipped int64
	for i, n := range r.records {
		if !n.Read {
			r.records[i].Read = true
			flipped++
		}
	}
	return flipped, nil
}

// fakeSequence hands out readable-id numbers.
type fakeSequence struct{ n int64 }

func (s *fakeSequence) NextTicketNumber(ctx context.Context) (int64, error) {
	s.n++
	return s.n, nil
}

// fakeCounter tracks unread-counter calls.
type fakeCounter struct {
	incremented int
	decremented int
	resets      int
}

func (c *fakeCounter) IncrUnreadNotifications(ctx context.Context) { c.incremented++ }
func (c *fakeCounter) DecrUnreadNotifications(ctx context.Context) { c.decremented++ }
func (c *fakeCounter) ResetUnreadNotifications(ctx context.Context) { c.resets++ }

// recordingDispatcher captures published events without fanning out.
type recordingDispatcher struct {
	mu        sync.Mutex
	published []events.Event
}

func (d *recordingDispatcher) Publish(ctx context.Context, event events.Event) error {
	d.mu.Lock()
	d.published = append(d.published, event)
	d.mu.Unlock()
	return nil
}

func (d *recordingDispatcher) Subscribe(eventType events.EventType, handler events.EventHandler) {}
func (d *recordingDispatcher) SubscribeAll(handler events.EventHandler)                          {}

func (d *recordingDispatcher) types() []events.EventType {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]events.EventType, len(d.published))
	for i, e := range d.published {
		out[i] = e.Type
	}
	return out
}

func strPtr(s string) *string { return &s }

func admin() *domain.Account {
	return &domain.Account{ID: "admin-1", Name: "Dispatch Admin", Role: domain.RoleAdmin, Active: true}
}

func engineer(id string) *domain.Account {
	return &domain.Account{ID: id, Name: "Engineer " + id, Role: domain.RoleEngineer, Active: true}
}

func client(company string) *domain.Account {
	return &domain.Account{ID: "client-1", Role: domain.RoleClient, Company: company, Active: true}
}
