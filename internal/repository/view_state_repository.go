package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldserve/visit-service/internal/domain"
)

// ViewStateRepository stores per-viewer read positions. Read state is keyed
// by (ticket, viewer) so one admin marking a ticket read never affects
// another viewer's unread flag.
type ViewStateRepository interface {
	MarkViewed(ctx context.Context, ticketID, viewerID string, at time.Time) error
	GetForViewer(ctx context.Context, viewerID string, ticketIDs []string) (map[string]domain.TicketViewState, error)
}

type viewStateRepository struct {
	pool *pgxpool.Pool
}

// NewViewStateRepository builds repository.
func NewViewStateRepository(pool *pgxpool.Pool) ViewStateRepository {
	return &viewStateRepository{pool: pool}
}

func (r *viewStateRepository) MarkViewed(ctx context.Context, ticketID, viewerID string, at time.Time) error {
	const query = `
        INSERT INTO ticket_view_states (ticket_id, viewer_id, last_read_at, viewed)
        VALUES ($1,$2,$3,TRUE)
        ON CONFLICT (ticket_id, viewer_id)
        DO UPDATE SET last_read_at=EXCLUDED.last_read_at, viewed=TRUE`
	_, err := r.pool.Exec(ctx, query, ticketID, viewerID, at)
	return err
}

func (r *viewStateRepository) GetForViewer(ctx context.Context, viewerID string, ticketIDs []string) (map[string]domain.TicketViewState, error) {
	result := make(map[string]domain.TicketViewState, len(ticketIDs))
	if len(ticketIDs) == 0 {
		return result, nil
	}
	const query = `
        SELECT ticket_id, viewer_id, last_read_at, viewed
        FROM ticket_view_states WHERE viewer_id=$1 AND ticket_id = ANY($2)`
	rows, err := r.pool.Query(ctx, query, viewerID, ticketIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var state domain.TicketViewState
		if err := rows.Scan(
			&state.TicketID,
			&state.ViewerID,
			&state.LastReadAt,
			&state.Viewed,
		); err != nil {
			return nil, err
		}
		result[state.TicketID] = state
	}
	return result, rows.Err()
}
