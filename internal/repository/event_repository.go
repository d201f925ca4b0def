package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldserve/visit-service/internal/domain"
)

// EventFilter captures visit listing parameters.
type EventFilter struct {
	ResponsibleEngineer *string
	TeamName            *string
	Resolved            *bool
	StartFrom           *time.Time
	StartTo             *time.Time
	Limit               int
	Offset              int
}

// EventRepository encapsulates visit/event persistence.
type EventRepository interface {
	Create(ctx context.Context, event *domain.Event) error
	Update(ctx context.Context, event *domain.Event) error
	GetByID(ctx context.Context, id string) (*domain.Event, error)
	ListWithFilter(ctx context.Context, filter EventFilter) ([]domain.Event, error)
}

type eventRepository struct {
	pool *pgxpool.Pool
}

// NewEventRepository instantiates repository.
func NewEventRepository(pool *pgxpool.Pool) EventRepository {
	return &eventRepository{pool: pool}
}

const eventColumns = `id, title, start_date, end_date, team_name, project_name, location, ticket_ids,
               event_type, responsible_engineer, resolved, report_url, created_at, updated_at`

func (r *eventRepository) Create(ctx context.Context, event *domain.Event) error {
	const query = `
        INSERT INTO events (title, start_date, end_date, team_name, project_name, location, ticket_ids,
                            event_type, responsible_engineer, resolved, report_url)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		event.Title,
		event.StartDate,
		event.EndDate,
		event.TeamName,
		event.ProjectName,
		event.Location,
		event.TicketIDs,
		event.EventType,
		event.ResponsibleEngineer,
		event.Resolved,
		event.ReportURL,
	).Scan(&event.ID, &event.CreatedAt, &event.UpdatedAt)
}

func (r *eventRepository) Update(ctx context.Context, event *domain.Event) error {
	const query = `
        UPDATE events SET title=$1, start_date=$2, end_date=$3, team_name=$4, project_name=$5,
            location=$6, ticket_ids=$7, event_type=$8, responsible_engineer=$9, resolved=$10,
            report_url=$11, updated_at=NOW()
        WHERE id=$12`
	cmd, err := r.pool.Exec(ctx, query,
		event.Title,
		event.StartDate,
		event.EndDate,
		event.TeamName,
		event.ProjectName,
		event.Location,
		event.TicketIDs,
		event.EventType,
		event.ResponsibleEngineer,
		event.Resolved,
		event.ReportURL,
		event.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *eventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id=$1`
	var event domain.Event
	if err := r.pool.QueryRow(ctx, query, id).Scan(eventFields(&event)...); err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *eventRepository) ListWithFilter(ctx context.Context, filter EventFilter) ([]domain.Event, error) {
	base := `SELECT ` + eventColumns + ` FROM events`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.ResponsibleEngineer != nil {
		args = append(args, *filter.ResponsibleEngineer)
		clauses = append(clauses, fmt.Sprintf("responsible_engineer=$%d", len(args)))
	}
	if filter.TeamName != nil {
		args = append(args, *filter.TeamName)
		clauses = append(clauses, fmt.Sprintf("team_name=$%d", len(args)))
	}
	if filter.Resolved != nil {
		args = append(args, *filter.Resolved)
		clauses = append(clauses, fmt.Sprintf("resolved=$%d", len(args)))
	}
	if filter.StartFrom != nil {
		args = append(args, *filter.StartFrom)
		clauses = append(clauses, fmt.Sprintf("start_date >= $%d", len(args)))
	}
	if filter.StartTo != nil {
		args = append(args, *filter.StartTo)
		clauses = append(clauses, fmt.Sprintf("start_date <= $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY start_date ASC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Event
	for rows.Next() {
		var event domain.Event
		if err := rows.Scan(eventFields(&event)...); err != nil {
			return nil, err
		}
		result = append(result, event)
	}
	return result, rows.Err()
}

func eventFields(e *domain.Event) []any {
	return []any{
		&e.ID,
		&e.Title,
		&e.StartDate,
		&e.EndDate,
		&e.TeamName,
		&e.ProjectName,
		&e.Location,
		&e.TicketIDs,
		&e.EventType,
		&e.ResponsibleEngineer,
		&e.Resolved,
		&e.ReportURL,
		&e.CreatedAt,
		&e.UpdatedAt,
	}
}
