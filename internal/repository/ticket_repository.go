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

// TicketFilter captures listing parameters.
type TicketFilter struct {
	ResponsibleEngineer *string
	TransferEngineer    *string
	Company             *string
	Statuses            []domain.TicketStatus
	Severities          []domain.TicketSeverity
	SearchTerm          *string
	CreatedFrom         *time.Time
	CreatedTo           *time.Time
	Limit               int
	Offset              int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	SetReadableID(ctx context.Context, id, readableID string) error
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, readable_id, title, description, company, location, severity, status, note_status,
               responsible_engineer, transfer_engineer, is_date_set, scheduled_date, created_by, created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (title, description, company, location, severity, status, note_status,
                             responsible_engineer, transfer_engineer, is_date_set, scheduled_date, created_by)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Company,
		ticket.Location,
		ticket.Severity,
		ticket.Status,
		ticket.NoteStatus,
		ticket.ResponsibleEngineer,
		ticket.TransferEngineer,
		ticket.IsDateSet,
		ticket.ScheduledDate,
		ticket.CreatedBy,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET title=$1, description=$2, company=$3, location=$4, severity=$5, status=$6,
            note_status=$7, responsible_engineer=$8, transfer_engineer=$9, is_date_set=$10,
            scheduled_date=$11, updated_at=NOW()
        WHERE id=$12`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Company,
		ticket.Location,
		ticket.Severity,
		ticket.Status,
		ticket.NoteStatus,
		ticket.ResponsibleEngineer,
		ticket.TransferEngineer,
		ticket.IsDateSet,
		ticket.ScheduledDate,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, id).Scan(ticketFields(&ticket)...); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// SetReadableID stores a lazily generated readable id. The WHERE guard keeps
// an already generated id from ever being overwritten.
func (r *ticketRepository) SetReadableID(ctx context.Context, id, readableID string) error {
	const query = `UPDATE tickets SET readable_id=$1 WHERE id=$2 AND readable_id IS NULL`
	_, err := r.pool.Exec(ctx, query, readableID, id)
	return err
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := `SELECT ` + ticketColumns + ` FROM tickets`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.ResponsibleEngineer != nil {
		if filter.TransferEngineer != nil {
			// engineer scope: own tickets plus pending transfers to them
			args = append(args, *filter.ResponsibleEngineer)
			first := len(args)
			args = append(args, *filter.TransferEngineer)
			clauses = append(clauses, fmt.Sprintf("(responsible_engineer=$%d OR transfer_engineer=$%d)", first, len(args)))
		} else {
			args = append(args, *filter.ResponsibleEngineer)
			clauses = append(clauses, fmt.Sprintf("responsible_engineer=$%d", len(args)))
		}
	}
	if filter.Company != nil {
		args = append(args, *filter.Company)
		clauses = append(clauses, fmt.Sprintf("company=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Severities) > 0 {
		placeholders := make([]string, len(filter.Severities))
		for i, severity := range filter.Severities {
			args = append(args, severity)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("severity IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(title) LIKE %s OR LOWER(location) LIKE %s)", placeholder, placeholder))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func ticketFields(t *domain.Ticket) []any {
	return []any{
		&t.ID,
		&t.ReadableID,
		&t.Title,
		&t.Description,
		&t.Company,
		&t.Location,
		&t.Severity,
		&t.Status,
		&t.NoteStatus,
		&t.ResponsibleEngineer,
		&t.TransferEngineer,
		&t.IsDateSet,
		&t.ScheduledDate,
		&t.CreatedBy,
		&t.CreatedAt,
		&t.UpdatedAt,
	}
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(ticketFields(&ticket)...); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
