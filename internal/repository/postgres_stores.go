package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-copilot/internal/domain"
	apperrors "github.com/spec-kit/support-copilot/pkg/util/errorutil"
)

var stageTables = map[domain.Stage]string{
	domain.StagePending:   "pending_tickets",
	domain.StageDrafted:   "drafted_tickets",
	domain.StageEscalated: "escalated_tickets",
	domain.StageCompleted: "completed_tickets",
}

const ticketColumns = `ticket_id, issue, category, priority, created_at, closed_at, is_drafted,
        tone, escalation_reason, needs_attention, failure_reason, confidence, used_policy,
        used_reference_ticket_id, ai_drafted_response, resolution`

// querier abstracts pgxpool.Pool and pgx.Tx so store operations run either
// directly or inside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStores implements TicketStores over a pgx pool.
type PostgresStores struct {
	pool *pgxpool.Pool
	q    querier
}

// NewPostgresStores instantiates the store bundle.
func NewPostgresStores(pool *pgxpool.Pool) *PostgresStores {
	return &PostgresStores{pool: pool, q: pool}
}

func (s *PostgresStores) Pending() PendingStore {
	return &postgresPendingStore{postgresStore{q: s.q, table: stageTables[domain.StagePending]}}
}

func (s *PostgresStores) Drafted() TicketStore {
	return &postgresStore{q: s.q, table: stageTables[domain.StageDrafted]}
}

func (s *PostgresStores) Escalated() TicketStore {
	return &postgresStore{q: s.q, table: stageTables[domain.StageEscalated]}
}

func (s *PostgresStores) Completed() TicketStore {
	return &postgresStore{q: s.q, table: stageTables[domain.StageCompleted]}
}

// RunInTransaction runs fn against a transactional view of all four stores.
// Nested calls reuse the enclosing transaction.
func (s *PostgresStores) RunInTransaction(ctx context.Context, fn func(tx TicketStores) error) error {
	if s.pool == nil {
		return fn(s)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperrors.NewStoreError("begin transaction", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(&PostgresStores{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return apperrors.NewStoreError("commit transaction", err)
	}
	return nil
}

type postgresStore struct {
	q     querier
	table string
}

func (r *postgresStore) Insert(ctx context.Context, ticket *domain.Ticket) error {
	query := fmt.Sprintf(`
        INSERT INTO %s (%s)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`, r.table, ticketColumns)
	_, err := r.q.Exec(ctx, query,
		ticket.TicketID,
		ticket.Issue,
		ticket.Metadata.Category,
		ticket.Metadata.Priority,
		ticket.Metadata.CreationTime,
		ticket.Metadata.ClosureTime,
		ticket.Metadata.IsDrafted,
		ticket.Metadata.Tone,
		ticket.Metadata.EscalationReason,
		ticket.Metadata.NeedsAttention,
		ticket.Metadata.FailureReason,
		ticket.Confidence,
		ticket.UsedPolicy,
		ticket.UsedReferenceTicketID,
		ticket.AIDraftedResponse,
		ticket.Resolution,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.NewDuplicate(ticket.TicketID)
		}
		return apperrors.NewStoreError("insert ticket", err)
	}
	return nil
}

func (r *postgresStore) FindByID(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE ticket_id=$1`, ticketColumns, r.table)
	return r.scanRow(r.q.QueryRow(ctx, query, ticketID))
}

func (r *postgresStore) FindAndDelete(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE ticket_id=$1 RETURNING %s`, r.table, ticketColumns)
	return r.scanRow(r.q.QueryRow(ctx, query, ticketID))
}

func (r *postgresStore) ListRecent(ctx context.Context, limit int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 10
	}
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY created_at DESC LIMIT %d`, ticketColumns, r.table, limit)
	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, apperrors.NewStoreError("list tickets", err)
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *postgresStore) scanRow(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.TicketID,
		&ticket.Issue,
		&ticket.Metadata.Category,
		&ticket.Metadata.Priority,
		&ticket.Metadata.CreationTime,
		&ticket.Metadata.ClosureTime,
		&ticket.Metadata.IsDrafted,
		&ticket.Metadata.Tone,
		&ticket.Metadata.EscalationReason,
		&ticket.Metadata.NeedsAttention,
		&ticket.Metadata.FailureReason,
		&ticket.Confidence,
		&ticket.UsedPolicy,
		&ticket.UsedReferenceTicketID,
		&ticket.AIDraftedResponse,
		&ticket.Resolution,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"store": r.table})
		}
		return nil, apperrors.NewStoreError("fetch ticket", err)
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.TicketID,
			&ticket.Issue,
			&ticket.Metadata.Category,
			&ticket.Metadata.Priority,
			&ticket.Metadata.CreationTime,
			&ticket.Metadata.ClosureTime,
			&ticket.Metadata.IsDrafted,
			&ticket.Metadata.Tone,
			&ticket.Metadata.EscalationReason,
			&ticket.Metadata.NeedsAttention,
			&ticket.Metadata.FailureReason,
			&ticket.Confidence,
			&ticket.UsedPolicy,
			&ticket.UsedReferenceTicketID,
			&ticket.AIDraftedResponse,
			&ticket.Resolution,
		); err != nil {
			return nil, apperrors.NewStoreError("scan ticket", err)
		}
		result = append(result, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreError("iterate tickets", err)
	}
	return result, nil
}

type postgresPendingStore struct {
	postgresStore
}

// ClaimNext is a single atomic read-modify-write. SKIP LOCKED keeps
// concurrent claimers from ever receiving the same row.
func (r *postgresPendingStore) ClaimNext(ctx context.Context) (*domain.Ticket, error) {
	query := fmt.Sprintf(`
        UPDATE %s SET is_drafted = TRUE
        WHERE ticket_id = (
            SELECT ticket_id FROM %s
            WHERE is_drafted = FALSE AND needs_attention = FALSE
            ORDER BY created_at
            LIMIT 1
            FOR UPDATE SKIP LOCKED
        )
        RETURNING %s`, r.table, r.table, ticketColumns)
	ticket, err := r.scanRow(r.q.QueryRow(ctx, query))
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return ticket, nil
}

func (r *postgresPendingStore) Release(ctx context.Context, ticketID string) error {
	query := fmt.Sprintf(`UPDATE %s SET is_drafted = FALSE WHERE ticket_id=$1`, r.table)
	cmd, err := r.q.Exec(ctx, query, ticketID)
	if err != nil {
		return apperrors.NewStoreError("release claim", err)
	}
	if cmd.RowsAffected() == 0 {
		return apperrors.NewNotFound("ticket", map[string]any{"store": r.table, "ticket_id": ticketID})
	}
	return nil
}

func (r *postgresPendingStore) MarkNeedsAttention(ctx context.Context, ticketID, reason string) error {
	query := fmt.Sprintf(`UPDATE %s SET needs_attention = TRUE, failure_reason=$2 WHERE ticket_id=$1`, r.table)
	cmd, err := r.q.Exec(ctx, query, ticketID, reason)
	if err != nil {
		return apperrors.NewStoreError("mark needs attention", err)
	}
	if cmd.RowsAffected() == 0 {
		return apperrors.NewNotFound("ticket", map[string]any{"store": r.table, "ticket_id": ticketID})
	}
	return nil
}

func (r *postgresPendingStore) ListNeedsAttention(ctx context.Context, limit int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 10
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE needs_attention = TRUE ORDER BY created_at DESC LIMIT %d`,
		ticketColumns, r.table, limit)
	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, apperrors.NewStoreError("list needs-attention tickets", err)
	}
	defer rows.Close()
	return scanTickets(rows)
}
