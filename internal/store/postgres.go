package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements Repository on a pgx connection pool.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

var _ Repository = (*PostgresRepository)(nil)

const positionColumns = `
    id, user_id, symbol, side, quantity, entry_price, opened_at, is_open,
    stop_order_id, stop_client_order_id, stop_price, stop_status,
    retry_count, last_stop_attempt_at
`

func scanPosition(row pgx.Row) (*Position, error) {
	var p Position
	err := row.Scan(
		&p.ID, &p.UserID, &p.Symbol, &p.Side, &p.Quantity, &p.EntryPrice, &p.OpenedAt, &p.IsOpen,
		&p.StopOrderID, &p.StopClientOrderID, &p.StopPrice, &p.StopStatus,
		&p.RetryCount, &p.LastStopAttemptAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostgresRepository) fetchPositions(ctx context.Context, query string, args ...any) ([]Position, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, *p)
	}
	return positions, rows.Err()
}

// OpenPositions returns every open position, oldest first.
func (r *PostgresRepository) OpenPositions(ctx context.Context) ([]Position, error) {
	query := `
        SELECT ` + positionColumns + `
        FROM positions
        WHERE is_open
        ORDER BY opened_at ASC;
    `
	return r.fetchPositions(ctx, query)
}

// UnprotectedPositions returns open positions without a live stop order.
func (r *PostgresRepository) UnprotectedPositions(ctx context.Context) ([]Position, error) {
	query := `
        SELECT ` + positionColumns + `
        FROM positions
        WHERE is_open AND stop_status IN ($1, $2)
        ORDER BY opened_at ASC;
    `
	return r.fetchPositions(ctx, query, StopStatusNone, StopStatusFailed)
}

// PositionFor returns a single position by id.
func (r *PostgresRepository) PositionFor(ctx context.Context, id int64) (*Position, error) {
	query := `
        SELECT ` + positionColumns + `
        FROM positions
        WHERE id = $1;
    `
	p, err := scanPosition(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch position %d: %w", id, err)
	}
	return p, nil
}

// UpdateStopOrder records the current stop order attached to a position.
func (r *PostgresRepository) UpdateStopOrder(ctx context.Context, positionID int64, exchangeOrderID, clientOrderID string, stopPrice float64, status string) error {
	query := `
        UPDATE positions
        SET stop_order_id = $2, stop_client_order_id = $3, stop_price = $4,
            stop_status = $5, last_stop_attempt_at = NOW()
        WHERE id = $1;
    `
	tag, err := r.db.Exec(ctx, query, positionID, exchangeOrderID, clientOrderID, stopPrice, status)
	if err != nil {
		return fmt.Errorf("failed to update stop order for position %d: %w", positionID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkStopFailed flags the position's stop as failed.
func (r *PostgresRepository) MarkStopFailed(ctx context.Context, positionID int64, at time.Time) error {
	query := `
        UPDATE positions
        SET stop_status = $2, last_stop_attempt_at = $3
        WHERE id = $1;
    `
	tag, err := r.db.Exec(ctx, query, positionID, StopStatusFailed, at)
	if err != nil {
		return fmt.Errorf("failed to mark stop failed for position %d: %w", positionID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearStopOrder detaches the stop order from a position after a cancel.
func (r *PostgresRepository) ClearStopOrder(ctx context.Context, positionID int64) error {
	query := `
        UPDATE positions
        SET stop_order_id = '', stop_client_order_id = '', stop_price = 0,
            stop_status = $2, last_stop_attempt_at = NULL
        WHERE id = $1;
    `
	tag, err := r.db.Exec(ctx, query, positionID, StopStatusNone)
	if err != nil {
		return fmt.Errorf("failed to clear stop order for position %d: %w", positionID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementStopRetry bumps the retry counter and stamps the attempt time.
func (r *PostgresRepository) IncrementStopRetry(ctx context.Context, positionID int64, at time.Time) error {
	query := `
        UPDATE positions
        SET retry_count = retry_count + 1, last_stop_attempt_at = $2
        WHERE id = $1;
    `
	tag, err := r.db.Exec(ctx, query, positionID, at)
	if err != nil {
		return fmt.Errorf("failed to increment retry for position %d: %w", positionID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ClosePosition marks the position closed.
func (r *PostgresRepository) ClosePosition(ctx context.Context, positionID int64) error {
	query := `
        UPDATE positions
        SET is_open = FALSE
        WHERE id = $1;
    `
	tag, err := r.db.Exec(ctx, query, positionID)
	if err != nil {
		return fmt.Errorf("failed to close position %d: %w", positionID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateProtectiveOrder inserts a protective order record and returns its id.
func (r *PostgresRepository) CreateProtectiveOrder(ctx context.Context, order *ProtectiveOrder) (int64, error) {
	query := `
        INSERT INTO protective_orders (
            position_id, user_id, symbol, client_order_id, exchange_order_id,
            side, quantity, stop_price, limit_price, status, reason,
            created_at, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
        RETURNING id;
    `
	var id int64
	err := r.db.QueryRow(ctx, query,
		order.PositionID, order.UserID, order.Symbol, order.ClientOrderID, order.ExchangeOrderID,
		order.Side, order.Quantity, order.StopPrice, order.LimitPrice, order.Status, order.Reason,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create protective order: %w", err)
	}
	return id, nil
}

// UpdateProtectiveOrderStatus updates the status, exchange order id and reason
// of a protective order record.
func (r *PostgresRepository) UpdateProtectiveOrderStatus(ctx context.Context, id int64, status, exchangeOrderID, reason string) error {
	query := `
        UPDATE protective_orders
        SET status = $2, exchange_order_id = $3, reason = $4, updated_at = NOW()
        WHERE id = $1;
    `
	tag, err := r.db.Exec(ctx, query, id, status, exchangeOrderID, reason)
	if err != nil {
		return fmt.Errorf("failed to update protective order %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecentProtectiveOrders returns protective orders for the position created
// after the given time, newest first.
func (r *PostgresRepository) RecentProtectiveOrders(ctx context.Context, positionID int64, since time.Time) ([]ProtectiveOrder, error) {
	query := `
        SELECT id, position_id, user_id, symbol, client_order_id, exchange_order_id,
               side, quantity, stop_price, limit_price, status, reason,
               created_at, updated_at
        FROM protective_orders
        WHERE position_id = $1 AND created_at >= $2
        ORDER BY created_at DESC;
    `
	rows, err := r.db.Query(ctx, query, positionID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []ProtectiveOrder
	for rows.Next() {
		var o ProtectiveOrder
		if err := rows.Scan(
			&o.ID, &o.PositionID, &o.UserID, &o.Symbol, &o.ClientOrderID, &o.ExchangeOrderID,
			&o.Side, &o.Quantity, &o.StopPrice, &o.LimitPrice, &o.Status, &o.Reason,
			&o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// RecordClosureTrade inserts a closure trade record.
func (r *PostgresRepository) RecordClosureTrade(ctx context.Context, trade *ClosureTrade) error {
	query := `
        INSERT INTO closure_trades (
            position_id, user_id, symbol, side, quantity, price, reason, executed_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
    `
	_, err := r.db.Exec(ctx, query,
		trade.PositionID, trade.UserID, trade.Symbol, trade.Side,
		trade.Quantity, trade.Price, trade.Reason, trade.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record closure trade: %w", err)
	}
	return nil
}
