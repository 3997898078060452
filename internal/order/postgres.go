package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgOrderColumns mirrors orderColumns with native bool and timestamptz types.
const pgOrderColumns = `id, order_no,
	COALESCE(order_date, ''), COALESCE(delivery_date, ''), amount,
	client_name, phone, COALESCE(alt_no, ''), address, city, country,
	product_name, quantity, status,
	COALESCE(agent, ''), COALESCE(instructions, ''), COALESCE(cc_email, ''),
	COALESCE(merchant, ''), COALESCE(order_type, ''),
	COALESCE(sheet_id, ''), COALESCE(sheet_name, ''),
	COALESCE(store_name, ''), COALESCE(code, ''),
	processed, created_at, updated_at`

// PostgresStore persists orders in PostgreSQL through a pgx connection pool.
// Used by multi-node deployments where the embedded SQLite store won't do.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store backed by pool. The schema must already be
// migrated (see db.Migrate).
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) FindByOrderNo(ctx context.Context, orderNo string) (*Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgOrderColumns+` FROM sheet_orders WHERE order_no = $1 LIMIT 1`, orderNo)

	o, err := scanPgOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order %s: %w", orderNo, ErrNotFound)
		}
		return nil, fmt.Errorf("finding order %s: %w", orderNo, err)
	}
	return o, nil
}

func (s *PostgresStore) LatestMerchantSheet(ctx context.Context, merchant string) (*Sheet, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT sheet_id, sheet_name FROM sheet_orders
		WHERE merchant = $1
		  AND sheet_id IS NOT NULL AND sheet_id != ''
		  AND sheet_name IS NOT NULL AND sheet_name != ''
		ORDER BY id DESC LIMIT 1`, merchant)

	var sheet Sheet
	if err := row.Scan(&sheet.ID, &sheet.Name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("merchant %s has no sheet binding: %w", merchant, ErrNotFound)
		}
		return nil, fmt.Errorf("resolving sheet for merchant %s: %w", merchant, err)
	}
	return &sheet, nil
}

func (s *PostgresStore) LastOrderNo(ctx context.Context, sheetName, sheetID string) (string, error) {
	query := `SELECT order_no FROM sheet_orders WHERE sheet_name = $1`
	args := []any{sheetName}
	if sheetID != "" {
		query += ` AND sheet_id = $2`
		args = append(args, sheetID)
	}
	query += ` ORDER BY order_no DESC LIMIT 1`

	var orderNo string
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&orderNo); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("finding last order number for sheet %s: %w", sheetName, err)
	}
	return orderNo, nil
}

func (s *PostgresStore) Create(ctx context.Context, o *Order) error {
	now := time.Now().UTC()

	err := s.pool.QueryRow(ctx, `
		INSERT INTO sheet_orders (
			order_no, order_date, delivery_date, amount,
			client_name, phone, alt_no, address, city, country,
			product_name, quantity, status, agent, instructions, cc_email,
			merchant, order_type, sheet_id, sheet_name, store_name, code,
			processed, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
			$21, $22, $23, $24, $25)
		RETURNING id`,
		o.OrderNo, o.OrderDate, o.DeliveryDate, o.Amount,
		o.ClientName, o.Phone, o.AltNo, o.Address, o.City, o.Country,
		o.ProductName, o.Quantity, o.Status, o.Agent, o.Instructions, o.CCEmail,
		o.Merchant, o.OrderType, o.SheetID, o.SheetName, o.StoreName, o.Code,
		o.Processed, now, now).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("creating order %s: %w", o.OrderNo, err)
	}
	o.CreatedAt = now
	o.UpdatedAt = now
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, orderNo string, fields map[string]any) error {
	if len(fields) == 0 {
		return ErrNoFields
	}

	set := make([]string, 0, len(fields)+1)
	args := make([]any, 0, len(fields)+2)
	for name, value := range fields {
		column, ok := UpdatableFields[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownField, name)
		}
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	args = append(args, time.Now().UTC())
	set = append(set, fmt.Sprintf("updated_at = $%d", len(args)))
	args = append(args, orderNo)

	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE sheet_orders SET %s WHERE order_no = $%d`,
			strings.Join(set, ", "), len(args)), args...)
	if err != nil {
		return fmt.Errorf("updating order %s: %w", orderNo, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %s: %w", orderNo, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, orderNo string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sheet_orders WHERE order_no = $1`, orderNo)
	if err != nil {
		return fmt.Errorf("deleting order %s: %w", orderNo, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %s: %w", orderNo, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) Search(ctx context.Context, q Query) ([]Order, error) {
	where, args := buildSearchFilter(q)

	query := `SELECT ` + pgOrderColumns + ` FROM sheet_orders`
	if len(where) > 0 {
		query += ` WHERE ` + numberPlaceholders(strings.Join(where, " AND "))
	}
	query += fmt.Sprintf(` ORDER BY %s %s LIMIT %d`, q.sortColumn(), q.sortDirection(), q.limit())

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("searching orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanPgOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning order row: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating order rows: %w", err)
	}
	return orders, nil
}

// numberPlaceholders rewrites the shared filter's ? placeholders to $1..$n.
func numberPlaceholders(clause string) string {
	var b strings.Builder
	n := 0
	for _, r := range clause {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func scanPgOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.OrderNo,
		&o.OrderDate, &o.DeliveryDate, &o.Amount,
		&o.ClientName, &o.Phone, &o.AltNo, &o.Address, &o.City, &o.Country,
		&o.ProductName, &o.Quantity, &o.Status,
		&o.Agent, &o.Instructions, &o.CCEmail,
		&o.Merchant, &o.OrderType,
		&o.SheetID, &o.SheetName,
		&o.StoreName, &o.Code,
		&o.Processed, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}
