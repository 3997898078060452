package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// orderColumns is the canonical SELECT list. Nullable text columns are
// coalesced so rows scan directly into Order without Null wrappers.
const orderColumns = `id, order_no,
	COALESCE(order_date, ''), COALESCE(delivery_date, ''), amount,
	client_name, phone, COALESCE(alt_no, ''), address, city, country,
	product_name, quantity, status,
	COALESCE(agent, ''), COALESCE(instructions, ''), COALESCE(cc_email, ''),
	COALESCE(merchant, ''), COALESCE(order_type, ''),
	COALESCE(sheet_id, ''), COALESCE(sheet_name, ''),
	COALESCE(store_name, ''), COALESCE(code, ''),
	processed, created_at, updated_at`

// SQLiteStore persists orders in the embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a store backed by db. The schema must already be
// migrated (see internal/database).
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) FindByOrderNo(ctx context.Context, orderNo string) (*Order, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM sheet_orders WHERE order_no = ? LIMIT 1`, orderNo)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("order %s: %w", orderNo, ErrNotFound)
		}
		return nil, fmt.Errorf("finding order %s: %w", orderNo, err)
	}
	return o, nil
}

func (s *SQLiteStore) LatestMerchantSheet(ctx context.Context, merchant string) (*Sheet, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT sheet_id, sheet_name FROM sheet_orders
		WHERE merchant = ?
		  AND sheet_id IS NOT NULL AND sheet_id != ''
		  AND sheet_name IS NOT NULL AND sheet_name != ''
		ORDER BY id DESC LIMIT 1`, merchant)

	var sheet Sheet
	if err := row.Scan(&sheet.ID, &sheet.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("merchant %s has no sheet binding: %w", merchant, ErrNotFound)
		}
		return nil, fmt.Errorf("resolving sheet for merchant %s: %w", merchant, err)
	}
	return &sheet, nil
}

func (s *SQLiteStore) LastOrderNo(ctx context.Context, sheetName, sheetID string) (string, error) {
	query := `SELECT order_no FROM sheet_orders WHERE sheet_name = ?`
	args := []any{sheetName}
	if sheetID != "" {
		query += ` AND sheet_id = ?`
		args = append(args, sheetID)
	}
	query += ` ORDER BY order_no DESC LIMIT 1`

	var orderNo string
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&orderNo); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("finding last order number for sheet %s: %w", sheetName, err)
	}
	return orderNo, nil
}

func (s *SQLiteStore) Create(ctx context.Context, o *Order) error {
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sheet_orders (
			order_no, order_date, delivery_date, amount,
			client_name, phone, alt_no, address, city, country,
			product_name, quantity, status, agent, instructions, cc_email,
			merchant, order_type, sheet_id, sheet_name, store_name, code,
			processed, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.OrderNo, o.OrderDate, o.DeliveryDate, o.Amount,
		o.ClientName, o.Phone, o.AltNo, o.Address, o.City, o.Country,
		o.ProductName, o.Quantity, o.Status, o.Agent, o.Instructions, o.CCEmail,
		o.Merchant, o.OrderType, o.SheetID, o.SheetName, o.StoreName, o.Code,
		o.Processed, now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("creating order %s: %w", o.OrderNo, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading order id: %w", err)
	}
	o.ID = id
	o.CreatedAt = now
	o.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) Update(ctx context.Context, orderNo string, fields map[string]any) error {
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
		set = append(set, column+" = ?")
		args = append(args, value)
	}
	set = append(set, "updated_at = ?")
	args = append(args, time.Now().UTC().Format(time.RFC3339), orderNo)

	res, err := s.db.ExecContext(ctx,
		`UPDATE sheet_orders SET `+strings.Join(set, ", ")+` WHERE order_no = ?`, args...)
	if err != nil {
		return fmt.Errorf("updating order %s: %w", orderNo, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update of order %s: %w", orderNo, err)
	}
	if n == 0 {
		return fmt.Errorf("order %s: %w", orderNo, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, orderNo string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sheet_orders WHERE order_no = ?`, orderNo)
	if err != nil {
		return fmt.Errorf("deleting order %s: %w", orderNo, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete of order %s: %w", orderNo, err)
	}
	if n == 0 {
		return fmt.Errorf("order %s: %w", orderNo, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) Search(ctx context.Context, q Query) ([]Order, error) {
	where, args := buildSearchFilter(q)

	query := `SELECT ` + orderColumns + ` FROM sheet_orders`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(` ORDER BY %s %s LIMIT %d`, q.sortColumn(), q.sortDirection(), q.limit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("searching orders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
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

// buildSearchFilter translates q into WHERE fragments with ? placeholders.
// Shared by both stores; the postgres store rewrites placeholders afterwards.
func buildSearchFilter(q Query) (where []string, args []any) {
	like := func(column, value string) {
		where = append(where, "LOWER("+column+") LIKE ?")
		args = append(args, "%"+strings.ToLower(value)+"%")
	}

	if q.ClientName != "" {
		like("client_name", q.ClientName)
	}
	if q.Merchant != "" {
		like("merchant", q.Merchant)
	}
	if q.ProductName != "" {
		like("product_name", q.ProductName)
	}
	if q.City != "" {
		like("city", q.City)
	}
	if q.Agent != "" {
		like("agent", q.Agent)
	}
	if q.Status != "" {
		where = append(where, "status = ?")
		args = append(args, q.Status)
	}
	if q.OrderType != "" {
		where = append(where, "order_type = ?")
		args = append(args, q.OrderType)
	}
	if q.Phone != "" {
		where = append(where, "(phone LIKE ? OR alt_no LIKE ?)")
		pattern := "%" + q.Phone + "%"
		args = append(args, pattern, pattern)
	}
	if q.DateFrom != "" {
		where = append(where, "order_date >= ?")
		args = append(args, q.DateFrom)
	}
	if q.DateTo != "" {
		where = append(where, "order_date <= ?")
		args = append(args, q.DateTo)
	}
	if q.MinAmount != nil {
		where = append(where, "amount >= ?")
		args = append(args, *q.MinAmount)
	}
	if q.MaxAmount != nil {
		where = append(where, "amount <= ?")
		args = append(args, *q.MaxAmount)
	}
	return where, args
}

// scanner matches both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (*Order, error) {
	var (
		o         Order
		processed int64
		createdAt string
		updatedAt string
	)
	err := row.Scan(
		&o.ID, &o.OrderNo,
		&o.OrderDate, &o.DeliveryDate, &o.Amount,
		&o.ClientName, &o.Phone, &o.AltNo, &o.Address, &o.City, &o.Country,
		&o.ProductName, &o.Quantity, &o.Status,
		&o.Agent, &o.Instructions, &o.CCEmail,
		&o.Merchant, &o.OrderType,
		&o.SheetID, &o.SheetName,
		&o.StoreName, &o.Code,
		&processed, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Processed = processed != 0
	o.CreatedAt = parseTimestamp(createdAt)
	o.UpdatedAt = parseTimestamp(updatedAt)
	return &o, nil
}

// parseTimestamp reads the RFC3339 timestamps written by this store, falling
// back to the bare format SQLite's strftime default produces.
func parseTimestamp(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02T15:04:05Z", s); err == nil {
		return t
	}
	return time.Time{}
}
