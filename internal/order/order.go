// Package order holds the sheet-order domain model and its storage backends.
//
// Orders belong to a merchant sheet: a (sheet_name, sheet_id) pair copied from
// the most recent order of the same merchant. Order numbers are assigned per
// sheet by incrementing the numeric suffix of the highest existing number.
package order

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates no order matched the given order number or filter.
	ErrNotFound = errors.New("order not found")

	// ErrUnknownField indicates an update referenced a field that is not updatable.
	ErrUnknownField = errors.New("unknown order field")

	// ErrNoFields indicates an update carried no fields.
	ErrNoFields = errors.New("no fields to update")
)

// Order is a row in the sheet_orders table.
type Order struct {
	ID           int64     `json:"id"`
	OrderNo      string    `json:"order_no"`
	OrderDate    string    `json:"order_date"`    // YYYY-MM-DD
	DeliveryDate string    `json:"delivery_date"` // YYYY-MM-DD, may be empty
	Amount       float64   `json:"amount"`
	ClientName   string    `json:"client_name"`
	Phone        string    `json:"phone"`
	AltNo        string    `json:"alt_no"`
	Address      string    `json:"address"`
	City         string    `json:"city"`
	Country      string    `json:"country"`
	ProductName  string    `json:"product_name"`
	Quantity     int       `json:"quantity"`
	Status       string    `json:"status"`
	Agent        string    `json:"agent"`
	Instructions string    `json:"instructions"`
	CCEmail      string    `json:"cc_email"`
	Merchant     string    `json:"merchant"`
	OrderType    string    `json:"order_type"`
	SheetID      string    `json:"sheet_id"`
	SheetName    string    `json:"sheet_name"`
	StoreName    string    `json:"store_name"`
	Code         string    `json:"code"`
	Processed    bool      `json:"processed"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Sheet identifies the spreadsheet an order is routed to.
type Sheet struct {
	ID   string
	Name string
}

// Sort columns accepted by Search.
const (
	SortByOrderDate  = "order_date"
	SortByAmount     = "amount"
	SortByClientName = "client_name"
	SortByStatus     = "status"
)

// Query describes an order search. Zero-valued filters are skipped; all
// present filters combine with AND.
type Query struct {
	ClientName  string // substring, case-insensitive
	Merchant    string // substring, case-insensitive
	ProductName string // substring, case-insensitive
	City        string // substring, case-insensitive
	Agent       string // substring, case-insensitive
	Status      string // exact
	OrderType   string // exact
	Phone       string // substring on phone or alt_no

	DateFrom string // inclusive, YYYY-MM-DD
	DateTo   string // inclusive, YYYY-MM-DD

	MinAmount *float64 // inclusive
	MaxAmount *float64 // inclusive

	SortBy    string // one of the SortBy constants; default order_date
	SortOrder string // "asc" or "desc"; default desc
	Limit     int    // clamped to [1, 50]; default 10
}

// Store is the persistence contract consumed by the order tools.
type Store interface {
	// FindByOrderNo returns the order with the given number, or ErrNotFound.
	FindByOrderNo(ctx context.Context, orderNo string) (*Order, error)

	// LatestMerchantSheet returns the sheet binding of the merchant's most
	// recent order that carries both sheet_id and sheet_name, or ErrNotFound.
	LatestMerchantSheet(ctx context.Context, merchant string) (*Sheet, error)

	// LastOrderNo returns the highest order number on the sheet in descending
	// lexicographic order, or "" if the sheet has no orders yet. sheetID may
	// be empty, in which case only sheet_name partitions the lookup.
	LastOrderNo(ctx context.Context, sheetName, sheetID string) (string, error)

	// Create inserts o and fills in ID, CreatedAt and UpdatedAt.
	Create(ctx context.Context, o *Order) error

	// Update applies fields (keyed by the names in UpdatableFields) to the
	// order with the given number. Returns ErrNotFound, ErrNoFields or
	// ErrUnknownField accordingly.
	Update(ctx context.Context, orderNo string, fields map[string]any) error

	// Delete removes the order with the given number, or returns ErrNotFound.
	Delete(ctx context.Context, orderNo string) error

	// Search returns orders matching q, sorted and limited per the query.
	Search(ctx context.Context, q Query) ([]Order, error)
}

// UpdatableFields maps the externally-visible field names accepted by partial
// updates to their column names. Identity and bookkeeping columns (id,
// order_no, sheet binding, timestamps) are deliberately absent.
var UpdatableFields = map[string]string{
	"order_date":    "order_date",
	"delivery_date": "delivery_date",
	"amount":        "amount",
	"client_name":   "client_name",
	"phone":         "phone",
	"alt_no":        "alt_no",
	"address":       "address",
	"city":          "city",
	"country":       "country",
	"product_name":  "product_name",
	"quantity":      "quantity",
	"status":        "status",
	"agent":         "agent",
	"instructions":  "instructions",
	"cc_email":      "cc_email",
	"merchant":      "merchant",
	"order_type":    "order_type",
	"store_name":    "store_name",
	"code":          "code",
}

// sortColumn returns the validated ORDER BY column for q, defaulting to
// order_date. Allow-listed to keep user-supplied sort keys out of SQL text.
func (q Query) sortColumn() string {
	switch q.SortBy {
	case SortByAmount, SortByClientName, SortByStatus:
		return q.SortBy
	default:
		return SortByOrderDate
	}
}

// sortDirection returns "ASC" or "DESC" for q, defaulting to DESC.
func (q Query) sortDirection() string {
	if q.SortOrder == "asc" {
		return "ASC"
	}
	return "DESC"
}

// limit returns the result cap for q clamped to [1, 50], defaulting to 10.
func (q Query) limit() int {
	switch {
	case q.Limit <= 0:
		return 10
	case q.Limit > 50:
		return 50
	default:
		return q.Limit
	}
}
