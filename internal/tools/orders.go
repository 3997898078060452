package tools

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/kibocha/orderdesk/internal/log"
	"github.com/kibocha/orderdesk/internal/order"
)

// Order tool names.
const (
	ToolCreateOrder = "create_order"
	ToolUpdateOrder = "update_order"
	ToolDeleteOrder = "delete_order"
	ToolViewOrder   = "view_order"
)

// createOrderRequired lists the fields create_order refuses to proceed without.
var createOrderRequired = []string{
	"order_date", "amount", "client_name", "phone", "address", "city",
	"product_name", "quantity", "merchant", "order_type",
}

// OrderDefaults are the fallback values applied when the model omits them.
type OrderDefaults struct {
	Country string
	Status  string
}

// passwordMatches compares a supplied secret against the configured one in
// constant time.
func passwordMatches(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// CreateOrder registers a new order. The order number is derived from the
// merchant's sheet: the merchant must already have an order carrying a
// sheet_id and sheet_name, and the new number increments the sheet's highest.
type CreateOrder struct {
	store    order.Store
	defaults OrderDefaults
	logger   log.Logger
}

// NewCreateOrder creates the create_order handler.
func NewCreateOrder(store order.Store, defaults OrderDefaults, logger log.Logger) *CreateOrder {
	return &CreateOrder{store: store, defaults: defaults, logger: logger}
}

func (*CreateOrder) Name() string { return ToolCreateOrder }

func (*CreateOrder) Description() string {
	return "Create a new order in the logistics system. " +
		"Use this tool to register customer orders including product details, " +
		"delivery information, merchant details, and order metadata. " +
		"Order numbers are automatically generated based on the merchant's sheet."
}

func (*CreateOrder) Parameters() *jsonschema.Schema {
	return objectSchema(map[string]*jsonschema.Schema{
		"order_date":    stringProp("Order date in YYYY-MM-DD format"),
		"amount":        numberProp("Total order amount"),
		"client_name":   stringProp("Customer full name"),
		"address":       stringProp("Delivery address"),
		"phone":         stringProp("Customer phone number"),
		"alt_no":        stringProp("Alternative phone number"),
		"country":       stringProp("Country name (defaults to the configured country)"),
		"city":          stringProp("City name"),
		"product_name":  stringProp("Name of the product"),
		"quantity":      integerPropMin("Product quantity", 1),
		"status":        stringProp("Order status (defaults to Pending)"),
		"agent":         stringProp("Agent or sales representative name"),
		"delivery_date": stringProp("Expected delivery date in YYYY-MM-DD format"),
		"instructions":  stringProp("Special delivery or handling instructions"),
		"cc_email":      stringProp("CC email address for notifications"),
		"merchant":      stringProp("Merchant or store name - REQUIRED to generate order number"),
		"order_type":    stringProp("Type of order (e.g., Online, Retail, Wholesale)"),
		"store_name":    stringProp("Physical store name"),
		"code":          stringProp("Special order or reference code"),
	}, createOrderRequired...)
}

func (t *CreateOrder) Handle(ctx context.Context, args map[string]any) Result {
	t.logger.Info("create_order called", "merchant", stringArg(args, "merchant"))

	if missing := missingRequired(args, createOrderRequired...); len(missing) > 0 {
		return Failuref(ErrCodeValidation,
			"Missing required fields: %s", strings.Join(missing, ", "))
	}

	amount, ok := floatArg(args, "amount")
	if !ok || amount < 0 {
		return Failure(ErrCodeValidation, "amount must be a non-negative number")
	}
	quantity, ok := intArg(args, "quantity")
	if !ok || quantity < 1 {
		return Failure(ErrCodeValidation, "quantity must be an integer of at least 1")
	}

	merchant := stringArg(args, "merchant")
	sheet, err := t.store.LatestMerchantSheet(ctx, merchant)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return Failuref(ErrCodeMerchantNotConfigured,
				"No sheet configuration found for merchant '%s'. "+
					"Please ensure this merchant has been set up with a sheet_id and sheet_name.",
				merchant)
		}
		return Failuref(ErrCodeInternal, "Failed to create order: %v", err)
	}

	lastNo, err := t.store.LastOrderNo(ctx, sheet.Name, sheet.ID)
	if err != nil {
		return Failuref(ErrCodeInternal, "Failed to create order: %v", err)
	}
	orderNo := order.NextOrderNumber(lastNo, sheet.Name)

	country := stringArg(args, "country")
	if country == "" {
		country = t.defaults.Country
	}
	status := stringArg(args, "status")
	if status == "" {
		status = t.defaults.Status
	}

	o := &order.Order{
		OrderNo:      orderNo,
		OrderDate:    stringArg(args, "order_date"),
		DeliveryDate: stringArg(args, "delivery_date"),
		Amount:       amount,
		ClientName:   stringArg(args, "client_name"),
		Phone:        stringArg(args, "phone"),
		AltNo:        stringArg(args, "alt_no"),
		Address:      stringArg(args, "address"),
		City:         stringArg(args, "city"),
		Country:      country,
		ProductName:  stringArg(args, "product_name"),
		Quantity:     quantity,
		Status:       status,
		Agent:        stringArg(args, "agent"),
		Instructions: stringArg(args, "instructions"),
		CCEmail:      stringArg(args, "cc_email"),
		Merchant:     merchant,
		OrderType:    stringArg(args, "order_type"),
		SheetID:      sheet.ID,
		SheetName:    sheet.Name,
		StoreName:    stringArg(args, "store_name"),
		Code:         stringArg(args, "code"),
		Processed:    false,
	}
	if err := t.store.Create(ctx, o); err != nil {
		return Failuref(ErrCodeInternal, "Failed to create order: %v", err)
	}

	return Success("Order created successfully", map[string]any{
		"order": map[string]any{
			"id":           o.ID,
			"order_no":     o.OrderNo,
			"client_name":  o.ClientName,
			"amount":       o.Amount,
			"product_name": o.ProductName,
			"quantity":     o.Quantity,
			"city":         o.City,
			"merchant":     o.Merchant,
			"status":       o.Status,
			"sheet_name":   o.SheetName,
		},
	})
}

// UpdateOrder applies a partial update to an existing order. Only fields
// present in the call are touched; an absent field is left alone even if the
// same name could be set to empty.
type UpdateOrder struct {
	store  order.Store
	logger log.Logger
}

// NewUpdateOrder creates the update_order handler.
func NewUpdateOrder(store order.Store, logger log.Logger) *UpdateOrder {
	return &UpdateOrder{store: store, logger: logger}
}

func (*UpdateOrder) Name() string { return ToolUpdateOrder }

func (*UpdateOrder) Description() string {
	return "Update an existing order in the logistics system. " +
		"Use this tool to modify order details such as status, delivery information, " +
		"product details, or any other order fields. You must provide the order number " +
		"to identify which order to update."
}

func (*UpdateOrder) Parameters() *jsonschema.Schema {
	return objectSchema(map[string]*jsonschema.Schema{
		"order_no":      stringProp("The order number to update (REQUIRED)"),
		"order_date":    stringProp("Order date in YYYY-MM-DD format"),
		"amount":        numberProp("Total order amount"),
		"client_name":   stringProp("Customer full name"),
		"address":       stringProp("Delivery address"),
		"phone":         stringProp("Customer phone number"),
		"alt_no":        stringProp("Alternative phone number"),
		"country":       stringProp("Country name"),
		"city":          stringProp("City name"),
		"product_name":  stringProp("Name of the product"),
		"quantity":      integerPropMin("Product quantity", 1),
		"status":        stringProp("Order status (e.g., Pending, Processing, Delivered, Cancelled)"),
		"agent":         stringProp("Agent or sales representative name"),
		"delivery_date": stringProp("Expected delivery date in YYYY-MM-DD format"),
		"instructions":  stringProp("Special delivery or handling instructions"),
		"cc_email":      stringProp("CC email address for notifications"),
		"merchant":      stringProp("Merchant or store name"),
		"order_type":    stringProp("Type of order (e.g., Online, Retail, Wholesale)"),
		"store_name":    stringProp("Physical store name"),
		"code":          stringProp("Special order or reference code"),
	}, "order_no")
}

func (t *UpdateOrder) Handle(ctx context.Context, args map[string]any) Result {
	orderNo := stringArg(args, "order_no")
	t.logger.Info("update_order called", "order_no", orderNo)

	if orderNo == "" {
		return Failure(ErrCodeValidation, "order_no is required")
	}

	existing, err := t.store.FindByOrderNo(ctx, orderNo)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return Failuref(ErrCodeNotFound,
				"Order '%s' not found. Please check the order number and try again.", orderNo)
		}
		return Failuref(ErrCodeInternal, "Failed to update order: %v", err)
	}

	fields := make(map[string]any)
	for name := range order.UpdatableFields {
		if !hasArg(args, name) {
			continue
		}
		switch name {
		case "amount":
			v, ok := floatArg(args, name)
			if !ok {
				return Failure(ErrCodeValidation, "amount must be a number")
			}
			fields[name] = v
		case "quantity":
			v, ok := intArg(args, name)
			if !ok {
				return Failure(ErrCodeValidation, "quantity must be an integer")
			}
			fields[name] = v
		default:
			fields[name] = stringArg(args, name)
		}
	}
	if len(fields) == 0 {
		return Failure(ErrCodeNoFields,
			"No fields to update were provided. Please specify at least one field to change.")
	}

	if err := t.store.Update(ctx, orderNo, fields); err != nil {
		return Failuref(ErrCodeInternal, "Failed to update order: %v", err)
	}

	updated, err := t.store.FindByOrderNo(ctx, orderNo)
	if err != nil {
		return Failuref(ErrCodeInternal, "Failed to update order: %v", err)
	}

	changes := make([]map[string]any, 0, len(fields))
	for name := range fields {
		oldValue := orderFieldValue(existing, name)
		newValue := orderFieldValue(updated, name)
		if oldValue != newValue {
			changes = append(changes, map[string]any{
				"field":     name,
				"old_value": oldValue,
				"new_value": newValue,
			})
		}
	}

	return Success("Order updated successfully", map[string]any{
		"order": map[string]any{
			"id":            updated.ID,
			"order_no":      updated.OrderNo,
			"client_name":   updated.ClientName,
			"amount":        updated.Amount,
			"product_name":  updated.ProductName,
			"quantity":      updated.Quantity,
			"city":          updated.City,
			"status":        updated.Status,
			"merchant":      updated.Merchant,
			"delivery_date": updated.DeliveryDate,
		},
		"changes":       changes,
		"changes_count": len(changes),
	})
}

// DeleteOrder permanently removes an order. The password is checked before
// the lookup so a wrong password never leaks whether an order exists.
type DeleteOrder struct {
	store    order.Store
	password string
	logger   log.Logger
}

// NewDeleteOrder creates the delete_order handler.
func NewDeleteOrder(store order.Store, password string, logger log.Logger) *DeleteOrder {
	return &DeleteOrder{store: store, password: password, logger: logger}
}

func (*DeleteOrder) Name() string { return ToolDeleteOrder }

func (*DeleteOrder) Description() string {
	return "Delete an existing order from the logistics system. " +
		"CRITICAL: This action is IRREVERSIBLE and permanently removes the order. " +
		"Requires both the order number AND a confirmation password for security. " +
		"Use this tool only when the user explicitly requests to delete an order " +
		"and provides the correct password for confirmation."
}

func (*DeleteOrder) Parameters() *jsonschema.Schema {
	return objectSchema(map[string]*jsonschema.Schema{
		"order_no": stringProp("The order number to delete (REQUIRED)"),
		"password": stringProp("Confirmation password required for deletion (REQUIRED for security)"),
	}, "order_no", "password")
}

func (t *DeleteOrder) Handle(ctx context.Context, args map[string]any) Result {
	orderNo := stringArg(args, "order_no")
	t.logger.Info("delete_order called", "order_no", orderNo)

	if !passwordMatches(stringArg(args, "password"), t.password) {
		return Failure(ErrCodeUnauthorized,
			"Invalid password. Deletion cancelled for security reasons. "+
				"Please provide the correct password to confirm deletion.")
	}
	if orderNo == "" {
		return Failure(ErrCodeValidation, "order_no is required")
	}

	o, err := t.store.FindByOrderNo(ctx, orderNo)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return Failuref(ErrCodeNotFound,
				"Order '%s' not found. Please check the order number and try again.", orderNo)
		}
		return Failuref(ErrCodeInternal, "Failed to delete order: %v", err)
	}

	snapshot := map[string]any{
		"id":           o.ID,
		"order_no":     o.OrderNo,
		"client_name":  o.ClientName,
		"amount":       o.Amount,
		"product_name": o.ProductName,
		"quantity":     o.Quantity,
		"status":       o.Status,
		"merchant":     o.Merchant,
		"city":         o.City,
		"order_date":   o.OrderDate,
	}

	if err := t.store.Delete(ctx, orderNo); err != nil {
		return Failuref(ErrCodeInternal, "Failed to delete order: %v", err)
	}

	return Success("Order deleted successfully", map[string]any{
		"deleted": true,
		"order":   snapshot,
		"warning": "This action cannot be undone",
	})
}

// ViewOrder shows a single order by number, or searches orders by filter
// criteria when no order number is given.
type ViewOrder struct {
	store  order.Store
	logger log.Logger
}

// NewViewOrder creates the view_order handler.
func NewViewOrder(store order.Store, logger log.Logger) *ViewOrder {
	return &ViewOrder{store: store, logger: logger}
}

func (*ViewOrder) Name() string { return ToolViewOrder }

func (*ViewOrder) Description() string {
	return "View and search orders in the logistics system. " +
		"This tool can view a single order by order number, search multiple orders " +
		"by various criteria (client name, status, merchant, date range, etc.), " +
		"list recent orders, and filter and sort results."
}

func (*ViewOrder) Parameters() *jsonschema.Schema {
	return objectSchema(map[string]*jsonschema.Schema{
		"order_no":     stringProp("Specific order number to view (if provided, shows only this order)"),
		"client_name":  stringProp("Search by customer name (partial match)"),
		"status":       stringProp("Filter by order status (e.g., Pending, Processing, Delivered, Cancelled)"),
		"merchant":     stringProp("Filter by merchant name (partial match)"),
		"product_name": stringProp("Filter by product name (partial match)"),
		"city":         stringProp("Filter by city (partial match)"),
		"order_type":   stringProp("Filter by order type (e.g., Online, Retail, Wholesale)"),
		"agent":        stringProp("Filter by agent name (partial match)"),
		"phone":        stringProp("Search by phone number (searches both main and alternative numbers)"),
		"date_from":    stringProp("Start date for order date range (YYYY-MM-DD)"),
		"date_to":      stringProp("End date for order date range (YYYY-MM-DD)"),
		"min_amount":   numberProp("Minimum order amount"),
		"max_amount":   numberProp("Maximum order amount"),
		"sort_by":      stringProp("Field to sort by: order_date, amount, client_name, status (default order_date)"),
		"sort_order":   stringProp("Sort order: asc or desc (default desc)"),
		"limit":        integerProp("Maximum number of results to return (default 10, max 50)"),
	})
}

func (t *ViewOrder) Handle(ctx context.Context, args map[string]any) Result {
	if orderNo := stringArg(args, "order_no"); orderNo != "" {
		return t.viewSingle(ctx, orderNo)
	}
	return t.search(ctx, args)
}

func (t *ViewOrder) viewSingle(ctx context.Context, orderNo string) Result {
	t.logger.Info("view_order called", "order_no", orderNo)

	o, err := t.store.FindByOrderNo(ctx, orderNo)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return Failuref(ErrCodeNotFound,
				"Order '%s' not found. Please check the order number and try again.", orderNo)
		}
		return Failuref(ErrCodeInternal, "Failed to retrieve orders: %v", err)
	}

	return Success("Order found", map[string]any{
		"type": "single",
		"order": map[string]any{
			"id":            o.ID,
			"order_no":      o.OrderNo,
			"order_date":    o.OrderDate,
			"client_name":   o.ClientName,
			"phone":         o.Phone,
			"alt_no":        o.AltNo,
			"address":       o.Address,
			"city":          o.City,
			"country":       o.Country,
			"product_name":  o.ProductName,
			"quantity":      o.Quantity,
			"amount":        o.Amount,
			"status":        o.Status,
			"merchant":      o.Merchant,
			"order_type":    o.OrderType,
			"delivery_date": o.DeliveryDate,
			"instructions":  o.Instructions,
			"agent":         o.Agent,
			"store_name":    o.StoreName,
			"sheet_name":    o.SheetName,
			"created_at":    o.CreatedAt.Format(time.DateTime),
			"updated_at":    o.UpdatedAt.Format(time.DateTime),
		},
	})
}

func (t *ViewOrder) search(ctx context.Context, args map[string]any) Result {
	t.logger.Info("view_order search called")

	q := order.Query{
		ClientName:  stringArg(args, "client_name"),
		Merchant:    stringArg(args, "merchant"),
		ProductName: stringArg(args, "product_name"),
		City:        stringArg(args, "city"),
		Agent:       stringArg(args, "agent"),
		Status:      stringArg(args, "status"),
		OrderType:   stringArg(args, "order_type"),
		Phone:       stringArg(args, "phone"),
		DateFrom:    stringArg(args, "date_from"),
		DateTo:      stringArg(args, "date_to"),
		SortBy:      stringArg(args, "sort_by"),
		SortOrder:   stringArg(args, "sort_order"),
	}
	if v, ok := floatArg(args, "min_amount"); ok {
		q.MinAmount = &v
	}
	if v, ok := floatArg(args, "max_amount"); ok {
		q.MaxAmount = &v
	}
	if v, ok := intArg(args, "limit"); ok {
		q.Limit = v
	}

	orders, err := t.store.Search(ctx, q)
	if err != nil {
		return Failuref(ErrCodeInternal, "Failed to retrieve orders: %v", err)
	}
	if len(orders) == 0 {
		return Failure(ErrCodeNotFound,
			"No orders found matching your criteria. Try different search parameters.")
	}

	rows := make([]map[string]any, 0, len(orders))
	var totalAmount float64
	for _, o := range orders {
		// Total covers the returned page only, matching the page-level
		// summary shown in the chat client.
		totalAmount += o.Amount
		rows = append(rows, map[string]any{
			"order_no":      o.OrderNo,
			"order_date":    o.OrderDate,
			"client_name":   o.ClientName,
			"phone":         o.Phone,
			"city":          o.City,
			"product_name":  o.ProductName,
			"quantity":      o.Quantity,
			"amount":        o.Amount,
			"status":        o.Status,
			"merchant":      o.Merchant,
			"order_type":    o.OrderType,
			"delivery_date": o.DeliveryDate,
		})
	}

	return Success("Orders found", map[string]any{
		"type":         "multiple",
		"count":        len(orders),
		"filters":      summarizeFilters(q),
		"orders":       rows,
		"total_amount": totalAmount,
	})
}

// summarizeFilters renders the applied filters for the model's benefit.
func summarizeFilters(q order.Query) string {
	var filters []string
	if q.ClientName != "" {
		filters = append(filters, "client: "+q.ClientName)
	}
	if q.Status != "" {
		filters = append(filters, "status: "+q.Status)
	}
	if q.Merchant != "" {
		filters = append(filters, "merchant: "+q.Merchant)
	}
	if q.ProductName != "" {
		filters = append(filters, "product: "+q.ProductName)
	}
	if q.City != "" {
		filters = append(filters, "city: "+q.City)
	}
	if q.DateFrom != "" || q.DateTo != "" {
		from, to := q.DateFrom, q.DateTo
		if from == "" {
			from = "any"
		}
		if to == "" {
			to = "any"
		}
		filters = append(filters, fmt.Sprintf("date range: %s to %s", from, to))
	}
	if len(filters) == 0 {
		return "none"
	}
	return strings.Join(filters, ", ")
}

// orderFieldValue reads the current value of an updatable field for change
// reporting.
func orderFieldValue(o *order.Order, field string) any {
	switch field {
	case "order_date":
		return o.OrderDate
	case "delivery_date":
		return o.DeliveryDate
	case "amount":
		return o.Amount
	case "client_name":
		return o.ClientName
	case "phone":
		return o.Phone
	case "alt_no":
		return o.AltNo
	case "address":
		return o.Address
	case "city":
		return o.City
	case "country":
		return o.Country
	case "product_name":
		return o.ProductName
	case "quantity":
		return o.Quantity
	case "status":
		return o.Status
	case "agent":
		return o.Agent
	case "instructions":
		return o.Instructions
	case "cc_email":
		return o.CCEmail
	case "merchant":
		return o.Merchant
	case "order_type":
		return o.OrderType
	case "store_name":
		return o.StoreName
	case "code":
		return o.Code
	default:
		return nil
	}
}
