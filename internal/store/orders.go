package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/safar/gallery-store/internal/database"
	"github.com/safar/gallery-store/internal/models"
	"github.com/safar/gallery-store/internal/policy"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, order_number, user_id, user_name, user_email, shipping_info, payment_info,
	subtotal, shipping, tax, total, notes, status, payment_status, tracking_number, carrier,
	estimated_delivery, created_at, updated_at, version`

type OrderDraft struct {
	UserID        *int64              `json:"user_id"`
	UserName      string              `json:"user_name"`
	UserEmail     string              `json:"user_email" validate:"required,email"`
	ShippingInfo  models.ShippingInfo `json:"shipping_info" validate:"-"`
	PaymentInfo   models.PaymentInfo  `json:"payment_info" validate:"-"`
	Items         []OrderItemDraft    `json:"items" validate:"required,min=1,dive"`
	Subtotal      decimal.Decimal     `json:"subtotal"`
	Shipping      decimal.Decimal     `json:"shipping"`
	Tax           decimal.Decimal     `json:"tax"`
	Notes         string              `json:"notes"`
	Status        string              `json:"status"`
	PaymentStatus string              `json:"payment_status"`
}

// OrderItemDraft is a snapshot of an artwork at the time it was ordered.
type OrderItemDraft struct {
	ArtworkID int64           `json:"artwork_id" validate:"required"`
	Title     string          `json:"title"`
	Artist    string          `json:"artist"`
	ImageURL  string          `json:"image_url"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
}

func (i OrderItemDraft) lineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type TrackingInfo struct {
	TrackingNumber    string     `json:"tracking_number" validate:"required"`
	Carrier           string     `json:"carrier" validate:"required"`
	EstimatedDelivery *time.Time `json:"estimated_delivery"`
}

// orderNumbers hands out ORD<unix millis> numbers. Two orders in the same
// millisecond get consecutive values so numbers stay strictly increasing.
type orderNumberGenerator struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func (g *orderNumberGenerator) next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now().UnixMilli()
	if ms <= g.last {
		ms = g.last + 1
	}
	g.last = ms
	return fmt.Sprintf("ORD%d", ms)
}

var orderNumbers = &orderNumberGenerator{now: time.Now}

func generateOrderNumber() string {
	return orderNumbers.next()
}

func scanOrder(row rowScanner) (*models.Order, error) {
	o := &models.Order{}
	err := row.Scan(
		&o.ID,
		&o.OrderNumber,
		&o.UserID,
		&o.UserName,
		&o.UserEmail,
		&o.ShippingInfo,
		&o.PaymentInfo,
		&o.Subtotal,
		&o.Shipping,
		&o.Tax,
		&o.Total,
		&o.Notes,
		&o.Status,
		&o.PaymentStatus,
		&o.TrackingNumber,
		&o.Carrier,
		&o.EstimatedDelivery,
		&o.CreatedAt,
		&o.UpdatedAt,
		&o.Version,
	)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// CreateOrder writes an order with its items and first history entry in one
// transaction.
func CreateOrder(ctx context.Context, db *sql.DB, draft OrderDraft) (*models.Order, error) {
	var order *models.Order

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var err error
		order, err = InsertOrder(ctx, tx, draft)
		return err
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

// InsertOrder is CreateOrder for callers that already hold a transaction.
// A zero subtotal is computed from the items; total is always
// subtotal + shipping + tax.
func InsertOrder(ctx context.Context, q database.DBTX, draft OrderDraft) (*models.Order, error) {
	if err := policy.Validate(draft); err != nil {
		return nil, err
	}
	if draft.Status == "" {
		draft.Status = models.OrderStatusPending
	}
	if !models.ValidOrderStatus(draft.Status) {
		return nil, database.ErrInvalidStatus
	}
	if draft.PaymentStatus == "" {
		draft.PaymentStatus = models.PaymentStatusPending
	}
	if !models.ValidPaymentStatus(draft.PaymentStatus) {
		return nil, database.ErrInvalidStatus
	}
	if draft.Subtotal.IsZero() {
		for _, item := range draft.Items {
			draft.Subtotal = draft.Subtotal.Add(item.lineTotal())
		}
	}
	total := draft.Subtotal.Add(draft.Shipping).Add(draft.Tax)

	order, err := scanOrder(q.QueryRowContext(ctx, `
		INSERT INTO orders (order_number, user_id, user_name, user_email, shipping_info, payment_info,
		                    subtotal, shipping, tax, total, notes, status, payment_status,
		                    created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW(), 1)
		RETURNING `+orderColumns,
		generateOrderNumber(),
		draft.UserID,
		policy.Sanitize(draft.UserName),
		policy.NormalizeEmail(draft.UserEmail),
		draft.ShippingInfo,
		draft.PaymentInfo,
		draft.Subtotal,
		draft.Shipping,
		draft.Tax,
		total,
		policy.Sanitize(draft.Notes),
		draft.Status,
		draft.PaymentStatus,
	))
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	order.Items = make([]models.OrderItem, 0, len(draft.Items))
	for _, item := range draft.Items {
		line := models.OrderItem{
			OrderID:   order.ID,
			ArtworkID: item.ArtworkID,
			Title:     item.Title,
			Artist:    item.Artist,
			ImageURL:  item.ImageURL,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			Subtotal:  item.lineTotal(),
		}
		err := q.QueryRowContext(ctx, `
			INSERT INTO order_items (order_id, artwork_id, title, artist, image_url, unit_price,
			                         quantity, subtotal, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
			RETURNING id, created_at`,
			line.OrderID, line.ArtworkID, line.Title, line.Artist, line.ImageURL,
			line.UnitPrice, line.Quantity, line.Subtotal).Scan(&line.ID, &line.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("create order item: %w", err)
		}
		order.Items = append(order.Items, line)
	}

	entry := models.StatusEntry{Status: models.OrderStatusPending, Note: "Order placed successfully"}
	err = q.QueryRowContext(ctx, `
		INSERT INTO order_status_history (order_id, status, note, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, created_at`,
		order.ID, entry.Status, entry.Note).Scan(&entry.ID, &entry.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("create status history: %w", err)
	}
	order.StatusHistory = []models.StatusEntry{entry}

	return order, nil
}

// loadOrderDetails fills items and status history for every order with one
// query per table.
func loadOrderDetails(ctx context.Context, q database.DBTX, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, len(orders))
	index := make(map[int64]int, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		index[orders[i].ID] = i
		orders[i].Items = []models.OrderItem{}
		orders[i].StatusHistory = []models.StatusEntry{}
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, order_id, artwork_id, title, artist, image_url, unit_price, quantity, subtotal, created_at
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, id`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ArtworkID,
			&item.Title,
			&item.Artist,
			&item.ImageURL,
			&item.UnitPrice,
			&item.Quantity,
			&item.Subtotal,
			&item.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		o := &orders[index[item.OrderID]]
		o.Items = append(o.Items, item)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}

	history, err := q.QueryContext(ctx, `
		SELECT id, order_id, status, note, created_at
		FROM order_status_history
		WHERE order_id = ANY($1)
		ORDER BY order_id, id`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("get status history: %w", err)
	}
	defer history.Close()

	for history.Next() {
		var entry models.StatusEntry
		var orderID int64
		if err := history.Scan(&entry.ID, &orderID, &entry.Status, &entry.Note, &entry.Timestamp); err != nil {
			return fmt.Errorf("scan status history: %w", err)
		}
		o := &orders[index[orderID]]
		o.StatusHistory = append(o.StatusHistory, entry)
	}
	if err := history.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}

	return nil
}

func getOrderWhere(ctx context.Context, q database.DBTX, where string, arg interface{}) (*models.Order, error) {
	order, err := scanOrder(q.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE `+where, arg))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	orders := []models.Order{*order}
	if err := loadOrderDetails(ctx, q, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func GetOrder(ctx context.Context, q database.DBTX, id int64) (*models.Order, error) {
	return getOrderWhere(ctx, q, "id = $1", id)
}

func GetOrderByNumber(ctx context.Context, q database.DBTX, orderNumber string) (*models.Order, error) {
	return getOrderWhere(ctx, q, "order_number = $1", orderNumber)
}

func queryOrders(ctx context.Context, q database.DBTX, query string, args ...interface{}) ([]models.Order, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if err := loadOrderDetails(ctx, q, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// ListOrders returns every order, newest first.
func ListOrders(ctx context.Context, q database.DBTX) ([]models.Order, error) {
	return queryOrders(ctx, q,
		`SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC, id DESC`)
}

func ListOrdersByUser(ctx context.Context, q database.DBTX, email string) ([]models.Order, error) {
	return queryOrders(ctx, q, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE user_email = $1
		ORDER BY created_at DESC, id DESC`, policy.NormalizeEmail(email))
}

func ListOrdersByStatus(ctx context.Context, q database.DBTX, status string) ([]models.Order, error) {
	if !models.ValidOrderStatus(status) {
		return nil, database.ErrInvalidStatus
	}
	return queryOrders(ctx, q, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE status = $1
		ORDER BY created_at DESC, id DESC`, status)
}

func ListRecentOrders(ctx context.Context, q database.DBTX, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = 10
	}
	return queryOrders(ctx, q, `
		SELECT `+orderColumns+`
		FROM orders
		ORDER BY created_at DESC, id DESC
		LIMIT $1`, limit)
}

// SearchOrders matches order number, customer email or shipping name.
func SearchOrders(ctx context.Context, q database.DBTX, query string) ([]models.Order, error) {
	return queryOrders(ctx, q, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE order_number ILIKE $1
		   OR user_email ILIKE $1
		   OR shipping_info->>'full_name' ILIKE $1
		ORDER BY created_at DESC, id DESC`, likePattern(query))
}

// ListOrdersCursor pages through a customer's orders, newest first.
func ListOrdersCursor(ctx context.Context, q database.DBTX, email, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	if limit <= 0 || limit > MaxPageSize {
		limit = DefaultPageSize
	}

	orders, err := queryOrders(ctx, q, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE user_email = $1
		  AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`,
		policy.NormalizeEmail(email), cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, err
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: lastOrder.CreatedAt,
			ID:        lastOrder.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// UpdateOrderStatus sets the status and appends a history entry in the same
// statement. Any known status may follow any other.
func UpdateOrderStatus(ctx context.Context, q database.DBTX, id int64, status, note string) (*models.Order, error) {
	if !models.ValidOrderStatus(status) {
		return nil, database.ErrInvalidStatus
	}
	if note == "" {
		note = fmt.Sprintf("Order status changed to %s", status)
	}

	var updatedID int64
	err := q.QueryRowContext(ctx, `
		WITH updated AS (
			UPDATE orders
			SET status = $2, updated_at = NOW(), version = version + 1
			WHERE id = $1
			RETURNING id
		), logged AS (
			INSERT INTO order_status_history (order_id, status, note, created_at)
			SELECT id, $2, $3, NOW() FROM updated
		)
		SELECT id FROM updated`,
		id, status, policy.Sanitize(note)).Scan(&updatedID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("update order status: %w", err)
	}

	return GetOrder(ctx, q, updatedID)
}

// CancelOrder moves the order to cancelled, recording reason in its history.
func CancelOrder(ctx context.Context, q database.DBTX, id int64, reason string) (*models.Order, error) {
	if reason == "" {
		reason = "Order cancelled by user"
	}
	return UpdateOrderStatus(ctx, q, id, models.OrderStatusCancelled, reason)
}

func AddTracking(ctx context.Context, q database.DBTX, id int64, tracking TrackingInfo) (*models.Order, error) {
	if err := policy.Validate(tracking); err != nil {
		return nil, err
	}

	result, err := q.ExecContext(ctx, `
		UPDATE orders
		SET tracking_number = $2,
		    carrier = $3,
		    estimated_delivery = $4,
		    updated_at = NOW(),
		    version = version + 1
		WHERE id = $1`,
		id, tracking.TrackingNumber, tracking.Carrier, tracking.EstimatedDelivery)
	if err != nil {
		return nil, fmt.Errorf("add tracking: %w", err)
	}

	if err := expectOneRow(result, database.ErrOrderNotFound); err != nil {
		return nil, err
	}

	return GetOrder(ctx, q, id)
}

func UpdatePaymentStatus(ctx context.Context, q database.DBTX, id int64, paymentStatus string) (*models.Order, error) {
	if !models.ValidPaymentStatus(paymentStatus) {
		return nil, database.ErrInvalidStatus
	}

	result, err := q.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = $2, updated_at = NOW(), version = version + 1
		WHERE id = $1`,
		id, paymentStatus)
	if err != nil {
		return nil, fmt.Errorf("update payment status: %w", err)
	}

	if err := expectOneRow(result, database.ErrOrderNotFound); err != nil {
		return nil, err
	}

	return GetOrder(ctx, q, id)
}

// DeleteOrder removes an order with its items and history. Deleting an
// unknown id is not an error.
func DeleteOrder(ctx context.Context, q database.DBTX, id int64) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	return nil
}

// GetOrderStats summarises all orders. Revenue leaves out cancelled orders;
// the average is taken over every order.
func GetOrderStats(ctx context.Context, q database.DBTX) (*models.OrderStats, error) {
	stats := &models.OrderStats{}
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'pending'),
		       COUNT(*) FILTER (WHERE status = 'processing'),
		       COUNT(*) FILTER (WHERE status = 'shipped'),
		       COUNT(*) FILTER (WHERE status = 'delivered'),
		       COUNT(*) FILTER (WHERE status = 'cancelled'),
		       COALESCE(SUM(total) FILTER (WHERE status <> 'cancelled'), 0),
		       COALESCE(ROUND(AVG(total), 2), 0)
		FROM orders`).Scan(
		&stats.Total,
		&stats.Pending,
		&stats.Processing,
		&stats.Shipped,
		&stats.Delivered,
		&stats.Cancelled,
		&stats.TotalRevenue,
		&stats.AverageOrderValue,
	)
	if err != nil {
		return nil, fmt.Errorf("get order stats: %w", err)
	}
	return stats, nil
}

func GetUserOrderStats(ctx context.Context, q database.DBTX, email string) (*models.UserOrderStats, error) {
	stats := &models.UserOrderStats{}
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(total) FILTER (WHERE status <> 'cancelled'), 0),
		       COUNT(*) FILTER (WHERE status = 'pending'),
		       COUNT(*) FILTER (WHERE status = 'delivered')
		FROM orders
		WHERE user_email = $1`, policy.NormalizeEmail(email)).Scan(
		&stats.TotalOrders,
		&stats.TotalSpent,
		&stats.PendingOrders,
		&stats.CompletedOrders,
	)
	if err != nil {
		return nil, fmt.Errorf("get user order stats: %w", err)
	}
	return stats, nil
}

// ClaimNextPendingOrder moves the oldest pending order to processing.
// Orders locked by another worker are skipped, so concurrent workers never
// claim the same order. Returns ErrOrderNotFound when nothing is pending.
func ClaimNextPendingOrder(ctx context.Context, db *sql.DB) (*models.Order, error) {
	var claimed int64

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			SELECT id
			FROM orders
			WHERE status = $1
			ORDER BY created_at, id
			FOR UPDATE SKIP LOCKED
			LIMIT 1`, models.OrderStatusPending).Scan(&claimed)
		if err != nil {
			if err == sql.ErrNoRows {
				return database.ErrOrderNotFound
			}
			return fmt.Errorf("get next pending order: %w", err)
		}

		_, err = UpdateOrderStatus(ctx, tx, claimed, models.OrderStatusProcessing, "")
		return err
	})
	if err != nil {
		return nil, err
	}

	return GetOrder(ctx, db, claimed)
}

func expectOneRow(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}
