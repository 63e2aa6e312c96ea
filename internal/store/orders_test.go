package store

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/safar/gallery-store/internal/database"
	"github.com/safar/gallery-store/internal/models"
	"github.com/shopspring/decimal"
)

var orderCols = []string{
	"id", "order_number", "user_id", "user_name", "user_email", "shipping_info", "payment_info",
	"subtotal", "shipping", "tax", "total", "notes", "status", "payment_status",
	"tracking_number", "carrier", "estimated_delivery", "created_at", "updated_at", "version",
}

func TestOrderNumbersStrictlyIncrease(t *testing.T) {
	fixed := time.UnixMilli(1700000000000)
	g := &orderNumberGenerator{now: func() time.Time { return fixed }}

	first := g.next()
	second := g.next()
	third := g.next()

	if first != "ORD1700000000000" {
		t.Errorf("unexpected first number %s", first)
	}
	if second != "ORD1700000000001" || third != "ORD1700000000002" {
		t.Errorf("numbers within one millisecond must still increase: %s %s", second, third)
	}

	g.now = func() time.Time { return fixed.Add(-time.Second) }
	if back := g.next(); back != "ORD1700000000003" {
		t.Errorf("clock going backwards must not repeat numbers, got %s", back)
	}
}

func TestOrderNumbersUniqueUnderConcurrency(t *testing.T) {
	g := &orderNumberGenerator{now: time.Now}
	shape := regexp.MustCompile(`^ORD\d+$`)

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n := g.next()
			mu.Lock()
			seen[n] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != 50 {
		t.Fatalf("expected 50 unique numbers, got %d", len(seen))
	}
	for n := range seen {
		if !shape.MatchString(n) {
			t.Errorf("bad order number shape %q", n)
		}
	}
}

func TestInsertOrderComputesTotal(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`INSERT INTO orders`).
		WithArgs(sqlmock.AnyArg(), nil, "Ada", "a@x.com", sqlmock.AnyArg(), sqlmock.AnyArg(),
			"1000", "150", "80", "1230", "", models.OrderStatusPending, models.PaymentStatusPending).
		WillReturnRows(sqlmock.NewRows(orderCols).AddRow(
			int64(1), "ORD1700000000000", nil, "Ada", "a@x.com", []byte(`{"full_name":"Ada"}`),
			[]byte(`{"method":"card","last4":"4242"}`), "1000", "150", "80", "1230", "",
			"pending", "pending", "", "", nil, now, now, 1))
	mock.ExpectQuery(`INSERT INTO order_items`).
		WithArgs(int64(1), int64(10), "Blue Hour", "", "", "600", 1, "600").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), now))
	mock.ExpectQuery(`INSERT INTO order_items`).
		WithArgs(int64(1), int64(11), "Red Field", "", "", "200", 2, "400").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(2), now))
	mock.ExpectQuery(`INSERT INTO order_status_history`).
		WithArgs(int64(1), models.OrderStatusPending, "Order placed successfully").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), now))

	order, err := InsertOrder(context.Background(), db, OrderDraft{
		UserName:  "Ada",
		UserEmail: "A@x.com",
		Items: []OrderItemDraft{
			{ArtworkID: 10, Title: "Blue Hour", UnitPrice: decimal.NewFromInt(600), Quantity: 1},
			{ArtworkID: 11, Title: "Red Field", UnitPrice: decimal.NewFromInt(200), Quantity: 2},
		},
		Shipping: decimal.NewFromInt(150),
		Tax:      decimal.NewFromInt(80),
	})
	if err != nil {
		t.Fatalf("InsertOrder: %v", err)
	}

	if !order.Total.Equal(decimal.NewFromInt(1230)) {
		t.Errorf("expected total 1230, got %s", order.Total)
	}
	if len(order.Items) != 2 || len(order.StatusHistory) != 1 {
		t.Errorf("expected 2 items and 1 history entry, got %d and %d", len(order.Items), len(order.StatusHistory))
	}
	if order.PaymentInfo.Last4 != "4242" {
		t.Errorf("unexpected payment info %+v", order.PaymentInfo)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertOrderRequiresItems(t *testing.T) {
	db, _, _ := sqlmock.New()
	defer db.Close()

	_, err := InsertOrder(context.Background(), db, OrderDraft{UserEmail: "a@x.com"})
	if err == nil {
		t.Fatal("expected validation error for empty order")
	}
}

func TestUpdateOrderStatusRejectsUnknownStatus(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	if _, err := UpdateOrderStatus(context.Background(), db, 1, "lost", ""); !errors.Is(err, database.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateOrderStatusDefaultNote(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	mock.ExpectQuery(`WITH updated AS`).
		WithArgs(int64(9), models.OrderStatusShipped, "Order status changed to shipped").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := UpdateOrderStatus(context.Background(), db, 9, models.OrderStatusShipped, "")
	if !errors.Is(err, database.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCancelOrderDefaultReason(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	mock.ExpectQuery(`WITH updated AS`).
		WithArgs(int64(4), models.OrderStatusCancelled, "Order cancelled by user").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := CancelOrder(context.Background(), db, 4, ""); !errors.Is(err, database.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdatePaymentStatusUnknownOrder(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	mock.ExpectExec(`UPDATE orders\s+SET payment_status`).
		WithArgs(int64(2), models.PaymentStatusPaid).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if _, err := UpdatePaymentStatus(context.Background(), db, 2, models.PaymentStatusPaid); !errors.Is(err, database.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestGetOrderStats(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	mock.ExpectQuery(`FILTER \(WHERE status = 'pending'\)`).
		WillReturnRows(sqlmock.NewRows([]string{
			"total", "pending", "processing", "shipped", "delivered", "cancelled", "revenue", "average",
		}).AddRow(4, 1, 1, 0, 1, 1, "3000.00", "1000.00"))

	stats, err := GetOrderStats(context.Background(), db)
	if err != nil {
		t.Fatalf("GetOrderStats: %v", err)
	}
	if stats.Total != 4 || stats.Cancelled != 1 {
		t.Errorf("unexpected counts %+v", stats)
	}
	if !stats.TotalRevenue.Equal(decimal.NewFromInt(3000)) {
		t.Errorf("unexpected revenue %s", stats.TotalRevenue)
	}
}

func TestListOrdersLoadsDetails(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`FROM orders\s+WHERE user_email = \$1`).
		WithArgs("a@x.com").
		WillReturnRows(sqlmock.NewRows(orderCols).
			AddRow(int64(2), "ORD2", nil, "Ada", "a@x.com", []byte(`{}`), []byte(`{}`),
				"10", "0", "0", "10", "", "pending", "pending", "", "", nil, now, now, 1).
			AddRow(int64(1), "ORD1", nil, "Ada", "a@x.com", []byte(`{}`), []byte(`{}`),
				"20", "0", "0", "20", "", "shipped", "paid", "TRK1", "UPS", now, now, now, 2))
	mock.ExpectQuery(`FROM order_items\s+WHERE order_id = ANY\(\$1\)`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "order_id", "artwork_id", "title", "artist", "image_url", "unit_price", "quantity", "subtotal", "created_at",
		}).AddRow(int64(5), int64(1), int64(10), "Blue Hour", "Ana", "", "20", 1, "20", now))
	mock.ExpectQuery(`FROM order_status_history\s+WHERE order_id = ANY\(\$1\)`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "status", "note", "created_at"}).
			AddRow(int64(1), int64(1), "pending", "Order placed successfully", now).
			AddRow(int64(2), int64(2), "pending", "Order placed successfully", now).
			AddRow(int64(3), int64(1), "shipped", "left warehouse", now))

	orders, err := ListOrdersByUser(context.Background(), db, "A@X.com")
	if err != nil {
		t.Fatalf("ListOrdersByUser: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(orders))
	}
	if len(orders[0].Items) != 0 || len(orders[0].StatusHistory) != 1 {
		t.Errorf("unexpected details for newest order: %+v", orders[0])
	}
	if len(orders[1].Items) != 1 || len(orders[1].StatusHistory) != 2 {
		t.Errorf("unexpected details for older order: %+v", orders[1])
	}
	if orders[1].EstimatedDelivery == nil {
		t.Error("estimated delivery should be scanned")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDecodeEmptyCursor(t *testing.T) {
	cursor, err := DecodeCursor("")
	if err != nil {
		t.Fatalf("DecodeCursor: %v", err)
	}
	if cursor.ID != int64(1<<63-1) || !cursor.CreatedAt.After(time.Now()) {
		t.Errorf("empty cursor should sort after every order: %+v", cursor)
	}

	if _, err := DecodeCursor("%%%"); err == nil {
		t.Error("expected error for malformed cursor")
	}
}

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		page, size, wantPage, wantSize int
	}{
		{0, 0, 1, DefaultPageSize},
		{3, 50, 3, 50},
		{2, 1000, 2, MaxPageSize},
	}
	for _, tt := range tests {
		page, size := NormalizePage(tt.page, tt.size)
		if page != tt.wantPage || size != tt.wantSize {
			t.Errorf("NormalizePage(%d, %d) = %d, %d", tt.page, tt.size, page, size)
		}
	}

	if p := newOffsetPage(nil, 41, 1, 20); p.TotalPages != 3 {
		t.Errorf("expected 3 pages, got %d", p.TotalPages)
	}
}

func TestLikePatternEscapesWildcards(t *testing.T) {
	if got := likePattern(" 50%_off "); got != `%50\%\_off%` {
		t.Errorf("unexpected pattern %q", got)
	}
}
