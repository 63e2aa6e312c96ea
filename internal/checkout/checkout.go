package checkout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/safar/gallery-store/internal/cart"
	"github.com/safar/gallery-store/internal/config"
	"github.com/safar/gallery-store/internal/database"
	"github.com/safar/gallery-store/internal/models"
	"github.com/safar/gallery-store/internal/policy"
	"github.com/safar/gallery-store/internal/session"
	"github.com/safar/gallery-store/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrEmptyCart = errors.New("cart is empty")

// lockTimeout bounds how long a checkout waits on an artwork row another
// checkout holds. Past it the attempt fails with ErrLockTimeout and is retried.
const lockTimeout = "5s"

const (
	PaymentCard   = "card"
	PaymentPayPal = "paypal"
	PaymentBank   = "bank"
)

// Quote is the price breakdown of a cart.
type Quote struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// PaymentRequest is what the buyer submits. Only the method and the last
// four card digits are ever stored.
type PaymentRequest struct {
	Method     string `json:"method" validate:"required,oneof=card paypal bank"`
	CardNumber string `json:"card_number" validate:"required_if=Method card"`
	CardName   string `json:"card_name" validate:"required_if=Method card"`
	ExpiryDate string `json:"expiry_date" validate:"required_if=Method card"`
	CVV        string `json:"cvv" validate:"required_if=Method card"`
}

type Request struct {
	ShippingInfo models.ShippingInfo `json:"shipping_info"`
	Payment      PaymentRequest      `json:"payment"`
	Notes        string              `json:"notes" validate:"max=1000"`
}

type Service struct {
	db      *sql.DB
	carts   *cart.Cart
	pricing config.CheckoutConfig
	log     *zap.Logger
}

func NewService(db *sql.DB, carts *cart.Cart, pricing config.CheckoutConfig, log *zap.Logger) *Service {
	return &Service{db: db, carts: carts, pricing: pricing, log: log}
}

// Quote prices the lines: shipping is free above the threshold, tax is a
// flat rate on the subtotal, and every amount is rounded to cents.
func (s *Service) Quote(lines []cart.LineItem) Quote {
	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.Subtotal())
	}
	subtotal = subtotal.Round(2)

	shipping := s.pricing.ShippingFee
	if subtotal.GreaterThan(s.pricing.FreeShippingAbove) {
		shipping = decimal.Zero
	}
	shipping = shipping.Round(2)

	tax := subtotal.Mul(s.pricing.TaxRate).Round(2)

	return Quote{
		Subtotal: subtotal,
		Shipping: shipping,
		Tax:      tax,
		Total:    subtotal.Add(shipping).Add(tax),
	}
}

// last4 returns the final four digits of a card number, ignoring spaces and
// dashes, or "" when there are fewer than four digits.
func last4(cardNumber string) string {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, cardNumber)
	if len(digits) < 4 {
		return ""
	}
	return digits[len(digits)-4:]
}

func (r *Request) paymentInfo() (models.PaymentInfo, string, error) {
	info := models.PaymentInfo{Method: r.Payment.Method}
	if r.Payment.Method != PaymentCard {
		return info, models.PaymentStatusPending, nil
	}
	info.Last4 = last4(r.Payment.CardNumber)
	if info.Last4 == "" {
		return info, "", policy.Violated("card_number", "digits")
	}
	return info, models.PaymentStatusPaid, nil
}

// PlaceOrder turns the session's cart into an order. Stock for every line
// is sold, the order is written and buyer and artist stats are updated in a
// single serializable transaction, retried on serialization failures. If
// any line lacks stock nothing is written. The cart is cleared afterwards.
func (s *Service) PlaceOrder(ctx context.Context, sess *session.Session, req Request) (*models.Order, error) {
	if err := policy.Validate(req); err != nil {
		return nil, err
	}
	payment, paymentStatus, err := req.paymentInfo()
	if err != nil {
		return nil, err
	}

	owner := cart.OwnerFor(sess.Email)
	lines, err := s.carts.Items(ctx, owner)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	userName := sess.Name
	if userName == "" {
		userName = req.ShippingInfo.FullName
	}

	var order *models.Order
	err = database.WithRetry(ctx, s.db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "SET LOCAL lock_timeout = '"+lockTimeout+"'"); err != nil {
			return fmt.Errorf("set lock timeout: %w", err)
		}

		priced := make([]cart.LineItem, 0, len(lines))
		items := make([]store.OrderItemDraft, 0, len(lines))
		artistStats := make(map[int64]store.StatsDelta)

		for _, line := range lines {
			artwork, err := store.SellStock(ctx, tx, line.ArtworkID, line.Quantity)
			if err != nil {
				return err
			}

			line.Snapshot = cart.SnapshotOf(artwork)
			priced = append(priced, line)
			items = append(items, store.OrderItemDraft{
				ArtworkID: artwork.ID,
				Title:     artwork.Title,
				Artist:    artwork.Artist,
				ImageURL:  artwork.ImageURL,
				UnitPrice: artwork.Price,
				Quantity:  line.Quantity,
			})

			if artwork.ArtistAccountID != nil {
				delta := artistStats[*artwork.ArtistAccountID]
				delta.ArtworksSold += line.Quantity
				delta.TotalRevenue = delta.TotalRevenue.Add(line.Subtotal())
				artistStats[*artwork.ArtistAccountID] = delta
			}
		}

		quote := s.Quote(priced)
		var err error
		order, err = store.InsertOrder(ctx, tx, store.OrderDraft{
			UserID:        &sess.AccountID,
			UserName:      userName,
			UserEmail:     sess.Email,
			ShippingInfo:  req.ShippingInfo,
			PaymentInfo:   payment,
			Items:         items,
			Subtotal:      quote.Subtotal,
			Shipping:      quote.Shipping,
			Tax:           quote.Tax,
			Notes:         req.Notes,
			PaymentStatus: paymentStatus,
		})
		if err != nil {
			return err
		}

		if err := store.UpdateAccountStats(ctx, tx, sess.AccountID, store.StatsDelta{OrdersPlaced: 1}); err != nil {
			return err
		}
		for accountID, delta := range artistStats {
			err := store.UpdateAccountStats(ctx, tx, accountID, delta)
			if err != nil && !errors.Is(err, database.ErrAccountNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, database.ErrInsufficientStock) {
			s.log.Warn("checkout refused", zap.String("reason", "insufficient stock"), zap.Int64("account_id", sess.AccountID))
		}
		return nil, err
	}

	if err := s.carts.Clear(ctx, owner); err != nil {
		s.log.Warn("clear cart after checkout", zap.Error(err), zap.String("order_number", order.OrderNumber))
	}

	s.log.Info("order placed",
		zap.String("order_number", order.OrderNumber),
		zap.Int64("account_id", sess.AccountID),
		zap.String("total", order.Total.StringFixed(2)),
	)
	return order, nil
}
