package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/safar/gallery-store/internal/database"
	"github.com/safar/gallery-store/internal/models"
	"github.com/safar/gallery-store/internal/policy"
	"github.com/shopspring/decimal"
)

const (
	guestPrefix     = "guest:"
	maxWatchRetries = 5
)

// GuestCartTTL is how long an anonymous cart survives without changes.
const GuestCartTTL = 7 * 24 * time.Hour

var ErrConflict = errors.New("too many concurrent cart updates")

// OwnerFor maps a session email to the owner key of its cart and wishlist.
func OwnerFor(email string) string {
	return policy.NormalizeEmail(email)
}

// NewGuestID issues the id an anonymous visitor presents to reach their cart.
func NewGuestID() string {
	return uuid.New().String()
}

// GuestOwner maps a guest cart id to its owner key. Anything that is not an
// id issued by NewGuestID maps to "".
func GuestOwner(id string) string {
	parsed, err := uuid.Parse(id)
	if err != nil || parsed.String() != strings.ToLower(id) {
		return ""
	}
	return guestPrefix + parsed.String()
}

func isGuest(owner string) bool {
	return strings.HasPrefix(owner, guestPrefix)
}

// touch keeps a guest cart alive for another GuestCartTTL.
func touch(ctx context.Context, pipe redis.Pipeliner, owner, key string) {
	if isGuest(owner) {
		pipe.Expire(ctx, key, GuestCartTTL)
	}
}

// Snapshot is the part of an artwork copied into a cart or wishlist.
type Snapshot struct {
	ArtworkID int64           `json:"artwork_id"`
	Title     string          `json:"title"`
	Artist    string          `json:"artist"`
	Price     decimal.Decimal `json:"price"`
	ImageURL  string          `json:"image_url"`
}

func SnapshotOf(a *models.Artwork) Snapshot {
	return Snapshot{
		ArtworkID: a.ID,
		Title:     a.Title,
		Artist:    a.Artist,
		Price:     a.Price,
		ImageURL:  a.ImageURL,
	}
}

type LineItem struct {
	Snapshot
	Quantity int       `json:"quantity"`
	AddedAt  time.Time `json:"added_at"`
}

func (l LineItem) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart stores one Redis hash per owner, one field per artwork.
type Cart struct {
	client *redis.Client
}

func NewCart(client *redis.Client) *Cart {
	return &Cart{client: client}
}

func cartKey(owner string) string {
	return "gallery:cart:" + owner
}

func field(artworkID int64) string {
	return strconv.FormatInt(artworkID, 10)
}

// watch runs fn under WATCH on keys, retrying when another client touched
// them before EXEC.
func watch(ctx context.Context, client *redis.Client, fn func(*redis.Tx) error, keys ...string) error {
	for i := 0; i < maxWatchRetries; i++ {
		err := client.Watch(ctx, fn, keys...)
		if err != redis.TxFailedErr {
			return err
		}
	}
	return ErrConflict
}

func readLine(ctx context.Context, tx *redis.Tx, key string, artworkID int64) (*LineItem, error) {
	data, err := tx.HGet(ctx, key, field(artworkID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting cart line: %w", err)
	}

	var line LineItem
	if err := json.Unmarshal(data, &line); err != nil {
		return nil, fmt.Errorf("unmarshaling cart line: %w", err)
	}
	return &line, nil
}

func decodeLines(values map[string]string) ([]LineItem, error) {
	lines := make([]LineItem, 0, len(values))
	for _, v := range values {
		var line LineItem
		if err := json.Unmarshal([]byte(v), &line); err != nil {
			return nil, fmt.Errorf("unmarshaling cart line: %w", err)
		}
		lines = append(lines, line)
	}
	sort.Slice(lines, func(i, j int) bool {
		if !lines[i].AddedAt.Equal(lines[j].AddedAt) {
			return lines[i].AddedAt.Before(lines[j].AddedAt)
		}
		return lines[i].ArtworkID < lines[j].ArtworkID
	})
	return lines, nil
}

// Items returns the owner's cart in the order lines were added.
func (c *Cart) Items(ctx context.Context, owner string) ([]LineItem, error) {
	values, err := c.client.HGetAll(ctx, cartKey(owner)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting cart: %w", err)
	}
	return decodeLines(values)
}

// Add puts qty pieces of the artwork in the cart, merging with an existing
// line for the same artwork. Stock is not checked here.
func (c *Cart) Add(ctx context.Context, owner string, item Snapshot, qty int) error {
	if qty <= 0 {
		return database.ErrInvalidQuantity
	}
	key := cartKey(owner)

	return watch(ctx, c.client, func(tx *redis.Tx) error {
		line, err := readLine(ctx, tx, key, item.ArtworkID)
		if err != nil {
			return err
		}
		if line == nil {
			line = &LineItem{Snapshot: item, AddedAt: time.Now().UTC()}
		}
		line.Quantity += qty

		data, err := json.Marshal(line)
		if err != nil {
			return fmt.Errorf("marshaling cart line: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, field(item.ArtworkID), data)
			touch(ctx, pipe, owner, key)
			return nil
		})
		return err
	}, key)
}

// UpdateQuantity sets a line's quantity. A quantity of zero or less removes
// the line; an artwork not in the cart is ignored.
func (c *Cart) UpdateQuantity(ctx context.Context, owner string, artworkID int64, qty int) error {
	if qty <= 0 {
		return c.Remove(ctx, owner, artworkID)
	}
	key := cartKey(owner)

	return watch(ctx, c.client, func(tx *redis.Tx) error {
		line, err := readLine(ctx, tx, key, artworkID)
		if err != nil || line == nil {
			return err
		}
		line.Quantity = qty

		data, err := json.Marshal(line)
		if err != nil {
			return fmt.Errorf("marshaling cart line: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, field(artworkID), data)
			touch(ctx, pipe, owner, key)
			return nil
		})
		return err
	}, key)
}

func (c *Cart) Remove(ctx context.Context, owner string, artworkID int64) error {
	if err := c.client.HDel(ctx, cartKey(owner), field(artworkID)).Err(); err != nil {
		return fmt.Errorf("removing cart line: %w", err)
	}
	return nil
}

func (c *Cart) Clear(ctx context.Context, owner string) error {
	if err := c.client.Del(ctx, cartKey(owner)).Err(); err != nil {
		return fmt.Errorf("clearing cart: %w", err)
	}
	return nil
}

// Total is the sum of price times quantity over every line.
func (c *Cart) Total(ctx context.Context, owner string) (decimal.Decimal, error) {
	lines, err := c.Items(ctx, owner)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Subtotal())
	}
	return total, nil
}

// Count is the number of pieces in the cart.
func (c *Cart) Count(ctx context.Context, owner string) (int, error) {
	lines, err := c.Items(ctx, owner)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, line := range lines {
		count += line.Quantity
	}
	return count, nil
}

// Merge moves every line of from into to, summing quantities for artworks in
// both, and empties from. Used when a guest signs in.
func (c *Cart) Merge(ctx context.Context, from, to string) error {
	if from == "" || from == to {
		return nil
	}
	fromKey, toKey := cartKey(from), cartKey(to)

	return watch(ctx, c.client, func(tx *redis.Tx) error {
		incoming, err := tx.HGetAll(ctx, fromKey).Result()
		if err != nil {
			return fmt.Errorf("getting cart: %w", err)
		}
		if len(incoming) == 0 {
			return nil
		}
		lines, err := decodeLines(incoming)
		if err != nil {
			return err
		}

		merged := make(map[string]interface{}, len(lines))
		for _, line := range lines {
			existing, err := readLine(ctx, tx, toKey, line.ArtworkID)
			if err != nil {
				return err
			}
			if existing != nil {
				existing.Quantity += line.Quantity
				line = *existing
			}
			data, err := json.Marshal(line)
			if err != nil {
				return fmt.Errorf("marshaling cart line: %w", err)
			}
			merged[field(line.ArtworkID)] = data
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, toKey, merged)
			pipe.Del(ctx, fromKey)
			return nil
		})
		return err
	}, fromKey, toKey)
}
