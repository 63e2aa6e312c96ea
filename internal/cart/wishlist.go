package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
)

type WishlistItem struct {
	Snapshot
	AddedAt time.Time `json:"added_at"`
}

// Wishlist holds at most one entry per artwork for each owner.
type Wishlist struct {
	client *redis.Client
}

func NewWishlist(client *redis.Client) *Wishlist {
	return &Wishlist{client: client}
}

func wishlistKey(owner string) string {
	return "gallery:wishlist:" + owner
}

func (w *Wishlist) Items(ctx context.Context, owner string) ([]WishlistItem, error) {
	values, err := w.client.HGetAll(ctx, wishlistKey(owner)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting wishlist: %w", err)
	}

	items := make([]WishlistItem, 0, len(values))
	for _, v := range values {
		var item WishlistItem
		if err := json.Unmarshal([]byte(v), &item); err != nil {
			return nil, fmt.Errorf("unmarshaling wishlist item: %w", err)
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].AddedAt.Equal(items[j].AddedAt) {
			return items[i].AddedAt.Before(items[j].AddedAt)
		}
		return items[i].ArtworkID < items[j].ArtworkID
	})
	return items, nil
}

// Add saves the artwork unless it is already on the list. It reports whether
// a new entry was created.
func (w *Wishlist) Add(ctx context.Context, owner string, item Snapshot) (bool, error) {
	data, err := json.Marshal(WishlistItem{Snapshot: item, AddedAt: time.Now().UTC()})
	if err != nil {
		return false, fmt.Errorf("marshaling wishlist item: %w", err)
	}

	added, err := w.client.HSetNX(ctx, wishlistKey(owner), field(item.ArtworkID), data).Result()
	if err != nil {
		return false, fmt.Errorf("adding wishlist item: %w", err)
	}
	return added, nil
}

// Remove deletes the artwork from the list and reports whether it was there.
func (w *Wishlist) Remove(ctx context.Context, owner string, artworkID int64) (bool, error) {
	n, err := w.client.HDel(ctx, wishlistKey(owner), field(artworkID)).Result()
	if err != nil {
		return false, fmt.Errorf("removing wishlist item: %w", err)
	}
	return n > 0, nil
}

func (w *Wishlist) Contains(ctx context.Context, owner string, artworkID int64) (bool, error) {
	ok, err := w.client.HExists(ctx, wishlistKey(owner), field(artworkID)).Result()
	if err != nil {
		return false, fmt.Errorf("checking wishlist: %w", err)
	}
	return ok, nil
}

func (w *Wishlist) Clear(ctx context.Context, owner string) error {
	if err := w.client.Del(ctx, wishlistKey(owner)).Err(); err != nil {
		return fmt.Errorf("clearing wishlist: %w", err)
	}
	return nil
}
