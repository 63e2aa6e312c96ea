package api

import (
	"context"
	"net/http"

	"github.com/safar/gallery-store/internal/cart"
	"github.com/safar/gallery-store/internal/checkout"
	"github.com/safar/gallery-store/internal/database"
	"github.com/safar/gallery-store/internal/store"
	"go.uber.org/zap"
)

// guestCartHeader carries an anonymous visitor's cart id. It is issued on the
// first cart request without one and echoed on every cart response.
const guestCartHeader = "X-Guest-Cart"

// cartOwner resolves whose cart the request works on. Call it before writing
// the response body.
func cartOwner(w http.ResponseWriter, r *http.Request) string {
	if sess := sessionFrom(r.Context()); sess != nil {
		return cart.OwnerFor(sess.Email)
	}

	id := r.Header.Get(guestCartHeader)
	owner := cart.GuestOwner(id)
	if owner == "" {
		id = cart.NewGuestID()
		owner = cart.GuestOwner(id)
	}
	w.Header().Set(guestCartHeader, id)
	return owner
}

// wishlistOwner is only used on signed-in routes.
func wishlistOwner(r *http.Request) string {
	return cart.OwnerFor(sessionFrom(r.Context()).Email)
}

type cartResponse struct {
	Items []cart.LineItem `json:"items"`
	Count int             `json:"count"`
	Quote checkout.Quote  `json:"quote"`
}

func (h *Handler) writeCart(w http.ResponseWriter, r *http.Request, owner string, code int) {
	items, err := h.carts.Items(r.Context(), owner)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	count, err := h.carts.Count(r.Context(), owner)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, code, cartResponse{Items: items, Count: count, Quote: h.checkout.Quote(items)})
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	h.writeCart(w, r, cartOwner(w, r), http.StatusOK)
}

// AddToCart handles POST /cart/items
// body: { "artwork_id": 1, "quantity": 2 }
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ArtworkID int64 `json:"artwork_id"`
		Quantity  int   `json:"quantity"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	artwork, err := store.GetArtwork(r.Context(), h.db, req.ArtworkID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Quantity > 0 && (artwork.Sold || artwork.Available() < req.Quantity) {
		h.fail(w, r, database.ErrInsufficientStock)
		return
	}

	owner := cartOwner(w, r)
	if err := h.carts.Add(r.Context(), owner, cart.SnapshotOf(artwork), req.Quantity); err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeCart(w, r, owner, http.StatusOK)
}

// UpdateCartItem handles PUT /cart/items/{artworkID}. A quantity of zero or
// less removes the line.
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "artworkID")
	if !ok {
		return
	}
	var req struct {
		Quantity int `json:"quantity"`
	}
	if !decode(w, r, &req) {
		return
	}

	if req.Quantity > 0 {
		available, err := store.AvailableStock(r.Context(), h.db, id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if available < req.Quantity {
			h.fail(w, r, database.ErrInsufficientStock)
			return
		}
	}

	owner := cartOwner(w, r)
	if err := h.carts.UpdateQuantity(r.Context(), owner, id, req.Quantity); err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeCart(w, r, owner, http.StatusOK)
}

func (h *Handler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "artworkID")
	if !ok {
		return
	}
	owner := cartOwner(w, r)
	if err := h.carts.Remove(r.Context(), owner, id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeCart(w, r, owner, http.StatusOK)
}

func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Clear(r.Context(), cartOwner(w, r)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetWishlist(w http.ResponseWriter, r *http.Request) {
	items, err := h.wishlist.Items(r.Context(), wishlistOwner(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// AddToWishlist handles PUT /wishlist/{artworkID}. Adding an artwork that is
// already saved changes nothing.
func (h *Handler) AddToWishlist(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "artworkID")
	if !ok {
		return
	}

	artwork, err := store.GetArtwork(r.Context(), h.db, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	sess := sessionFrom(r.Context())
	added, err := h.wishlist.Add(r.Context(), wishlistOwner(r), cart.SnapshotOf(artwork))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if added {
		h.bumpWishlistStat(r.Context(), sess.AccountID, 1)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"added": added})
}

func (h *Handler) RemoveFromWishlist(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "artworkID")
	if !ok {
		return
	}

	removed, err := h.wishlist.Remove(r.Context(), wishlistOwner(r), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if removed {
		h.bumpWishlistStat(r.Context(), sessionFrom(r.Context()).AccountID, -1)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

func (h *Handler) bumpWishlistStat(ctx context.Context, accountID int64, delta int) {
	if err := store.UpdateAccountStats(ctx, h.db, accountID, store.StatsDelta{WishlistItems: delta}); err != nil {
		h.log.Warn("update wishlist stat", zap.Error(err), zap.Int64("account_id", accountID))
	}
}

// Quote handles GET /checkout/quote for the caller's cart.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	items, err := h.carts.Items(r.Context(), cartOwner(w, r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.checkout.Quote(items))
}

// Checkout handles POST /checkout
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkout.Request
	if !decode(w, r, &req) {
		return
	}

	order, err := h.checkout.PlaceOrder(r.Context(), sessionFrom(r.Context()), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}
