// Package api exposes the gallery stores over HTTP.
package api

import (
	"database/sql"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/safar/gallery-store/internal/auth"
	"github.com/safar/gallery-store/internal/cart"
	"github.com/safar/gallery-store/internal/checkout"
	"github.com/safar/gallery-store/internal/policy"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const serviceName = "gallery-api"

// Handler is the HTTP layer over the stores and services.
type Handler struct {
	db       *sql.DB
	auth     *auth.Service
	checkout *checkout.Service
	carts    *cart.Cart
	wishlist *cart.Wishlist
	log      *zap.Logger
}

func NewHandler(db *sql.DB, authSvc *auth.Service, checkoutSvc *checkout.Service, carts *cart.Cart, wishlist *cart.Wishlist, log *zap.Logger) *Handler {
	return &Handler{
		db:       db,
		auth:     authSvc,
		checkout: checkoutSvc,
		carts:    carts,
		wishlist: wishlist,
		log:      log,
	}
}

// Routes returns the full router wrapped in tracing. Health checks are not
// traced.
func (h *Handler) Routes() http.Handler {
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	r.Use(h.recoverer, h.requestLogger, h.authenticate)

	return otelhttp.NewHandler(r, serviceName,
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health"
		}),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "HTTP " + r.Method + " " + r.URL.Path
		}),
	)
}

func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.Health).Methods("GET")

	// Auth
	r.HandleFunc("/auth/register", h.Register).Methods("POST")
	r.HandleFunc("/auth/login", h.Login).Methods("POST")
	r.HandleFunc("/auth/logout", h.signedIn(h.Logout)).Methods("POST")
	r.HandleFunc("/auth/me", h.signedIn(h.Me)).Methods("GET")
	r.HandleFunc("/auth/me/profile", h.signedIn(h.UpdateMyProfile)).Methods("PATCH")
	r.HandleFunc("/auth/me/password", h.signedIn(h.ChangePassword)).Methods("POST")

	// Accounts
	r.HandleFunc("/accounts", h.require(policy.ManageAccounts, h.ListAccounts)).Methods("GET")
	r.HandleFunc("/accounts", h.require(policy.ManageAccounts, h.CreateAccount)).Methods("POST")
	r.HandleFunc("/accounts/{id:[0-9]+}", h.require(policy.ManageAccounts, h.GetAccount)).Methods("GET")
	r.HandleFunc("/accounts/{id:[0-9]+}", h.require(policy.ManageAccounts, h.UpdateAccount)).Methods("PATCH")
	r.HandleFunc("/accounts/{id:[0-9]+}", h.require(policy.ManageAccounts, h.DeleteAccount)).Methods("DELETE")

	// Artworks
	r.HandleFunc("/artworks", h.ListArtworks).Methods("GET")
	r.HandleFunc("/artworks", h.require(policy.SubmitArtwork, h.CreateArtwork)).Methods("POST")
	r.HandleFunc("/artworks/{id:[0-9]+}", h.GetArtwork).Methods("GET")
	r.HandleFunc("/artworks/{id:[0-9]+}", h.signedIn(h.UpdateArtwork)).Methods("PATCH")
	r.HandleFunc("/artworks/{id:[0-9]+}", h.signedIn(h.DeleteArtwork)).Methods("DELETE")
	r.HandleFunc("/artworks/{id:[0-9]+}/stock", h.require(policy.ManageCatalog, h.SetStock)).Methods("PUT")
	r.HandleFunc("/artworks/{id:[0-9]+}/curation", h.require(policy.Curate, h.CurateArtwork)).Methods("POST")
	r.HandleFunc("/artworks/{id:[0-9]+}/reviews", h.ListReviews).Methods("GET")
	r.HandleFunc("/artworks/{id:[0-9]+}/reviews", h.signedIn(h.CreateReview)).Methods("POST")
	r.HandleFunc("/reviews/{id:[0-9]+}", h.require(policy.ManageCatalog, h.DeleteReview)).Methods("DELETE")

	// Artists
	r.HandleFunc("/artists", h.ListArtists).Methods("GET")
	r.HandleFunc("/artists", h.require(policy.ManageCatalog, h.CreateArtist)).Methods("POST")
	r.HandleFunc("/artists/{id:[0-9]+}", h.GetArtist).Methods("GET")
	r.HandleFunc("/artists/{id:[0-9]+}", h.require(policy.ManageCatalog, h.UpdateArtist)).Methods("PATCH")
	r.HandleFunc("/artists/{id:[0-9]+}", h.require(policy.ManageCatalog, h.DeleteArtist)).Methods("DELETE")

	// Cart
	r.HandleFunc("/cart", h.GetCart).Methods("GET")
	r.HandleFunc("/cart", h.ClearCart).Methods("DELETE")
	r.HandleFunc("/cart/items", h.AddToCart).Methods("POST")
	r.HandleFunc("/cart/items/{artworkID:[0-9]+}", h.UpdateCartItem).Methods("PUT")
	r.HandleFunc("/cart/items/{artworkID:[0-9]+}", h.RemoveFromCart).Methods("DELETE")

	// Wishlist
	r.HandleFunc("/wishlist", h.signedIn(h.GetWishlist)).Methods("GET")
	r.HandleFunc("/wishlist/{artworkID:[0-9]+}", h.signedIn(h.AddToWishlist)).Methods("PUT")
	r.HandleFunc("/wishlist/{artworkID:[0-9]+}", h.signedIn(h.RemoveFromWishlist)).Methods("DELETE")

	// Checkout
	r.HandleFunc("/checkout/quote", h.Quote).Methods("GET")
	r.HandleFunc("/checkout", h.signedIn(h.Checkout)).Methods("POST")

	// Orders
	r.HandleFunc("/orders/mine", h.signedIn(h.MyOrders)).Methods("GET")
	r.HandleFunc("/orders/mine/stats", h.signedIn(h.MyOrderStats)).Methods("GET")
	r.HandleFunc("/orders", h.require(policy.ManageOrders, h.ListOrders)).Methods("GET")
	r.HandleFunc("/orders/stats", h.require(policy.ManageOrders, h.OrderStats)).Methods("GET")
	r.HandleFunc("/orders/claim", h.require(policy.ManageOrders, h.ClaimOrder)).Methods("POST")
	r.HandleFunc("/orders/number/{number}", h.signedIn(h.GetOrderByNumber)).Methods("GET")
	r.HandleFunc("/orders/{id:[0-9]+}", h.signedIn(h.GetOrder)).Methods("GET")
	r.HandleFunc("/orders/{id:[0-9]+}", h.require(policy.ManageOrders, h.DeleteOrder)).Methods("DELETE")
	r.HandleFunc("/orders/{id:[0-9]+}/status", h.require(policy.ManageOrders, h.UpdateOrderStatus)).Methods("PATCH")
	r.HandleFunc("/orders/{id:[0-9]+}/cancel", h.signedIn(h.CancelOrder)).Methods("POST")
	r.HandleFunc("/orders/{id:[0-9]+}/tracking", h.require(policy.ManageOrders, h.AddTracking)).Methods("PUT")
	r.HandleFunc("/orders/{id:[0-9]+}/payment", h.require(policy.ManageOrders, h.UpdatePaymentStatus)).Methods("PUT")

	// Messages
	r.HandleFunc("/messages", h.CreateMessage).Methods("POST")
	r.HandleFunc("/messages", h.require(policy.ReadMessages, h.ListMessages)).Methods("GET")
	r.HandleFunc("/messages/{id:[0-9]+}", h.require(policy.ReadMessages, h.GetMessage)).Methods("GET")
	r.HandleFunc("/messages/{id:[0-9]+}", h.require(policy.ReadMessages, h.DeleteMessage)).Methods("DELETE")
	r.HandleFunc("/messages/{id:[0-9]+}/read", h.require(policy.ReadMessages, h.MarkMessageRead)).Methods("POST")
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		h.log.Warn("health check failed", zap.Error(err))
		writeErr(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
