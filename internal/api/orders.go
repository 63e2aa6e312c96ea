package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/safar/gallery-store/internal/database"
	"github.com/safar/gallery-store/internal/models"
	"github.com/safar/gallery-store/internal/policy"
	"github.com/safar/gallery-store/internal/session"
	"github.com/safar/gallery-store/internal/store"
)

func canSeeOrder(sess *session.Session, order *models.Order) bool {
	if policy.Can(sess.Role, policy.ManageOrders) {
		return true
	}
	if order.UserID != nil && *order.UserID == sess.AccountID {
		return true
	}
	return order.UserEmail == sess.Email
}

// MyOrders handles GET /orders/mine?cursor=&limit=
func (h *Handler) MyOrders(w http.ResponseWriter, r *http.Request) {
	cursor := r.URL.Query().Get("cursor")
	if _, err := store.DecodeCursor(cursor); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid cursor")
		return
	}

	page, err := store.ListOrdersCursor(r.Context(), h.db, sessionFrom(r.Context()).Email, cursor, queryInt(r, "limit"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) MyOrderStats(w http.ResponseWriter, r *http.Request) {
	stats, err := store.GetUserOrderStats(r.Context(), h.db, sessionFrom(r.Context()).Email)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ListOrders handles GET /orders with optional status, q or recent filters.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	var (
		orders []models.Order
		err    error
	)
	switch {
	case q.Get("status") != "":
		orders, err = store.ListOrdersByStatus(ctx, h.db, q.Get("status"))
	case q.Get("q") != "":
		orders, err = store.SearchOrders(ctx, h.db, q.Get("q"))
	case q.Get("recent") != "":
		orders, err = store.ListRecentOrders(ctx, h.db, queryInt(r, "recent"))
	default:
		orders, err = store.ListOrders(ctx, h.db)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) OrderStats(w http.ResponseWriter, r *http.Request) {
	stats, err := store.GetOrderStats(r.Context(), h.db)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ClaimOrder moves the oldest pending order to processing for the caller.
func (h *Handler) ClaimOrder(w http.ResponseWriter, r *http.Request) {
	order, err := store.ClaimNextPendingOrder(r.Context(), h.db)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	order, err := store.GetOrder(r.Context(), h.db, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !canSeeOrder(sessionFrom(r.Context()), order) {
		// Hide the existence of other buyers' orders.
		h.fail(w, r, database.ErrOrderNotFound)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) GetOrderByNumber(w http.ResponseWriter, r *http.Request) {
	order, err := store.GetOrderByNumber(r.Context(), h.db, mux.Vars(r)["number"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !canSeeOrder(sessionFrom(r.Context()), order) {
		h.fail(w, r, database.ErrOrderNotFound)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status"`
		Note   string `json:"note"`
	}
	if !decode(w, r, &req) {
		return
	}

	order, err := store.UpdateOrderStatus(r.Context(), h.db, id, req.Status, req.Note)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// CancelOrder handles POST /orders/{id}/cancel. Buyers may cancel their own
// orders while they are still pending.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength > 0 && !decode(w, r, &req) {
		return
	}

	sess := sessionFrom(r.Context())
	order, err := store.GetOrder(r.Context(), h.db, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !canSeeOrder(sess, order) {
		h.fail(w, r, database.ErrOrderNotFound)
		return
	}
	if !policy.Can(sess.Role, policy.ManageOrders) && order.Status != models.OrderStatusPending {
		h.fail(w, r, database.ErrInvalidStatus)
		return
	}

	cancelled, err := store.CancelOrder(r.Context(), h.db, id, req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelled)
}

func (h *Handler) AddTracking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var tracking store.TrackingInfo
	if !decode(w, r, &tracking) {
		return
	}

	order, err := store.AddTracking(r.Context(), h.db, id, tracking)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) UpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		PaymentStatus string `json:"payment_status"`
	}
	if !decode(w, r, &req) {
		return
	}

	order, err := store.UpdatePaymentStatus(r.Context(), h.db, id, req.PaymentStatus)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := store.DeleteOrder(r.Context(), h.db, id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
