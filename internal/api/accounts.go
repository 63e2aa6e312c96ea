package api

import (
	"net/http"
	"time"

	"github.com/safar/gallery-store/internal/models"
	"github.com/safar/gallery-store/internal/policy"
	"github.com/safar/gallery-store/internal/session"
	"github.com/safar/gallery-store/internal/store"
)

type sessionResponse struct {
	Token        string              `json:"token"`
	ExpiresAt    time.Time           `json:"expires_at"`
	Account      *models.Account     `json:"account"`
	Capabilities []policy.Capability `json:"capabilities"`
}

func newSessionResponse(account *models.Account, sess *session.Session) sessionResponse {
	return sessionResponse{
		Token:        sess.Token,
		ExpiresAt:    sess.ExpiresAt,
		Account:      account,
		Capabilities: policy.CapabilitiesFor(account.Role),
	}
}

// Register handles POST /auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var draft store.AccountDraft
	if !decode(w, r, &draft) {
		return
	}

	account, sess, err := h.auth.Register(r.Context(), draft, r.Header.Get(guestCartHeader))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSessionResponse(account, sess))
}

// Login handles POST /auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}

	account, sess, err := h.auth.Login(r.Context(), req.Email, req.Password, r.Header.Get(guestCartHeader))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(account, sess))
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context(), sessionFrom(r.Context()).Token); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	account, err := store.GetAccount(r.Context(), h.db, sess.AccountID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(account, sess))
}

func (h *Handler) UpdateMyProfile(w http.ResponseWriter, r *http.Request) {
	var patch store.ProfilePatch
	if !decode(w, r, &patch) {
		return
	}

	account, err := h.auth.UpdateCurrentProfile(r.Context(), sessionFrom(r.Context()), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if !decode(w, r, &req) {
		return
	}

	if err := h.auth.ChangePassword(r.Context(), sessionFrom(r.Context()), req.CurrentPassword, req.NewPassword); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListAccounts handles GET /accounts?page=&page_size=, or ?role= / ?q= for
// unpaged filtered listings.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	switch {
	case q.Get("role") != "":
		accounts, err := store.ListAccountsByRole(ctx, h.db, q.Get("role"))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, accounts)
	case q.Get("q") != "":
		accounts, err := store.SearchAccounts(ctx, h.db, q.Get("q"))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, accounts)
	default:
		page, err := store.ListAccounts(ctx, h.db, queryInt(r, "page"), queryInt(r, "page_size"))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

// CreateAccount lets an administrator create staff accounts with any role.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var draft store.AccountDraft
	if !decode(w, r, &draft) {
		return
	}

	account, err := store.CreateAccount(r.Context(), h.db, draft)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	account, err := store.GetAccount(r.Context(), h.db, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var patch store.AccountPatch
	if !decode(w, r, &patch) {
		return
	}

	account, err := h.auth.UpdateAccount(r.Context(), id, patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if id == sessionFrom(r.Context()).AccountID {
		writeErr(w, http.StatusBadRequest, "cannot delete your own account")
		return
	}

	if err := h.auth.DeleteAccount(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
