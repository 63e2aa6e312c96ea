package api

import (
	"net/http"

	"github.com/safar/gallery-store/internal/store"
)

// CreateMessage handles POST /messages from the contact form. Signed-in
// senders are recorded with their account details.
func (h *Handler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	var draft store.MessageDraft
	if !decode(w, r, &draft) {
		return
	}

	draft.UserRole, draft.UserEmail, draft.UserName = "", "", ""
	if sess := sessionFrom(r.Context()); sess != nil {
		draft.UserRole = sess.Role
		draft.UserEmail = sess.Email
		draft.UserName = sess.Name
	}

	msg, err := store.CreateMessage(r.Context(), h.db, draft)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := store.ListMessages(r.Context(), h.db)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	unread, err := store.CountUnreadMessages(r.Context(), h.db)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": messages, "unread": unread})
}

func (h *Handler) GetMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	msg, err := store.GetMessage(r.Context(), h.db, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *Handler) MarkMessageRead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	msg, err := store.MarkMessageRead(r.Context(), h.db, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := store.DeleteMessage(r.Context(), h.db, id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
