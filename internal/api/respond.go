package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/safar/gallery-store/internal/auth"
	"github.com/safar/gallery-store/internal/cart"
	"github.com/safar/gallery-store/internal/checkout"
	"github.com/safar/gallery-store/internal/database"
	"github.com/safar/gallery-store/internal/policy"
	"github.com/safar/gallery-store/internal/session"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

var errForbidden = errors.New("forbidden")

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case policy.IsViolation(err),
		errors.Is(err, database.ErrInvalidQuantity),
		errors.Is(err, database.ErrInvalidStatus),
		errors.Is(err, database.ErrIncorrectPassword),
		errors.Is(err, checkout.ErrEmptyCart):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, session.ErrSessionNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrAccountInactive),
		errors.Is(err, errForbidden):
		return http.StatusForbidden
	case errors.Is(err, database.ErrAccountNotFound),
		errors.Is(err, database.ErrArtistNotFound),
		errors.Is(err, database.ErrArtworkNotFound),
		errors.Is(err, database.ErrOrderNotFound),
		errors.Is(err, database.ErrMessageNotFound):
		return http.StatusNotFound
	case errors.Is(err, database.ErrEmailExists),
		errors.Is(err, database.ErrInsufficientStock),
		errors.Is(err, database.ErrOptimisticLockFailed),
		errors.Is(err, cart.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, database.ErrLockTimeout):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// fail writes err as a JSON error. Internal errors are logged and hidden.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.Error(err),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		)
		writeErr(w, code, "internal server error")
		return
	}

	var ve *policy.ViolationError
	if errors.As(err, &ve) {
		writeJSON(w, code, map[string]interface{}{"error": ve.Error(), "violations": ve.Violations})
		return
	}
	writeErr(w, code, err.Error())
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		writeErr(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}
