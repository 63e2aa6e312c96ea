package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/safar/gallery-store/internal/policy"
	"github.com/safar/gallery-store/internal/session"
	"go.uber.org/zap"
)

type ctxKey int

const sessionKey ctxKey = iota

func withSession(ctx context.Context, sess *session.Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

// sessionFrom returns the caller's session, or nil for guests.
func sessionFrom(ctx context.Context) *session.Session {
	sess, _ := ctx.Value(sessionKey).(*session.Session)
	return sess
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// authenticate resolves a bearer token to a session. Requests without a
// token continue as guests; an unknown or expired token is rejected.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		sess, _, err := h.auth.Current(r.Context(), token)
		if err != nil {
			if errors.Is(err, session.ErrSessionNotFound) {
				writeErr(w, http.StatusUnauthorized, "session expired")
				return
			}
			h.fail(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(withSession(r.Context(), sess)))
	})
}

func (h *Handler) signedIn(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sessionFrom(r.Context()) == nil {
			writeErr(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next(w, r)
	}
}

func (h *Handler) require(capability policy.Capability, next http.HandlerFunc) http.HandlerFunc {
	return h.signedIn(func(w http.ResponseWriter, r *http.Request) {
		if !policy.Can(sessionFrom(r.Context()).Role, capability) {
			writeErr(w, http.StatusForbidden, "missing capability "+string(capability))
			return
		}
		next(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		h.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (h *Handler) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				h.log.Error("panic", zap.Any("value", v), zap.String("path", r.URL.Path), zap.Stack("stack"))
				writeErr(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
