package auth

import (
	"context"
	"database/sql"
	"errors"

	"github.com/safar/gallery-store/internal/cart"
	"github.com/safar/gallery-store/internal/config"
	"github.com/safar/gallery-store/internal/database"
	"github.com/safar/gallery-store/internal/models"
	"github.com/safar/gallery-store/internal/session"
	"github.com/safar/gallery-store/internal/store"
	"go.uber.org/zap"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountInactive    = errors.New("account is not active")
)

// Service ties accounts in Postgres to sessions and carts in Redis.
type Service struct {
	db       *sql.DB
	sessions *session.Store
	carts    *cart.Cart
	log      *zap.Logger
}

func NewService(db *sql.DB, sessions *session.Store, carts *cart.Cart, log *zap.Logger) *Service {
	return &Service{db: db, sessions: sessions, carts: carts, log: log}
}

// Register creates a plain user account and signs it in. guestCart is the
// caller's anonymous cart id, if any; its lines move to the new account.
func (s *Service) Register(ctx context.Context, draft store.AccountDraft, guestCart string) (*models.Account, *session.Session, error) {
	draft.Role = models.RoleUser
	draft.Status = models.AccountStatusActive

	account, err := store.CreateAccount(ctx, s.db, draft)
	if err != nil {
		return nil, nil, err
	}

	sess, err := s.sessions.Create(ctx, account)
	if err != nil {
		return nil, nil, err
	}
	s.adoptGuestCart(ctx, account, guestCart)

	s.log.Info("account registered", zap.Int64("account_id", account.ID))
	return account, sess, nil
}

// Login checks the credentials and opens a session. No session is created
// when it fails.
func (s *Service) Login(ctx context.Context, email, password, guestCart string) (*models.Account, *session.Session, error) {
	account, err := store.GetAccountByEmail(ctx, s.db, email)
	if err != nil {
		if errors.Is(err, database.ErrAccountNotFound) {
			s.log.Warn("login failed", zap.String("reason", "unknown email"))
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	if !store.VerifyPassword(account, password) {
		s.log.Warn("login failed", zap.String("reason", "bad password"), zap.Int64("account_id", account.ID))
		return nil, nil, ErrInvalidCredentials
	}
	if !account.IsActive() {
		s.log.Warn("login refused", zap.String("status", account.Status), zap.Int64("account_id", account.ID))
		return nil, nil, ErrAccountInactive
	}

	account, err = store.RecordLogin(ctx, s.db, account.ID)
	if err != nil {
		return nil, nil, err
	}

	sess, err := s.sessions.Create(ctx, account)
	if err != nil {
		return nil, nil, err
	}
	s.adoptGuestCart(ctx, account, guestCart)

	s.log.Info("login", zap.Int64("account_id", account.ID), zap.String("role", account.Role))
	return account, sess, nil
}

func (s *Service) adoptGuestCart(ctx context.Context, account *models.Account, guestCart string) {
	if err := s.carts.Merge(ctx, cart.GuestOwner(guestCart), cart.OwnerFor(account.Email)); err != nil {
		s.log.Warn("merge guest cart", zap.Error(err), zap.Int64("account_id", account.ID))
	}
}

func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Delete(ctx, token)
}

// Current resolves a token to its session and the account behind it. A
// session whose account has been deleted is dropped.
func (s *Service) Current(ctx context.Context, token string) (*session.Session, *models.Account, error) {
	sess, err := s.sessions.Get(ctx, token)
	if err != nil {
		return nil, nil, err
	}

	account, err := store.GetAccount(ctx, s.db, sess.AccountID)
	if err != nil {
		if errors.Is(err, database.ErrAccountNotFound) {
			if delErr := s.sessions.Delete(ctx, token); delErr != nil {
				s.log.Warn("drop orphan session", zap.Error(delErr))
			}
			return nil, nil, session.ErrSessionNotFound
		}
		return nil, nil, err
	}

	return sess, account, nil
}

func (s *Service) UpdateCurrentProfile(ctx context.Context, sess *session.Session, patch store.ProfilePatch) (*models.Account, error) {
	account, err := store.UpdateProfile(ctx, s.db, sess.AccountID, patch)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Sync(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// UpdateAccount applies an administrative change and refreshes the
// account's live sessions so new roles take effect immediately.
func (s *Service) UpdateAccount(ctx context.Context, id int64, patch store.AccountPatch) (*models.Account, error) {
	account, err := store.UpdateAccount(ctx, s.db, id, patch)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Sync(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

func (s *Service) ChangePassword(ctx context.Context, sess *session.Session, oldPassword, newPassword string) error {
	if err := store.ChangePassword(ctx, s.db, sess.AccountID, oldPassword, newPassword); err != nil {
		return err
	}
	s.log.Info("password changed", zap.Int64("account_id", sess.AccountID))
	return nil
}

func (s *Service) DeleteAccount(ctx context.Context, id int64) error {
	if err := store.DeleteAccount(ctx, s.db, id); err != nil {
		return err
	}
	return s.sessions.RevokeAccount(ctx, id)
}

// SeedDefaults makes sure the staff accounts exist. Existing accounts are
// left as they are.
func (s *Service) SeedDefaults(ctx context.Context, cfg config.SeedConfig) error {
	defaults := []store.AccountDraft{
		{Email: "admin@gallery.com", Password: cfg.AdminPassword, Name: "Admin User", Role: models.RoleAdmin, EmailVerified: true},
		{Email: "artist@gallery.com", Password: cfg.ArtistPassword, Name: "Demo Artist", Role: models.RoleArtist, EmailVerified: true},
		{Email: "curator@gallery.com", Password: cfg.CuratorPassword, Name: "Art Curator", Role: models.RoleCurator, EmailVerified: true},
	}

	for _, draft := range defaults {
		account, created, err := store.EnsureAccount(ctx, s.db, draft)
		if err != nil {
			return err
		}
		if created {
			s.log.Info("seeded account", zap.String("email", account.Email), zap.String("role", account.Role))
		}
	}
	return nil
}
