package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/safar/gallery-store/internal/cart"
	"github.com/safar/gallery-store/internal/models"
	"github.com/safar/gallery-store/internal/session"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var accountCols = []string{
	"id", "email", "password_hash", "name", "role", "status", "profile", "email_verified",
	"two_factor_enabled", "last_login", "login_count", "stat_artworks_created",
	"stat_artworks_sold", "stat_total_revenue", "stat_orders_placed", "stat_reviews_given",
	"stat_wishlist_items", "created_at", "updated_at", "version",
}

type fixture struct {
	svc   *Service
	mock  sqlmock.Sqlmock
	mr    *miniredis.Miniredis
	carts *cart.Cart
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	t.Cleanup(func() {
		client.Close()
		mr.Close()
		db.Close()
	})

	carts := cart.NewCart(client)
	svc := NewService(db, session.NewStore(client, time.Hour), carts, zap.NewNop())
	return &fixture{svc: svc, mock: mock, mr: mr, carts: carts}
}

func accountRow(t *testing.T, status string) *sqlmock.Rows {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	now := time.Now()
	return sqlmock.NewRows(accountCols).AddRow(
		int64(1), "a@x.com", string(hash), "Ada", models.RoleUser, status, []byte(`{}`), false,
		false, nil, 0, 0, 0, "0", 0, 0, 0, now, now, 1,
	)
}

func sessionKeys(mr *miniredis.Miniredis) []string {
	var keys []string
	for _, k := range mr.Keys() {
		if strings.HasPrefix(k, "gallery:session:") {
			keys = append(keys, k)
		}
	}
	return keys
}

func TestLoginUnknownEmail(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectQuery(`FROM accounts WHERE email = \$1`).
		WithArgs("ghost@x.com").
		WillReturnRows(sqlmock.NewRows(accountCols))

	_, sess, err := f.svc.Login(context.Background(), "ghost@x.com", "secret1", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Nil(t, sess)
	assert.Empty(t, sessionKeys(f.mr))
}

func TestLoginWrongPassword(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectQuery(`FROM accounts WHERE email = \$1`).
		WithArgs("a@x.com").
		WillReturnRows(accountRow(t, models.AccountStatusActive))

	_, sess, err := f.svc.Login(context.Background(), "a@x.com", "wrong", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid")
	assert.Nil(t, sess)
	assert.Empty(t, sessionKeys(f.mr))
}

func TestLoginInactiveAccount(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectQuery(`FROM accounts WHERE email = \$1`).
		WithArgs("a@x.com").
		WillReturnRows(accountRow(t, models.AccountStatusSuspended))

	_, _, err := f.svc.Login(context.Background(), "a@x.com", "secret1", "")
	assert.ErrorIs(t, err, ErrAccountInactive)
	assert.Empty(t, sessionKeys(f.mr))
}

func TestLoginSuccessMergesGuestCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mine, theirs := cart.NewGuestID(), cart.NewGuestID()
	require.NoError(t, f.carts.Add(ctx, cart.GuestOwner(mine), cart.Snapshot{
		ArtworkID: 9, Title: "Blue Hour", Price: decimal.NewFromInt(100),
	}, 1))
	require.NoError(t, f.carts.Add(ctx, cart.GuestOwner(theirs), cart.Snapshot{
		ArtworkID: 11, Title: "Red Dune", Price: decimal.NewFromInt(300),
	}, 1))

	f.mock.ExpectQuery(`FROM accounts WHERE email = \$1`).
		WithArgs("a@x.com").
		WillReturnRows(accountRow(t, models.AccountStatusActive))
	f.mock.ExpectQuery(`SET login_count = login_count \+ 1`).
		WithArgs(int64(1)).
		WillReturnRows(accountRow(t, models.AccountStatusActive))

	account, sess, err := f.svc.Login(ctx, "A@X.com", "secret1", mine)
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, account.Role)
	assert.Equal(t, int64(1), sess.AccountID)
	assert.Len(t, sessionKeys(f.mr), 1)

	items, err := f.carts.Items(ctx, "a@x.com")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(9), items[0].ArtworkID)

	left, err := f.carts.Count(ctx, cart.GuestOwner(mine))
	require.NoError(t, err)
	assert.Zero(t, left)
	others, err := f.carts.Count(ctx, cart.GuestOwner(theirs))
	require.NoError(t, err)
	assert.Equal(t, 1, others, "other visitors keep their carts")

	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCurrentDropsOrphanSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.svc.sessions.Create(ctx, &models.Account{ID: 5, Email: "gone@x.com", Role: models.RoleUser})
	require.NoError(t, err)

	f.mock.ExpectQuery(`FROM accounts WHERE id = \$1`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows(accountCols))

	_, _, err = f.svc.Current(ctx, sess.Token)
	assert.True(t, errors.Is(err, session.ErrSessionNotFound))
	assert.Empty(t, sessionKeys(f.mr))
}

func TestDeleteAccountRevokesSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.sessions.Create(ctx, &models.Account{ID: 3, Email: "a@x.com", Role: models.RoleUser})
	require.NoError(t, err)

	f.mock.ExpectExec(`DELETE FROM accounts`).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, f.svc.DeleteAccount(ctx, 3))
	assert.Empty(t, sessionKeys(f.mr))
}
