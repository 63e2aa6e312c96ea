package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/safar/gallery-store/internal/database"
	"github.com/safar/gallery-store/internal/models"
	"github.com/safar/gallery-store/internal/policy"
)

var accountCols = []string{
	"id", "email", "password_hash", "name", "role", "status", "profile", "email_verified",
	"two_factor_enabled", "last_login", "login_count", "stat_artworks_created",
	"stat_artworks_sold", "stat_total_revenue", "stat_orders_placed", "stat_reviews_given",
	"stat_wishlist_items", "created_at", "updated_at", "version",
}

func accountRows(t *testing.T, id int64, email, password string, version int) *sqlmock.Rows {
	t.Helper()
	hash, err := hashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	now := time.Now()
	return sqlmock.NewRows(accountCols).AddRow(
		id, email, hash, "Test User", models.RoleUser, models.AccountStatusActive,
		[]byte(`{"language":"en","currency":"USD","notifications":true}`), false,
		false, nil, 0, 0, 0, "0", 0, 0, 0, now, now, version,
	)
}

func TestCreateAccountDuplicateEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO accounts`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "accounts_email_key"})

	_, err = CreateAccount(context.Background(), db, AccountDraft{
		Email:    "A@X.com",
		Password: "secret1",
	})
	if !errors.Is(err, database.ErrEmailExists) {
		t.Fatalf("expected ErrEmailExists, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateAccountNormalizesAndDefaults(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO accounts`).
		WithArgs("a@x.com", sqlmock.AnyArg(), "Ada", models.RoleUser, models.AccountStatusActive,
			sqlmock.AnyArg(), false).
		WillReturnRows(accountRows(t, 1, "a@x.com", "secret1", 1))

	account, err := CreateAccount(context.Background(), db, AccountDraft{
		Email:    "  A@X.com ",
		Password: "secret1",
		Name:     "Ada",
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if account.Role != models.RoleUser {
		t.Errorf("expected role user, got %s", account.Role)
	}
	if !account.Profile.Notifications || account.Profile.Language != "en" {
		t.Errorf("unexpected profile: %+v", account.Profile)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateAccountValidation(t *testing.T) {
	db, _, _ := sqlmock.New()
	defer db.Close()

	tests := []struct {
		name  string
		draft AccountDraft
	}{
		{"missing email", AccountDraft{Password: "secret1"}},
		{"bad email", AccountDraft{Email: "not-an-email", Password: "secret1"}},
		{"short password", AccountDraft{Email: "a@x.com", Password: "abc"}},
		{"unknown role", AccountDraft{Email: "a@x.com", Password: "secret1", Role: "owner"}},
		{"password over 72 bytes", AccountDraft{Email: "a@x.com", Password: strings.Repeat("é", 40)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := CreateAccount(context.Background(), db, tt.draft); !policy.IsViolation(err) {
				t.Errorf("expected violation, got %v", err)
			}
		})
	}
}

func TestPasswordLimitCountsBytes(t *testing.T) {
	draft := AccountDraft{Email: "a@x.com", Password: strings.Repeat("é", 40)}

	_, _, _, err := draft.prepare()
	var ve *policy.ViolationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected violation, got %v", err)
	}
	if len(ve.Violations) != 1 || ve.Violations[0].Field != "password" {
		t.Errorf("expected a password violation, got %+v", ve.Violations)
	}

	draft.Password = strings.Repeat("é", 36)
	if _, _, _, err := draft.prepare(); err != nil {
		t.Fatalf("72-byte password should be accepted: %v", err)
	}
}

func TestEnsureAccountSanitizesName(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO accounts[\s\S]+ON CONFLICT \(email\) DO NOTHING`).
		WithArgs("a@x.com", sqlmock.AnyArg(), "Ada", models.RoleAdmin, models.AccountStatusActive,
			sqlmock.AnyArg(), true).
		WillReturnRows(accountRows(t, 1, "a@x.com", "secret1", 1))

	_, created, err := EnsureAccount(context.Background(), db, AccountDraft{
		Email:         "a@x.com",
		Password:      "secret1",
		Name:          "<img src=x onerror=alert(1)>Ada",
		Role:          models.RoleAdmin,
		EmailVerified: true,
	})
	if err != nil {
		t.Fatalf("EnsureAccount: %v", err)
	}
	if !created {
		t.Error("expected the account to be created")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateAccountLeavesUnsetFields(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	name := "<i>Ada</i>"
	mock.ExpectQuery(`UPDATE accounts\s+SET name = COALESCE\(\$2, name\)[\s\S]+version = version \+ 1`).
		WithArgs(int64(1), "Ada", nil, nil, nil, nil).
		WillReturnRows(accountRows(t, 1, "a@x.com", "secret1", 2))

	account, err := UpdateAccount(context.Background(), db, 1, AccountPatch{Name: &name})
	if err != nil {
		t.Fatalf("UpdateAccount: %v", err)
	}
	if account.Version != 2 {
		t.Errorf("expected version 2, got %d", account.Version)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateAccountUnknownID(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	name := "Ada"
	mock.ExpectQuery(`UPDATE accounts`).
		WillReturnRows(sqlmock.NewRows(accountCols))

	if _, err := UpdateAccount(context.Background(), db, 404, AccountPatch{Name: &name}); !errors.Is(err, database.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestUpdateProfileMergesOnlySetFields(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	city := "Lisbon"
	mock.ExpectQuery(`SET profile = profile \|\| \$2::jsonb`).
		WithArgs(int64(1), `{"city":"Lisbon"}`).
		WillReturnRows(accountRows(t, 1, "a@x.com", "secret1", 2))

	if _, err := UpdateProfile(context.Background(), db, 1, ProfilePatch{City: &city}); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetAccountByEmailNotFound(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	mock.ExpectQuery(`SELECT [\s\S]+ FROM accounts WHERE email = \$1`).
		WithArgs("ghost@x.com").
		WillReturnRows(sqlmock.NewRows(accountCols))

	if _, err := GetAccountByEmail(context.Background(), db, "Ghost@X.com"); !errors.Is(err, database.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestChangePasswordIncorrect(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	mock.ExpectQuery(`FROM accounts WHERE id = \$1`).
		WithArgs(int64(3)).
		WillReturnRows(accountRows(t, 3, "a@x.com", "secret1", 2))

	err := ChangePassword(context.Background(), db, 3, "wrong-one", "newsecret")
	if !errors.Is(err, database.ErrIncorrectPassword) {
		t.Fatalf("expected ErrIncorrectPassword, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestChangePasswordChecksVersion(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	mock.ExpectQuery(`FROM accounts WHERE id = \$1`).
		WithArgs(int64(3)).
		WillReturnRows(accountRows(t, 3, "a@x.com", "secret1", 2))
	mock.ExpectExec(`UPDATE accounts[\s\S]+WHERE id = \$2 AND version = \$3`).
		WithArgs(sqlmock.AnyArg(), int64(3), 2).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := ChangePassword(context.Background(), db, 3, "secret1", "newsecret")
	if !errors.Is(err, database.ErrOptimisticLockFailed) {
		t.Fatalf("expected ErrOptimisticLockFailed, got %v", err)
	}
}

func TestDeleteAccountMissingIsNotAnError(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	mock.ExpectExec(`DELETE FROM accounts`).
		WithArgs(int64(77)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := DeleteAccount(context.Background(), db, 77); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestUpdateAccountStatsUnknownAccount(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	mock.ExpectExec(`UPDATE accounts\s+SET stat_artworks_created`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := UpdateAccountStats(context.Background(), db, 5, StatsDelta{OrdersPlaced: 1})
	if !errors.Is(err, database.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestProfilePatchChanges(t *testing.T) {
	city := "Lisbon"
	bio := "<script>alert(1)</script>Painter"
	newsletter := false
	awards := []string{"Gold"}

	changes := (&ProfilePatch{City: &city, Bio: &bio, Newsletter: &newsletter, Awards: &awards}).changes()

	if len(changes) != 4 {
		t.Fatalf("expected 4 changes, got %v", changes)
	}
	if changes["city"] != "Lisbon" {
		t.Errorf("unexpected city: %v", changes["city"])
	}
	if changes["bio"] != "Painter" {
		t.Errorf("bio should be sanitized, got %q", changes["bio"])
	}
	if changes["newsletter"] != false {
		t.Errorf("explicit false should be kept, got %v", changes["newsletter"])
	}
	if _, ok := changes["phone"]; ok {
		t.Error("unset fields must not appear")
	}

	var nilPatch *ProfilePatch
	if len(nilPatch.changes()) != 0 {
		t.Error("nil patch should have no changes")
	}
}

func TestVerifyPassword(t *testing.T) {
	hash, err := hashPassword("secret1")
	if err != nil {
		t.Fatalf("hashPassword: %v", err)
	}
	account := &models.Account{PasswordHash: hash}

	if !VerifyPassword(account, "secret1") {
		t.Error("expected password to match")
	}
	if VerifyPassword(account, "secret2") {
		t.Error("expected mismatch")
	}
	if VerifyPassword(nil, "secret1") {
		t.Error("nil account never matches")
	}
}
