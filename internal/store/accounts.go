package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/safar/gallery-store/internal/database"
	"github.com/safar/gallery-store/internal/models"
	"github.com/safar/gallery-store/internal/policy"
	"github.com/shopspring/decimal"
)

const accountColumns = `id, email, password_hash, name, role, status, profile, email_verified,
	two_factor_enabled, last_login, login_count, stat_artworks_created, stat_artworks_sold,
	stat_total_revenue, stat_orders_placed, stat_reviews_given, stat_wishlist_items,
	created_at, updated_at, version`

type AccountDraft struct {
	Email         string        `json:"email" validate:"required,email"`
	Password      string        `json:"password" validate:"required,min=6,max=72"`
	Name          string        `json:"name"`
	Role          string        `json:"role"`
	Status        string        `json:"status"`
	EmailVerified bool          `json:"email_verified"`
	Profile       *ProfilePatch `json:"profile,omitempty" validate:"-"`
}

// AccountPatch holds the account fields an update may change. Nil fields are
// left untouched; id, email and created_at can never change.
type AccountPatch struct {
	Name             *string `json:"name"`
	Role             *string `json:"role"`
	Status           *string `json:"status"`
	EmailVerified    *bool   `json:"email_verified"`
	TwoFactorEnabled *bool   `json:"two_factor_enabled"`
}

type ProfilePatch struct {
	Phone          *string   `json:"phone"`
	Address        *string   `json:"address"`
	City           *string   `json:"city"`
	State          *string   `json:"state"`
	ZipCode        *string   `json:"zip_code"`
	Country        *string   `json:"country"`
	Bio            *string   `json:"bio"`
	Avatar         *string   `json:"avatar"`
	Website        *string   `json:"website"`
	Instagram      *string   `json:"instagram"`
	Facebook       *string   `json:"facebook"`
	Twitter        *string   `json:"twitter"`
	Specialization *string   `json:"specialization"`
	BirthYear      *string   `json:"birth_year"`
	Nationality    *string   `json:"nationality"`
	Education      *string   `json:"education"`
	Exhibitions    *[]string `json:"exhibitions"`
	Awards         *[]string `json:"awards"`
	Newsletter     *bool     `json:"newsletter"`
	Notifications  *bool     `json:"notifications"`
	Language       *string   `json:"language"`
	Currency       *string   `json:"currency"`
}

func (p *ProfilePatch) changes() map[string]interface{} {
	m := make(map[string]interface{})
	if p == nil {
		return m
	}
	put(m, "phone", p.Phone)
	put(m, "address", p.Address)
	put(m, "city", p.City)
	put(m, "state", p.State)
	put(m, "zip_code", p.ZipCode)
	put(m, "country", p.Country)
	if p.Bio != nil {
		m["bio"] = policy.Sanitize(*p.Bio)
	}
	put(m, "avatar", p.Avatar)
	put(m, "website", p.Website)
	put(m, "instagram", p.Instagram)
	put(m, "facebook", p.Facebook)
	put(m, "twitter", p.Twitter)
	put(m, "specialization", p.Specialization)
	put(m, "birth_year", p.BirthYear)
	put(m, "nationality", p.Nationality)
	put(m, "education", p.Education)
	put(m, "exhibitions", p.Exhibitions)
	put(m, "awards", p.Awards)
	put(m, "newsletter", p.Newsletter)
	put(m, "notifications", p.Notifications)
	put(m, "language", p.Language)
	put(m, "currency", p.Currency)
	return m
}

// StatsDelta is added to an account's counters.
type StatsDelta struct {
	ArtworksCreated int
	ArtworksSold    int
	TotalRevenue    decimal.Decimal
	OrdersPlaced    int
	ReviewsGiven    int
	WishlistItems   int
}

func scanAccount(row rowScanner) (*models.Account, error) {
	a := &models.Account{}
	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.PasswordHash,
		&a.Name,
		&a.Role,
		&a.Status,
		&a.Profile,
		&a.EmailVerified,
		&a.TwoFactorEnabled,
		&a.LastLogin,
		&a.LoginCount,
		&a.Stats.ArtworksCreated,
		&a.Stats.ArtworksSold,
		&a.Stats.TotalRevenue,
		&a.Stats.OrdersPlaced,
		&a.Stats.ReviewsGiven,
		&a.Stats.WishlistItems,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.Version,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (d *AccountDraft) prepare() (email, hash string, profile models.Profile, err error) {
	d.Email = policy.NormalizeEmail(d.Email)
	if err := policy.Validate(d); err != nil {
		return "", "", profile, err
	}
	if len(d.Password) > maxPasswordBytes {
		return "", "", profile, policy.Violated("password", "max")
	}
	d.Name = policy.Sanitize(d.Name)
	if d.Role == "" {
		d.Role = models.RoleUser
	}
	if !policy.ValidRole(d.Role) {
		return "", "", profile, policy.Violated("role", "oneof")
	}
	if d.Status == "" {
		d.Status = models.AccountStatusActive
	}
	if !policy.ValidAccountStatus(d.Status) {
		return "", "", profile, policy.Violated("status", "oneof")
	}

	profile = models.DefaultProfile()
	if changes := d.Profile.changes(); len(changes) > 0 {
		data, err := json.Marshal(changes)
		if err != nil {
			return "", "", profile, fmt.Errorf("encode profile: %w", err)
		}
		if err := json.Unmarshal(data, &profile); err != nil {
			return "", "", profile, fmt.Errorf("apply profile: %w", err)
		}
	}

	hash, err = hashPassword(d.Password)
	if err != nil {
		return "", "", profile, err
	}
	return d.Email, hash, profile, nil
}

// CreateAccount registers a new account. The email is the only unique field;
// a second registration with the same address fails with ErrEmailExists.
func CreateAccount(ctx context.Context, db database.DBTX, draft AccountDraft) (*models.Account, error) {
	email, hash, profile, err := draft.prepare()
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO accounts (email, password_hash, name, role, status, profile, email_verified,
		                      created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW(), 1)
		RETURNING ` + accountColumns

	account, err := scanAccount(db.QueryRowContext(ctx, query,
		email, hash, draft.Name, draft.Role, draft.Status, profile, draft.EmailVerified))
	if err != nil {
		if database.IsUniqueViolation(err, "accounts_email_key") {
			return nil, database.ErrEmailExists
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	return account, nil
}

// EnsureAccount creates the account unless the email is already registered,
// in which case the existing account is returned untouched.
func EnsureAccount(ctx context.Context, db database.DBTX, draft AccountDraft) (*models.Account, bool, error) {
	email, hash, profile, err := draft.prepare()
	if err != nil {
		return nil, false, err
	}

	query := `
		INSERT INTO accounts (email, password_hash, name, role, status, profile, email_verified,
		                      created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW(), 1)
		ON CONFLICT (email) DO NOTHING
		RETURNING ` + accountColumns

	account, err := scanAccount(db.QueryRowContext(ctx, query,
		email, hash, draft.Name, draft.Role, draft.Status, profile, draft.EmailVerified))
	if err == nil {
		return account, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("ensure account: %w", err)
	}

	account, err = GetAccountByEmail(ctx, db, email)
	if err != nil {
		return nil, false, err
	}
	return account, false, nil
}

func GetAccount(ctx context.Context, db database.DBTX, id int64) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	account, err := scanAccount(db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}

	return account, nil
}

// GetAccountByEmail looks an account up by address, ignoring case.
func GetAccountByEmail(ctx context.Context, db database.DBTX, email string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`

	account, err := scanAccount(db.QueryRowContext(ctx, query, policy.NormalizeEmail(email)))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account by email: %w", err)
	}

	return account, nil
}

func queryAccounts(ctx context.Context, db database.DBTX, query string, args ...interface{}) ([]models.Account, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, *account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return accounts, nil
}

func ListAccounts(ctx context.Context, db database.DBTX, page, pageSize int) (*OffsetPage, error) {
	page, pageSize = NormalizePage(page, pageSize)

	var total int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count accounts: %w", err)
	}

	offset := (page - 1) * pageSize
	accounts, err := queryAccounts(ctx, db,
		`SELECT `+accountColumns+` FROM accounts ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`,
		pageSize, offset)
	if err != nil {
		return nil, err
	}

	return newOffsetPage(accounts, total, page, pageSize), nil
}

func ListAccountsByRole(ctx context.Context, db database.DBTX, role string) ([]models.Account, error) {
	return queryAccounts(ctx, db,
		`SELECT `+accountColumns+` FROM accounts WHERE role = $1 ORDER BY id`, role)
}

// SearchAccounts matches name, email or profile bio, case-insensitively.
func SearchAccounts(ctx context.Context, db database.DBTX, query string) ([]models.Account, error) {
	return queryAccounts(ctx, db, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE name ILIKE $1 OR email ILIKE $1 OR profile->>'bio' ILIKE $1
		ORDER BY id`, likePattern(query))
}

func UpdateAccount(ctx context.Context, db database.DBTX, id int64, patch AccountPatch) (*models.Account, error) {
	if patch.Role != nil && !policy.ValidRole(*patch.Role) {
		return nil, policy.Violated("role", "oneof")
	}
	if patch.Status != nil && !policy.ValidAccountStatus(*patch.Status) {
		return nil, policy.Violated("status", "oneof")
	}
	var name *string
	if patch.Name != nil {
		clean := policy.Sanitize(*patch.Name)
		name = &clean
	}

	query := `
		UPDATE accounts
		SET name = COALESCE($2, name),
		    role = COALESCE($3, role),
		    status = COALESCE($4, status),
		    email_verified = COALESCE($5, email_verified),
		    two_factor_enabled = COALESCE($6, two_factor_enabled),
		    updated_at = NOW(),
		    version = version + 1
		WHERE id = $1
		RETURNING ` + accountColumns

	account, err := scanAccount(db.QueryRowContext(ctx, query,
		id, name, patch.Role, patch.Status, patch.EmailVerified, patch.TwoFactorEnabled))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrAccountNotFound
		}
		return nil, fmt.Errorf("update account: %w", err)
	}

	return account, nil
}

// UpdateProfile merges the set fields of patch into the stored profile.
func UpdateProfile(ctx context.Context, db database.DBTX, id int64, patch ProfilePatch) (*models.Account, error) {
	changes, err := json.Marshal(patch.changes())
	if err != nil {
		return nil, fmt.Errorf("encode profile patch: %w", err)
	}

	query := `
		UPDATE accounts
		SET profile = profile || $2::jsonb,
		    updated_at = NOW(),
		    version = version + 1
		WHERE id = $1
		RETURNING ` + accountColumns

	account, err := scanAccount(db.QueryRowContext(ctx, query, id, string(changes)))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrAccountNotFound
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}

	return account, nil
}

func UpdateAccountStats(ctx context.Context, db database.DBTX, id int64, delta StatsDelta) error {
	result, err := db.ExecContext(ctx, `
		UPDATE accounts
		SET stat_artworks_created = stat_artworks_created + $2,
		    stat_artworks_sold = stat_artworks_sold + $3,
		    stat_total_revenue = stat_total_revenue + $4,
		    stat_orders_placed = stat_orders_placed + $5,
		    stat_reviews_given = stat_reviews_given + $6,
		    stat_wishlist_items = GREATEST(stat_wishlist_items + $7, 0),
		    updated_at = NOW()
		WHERE id = $1`,
		id, delta.ArtworksCreated, delta.ArtworksSold, delta.TotalRevenue,
		delta.OrdersPlaced, delta.ReviewsGiven, delta.WishlistItems)
	if err != nil {
		return fmt.Errorf("update account stats: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrAccountNotFound
	}

	return nil
}

// ChangePassword replaces the password after checking the current one. The
// write is conditional on the version read, so a concurrent change wins once.
func ChangePassword(ctx context.Context, db database.DBTX, id int64, oldPassword, newPassword string) error {
	account, err := GetAccount(ctx, db, id)
	if err != nil {
		return err
	}

	if !VerifyPassword(account, oldPassword) {
		return database.ErrIncorrectPassword
	}
	if len(newPassword) < 6 || len(newPassword) > maxPasswordBytes {
		return policy.Violated("new_password", "len")
	}

	hash, err := hashPassword(newPassword)
	if err != nil {
		return err
	}

	result, err := db.ExecContext(ctx, `
		UPDATE accounts
		SET password_hash = $1, updated_at = NOW(), version = version + 1
		WHERE id = $2 AND version = $3`,
		hash, id, account.Version)
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrOptimisticLockFailed
	}

	return nil
}

// RecordLogin bumps the login counter and last-login timestamp.
func RecordLogin(ctx context.Context, db database.DBTX, id int64) (*models.Account, error) {
	query := `
		UPDATE accounts
		SET login_count = login_count + 1, last_login = NOW()
		WHERE id = $1
		RETURNING ` + accountColumns

	account, err := scanAccount(db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrAccountNotFound
		}
		return nil, fmt.Errorf("record login: %w", err)
	}

	return account, nil
}

// DeleteAccount removes the account. Deleting an unknown id is not an error.
func DeleteAccount(ctx context.Context, db database.DBTX, id int64) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}
