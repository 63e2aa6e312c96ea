package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleAdmin   = "admin"
	RoleArtist  = "artist"
	RoleCurator = "curator"
	RoleUser    = "user"
)

const (
	AccountStatusActive    = "active"
	AccountStatusInactive  = "inactive"
	AccountStatusSuspended = "suspended"
)

type Account struct {
	ID               int64        `json:"id"`
	Email            string       `json:"email"`
	PasswordHash     string       `json:"-"`
	Name             string       `json:"name"`
	Role             string       `json:"role"`
	Status           string       `json:"status"`
	Profile          Profile      `json:"profile"`
	EmailVerified    bool         `json:"email_verified"`
	TwoFactorEnabled bool         `json:"two_factor_enabled"`
	LastLogin        *time.Time   `json:"last_login"`
	LoginCount       int          `json:"login_count"`
	Stats            AccountStats `json:"stats"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
	Version          int          `json:"version"`
}

// Profile is stored as a single JSONB document on the account row.
type Profile struct {
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	City      string `json:"city"`
	State     string `json:"state"`
	ZipCode   string `json:"zip_code"`
	Country   string `json:"country"`
	Bio       string `json:"bio"`
	Avatar    string `json:"avatar"`
	Website   string `json:"website"`
	Instagram string `json:"instagram"`
	Facebook  string `json:"facebook"`
	Twitter   string `json:"twitter"`

	Specialization string   `json:"specialization"`
	BirthYear      string   `json:"birth_year"`
	Nationality    string   `json:"nationality"`
	Education      string   `json:"education"`
	Exhibitions    []string `json:"exhibitions"`
	Awards         []string `json:"awards"`

	Newsletter    bool   `json:"newsletter"`
	Notifications bool   `json:"notifications"`
	Language      string `json:"language"`
	Currency      string `json:"currency"`
}

// DefaultProfile returns the profile a new account starts with.
func DefaultProfile() Profile {
	return Profile{
		Exhibitions:   []string{},
		Awards:        []string{},
		Notifications: true,
		Language:      "en",
		Currency:      "USD",
	}
}

func (p Profile) Value() (driver.Value, error) {
	return json.Marshal(p)
}

func (p *Profile) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	case nil:
		*p = DefaultProfile()
		return nil
	default:
		return errors.New("profile: unsupported scan type")
	}
	return json.Unmarshal(data, p)
}

type AccountStats struct {
	ArtworksCreated int             `json:"artworks_created"`
	ArtworksSold    int             `json:"artworks_sold"`
	TotalRevenue    decimal.Decimal `json:"total_revenue"`
	OrdersPlaced    int             `json:"orders_placed"`
	ReviewsGiven    int             `json:"reviews_given"`
	WishlistItems   int             `json:"wishlist_items"`
}

// IsActive reports whether the account may sign in.
func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}
