package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const (
	CurationPending  = "pending"
	CurationApproved = "approved"
	CurationRejected = "rejected"
)

type Artist struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Bio         string    `json:"bio"`
	Specialty   string    `json:"specialty"`
	Nationality string    `json:"nationality"`
	ImageURL    string    `json:"image_url"`
	Website     string    `json:"website"`
	Featured    bool      `json:"featured"`
	AccountID   *int64    `json:"account_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Artwork struct {
	ID              int64               `json:"id"`
	Title           string              `json:"title"`
	Artist          string              `json:"artist"`
	ArtistEmail     string              `json:"artist_email"`
	ArtistAccountID *int64              `json:"artist_account_id,omitempty"`
	Description     string              `json:"description"`
	Price           decimal.Decimal     `json:"price"`
	Year            int                 `json:"year"`
	Medium          string              `json:"medium"`
	Dimensions      string              `json:"dimensions"`
	Category        string              `json:"category"`
	ImageURL        string              `json:"image_url"`
	Tags            pq.StringArray      `json:"tags"`
	Featured        bool                `json:"featured"`
	Stock           int                 `json:"stock"`
	SoldCount       int                 `json:"sold_count"`
	Sold            bool                `json:"sold"`
	SoldAt          *time.Time          `json:"sold_at,omitempty"`
	CurationStatus  string              `json:"curation_status"`
	CuratorRating   decimal.NullDecimal `json:"curator_rating"`
	CuratorComment  string              `json:"curator_comment"`
	CuratorName     string              `json:"curator_name"`
	ReviewedAt      *time.Time          `json:"reviewed_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
	Version         int                 `json:"version"`
}

// Available is stock minus sold count, never below zero.
func (a *Artwork) Available() int {
	if a.SoldCount >= a.Stock {
		return 0
	}
	return a.Stock - a.SoldCount
}

func (a *Artwork) InStock() bool {
	return a.SoldCount < a.Stock
}

type Review struct {
	ID          int64     `json:"id"`
	ArtworkID   int64     `json:"artwork_id"`
	AuthorEmail string    `json:"author_email"`
	AuthorName  string    `json:"author_name"`
	Rating      int       `json:"rating"`
	Comment     string    `json:"comment"`
	CreatedAt   time.Time `json:"created_at"`
}
