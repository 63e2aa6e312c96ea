package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/safar/gallery-store/internal/database"
	"github.com/safar/gallery-store/internal/models"
	"github.com/safar/gallery-store/internal/policy"
	"github.com/shopspring/decimal"
)

const artworkColumns = `id, title, artist, artist_email, artist_account_id, description, price,
	year, medium, dimensions, category, image_url, tags, featured, stock, sold_count, sold,
	sold_at, curation_status, curator_rating, curator_comment, curator_name, reviewed_at,
	created_at, updated_at, version`

type ArtworkDraft struct {
	Title           string          `json:"title" validate:"required,max=200"`
	Artist          string          `json:"artist" validate:"required"`
	ArtistEmail     string          `json:"artist_email" validate:"omitempty,email"`
	ArtistAccountID *int64          `json:"artist_account_id"`
	Description     string          `json:"description"`
	Price           decimal.Decimal `json:"price"`
	Year            int             `json:"year" validate:"gte=0"`
	Medium          string          `json:"medium"`
	Dimensions      string          `json:"dimensions"`
	Category        string          `json:"category"`
	ImageURL        string          `json:"image_url"`
	Tags            []string        `json:"tags"`
	Featured        bool            `json:"featured"`
	Stock           int             `json:"stock"`
}

// ArtworkPatch overwrites only the fields that are set.
type ArtworkPatch struct {
	Title       *string          `json:"title"`
	Artist      *string          `json:"artist"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Year        *int             `json:"year"`
	Medium      *string          `json:"medium"`
	Dimensions  *string          `json:"dimensions"`
	Category    *string          `json:"category"`
	ImageURL    *string          `json:"image_url"`
	Tags        *[]string        `json:"tags"`
	Featured    *bool            `json:"featured"`
	Stock       *int             `json:"stock"`
	Sold        *bool            `json:"sold"`
}

// CurationDecision is a curator's verdict. An approval carries four scores
// from 1 to 10; the stored rating is their mean.
type CurationDecision struct {
	Approve     bool   `json:"approve"`
	Scores      [4]int `json:"scores"`
	Comment     string `json:"comment"`
	CuratorName string `json:"curator_name"`
}

func (d CurationDecision) Rating() (decimal.NullDecimal, error) {
	if !d.Approve {
		return decimal.NullDecimal{}, nil
	}
	sum := 0
	for _, s := range d.Scores {
		if s < 1 || s > 10 {
			return decimal.NullDecimal{}, policy.Violated("scores", "range")
		}
		sum += s
	}
	rating := decimal.NewFromInt(int64(sum)).Div(decimal.NewFromInt(int64(len(d.Scores)))).Round(2)
	return decimal.NullDecimal{Decimal: rating, Valid: true}, nil
}

func scanArtwork(row rowScanner) (*models.Artwork, error) {
	a := &models.Artwork{}
	err := row.Scan(
		&a.ID,
		&a.Title,
		&a.Artist,
		&a.ArtistEmail,
		&a.ArtistAccountID,
		&a.Description,
		&a.Price,
		&a.Year,
		&a.Medium,
		&a.Dimensions,
		&a.Category,
		&a.ImageURL,
		&a.Tags,
		&a.Featured,
		&a.Stock,
		&a.SoldCount,
		&a.Sold,
		&a.SoldAt,
		&a.CurationStatus,
		&a.CuratorRating,
		&a.CuratorComment,
		&a.CuratorName,
		&a.ReviewedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.Version,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func queryArtworks(ctx context.Context, db database.DBTX, query string, args ...interface{}) ([]models.Artwork, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list artworks: %w", err)
	}
	defer rows.Close()

	artworks := []models.Artwork{}
	for rows.Next() {
		artwork, err := scanArtwork(rows)
		if err != nil {
			return nil, fmt.Errorf("scan artwork: %w", err)
		}
		artworks = append(artworks, *artwork)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return artworks, nil
}

// CreateArtwork inserts a new pending artwork. A non-positive stock is stored
// as a single piece. When the draft names an artist account, that account's
// created-artworks counter is bumped in the same statement.
func CreateArtwork(ctx context.Context, db database.DBTX, draft ArtworkDraft) (*models.Artwork, error) {
	if err := policy.Validate(draft); err != nil {
		return nil, err
	}
	if draft.Price.IsNegative() {
		return nil, policy.Violated("price", "gte")
	}
	if draft.Stock <= 0 {
		draft.Stock = 1
	}
	tags := draft.Tags
	if tags == nil {
		tags = []string{}
	}

	query := `
		WITH created AS (
			INSERT INTO artworks (title, artist, artist_email, artist_account_id, description, price,
			                      year, medium, dimensions, category, image_url, tags, featured, stock,
			                      created_at, updated_at, version)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW(), 1)
			RETURNING ` + artworkColumns + `
		), bumped AS (
			UPDATE accounts
			SET stat_artworks_created = stat_artworks_created + 1, updated_at = NOW()
			WHERE id = (SELECT artist_account_id FROM created)
		)
		SELECT ` + artworkColumns + ` FROM created`

	artwork, err := scanArtwork(db.QueryRowContext(ctx, query,
		policy.Sanitize(draft.Title),
		policy.Sanitize(draft.Artist),
		policy.NormalizeEmail(draft.ArtistEmail),
		draft.ArtistAccountID,
		policy.Sanitize(draft.Description),
		draft.Price,
		draft.Year,
		draft.Medium,
		draft.Dimensions,
		draft.Category,
		draft.ImageURL,
		pq.Array(tags),
		draft.Featured,
		draft.Stock,
	))
	if err != nil {
		return nil, fmt.Errorf("create artwork: %w", err)
	}

	return artwork, nil
}

func GetArtwork(ctx context.Context, db database.DBTX, id int64) (*models.Artwork, error) {
	query := `SELECT ` + artworkColumns + ` FROM artworks WHERE id = $1`

	artwork, err := scanArtwork(db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrArtworkNotFound
		}
		return nil, fmt.Errorf("get artwork: %w", err)
	}

	return artwork, nil
}

// ListArtworks returns the whole catalog in insertion order.
func ListArtworks(ctx context.Context, db database.DBTX) ([]models.Artwork, error) {
	return queryArtworks(ctx, db, `SELECT `+artworkColumns+` FROM artworks ORDER BY id`)
}

func ListArtworksPage(ctx context.Context, db database.DBTX, page, pageSize int) (*OffsetPage, error) {
	page, pageSize = NormalizePage(page, pageSize)

	var total int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM artworks`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count artworks: %w", err)
	}

	offset := (page - 1) * pageSize
	artworks, err := queryArtworks(ctx, db,
		`SELECT `+artworkColumns+` FROM artworks ORDER BY id LIMIT $1 OFFSET $2`,
		pageSize, offset)
	if err != nil {
		return nil, err
	}

	return newOffsetPage(artworks, total, page, pageSize), nil
}

func ListArtworksByArtist(ctx context.Context, db database.DBTX, artistEmail string) ([]models.Artwork, error) {
	return queryArtworks(ctx, db,
		`SELECT `+artworkColumns+` FROM artworks WHERE artist_email = $1 ORDER BY id`,
		policy.NormalizeEmail(artistEmail))
}

func ListFeaturedArtworks(ctx context.Context, db database.DBTX) ([]models.Artwork, error) {
	return queryArtworks(ctx, db,
		`SELECT `+artworkColumns+` FROM artworks WHERE featured ORDER BY id`)
}

// SearchArtworks matches title, artist, description or any tag.
func SearchArtworks(ctx context.Context, db database.DBTX, query string) ([]models.Artwork, error) {
	return queryArtworks(ctx, db, `
		SELECT `+artworkColumns+`
		FROM artworks
		WHERE title ILIKE $1
		   OR artist ILIKE $1
		   OR description ILIKE $1
		   OR EXISTS (SELECT 1 FROM unnest(tags) AS tag WHERE tag ILIKE $1)
		ORDER BY id`, likePattern(query))
}

func ListArtworksByCuration(ctx context.Context, db database.DBTX, status string) ([]models.Artwork, error) {
	switch status {
	case models.CurationPending, models.CurationApproved, models.CurationRejected:
	default:
		return nil, database.ErrInvalidStatus
	}
	return queryArtworks(ctx, db,
		`SELECT `+artworkColumns+` FROM artworks WHERE curation_status = $1 ORDER BY id`, status)
}

// UpdateArtwork merges patch into the stored artwork in a single statement.
// Setting sold stamps sold_at the first time.
func UpdateArtwork(ctx context.Context, db database.DBTX, id int64, patch ArtworkPatch) (*models.Artwork, error) {
	if patch.Price != nil && patch.Price.IsNegative() {
		return nil, policy.Violated("price", "gte")
	}
	if patch.Stock != nil && *patch.Stock < 0 {
		return nil, policy.Violated("stock", "gte")
	}
	var tags interface{}
	if patch.Tags != nil {
		tags = pq.Array(*patch.Tags)
	}
	var price interface{}
	if patch.Price != nil {
		price = *patch.Price
	}

	query := `
		UPDATE artworks
		SET title = COALESCE($2, title),
		    artist = COALESCE($3, artist),
		    description = COALESCE($4, description),
		    price = COALESCE($5::numeric, price),
		    year = COALESCE($6, year),
		    medium = COALESCE($7, medium),
		    dimensions = COALESCE($8, dimensions),
		    category = COALESCE($9, category),
		    image_url = COALESCE($10, image_url),
		    tags = COALESCE($11::text[], tags),
		    featured = COALESCE($12, featured),
		    stock = COALESCE($13, stock),
		    sold = COALESCE($14, sold),
		    sold_at = CASE WHEN COALESCE($14, sold) THEN COALESCE(sold_at, NOW()) ELSE sold_at END,
		    updated_at = NOW(),
		    version = version + 1
		WHERE id = $1
		RETURNING ` + artworkColumns

	artwork, err := scanArtwork(db.QueryRowContext(ctx, query,
		id,
		sanitized(patch.Title),
		sanitized(patch.Artist),
		sanitized(patch.Description),
		price,
		patch.Year,
		patch.Medium,
		patch.Dimensions,
		patch.Category,
		patch.ImageURL,
		tags,
		patch.Featured,
		patch.Stock,
		patch.Sold,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrArtworkNotFound
		}
		return nil, fmt.Errorf("update artwork: %w", err)
	}

	return artwork, nil
}

// DeleteArtwork removes an artwork. Deleting an unknown id is not an error.
func DeleteArtwork(ctx context.Context, db database.DBTX, id int64) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM artworks WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete artwork: %w", err)
	}
	return nil
}

// ReduceStock records qty more pieces sold. It does not check availability,
// so sold_count may pass stock; the artwork is marked sold once it does.
func ReduceStock(ctx context.Context, db database.DBTX, id int64, qty int) (*models.Artwork, error) {
	if qty <= 0 {
		return nil, database.ErrInvalidQuantity
	}

	query := `
		UPDATE artworks
		SET sold_count = sold_count + $2,
		    sold = (sold_count + $2 >= stock),
		    sold_at = CASE WHEN sold_count + $2 >= stock THEN COALESCE(sold_at, NOW()) ELSE sold_at END,
		    updated_at = NOW(),
		    version = version + 1
		WHERE id = $1
		RETURNING ` + artworkColumns

	artwork, err := scanArtwork(db.QueryRowContext(ctx, query, id, qty))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrArtworkNotFound
		}
		return nil, fmt.Errorf("reduce stock: %w", err)
	}

	return artwork, nil
}

// SellStock is the guarded form of ReduceStock: the update only applies when
// enough pieces remain, otherwise ErrInsufficientStock. Waiting on the row
// lock past the transaction's lock_timeout fails with ErrLockTimeout.
func SellStock(ctx context.Context, db database.DBTX, id int64, qty int) (*models.Artwork, error) {
	if qty <= 0 {
		return nil, database.ErrInvalidQuantity
	}

	query := `
		UPDATE artworks
		SET sold_count = sold_count + $2,
		    sold = (sold_count + $2 >= stock),
		    sold_at = CASE WHEN sold_count + $2 >= stock THEN COALESCE(sold_at, NOW()) ELSE sold_at END,
		    updated_at = NOW(),
		    version = version + 1
		WHERE id = $1
		  AND NOT sold
		  AND stock - sold_count >= $2
		RETURNING ` + artworkColumns

	artwork, err := scanArtwork(db.QueryRowContext(ctx, query, id, qty))
	if err == nil {
		return artwork, nil
	}
	if database.IsLockNotAvailable(err) {
		return nil, database.ErrLockTimeout
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("sell stock: %w", err)
	}

	var exists bool
	err = db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM artworks WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check artwork exists: %w", err)
	}
	if !exists {
		return nil, database.ErrArtworkNotFound
	}
	return nil, database.ErrInsufficientStock
}

// SetStockOptimistic replaces the stock count if the row is still at version.
func SetStockOptimistic(ctx context.Context, db database.DBTX, id int64, stock, version int) error {
	if stock < 0 {
		return policy.Violated("stock", "gte")
	}

	result, err := db.ExecContext(ctx, `
		UPDATE artworks
		SET stock = $1,
		    sold = (sold_count >= $1),
		    updated_at = NOW(),
		    version = version + 1
		WHERE id = $2 AND version = $3`,
		stock, id, version)
	if err != nil {
		return fmt.Errorf("set stock: %w", err)
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

// AvailableStock is stock minus sold count, clamped at zero. An unknown
// artwork has nothing available.
func AvailableStock(ctx context.Context, db database.DBTX, id int64) (int, error) {
	var available int
	err := db.QueryRowContext(ctx,
		`SELECT GREATEST(stock - sold_count, 0) FROM artworks WHERE id = $1`, id).Scan(&available)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("available stock: %w", err)
	}
	return available, nil
}

func IsInStock(ctx context.Context, db database.DBTX, id int64) (bool, error) {
	available, err := AvailableStock(ctx, db, id)
	if err != nil {
		return false, err
	}
	return available > 0, nil
}

// CurateArtwork records a curator's approval or rejection.
func CurateArtwork(ctx context.Context, db database.DBTX, id int64, decision CurationDecision) (*models.Artwork, error) {
	rating, err := decision.Rating()
	if err != nil {
		return nil, err
	}
	status := models.CurationRejected
	if decision.Approve {
		status = models.CurationApproved
	}

	query := `
		UPDATE artworks
		SET curation_status = $2,
		    curator_rating = $3,
		    curator_comment = $4,
		    curator_name = $5,
		    reviewed_at = NOW(),
		    updated_at = NOW(),
		    version = version + 1
		WHERE id = $1
		RETURNING ` + artworkColumns

	artwork, err := scanArtwork(db.QueryRowContext(ctx, query,
		id, status, rating, policy.Sanitize(decision.Comment), policy.Sanitize(decision.CuratorName)))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrArtworkNotFound
		}
		return nil, fmt.Errorf("curate artwork: %w", err)
	}

	return artwork, nil
}

func sanitized(s *string) *string {
	if s == nil {
		return nil
	}
	clean := policy.Sanitize(*s)
	return &clean
}
