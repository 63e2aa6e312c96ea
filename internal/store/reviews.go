package store

import (
	"context"
	"fmt"

	"github.com/safar/gallery-store/internal/database"
	"github.com/safar/gallery-store/internal/models"
	"github.com/safar/gallery-store/internal/policy"
)

type ReviewDraft struct {
	ArtworkID   int64  `json:"artwork_id" validate:"required"`
	AuthorEmail string `json:"author_email" validate:"required,email"`
	AuthorName  string `json:"author_name"`
	Rating      int    `json:"rating" validate:"min=1,max=5"`
	Comment     string `json:"comment" validate:"max=2000"`
}

// CreateReview stores a review and bumps the author's reviews-given counter
// in one statement. Reviewing an unknown artwork fails with ErrArtworkNotFound.
func CreateReview(ctx context.Context, db database.DBTX, draft ReviewDraft) (*models.Review, error) {
	if err := policy.Validate(draft); err != nil {
		return nil, err
	}

	query := `
		WITH created AS (
			INSERT INTO reviews (artwork_id, author_email, author_name, rating, comment, created_at)
			VALUES ($1, $2, $3, $4, $5, NOW())
			RETURNING id, artwork_id, author_email, author_name, rating, comment, created_at
		), bumped AS (
			UPDATE accounts
			SET stat_reviews_given = stat_reviews_given + 1, updated_at = NOW()
			WHERE email = $2
		)
		SELECT id, artwork_id, author_email, author_name, rating, comment, created_at FROM created`

	r := &models.Review{}
	err := db.QueryRowContext(ctx, query,
		draft.ArtworkID,
		policy.NormalizeEmail(draft.AuthorEmail),
		policy.Sanitize(draft.AuthorName),
		draft.Rating,
		policy.Sanitize(draft.Comment),
	).Scan(&r.ID, &r.ArtworkID, &r.AuthorEmail, &r.AuthorName, &r.Rating, &r.Comment, &r.CreatedAt)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return nil, database.ErrArtworkNotFound
		}
		return nil, fmt.Errorf("create review: %w", err)
	}

	return r, nil
}

// ListReviewsByArtwork returns an artwork's reviews, oldest first.
func ListReviewsByArtwork(ctx context.Context, db database.DBTX, artworkID int64) ([]models.Review, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, artwork_id, author_email, author_name, rating, comment, created_at
		FROM reviews
		WHERE artwork_id = $1
		ORDER BY created_at, id`, artworkID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	reviews := []models.Review{}
	for rows.Next() {
		var r models.Review
		if err := rows.Scan(&r.ID, &r.ArtworkID, &r.AuthorEmail, &r.AuthorName, &r.Rating, &r.Comment, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		reviews = append(reviews, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return reviews, nil
}

func DeleteReview(ctx context.Context, db database.DBTX, id int64) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM reviews WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	return nil
}
