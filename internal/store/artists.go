package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/gallery-store/internal/database"
	"github.com/safar/gallery-store/internal/models"
	"github.com/safar/gallery-store/internal/policy"
)

const artistColumns = `id, name, bio, specialty, nationality, image_url, website, featured,
	account_id, created_at, updated_at`

type ArtistDraft struct {
	Name        string `json:"name" validate:"required,max=200"`
	Bio         string `json:"bio"`
	Specialty   string `json:"specialty"`
	Nationality string `json:"nationality"`
	ImageURL    string `json:"image_url"`
	Website     string `json:"website" validate:"omitempty,url"`
	Featured    bool   `json:"featured"`
	AccountID   *int64 `json:"account_id"`
}

type ArtistPatch struct {
	Name        *string `json:"name"`
	Bio         *string `json:"bio"`
	Specialty   *string `json:"specialty"`
	Nationality *string `json:"nationality"`
	ImageURL    *string `json:"image_url"`
	Website     *string `json:"website"`
	Featured    *bool   `json:"featured"`
}

func scanArtist(row rowScanner) (*models.Artist, error) {
	a := &models.Artist{}
	err := row.Scan(
		&a.ID,
		&a.Name,
		&a.Bio,
		&a.Specialty,
		&a.Nationality,
		&a.ImageURL,
		&a.Website,
		&a.Featured,
		&a.AccountID,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func CreateArtist(ctx context.Context, db database.DBTX, draft ArtistDraft) (*models.Artist, error) {
	if err := policy.Validate(draft); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO artists (name, bio, specialty, nationality, image_url, website, featured,
		                     account_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING ` + artistColumns

	artist, err := scanArtist(db.QueryRowContext(ctx, query,
		policy.Sanitize(draft.Name),
		policy.Sanitize(draft.Bio),
		draft.Specialty,
		draft.Nationality,
		draft.ImageURL,
		draft.Website,
		draft.Featured,
		draft.AccountID,
	))
	if err != nil {
		return nil, fmt.Errorf("create artist: %w", err)
	}

	return artist, nil
}

func GetArtist(ctx context.Context, db database.DBTX, id int64) (*models.Artist, error) {
	artist, err := scanArtist(db.QueryRowContext(ctx,
		`SELECT `+artistColumns+` FROM artists WHERE id = $1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrArtistNotFound
		}
		return nil, fmt.Errorf("get artist: %w", err)
	}

	return artist, nil
}

func ListArtists(ctx context.Context, db database.DBTX) ([]models.Artist, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+artistColumns+` FROM artists ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list artists: %w", err)
	}
	defer rows.Close()

	artists := []models.Artist{}
	for rows.Next() {
		artist, err := scanArtist(rows)
		if err != nil {
			return nil, fmt.Errorf("scan artist: %w", err)
		}
		artists = append(artists, *artist)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return artists, nil
}

func UpdateArtist(ctx context.Context, db database.DBTX, id int64, patch ArtistPatch) (*models.Artist, error) {
	query := `
		UPDATE artists
		SET name = COALESCE($2, name),
		    bio = COALESCE($3, bio),
		    specialty = COALESCE($4, specialty),
		    nationality = COALESCE($5, nationality),
		    image_url = COALESCE($6, image_url),
		    website = COALESCE($7, website),
		    featured = COALESCE($8, featured),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + artistColumns

	artist, err := scanArtist(db.QueryRowContext(ctx, query,
		id,
		sanitized(patch.Name),
		sanitized(patch.Bio),
		patch.Specialty,
		patch.Nationality,
		patch.ImageURL,
		patch.Website,
		patch.Featured,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrArtistNotFound
		}
		return nil, fmt.Errorf("update artist: %w", err)
	}

	return artist, nil
}

// DeleteArtist removes an artist. Deleting an unknown id is not an error.
func DeleteArtist(ctx context.Context, db database.DBTX, id int64) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM artists WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete artist: %w", err)
	}
	return nil
}
