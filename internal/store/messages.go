package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/gallery-store/internal/database"
	"github.com/safar/gallery-store/internal/models"
	"github.com/safar/gallery-store/internal/policy"
)

const messageColumns = `id, name, email, subject, body, user_role, user_email, user_name, status, created_at`

// MessageDraft is a contact-form submission. The User fields describe the
// signed-in sender, if any.
type MessageDraft struct {
	Name      string `json:"name" validate:"required,max=200"`
	Email     string `json:"email" validate:"required,email"`
	Subject   string `json:"subject" validate:"max=300"`
	Body      string `json:"message" validate:"required,max=5000"`
	UserRole  string `json:"user_role"`
	UserEmail string `json:"user_email"`
	UserName  string `json:"user_name"`
}

func scanMessage(row rowScanner) (*models.Message, error) {
	m := &models.Message{}
	err := row.Scan(
		&m.ID,
		&m.Name,
		&m.Email,
		&m.Subject,
		&m.Body,
		&m.UserRole,
		&m.UserEmail,
		&m.UserName,
		&m.Status,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// CreateMessage stores an unread message with HTML stripped from every text
// field. Anonymous senders are recorded as visitors.
func CreateMessage(ctx context.Context, db database.DBTX, draft MessageDraft) (*models.Message, error) {
	if err := policy.Validate(draft); err != nil {
		return nil, err
	}

	email := policy.NormalizeEmail(draft.Email)
	name := policy.Sanitize(draft.Name)
	role := draft.UserRole
	if role == "" {
		role = "visitor"
	}
	userEmail := policy.NormalizeEmail(draft.UserEmail)
	if userEmail == "" {
		userEmail = email
	}
	userName := policy.Sanitize(draft.UserName)
	if userName == "" {
		userName = name
	}

	query := `
		INSERT INTO messages (name, email, subject, body, user_role, user_email, user_name, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING ` + messageColumns

	message, err := scanMessage(db.QueryRowContext(ctx, query,
		name,
		email,
		policy.Sanitize(draft.Subject),
		policy.Sanitize(draft.Body),
		role,
		userEmail,
		userName,
		models.MessageStatusUnread,
	))
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	return message, nil
}

func GetMessage(ctx context.Context, db database.DBTX, id int64) (*models.Message, error) {
	message, err := scanMessage(db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrMessageNotFound
		}
		return nil, fmt.Errorf("get message: %w", err)
	}

	return message, nil
}

// ListMessages returns every message, newest first.
func ListMessages(ctx context.Context, db database.DBTX) ([]models.Message, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, *message)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return messages, nil
}

func MarkMessageRead(ctx context.Context, db database.DBTX, id int64) (*models.Message, error) {
	message, err := scanMessage(db.QueryRowContext(ctx, `
		UPDATE messages SET status = $2 WHERE id = $1
		RETURNING `+messageColumns, id, models.MessageStatusRead))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrMessageNotFound
		}
		return nil, fmt.Errorf("mark message read: %w", err)
	}

	return message, nil
}

// DeleteMessage removes a message. Deleting an unknown id is not an error.
func DeleteMessage(ctx context.Context, db database.DBTX, id int64) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

func CountUnreadMessages(ctx context.Context, db database.DBTX) (int, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE status = $1`, models.MessageStatusUnread).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread messages: %w", err)
	}
	return count, nil
}
