package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/safar/gallery-store/internal/database"
	"github.com/safar/gallery-store/internal/models"
	"github.com/safar/gallery-store/internal/policy"
)

var messageCols = []string{
	"id", "name", "email", "subject", "body", "user_role", "user_email", "user_name", "status", "created_at",
}

func messageRows(id int64, status string) *sqlmock.Rows {
	return sqlmock.NewRows(messageCols).AddRow(
		id, "Ana", "ana@x.com", "Hello", "Nice work", "visitor", "ana@x.com", "Ana", status, time.Now(),
	)
}

func TestCreateMessageSanitizesAndDefaults(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO messages`).
		WithArgs("Ana", "ana@x.com", "Hello", "Nice work", "visitor", "ana@x.com", "Ana", models.MessageStatusUnread).
		WillReturnRows(messageRows(1, models.MessageStatusUnread))

	msg, err := CreateMessage(context.Background(), db, MessageDraft{
		Name:    "<b>Ana</b>",
		Email:   "Ana@X.com",
		Subject: "Hello",
		Body:    "<script>alert(1)</script>Nice work",
	})
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if msg.Status != models.MessageStatusUnread {
		t.Errorf("expected unread, got %s", msg.Status)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateMessageKeepsSignedInSender(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO messages`).
		WithArgs("Ana", "ana@x.com", "", "Hi", models.RoleArtist, "ana@gallery.com", "Ana Rios", models.MessageStatusUnread).
		WillReturnRows(messageRows(2, models.MessageStatusUnread))

	_, err := CreateMessage(context.Background(), db, MessageDraft{
		Name:      "Ana",
		Email:     "ana@x.com",
		Body:      "Hi",
		UserRole:  models.RoleArtist,
		UserEmail: "Ana@Gallery.com",
		UserName:  "Ana Rios",
	})
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateMessageValidation(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	tests := []struct {
		name  string
		draft MessageDraft
	}{
		{"missing body", MessageDraft{Name: "Ana", Email: "ana@x.com"}},
		{"missing name", MessageDraft{Email: "ana@x.com", Body: "Hi"}},
		{"bad email", MessageDraft{Name: "Ana", Email: "nope", Body: "Hi"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := CreateMessage(context.Background(), db, tt.draft); !policy.IsViolation(err) {
				t.Errorf("expected violation, got %v", err)
			}
		})
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("invalid messages must not reach the database: %v", err)
	}
}

func TestMarkMessageRead(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	mock.ExpectQuery(`UPDATE messages SET status = \$2 WHERE id = \$1`).
		WithArgs(int64(1), models.MessageStatusRead).
		WillReturnRows(messageRows(1, models.MessageStatusRead))
	mock.ExpectQuery(`UPDATE messages`).
		WithArgs(int64(9), models.MessageStatusRead).
		WillReturnRows(sqlmock.NewRows(messageCols))

	msg, err := MarkMessageRead(context.Background(), db, 1)
	if err != nil {
		t.Fatalf("MarkMessageRead: %v", err)
	}
	if msg.Status != models.MessageStatusRead {
		t.Errorf("expected read, got %s", msg.Status)
	}

	if _, err := MarkMessageRead(context.Background(), db, 9); !errors.Is(err, database.ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
}

func TestCountUnreadMessages(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM messages WHERE status = \$1`).
		WithArgs(models.MessageStatusUnread).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := CountUnreadMessages(context.Background(), db)
	if err != nil {
		t.Fatalf("CountUnreadMessages: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 unread, got %d", count)
	}
}

func TestDeleteMessageMissingIsNotAnError(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	mock.ExpectExec(`DELETE FROM messages`).
		WithArgs(int64(77)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := DeleteMessage(context.Background(), db, 77); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}
