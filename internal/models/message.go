package models

import "time"

const (
	MessageStatusUnread = "unread"
	MessageStatusRead   = "read"
)

type Message struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Subject   string    `json:"subject"`
	Body      string    `json:"message"`
	UserRole  string    `json:"user_role"`
	UserEmail string    `json:"user_email"`
	UserName  string    `json:"user_name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
