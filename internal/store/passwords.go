package store

import (
	"fmt"

	"github.com/safar/gallery-store/internal/models"
	"golang.org/x/crypto/bcrypt"
)

var passwordCost = bcrypt.DefaultCost

// maxPasswordBytes is bcrypt's input limit, counted in bytes, not runes.
const maxPasswordBytes = 72

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// VerifyPassword reports whether password matches the account's stored hash.
func VerifyPassword(account *models.Account, password string) bool {
	if account == nil || account.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) == nil
}
