package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/safar/gallery-store/internal/models"
)

var ErrSessionNotFound = errors.New("session not found")

// Session is what a bearer token resolves to. It carries a copy of the
// account fields needed for authorization, kept current by Sync.
type Session struct {
	Token     string    `json:"token"`
	AccountID int64     `json:"account_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store keeps sessions in Redis. Each session lives under its own key with a
// TTL, and a per-account set indexes the tokens so they can be revoked together.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func sessionKey(token string) string {
	return "gallery:session:" + token
}

func accountKey(accountID int64) string {
	return "gallery:account-sessions:" + strconv.FormatInt(accountID, 10)
}

func (s *Store) Create(ctx context.Context, account *models.Account) (*Session, error) {
	now := time.Now().UTC()
	sess := &Session{
		Token:     uuid.New().String(),
		AccountID: account.ID,
		Email:     account.Email,
		Name:      account.Name,
		Role:      account.Role,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("marshaling session: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(sess.Token), data, s.ttl)
		pipe.SAdd(ctx, accountKey(account.ID), sess.Token)
		pipe.Expire(ctx, accountKey(account.ID), s.ttl)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}

	return sess, nil
}

func (s *Store) Get(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}

	data, err := s.client.Get(ctx, sessionKey(token)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("getting session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("unmarshaling session: %w", err)
	}
	return &sess, nil
}

// Delete ends a single session. Unknown tokens are ignored.
func (s *Store) Delete(ctx context.Context, token string) error {
	sess, err := s.Get(ctx, token)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil
		}
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(token))
		pipe.SRem(ctx, accountKey(sess.AccountID), token)
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// RevokeAccount ends every session of the account.
func (s *Store) RevokeAccount(ctx context.Context, accountID int64) error {
	tokens, err := s.client.SMembers(ctx, accountKey(accountID)).Result()
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}

	keys := make([]string, 0, len(tokens)+1)
	for _, token := range tokens {
		keys = append(keys, sessionKey(token))
	}
	keys = append(keys, accountKey(accountID))

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("revoking sessions: %w", err)
	}
	return nil
}

// Sync rewrites the live sessions of an account after it changed, keeping
// their expiry. Sessions of an account that is no longer active are revoked.
func (s *Store) Sync(ctx context.Context, account *models.Account) error {
	if !account.IsActive() {
		return s.RevokeAccount(ctx, account.ID)
	}

	tokens, err := s.client.SMembers(ctx, accountKey(account.ID)).Result()
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}

	for _, token := range tokens {
		sess, err := s.Get(ctx, token)
		if errors.Is(err, ErrSessionNotFound) {
			if err := s.forget(ctx, account.ID, token); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}

		sess.Email = account.Email
		sess.Name = account.Name
		sess.Role = account.Role

		data, err := json.Marshal(sess)
		if err != nil {
			return fmt.Errorf("marshaling session: %w", err)
		}
		// XX: a session ended since the read must stay gone.
		saved, err := s.client.SetXX(ctx, sessionKey(token), data, redis.KeepTTL).Result()
		if err != nil {
			return fmt.Errorf("saving session: %w", err)
		}
		if !saved {
			if err := s.forget(ctx, account.ID, token); err != nil {
				return err
			}
		}
	}

	return nil
}

func (s *Store) forget(ctx context.Context, accountID int64, token string) error {
	if err := s.client.SRem(ctx, accountKey(accountID), token).Err(); err != nil {
		return fmt.Errorf("unindexing session: %w", err)
	}
	return nil
}
