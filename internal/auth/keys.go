// Package auth resolves API credentials into the actor identity the engines
// consume. The permission matrix itself lives outside this service; handlers
// only gate on role membership.
package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/vantage-erp/vantage-erp/internal/shared"
)

// ErrInvalidCredentials indicates a missing or unverifiable API key.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// Key is one issued API credential bound to an actor.
type Key struct {
	ID         string
	SecretHash []byte
	ActorID    uuid.UUID
	ActorEmail string
	Roles      []string
	Disabled   bool
}

// KeyStore looks up credentials by key id.
type KeyStore interface {
	Lookup(ctx context.Context, keyID string) (Key, error)
}

// PGKeyStore reads api_keys from PostgreSQL.
type PGKeyStore struct {
	pool *pgxpool.Pool
}

// NewPGKeyStore constructs the store.
func NewPGKeyStore(pool *pgxpool.Pool) *PGKeyStore {
	return &PGKeyStore{pool: pool}
}

// Lookup returns the key record for the given id.
func (s *PGKeyStore) Lookup(ctx context.Context, keyID string) (Key, error) {
	var k Key
	var roles string
	err := s.pool.QueryRow(ctx, `SELECT key_id, secret_hash, actor_id, actor_email, roles, disabled
FROM api_keys WHERE key_id=$1`, keyID).Scan(&k.ID, &k.SecretHash, &k.ActorID, &k.ActorEmail, &roles, &k.Disabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Key{}, ErrInvalidCredentials
		}
		return Key{}, err
	}
	for _, r := range strings.Split(roles, ",") {
		if r = strings.TrimSpace(r); r != "" {
			k.Roles = append(k.Roles, r)
		}
	}
	return k, nil
}

// Verify checks the presented secret against the stored bcrypt hash and
// returns the identity bound to the key.
func Verify(k Key, secret string) (shared.Identity, error) {
	if k.Disabled {
		return shared.Identity{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(k.SecretHash, []byte(secret)); err != nil {
		return shared.Identity{}, ErrInvalidCredentials
	}
	return shared.Identity{ActorID: k.ActorID, Email: k.ActorEmail, Roles: k.Roles}, nil
}
