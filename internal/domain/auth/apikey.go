package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"slices"

	"github.com/xenking/storefront/internal/domain/apperr"
)

// Scopes granted to admin API keys.
const (
	ScopeManagePromotions = "promotions:write"
	ScopeManageOrders     = "orders:write"
	ScopeManageCatalog    = "catalog:write"
)

// ErrKeyNotFound is returned when no active API key matches a hash.
var ErrKeyNotFound = apperr.New(apperr.KindNotFound, "api key not found")

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// HasScope reports whether the key grants scope.
func (k *APIKeyInfo) HasScope(scope string) bool {
	return slices.Contains(k.Scopes, scope)
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

// HashAPIKey returns the hex HMAC-SHA256 of key under pepper, the form
// stored in the api_keys table.
func HashAPIKey(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyAPIKey hashes key, looks it up and compares the stored hash in
// constant time.
func VerifyAPIKey(ctx context.Context, repo Repository, pepper []byte, key string) (*APIKeyInfo, error) {
	if key == "" {
		return nil, ErrKeyNotFound
	}
	computed := HashAPIKey(pepper, key)
	info, err := repo.FindByHash(ctx, computed)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(computed), []byte(info.KeyHash)) != 1 {
		return nil, ErrKeyNotFound
	}
	return info, nil
}
