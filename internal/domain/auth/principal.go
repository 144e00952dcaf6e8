package auth

import "context"

type userKey struct{}

type apiKeyKey struct{}

// WithUserID returns a context carrying the authenticated customer ID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserIDFromContext returns the authenticated customer ID, if any.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userKey{}).(string)
	return id, ok && id != ""
}

// WithAPIKey returns a context carrying the authenticated admin API key.
func WithAPIKey(ctx context.Context, key *APIKeyInfo) context.Context {
	return context.WithValue(ctx, apiKeyKey{}, key)
}

// APIKeyFromContext returns the authenticated admin API key, if any.
func APIKeyFromContext(ctx context.Context) (*APIKeyInfo, bool) {
	k, ok := ctx.Value(apiKeyKey{}).(*APIKeyInfo)
	return k, ok && k != nil
}
