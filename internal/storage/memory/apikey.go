package memory

import (
	"context"
	"slices"

	"github.com/xenking/storefront/internal/domain/auth"
)

var _ auth.Repository = (*apiKeyRepo)(nil)

type apiKeyRepo struct{ tables }

func (r *apiKeyRepo) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	var k auth.APIKeyInfo
	err := r.with(func(d *data) error {
		stored, ok := d.apikeys[hash]
		if !ok {
			return auth.ErrKeyNotFound
		}
		k = stored
		k.Scopes = slices.Clone(stored.Scopes)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &k, nil
}
