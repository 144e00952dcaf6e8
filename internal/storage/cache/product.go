// Package cache provides a redis read-through cache for catalog reads.
package cache

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
)

const (
	listKey       = "products:active"
	notFoundValue = "notfound"
)

var (
	_ product.Repository  = (*ProductRepository)(nil)
	_ order.StockObserver = (*ProductRepository)(nil)
)

func productKey(id string) string { return "product:" + id }

// ProductRepository caches product lookups and the active catalog listing.
// Redis failures are logged and fall through to the wrapped repository.
// Locking reads always go to the wrapped repository.
type ProductRepository struct {
	next        product.Repository
	rdb         redis.UniversalClient
	ttl         time.Duration
	notFoundTTL time.Duration
}

// NewProductRepository wraps next with a cache stored in rdb.
func NewProductRepository(next product.Repository, rdb redis.UniversalClient, ttl time.Duration) *ProductRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ProductRepository{
		next:        next,
		rdb:         rdb,
		ttl:         ttl,
		notFoundTTL: time.Minute,
	}
}

// GetByID serves a product from cache, caching misses of unknown IDs briefly.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	lg := zctx.From(ctx)
	key := productKey(id)

	data, err := r.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if string(data) == notFoundValue {
			return nil, product.ErrNotFound
		}
		p, decodeErr := decodeProduct(jx.DecodeBytes(data))
		if decodeErr == nil {
			return &p, nil
		}
		lg.Warn("Decode cached product", zap.String("key", key), zap.Error(decodeErr))
	case errors.Is(err, redis.Nil):
	default:
		lg.Warn("Redis get failed, using database", zap.String("key", key), zap.Error(err))
	}

	p, err := r.next.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			r.set(ctx, key, []byte(notFoundValue), r.notFoundTTL)
		}
		return nil, err
	}

	e := &jx.Encoder{}
	encodeProduct(e, p)
	r.set(ctx, key, e.Bytes(), r.ttl)
	return p, nil
}

// List serves the active catalog from cache.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	lg := zctx.From(ctx)

	data, err := r.rdb.Get(ctx, listKey).Bytes()
	switch {
	case err == nil:
		var products []product.Product
		decodeErr := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
			p, err := decodeProduct(d)
			if err != nil {
				return err
			}
			products = append(products, p)
			return nil
		})
		if decodeErr == nil {
			return products, nil
		}
		lg.Warn("Decode cached catalog", zap.Error(decodeErr))
	case errors.Is(err, redis.Nil):
	default:
		lg.Warn("Redis get failed, using database", zap.String("key", listKey), zap.Error(err))
	}

	products, err := r.next.List(ctx)
	if err != nil {
		return nil, err
	}

	e := &jx.Encoder{}
	e.ArrStart()
	for i := range products {
		encodeProduct(e, &products[i])
	}
	e.ArrEnd()
	r.set(ctx, listKey, e.Bytes(), r.ttl)
	return products, nil
}

func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	return r.next.GetByIDs(ctx, ids)
}

func (r *ProductRepository) LockByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	return r.next.LockByIDs(ctx, ids)
}

// AdjustStock writes through and drops the cached entries of the product.
func (r *ProductRepository) AdjustStock(ctx context.Context, id string, delta int) (*product.Product, error) {
	p, err := r.next.AdjustStock(ctx, id, delta)
	if err != nil {
		return nil, err
	}
	r.StockChanged(ctx, []string{id})
	return p, nil
}

// StockChanged implements order.StockObserver.
func (r *ProductRepository) StockChanged(ctx context.Context, productIDs []string) {
	keys := make([]string, 0, len(productIDs)+1)
	for _, id := range productIDs {
		keys = append(keys, productKey(id))
	}
	keys = append(keys, listKey)

	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		zctx.From(ctx).Warn("Invalidate product cache", zap.Strings("keys", keys), zap.Error(err))
	}
}

func (r *ProductRepository) set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := r.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		zctx.From(ctx).Warn("Redis set failed", zap.String("key", key), zap.Error(err))
	}
}

func encodeProduct(e *jx.Encoder, p *product.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("category_id")
	e.Str(p.CategoryID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("price")
	e.Str(p.Price.String())
	e.FieldStart("stock")
	e.Int(p.Stock)
	e.FieldStart("active")
	e.Bool(p.Active)
	e.FieldStart("created_at")
	e.Str(p.CreatedAt.Format(time.RFC3339Nano))
	e.FieldStart("updated_at")
	e.Str(p.UpdatedAt.Format(time.RFC3339Nano))
	e.ObjEnd()
}

func decodeProduct(d *jx.Decoder) (product.Product, error) {
	var p product.Product
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			p.ID, err = d.Str()
		case "category_id":
			p.CategoryID, err = d.Str()
		case "name":
			p.Name, err = d.Str()
		case "price":
			var s string
			if s, err = d.Str(); err == nil {
				p.Price, err = decimal.NewFromString(s)
			}
		case "stock":
			p.Stock, err = d.Int()
		case "active":
			p.Active, err = d.Bool()
		case "created_at":
			p.CreatedAt, err = decodeTime(d)
		case "updated_at":
			p.UpdatedAt, err = decodeTime(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return p, err
}

func decodeTime(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, s)
}
