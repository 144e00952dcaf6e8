// Package memory implements every storage interface with in-process maps.
// It exists for tests: transactions are serialized and commit a private
// copy of the whole data set, so a failed transaction leaves no trace.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/promotion"
)

var _ order.Transactor = (*Store)(nil)

type storedItem struct {
	cart.Item
	seq uint64
}

type storedOrder struct {
	order.Order
	seq uint64
}

type data struct {
	seq        uint64
	products   map[string]product.Product
	carts      map[string]cart.Cart
	cartByUser map[string]string
	items      map[string]storedItem
	promotions map[string]promotion.Promotion
	promoCodes map[string]string
	orders     map[string]storedOrder
	apikeys    map[string]auth.APIKeyInfo
}

func newData() *data {
	return &data{
		products:   make(map[string]product.Product),
		carts:      make(map[string]cart.Cart),
		cartByUser: make(map[string]string),
		items:      make(map[string]storedItem),
		promotions: make(map[string]promotion.Promotion),
		promoCodes: make(map[string]string),
		orders:     make(map[string]storedOrder),
		apikeys:    make(map[string]auth.APIKeyInfo),
	}
}

func (d *data) next() uint64 {
	d.seq++
	return d.seq
}

func (d *data) clone() *data {
	c := &data{
		seq:        d.seq,
		products:   maps.Clone(d.products),
		carts:      maps.Clone(d.carts),
		cartByUser: maps.Clone(d.cartByUser),
		items:      maps.Clone(d.items),
		promotions: make(map[string]promotion.Promotion, len(d.promotions)),
		promoCodes: maps.Clone(d.promoCodes),
		orders:     make(map[string]storedOrder, len(d.orders)),
		apikeys:    maps.Clone(d.apikeys),
	}
	for id, p := range d.promotions {
		c.promotions[id] = clonePromotion(p)
	}
	for id, o := range d.orders {
		o.Items = slices.Clone(o.Items)
		c.orders[id] = o
	}
	return c
}

// Store is an in-memory implementation of the product, cart, promotion,
// order and API key repositories plus order.Transactor.
type Store struct {
	mu  sync.Mutex
	d   *data
	now func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{d: newData(), now: time.Now}
}

// InTx runs fn against a private copy of the data set and publishes the copy
// only if fn succeeds and ctx is still live. Store methods must not be
// called from inside fn; use the repositories of the given Tx instead.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.d.clone()
	if err := fn(ctx, &txView{d: work, now: s.now}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.d = work
	return nil
}

// Products returns the product repository.
func (s *Store) Products() product.Repository { return &productRepo{tables{s: s}} }

// Carts returns the cart repository.
func (s *Store) Carts() cart.Repository { return &cartRepo{tables{s: s}} }

// Promotions returns the promotion repository.
func (s *Store) Promotions() promotion.Repository { return &promotionRepo{tables{s: s}} }

// Orders returns the order repository.
func (s *Store) Orders() order.Repository { return &orderRepo{tables{s: s}} }

// APIKeys returns the API key repository.
func (s *Store) APIKeys() auth.Repository { return &apiKeyRepo{tables{s: s}} }

// PutProduct inserts or replaces a product.
func (s *Store) PutProduct(p product.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d.products[p.ID] = p
}

// PutPromotion inserts or replaces a promotion.
func (s *Store) PutPromotion(p promotion.Promotion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Code = promotion.NormalizeCode(p.Code)
	s.d.promotions[p.ID] = clonePromotion(p)
	s.d.promoCodes[p.Code] = p.ID
}

// PutAPIKey inserts or replaces an API key.
func (s *Store) PutAPIKey(k auth.APIKeyInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d.apikeys[k.KeyHash] = k
}

type txView struct {
	d   *data
	now func() time.Time
}

func (t *txView) Products() product.Repository {
	return &productRepo{tables{d: t.d, now: t.now}}
}

func (t *txView) Carts() cart.Repository { return &cartRepo{tables{d: t.d, now: t.now}} }

func (t *txView) Promotions() promotion.Repository {
	return &promotionRepo{tables{d: t.d, now: t.now}}
}

func (t *txView) Orders() order.Repository { return &orderRepo{tables{d: t.d, now: t.now}} }

// tables gives a repository access to the data set: either the copy owned
// by a transaction or the store's live data under its mutex.
type tables struct {
	s   *Store
	d   *data
	now func() time.Time
}

func (t tables) with(fn func(d *data) error) error {
	if t.d != nil {
		return fn(t.d)
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return fn(t.s.d)
}

func (t tables) clock() time.Time {
	if t.now != nil {
		return t.now()
	}
	return t.s.now()
}

func clonePromotion(p promotion.Promotion) promotion.Promotion {
	p.CategoryIDs = slices.Clone(p.CategoryIDs)
	p.ProductIDs = slices.Clone(p.ProductIDs)
	if p.MinPurchase != nil {
		v := *p.MinPurchase
		p.MinPurchase = &v
	}
	if p.MaxUses != nil {
		v := *p.MaxUses
		p.MaxUses = &v
	}
	return p
}
