package memory

import (
	"context"
	"slices"
	"strings"

	"github.com/xenking/storefront/internal/domain/product"
)

var _ product.Repository = (*productRepo)(nil)

type productRepo struct{ tables }

func (r *productRepo) List(_ context.Context) ([]product.Product, error) {
	var out []product.Product
	err := r.with(func(d *data) error {
		for _, p := range d.products {
			if p.Active {
				out = append(out, p)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b product.Product) int { return strings.Compare(a.ID, b.ID) })
	return out, err
}

func (r *productRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	var p product.Product
	err := r.with(func(d *data) error {
		var ok bool
		if p, ok = d.products[id]; !ok {
			return product.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *productRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	err := r.with(func(d *data) error {
		for _, id := range uniqueSorted(ids) {
			if p, ok := d.products[id]; ok {
				out = append(out, p)
			}
		}
		return nil
	})
	return out, err
}

// LockByIDs is GetByIDs: transactions already run one at a time.
func (r *productRepo) LockByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	return r.GetByIDs(ctx, ids)
}

func (r *productRepo) AdjustStock(_ context.Context, id string, delta int) (*product.Product, error) {
	var p product.Product
	err := r.with(func(d *data) error {
		var ok bool
		if p, ok = d.products[id]; !ok {
			return product.ErrNotFound
		}
		if p.Stock+delta < 0 {
			return product.ErrNegativeStock
		}
		if p.Stock+delta > product.MaxStock {
			return product.ErrStockOverflow
		}
		p.Stock += delta
		p.UpdatedAt = r.clock()
		d.products[id] = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func uniqueSorted(ids []string) []string {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
