package memory

import (
	"context"

	"github.com/xenking/storefront/internal/domain/promotion"
)

var _ promotion.Repository = (*promotionRepo)(nil)

type promotionRepo struct{ tables }

func (r *promotionRepo) FindByCode(_ context.Context, code string) (*promotion.Promotion, error) {
	var p promotion.Promotion
	err := r.with(func(d *data) error {
		id, ok := d.promoCodes[promotion.NormalizeCode(code)]
		if !ok {
			return promotion.ErrNotFound
		}
		p = clonePromotion(d.promotions[id])
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *promotionRepo) GetByID(_ context.Context, id string) (*promotion.Promotion, error) {
	var p promotion.Promotion
	err := r.with(func(d *data) error {
		stored, ok := d.promotions[id]
		if !ok {
			return promotion.ErrNotFound
		}
		p = clonePromotion(stored)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *promotionRepo) Create(_ context.Context, p *promotion.Promotion) error {
	return r.with(func(d *data) error {
		code := promotion.NormalizeCode(p.Code)
		if _, ok := d.promoCodes[code]; ok {
			return promotion.ErrDuplicateCode
		}
		stored := clonePromotion(*p)
		stored.Code = code
		d.promotions[stored.ID] = stored
		d.promoCodes[code] = stored.ID
		return nil
	})
}

func (r *promotionRepo) UpdateScope(_ context.Context, id string, scope promotion.Scope, categoryIDs, productIDs []string) error {
	return r.with(func(d *data) error {
		p, ok := d.promotions[id]
		if !ok {
			return promotion.ErrNotFound
		}
		p.Scope = scope
		p.CategoryIDs = uniqueSorted(categoryIDs)
		p.ProductIDs = uniqueSorted(productIDs)
		d.promotions[id] = clonePromotion(p)
		return nil
	})
}

func (r *promotionRepo) IncrementUses(_ context.Context, id string) error {
	return r.with(func(d *data) error {
		p, ok := d.promotions[id]
		if !ok {
			return promotion.ErrNotFound
		}
		if p.Exhausted() {
			return promotion.ErrUsageLimitReached
		}
		p.UsesCount++
		d.promotions[id] = p
		return nil
	})
}
