package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/promotion"
)

const (
	promotionColumns = `p.id, p.code, p.description, p.discount_type, p.value, p.min_purchase,
		p.max_uses, p.uses_count, p.starts_at, p.ends_at, p.scope, p.active, p.created_at,
		ARRAY(SELECT category_id FROM promotion_categories WHERE promotion_id = p.id ORDER BY category_id),
		ARRAY(SELECT product_id FROM promotion_products WHERE promotion_id = p.id ORDER BY product_id)`

	getPromotionByCodeSQL = `SELECT ` + promotionColumns + ` FROM promotions p WHERE p.code = UPPER(TRIM($1))`

	getPromotionByIDSQL = `SELECT ` + promotionColumns + ` FROM promotions p WHERE p.id = $1`

	createPromotionSQL = `INSERT INTO promotions (id, code, description, discount_type, value,
		min_purchase, max_uses, uses_count, starts_at, ends_at, scope, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	importPromotionSQL = createPromotionSQL + ` ON CONFLICT (code) DO NOTHING`

	updatePromotionScopeSQL = `UPDATE promotions SET scope = $2 WHERE id = $1`

	deletePromotionCategoriesSQL = `DELETE FROM promotion_categories WHERE promotion_id = $1`
	deletePromotionProductsSQL   = `DELETE FROM promotion_products WHERE promotion_id = $1`

	insertPromotionCategoriesSQL = `INSERT INTO promotion_categories (promotion_id, category_id)
		SELECT $1, unnest($2::text[]) ON CONFLICT DO NOTHING`
	insertPromotionProductsSQL = `INSERT INTO promotion_products (promotion_id, product_id)
		SELECT $1, unnest($2::text[]) ON CONFLICT DO NOTHING`

	incrementPromotionUsesSQL = `UPDATE promotions SET uses_count = uses_count + 1
		WHERE id = $1 AND (max_uses IS NULL OR uses_count < max_uses)`

	promotionExistsSQL = `SELECT EXISTS (SELECT 1 FROM promotions WHERE id = $1)`
)

var _ promotion.Repository = (*PromotionRepository)(nil)

// PromotionRepository implements promotion.Repository backed by PostgreSQL.
type PromotionRepository struct {
	q querier
}

// FindByCode looks up a promotion by its code (case-insensitive).
func (r *PromotionRepository) FindByCode(ctx context.Context, code string) (*promotion.Promotion, error) {
	return r.one(ctx, getPromotionByCodeSQL, code)
}

// GetByID returns the promotion with the given ID.
func (r *PromotionRepository) GetByID(ctx context.Context, id string) (*promotion.Promotion, error) {
	return r.one(ctx, getPromotionByIDSQL, id)
}

func (r *PromotionRepository) one(ctx context.Context, sql, arg string) (*promotion.Promotion, error) {
	rows, err := r.q.Query(ctx, sql, arg)
	if err != nil {
		return nil, errors.Wrapf(err, "find promotion %q", arg)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanPromotion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promotion.ErrNotFound
		}
		return nil, errors.Wrapf(err, "find promotion %q", arg)
	}
	return &p, nil
}

// Create inserts the promotion and its scope associations together.
func (r *PromotionRepository) Create(ctx context.Context, p *promotion.Promotion) error {
	err := pgx.BeginFunc(ctx, r.q, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, createPromotionSQL, promotionArgs(p)...); err != nil {
			return err
		}
		return replaceScope(ctx, tx, p.ID, p.CategoryIDs, p.ProductIDs)
	})
	if err != nil {
		if pgCode(err) == uniqueViolation {
			return promotion.ErrDuplicateCode
		}
		return errors.Wrapf(err, "create promotion %q", p.Code)
	}
	return nil
}

// UpdateScope replaces the scope and its join rows in one transaction.
func (r *PromotionRepository) UpdateScope(ctx context.Context, id string, scope promotion.Scope, categoryIDs, productIDs []string) error {
	return pgx.BeginFunc(ctx, r.q, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, updatePromotionScopeSQL, id, string(scope))
		if err != nil {
			return errors.Wrapf(err, "update scope of promotion %q", id)
		}
		if tag.RowsAffected() == 0 {
			return promotion.ErrNotFound
		}
		if _, err := tx.Exec(ctx, deletePromotionCategoriesSQL, id); err != nil {
			return errors.Wrap(err, "delete promotion categories")
		}
		if _, err := tx.Exec(ctx, deletePromotionProductsSQL, id); err != nil {
			return errors.Wrap(err, "delete promotion products")
		}
		return replaceScope(ctx, tx, id, categoryIDs, productIDs)
	})
}

// IncrementUses spends one use if the cap still allows it.
func (r *PromotionRepository) IncrementUses(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, incrementPromotionUsesSQL, id)
	if err != nil {
		return errors.Wrapf(err, "increment uses of promotion %q", id)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.q.QueryRow(ctx, promotionExistsSQL, id).Scan(&exists); err != nil {
		return errors.Wrapf(err, "check promotion %q", id)
	}
	if !exists {
		return promotion.ErrNotFound
	}
	return promotion.ErrUsageLimitReached
}

// Import inserts scope-all promotions in a single batch, skipping codes
// that already exist. It returns the number of rows inserted.
func (r *PromotionRepository) Import(ctx context.Context, promos []promotion.Promotion) (int64, error) {
	batch := &pgx.Batch{}
	for i := range promos {
		batch.Queue(importPromotionSQL, promotionArgs(&promos[i])...)
	}

	results := r.q.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()

	var inserted int64
	for range promos {
		tag, err := results.Exec()
		if err != nil {
			return inserted, errors.Wrap(err, "import promotion")
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

func replaceScope(ctx context.Context, tx pgx.Tx, id string, categoryIDs, productIDs []string) error {
	if len(categoryIDs) > 0 {
		if _, err := tx.Exec(ctx, insertPromotionCategoriesSQL, id, categoryIDs); err != nil {
			return errors.Wrap(err, "insert promotion categories")
		}
	}
	if len(productIDs) > 0 {
		if _, err := tx.Exec(ctx, insertPromotionProductsSQL, id, productIDs); err != nil {
			return errors.Wrap(err, "insert promotion products")
		}
	}
	return nil
}

func promotionArgs(p *promotion.Promotion) []any {
	minPurchase := decimal.NullDecimal{}
	if p.MinPurchase != nil {
		minPurchase = decimal.NewNullDecimal(*p.MinPurchase)
	}
	var maxUses *int32
	if p.MaxUses != nil {
		v := int32(*p.MaxUses)
		maxUses = &v
	}
	return []any{
		p.ID, promotion.NormalizeCode(p.Code), p.Description, string(p.DiscountType), p.Value,
		minPurchase, maxUses, int32(p.UsesCount), p.StartsAt, p.EndsAt, string(p.Scope), p.Active, p.CreatedAt,
	}
}

func scanPromotion(row pgx.CollectableRow) (promotion.Promotion, error) {
	var (
		p            promotion.Promotion
		discountType string
		scope        string
		minPurchase  decimal.NullDecimal
		maxUses      *int32
		uses         int32
	)
	err := row.Scan(
		&p.ID, &p.Code, &p.Description, &discountType, &p.Value, &minPurchase,
		&maxUses, &uses, &p.StartsAt, &p.EndsAt, &scope, &p.Active, &p.CreatedAt,
		&p.CategoryIDs, &p.ProductIDs,
	)
	p.DiscountType = promotion.DiscountType(discountType)
	p.Scope = promotion.Scope(scope)
	p.UsesCount = int(uses)
	if minPurchase.Valid {
		v := minPurchase.Decimal
		p.MinPurchase = &v
	}
	if maxUses != nil {
		v := int(*maxUses)
		p.MaxUses = &v
	}
	return p, err
}
