package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/promotion"
	"github.com/xenking/storefront/internal/storage/cache"
	"github.com/xenking/storefront/internal/storage/postgres"
)

type catalogJSON struct {
	Categories []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"categories"`
	Products []struct {
		ID         string          `json:"id"`
		CategoryID string          `json:"category_id"`
		Name       string          `json:"name"`
		Price      decimal.Decimal `json:"price"`
		Stock      int             `json:"stock"`
	} `json:"products"`
	Promotions []struct {
		Code         string           `json:"code"`
		Description  string           `json:"description"`
		DiscountType string           `json:"discount_type"`
		Value        decimal.Decimal  `json:"value"`
		MinPurchase  *decimal.Decimal `json:"min_purchase"`
		MaxUses      *int             `json:"max_uses"`
		Scope        string           `json:"scope"`
		CategoryIDs  []string         `json:"category_ids"`
		ProductIDs   []string         `json:"product_ids"`
	} `json:"promotions"`
}

type options struct {
	databaseURL string
	redisAddr   string
	catalogFile string
	apiKey      string
	pepper      string
	jwtSecret   string
	jwtIssuer   string
	demoUser    string
}

func main() {
	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.redisAddr, "redis-addr", "", "Redis address of the catalog cache to invalidate (or STORE_REDIS_ADDR env)")
	flag.StringVar(&opts.catalogFile, "catalog-file", "db/seed/catalog.json", "path to catalog JSON file")
	flag.StringVar(&opts.apiKey, "api-key", "", "admin API key to seed (or STORE_SEED_API_KEY env)")
	flag.StringVar(&opts.pepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or STORE_API_KEY_PEPPER env)")
	flag.StringVar(&opts.jwtSecret, "jwt-secret", "", "secret used to print a demo customer token (or STORE_AUTH_JWT_SECRET env)")
	flag.StringVar(&opts.jwtIssuer, "jwt-issuer", "storefront", "issuer of the demo customer token")
	flag.StringVar(&opts.demoUser, "demo-user", "demo-user", "user ID of the demo customer token")
	flag.Parse()

	opts.databaseURL = orEnv(opts.databaseURL, "DATABASE_URL")
	opts.redisAddr = orEnv(opts.redisAddr, "STORE_REDIS_ADDR")
	opts.apiKey = orEnv(opts.apiKey, "STORE_SEED_API_KEY")
	opts.pepper = orEnv(opts.pepper, "STORE_API_KEY_PEPPER")
	opts.jwtSecret = orEnv(opts.jwtSecret, "STORE_AUTH_JWT_SECRET")

	if opts.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if opts.apiKey == "" {
		slog.Error("API key is required: set --api-key or STORE_SEED_API_KEY")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func orEnv(v, key string) string {
	if v != "" {
		return v
	}
	return os.Getenv(key)
}

func run(ctx context.Context, opts options) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	catalog, err := readCatalog(opts.catalogFile)
	if err != nil {
		return err
	}

	store := postgres.NewStore(pool)
	if err := seedCatalog(ctx, store, catalog); err != nil {
		return errors.Wrap(err, "seed catalog")
	}
	if opts.redisAddr != "" {
		if err := invalidateCache(ctx, store, opts.redisAddr, catalog); err != nil {
			return errors.Wrap(err, "invalidate catalog cache")
		}
	}
	if err := seedPromotions(ctx, store, catalog); err != nil {
		return errors.Wrap(err, "seed promotions")
	}
	if err := seedAPIKey(ctx, store, opts.apiKey, opts.pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	if opts.jwtSecret != "" {
		token, err := auth.NewTokens([]byte(opts.jwtSecret), opts.jwtIssuer).Issue(opts.demoUser, 24*time.Hour)
		if err != nil {
			return errors.Wrap(err, "issue demo token")
		}
		slog.Info("demo customer token", slog.String("user_id", opts.demoUser), slog.String("token", token))
	}

	return nil
}

func readCatalog(path string) (*catalogJSON, error) {
	slog.Info("reading catalog file", slog.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read catalog file")
	}

	var catalog catalogJSON
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, errors.Wrap(err, "parse catalog JSON")
	}
	return &catalog, nil
}

func seedCatalog(ctx context.Context, store *postgres.Store, catalog *catalogJSON) error {
	categories := make([]product.Category, len(catalog.Categories))
	for i, c := range catalog.Categories {
		categories[i] = product.Category{ID: c.ID, Name: c.Name}
	}
	products := make([]product.Product, len(catalog.Products))
	for i, p := range catalog.Products {
		products[i] = product.Product{
			ID:         p.ID,
			CategoryID: p.CategoryID,
			Name:       p.Name,
			Price:      p.Price,
			Stock:      p.Stock,
			Active:     true,
		}
	}

	slog.Info("upserting catalog",
		slog.Int("categories", len(categories)),
		slog.Int("products", len(products)),
	)
	return store.UpsertCatalog(ctx, categories, products)
}

// invalidateCache drops cached entries of the upserted products so the API
// server does not keep serving old prices or stock until the TTL expires.
func invalidateCache(ctx context.Context, store *postgres.Store, addr string, catalog *catalogJSON) error {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer func() { _ = rdb.Close() }()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "ping redis")
	}

	ids := make([]string, len(catalog.Products))
	for i, p := range catalog.Products {
		ids[i] = p.ID
	}
	cache.NewProductRepository(store.Products(), rdb, 0).StockChanged(ctx, ids)

	slog.Info("invalidated catalog cache", slog.Int("products", len(ids)))
	return nil
}

func seedPromotions(ctx context.Context, store *postgres.Store, catalog *catalogJSON) error {
	svc := promotion.NewService(store.Promotions(), store.Carts(), store.Products())
	now := time.Now()

	for _, p := range catalog.Promotions {
		created, err := svc.Create(ctx, promotion.Promotion{
			Code:         p.Code,
			Description:  p.Description,
			DiscountType: promotion.DiscountType(p.DiscountType),
			Value:        p.Value,
			MinPurchase:  p.MinPurchase,
			MaxUses:      p.MaxUses,
			StartsAt:     now,
			EndsAt:       now.AddDate(1, 0, 0),
			Scope:        promotion.Scope(p.Scope),
			CategoryIDs:  p.CategoryIDs,
			ProductIDs:   p.ProductIDs,
			Active:       true,
		})
		if errors.Is(err, promotion.ErrDuplicateCode) {
			slog.Info("promotion already exists", slog.String("code", p.Code))
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "create promotion %s", p.Code)
		}

		slog.Info("created promotion", slog.String("code", created.Code), slog.String("description", created.Description))
	}

	return nil
}

func seedAPIKey(ctx context.Context, store *postgres.Store, apiKey, pepper string) error {
	slog.Info("seeding admin API key")

	if err := store.CreateAPIKey(ctx, &auth.APIKeyInfo{
		ID:      "admin",
		KeyHash: auth.HashAPIKey([]byte(pepper), apiKey),
		Name:    "Seeded admin key",
		Scopes:  []string{auth.ScopeManagePromotions, auth.ScopeManageOrders, auth.ScopeManageCatalog},
	}); err != nil {
		return errors.Wrap(err, "upsert admin API key")
	}

	slog.Info("upserted API key", slog.String("id", "admin"))

	return nil
}
