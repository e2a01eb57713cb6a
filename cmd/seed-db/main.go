package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-orders/internal/domain/auth"
	"github.com/xenking/kart-orders/internal/domain/product"
	"github.com/xenking/kart-orders/internal/domain/promo"
	"github.com/xenking/kart-orders/internal/repository"
)

type productJSON struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
	Active *bool           `json:"active"`
}

// seedPromos are created once; existing codes are left untouched so that a
// consumed promo stays consumed across reseeds.
var seedPromos = []struct {
	code    string
	percent int
}{
	{code: "WELCOME10", percent: 10},
	{code: "HAPPYHOURS", percent: 18},
	{code: "HALFOFF", percent: 50},
}

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKey       string
		apiKeyPepper string
		scopes       string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or KART_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or KART_API_KEY_PEPPER env)")
	flag.StringVar(&scopes, "scopes", auth.ScopeCart+","+auth.ScopeAdmin, "comma-separated scopes granted to the seeded key")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("KART_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or KART_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("KART_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	key := auth.APIKeyInfo{
		ID:      "default",
		KeyHash: auth.HashKey(apiKey, []byte(apiKeyPepper)),
		Name:    "Default key",
		Scopes:  splitScopes(scopes),
	}
	if err := run(ctx, databaseURL, productsFile, key); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile string, key auth.APIKeyInfo) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, repository.NewProductRepository(pool), productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedPromoCodes(ctx, repository.NewPromoRepository(pool)); err != nil {
		return errors.Wrap(err, "seed promos")
	}
	if err := repository.NewAPIKeyRepository(pool).Upsert(ctx, key); err != nil {
		return errors.Wrap(err, "seed api key")
	}
	slog.Info("upserted API key", slog.String("id", key.ID), slog.Any("scopes", key.Scopes))

	return nil
}

func seedProducts(ctx context.Context, products *repository.ProductRepository, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var items []productJSON
	if err := json.Unmarshal(data, &items); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(items)))

	for _, p := range items {
		if p.ID == "" || p.Name == "" || p.Price.IsNegative() {
			return errors.Errorf("invalid product %+v", p)
		}
		active := p.Active == nil || *p.Active
		if err := products.Upsert(ctx, product.Product{
			ID:     p.ID,
			Name:   p.Name,
			Price:  p.Price.Round(2),
			Active: active,
		}); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name), slog.Bool("active", active))
	}

	return nil
}

func seedPromoCodes(ctx context.Context, promos *repository.PromoRepository) error {
	now := time.Now().UTC()
	batch := make([]promo.Promo, 0, len(seedPromos))
	for _, s := range seedPromos {
		batch = append(batch, promo.Promo{
			ID:              uuid.NewString(),
			Code:            s.code,
			DiscountPercent: s.percent,
			Available:       true,
			CreatedAt:       now,
		})
	}

	inserted, err := promos.InsertMany(ctx, batch)
	if err != nil {
		return err
	}
	slog.Info("seeded promos", slog.Int64("inserted", inserted), slog.Int("skipped", len(batch)-int(inserted)))
	return nil
}

func splitScopes(s string) []string {
	var out []string
	for _, scope := range strings.Split(s, ",") {
		if scope = strings.TrimSpace(scope); scope != "" {
			out = append(out, scope)
		}
	}
	return out
}
