package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/emart-orders/internal/domain/account"
	"github.com/xenking/emart-orders/internal/domain/auth"
	"github.com/xenking/emart-orders/internal/domain/coupon"
	"github.com/xenking/emart-orders/internal/domain/product"
	"github.com/xenking/emart-orders/internal/handler"
	"github.com/xenking/emart-orders/internal/repository"
)

//go:embed products.json
var defaultProducts []byte

const shopID = "shop-dhaka-fashion"

type productJSON struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	Price      decimal.Decimal     `json:"price"`
	OfferPrice decimal.NullDecimal `json:"offerPrice"`
	Stock      int                 `json:"stock"`
	Colors     []string            `json:"colors"`
}

var users = []account.User{
	{ID: "user-admin", Name: "Admin", Email: "admin@emart.local", Role: auth.RoleAdmin, IsActive: true},
	{ID: "user-customer", Name: "Rahim Uddin", Email: "rahim@emart.local", Role: auth.RoleUser, IsActive: true},
	{ID: "user-vendor", Name: "Karim Fashion", Email: "karim@emart.local", Role: auth.RoleUser, IsActive: true, HasShop: true},
	{ID: "user-agent", Name: "Delivery Agent", Email: "agent@emart.local", Role: auth.RoleAgent, IsActive: true},
}

func main() {
	var (
		databaseURL  string
		productsFile string
		jwtSecret    string
		jwtIssuer    string
		tokenTTL     time.Duration
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "", "path to products JSON file (defaults to the built-in catalog)")
	flag.StringVar(&jwtSecret, "jwt-secret", "", "HMAC secret used to print dev tokens (or EMART_JWT_SECRET env)")
	flag.StringVar(&jwtIssuer, "jwt-issuer", "emart", "issuer of the printed dev tokens")
	flag.DurationVar(&tokenTTL, "token-ttl", 24*time.Hour, "lifetime of the printed dev tokens")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if jwtSecret == "" {
		jwtSecret = os.Getenv("EMART_JWT_SECRET")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("seed completed successfully")

	if jwtSecret == "" {
		slog.Warn("no JWT secret given, skipping dev tokens")
		return
	}
	if err := printTokens(handler.NewAuthenticator(jwtSecret, jwtIssuer), tokenTTL); err != nil {
		slog.Error("sign tokens", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, databaseURL, productsFile string) error {
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

	// One transaction so a half-seeded catalog never references a missing shop.
	seeder := repository.NewSeeder(pool)
	return repository.NewTransactor(pool).InTx(ctx, func(ctx context.Context) error {
		if err := seedAccounts(ctx, seeder); err != nil {
			return errors.Wrap(err, "seed accounts")
		}
		if err := seedProducts(ctx, seeder, productsFile); err != nil {
			return errors.Wrap(err, "seed products")
		}
		if err := seedCoupons(ctx, seeder); err != nil {
			return errors.Wrap(err, "seed coupons")
		}
		return nil
	})
}

func seedAccounts(ctx context.Context, seeder *repository.Seeder) error {
	for _, u := range users {
		if err := seeder.UpsertUser(ctx, u); err != nil {
			return err
		}
		slog.Info("upserted user", slog.String("id", u.ID), slog.String("role", string(u.Role)))
	}

	if err := seeder.UpsertShop(ctx, account.Shop{
		ID:       shopID,
		OwnerID:  "user-vendor",
		Name:     "Dhaka Fashion House",
		IsActive: true,
	}); err != nil {
		return err
	}
	slog.Info("upserted shop", slog.String("id", shopID))
	return nil
}

func seedProducts(ctx context.Context, seeder *repository.Seeder, productsFile string) error {
	data := defaultProducts
	if productsFile != "" {
		slog.Info("reading products file", slog.String("path", productsFile))

		var err error
		if data, err = os.ReadFile(productsFile); err != nil {
			return errors.Wrap(err, "read products file")
		}
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if err := seeder.UpsertProduct(ctx, product.Product{
			ID:              p.ID,
			ShopID:          shopID,
			Name:            p.Name,
			Price:           p.Price,
			OfferPrice:      p.OfferPrice,
			Stock:           p.Stock,
			IsActive:        true,
			AvailableColors: p.Colors,
		}); err != nil {
			return err
		}
		slog.Info("upserted product", slog.String("id", p.ID), slog.Int("stock", p.Stock))
	}
	return nil
}

func seedCoupons(ctx context.Context, seeder *repository.Seeder) error {
	now := time.Now().UTC().Truncate(24 * time.Hour)

	rules := []coupon.Rule{
		{
			ID:             "coupon-save20",
			Code:           "SAVE20",
			DiscountType:   coupon.DiscountPercentage,
			Value:          decimal.NewFromInt(20),
			MaxDiscount:    decimal.NewNullDecimal(decimal.NewFromInt(500)),
			StartDate:      now.AddDate(0, 0, -1),
			EndDate:        now.AddDate(0, 3, 0),
			MinOrderAmount: decimal.NewFromInt(1000),
			IsActive:       true,
		},
		{
			ID:             "coupon-flat100",
			Code:           "FLAT100",
			ShopID:         shopID,
			DiscountType:   coupon.DiscountFlat,
			Value:          decimal.NewFromInt(100),
			StartDate:      now.AddDate(0, 0, -1),
			EndDate:        now.AddDate(0, 1, 0),
			MinOrderAmount: decimal.Zero,
			IsActive:       true,
		},
		{
			ID:             "coupon-expired",
			Code:           "EID2020",
			DiscountType:   coupon.DiscountPercentage,
			Value:          decimal.NewFromInt(30),
			StartDate:      time.Date(2020, 5, 1, 0, 0, 0, 0, time.UTC),
			EndDate:        time.Date(2020, 5, 31, 0, 0, 0, 0, time.UTC),
			MinOrderAmount: decimal.Zero,
			IsActive:       true,
		},
	}

	if err := seeder.UpsertCoupons(ctx, rules); err != nil {
		return err
	}
	for _, c := range rules {
		slog.Info("upserted coupon", slog.String("code", c.Code), slog.String("type", string(c.DiscountType)))
	}
	return nil
}

func printTokens(a *handler.Authenticator, ttl time.Duration) error {
	for _, u := range users {
		token, err := a.Sign(auth.Principal{UserID: u.ID, Email: u.Email, Role: u.Role}, ttl)
		if err != nil {
			return errors.Wrapf(err, "sign token for %s", u.ID)
		}
		fmt.Printf("%-14s %s\n", u.ID, token)
	}
	return nil
}
