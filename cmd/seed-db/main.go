// Command seed-db prepares a database for local runs: it applies migrations,
// upserts the product catalog and mints bearer tokens for test callers.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/xenking/scent-shop/internal/catalog"
	"github.com/xenking/scent-shop/internal/domain/auth"
	"github.com/xenking/scent-shop/internal/storage/postgres"
)

func main() {
	lg, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx = zctx.Base(ctx, lg)

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		lg.Error("Seed failed", zap.Error(err))
		cancel()
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "seed-db",
		Usage: "prepare the scent-shop database",
		Commands: []*cli.Command{
			{
				Name:  "catalog",
				Usage: "apply migrations and upsert products from a JSON catalog",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "database-url",
						Usage:    "PostgreSQL connection URL",
						EnvVars:  []string{"SHOP_DATABASE_URL", "DATABASE_URL"},
						Required: true,
					},
					&cli.PathFlag{
						Name:  "products-file",
						Usage: "catalog to load (.json or .json.gz)",
						Value: "db/seed/products.json",
					},
				},
				Action: func(c *cli.Context) error {
					return seedCatalog(c.Context, c.String("database-url"), c.Path("products-file"))
				},
			},
			{
				Name:  "token",
				Usage: "print a signed bearer token for a user",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "secret",
						Usage:    "HS256 signing secret shared with the API server",
						EnvVars:  []string{"SHOP_AUTH_SECRET"},
						Required: true,
					},
					&cli.StringFlag{
						Name:    "issuer",
						Value:   "scent-shop",
						EnvVars: []string{"SHOP_AUTH_ISSUER"},
					},
					&cli.StringFlag{Name: "user", Usage: "user id placed in the subject", Required: true},
					&cli.StringFlag{Name: "role", Usage: "customer or admin", Value: string(auth.RoleCustomer)},
					&cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour},
				},
				Action: func(c *cli.Context) error {
					tok, err := issueToken(c.String("secret"), c.String("issuer"), c.Duration("ttl"),
						auth.Identity{UserID: c.String("user"), Role: auth.Role(c.String("role"))})
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(c.App.Writer, tok)
					return err
				},
			},
		},
	}
}

func seedCatalog(ctx context.Context, databaseURL, productsFile string) error {
	lg := zctx.From(ctx)

	products, err := catalog.Load(productsFile)
	if err != nil {
		return err
	}

	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, databaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	repo := postgres.NewProductRepository(pool)
	for _, p := range products {
		if err := repo.Upsert(ctx, p); err != nil {
			return err
		}
		lg.Debug("Upserted product", zap.String("id", p.ID), zap.Int("stock", p.Stock))
	}
	lg.Info("Catalog seeded", zap.String("file", productsFile), zap.Int("products", len(products)))
	return nil
}

func issueToken(secret, issuer string, ttl time.Duration, id auth.Identity) (string, error) {
	tokens, err := auth.NewTokens(auth.TokenConfig{Secret: []byte(secret), Issuer: issuer, TTL: ttl})
	if err != nil {
		return "", err
	}
	tok, err := tokens.Issue(id)
	if err != nil {
		return "", errors.Wrap(err, "issue token")
	}
	return tok, nil
}
