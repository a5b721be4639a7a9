package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/angelmondragon/scentmarket-backend/api"
	"github.com/angelmondragon/scentmarket-backend/api/routes"
	"github.com/angelmondragon/scentmarket-backend/internal/bootstrap"
	"github.com/angelmondragon/scentmarket-backend/internal/cart"
	"github.com/angelmondragon/scentmarket-backend/internal/checkout"
	"github.com/angelmondragon/scentmarket-backend/internal/orders"
	product "github.com/angelmondragon/scentmarket-backend/internal/products"
	"github.com/angelmondragon/scentmarket-backend/internal/users"
	"github.com/angelmondragon/scentmarket-backend/pkg/metrics"
	"github.com/angelmondragon/scentmarket-backend/pkg/outbox"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		bootstrap.Fatal(ctx, nil, "api failed", err)
	}
}

func run(ctx context.Context) error {
	rt, err := bootstrap.Start(ctx, "api", bootstrap.WithRedis())
	if err != nil {
		return err
	}
	defer rt.Close()
	logg, cfg := rt.Logger, rt.Config

	handler, err := newHandler(rt)
	if err != nil {
		return fmt.Errorf("api wiring: %w", err)
	}
	server := api.NewServer(cfg, os.Getenv("PORT"), handler)
	ctx = logg.WithField(rt.LogContext(ctx), "addr", server.Addr)
	logg.Info(ctx, "api server listening")

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logg.Info(ctx, "api server draining")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newHandler assembles repositories, services and the router.
func newHandler(rt *bootstrap.Runtime) (http.Handler, error) {
	cfg, logg, dbClient := rt.Config, rt.Logger, rt.DB
	registry := metrics.NewRegistry()

	gdb := dbClient.DB()
	variantRepo := product.NewRepository(gdb)
	cartRepo := cart.NewRepository(gdb)
	ordersRepo := orders.NewRepository(gdb)
	outboxService := outbox.NewService(outbox.NewRepository(gdb), logg)

	productService, err := product.NewService(variantRepo)
	if err != nil {
		return nil, err
	}
	cartService, err := cart.NewService(cartRepo, variantRepo, dbClient)
	if err != nil {
		return nil, err
	}
	ordersService, err := orders.NewService(ordersRepo, dbClient, outboxService)
	if err != nil {
		return nil, err
	}
	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Tx:       dbClient,
		Users:    users.NewRepository(gdb),
		Carts:    cartRepo,
		Variants: variantRepo,
		Orders:   ordersRepo,
		Outbox:   outboxService,
		Metrics:  metrics.NewCheckoutMetrics(registry),
		Logger:   logg,
		Config:   cfg.Checkout,
	})
	if err != nil {
		return nil, err
	}

	return routes.NewRouter(routes.Deps{
		Config:   cfg,
		Logger:   logg,
		DB:       dbClient,
		Store:    rt.Redis,
		Gatherer: registry,
		HTTP:     metrics.NewHTTPMetrics(registry),
		Products: productService,
		Cart:     cartService,
		Checkout: checkoutService,
		Orders:   ordersService,
	}), nil
}
