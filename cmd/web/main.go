package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"pehlione.com/payrecon/internal/broker"
	"pehlione.com/payrecon/internal/config"
	"pehlione.com/payrecon/internal/database"
	"pehlione.com/payrecon/internal/gateway"
	apphttp "pehlione.com/payrecon/internal/http"
	"pehlione.com/payrecon/internal/modules/cart"
	"pehlione.com/payrecon/internal/modules/checkout"
	"pehlione.com/payrecon/internal/modules/inventory"
	"pehlione.com/payrecon/internal/modules/orders"
	"pehlione.com/payrecon/internal/modules/outbox"
	"pehlione.com/payrecon/internal/modules/payments"
	"pehlione.com/payrecon/internal/shared/dbtx"
	"pehlione.com/payrecon/internal/storage"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBDSN)
	if err != nil {
		return err
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		return err
	}
	archive, err := storage.FromConfig(ctx, cfg)
	if err != nil {
		return err
	}
	pub, err := broker.New(cfg, logger)
	if err != nil {
		return err
	}
	defer pub.Close()

	inv := inventory.NewAdjuster()
	carts := cart.NewSync()
	repo := orders.NewRepo(db)
	tokens := payments.NewRedirectTokens(cfg.RedirectTokenSecret, cfg.RedirectTokenTTL)
	guard := payments.NewGuard(db, inv, carts, gw.Name(), dbtx.Policy{
		Attempts: cfg.ReleaseRetryAttempts,
		Base:     cfg.ReleaseRetryBase,
		Max:      2 * time.Second,
	}, logger)

	webhooks := payments.NewWebhookService(repo, gw, guard, archive.Storage)
	webhooks.SetLogger(logger)

	r := apphttp.NewRouter(apphttp.Deps{
		Logger:          logger,
		DB:              db,
		Checkout:        checkout.NewService(db, inv, carts, logger),
		Payments:        payments.NewService(db, gw, guard, tokens, cfg.PublicBaseURL, logger),
		Webhooks:        webhooks,
		Resolver:        payments.NewResolver(repo, gw, guard, tokens, cfg.RedirectAllowRawRef, logger),
		Guard:           guard,
		Refunds:         payments.NewRefundService(db, gw, guard),
		Carts:           carts,
		CallbackHeader:  gw.CallbackHeader(),
		ConfirmationURL: cfg.FrontendConfirmationURL,
		AdminToken:      cfg.AdminAPIToken,
		CORSOrigins:     cfg.CORSAllowedOrigins,
	})

	poller := outbox.NewPoller(outbox.NewStore(db), pub, cfg.OutboxPollInterval, logger)
	go poller.Run(ctx)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			"addr", cfg.HTTPAddr,
			"gateway", gw.Name(),
			"events", cfg.EventsDriver,
			"archive", archive.Driver,
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
