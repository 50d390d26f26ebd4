package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"
	migrate "github.com/rubenv/sql-migrate"
	"golang.org/x/sync/errgroup"

	"github.com/pershin-daniil/clinicconsole/internal/config"
	"github.com/pershin-daniil/clinicconsole/internal/rest"
	"github.com/pershin-daniil/clinicconsole/internal/telegram"
	"github.com/pershin-daniil/clinicconsole/pkg/logger"
	"github.com/pershin-daniil/clinicconsole/pkg/pgstore"
	"github.com/pershin-daniil/clinicconsole/pkg/service"
	"github.com/pershin-daniil/clinicconsole/pkg/tokens"
)

const version = "0.1.0"

func main() {
	cfg, err := config.LoadAPI()
	if err != nil {
		logger.New("info", "text").Fatal(err)
	}
	log := logger.New(cfg.Level, cfg.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store, err := pgstore.NewStore(ctx, log, cfg.PgDSN)
	if err != nil {
		log.Panic(err)
	}
	defer func() {
		if err = store.Close(); err != nil {
			log.Warnf("err during closing store: %v", err)
		}
	}()
	if err = store.Migrate(migrate.Up); err != nil {
		log.Panic(err)
	}

	var sender service.Notifier
	if cfg.TelegramToken != "" {
		bot, err := telegram.NewBot(cfg.TelegramToken, cfg.TelegramAPIURL, false)
		if err != nil {
			log.Panic(err)
		}
		sender = telegram.NewNotifier(log, bot)
	} else {
		log.Warn("API_KEY_CHATBOT is not set, notifications will be refused")
	}

	issuer := tokens.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
	app := service.NewClinicService(log, store, sender, issuer, cfg.BcryptCost)
	if err = app.SeedAdmin(ctx, cfg.AdminName, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		log.Panic(err)
	}
	server := rest.NewServer(log, app, issuer, cfg.Address, version)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
		<-sigCh
		log.Info("Received signal, shutting down...")
		cancel()
	}()
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gCtx)
	})
	if err = g.Wait(); err != nil {
		log.Panic(err)
	}
	log.Info("Server stopped")
}
