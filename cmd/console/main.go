package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pershin-daniil/clinicconsole/internal/access"
	"github.com/pershin-daniil/clinicconsole/internal/apiclient"
	"github.com/pershin-daniil/clinicconsole/internal/auth"
	"github.com/pershin-daniil/clinicconsole/internal/config"
	"github.com/pershin-daniil/clinicconsole/internal/console"
	"github.com/pershin-daniil/clinicconsole/internal/dispatch"
	"github.com/pershin-daniil/clinicconsole/internal/session"
	"github.com/pershin-daniil/clinicconsole/pkg/logger"
)

const version = "0.1.0"

func main() {
	cfg, err := config.LoadConsole()
	if err != nil {
		logger.New("info", "text").Fatal(err)
	}
	log := logger.New(cfg.Level, cfg.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	storage, closeStorage := newStorage(ctx, log, cfg)
	defer closeStorage()
	if cfg.TokenSecret == "" {
		log.Warn("SECRET_KEY is not set, session tokens are decoded without signature check")
	}
	sessions := session.NewStore(log, storage, session.NewDecoder(cfg.TokenSecret))

	httpClient := &http.Client{Timeout: cfg.BackendTimeout}
	api := apiclient.New(log, cfg.BackendURL, httpClient)
	server := console.NewServer(log,
		api,
		auth.NewExchanger(log, cfg.BackendURL, httpClient),
		access.NewRouter(log, sessions, console.SessionID),
		dispatch.New(log, api),
		console.Options{Address: cfg.Address, Version: version, CookieSecure: cfg.CookieSecure},
	)

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
	log.Info("Console stopped")
}

func newStorage(ctx context.Context, log *logrus.Logger, cfg config.Console) (session.Storage, func()) {
	if cfg.SessionStore != config.SessionStoreRedis {
		return session.NewMemoryStorage(), func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Panicf("err connecting to redis at %s: %v", cfg.RedisAddr, err)
	}
	log.Infof("sessions stored in redis at %s", cfg.RedisAddr)
	return session.NewRedisStorage(client), func() {
		if err := client.Close(); err != nil {
			log.Warnf("err during closing redis: %v", err)
		}
	}
}
