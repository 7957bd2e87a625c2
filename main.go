package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/ecodeed/authkit/api"
	"github.com/ecodeed/authkit/auth"
	"github.com/ecodeed/authkit/config"
	"github.com/ecodeed/authkit/credstore"
	"github.com/ecodeed/authkit/event"
	"github.com/ecodeed/authkit/log"
	"github.com/ecodeed/authkit/provider/facebook"
	"github.com/ecodeed/authkit/provider/google"
	"github.com/ecodeed/authkit/provider/twitter"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "authkit:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := log.NewSlogLogger(log.Config{
		LogLevel:  cfg.LogLevel,
		LogFormat: cfg.LogFormat,
	})
	if err != nil {
		return err
	}
	defer logger.Close()

	var store credstore.Store
	var states credstore.StateStore
	switch cfg.CredentialStore {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer client.Close()
		rs := credstore.NewRedis(client, cfg.RedisPrefix)
		store, states = rs, rs
	case "memory":
		ms := credstore.NewMemory()
		store, states = ms, ms
	default:
		fs := credstore.NewFile(cfg.CredentialFile)
		store, states = fs, fs
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	refresher := api.NewRefresher(cfg.BackendURL, store,
		api.WithRefresherHTTPClient(httpClient),
		api.WithRefresherLogger(logger),
	)
	client := api.New(cfg.BackendURL, store,
		api.WithHTTPClient(httpClient),
		api.WithLogger(logger),
		api.WithRefresher(refresher),
	)

	broker := event.NewBroker()
	manager := auth.NewManager(client, store,
		auth.WithLogger(logger),
		auth.WithStateStore(states),
		auth.WithBroker(broker),
		auth.WithRefresher(refresher),
	)

	manager.Subscribe(func(ctx context.Context, ev auth.SessionChanged) error {
		logger.InfoContext(ctx, "session changed",
			"from", string(ev.Previous.Status),
			"to", string(ev.Current.Status),
		)
		return nil
	})

	if cfg.GoogleClientID != "" {
		g, err := google.New(ctx, google.Config{
			ClientID:  cfg.GoogleClientID,
			IssuerURL: cfg.GoogleIssuerURL,
		})
		if err != nil {
			return err
		}
		if err := manager.Extend(g); err != nil {
			return err
		}
	}
	if err := manager.Extend(facebook.New(facebook.Config{GraphURL: cfg.FacebookGraphURL})); err != nil {
		return err
	}
	if err := manager.Extend(twitter.New(client, states, twitter.WithLogger(logger))); err != nil {
		return err
	}

	email := os.Getenv("ECODEED_DEMO_EMAIL")
	password := os.Getenv("ECODEED_DEMO_PASSWORD")
	if email == "" || password == "" {
		logger.Info("no demo credentials set, nothing to do",
			"hint", "set ECODEED_DEMO_EMAIL and ECODEED_DEMO_PASSWORD")
		return nil
	}

	user, err := manager.SignIn(ctx, email, password)
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, "signed in", "user", user.DisplayName, "role", string(user.Role))

	profile, err := manager.Profile(ctx)
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, "profile fetched", "email", profile.Email)

	return manager.SignOut(ctx)
}
