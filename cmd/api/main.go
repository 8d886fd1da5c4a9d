package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"aegisid.org/internal/auth"
	"aegisid.org/internal/httpapi"
	"aegisid.org/internal/notify"
	"aegisid.org/internal/obs"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	secret := os.Getenv("AEGIS_TOKEN_SECRET")
	if secret == "" {
		log.Fatal("AEGIS_TOKEN_SECRET is required")
	}

	var tokenOpts []auth.TokenOption
	if raw := os.Getenv("AEGIS_TOKEN_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			log.Fatalf("parse AEGIS_TOKEN_TTL: %v", err)
		}
		tokenOpts = append(tokenOpts, auth.WithAccessTTL(ttl))
	}
	tokens, err := auth.NewTokenService([]byte(secret), tokenOpts...)
	if err != nil {
		log.Fatalf("token service: %v", err)
	}

	cost := auth.DefaultBcryptCost
	if raw := os.Getenv("AEGIS_BCRYPT_COST"); raw != "" {
		cost, err = strconv.Atoi(raw)
		if err != nil {
			log.Fatalf("parse AEGIS_BCRYPT_COST: %v", err)
		}
	}
	hasher := auth.NewHasher(cost)

	// Postgres when a DSN is set, in-memory store otherwise. The memory store
	// keeps local development and tests free of external services.
	var (
		db    *sql.DB
		store auth.Store
	)
	if dsn := os.Getenv("AEGIS_PG_DSN"); dsn != "" {
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		store = auth.NewPGStore(db)
	} else {
		log.Print("AEGIS_PG_DSN not set, using in-memory store")
		store = auth.NewMemoryStore()
	}

	var notifier auth.Notifier
	if host := os.Getenv("AEGIS_SMTP_HOST"); host != "" {
		notifier, err = notify.NewSMTP(notify.SMTPConfig{
			Host:     host,
			Port:     os.Getenv("AEGIS_SMTP_PORT"),
			Username: os.Getenv("AEGIS_SMTP_USERNAME"),
			Password: os.Getenv("AEGIS_SMTP_PASSWORD"),
			From:     os.Getenv("AEGIS_SMTP_FROM"),
		})
		if err != nil {
			log.Fatalf("smtp: %v", err)
		}
	} else {
		notifier = notify.LogSink{}
	}

	svc, err := auth.NewService(store, hasher, tokens, notifier)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}
	guard := auth.NewGuard(tokens, store)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := auth.EnsureBuiltinRoles(ctx, store); err != nil {
		cancel()
		log.Fatalf("seed builtin roles: %v", err)
	}
	cancel()

	api := httpapi.New(svc, guard, store, httpapi.ReadyProbe{DB: db}, version)

	addr := os.Getenv("AEGIS_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting aegis-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
