package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chariotek.org/internal/audit"
	"chariotek.org/internal/auth"
	"chariotek.org/internal/content"
	"chariotek.org/internal/docstore"
	"chariotek.org/internal/docstore/pg"
	"chariotek.org/internal/httpapi"
	"chariotek.org/internal/obs"
	"chariotek.org/internal/schema"
	"chariotek.org/internal/tasks"
	"chariotek.org/internal/version"
)

var buildVersion = "0.3.1"

func main() {
	obs.Init()

	var (
		store   docstore.Store
		pinger  httpapi.Pinger
		authDB  auth.Store
		cleanup func()
	)
	if dsn := os.Getenv("CHARIOTEK_PG_DSN"); dsn != "" {
		pgStore, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		store = pgStore
		pinger = pgStore
		authDB = auth.NewPGStore(pgStore.DB())
		cleanup = func() { _ = pgStore.Close() }
	} else {
		log.Print("CHARIOTEK_PG_DSN not set, using in-memory store")
		store = docstore.NewMemory()
		authDB = auth.NewMemoryStore()
		cleanup = func() {}
	}

	runner := tasks.NewRunner()

	versions, err := version.NewManager(store, runner)
	if err != nil {
		log.Fatalf("version manager: %v", err)
	}
	auditLog, err := audit.NewLogger(store)
	if err != nil {
		log.Fatalf("audit logger: %v", err)
	}
	admins, err := auth.NewAdminService(authDB)
	if err != nil {
		log.Fatalf("admin service: %v", err)
	}
	svc, err := content.NewService(versions, auditLog, schema.Default())
	if err != nil {
		log.Fatalf("content service: %v", err)
	}

	// First boot on an empty store: seed the super admin from env
	if email := os.Getenv("CHARIOTEK_BOOTSTRAP_EMAIL"); email != "" {
		pw := os.Getenv("CHARIOTEK_BOOTSTRAP_PASSWORD")
		if _, err := admins.Bootstrap(context.Background(), email, pw); err == nil {
			log.Printf("bootstrapped super admin %s", email)
		}
	}

	api := httpapi.New(svc, admins, auditLog, httpapi.ReadyProbe{Store: pinger}, buildVersion)

	srv := &http.Server{
		Addr:              ":8080",
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting chariotek-api %s on %s", buildVersion, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	runner.Wait()
	cleanup()
	log.Println("Stopped")
}
