package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ariefcatur/go-commerce-inventory.git/internal/bus"
	"github.com/ariefcatur/go-commerce-inventory.git/internal/config"
	"github.com/ariefcatur/go-commerce-inventory.git/internal/httpx"
	"github.com/ariefcatur/go-commerce-inventory.git/internal/inventory"
	"github.com/ariefcatur/go-commerce-inventory.git/internal/postgres"
	"github.com/ariefcatur/go-commerce-inventory.git/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Event bus
	pub := bus.NewPublisher(cfg.KafkaBrokers, bus.Options{
		Exchange:       cfg.BusExchange,
		MaxRetries:     cfg.BusMaxRetries,
		RetryDelay:     cfg.BusRetryDelay,
		ReconnectDelay: cfg.BusReconnectDelay,
	})
	pub.Start(ctx)

	// Ledger
	ledger := &inventory.Service{
		Store:       &inventory.Repo{DB: db},
		Bus:         pub,
		ServiceName: cfg.ServiceName,
	}

	// HTTP
	router := httpx.NewRouter()
	ih := &httpx.InventoryHandler{Ledger: ledger, Redis: rdb}
	ih.Register(router)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	// Order event consumer
	group := getenv("INVENTORY_GROUP", "inventory-svc")
	workers := mustAtoi(os.Getenv("INVENTORY_WORKERS"), "8")
	cons := bus.NewConsumer(cfg.KafkaBrokers, group, cfg.BusExchange, workers)
	oh := &inventory.OrderEventHandler{
		Ledger: ledger,
		Dedup:  &inventory.RedisDeduper{Client: rdb, Service: cfg.ServiceName},
	}

	go func() {
		log.Printf("order consumer started: group=%s topic=%s workers=%d", group, cfg.BusExchange, workers)
		if err := cons.Start(ctx, oh.Handle); err != nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	cancel()         // stop consumer and reconnect loop
	pub.WaitClosed() // writer closed by the loop on exit
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}
