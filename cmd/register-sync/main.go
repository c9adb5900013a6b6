// Command register-sync runs next to a register. The register posts finished
// sales to its loopback intake; they are committed online or, while the
// server is unreachable, priced from the last fetched catalog, queued in
// Redis and replayed later.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"tillpoint/backend/internal/cache"
	"tillpoint/backend/internal/config"
	"tillpoint/backend/internal/offline"
)

func main() {
	cfg := config.Load()
	if cfg.RegisterID == "" {
		log.Fatalf("REGISTER_ID must be set")
	}
	if cfg.RegisterToken == "" && (cfg.RegisterUsername == "" || cfg.RegisterPassword == "") {
		log.Fatalf("REGISTER_USERNAME and REGISTER_PASSWORD (or a REGISTER_TOKEN) must be set")
	}
	if cfg.RedisAddr == "" {
		log.Fatalf("REDIS_ADDR must be set; the offline queue has to survive restarts")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatalf("redis unavailable: %v", err)
	}

	storage := offline.NewRedisStorage(client, cfg.RegisterID)
	transport := offline.NewHTTPTransport(cfg.ServerURL, cfg.RegisterToken, 10*time.Second)
	if cfg.RegisterUsername != "" {
		transport.WithLogin(cfg.RegisterUsername, cfg.RegisterPassword)
	}
	prices := offline.NewPriceList(storage)
	if err := prices.Load(ctx); err != nil {
		log.Printf("[sync] WARN: stored price list unreadable: %v", err)
	}
	queue := offline.NewQueue(storage, transport, offline.QueueOptions{MaxAttempts: cfg.SyncMaxAttempts, Prices: prices})

	pending, err := queue.Pending(ctx)
	if err != nil {
		log.Fatalf("read offline queue: %v", err)
	}
	log.Printf("register %s syncing to %s, %d sale(s) pending", cfg.RegisterID, cfg.ServerURL, len(pending))

	in := &intake{
		registerID: cfg.RegisterID,
		submitter:  offline.NewSubmitter(transport, queue),
		queue:      queue,
		prices:     prices,
	}
	server := &http.Server{
		Addr:              cfg.RegisterListenAddr,
		Handler:           in.handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	interval := time.Duration(cfg.SyncIntervalSeconds) * time.Second
	online := make(chan struct{}, 1)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return queue.Run(gctx, interval, online)
	})
	g.Go(func() error {
		return watchConnectivity(gctx, http.DefaultClient, cfg.ServerURL, interval, online)
	})
	g.Go(func() error {
		return refreshPrices(gctx, prices, transport, time.Duration(cfg.PriceRefreshSeconds)*time.Second)
	})
	g.Go(func() error {
		return forwardSignal(gctx, online)
	})
	g.Go(func() error {
		log.Printf("register intake listening on %s", cfg.RegisterListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("register-sync stopped: %v", err)
		os.Exit(1)
	}
	log.Println("register-sync stopped")
}

// refreshPrices keeps the offline price list current while the server is
// reachable. Failures keep the previous list.
func refreshPrices(ctx context.Context, prices *offline.PriceList, src offline.CatalogSource, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		if err := prices.Refresh(ctx, src, time.Now()); err != nil && ctx.Err() == nil {
			log.Printf("[sync] WARN: price list not refreshed (last fetched %s): %v", prices.FetchedAt().Format(time.RFC3339), err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// watchConnectivity polls the server health endpoint and signals online on
// every unreachable to reachable transition.
func watchConnectivity(ctx context.Context, client *http.Client, serverURL string, interval time.Duration, online chan<- struct{}) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	reachable := false
	for {
		up := serverHealthy(ctx, client, serverURL)
		if up && !reachable {
			log.Printf("[sync] server reachable")
			notify(online)
		} else if !up && reachable {
			log.Printf("[sync] WARN: server unreachable, sales will queue")
		}
		reachable = up

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func serverHealthy(ctx context.Context, client *http.Client, serverURL string) bool {
	checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, strings.TrimRight(serverURL, "/")+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// forwardSignal lets an operator force a drain with SIGUSR1.
func forwardSignal(ctx context.Context, online chan<- struct{}) error {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGUSR1)
	defer signal.Stop(sig)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sig:
			notify(online)
		}
	}
}

func notify(online chan<- struct{}) {
	select {
	case online <- struct{}{}:
	default:
	}
}
