package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"tillpoint/backend/internal/cache"
	"tillpoint/backend/internal/catalog"
	"tillpoint/backend/internal/config"
	"tillpoint/backend/internal/httpapi"
	"tillpoint/backend/internal/promotion"
	"tillpoint/backend/internal/service"
	"tillpoint/backend/internal/store"
	"tillpoint/backend/internal/store/memory"
	pgstore "tillpoint/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(startCtx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		if err := pg.EnsureSchema(startCtx); err != nil {
			log.Fatalf("postgres schema: %v", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Println("repository: in-memory")
	}

	catalogCache := cache.CatalogCache(cache.NoopCatalogCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisCatalogCache(cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB))
		if err := redisCache.Ping(startCtx); err != nil {
			log.Printf("redis unavailable (%v), using noop catalog cache", err)
			_ = redisCache.Close()
		} else {
			catalogCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("catalog cache: redis")
		}
	} else {
		log.Println("catalog cache: noop")
	}

	lookup := catalog.NewCachedLookup(
		catalog.NewRepositoryLookup(repo),
		catalogCache,
		time.Duration(cfg.CatalogCacheTTLSeconds)*time.Second,
	)
	svc := service.New(repo, lookup, promotion.NewRuleMatcher(repo), service.Options{
		DefaultTenantID:   cfg.DefaultTenantID,
		Location:          loc,
		CommitMaxAttempts: cfg.CommitMaxAttempts,
	})
	auth, err := httpapi.NewAuthManager(startCtx, cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, cfg.ManagerPIN, repo)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}
	api, err := httpapi.New(svc, auth, cfg.AllowedOrigin)
	if err != nil {
		log.Fatalf("http api: %v", err)
	}

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("tillpoint backend listening on %s (business timezone %s)", cfg.Address(), loc)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})
	waitErr := g.Wait()
	if waitErr != nil {
		log.Printf("server error: %v", waitErr)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
	if waitErr != nil {
		os.Exit(1)
	}
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.ManagerPIN) < 6 {
		return fmt.Errorf("MANAGER_PIN must be set and at least 6 digits")
	}
	for _, r := range cfg.ManagerPIN {
		if r < '0' || r > '9' {
			return fmt.Errorf("MANAGER_PIN must contain digits only")
		}
	}
	if err := validatePINStrength(cfg.ManagerPIN); err != nil {
		return fmt.Errorf("MANAGER_PIN is too weak: %w", err)
	}
	return nil
}

// validatePINStrength rejects repeated digits, straight runs and a short list
// of common PINs.
func validatePINStrength(pin string) error {
	common := map[string]bool{
		"121212": true, "112233": true, "123123": true, "101010": true,
		"696969": true, "159753": true, "147258": true, "789456": true,
	}
	if common[pin] {
		return fmt.Errorf("common PIN not allowed")
	}

	repeated := true
	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			repeated = false
		}
		switch int(pin[i]) - int(pin[i-1]) {
		case 1:
			descending = false
		case -1:
			ascending = false
		default:
			ascending, descending = false, false
		}
	}
	if repeated {
		return fmt.Errorf("repeated-digit PIN not allowed")
	}
	if ascending || descending {
		return fmt.Errorf("sequential PIN not allowed")
	}
	return nil
}
