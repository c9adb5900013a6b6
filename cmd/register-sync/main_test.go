package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/offline"
)

func TestServerHealthy(t *testing.T) {
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" || !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if serverHealthy(context.Background(), srv.Client(), srv.URL) {
		t.Fatalf("expected unhealthy server to report down")
	}
	healthy.Store(true)
	if !serverHealthy(context.Background(), srv.Client(), srv.URL+"/") {
		t.Fatalf("expected healthy server to report up")
	}
	if serverHealthy(context.Background(), srv.Client(), "http://127.0.0.1:1") {
		t.Fatalf("expected closed port to report down")
	}
}

func TestWatchConnectivitySignalsOnRecovery(t *testing.T) {
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	online := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- watchConnectivity(ctx, srv.Client(), srv.URL, 10*time.Millisecond, online)
	}()

	select {
	case <-online:
		t.Fatalf("expected no online signal while server is down")
	case <-time.After(50 * time.Millisecond):
	}

	healthy.Store(true)
	select {
	case <-online:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected online signal after recovery")
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNotifyDoesNotBlock(t *testing.T) {
	online := make(chan struct{}, 1)
	notify(online)
	notify(online)
	if len(online) != 1 {
		t.Fatalf("expected a single pending signal, got %d", len(online))
	}
}

type countingCatalog struct {
	calls atomic.Int32
}

func (c *countingCatalog) FetchCatalog(context.Context) (domain.CatalogResponse, error) {
	c.calls.Add(1)
	return domain.CatalogResponse{Products: []domain.Product{{ID: "prod-water", PriceCents: 150000, TaxRatePercent: 21, Active: true}}}, nil
}

func TestRefreshPricesLoadsImmediately(t *testing.T) {
	storage := offline.NewMemoryStorage()
	prices := offline.NewPriceList(storage)
	src := &countingCatalog{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- refreshPrices(ctx, prices, src, time.Hour) }()

	deadline := time.After(2 * time.Second)
	for prices.FetchedAt().IsZero() {
		select {
		case <-deadline:
			t.Fatalf("expected price list to be fetched at start")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if src.calls.Load() != 1 {
		t.Fatalf("expected one fetch, got %d", src.calls.Load())
	}

	restored := offline.NewPriceList(storage)
	if err := restored.Load(context.Background()); err != nil || restored.FetchedAt().IsZero() {
		t.Fatalf("expected persisted snapshot, err=%v", err)
	}
}
