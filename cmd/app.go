package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"pharmpos/internal/config"
	"pharmpos/internal/importer"
	"pharmpos/internal/invoice"
	"pharmpos/internal/metrics"
	"pharmpos/internal/repository"
	"pharmpos/internal/search"
	"pharmpos/internal/service"
)

// application holds the wired services and whatever must be closed on exit
type application struct {
	medicines *service.MedicineService
	bills     *service.BillService
	importer  *importer.Importer
	pharmacy  invoice.Pharmacy
	registry  *prometheus.Registry
	closers   []func() error
}

func newApplication(ctx context.Context, cfg *config.Config) (*application, error) {
	a := &application{registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(a.registry)

	var catalog repository.Catalog
	switch cfg.Catalog.Driver {
	case "sqlite":
		sc, err := repository.OpenSQLite(cfg.Catalog.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, sc.Close)
		catalog = sc
		log.Printf("[catalog] sqlite at %s", cfg.Catalog.DSN)
	default:
		catalog = repository.NewMemoryStore()
		log.Printf("[catalog] in-memory")
	}

	var bills repository.BillRepository
	switch cfg.Bills.Driver {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			a.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err)
		}
		a.closers = append(a.closers, client.Close)
		bills = repository.NewRedisBills(client, cfg.Redis.Key)
		log.Printf("[bill] saved bills in redis %s key %s", cfg.Redis.Addr, cfg.Redis.Key)
	default:
		bills = repository.NewMemoryBills()
	}

	a.medicines = service.NewMedicineService(catalog, search.NewSearcher(cfg.Search.Limit), m)
	bs, err := service.NewBillService(catalog, bills, service.BillOptions{
		TaxRate: cfg.TaxRate(),
		Policy: service.StockPolicy{
			AdjustOnQuantityChange: cfg.Stock.AdjustOnQuantityChange,
			RestoreOnClear:         cfg.Stock.RestoreOnClear,
		},
		NodeID:  cfg.Bills.NodeID,
		Metrics: m,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.bills = bs
	a.importer = importer.New(a.medicines)
	a.pharmacy = invoice.Pharmacy{
		Name:     cfg.Pharmacy.Name,
		Address:  cfg.Pharmacy.Address,
		Phone:    cfg.Pharmacy.Phone,
		Currency: cfg.Pharmacy.Currency,
	}
	return a, nil
}

func (a *application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Printf("close: %v", err)
		}
	}
	a.closers = nil
}
