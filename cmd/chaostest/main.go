// Command chaostest fires concurrent single-unit reservations at one
// product and checks that exactly the available stock was handed out.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iliyamo/inventory-reservation/internal/config"
	"github.com/iliyamo/inventory-reservation/internal/database"
	"github.com/iliyamo/inventory-reservation/internal/logger"
	"github.com/iliyamo/inventory-reservation/internal/model"
	"github.com/iliyamo/inventory-reservation/internal/repository"
	"github.com/iliyamo/inventory-reservation/internal/service"
)

func main() {
	_ = godotenv.Load()
	driver := flag.String("store", config.StoreMemory, "store driver: memory or mysql")
	stock := flag.Int64("stock", 5, "initial stock of the test product")
	workers := flag.Int("workers", 50, "concurrent single-unit reservations")
	flag.Parse()

	lg, err := logger.New(os.Getenv("APP_ENV"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = lg.Sync() }()

	rcfg := config.LoadReservationConfig()
	store, err := openStore(*driver, rcfg.LockWaitTimeout)
	if err != nil {
		lg.Fatal("open store", zap.Error(err))
	}

	ctx := context.Background()
	p := &model.Product{
		Name:           fmt.Sprintf("chaos-%d", time.Now().Unix()),
		TotalStock:     *stock,
		AvailableStock: *stock,
		Price:          decimal.NewFromInt(1),
		UpdatedAt:      time.Now().UTC(),
	}
	if err := store.CreateProduct(ctx, p); err != nil {
		lg.Fatal("create product", zap.Error(err))
	}

	svc := service.NewReservationService(store, service.NewStockLedger(lg), nil, nil,
		service.ReservationConfig{HoldDuration: rcfg.HoldDuration}, lg)

	var (
		wg                   sync.WaitGroup
		mu                   sync.Mutex
		ok, shortage, failed int
		start                = make(chan struct{})
	)
	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.ReserveStock(ctx, p.ID, 1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, service.ErrInsufficientStock):
				shortage++
			default:
				failed++
				lg.Warn("reserve failed", zap.Error(err))
			}
		}()
	}
	began := time.Now()
	close(start)
	wg.Wait()

	final, err := store.GetProduct(ctx, p.ID)
	if err != nil {
		lg.Fatal("read product", zap.Error(err))
	}
	fmt.Printf("product=%d workers=%d elapsed=%s\n", p.ID, *workers, time.Since(began).Round(time.Millisecond))
	fmt.Printf("success=%d insufficient=%d other=%d\n", ok, shortage, failed)
	fmt.Printf("available=%d reserved=%d sold=%d total=%d\n",
		final.AvailableStock, final.ReservedStock, final.SoldStock, final.TotalStock)

	want := *stock
	if int64(*workers) < want {
		want = int64(*workers)
	}
	if int64(ok) != want || !final.Balanced() || final.ReservedStock != want {
		fmt.Println("FAIL")
		os.Exit(1)
	}
	fmt.Println("PASS")
}

func openStore(driver string, lockWait time.Duration) (repository.Store, error) {
	if driver != config.StoreMySQL {
		return repository.NewMemoryStore(lockWait), nil
	}
	cfg := config.Load(config.StoreMySQL)
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(context.Background(), db); err != nil {
		return nil, err
	}
	return repository.NewMySQLStore(db, lockWait), nil
}
