package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	webAdapter "github.com/irons28/warehouse-tracker-all4/internal/adapters/web"
	"github.com/irons28/warehouse-tracker-all4/internal/app"
	"github.com/irons28/warehouse-tracker-all4/internal/cache"
	"github.com/irons28/warehouse-tracker-all4/internal/core"
	"github.com/irons28/warehouse-tracker-all4/internal/db"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	ctx := context.Background()
	pool, err := db.NewPool(ctx)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()

	store := core.NewLedgerStore(pool)
	mutations := core.NewMutationService(pool, store)
	if secs := os.Getenv("DEDUP_WINDOW_SECONDS"); secs != "" {
		n, err := strconv.Atoi(secs)
		if err != nil || n < 0 {
			log.Fatalf("invalid DEDUP_WINDOW_SECONDS %q", secs)
		}
		mutations.WithDedupWindow(time.Duration(n) * time.Second)
	}
	occupancy := core.NewOccupancyService(store)
	rates := core.NewRateService(pool)
	billing := core.NewBillingService(pool, occupancy, rates)

	var occupancyCache cache.OccupancyCache
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		redisDB := 0
		if v := os.Getenv("REDIS_DB"); v != "" {
			redisDB, err = strconv.Atoi(v)
			if err != nil {
				log.Fatalf("invalid REDIS_DB %q", v)
			}
		}
		rc := cache.NewRedisOccupancyCache(addr, os.Getenv("REDIS_PASSWORD"), redisDB)
		if err := rc.Ping(ctx); err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer rc.Close()
		occupancyCache = rc
		log.Printf("occupancy cache: redis at %s", addr)
	}

	svc := app.NewAppService(store, mutations, occupancy, billing, rates, occupancyCache)

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	handler := webAdapter.NewHandler(svc, allowedOrigins)

	log.Printf("server starting on :%s", port)
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		log.Fatalf("server: %v", err)
	}
}
