/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the station back-office server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, then flags)
  2. Open the store (memory, SQLite or Postgres)
  3. Pick the report cache (Redis, in-process, or none)
  4. Create API handler and the audit scheduler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides PORT)
  -store   memory | sqlite | postgres (overrides STORE_DRIVER)
  -db      SQLite database path (overrides SQLITE_PATH)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the audit scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close the cache and database connections

EXAMPLES:
  # Run with file database
  ./server -db="./data/station.db"

  # Run against Postgres with a Redis report cache
  DATABASE_URL=postgres://... REDIS_ADDR=localhost:6379 ./server

  # Run on different port with nothing persisted
  ./server -port=3000 -store=memory

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - store/sqldb/sqldb.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pumpline/station-core/api"
	"github.com/pumpline/station-core/config"
	"github.com/pumpline/station-core/report"
	"github.com/pumpline/station-core/store/memory"
	"github.com/pumpline/station-core/store/sqldb"
)

func main() {
	cfg := config.Load()

	// Flags
	flag.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	flag.StringVar(&cfg.StoreDriver, "store", cfg.StoreDriver, "memory, sqlite or postgres")
	flag.StringVar(&cfg.SQLitePath, "db", cfg.SQLitePath, "SQLite database path")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	loc, _ := cfg.Location()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 2)

	// Initialize store
	var store api.Store
	switch cfg.StoreDriver {
	case config.DriverMemory:
		store = memory.New()
		log.Println("store: in-memory")
	case config.DriverPostgres:
		pg, err := sqldb.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		store = pg
		closers = append(closers, pg.Close)
		log.Println("store: postgres")
	default:
		lite, err := sqldb.NewSQLite(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		store = lite
		closers = append(closers, lite.Close)
		log.Printf("store: sqlite (%s)", cfg.SQLitePath)
	}

	// Report cache
	var reportOpts []report.Option
	cache, closeCache := reportCache(ctx, cfg)
	if cache != nil {
		reportOpts = append(reportOpts, report.WithCache(cache, cfg.ReportCacheTTL))
	}
	if closeCache != nil {
		closers = append(closers, closeCache)
	}

	// Initialize handler
	handler := api.NewHandler(store, reportOpts...)
	handler.Location = loc

	// Audit scheduler
	auditor := api.NewAuditScheduler(handler.Ledger)
	auditor.Enabled = cfg.AuditInterval > 0
	if auditor.Enabled {
		auditor.CheckInterval = cfg.AuditInterval
	}
	handler.Auditor = auditor
	auditor.Start()

	// Create router
	router := api.NewRouter(handler, cfg.AllowedOrigins)

	// Create server
	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost%s", cfg.Address())
		log.Printf("API available at http://localhost%s/api (business days in %s)", cfg.Address(), loc)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	auditor.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("Server stopped")
}

// reportCache picks Redis when it answers, the in-process cache otherwise,
// and no cache when the TTL is zero. The returned closer is nil unless a
// Redis client was kept.
func reportCache(ctx context.Context, cfg config.Config) (report.Cache, func() error) {
	if cfg.ReportCacheTTL <= 0 {
		log.Println("cache: disabled")
		return nil, nil
	}
	if cfg.RedisAddr != "" {
		redisCache := report.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using in-process cache", err)
			if cerr := redisCache.Close(); cerr != nil {
				log.Printf("close error: %v", cerr)
			}
		} else {
			log.Println("cache: redis")
			return redisCache, redisCache.Close
		}
	}
	return report.NewMemoryCache(), nil
}
