// Package main runs the alloyed-pool dashboard backend:
// - Aggregation: pool overviews and swap activity, cached in memory
// - Refresh (scheduled): recompute overview, persist snapshot, broadcast
// - HTTP API: pool/activity/transaction endpoints, websocket push, metrics
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"alloydash/internal/activity"
	"alloydash/internal/broadcast"
	"alloydash/internal/domain"
	"alloydash/internal/idhash"
	"alloydash/internal/limiter"
	"alloydash/internal/observability"
	"alloydash/internal/overview"
	"alloydash/internal/price"
	"alloydash/internal/registry"
	"alloydash/internal/storage"
	chstore "alloydash/internal/storage/clickhouse"
	"alloydash/internal/storage/memory"
	"alloydash/internal/storage/migrations"
	pgstore "alloydash/internal/storage/postgres"
	"alloydash/internal/upstream"
)

// Server holds all components of the dashboard backend.
type Server struct {
	// Configuration
	refreshInterval time.Duration

	// Components
	overview *overview.Aggregator
	activity *activity.Service
	hub      *broadcast.Hub
	stores   *allStores
	logger   *log.Logger

	// State
	mu             sync.Mutex
	started        time.Time
	lastRefresh    time.Time
	refreshRunning bool

	// Stats
	refreshRuns int
}

// allStores holds all storage implementations.
type allStores struct {
	snapshotStore storage.OverviewSnapshotStore
	activityStore storage.ActivityBucketStore
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	poolsURL := flag.String("pools-url", os.Getenv("POOLS_URL"), "Pool listing endpoint")
	assetListURL := flag.String("asset-list-url", os.Getenv("ASSET_LIST_URL"), "Chain-registry asset list URL")
	priceURL := flag.String("price-url", os.Getenv("PRICE_URL"), "Price feed URL template ({denoms} placeholder)")
	assetPriceURL := flag.String("asset-price-url", os.Getenv("ASSET_PRICE_URL"), "Single-asset price URL template ({denom} placeholder)")
	liquidityURL := flag.String("liquidity-url", os.Getenv("LIQUIDITY_URL"), "Liquidity history URL template ({poolId} placeholder)")
	lcdURL := flag.String("lcd-url", os.Getenv("LCD_URL"), "Chain LCD base URL")
	graphqlURL := flag.String("graphql-url", os.Getenv("GRAPHQL_URL"), "Block/transaction indexer GraphQL endpoint")
	baseAppURL := flag.String("base-app-url", os.Getenv("BASE_APP_URL"), "Base URL for rewriting relative asset image paths")
	codeIDs := flag.String("code-ids", os.Getenv("CODE_IDS"), "Comma-separated allow-list of pool contract code ids")
	sanityThreshold := flag.Float64("price-sanity-threshold", 1_000_000, "Prices above this are treated as feed glitches")
	overviewTTL := flag.Duration("overview-ttl", overview.DefaultTTL, "Overview cache revalidation interval")
	activityTTL := flag.Duration("activity-ttl", activity.DefaultTTL, "Activity cache revalidation interval")
	refreshInterval := flag.Duration("refresh-interval", 30*time.Minute, "Background refresh interval")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	listenAddr := flag.String("listen-addr", ":8080", "HTTP listen address (API, websocket, metrics)")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	// Validate required flags
	codeIDList := splitList(*codeIDs)
	if len(codeIDList) == 0 {
		logger.Fatal("--code-ids is required (comma-separated contract code ids)")
	}
	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}
	logger.Printf("Accepting pool code ids: %v", codeIDList)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Create stores
	stores, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	// Upstream clients
	client := upstream.NewClient(upstream.Config{
		PoolsURL:      *poolsURL,
		AssetListURL:  *assetListURL,
		PriceURL:      *priceURL,
		AssetPriceURL: *assetPriceURL,
		LiquidityURL:  *liquidityURL,
		LCDBaseURL:    *lcdURL,
	})
	indexer := upstream.NewGraphQLClient(*graphqlURL, nil)

	// Domain services
	assets := registry.NewLoader(client, *overviewTTL, log.New(os.Stdout, "[registry] ", log.LstdFlags))
	prices := price.NewService(client, *sanityThreshold, log.New(os.Stdout, "[price] ", log.LstdFlags))
	limiters := limiter.NewService(client, log.New(os.Stdout, "[limiter] ", log.LstdFlags))

	aggregator := overview.New(overview.Config{
		CodeIDs:    codeIDList,
		BaseAppURL: *baseAppURL,
		TTL:        *overviewTTL,
	}, client, assets, prices, limiters, log.New(os.Stdout, "[overview] ", log.LstdFlags))

	activitySvc := activity.NewService(client, indexer, indexer,
		log.New(os.Stdout, "[activity] ", log.LstdFlags),
		activity.WithTTL(*activityTTL))

	// Create server
	server := &Server{
		refreshInterval: *refreshInterval,
		overview:        aggregator,
		activity:        activitySvc,
		hub:             broadcast.NewHub(log.New(os.Stdout, "[broadcast] ", log.LstdFlags)),
		stores:          stores,
		logger:          logger,
		started:         time.Now(),
	}

	// Channel to signal completion
	done := make(chan error, 1)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	// Start HTTP server
	go server.startHTTPServer(*listenAddr)

	// Run the refresh scheduler
	err = server.Run(ctx)
	done <- err
	cancel()

	server.hub.Close()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// splitList splits a comma-separated flag value, dropping empty entries.
func splitList(s string) []string {
	var list []string
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			list = append(list, item)
		}
	}
	return list
}

// createStores creates the snapshot and activity stores, running migrations
// for the database-backed pair.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (*allStores, func(), error) {
	if useMemory {
		stores := &allStores{
			snapshotStore: memory.NewOverviewSnapshotStore(),
			activityStore: memory.NewActivityBucketStore(),
		}
		return stores, func() {}, nil
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("run postgres migrations: %w", err)
	}

	// ClickHouse
	chConn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
	}

	stores := &allStores{
		snapshotStore: pgstore.NewOverviewSnapshotStore(pool),
		activityStore: chstore.NewActivityBucketStore(chConn),
	}

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}

	return stores, cleanup, nil
}

// Run starts the refresh scheduler and blocks until the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Printf("Starting refresh scheduler (interval: %v)...", s.refreshInterval)

	// Run immediately on start
	s.runRefresh(ctx)

	ticker := time.NewTicker(s.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runRefresh(ctx)
		}
	}
}

// runRefresh recomputes the overview, persists a snapshot with the
// activity buckets of every supported pool, and broadcasts a summary.
func (s *Server) runRefresh(ctx context.Context) {
	s.mu.Lock()
	if s.refreshRunning {
		s.mu.Unlock()
		s.logger.Println("Refresh already running, skipping...")
		return
	}
	s.refreshRunning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.refreshRunning = false
		s.lastRefresh = time.Now()
		s.refreshRuns++
		s.mu.Unlock()
	}()

	s.logger.Println("Running refresh...")
	start := time.Now()

	s.overview.Invalidate()
	result, err := s.overview.GetPoolsOverview(ctx)
	if err != nil {
		s.logger.Printf("Refresh error: %v", err)
		observability.RecordRefresh(time.Since(start).Seconds(), err)
		return
	}

	s.persistSnapshot(ctx, result)
	s.persistActivity(ctx, result.Pools)

	observability.RecordRefresh(time.Since(start).Seconds(), nil)
	observability.UpdatePoolCounts(len(result.Pools), len(result.UnsupportedPools))
	observability.DefaultMetrics.LastSuccessfulRefresh.Set(float64(time.Now().Unix()))

	s.logger.Printf("Refresh completed in %v: %d supported, %d unsupported",
		time.Since(start), len(result.Pools), len(result.UnsupportedPools))

	s.hub.Broadcast(map[string]any{
		"type":        "overview_refreshed",
		"supported":   len(result.Pools),
		"unsupported": len(result.UnsupportedPools),
		"takenAtMs":   start.UnixMilli(),
	})
}

// persistSnapshot stores one overview snapshot row for historical retention.
func (s *Server) persistSnapshot(ctx context.Context, result *domain.OverviewResult) {
	payload, err := json.Marshal(result)
	if err != nil {
		s.logger.Printf("Failed to encode snapshot payload: %v", err)
		return
	}

	takenAt := time.Now().UnixMilli()
	snapshot := &domain.OverviewSnapshot{
		SnapshotID:       idhash.ComputeSnapshotID(takenAt, len(result.Pools), len(result.UnsupportedPools)),
		TakenAtMs:        takenAt,
		SupportedCount:   len(result.Pools),
		UnsupportedCount: len(result.UnsupportedPools),
		Payload:          payload,
	}

	if err := s.stores.snapshotStore.Insert(ctx, snapshot); err != nil {
		s.logger.Printf("Failed to persist snapshot: %v", err)
	}
}

// persistActivity stores the current activity buckets of every supported
// pool. Buckets already stored are skipped; the store is append-only.
func (s *Server) persistActivity(ctx context.Context, pools []*domain.PoolOverview) {
	for _, pool := range pools {
		buckets, err := s.activity.GetPoolInOutAssets(ctx, pool.ID)
		if err != nil {
			s.logger.Printf("Failed to fetch activity for pool %s: %v", pool.ID, err)
			continue
		}
		if err := persistPoolActivity(ctx, s.stores.activityStore, pool.ID, buckets); err != nil {
			s.logger.Printf("Failed to persist activity for pool %s: %v", pool.ID, err)
		}
	}
}

// persistPoolActivity inserts the pool's buckets that are not stored yet.
// Consecutive refreshes overlap on the trailing 24h window, so most buckets
// already exist; the batch must contain only the new ones or the store's
// all-or-nothing duplicate check would reject it whole.
func persistPoolActivity(ctx context.Context, store storage.ActivityBucketStore, poolID string, buckets []domain.ActivityBucket) error {
	if len(buckets) == 0 {
		return nil
	}

	stored, err := store.GetByPoolID(ctx, poolID)
	if err != nil {
		return fmt.Errorf("load stored buckets: %w", err)
	}
	existing := make(map[int64]struct{}, len(stored))
	for _, r := range stored {
		existing[r.BucketStartMs] = struct{}{}
	}

	var records []*domain.ActivityRecord
	for _, b := range buckets {
		ms := b.Timestamp.UnixMilli()
		if _, ok := existing[ms]; ok {
			continue
		}
		records = append(records, &domain.ActivityRecord{
			PoolID:        poolID,
			BucketStartMs: ms,
			Count:         b.Count,
			In:            b.In,
			Out:           b.Out,
		})
	}
	if len(records) == 0 {
		return nil
	}

	return store.InsertBulk(ctx, records)
}

// startHTTPServer starts the HTTP server for the API, websocket and metrics.
func (s *Server) startHTTPServer(addr string) {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheus metrics
	mux.Handle("/metrics", observability.Handler())

	// Status endpoint
	mux.HandleFunc("/status", s.handleStatus)

	// Pool API
	mux.HandleFunc("GET /api/pools", s.handlePools)
	mux.HandleFunc("GET /api/pools/{id}", s.handlePool)
	mux.HandleFunc("GET /api/pools/{id}/activity", s.handlePoolActivity)
	mux.HandleFunc("GET /api/pools/{id}/transactions", s.handlePoolTransactions)

	// Websocket push
	mux.Handle("/ws", s.hub.Handler())

	s.logger.Printf("Starting HTTP server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		s.logger.Printf("HTTP server error: %v", err)
	}
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status         string    `json:"status"`
	Uptime         string    `json:"uptime"`
	Started        time.Time `json:"started"`
	LastRefresh    time.Time `json:"last_refresh,omitempty"`
	RefreshRuns    int       `json:"refresh_runs"`
	RefreshRunning bool      `json:"refresh_running"`
	WSClients      int       `json:"ws_clients"`
}

// handleStatus returns server status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := StatusResponse{
		Status:         "running",
		Uptime:         time.Since(s.started).String(),
		Started:        s.started,
		LastRefresh:    s.lastRefresh,
		RefreshRuns:    s.refreshRuns,
		RefreshRunning: s.refreshRunning,
	}
	s.mu.Unlock()
	resp.WSClients = s.hub.ClientCount()

	writeJSON(w, http.StatusOK, resp)
}

// handlePools returns the full overview partition.
func (s *Server) handlePools(w http.ResponseWriter, r *http.Request) {
	result, err := s.overview.GetPoolsOverview(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handlePool returns one supported pool, or 404.
func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	pool, err := s.overview.GetPoolOverview(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	if pool == nil {
		writeError(w, http.StatusNotFound, errors.New("pool not found"))
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

// handlePoolActivity returns the pool's 2h swap-activity buckets.
func (s *Server) handlePoolActivity(w http.ResponseWriter, r *http.Request) {
	buckets, err := s.activity.GetPoolInOutAssets(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"buckets": buckets})
}

// handlePoolTransactions returns one page of indexed pool transactions
// together with the total count.
func (s *Server) handlePoolTransactions(w http.ResponseWriter, r *http.Request) {
	poolID := r.PathValue("id")
	page := intQueryParam(r, "page", 1)
	limit := intQueryParam(r, "limit", 10)

	txs, err := s.activity.GetTxsByPoolID(r.Context(), poolID, page, limit)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	count, err := s.activity.GetTxsCountByPoolID(r.Context(), poolID)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": txs,
		"total":        count,
		"page":         page,
		"limit":        limit,
	})
}

// intQueryParam parses a positive integer query parameter with a default.
func intQueryParam(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	var n int
	if _, err := fmt.Sscanf(raw, "%d", &n); err != nil || n <= 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
