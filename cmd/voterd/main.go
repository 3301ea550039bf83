// Command voterd runs one federation node's local voter loop: it opens the
// Postgres-backed store, bootstraps a genesis block if bigchain is empty,
// then repeatedly validates and votes on blocks it has not yet voted on.
// The network transport that would deliver blocks between federation
// members, and any RPC surface beyond a health check, are out of scope
// (see the module's non-goals); this daemon only drives the local half of
// that loop against whatever bigchain already contains.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chainledger/core/pkg/config"
	"github.com/chainledger/core/pkg/crypto"
	"github.com/chainledger/core/pkg/ledger"
	"github.com/chainledger/core/pkg/metrics"
	"github.com/chainledger/core/pkg/store"
)

// HealthStatus tracks this process's readiness for the /healthz endpoint,
// in the shape of the teacher's database health report: a boolean plus a
// free-text error and a checked-at timestamp.
type HealthStatus struct {
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`

	mu sync.RWMutex
}

func (h *HealthStatus) set(healthy bool, errMsg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Healthy = healthy
	h.Error = errMsg
	h.CheckedAt = time.Now()
}

func (h *HealthStatus) snapshot() HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return HealthStatus{Healthy: h.Healthy, Error: h.Error, CheckedAt: h.CheckedAt}
}

var health = &HealthStatus{CheckedAt: time.Now()}

func main() {
	configPath := flag.String("config", "", "path to an optional YAML config overlay")
	dsn := flag.String("database-dsn", os.Getenv("LEDGER_DATABASE_DSN"), "Postgres connection string")
	healthAddr := flag.String("health-addr", ":8081", "address the /healthz and /metrics endpoints listen on")
	voteInterval := flag.Duration("vote-interval", 2*time.Second, "how often to scan for unvoted blocks")
	flag.Parse()

	logger := log.New(log.Writer(), "[voterd] ", log.LstdFlags)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.NewPostgres(ctx, *dsn, store.WithLogger(log.New(log.Writer(), "[store] ", log.LstdFlags)))
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	defer st.Close()

	led, err := ledger.New(cfg, st)
	if err != nil {
		logger.Fatalf("construct ledger: %v", err)
	}

	if err := bootstrapGenesis(ctx, led, logger); err != nil {
		logger.Fatalf("bootstrap genesis: %v", err)
	}
	health.set(true, "")

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthzHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	httpServer := &http.Server{Addr: *healthAddr, Handler: mux}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("health server stopped: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(*voteInterval)
	defer ticker.Stop()

	logger.Printf("voterd started, self=%s", led.Self)
	for {
		select {
		case <-sigCh:
			logger.Println("shutting down")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			httpServer.Shutdown(shutdownCtx)
			shutdownCancel()
			return
		case <-ticker.C:
			if err := voteRound(ctx, led, logger); err != nil {
				logger.Printf("vote round: %v", err)
				health.set(false, err.Error())
			} else {
				health.set(true, "")
			}
		}
	}
}

// bootstrapGenesis creates the genesis block if bigchain is empty. An
// already-populated bigchain (ErrGenesisBlockAlreadyExists) is not an
// error on startup.
func bootstrapGenesis(ctx context.Context, led *ledger.Ledger, logger *log.Logger) error {
	b, err := led.Block.CreateGenesisBlock(ctx)
	if err != nil {
		count, countErr := led.Store.Bigchain().Count(ctx)
		if countErr == nil && count > 0 {
			return nil
		}
		return err
	}
	logger.Printf("created genesis block %s", b.ID)
	return nil
}

// voteRound validates and votes on every block this node has not yet voted
// on, writing each vote back before moving to the next.
func voteRound(ctx context.Context, led *ledger.Ledger, logger *log.Logger) error {
	unvoted, err := led.Query.UnvotedBlocks(ctx)
	if err != nil {
		return fmt.Errorf("list unvoted blocks: %w", err)
	}
	for _, b := range unvoted {
		var invalidReason *string
		valid := true
		if err := led.Block.ValidateBlock(ctx, b); err != nil {
			valid = false
			reason := err.Error()
			invalidReason = &reason
		}

		last, err := led.Query.LastVotedBlock(ctx)
		if err != nil {
			return fmt.Errorf("resolve last voted block: %w", err)
		}
		var previous crypto.Hash
		if last != nil {
			previous = last.ID
		}

		vote, err := led.Block.CastVote(b, previous, valid, invalidReason)
		if err != nil {
			return fmt.Errorf("cast vote for block %s: %w", b.ID, err)
		}
		var blockNumber uint64
		if last != nil && last.BlockNumber != nil {
			blockNumber = *last.BlockNumber + 1
		}
		if err := led.Block.WriteVote(ctx, b, vote, blockNumber); err != nil {
			return fmt.Errorf("write vote for block %s: %w", b.ID, err)
		}
		logger.Printf("voted %t on block %s", valid, b.ID)
	}
	return nil
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	snap := health.snapshot()
	w.Header().Set("Content-Type", "application/json")
	if !snap.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(snap)
}
