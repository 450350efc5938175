/*
scheduler.go - Automated snapshot refresh scheduler

PURPOSE:
  Periodically re-runs the history refresh for every month that has data,
  so the persisted snapshots track new imports without anyone pressing
  the refresh button.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Refreshes the global (unfiltered) snapshot per known month
  - Skips silently when the store is empty

CONFIGURATION:
  - CheckInterval: How often to refresh (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewRefreshScheduler(handler)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RefreshFindings endpoint (manual refresh)
  - history/history.go: The refresh operation itself
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/resource-insights/tracking"
)

// RefreshScheduler keeps the persisted snapshots current.
type RefreshScheduler struct {
	Handler       *Handler
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewRefreshScheduler creates a new scheduler.
func NewRefreshScheduler(handler *Handler) *RefreshScheduler {
	return &RefreshScheduler{
		Handler:       handler,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (rs *RefreshScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.wg.Add(1)

	go rs.run()

	log.Printf("[Scheduler] Started with check interval: %v", rs.CheckInterval)
}

// Stop stops the scheduler.
func (rs *RefreshScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (rs *RefreshScheduler) run() {
	defer rs.wg.Done()

	// Run immediately on start
	rs.refreshAll()

	for {
		select {
		case <-rs.ticker.C:
			rs.refreshAll()
		case <-rs.stop:
			return
		}
	}
}

func (rs *RefreshScheduler) refreshAll() {
	ctx := context.Background()

	ds, err := tracking.Load(ctx, rs.Handler.Store)
	if err != nil {
		log.Printf("[Scheduler] Error loading dataset: %v", err)
		return
	}

	months := ds.Months()
	if len(months) == 0 {
		return
	}

	refreshed := 0
	for _, month := range months {
		if err := rs.Handler.History.Refresh(ctx, month, ""); err != nil {
			log.Printf("[Scheduler] Error refreshing %s: %v", month, err)
			continue
		}
		refreshed++
	}
	log.Printf("[Scheduler] Refreshed %d of %d months", refreshed, len(months))
}

// RunNow triggers an immediate refresh (for testing/admin).
func (rs *RefreshScheduler) RunNow() {
	rs.refreshAll()
}
