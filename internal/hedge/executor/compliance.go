package executor

import (
	"context"
	"sync"
	"time"

	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/domain"
)

// complianceCache remembers only confirmed-clean (no self-match risk)
// results. A detected violation is never cached — it must be re-evaluated,
// and reported, every single time — but a clean book is sticky for
// ComplianceCacheTTLSeconds to avoid hammering both venues' open-orders
// endpoint on a hot retry path.
type complianceCache struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func newComplianceCache() *complianceCache {
	return &complianceCache{entries: make(map[string]time.Time)}
}

func (c *complianceCache) recall(symbol string, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	at, ok := c.entries[symbol]
	if !ok {
		return false
	}
	if time.Since(at) > ttl {
		delete(c.entries, symbol)
		return false
	}
	return true
}

func (c *complianceCache) markClean(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[symbol] = time.Now()
}

// checkCompliance aborts leg1 placement if either venue already has an
// open order on the opposite side of what we are about to place there —
// placing ours would risk a self-match. It returns true when a violation
// is found.
func (e *Engine) checkCompliance(ctx context.Context, req EntryRequest) (bool, error) {
	ttl := time.Duration(e.cfg.ComplianceCacheTTLSeconds * float64(time.Second))
	if e.complianceCache.recall(req.Symbol, ttl) {
		return false, nil
	}

	hedgeVenue := req.MakerVenue.Opposite()
	intendedSide := map[domain.Venue]domain.OrderSide{
		req.MakerVenue: req.SideA,
		hedgeVenue:     req.SideB,
	}

	for venueID, adapter := range e.venues {
		intended, relevant := intendedSide[venueID]
		if !relevant {
			continue
		}
		openOrders, err := adapter.GetOpenOrders(ctx, req.Symbol)
		if err != nil {
			// best-effort: an unreachable venue cannot be checked here;
			// the pre-clean step already tried to clear stale orders.
			continue
		}
		for _, o := range openOrders {
			if o.Side == intended.Opposite() {
				return true, nil
			}
		}
	}
	e.complianceCache.markClean(req.Symbol)
	return false, nil
}
