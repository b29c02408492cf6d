package gatekeeper

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"perimeter/internal/database"
	"perimeter/internal/domain"
	"perimeter/internal/reputation"
)

const defaultQueueSize = 256

// ProbeQueue buffers reputation lookups triggered by requests to routes the
// gateway does not serve. Lookups run on a single background worker so a
// probe burst never blocks request handling; when the buffer is full new
// probes are dropped, not queued.
type ProbeQueue struct {
	tasks   chan string
	checker *reputation.Checker
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
	dropped atomic.Int64
}

func NewProbeQueue(checker *reputation.Checker, size int) *ProbeQueue {
	if size <= 0 {
		size = defaultQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &ProbeQueue{
		tasks:   make(chan string, size),
		checker: checker,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go q.run(ctx)
	return q
}

// Enqueue hands an address to the background worker. Returns false when the
// buffer is full and the probe was dropped.
func (q *ProbeQueue) Enqueue(address string) bool {
	select {
	case q.tasks <- address:
		return true
	default:
		if q.dropped.Add(1)%100 == 1 {
			log.Warn("Probe queue full, dropping lookups", "dropped_total", q.dropped.Load())
		}
		return false
	}
}

// Dropped reports how many probes were discarded because the buffer was full.
func (q *ProbeQueue) Dropped() int64 {
	return q.dropped.Load()
}

func (q *ProbeQueue) Close() {
	q.once.Do(func() {
		q.cancel()
		<-q.done
	})
}

func (q *ProbeQueue) run(ctx context.Context) {
	defer close(q.done)

	for {
		select {
		case <-ctx.Done():
			return
		case address := <-q.tasks:
			q.process(ctx, address)
		}
	}
}

func (q *ProbeQueue) process(ctx context.Context, address string) {
	// Addresses that already sit in a tier were verified recently; only
	// unknown ones are worth a remote lookup.
	tier, err := database.CurrentTier(ctx, address)
	if err != nil {
		log.Warn("Probe tier lookup failed", "address", address, "error", err)
		return
	}
	if tier != domain.TierUnclassified {
		return
	}

	outcome := q.checker.CheckAndBlockIP(ctx, address, "flagged after probing unknown routes")
	if outcome.Blocked {
		log.Info("Probing address blocked",
			"address", outcome.Address,
			"confidence", outcome.Confidence,
		)
	}
}
