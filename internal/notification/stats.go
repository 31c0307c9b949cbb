package notification

import (
	"context"
	"strconv"
)

// Stats is the admin view of the queue.
type Stats struct {
	Queued      int64            `json:"queued"`
	Processing  int64            `json:"processing"`
	Sent        int64            `json:"sent"`
	Failed      int64            `json:"failed"`
	ByPriority  map[string]int64 `json:"byPriority"`
	Performance Performance      `json:"performance"`
}

// Performance holds lifetime counters.
type Performance struct {
	TotalProcessed int64   `json:"totalProcessed"`
	TotalFailed    int64   `json:"totalFailed"`
	AverageRetries float64 `json:"averageRetries"`
}

// Stats aggregates the offline store and the in-memory queue. Entries that a
// running pass is delivering right now count as processing, not queued.
// Sent and failed for in-memory entries are process lifetime counters.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	now := e.now()
	counts, err := e.store.QueueCounts(ctx, now, e.opts.MaxRetries)
	if err != nil {
		return Stats{}, err
	}
	mem := e.mem.snapshot(now)
	inFlight := e.inFlight()

	byPriority := make(map[int]int64)
	for p, n := range counts.QueuedByPriority {
		byPriority[p] += n
	}
	for p, n := range mem.queuedByPriority {
		byPriority[p] += n
	}
	for _, p := range inFlight {
		if byPriority[p] > 0 {
			byPriority[p]--
		}
	}

	s := Stats{
		Processing: int64(len(inFlight)),
		Sent:       counts.Delivered + mem.sent,
		Failed:     counts.Failed + mem.failed,
		ByPriority: make(map[string]int64, len(byPriority)),
	}
	for p, n := range byPriority {
		s.Queued += n
		if n > 0 {
			s.ByPriority[strconv.Itoa(p)] = n
		}
	}
	s.Performance = Performance{
		TotalProcessed: s.Sent + s.Failed,
		TotalFailed:    s.Failed,
		AverageRetries: counts.AverageRetries,
	}
	return s, nil
}
