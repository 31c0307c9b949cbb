package notification

import (
	"context"

	"github.com/devshad-01/social-task-sub000/internal/metrics"
)

// CleanupReport counts rows removed by Cleanup.
type CleanupReport struct {
	Expired   int64 `json:"expired"`
	Delivered int64 `json:"delivered"`
}

// Cleanup deletes expired offline notifications regardless of delivery state
// and delivered ones older than the retention window.
func (e *Engine) Cleanup(ctx context.Context) (CleanupReport, error) {
	now := e.now()
	var r CleanupReport

	expired, err := e.store.DeleteExpired(ctx, now)
	if err != nil {
		return r, err
	}
	r.Expired = expired
	metrics.CleanupDeleted.WithLabelValues("expired").Add(float64(expired))

	delivered, err := e.store.DeleteDeliveredBefore(ctx, now.Add(-e.opts.DeliveredRetention))
	if err != nil {
		return r, err
	}
	r.Delivered = delivered
	metrics.CleanupDeleted.WithLabelValues("delivered").Add(float64(delivered))

	e.log.Info().Int64("expired", r.Expired).Int64("delivered", r.Delivered).Msg("offline notification cleanup finished")
	return r, nil
}
