package coordinator

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/tudragon154203/product-video-matching-sub000/infrastructure/logging"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/domain"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/progress"
)

// Sweeper runs SweepWatermarks on a fixed interval via robfig/cron, the
// same scheduler the teacher's automation service uses for its cron
// triggers, generalized here from user-defined rules to a fixed internal
// housekeeping tick.
type Sweeper struct {
	cron *cron.Cron
}

// NewSweeper schedules a watermark sweep every interval (a Go duration
// string like "30s") against store, dispatching completions through the
// coordinators registered in stageBus.
func NewSweeper(ctx context.Context, interval string, store progress.Store, stageBus map[domain.Stage]*StageCoordinator, log *logging.Logger) (*Sweeper, error) {
	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		if err := SweepWatermarks(ctx, store, stageBus, log); err != nil {
			log.WithField("error", err).Warn("coordinator: watermark sweep failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("coordinator: schedule sweep: %w", err)
	}
	return &Sweeper{cron: c}, nil
}

// Start begins the cron scheduler.
func (s *Sweeper) Start() { s.cron.Start() }

// Stop halts the scheduler and waits for any in-flight sweep to finish.
func (s *Sweeper) Stop() { <-s.cron.Stop().Done() }
