package evidence

import (
	"time"

	"github.com/tudragon154203/product-video-matching-sub000/infrastructure/broker"
	"github.com/tudragon154203/product-video-matching-sub000/infrastructure/logging"
	"github.com/tudragon154203/product-video-matching-sub000/infrastructure/metrics"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/cancellation"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/coordinator"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/domain"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/idempotency"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/progress"
)

// stageConfig returns the evidence stage's binding out of
// coordinator.DefaultStageConfigs, so the topic/field wiring lives in one
// place.
func stageConfig() coordinator.StageConfig {
	for _, cfg := range coordinator.DefaultStageConfigs() {
		if cfg.Stage == domain.StageEvidenceBuild {
			return cfg
		}
	}
	panic("evidence: missing stage config")
}

// NewCoordinator builds the evidence coordinator: a coordinator.StageCoordinator
// bound to the evidence stage's topics, with builder.BuildForMatchResult
// run against every deduplicated match.result before it counts toward
// completion. cancelled may be nil.
func NewCoordinator(bus broker.Broker, store progress.Store, ledger idempotency.Ledger, builder *Builder, thresholdPct int, watermarkTTL time.Duration, m *metrics.Metrics, log *logging.Logger, cancelled *cancellation.Checker) *coordinator.StageCoordinator {
	return coordinator.New(stageConfig(), bus, store, ledger, thresholdPct, watermarkTTL, m, log,
		coordinator.WithReadyHook(builder.BuildForMatchResult),
		coordinator.WithCancellationChecker(cancelled))
}
