// Package devseed seeds a local development database with a small set of job
// definitions so the engine is usable immediately after startup.
package devseed

import (
	"context"
	"log/slog"
	"time"

	"github.com/fundingcalc/jobs-engine/internal/core"
	"github.com/fundingcalc/jobs-engine/internal/domain/model"
)

// Run upserts the development job definitions through the catalog. Individual
// failures are logged and counted rather than aborting the seed.
func Run(ctx context.Context, catalog *core.DefinitionCatalog, logger *slog.Logger) error {
	failures := 0
	for _, definition := range definitions() {
		if err := catalog.Save(ctx, definition); err != nil {
			failures++
			if logger != nil {
				logger.WarnContext(ctx, "failed to seed job definition",
					"definition", definition.ID,
					"error", err,
				)
			}
			continue
		}
		if logger != nil {
			logger.InfoContext(ctx, "seeded job definition", "definition", definition.ID)
		}
	}

	if logger != nil {
		logger.InfoContext(ctx, "development seed finished", "failures", failures)
	}
	return nil
}

func definitions() []*model.JobDefinition {
	return []*model.JobDefinition{
		{
			ID:        "funding-calculation",
			Timeout:   30 * time.Minute,
			QueueName: "funding-calculation-work",
			SupersedeExistingRunningJobOnEnqueue: true,
		},
		{
			ID:                  "funding-ingest",
			Timeout:             15 * time.Minute,
			QueueName:           "funding-ingest-work",
			SessionPropertyName: "account-id",
			RequiredBodyPaths:   []string{"accountId", "period.start"},
		},
		{
			ID:      "funding-rollup",
			Timeout: time.Hour,
			// Parent-only: completed by its children.
			PreCompletionJobDefinitionIDs: []string{"funding-report"},
		},
		{
			ID:        "funding-report",
			Timeout:   10 * time.Minute,
			TopicName: "funding-report-requests",
		},
	}
}
