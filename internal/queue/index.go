package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/placegraph/backend/internal/util"
	"github.com/placegraph/backend/pkg/logger"
	"github.com/placegraph/backend/pkg/pipeline"
	"github.com/placegraph/backend/pkg/store"
	"github.com/placegraph/backend/pkg/taxonomy"
)

// IndexMsg asks the worker to rebuild artifacts. An empty business ID
// list means every business.
type IndexMsg struct {
	BusinessIDs   []int64 `json:"business_ids"`
	CorrelationID string  `json:"correlation_id"`
}

func ProcessIndexMessage(
	ctx context.Context,
	tax *taxonomy.Taxonomy,
	storage store.Storage,
	msg string,
) error {
	data := new(IndexMsg)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return err
	}

	parallelism := util.GetEnvInt("PIPELINE_PARALLELISM", 1)
	pipe := pipeline.New(tax, storage, parallelism)

	start := time.Now()
	stats, err := pipe.Run(ctx, data.BusinessIDs)
	if err != nil {
		return err
	}

	logger.Info("[Queue] Index run completed",
		"correlation_id", data.CorrelationID,
		"businesses", stats.BusinessesProcessed,
		"spans", stats.SpansExtracted,
		"claims", stats.ClaimsMapped,
		"verified", stats.ClaimsVerified,
		"failures", stats.Failures,
		"duration_sec", time.Since(start).Seconds(),
	)
	return nil
}
