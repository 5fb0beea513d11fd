package queue

import (
	"context"
	"encoding/json"

	"github.com/placegraph/backend/pkg/logger"
	"github.com/placegraph/backend/pkg/store"
)

// DeleteMsg asks the worker to drop all derived artifacts for one
// business. Upstream records are untouched.
type DeleteMsg struct {
	BusinessID    int64  `json:"business_id"`
	CorrelationID string `json:"correlation_id"`
}

func ProcessDeleteMessage(
	ctx context.Context,
	storage store.Storage,
	msg string,
) error {
	data := new(DeleteMsg)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return err
	}

	if err := storage.DeleteBusinessArtifacts(ctx, data.BusinessID); err != nil {
		return err
	}

	logger.Info("[Queue] Artifacts deleted",
		"correlation_id", data.CorrelationID,
		"business_id", data.BusinessID,
	)
	return nil
}
