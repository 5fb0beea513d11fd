package routes

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/placegraph/backend/internal/queue"
	"github.com/placegraph/backend/internal/server/middleware"
	"github.com/placegraph/backend/pkg/logger"
)

// PostReindexHandler queues an index run. An empty business_ids list
// reindexes every business.
func PostReindexHandler(c echo.Context) error {
	type reindexBody struct {
		BusinessIDs []int64 `json:"business_ids"`
	}

	type reindexResponse struct {
		Message       string `json:"message"`
		CorrelationID string `json:"correlation_id,omitempty"`
	}

	data := new(reindexBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, reindexResponse{Message: "Invalid request body"})
	}
	for _, id := range data.BusinessIDs {
		if id <= 0 {
			return c.JSON(http.StatusBadRequest, reindexResponse{Message: "business IDs must be positive integers"})
		}
	}

	correlationID, err := gonanoid.New()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, reindexResponse{Message: "Failed to queue index run"})
	}

	msg, err := json.Marshal(queue.IndexMsg{
		BusinessIDs:   data.BusinessIDs,
		CorrelationID: correlationID,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, reindexResponse{Message: "Failed to queue index run"})
	}

	app := c.(*middleware.AppContext).App
	if err := queue.PublishFIFO(app.Queue, "index_queue", msg); err != nil {
		logger.Error("Failed to publish index message", "correlation_id", correlationID, "err", err)
		return c.JSON(http.StatusInternalServerError, reindexResponse{Message: "Failed to queue index run"})
	}

	return c.JSON(http.StatusAccepted, reindexResponse{
		Message:       "Index run queued",
		CorrelationID: correlationID,
	})
}
