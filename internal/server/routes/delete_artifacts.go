package routes

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/placegraph/backend/internal/queue"
	"github.com/placegraph/backend/internal/server/middleware"
	"github.com/placegraph/backend/pkg/logger"
)

// DeleteArtifactsHandler queues the removal of all derived artifacts
// for one business. The upstream business record is untouched.
func DeleteArtifactsHandler(c echo.Context) error {
	type deleteArtifactsResponse struct {
		Message       string `json:"message"`
		CorrelationID string `json:"correlation_id,omitempty"`
	}

	businessID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || businessID <= 0 {
		return c.JSON(http.StatusBadRequest, deleteArtifactsResponse{Message: "Invalid business ID"})
	}

	correlationID, err := gonanoid.New()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, deleteArtifactsResponse{Message: "Failed to queue artifact deletion"})
	}

	msg, err := json.Marshal(queue.DeleteMsg{
		BusinessID:    businessID,
		CorrelationID: correlationID,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, deleteArtifactsResponse{Message: "Failed to queue artifact deletion"})
	}

	app := c.(*middleware.AppContext).App
	if err := queue.PublishFIFO(app.Queue, "delete_queue", msg); err != nil {
		logger.Error("Failed to publish delete message", "correlation_id", correlationID, "err", err)
		return c.JSON(http.StatusInternalServerError, deleteArtifactsResponse{Message: "Failed to queue artifact deletion"})
	}

	return c.JSON(http.StatusAccepted, deleteArtifactsResponse{
		Message:       "Artifact deletion queued",
		CorrelationID: correlationID,
	})
}
