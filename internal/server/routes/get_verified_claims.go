package routes

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/placegraph/backend/internal/server/middleware"
	"github.com/placegraph/backend/pkg/logger"
	"github.com/placegraph/backend/pkg/search"
)

// GetVerifiedClaimsHandler returns the verified claims for one business,
// ordered by confidence.
func GetVerifiedClaimsHandler(c echo.Context) error {
	type verifiedClaimsResponse struct {
		Message    string                        `json:"message,omitempty"`
		BusinessID int64                         `json:"business_id,omitempty"`
		Claims     []search.VerifiedClaimPayload `json:"claims,omitempty"`
	}

	businessID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || businessID <= 0 {
		return c.JSON(http.StatusBadRequest, verifiedClaimsResponse{Message: "Invalid business ID"})
	}

	app := c.(*middleware.AppContext).App
	claims, err := app.Search.VerifiedClaimsForBusiness(c.Request().Context(), businessID)
	if err != nil {
		logger.Error("Failed to load verified claims", "business_id", businessID, "err", err)
		return c.JSON(http.StatusInternalServerError, verifiedClaimsResponse{Message: "Failed to load verified claims"})
	}

	return c.JSON(http.StatusOK, verifiedClaimsResponse{
		BusinessID: businessID,
		Claims:     claims,
	})
}
