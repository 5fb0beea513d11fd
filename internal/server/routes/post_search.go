package routes

import (
	"net/http"
	"strings"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"

	"github.com/placegraph/backend/internal/server/middleware"
	"github.com/placegraph/backend/pkg/logger"
	"github.com/placegraph/backend/pkg/search"
)

// PostSearchHandler runs an evidence-backed precision search over the
// indexed businesses.
func PostSearchHandler(c echo.Context) error {
	type searchBody struct {
		Query                        string  `json:"query" validate:"required"`
		Lat                          float64 `json:"lat" validate:"omitempty,gte=-90,lte=90"`
		Lng                          float64 `json:"lng" validate:"omitempty,gte=-180,lte=180"`
		IncludeChains                bool    `json:"include_chains"`
		ConsumerFacingOnly           *bool   `json:"consumer_facing_only"`
		IncludeServiceAreaBusinesses bool    `json:"include_service_area_businesses"`
		RequireDelivery              bool    `json:"require_delivery"`
		RequireTakeout               bool    `json:"require_takeout"`
		RequireDineIn                bool    `json:"require_dine_in"`
		RequireCurbsidePickup        bool    `json:"require_curbside_pickup"`
		OpenNow                      bool    `json:"open_now"`
		WalkingDistance              bool    `json:"walking_distance"`
		WalkingThresholdMinutes      int     `json:"walking_threshold_minutes" validate:"omitempty,gt=0"`
		Limit                        int     `json:"limit" validate:"omitempty,gte=1,lte=100"`
	}

	type searchErrorResponse struct {
		Message string `json:"message"`
	}

	data := new(searchBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, searchErrorResponse{Message: "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, searchErrorResponse{Message: "Invalid request body"})
	}

	data.Query = strings.TrimSpace(data.Query)
	if data.Query == "" {
		return c.JSON(http.StatusBadRequest, searchErrorResponse{Message: "query must not be empty"})
	}

	params := search.DefaultParams()
	params.Query = data.Query
	params.Lat = data.Lat
	params.Lng = data.Lng
	params.IncludeChains = data.IncludeChains
	params.IncludeServiceAreaBusinesses = data.IncludeServiceAreaBusinesses
	params.RequireDelivery = data.RequireDelivery
	params.RequireTakeout = data.RequireTakeout
	params.RequireDineIn = data.RequireDineIn
	params.RequireCurbsidePickup = data.RequireCurbsidePickup
	params.OpenNow = data.OpenNow
	params.WalkingDistance = data.WalkingDistance
	if data.ConsumerFacingOnly != nil {
		params.ConsumerFacingOnly = *data.ConsumerFacingOnly
	}
	if data.WalkingThresholdMinutes > 0 {
		params.WalkingThresholdMinutes = data.WalkingThresholdMinutes
	}
	if data.Limit > 0 {
		params.Limit = data.Limit
	}

	app := c.(*middleware.AppContext).App
	response, err := app.Search.Search(c.Request().Context(), params)
	if err != nil {
		logger.Error("Search failed", "query", params.Query, "err", err)
		return c.JSON(http.StatusInternalServerError, searchErrorResponse{Message: "Failed to execute search"})
	}

	return c.JSON(http.StatusOK, response)
}
