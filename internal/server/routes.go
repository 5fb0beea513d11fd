package server

import (
	"github.com/placegraph/backend/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api")

	// Search routes
	apiRoutes.POST("/search", routes.PostSearchHandler)

	// Business routes
	apiRoutes.GET("/businesses/:id/verified-claims", routes.GetVerifiedClaimsHandler)
	apiRoutes.POST("/businesses/reindex", routes.PostReindexHandler)
	apiRoutes.DELETE("/businesses/:id/artifacts", routes.DeleteArtifactsHandler)
}
