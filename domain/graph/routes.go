package graph

import "github.com/labstack/echo/v4"

// RegisterRoutes registers all graph routes.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	g := e.Group("/api/graph")

	g.POST("/relate", h.Relate)
	g.POST("/relate/batch", h.RelateBatch)
	g.GET("/relations", h.Relations)
	g.GET("/edges", h.Edges)
	g.GET("/tasks/:id", h.GetTask)
	g.GET("/tasks/:id/events", h.WatchTask)
}
