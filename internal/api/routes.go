package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/vmkdxailabs/chatwidget/domain/entities"
	"github.com/vmkdxailabs/chatwidget/internal/observability"
	"github.com/vmkdxailabs/chatwidget/internal/websocket"
)

const serviceName = "chatwidget"

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, hub *websocket.Hub, logger *zap.Logger) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, HealthResponse{
			Status:            "ok",
			Service:           serviceName,
			ActiveConnections: hub.ActiveClients(),
		})
	})

	e.GET("/metrics", echo.WrapHandler(observability.MetricsHandler()))

	// API v1 routes
	v1 := e.Group("/api/v1")
	v1.GET("/languages", getLanguages)

	// Widget socket, one connection per open chat window
	e.GET("/ws", func(c echo.Context) error {
		return websocket.HandleWebSocket(hub, c, logger)
	})

	e.RouteNotFound("/*", func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Route not found",
		})
	})
}

func getLanguages(c echo.Context) error {
	languages := entities.SupportedLanguages()
	resp := LanguagesResponse{Languages: make([]LanguageOption, 0, len(languages))}
	for _, lang := range languages {
		resp.Languages = append(resp.Languages, LanguageOption{
			Code:  string(lang),
			Label: lang.Label(),
		})
	}
	return c.JSON(http.StatusOK, resp)
}
