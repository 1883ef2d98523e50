// Package http assembles the public HTTP server.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/xiaot623/gogo/roundtable/internal/metrics"
	"github.com/xiaot623/gogo/roundtable/internal/service"
	v1 "github.com/xiaot623/gogo/roundtable/internal/transport/http/v1"
	"github.com/xiaot623/gogo/roundtable/internal/transport/ws"
)

// NewServer creates the HTTP server: the /v1 REST API, the /v1/ws event
// stream, /health and /metrics.
func NewServer(svc *service.Service, wsServer *ws.Server, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Handlers
	v1Handler := v1.NewHandler(svc)

	// Register Routes
	v1Handler.RegisterRoutes(e)
	if wsServer != nil {
		e.GET("/v1/ws", wsServer.HandleWebSocket)
	}
	if m != nil {
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}

	return e
}
