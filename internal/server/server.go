package server

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type Config struct {
	Addr    string
	DevMode bool
}

// Server wraps the echo engine with lifecycle management.
type Server struct {
	e   *echo.Echo
	cfg Config
}

func New(h *Handlers, cfg Config) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	if cfg.DevMode {
		e.Use(middleware.Logger())
	}

	e.Server.ReadTimeout = 15 * time.Second
	// Signed swaps block on confirmation, so the write window must cover a
	// full submit-and-confirm cycle.
	e.Server.WriteTimeout = 5 * time.Minute
	e.Server.IdleTimeout = 60 * time.Second

	registerRoutes(e, h)
	return &Server{e: e, cfg: cfg}
}

func registerRoutes(e *echo.Echo, h *Handlers) {
	e.HTTPErrorHandler = jsonErrorHandler()
	e.Use(setJSONContentType)

	e.GET("/healthz", h.Health)

	v1 := e.Group("/v1")
	v1.POST("/swap", h.Swap)
	v1.GET("/attempts", h.Attempts)
	v1.GET("/attempts/:id", h.Attempt)

	e.RouteNotFound("/*", func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found", Code: http.StatusNotFound})
	})
}

func (s *Server) Start() error {
	return s.e.Start(s.cfg.Addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.e.Shutdown(ctx)
}

func setJSONContentType(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		return next(c)
	}
}

// jsonErrorHandler keeps every error response, including echo's own 404s
// and method errors, in the uniform JSON shape.
func jsonErrorHandler() echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		if he, ok := err.(*echo.HTTPError); ok {
			_ = c.JSON(he.Code, ErrorResponse{Error: http.StatusText(he.Code), Code: he.Code})
			return
		}
		_ = c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "internal server error",
			Code:  http.StatusInternalServerError,
		})
	}
}
