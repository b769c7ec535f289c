// Package httpapi exposes the planner over HTTP.
package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cookidoo-planner/internal/app"
	"cookidoo-planner/internal/shared"
	"cookidoo-planner/internal/suggest"
)

// Server routes HTTP requests to the users' planner controllers.
type Server struct {
	app    *app.App
	logger *slog.Logger
	router *gin.Engine
}

// New builds the router.
func New(a *app.App, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{app: a, logger: logger, router: gin.New()}
	s.router.Use(gin.Recovery(), s.logRequests())
	s.RegisterRoutes(s.router)
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Webhook mounts an external handler, such as the Telegram webhook, on the router.
func (s *Server) Webhook(path string, h http.HandlerFunc) {
	s.router.POST(path, gin.WrapF(h))
}

// RegisterRoutes registers every endpoint on r.
//
//	GET    /health
//	GET    /metrics
//	GET    /api/ingredients/suggest?q=&key=
//	GET    /api/users/:user/state
//	PUT    /api/users/:user/days/:day/groups/:group
//	PUT    /api/users/:user/days/:day/slots/:slot
//	PUT    /api/users/:user/days/:day/override
//	PUT    /api/users/:user/days/:day/nav
//	POST   /api/users/:user/days/:day/slots/:slot/reroll
//	PUT    /api/users/:user/filters
//	POST   /api/users/:user/ingredients/:kind
//	DELETE /api/users/:user/ingredients/:kind/:index
//	POST   /api/users/:user/generate
//	POST   /api/users/:user/logout
//	GET    /api/users/:user/config
//	PUT    /api/users/:user/config
//	DELETE /api/users/:user/config
func (s *Server) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.GET("/ingredients/suggest", s.suggest)

	u := api.Group("/users/:user")
	u.GET("/state", s.state)
	u.PUT("/days/:day/groups/:group", s.setGroup)
	u.PUT("/days/:day/slots/:slot", s.setSlot)
	u.PUT("/days/:day/override", s.setOverride)
	u.PUT("/days/:day/nav", s.setNav)
	u.POST("/days/:day/slots/:slot/reroll", s.reroll)
	u.PUT("/filters", s.setFilters)
	u.POST("/ingredients/:kind", s.addIngredient)
	u.DELETE("/ingredients/:kind/:index", s.removeIngredient)
	u.POST("/generate", s.generate)
	u.POST("/logout", s.logout)
	u.GET("/config", s.exportConfig)
	u.PUT("/config", s.importConfig)
	u.DELETE("/config", s.deleteConfig)
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		level := slog.LevelDebug
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		s.logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// writeError maps domain errors onto status codes.
func (s *Server) writeError(c *gin.Context, err error) {
	var (
		verr *shared.ValidationError
		berr *shared.BackendFailure
	)
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "field": verr.Field})
	case errors.As(err, &berr):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "operation": berr.Op})
	case errors.Is(err, suggest.ErrSuperseded), errors.Is(err, shared.ErrPlanCleared):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		s.logger.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "system": s.app.Health()})
}

func (s *Server) suggest(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		key = c.ClientIP()
	}
	names, err := s.app.Suggest(c.Request.Context(), key, c.Query("q"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"ingredients": names})
}
