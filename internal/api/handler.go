package api

import (
	"net/http"
	"time"

	"tradepipe/internal/events"
	"tradepipe/internal/order"
	"tradepipe/internal/risk"
	"tradepipe/internal/strategy"
	"tradepipe/pkg/db"

	"github.com/gin-gonic/gin"
)

// Server wires HTTP endpoints around the pipeline state and event bus.
type Server struct {
	Router     *gin.Engine
	Bus        *events.Bus
	DB         *db.Database
	Scope      order.Scope
	RiskCfg    risk.Config
	OrderCfg   order.Config
	FeeBps     float64
	Strategies []strategy.Config
	JWTSecret  string
	APIToken   string
	Meta       SystemMeta
}

// SystemMeta describes runtime status exposed to clients.
type SystemMeta struct {
	Mode        string
	Symbol      string
	Timeframe   string
	UseMockFeed bool
	Version     string
}

func NewServer(bus *events.Bus, database *db.Database, scope order.Scope,
	riskCfg risk.Config, orderCfg order.Config, feeBps float64,
	strategies []strategy.Config, meta SystemMeta, jwtSecret, apiToken string) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware())
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:     r,
		Bus:        bus,
		DB:         database,
		Scope:      scope,
		RiskCfg:    riskCfg,
		OrderCfg:   orderCfg,
		FeeBps:     feeBps,
		Strategies: strategies,
		JWTSecret:  jwtSecret,
		APIToken:   apiToken,
		Meta:       meta,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.GET("/system/status", s.getSystemStatus)

		// Auth endpoints (no auth required)
		auth := api.Group("/auth")
		{
			auth.POST("/login", s.loginOperator)
		}

		// Protected API
		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.GET("/portfolio", s.getPortfolio)
			protected.GET("/strategies", s.getStrategies)
			protected.GET("/orders", s.getOrders)
			protected.GET("/trades", s.getTrades)
			protected.GET("/signals", s.getSignals)
			protected.GET("/risk-events", s.getRiskEvents)
			protected.GET("/backtests", s.getBacktestRuns)
			protected.POST("/backtests", s.createBacktest)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
