package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"tradepipe/internal/backtest"
	"tradepipe/internal/order"
	"tradepipe/internal/strategy"

	"github.com/gin-gonic/gin"
)

type listQuery struct {
	Limit int `form:"limit"`
}

func (q *listQuery) normalize() {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	if q.Limit > 500 {
		q.Limit = 500
	}
}

type createBacktestRequest struct {
	Strategy    string  `json:"strategy" binding:"required,min=1"`
	StartDate   string  `json:"start_date" binding:"required"`
	EndDate     string  `json:"end_date" binding:"required"`
	Timeframe   string  `json:"timeframe"`
	StartEquity float64 `json:"start_equity"`
	Label       string  `json:"label"`
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

func (s *Server) getSystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"mode":          s.Meta.Mode,
		"symbol":        s.Meta.Symbol,
		"timeframe":     s.Meta.Timeframe,
		"use_mock_feed": s.Meta.UseMockFeed,
		"version":       s.Meta.Version,
		"server_time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// getPortfolio returns the portfolio row plus its open orders, open
// trades and the equity basis the risk gate would use right now.
func (s *Server) getPortfolio(c *gin.Context) {
	state, err := s.DB.LoadPortfolioState(c.Request.Context(), s.Scope.PortfolioID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"portfolio":     state.Portfolio,
		"equity":        state.Equity(),
		"open_orders":   state.OpenOrders,
		"open_trades":   state.OpenTrades,
		"last_snapshot": state.LastSnapshot,
	})
}

func (s *Server) getStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"strategies": s.Strategies})
}

func (s *Server) getOrders(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", "invalid query parameters")
		return
	}
	q.normalize()

	orders, err := s.DB.ListOrders(c.Request.Context(), s.Scope.PortfolioID, "", q.Limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
}

func (s *Server) getTrades(c *gin.Context) {
	strategyConfigID := c.Query("strategy_config_id")
	trades, err := s.DB.ListTrades(c.Request.Context(), s.Scope.PortfolioID, s.Scope.AssetID, strategyConfigID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades, "count": len(trades)})
}

func (s *Server) getSignals(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", "invalid query parameters")
		return
	}
	q.normalize()

	signals, err := s.DB.ListSignals(c.Request.Context(), s.Scope.PortfolioID, s.Scope.AssetID, q.Limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": signals, "count": len(signals)})
}

func (s *Server) getRiskEvents(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", "invalid query parameters")
		return
	}
	q.normalize()

	events, err := s.DB.ListRiskEvents(c.Request.Context(), s.Scope.PortfolioID, q.Limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"risk_events": events, "count": len(events)})
}

func (s *Server) getBacktestRuns(c *gin.Context) {
	portfolioID := c.Query("portfolio_id")
	if portfolioID == "" {
		portfolioID = s.Scope.PortfolioID
	}
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	runs, err := s.DB.ListBacktestRuns(c.Request.Context(), portfolioID, limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

// createBacktest replays stored candles through the full pipeline for
// one of the configured strategies. Runs execute against a dedicated
// backtest portfolio so the live scope is never touched.
func (s *Server) createBacktest(c *gin.Context) {
	var req createBacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request payload")
		return
	}

	var cfg *strategy.Config
	for i := range s.Strategies {
		if s.Strategies[i].Name == req.Strategy {
			cfg = &s.Strategies[i]
			break
		}
	}
	if cfg == nil {
		respondError(c, http.StatusBadRequest, "UNKNOWN_STRATEGY", fmt.Sprintf("no strategy named %q", req.Strategy))
		return
	}

	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_DATE", "start_date must be YYYY-MM-DD")
		return
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_DATE", "end_date must be YYYY-MM-DD")
		return
	}
	if end.Before(start) {
		respondError(c, http.StatusBadRequest, "INVALID_RANGE", "end_date is before start_date")
		return
	}

	timeframe := req.Timeframe
	if timeframe == "" {
		timeframe = s.Meta.Timeframe
	}
	startEquity := req.StartEquity
	if startEquity <= 0 {
		startEquity = 10000
	}

	ctx := c.Request.Context()
	strat, err := strategy.New(*cfg)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_STRATEGY", err.Error())
		return
	}

	// End date is inclusive.
	bars, err := backtest.LoadBars(ctx, s.DB, s.Scope.AssetID, timeframe, start, end.Add(24*time.Hour))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	if len(bars) == 0 {
		respondError(c, http.StatusUnprocessableEntity, "NO_DATA", "no candles stored for the requested range")
		return
	}

	pf, err := s.DB.GetOrCreatePortfolio(ctx, cfg.Name+"-backtest", "backtest", "USD", startEquity)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}

	params, err := json.Marshal(cfg.Parameters)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_PARAMETERS", "invalid strategy parameters")
		return
	}
	stratID, err := s.DB.UpsertStrategyConfig(ctx, cfg.Name, cfg.Type, string(params), cfg.IsActive)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}

	label := req.Label
	if label == "" {
		label = fmt.Sprintf("%s %s..%s", cfg.Name, req.StartDate, req.EndDate)
	}

	res, err := backtest.RunFull(ctx, s.DB, s.Bus, backtest.Params{
		Scope: order.Scope{
			PortfolioID:      pf.ID,
			AssetID:          s.Scope.AssetID,
			StrategyConfigID: stratID,
			Symbol:           cfg.Symbol,
		},
		Strategy:   strat,
		Bars:       bars,
		RiskCfg:    s.RiskCfg,
		OrderCfg:   s.OrderCfg,
		FeeBps:     s.FeeBps,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		DataSource: "candles",
		Label:      label,
		Reset:      true,
	})
	if err != nil {
		respondError(c, http.StatusInternalServerError, "BACKTEST_ERROR", err.Error())
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"run":          res.Run,
		"portfolio_id": pf.ID,
		"trades":       len(res.Trades),
	})
}
