// Package http exposes the admin surface: status, pause/resume, a manual
// resync and the P&L report page.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"coinbutler/internal/ledger"
	"coinbutler/internal/reconcile"
	"coinbutler/internal/report"
	"coinbutler/internal/trader"
	"coinbutler/internal/types"
)

// Server 提供 Gin 管理接口。所有写操作都只是状态开关，没有下单入口。
type Server struct {
	addr         string
	orchestrator *trader.Orchestrator
	ledger       *ledger.Ledger
	reconciler   *reconcile.Reconciler
	report       *report.Builder
	statsDays    int
	recentTrades int
	router       *gin.Engine
}

type Config struct {
	Addr         string
	Orchestrator *trader.Orchestrator
	Ledger       *ledger.Ledger
	Reconciler   *reconcile.Reconciler
	Report       *report.Builder
	StatsDays    int
	RecentTrades int
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Orchestrator == nil || cfg.Ledger == nil {
		return nil, errors.New("orchestrator/ledger 不能为空")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9980"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		addr:         cfg.Addr,
		orchestrator: cfg.Orchestrator,
		ledger:       cfg.Ledger,
		reconciler:   cfg.Reconciler,
		report:       cfg.Report,
		statsDays:    cfg.StatsDays,
		recentTrades: cfg.RecentTrades,
		router:       router,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	api := s.router.Group("/api")
	api.GET("/status", s.handleStatus)
	api.POST("/pause", s.handlePause)
	api.POST("/resume", s.handleResume)
	api.POST("/resync", s.handleResync)
	api.GET("/trades", s.handleTrades)
	api.GET("/report", s.handleReport)
}

func (s *Server) handleStatus(c *gin.Context) {
	todayPnL, err := s.ledger.TodayPnL()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	stats, err := s.ledger.Stats(s.statsDays)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	open := s.ledger.OpenPositions()
	positions := make([]gin.H, 0, len(open))
	for _, pos := range open {
		positions = append(positions, positionJSON(pos))
	}
	c.JSON(http.StatusOK, gin.H{
		"state":        s.orchestrator.State(),
		"pause_reason": s.orchestrator.PauseReason(),
		"today_pnl":    todayPnL,
		"positions":    positions,
		"stats": gin.H{
			"days":         s.statsDays,
			"total_trades": stats.TotalTrades,
			"wins":         stats.WinningTrades,
			"losses":       stats.LosingTrades,
			"total_pnl":    stats.TotalPnL,
			"win_rate":     stats.WinRate,
			"avg_pnl":      stats.AvgPnL,
		},
	})
}

func (s *Server) handlePause(c *gin.Context) {
	s.orchestrator.Pause("manual pause via api")
	c.JSON(http.StatusOK, gin.H{"state": s.orchestrator.State()})
}

func (s *Server) handleResume(c *gin.Context) {
	s.orchestrator.Resume()
	c.JSON(http.StatusOK, gin.H{"state": s.orchestrator.State()})
}

func (s *Server) handleResync(c *gin.Context) {
	if s.reconciler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "reconciler unavailable"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()
	if err := s.reconciler.Run(ctx); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": len(s.ledger.OpenPositions())})
}

func (s *Server) handleTrades(c *gin.Context) {
	records, err := s.ledger.RecentTrades(s.recentTrades)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": records})
}

func (s *Server) handleReport(c *gin.Context) {
	if s.report == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "report unavailable"})
		return
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := s.report.Render(c.Writer, s.statsDays); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func positionJSON(pos types.Position) gin.H {
	return gin.H{
		"instrument":      pos.Instrument,
		"entry_price":     pos.EntryPrice,
		"quantity":        pos.Quantity,
		"investment":      pos.Investment,
		"entry_time":      pos.EntryTime.Format(time.RFC3339),
		"entry_estimated": pos.EntryEstimated,
	}
}

// Start 启动 HTTP 服务，阻塞直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
