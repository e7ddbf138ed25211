package rest

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/catalogfi/swapper/pkg/engine"
	"github.com/catalogfi/swapper/pkg/order"
	"github.com/catalogfi/swapper/pkg/swap"
)

// Orders is the read side of the status feed, usually the in-memory tracker.
type Orders interface {
	OrderByID(id string) (order.Order, error)
}

type retryRequest struct {
	Action swap.Action `json:"action" binding:"required"`
}

// Server exposes the order status feed and the manual retry path over HTTP.
type Server struct {
	orders Orders
	engine *engine.Engine
	logger *zap.Logger
	server *http.Server
}

func NewServer(orders Orders, eng *engine.Engine, logger *zap.Logger) *Server {
	return &Server{
		orders: orders,
		engine: eng,
		logger: logger,
	}
}

// Start serves until Stop is called. Blocking.
func (s *Server) Start(addr string) error {
	router := gin.New()
	router.Use(gin.Recovery(), cors.Default())

	router.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/orders/:id", s.handleGetOrder)
	router.POST("/orders/:id/retry", s.handleRetry)

	s.server = &http.Server{Addr: addr, Handler: router}
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleGetOrder(ctx *gin.Context) {
	id := ctx.Param("id")
	ord, err := s.orders.OrderByID(id)
	if err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"order":  ord,
		"status": ord.Status.String(),
	})
}

func (s *Server) handleRetry(ctx *gin.Context) {
	id := ctx.Param("id")
	var req retryRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ord, err := s.orders.OrderByID(id)
	if err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	if err := s.engine.Retry(ctx.Request.Context(), ord, req.Action); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, engine.ErrActionNotPermitted) {
			status = http.StatusBadRequest
		}
		s.logger.Error("retry failed", zap.String("order", id), zap.String("action", string(req.Action)), zap.Error(err))
		ctx.JSON(status, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"order": id, "action": req.Action})
}
