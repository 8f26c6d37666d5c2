// Package api exposes the execution engine over HTTP.
package api

import (
	"net/http"
	"strconv"

	"execution-core/internal/engine"
	"execution-core/pkg/exchanges/common"

	"github.com/gin-gonic/gin"
)

// Server wires HTTP endpoints around the execution engine.
type Server struct {
	Router *gin.Engine
	Eng    *engine.Engine
}

// NewServer builds the router with the standard middleware stack.
func NewServer(eng *engine.Engine) *Server {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(NewIPRateLimiter().Middleware())
	r.Use(CORSMiddleware())

	s := &Server{Router: r, Eng: eng}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)

	api := s.Router.Group("/api")
	{
		api.GET("/status", s.getStatus)
		api.GET("/positions", s.getPositions)
		api.GET("/performance", s.getPerformance)
		api.GET("/performance/suggestions", s.getSuggestions)
		api.GET("/tuner", s.getTunerParams)

		api.GET("/orders", s.getOrders)
		api.GET("/orders/:id", s.getOrder)
		api.POST("/orders", s.placeOrder)
		api.POST("/orders/cancel-all", s.cancelAllOrders)
		api.POST("/orders/:id/cancel", s.cancelOrder)
		api.PUT("/orders/:id/price", s.modifyOrderPrice)
		api.PUT("/orders/:id/quantity", s.modifyOrderQuantity)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) getStatus(c *gin.Context) {
	st, err := s.Eng.SystemStatus(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) getPositions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"positions": s.Eng.Positions()})
}

func (s *Server) getPerformance(c *gin.Context) {
	c.JSON(http.StatusOK, s.Eng.Performance())
}

func (s *Server) getSuggestions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"suggestions": s.Eng.Suggestions()})
}

func (s *Server) getTunerParams(c *gin.Context) {
	c.JSON(http.StatusOK, s.Eng.TunerParams())
}

// getOrders returns the pending book, or a symbol's history when
// ?symbol= is given.
func (s *Server) getOrders(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		pending, err := s.Eng.PendingOrders(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"pending": pending})
		return
	}

	status := common.OrderStatus(c.Query("status"))
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	orders, err := s.Eng.OrdersBySymbol(c.Request.Context(), symbol, status, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (s *Server) getOrder(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	rec, err := s.Eng.GetOrder(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// placeOrderRequest is the JSON body for POST /api/orders.
type placeOrderRequest struct {
	Symbol    string   `json:"symbol" binding:"required"`
	Side      string   `json:"side" binding:"required"`
	Type      string   `json:"type"`
	Intent    string   `json:"intent"`
	Quantity  float64  `json:"quantity" binding:"required"`
	Price     float64  `json:"price"`
	StopPrice float64  `json:"stop_price"`
	Leverage  int      `json:"leverage"`
	Strength  *float64 `json:"strength"`
	Urgent    bool     `json:"urgent"`
}

func (s *Server) placeOrder(c *gin.Context) {
	var body placeOrderRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	orderType := common.OrderType(body.Type)
	if body.Type == "" {
		orderType = common.OrderTypeLimit
	}
	// A nil pointer means the caller sent no strength at all; an
	// explicit zero is a real, very weak signal.
	strength := -1.0
	if body.Strength != nil {
		strength = *body.Strength
	}

	result, err := s.Eng.PlaceOrder(c.Request.Context(), common.OrderRequest{
		Symbol:    body.Symbol,
		Side:      common.Side(body.Side),
		Type:      orderType,
		Intent:    common.Intent(body.Intent),
		Quantity:  body.Quantity,
		Price:     body.Price,
		StopPrice: body.StopPrice,
		Leverage:  body.Leverage,
		Strength:  strength,
		Urgent:    body.Urgent,
	})
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (s *Server) cancelOrder(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	symbol := c.Query("symbol")
	if symbol == "" {
		rec, err := s.Eng.GetOrder(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		symbol = rec.Symbol
	}
	if err := s.Eng.CancelOrder(c.Request.Context(), symbol, id); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"canceled": id})
}

func (s *Server) cancelAllOrders(c *gin.Context) {
	canceled, err := s.Eng.CancelAllOrders(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"canceled": canceled, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"canceled": canceled})
}

type modifyRequest struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

func (s *Server) modifyOrderPrice(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	var body modifyRequest
	if err := c.ShouldBindJSON(&body); err != nil || body.Price <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "positive price required"})
		return
	}
	result, err := s.Eng.ModifyOrderPrice(c.Request.Context(), id, body.Price)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) modifyOrderQuantity(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	var body modifyRequest
	if err := c.ShouldBindJSON(&body); err != nil || body.Quantity <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "positive quantity required"})
		return
	}
	result, err := s.Eng.ModifyOrderQuantity(c.Request.Context(), id, body.Quantity)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func orderID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return 0, false
	}
	return id, true
}

// Start serves HTTP on addr, blocking until the listener fails.
func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
