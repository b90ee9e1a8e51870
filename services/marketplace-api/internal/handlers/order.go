package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kithly/marketplace/pkg/auth"
	"github.com/kithly/marketplace/services/marketplace-api/internal/middlewares"
	"github.com/kithly/marketplace/services/marketplace-api/internal/service"
)

type OrderHandler struct {
	orders   *service.OrderSvc
	receipts *service.ReceiptSvc
}

func NewOrderHandler(orders *service.OrderSvc, receipts *service.ReceiptSvc) *OrderHandler {
	return &OrderHandler{orders: orders, receipts: receipts}
}

// POST /orders (buyer)
func (h *OrderHandler) Checkout(c *gin.Context) {
	var in struct {
		ShopID string `json:"shop_id" binding:"required"`
		Items  []struct {
			ProductID string `json:"product_id" binding:"required"`
			Quantity  int64  `json:"quantity"   binding:"required,min=1"`
		} `json:"items" binding:"required,min=1,dive"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	id, _ := middlewares.IdentityFrom(c)
	lines := make([]service.CheckoutLine, 0, len(in.Items))
	for _, it := range in.Items {
		lines = append(lines, service.CheckoutLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	o, err := h.orders.Checkout(c.Request.Context(), id, in.ShopID, lines)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toOrder(*o, true))
}

// GET /orders: buyers see their orders, shop owners their shop's orders.
func (h *OrderHandler) List(c *gin.Context) {
	id, _ := middlewares.IdentityFrom(c)
	orders, err := h.orders.List(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	withCode := id.Role == auth.RoleBuyer
	out := make([]orderJSON, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrder(o, withCode))
	}
	c.JSON(http.StatusOK, gin.H{"orders": out})
}

// GET /orders/status?orderId= (optional auth)
func (h *OrderHandler) Status(c *gin.Context) {
	var viewer *auth.Identity
	if id, ok := middlewares.IdentityFrom(c); ok {
		viewer = &id
	}
	v, err := h.orders.Status(c.Request.Context(), viewer, c.Query("orderId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toStatus(v))
}

// POST /orders/redeem (shop_owner)
func (h *OrderHandler) Redeem(c *gin.Context) {
	var in struct {
		OrderID    string `json:"order_id"    binding:"required"`
		PickupCode string `json:"pickup_code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	id, _ := middlewares.IdentityFrom(c)
	o, err := h.orders.Redeem(c.Request.Context(), id, in.OrderID, in.PickupCode)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrder(*o, false))
}

// GET /orders/receipt?orderId= (buyer of the order or the shop owner)
func (h *OrderHandler) Receipt(c *gin.Context) {
	id, _ := middlewares.IdentityFrom(c)
	r, err := h.receipts.Get(c.Request.Context(), id, c.Query("orderId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toReceipt(r))
}
