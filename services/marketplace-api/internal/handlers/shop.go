package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kithly/marketplace/services/marketplace-api/internal/middlewares"
	"github.com/kithly/marketplace/services/marketplace-api/internal/service"
)

type ShopHandler struct {
	svc *service.ShopSvc
}

func NewShopHandler(svc *service.ShopSvc) *ShopHandler {
	return &ShopHandler{svc: svc}
}

// POST /shops (shop_owner)
func (h *ShopHandler) Create(c *gin.Context) {
	var in struct {
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
		IsOpen      *bool  `json:"is_open"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	id, _ := middlewares.IdentityFrom(c)
	open := true
	if in.IsOpen != nil {
		open = *in.IsOpen
	}
	shop, err := h.svc.Create(c.Request.Context(), id, service.CreateShopInput{
		Name:        in.Name,
		Description: in.Description,
		IsOpen:      open,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toOwnShop(shop))
}

// GET /shops?page=1&page_size=20
func (h *ShopHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if size > 100 {
		size = 100
	}
	shops, err := h.svc.ListOpen(c.Request.Context(), page-1, size)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]shopJSON, 0, len(shops))
	for _, s := range shops {
		out = append(out, toShop(s))
	}
	c.JSON(http.StatusOK, gin.H{"shops": out})
}

// GET /shops/:id/products
func (h *ShopHandler) Products(c *gin.Context) {
	products, err := h.svc.Products(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]productJSON, 0, len(products))
	for _, p := range products {
		out = append(out, toProduct(p))
	}
	c.JSON(http.StatusOK, gin.H{"products": out})
}

// GET /shops/mine (shop_owner)
func (h *ShopHandler) Mine(c *gin.Context) {
	id, _ := middlewares.IdentityFrom(c)
	shop, err := h.svc.Mine(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOwnShop(shop))
}

// POST /shops/settings (shop_owner). The target shop comes from the token.
func (h *ShopHandler) Settings(c *gin.Context) {
	var in struct {
		BankName      string  `json:"bank_name"      binding:"required"`
		AccountNumber string  `json:"account_number" binding:"required"`
		AccountName   string  `json:"account_name"   binding:"required"`
		RecipientID   *string `json:"recipient_id"`
		IsOpen        *bool   `json:"is_open"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	id, _ := middlewares.IdentityFrom(c)
	shop, err := h.svc.UpdateSettings(c.Request.Context(), id, service.ShopSettingsInput{
		BankName:      in.BankName,
		AccountNumber: in.AccountNumber,
		AccountName:   in.AccountName,
		RecipientID:   in.RecipientID,
		IsOpen:        in.IsOpen,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOwnShop(shop))
}
