package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kithly/marketplace/services/marketplace-api/internal/middlewares"
	"github.com/kithly/marketplace/services/marketplace-api/internal/service"
)

type ProductHandler struct {
	svc *service.ProductSvc
}

func NewProductHandler(svc *service.ProductSvc) *ProductHandler {
	return &ProductHandler{svc: svc}
}

// POST /products (shop_owner, must own shop_id)
func (h *ProductHandler) Create(c *gin.Context) {
	var in struct {
		ShopID       string `json:"shop_id" binding:"required"`
		Name         string `json:"name"    binding:"required"`
		Description  string `json:"description"`
		PriceInCents int64  `json:"price_in_cents" binding:"min=0"`
		Stock        int64  `json:"stock"          binding:"min=0"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	id, _ := middlewares.IdentityFrom(c)
	p, err := h.svc.Create(c.Request.Context(), id, service.CreateProductInput{
		ShopID:       in.ShopID,
		Name:         in.Name,
		Description:  in.Description,
		PriceInCents: in.PriceInCents,
		Stock:        in.Stock,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toProduct(*p))
}

// PATCH /products/:id (shop_owner, must own the product's shop)
func (h *ProductHandler) Update(c *gin.Context) {
	var in struct {
		Name         *string `json:"name"`
		Description  *string `json:"description"`
		PriceInCents *int64  `json:"price_in_cents"`
		Stock        *int64  `json:"stock"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	id, _ := middlewares.IdentityFrom(c)
	p, err := h.svc.Update(c.Request.Context(), id, c.Param("id"), service.UpdateProductInput{
		Name:         in.Name,
		Description:  in.Description,
		PriceInCents: in.PriceInCents,
		Stock:        in.Stock,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toProduct(*p))
}
