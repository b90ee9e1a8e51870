package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kithly/marketplace/pkg/apperr"
	"github.com/kithly/marketplace/pkg/auth"
	"github.com/kithly/marketplace/services/marketplace-api/internal/service"
)

type AuthHandler struct {
	svc *service.AuthSvc
}

func NewAuthHandler(svc *service.AuthSvc) *AuthHandler {
	return &AuthHandler{svc: svc}
}

func parseRole(s string) (auth.Role, error) {
	r, ok := auth.ParseRole(s)
	if !ok {
		return "", apperr.Validation("role must be buyer or shop_owner")
	}
	return r, nil
}

// POST /auth/signup
func (h *AuthHandler) Signup(c *gin.Context) {
	var in struct {
		Email     string `json:"email"      binding:"required,email"`
		Password  string `json:"password"   binding:"required,min=6"`
		FirstName string `json:"first_name" binding:"required"`
		LastName  string `json:"last_name"`
		Role      string `json:"role"       binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	role, err := parseRole(in.Role)
	if err != nil {
		writeError(c, err)
		return
	}
	u, err := h.svc.Signup(c.Request.Context(), service.SignupInput{
		Email:     in.Email,
		Password:  in.Password,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Role:      role,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": u.ID, "email": u.Email, "role": u.Role})
}

// POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var in struct {
		Email    string `json:"email"    binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	sess, err := h.svc.Login(c.Request.Context(), in.Email, in.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": sess.Token, "user": toUser(sess.User)})
}

// POST /auth/google
func (h *AuthHandler) Google(c *gin.Context) {
	var in struct {
		IDToken string `json:"idToken" binding:"required"`
		Role    string `json:"role"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	// role only matters when a new account is created
	role, _ := auth.ParseRole(in.Role)
	sess, err := h.svc.Google(c.Request.Context(), in.IDToken, role)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": sess.Token, "user": toUser(sess.User)})
}

// POST /auth/request-reset
func (h *AuthHandler) RequestReset(c *gin.Context) {
	var in struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": h.svc.RequestReset(c.Request.Context(), in.Email)})
}

// POST /auth/perform-reset
func (h *AuthHandler) PerformReset(c *gin.Context) {
	var in struct {
		Token    string `json:"token"    binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.svc.PerformReset(c.Request.Context(), in.Token, in.Password); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password has been reset."})
}
