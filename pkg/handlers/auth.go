package handlers

import (
	"net/http"
	"strings"

	"github.com/ASHISH26940/storyspark-api/pkg/db"
	"github.com/ASHISH26940/storyspark-api/pkg/utils"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

type RegisterRequest struct {
	Name     string `json:"name" binding:"required,min=1,max=100"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *Handlers) LoginParent(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Debugf("LoginParent: Invalid request body: %v", err)
		utils.ResponseWithError(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	parent, err := h.Store.FindParentByEmail(c.Request.Context(), req.Email)
	if err != nil {
		log.Errorf("LoginParent: Error finding parent by email: %v", err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Login failed", nil)
		return
	}
	if parent == nil {
		log.Debugf("LoginParent: Parent with email '%s' not found.", req.Email)
		utils.ResponseWithError(c, http.StatusUnauthorized, "Invalid credentials", nil)
		return
	}

	if err = bcrypt.CompareHashAndPassword([]byte(parent.PasswordHash), []byte(req.Password)); err != nil {
		log.Debugf("LoginParent: Invalid password for parent '%s'.", req.Email)
		utils.ResponseWithError(c, http.StatusUnauthorized, "Invalid credentials", nil)
		return
	}

	token, err := h.Tokens.GenerateToken(parent.ID, parent.Email, parent.Name)
	if err != nil {
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to generate authentication token", nil)
		return
	}

	log.Infof("Parent %s logged in successfully.", parent.Email)
	utils.ResponseWithSuccess(c, http.StatusOK, "Login successful", gin.H{"token": token})
}

func (h *Handlers) RegisterParent(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Debugf("RegisterParent: Invalid request body: %v", err)
		utils.ResponseWithError(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	ctx := c.Request.Context()

	existing, err := h.Store.FindParentByEmail(ctx, req.Email)
	if err != nil {
		log.Errorf("RegisterParent: Error finding parent by email '%s': %v", req.Email, err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Registration failed", nil)
		return
	}
	if existing != nil {
		log.Debugf("RegisterParent: Parent with email '%s' already exists.", req.Email)
		utils.ResponseWithError(c, http.StatusConflict, "An account with this email already exists", nil)
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Errorf("RegisterParent: Error hashing password: %v", err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Registration failed", nil)
		return
	}

	parent, err := h.Store.CreateParent(ctx, &db.Parent{
		Name:         strings.TrimSpace(req.Name),
		Email:        req.Email,
		PasswordHash: string(hashedPassword),
	})
	if err != nil {
		log.Errorf("RegisterParent: Error creating parent: %v", err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Registration failed", nil)
		return
	}

	token, err := h.Tokens.GenerateToken(parent.ID, parent.Email, parent.Name)
	if err != nil {
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to generate authentication token", nil)
		return
	}
	utils.ResponseWithSuccess(c, http.StatusCreated, "Account created successfully", gin.H{
		"parent_id": parent.ID,
		"token":     token,
	})
}
