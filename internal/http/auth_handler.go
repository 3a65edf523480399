package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rickshaw-auth/internal/apperr"
	"rickshaw-auth/internal/service"
)

// AuthHandler mantiene dependencias para los endpoints de autenticación.
type AuthHandler struct {
	logger   *zap.Logger
	authServ *service.AuthService
}

// NewAuthHandler crea una instancia de AuthHandler con dependencias necesarias.
func NewAuthHandler(logger *zap.Logger, authServ *service.AuthService) *AuthHandler {
	return &AuthHandler{
		logger:   logger,
		authServ: authServ,
	}
}

// Los campos se validan en el servicio para que los mensajes de error salgan
// de un solo lugar; acá solo se rechaza JSON malformado.
func (h *AuthHandler) bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.logger.Warn("invalid request body", zap.String("path", c.FullPath()), zap.Error(err))
		_ = c.Error(apperr.Validation("Invalid request body"))
		return false
	}
	return true
}

// Signup maneja POST /api/v1/auth/signup.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if !h.bindJSON(c, &req) {
		return
	}

	user, err := h.authServ.Register(c.Request.Context(), service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	respond(c, http.StatusCreated, "User Registered Successfully Please Verify Your Email", gin.H{"user": user})
}

// VerifyOTP maneja POST /api/v1/auth/verify-otp.
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
		Otp   string `json:"otp"`
	}
	if !h.bindJSON(c, &req) {
		return
	}

	user, err := h.authServ.VerifyOTP(c.Request.Context(), req.Email, req.Otp)
	if err != nil {
		_ = c.Error(err)
		return
	}
	respond(c, http.StatusOK, "OTP verified successfully", gin.H{"user": user})
}

// ResendOTP maneja POST /api/v1/auth/resend-otp.
func (h *AuthHandler) ResendOTP(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if !h.bindJSON(c, &req) {
		return
	}

	user, err := h.authServ.ResendOTP(c.Request.Context(), req.Email)
	if err != nil {
		_ = c.Error(err)
		return
	}
	respond(c, http.StatusOK, "OTP sent successfully", gin.H{"user": user})
}

// Login maneja POST /api/v1/auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.authServ.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		_ = c.Error(err)
		return
	}
	respond(c, http.StatusOK, "Login Successfully", result)
}

// RefreshToken maneja POST /api/v1/auth/refresh-token.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.authServ.RefreshAccessToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		_ = c.Error(err)
		return
	}
	respond(c, http.StatusOK, "Access Token generated successfully", result)
}

// ForgottenPassword maneja POST /api/v1/auth/forgotten-password.
func (h *AuthHandler) ForgottenPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if !h.bindJSON(c, &req) {
		return
	}

	if err := h.authServ.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		_ = c.Error(err)
		return
	}
	respond(c, http.StatusOK, "If User Existed then RESET PASSWORD LINK SENT TO EMAIL", nil)
}

// ResetPassword maneja POST /api/v1/auth/reset-password.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if !h.bindJSON(c, &req) {
		return
	}

	if err := h.authServ.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		_ = c.Error(err)
		return
	}
	respond(c, http.StatusOK, "Password reset successfully", nil)
}

// Logout maneja POST /api/v1/auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !h.bindJSON(c, &req) {
		return
	}

	if err := h.authServ.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		_ = c.Error(err)
		return
	}
	respond(c, http.StatusOK, "Logout successful", nil)
}

// Protected maneja GET /api/v1/auth/protected: eco de los claims del bearer.
func (h *AuthHandler) Protected(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		_ = c.Error(apperr.Unauthorized("Unauthorized"))
		return
	}
	respond(c, http.StatusOK, "You have access to this protected route!", gin.H{
		"id":    claims.UserID,
		"email": claims.Email,
		"role":  claims.Role,
	})
}
