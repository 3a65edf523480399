package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rickshaw-auth/internal/service"
)

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(logger *zap.Logger, authH *AuthHandler, codec service.TokenCodec) *gin.Engine {
	r := gin.New()

	// Middlewares básicos: logging, recovery, traducción de errores y
	// JSON content-type.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), ErrorTranslator(logger), jsonContentTypeMiddleware())

	r.GET("/healthcheck", func(c *gin.Context) {
		respond(c, http.StatusOK, "server is up and running!", nil)
	})

	auth := r.Group("/api/v1/auth")
	auth.POST("/signup", authH.Signup)
	auth.POST("/verify-otp", authH.VerifyOTP)
	auth.POST("/resend-otp", authH.ResendOTP)
	auth.POST("/login", authH.Login)
	auth.POST("/refresh-token", authH.RefreshToken)
	auth.POST("/forgotten-password", authH.ForgottenPassword)
	auth.POST("/reset-password", authH.ResetPassword)
	auth.POST("/logout", authH.Logout)
	auth.GET("/protected", JWTAuthMiddleware(codec), authH.Protected)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
