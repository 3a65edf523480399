package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rickshaw-auth/internal/apperr"
)

// respond escribe el envelope uniforme {success, message, data?}.
func respond(c *gin.Context, status int, message string, data any) {
	body := gin.H{
		"success": status < http.StatusBadRequest,
		"message": message,
	}
	if data != nil {
		body["data"] = data
	}
	c.JSON(status, body)
}

// ErrorTranslator es la única frontera que convierte errores en respuestas.
// Los handlers registran errores con c.Error y retornan; acá se decide el
// status y el mensaje del envelope.
func ErrorTranslator(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err

		if appErr, ok := apperr.As(err); ok {
			if appErr.Kind == apperr.KindInternal {
				logger.Error("request failed",
					zap.String("path", c.Request.URL.Path),
					zap.Error(err),
				)
			} else {
				logger.Debug("request rejected",
					zap.String("path", c.Request.URL.Path),
					zap.String("kind", string(appErr.Kind)),
					zap.Error(err),
				)
			}
			respond(c, appErr.Status, appErr.Message, nil)
			return
		}

		logger.Error("unhandled error",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		respond(c, http.StatusInternalServerError, "Internal Server Error", nil)
	}
}
