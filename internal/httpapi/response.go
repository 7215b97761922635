package httpapi

import (
	"errors"
	"net/http"

	"github.com/bookstore/services/order/internal/repo"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func success(c *gin.Context, code int, message string, data interface{}) {
	body := gin.H{"status": "success"}
	if message != "" {
		body["message"] = message
	}
	if data != nil {
		body["data"] = data
	}
	c.JSON(code, body)
}

func fail(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, gin.H{"status": "fail", "message": message})
}

// writeError maps the error taxonomy onto HTTP status codes. Client errors carry their
// message; anything else is logged and reported as a generic server error.
func writeError(c *gin.Context, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, repo.ErrBookNotFound),
		errors.Is(err, repo.ErrCartNotFound),
		errors.Is(err, repo.ErrItemNotFound),
		errors.Is(err, repo.ErrOrderNotFound):
		fail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, repo.ErrEmptyCart),
		errors.Is(err, repo.ErrInsufficientStock),
		errors.Is(err, repo.ErrBookUnavailable),
		errors.Is(err, repo.ErrInvalidTransition),
		errors.Is(err, repo.ErrInvalidStatus),
		errors.Is(err, repo.ErrInvalidInput):
		fail(c, http.StatusBadRequest, err.Error())
	default:
		log.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "Something went wrong",
		})
	}
}
