package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/groupchat/internal/models"
)

// respondError maps err onto a status code. Errors outside the domain
// taxonomy are logged and reported as 500.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case models.IsTaxonomy(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		slog.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// paramID parses the named path parameter, answering 400 when it is not a
// well-formed id.
func paramID(c *gin.Context, name string) (models.ID, bool) {
	id, err := models.ParseID(c.Param(name))
	if err != nil {
		respondError(c, err)
		return "", false
	}
	return id, true
}
